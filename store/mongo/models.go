package mongo

import (
	"fmt"
	"time"

	"github.com/makimoto/kuroko2"
	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/id"
	"github.com/makimoto/kuroko2/instance"
	"github.com/makimoto/kuroko2/token"
)

// ── Definition model ──────────────────────────────────────────────

type definitionModel struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Description  string    `bson:"description,omitempty"`
	Script       string    `bson:"script,omitempty"`
	Tags         []string  `bson:"tags,omitempty"`
	Suspended    bool      `bson:"suspended"`
	PreventMulti int       `bson:"prevent_multi"`
	Version      int64     `bson:"version"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func toDefinitionModel(d *definition.Definition) *definitionModel {
	return &definitionModel{
		ID:           d.ID.String(),
		Name:         d.Name,
		Description:  d.Description,
		Script:       d.Script,
		Tags:         d.Tags,
		Suspended:    d.Suspended,
		PreventMulti: int(d.PreventMulti),
		Version:      d.Version,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func fromDefinitionModel(m *definitionModel) (*definition.Definition, error) {
	parsedID, err := id.ParseDefinitionID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("kuroko2/mongo: parse definition id %q: %w", m.ID, err)
	}
	mode, err := definition.PreventMultiFromCode(m.PreventMulti)
	if err != nil {
		return nil, err
	}

	return &definition.Definition{
		Entity: kuroko2.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           parsedID,
		Name:         m.Name,
		Description:  m.Description,
		Script:       m.Script,
		Tags:         m.Tags,
		Suspended:    m.Suspended,
		PreventMulti: mode,
		Version:      m.Version,
	}, nil
}

// ── Instance model ────────────────────────────────────────────────

type instanceModel struct {
	ID           string     `bson:"_id"`
	DefinitionID string     `bson:"definition_id"`
	LaunchedBy   string     `bson:"launched_by,omitempty"`
	StartedAt    time.Time  `bson:"started_at"`
	FinishedAt   *time.Time `bson:"finished_at,omitempty"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
}

func toInstanceModel(inst *instance.Instance) *instanceModel {
	return &instanceModel{
		ID:           inst.ID.String(),
		DefinitionID: inst.DefinitionID.String(),
		LaunchedBy:   inst.LaunchedBy.String(),
		StartedAt:    inst.StartedAt,
		FinishedAt:   inst.FinishedAt,
		CreatedAt:    inst.CreatedAt,
		UpdatedAt:    inst.UpdatedAt,
	}
}

func fromInstanceModel(m *instanceModel) (*instance.Instance, error) {
	parsedID, err := id.ParseInstanceID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("kuroko2/mongo: parse instance id %q: %w", m.ID, err)
	}
	parsedDef, err := id.ParseDefinitionID(m.DefinitionID)
	if err != nil {
		return nil, fmt.Errorf("kuroko2/mongo: parse definition id %q: %w", m.DefinitionID, err)
	}

	inst := &instance.Instance{
		Entity: kuroko2.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           parsedID,
		DefinitionID: parsedDef,
		StartedAt:    m.StartedAt,
		FinishedAt:   m.FinishedAt,
	}
	if m.LaunchedBy != "" {
		if inst.LaunchedBy, err = id.ParseLauncherID(m.LaunchedBy); err != nil {
			return nil, fmt.Errorf("kuroko2/mongo: parse launcher id %q: %w", m.LaunchedBy, err)
		}
	}
	return inst, nil
}

// ── Token model ───────────────────────────────────────────────────

type tokenModel struct {
	ID           string    `bson:"_id"`
	InstanceID   string    `bson:"instance_id"`
	DefinitionID string    `bson:"definition_id"`
	Status       string    `bson:"status"`
	Seq          int       `bson:"seq"`
	EmittedAt    time.Time `bson:"emitted_at"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func toTokenModel(t *token.Token) *tokenModel {
	return &tokenModel{
		ID:           t.ID.String(),
		InstanceID:   t.InstanceID.String(),
		DefinitionID: t.DefinitionID.String(),
		Status:       string(t.Status),
		Seq:          t.Seq,
		EmittedAt:    t.EmittedAt,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func fromTokenModel(m *tokenModel) (*token.Token, error) {
	parsedID, err := id.ParseTokenID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("kuroko2/mongo: parse token id %q: %w", m.ID, err)
	}
	parsedInst, err := id.ParseInstanceID(m.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("kuroko2/mongo: parse instance id %q: %w", m.InstanceID, err)
	}
	parsedDef, err := id.ParseDefinitionID(m.DefinitionID)
	if err != nil {
		return nil, fmt.Errorf("kuroko2/mongo: parse definition id %q: %w", m.DefinitionID, err)
	}

	return &token.Token{
		Entity: kuroko2.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           parsedID,
		InstanceID:   parsedInst,
		DefinitionID: parsedDef,
		Status:       token.Status(m.Status),
		Seq:          m.Seq,
		EmittedAt:    m.EmittedAt,
	}, nil
}

// ── Lock model ────────────────────────────────────────────────────

type lockModel struct {
	DefinitionID string    `bson:"_id"`
	Holder       string    `bson:"holder"`
	ExpiresAt    time.Time `bson:"expires_at"`
}
