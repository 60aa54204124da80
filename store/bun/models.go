package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/makimoto/kuroko2"
	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/id"
	"github.com/makimoto/kuroko2/instance"
	"github.com/makimoto/kuroko2/token"
)

// ── Definition model ──────────────────────────────────────────────

type definitionModel struct {
	bun.BaseModel `bun:"table:kuroko2_definitions"`

	ID           string    `bun:"id,pk"`
	Name         string    `bun:"name,notnull"`
	Description  string    `bun:"description,notnull"`
	Script       string    `bun:"script,notnull"`
	Tags         []string  `bun:"tags,array"`
	Suspended    bool      `bun:"suspended,notnull"`
	PreventMulti int       `bun:"prevent_multi,notnull"`
	Version      int64     `bun:"version,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
	UpdatedAt    time.Time `bun:"updated_at,notnull"`
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
		return nil, fmt.Errorf("kuroko2/bun: parse definition id %q: %w", m.ID, err)
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
	bun.BaseModel `bun:"table:kuroko2_instances"`

	ID           string     `bun:"id,pk"`
	DefinitionID string     `bun:"definition_id,notnull"`
	LaunchedBy   string     `bun:"launched_by,notnull"`
	StartedAt    time.Time  `bun:"started_at,notnull"`
	FinishedAt   *time.Time `bun:"finished_at"`
	CreatedAt    time.Time  `bun:"created_at,notnull"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull"`
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
		return nil, fmt.Errorf("kuroko2/bun: parse instance id %q: %w", m.ID, err)
	}
	parsedDef, err := id.ParseDefinitionID(m.DefinitionID)
	if err != nil {
		return nil, fmt.Errorf("kuroko2/bun: parse definition id %q: %w", m.DefinitionID, err)
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
			return nil, fmt.Errorf("kuroko2/bun: parse launcher id %q: %w", m.LaunchedBy, err)
		}
	}
	return inst, nil
}

// ── Token model ───────────────────────────────────────────────────

type tokenModel struct {
	bun.BaseModel `bun:"table:kuroko2_tokens"`

	ID           string    `bun:"id,pk"`
	InstanceID   string    `bun:"instance_id,notnull"`
	DefinitionID string    `bun:"definition_id,notnull"`
	Status       string    `bun:"status,notnull"`
	Seq          int       `bun:"seq,notnull"`
	EmittedAt    time.Time `bun:"emitted_at,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
	UpdatedAt    time.Time `bun:"updated_at,notnull"`
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
		return nil, fmt.Errorf("kuroko2/bun: parse token id %q: %w", m.ID, err)
	}
	parsedInst, err := id.ParseInstanceID(m.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("kuroko2/bun: parse instance id %q: %w", m.InstanceID, err)
	}
	parsedDef, err := id.ParseDefinitionID(m.DefinitionID)
	if err != nil {
		return nil, fmt.Errorf("kuroko2/bun: parse definition id %q: %w", m.DefinitionID, err)
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
	bun.BaseModel `bun:"table:kuroko2_locks"`

	DefinitionID string    `bun:"definition_id,pk"`
	Holder       string    `bun:"holder,notnull"`
	ExpiresAt    time.Time `bun:"expires_at,notnull"`
}
