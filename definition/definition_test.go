package definition_test

import (
	"errors"
	"testing"

	"github.com/makimoto/kuroko2"
	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/id"
)

func TestPreventMultiCodes(t *testing.T) {
	t.Parallel()

	// The integer codes are a persisted schema contract; pin them.
	tests := []struct {
		mode definition.PreventMulti
		code int
		str  string
	}{
		{definition.PreventMultiNone, 0, "none"},
		{definition.PreventMultiWorkingOrError, 1, "working_or_error"},
		{definition.PreventMultiWorking, 2, "working"},
		{definition.PreventMultiError, 3, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			if int(tt.mode) != tt.code {
				t.Errorf("code drift: %s = %d, want %d", tt.str, int(tt.mode), tt.code)
			}
			if tt.mode.String() != tt.str {
				t.Errorf("String() = %q, want %q", tt.mode.String(), tt.str)
			}
			got, err := definition.PreventMultiFromCode(tt.code)
			if err != nil {
				t.Fatalf("PreventMultiFromCode(%d): %v", tt.code, err)
			}
			if got != tt.mode {
				t.Errorf("PreventMultiFromCode(%d) = %v, want %v", tt.code, got, tt.mode)
			}
		})
	}
}

func TestPreventMultiFromCodeRejectsUnknown(t *testing.T) {
	t.Parallel()

	for _, code := range []int{-1, 4, 42} {
		_, err := definition.PreventMultiFromCode(code)
		if !errors.Is(err, kuroko2.ErrInvalidPreventMulti) {
			t.Errorf("code %d: expected ErrInvalidPreventMulti, got %v", code, err)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		def     definition.Definition
		wantErr error
	}{
		{
			name: "valid",
			def: definition.Definition{
				ID:           id.NewDefinitionID(),
				Name:         "nightly-batch",
				PreventMulti: definition.PreventMultiWorking,
			},
		},
		{
			name:    "blank name",
			def:     definition.Definition{Name: "   "},
			wantErr: definition.ErrBlankName,
		},
		{
			name: "unknown prevent-multi",
			def: definition.Definition{
				Name:         "nightly-batch",
				PreventMulti: definition.PreventMulti(7),
			},
			wantErr: kuroko2.ErrInvalidPreventMulti,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestHasTag(t *testing.T) {
	t.Parallel()

	d := definition.Definition{Tags: []string{"batch", "nightly"}}
	if !d.HasTag("batch") {
		t.Error("expected tag batch")
	}
	if d.HasTag("hourly") {
		t.Error("unexpected tag hourly")
	}
}
