package middleware_test

import (
	"strings"
	"testing"

	. "casare-orchestrator/internal/api/middleware"
)

func TestValidator_ValidateWorkflowID(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())

	if err := v.ValidateWorkflowID(""); err == nil {
		t.Errorf("expected empty workflow_id to be rejected")
	}
	if err := v.ValidateWorkflowID("invoice-processing"); err != nil {
		t.Errorf("expected a normal workflow_id to be valid, got error: %v", err)
	}
	if err := v.ValidateWorkflowID(strings.Repeat("a", 300)); err == nil {
		t.Errorf("expected an overlong workflow_id to be rejected")
	}
}

func TestValidator_ValidateWorkflowName(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())

	if err := v.ValidateWorkflowName("Invoice Processing"); err != nil {
		t.Errorf("expected a normal workflow_name to be valid, got error: %v", err)
	}
	if err := v.ValidateWorkflowName(strings.Repeat("a", 300)); err == nil {
		t.Errorf("expected an overlong workflow_name to be rejected")
	}
}

func TestValidator_ValidateTags(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())

	if err := v.ValidateTags([]string{"finance", "monthly"}); err != nil {
		t.Errorf("expected a small tag set to be valid, got error: %v", err)
	}

	tooMany := make([]string, 64)
	if err := v.ValidateTags(tooMany); err == nil {
		t.Errorf("expected too many tags to be rejected")
	}
}

func TestValidator_ValidatePriority(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())

	tests := []struct {
		priority int
		wantErr  bool
	}{
		{0, false},
		{9, false},
		{5, false},
		{-1, true},
		{10, true},
	}
	for _, tt := range tests {
		err := v.ValidatePriority(tt.priority)
		if tt.wantErr && err == nil {
			t.Errorf("expected priority %d to be rejected", tt.priority)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("expected priority %d to be valid, got error: %v", tt.priority, err)
		}
	}
}
