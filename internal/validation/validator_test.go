// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package validation

import (
	"strings"
	"testing"
)

type ruleInput struct {
	Name      string  `json:"name" validate:"required,max=10"`
	Condition string  `json:"condition" validate:"required,oneof=anomaly_count failed_logins"`
	Threshold float64 `json:"threshold" validate:"gt=0"`
	Window    int     `json:"window_minutes" validate:"min=1,max=1440"`
}

func TestValidateStruct_Valid(t *testing.T) {
	in := ruleInput{Name: "logins", Condition: "failed_logins", Threshold: 5, Window: 15}
	if err := ValidateStruct(&in); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateStruct_Messages(t *testing.T) {
	tests := []struct {
		name  string
		input ruleInput
		field string
		want  string
	}{
		{
			name:  "missing name",
			input: ruleInput{Condition: "anomaly_count", Threshold: 1, Window: 5},
			field: "name",
			want:  "name is required",
		},
		{
			name:  "long name",
			input: ruleInput{Name: "this-is-far-too-long", Condition: "anomaly_count", Threshold: 1, Window: 5},
			field: "name",
			want:  "name must be at most 10 characters",
		},
		{
			name:  "unknown condition",
			input: ruleInput{Name: "x", Condition: "cpu", Threshold: 1, Window: 5},
			field: "condition",
			want:  "condition must be one of: anomaly_count failed_logins",
		},
		{
			name:  "zero threshold",
			input: ruleInput{Name: "x", Condition: "anomaly_count", Window: 5},
			field: "threshold",
			want:  "threshold must be greater than 0",
		},
		{
			name:  "window too large",
			input: ruleInput{Name: "x", Condition: "anomaly_count", Threshold: 1, Window: 5000},
			field: "window_minutes",
			want:  "window_minutes must be at most 1440",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(&tt.input)
			if verr == nil {
				t.Fatal("expected validation error")
			}
			errs := verr.Errors()
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %d: %v", len(errs), verr)
			}
			if errs[0].Field() != tt.field {
				t.Errorf("field = %s, want %s", errs[0].Field(), tt.field)
			}
			if errs[0].Error() != tt.want {
				t.Errorf("message = %q, want %q", errs[0].Error(), tt.want)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	verr := ValidateStruct(&ruleInput{})
	if verr == nil {
		t.Fatal("expected errors")
	}
	apiErr := verr.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %s", apiErr.Code)
	}
	fields, ok := apiErr.Details["fields"].([]map[string]any)
	if !ok || len(fields) < 3 {
		t.Fatalf("expected field details, got %#v", apiErr.Details)
	}
	if !strings.Contains(apiErr.Message, "name is required") {
		t.Errorf("message missing name: %s", apiErr.Message)
	}
}

func TestGetValidatorSingleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("expected the same validator instance")
	}
}
