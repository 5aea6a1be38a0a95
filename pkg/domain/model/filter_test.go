package model_test

import (
	"encoding/json"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

func TestFilterExprMatch(t *testing.T) {
	attrs := map[string]any{
		"incident_type":     "Security",
		"incident_priority": "P1",
		"tag":               []string{"pii", "aws"},
		"participants":      3,
	}

	tests := []struct {
		name   string
		filter string
		want   bool
	}{
		{"empty matches", `{}`, true},
		{"equal is case insensitive", `{"field":"incident_type","op":"==","value":"security"}`, true},
		{"not equal", `{"field":"incident_type","op":"!=","value":"Security"}`, false},
		{"in", `{"field":"incident_priority","op":"in","value":["P1","P2"]}`, true},
		{"not in", `{"field":"incident_priority","op":"not_in","value":["P1"]}`, false},
		{"any on multi valued", `{"field":"tag","op":"any","value":["gcp","aws"]}`, true},
		{"like", `{"field":"incident_type","op":"like","value":"cur"}`, true},
		{"numeric compare", `{"field":"participants","op":">=","value":3}`, true},
		{"missing field", `{"field":"nope","op":"==","value":"x"}`, false},
		{"and", `{"and":[{"field":"incident_type","op":"==","value":"Security"},{"field":"incident_priority","op":"==","value":"P3"}]}`, false},
		{"or", `{"or":[{"field":"incident_type","op":"==","value":"Other"},{"field":"incident_priority","op":"==","value":"P1"}]}`, true},
		{"not", `{"not":{"field":"incident_type","op":"==","value":"Other"}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f model.FilterExpr
			gt.NoError(t, json.Unmarshal([]byte(tt.filter), &f)).Required()
			gt.NoError(t, f.Validate())
			gt.Value(t, f.Match(attrs)).Equal(tt.want)
		})
	}
}

func TestFilterExprValidate(t *testing.T) {
	bad := &model.FilterExpr{Field: "x", Op: "~="}
	gt.Error(t, bad.Validate())

	mixed := &model.FilterExpr{Field: "x", Op: "==", Not: &model.FilterExpr{}}
	gt.Error(t, mixed.Validate())

	var nilFilter *model.FilterExpr
	gt.Bool(t, nilFilter.Match(nil)).True()
}
