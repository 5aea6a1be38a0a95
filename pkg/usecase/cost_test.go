package usecase_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/usecase"
)

var costStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func span(fromHours, toHours float64) *model.ParticipantRole {
	r := &model.ParticipantRole{
		Role:      types.ParticipantRoleParticipant,
		AssumedAt: costStart.Add(time.Duration(fromHours * float64(time.Hour))),
	}
	if toHours >= 0 {
		end := costStart.Add(time.Duration(toHours * float64(time.Hour)))
		r.RenouncedAt = &end
	}
	return r
}

func TestActiveHours(t *testing.T) {
	tests := []struct {
		name  string
		roles []*model.ParticipantRole
		to    float64
		want  float64
	}{
		{"single role", []*model.ParticipantRole{span(0, 2)}, 10, 2},
		{"open role runs until the end", []*model.ParticipantRole{span(1, -1)}, 4, 3},
		{"overlapping roles are merged", []*model.ParticipantRole{span(0, 3), span(1, 5)}, 10, 5},
		{"contained role is merged", []*model.ParticipantRole{span(0, 6), span(2, 3)}, 10, 6},
		{"gaps are not counted", []*model.ParticipantRole{span(0, 1), span(2, 4)}, 10, 3},
		{"time before the report is ignored", []*model.ParticipantRole{span(-2, 1)}, 10, 1},
		{"first day counts in full", []*model.ParticipantRole{span(0, 24)}, 48, 24},
		{"second day is capped", []*model.ParticipantRole{span(0, 36)}, 48, 34},
		{"partial day under the cap", []*model.ParticipantRole{span(0, 53)}, 60, 39},
		{"three full days", []*model.ParticipantRole{span(0, 72)}, 72, 44},
		{"role after the end", []*model.ParticipantRole{span(5, -1)}, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &model.Participant{Email: "alice@example.com", Roles: tt.roles}
			to := costStart.Add(time.Duration(tt.to * float64(time.Hour)))
			gt.Number(t, usecase.ActiveHours(p, costStart, to)).Equal(tt.want)
		})
	}
}

func TestResponseHours(t *testing.T) {
	tests := []struct {
		name  string
		hours []float64
		want  float64
	}{
		{"no participants", nil, 0},
		{"one participant", []float64{2}, 2},
		{"odd count uses the middle value", []float64{5, 1, 2}, 7.5},
		{"even count averages the middle values", []float64{7, 1, 5, 3}, 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Number(t, usecase.ResponseHours(tt.hours)).Equal(tt.want)
		})
	}
}

func TestIncidentCost(t *testing.T) {
	closedAt := costStart.Add(2 * time.Hour)
	inc := &model.Incident{
		Status:     types.IncidentStatusClosed,
		ReportedAt: costStart,
		ClosedAt:   &closedAt,
	}
	participants := model.Participants{
		{Email: "alice@example.com", Roles: []*model.ParticipantRole{span(0, -1)}},
		{Email: "bob@example.com", Roles: []*model.ParticipantRole{span(1, 2)}},
	}
	// hours [2, 1]: 2 * (0.25*1 + 0.5*1.5 + 0.25*2) = 3
	now := costStart.Add(48 * time.Hour)

	gt.Number(t, usecase.IncidentCost(inc, participants, false, 99.2, now)).Equal(300.0)

	t.Run("review adds base and per participant hours", func(t *testing.T) {
		gt.Number(t, usecase.IncidentCost(inc, participants, true, 99.2, now)).Equal(500.0)
	})

	t.Run("stable incidents end at the stable time", func(t *testing.T) {
		stableAt := costStart.Add(time.Hour)
		stable := &model.Incident{Status: types.IncidentStatusStable, ReportedAt: costStart, StableAt: &stableAt}
		// hours [1]: 1
		gt.Number(t, usecase.IncidentCost(stable, participants[:1], false, 100, now)).Equal(100.0)
	})
}
