package usecase

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// Cost model constants
const (
	// dailyActiveHoursCap bounds the counted hours per day after the first
	dailyActiveHoursCap = 10.0
	reviewBaseHours     = 1.0
	reviewHoursPerHead  = 0.5
)

type interval struct {
	start, end time.Time
}

// activeHours returns the hours a participant held any role between from
// and to. Overlapping role intervals are merged. The first 24 hours count in
// full, every further day counts at most dailyActiveHoursCap hours.
func activeHours(p *model.Participant, from, to time.Time) float64 {
	var spans []interval
	for _, r := range p.Roles {
		start, end := r.AssumedAt, to
		if r.RenouncedAt != nil && r.RenouncedAt.Before(end) {
			end = *r.RenouncedAt
		}
		if start.Before(from) {
			start = from
		}
		if end.After(start) {
			spans = append(spans, interval{start, end})
		}
	}
	if len(spans) == 0 {
		return 0
	}
	slices.SortFunc(spans, func(a, b interval) int { return a.start.Compare(b.start) })

	var total time.Duration
	cur := spans[0]
	for _, s := range spans[1:] {
		if !s.start.After(cur.end) {
			if s.end.After(cur.end) {
				cur.end = s.end
			}
			continue
		}
		total += cur.end.Sub(cur.start)
		cur = s
	}
	total += cur.end.Sub(cur.start)

	hours := total.Hours()
	if hours <= 24 {
		return hours
	}
	extra := hours - 24
	days := math.Floor(extra / 24)
	return 24 + days*dailyActiveHoursCap + math.Min(extra-days*24, dailyActiveHoursCap)
}

// responseHours weights participant hours 25/50/25 over minimum, median and
// maximum and scales by the number of participants
func responseHours(hours []float64) float64 {
	n := len(hours)
	if n == 0 {
		return 0
	}
	sorted := slices.Clone(hours)
	slices.Sort(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return float64(n) * (0.25*sorted[0] + 0.5*median + 0.25*sorted[n-1])
}

// IncidentCost computes the response cost of an incident
func IncidentCost(inc *model.Incident, participants model.Participants, hasReview bool, hourlyRate float64, now time.Time) float64 {
	end := inc.EndTime(now)
	hours := make([]float64, 0, len(participants))
	for _, p := range participants {
		if h := activeHours(p, inc.ReportedAt, end); h > 0 {
			hours = append(hours, h)
		}
	}
	total := responseHours(hours)
	if hasReview {
		total += reviewBaseHours + reviewHoursPerHead*float64(len(participants))
	}
	return math.Ceil(hourlyRate) * total
}

func (uc *UseCases) hourlyRate(project *model.Project) float64 {
	annual := project.AnnualEmployeeCost
	if annual <= 0 {
		annual = uc.annualEmployeeCost
	}
	hours := project.BusinessYearHours
	if hours <= 0 {
		hours = uc.businessYearHours
	}
	if hours <= 0 {
		return 0
	}
	return annual / hours
}

// RecomputeCost updates the incident cost and reports whether it changed.
// A changed cost is pushed to the ticket.
func (uc *UseCases) RecomputeCost(ctx context.Context, org string, incidentID int64) (float64, bool, error) {
	inc, err := uc.getIncident(ctx, org, incidentID)
	if err != nil {
		return 0, false, err
	}
	project, err := uc.getProject(ctx, org, inc.ProjectID)
	if err != nil {
		return 0, false, err
	}
	participants, err := uc.repo.Participant().List(ctx, org, inc.Ref())
	if err != nil {
		return 0, false, goerr.Wrap(err, "failed to list participants", goerr.V(model.IncidentIDKey, incidentID))
	}
	review, err := uc.repo.Resource().Get(ctx, org, inc.Ref(), types.ResourceTypeReviewDocument)
	if err != nil {
		return 0, false, goerr.Wrap(err, "failed to get review document", goerr.V(model.IncidentIDKey, incidentID))
	}

	cost := IncidentCost(inc, participants, review != nil, uc.hourlyRate(project), uc.now())
	if cost == inc.Cost {
		return cost, false, nil
	}
	inc.Cost = cost
	if _, err := uc.repo.Incident().Update(ctx, org, inc); err != nil {
		return 0, false, goerr.Wrap(err, "failed to store incident cost", goerr.V(model.IncidentIDKey, incidentID))
	}
	logging.From(ctx).Debug("incident cost updated", "incident", inc.Name, "cost", cost)
	if err := uc.syncSubjectResources(ctx, org, inc.Ref()); err != nil {
		logging.From(ctx).Warn("failed to sync ticket cost", "incident", inc.Name, "error", err)
	}
	return cost, true, nil
}
