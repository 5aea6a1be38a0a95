package usecase

import (
	"context"
	"strconv"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

func (uc *UseCases) getIncident(ctx context.Context, org string, id int64) (*model.Incident, error) {
	inc, err := uc.repo.Incident().Get(ctx, org, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get incident", goerr.V(model.IncidentIDKey, id))
	}
	if inc == nil {
		return nil, goerr.Wrap(model.ErrNotFound, "incident not found", goerr.V(model.IncidentIDKey, id))
	}
	return inc, nil
}

func (uc *UseCases) getCase(ctx context.Context, org string, id int64) (*model.Case, error) {
	c, err := uc.repo.Case().Get(ctx, org, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get case", goerr.V(model.CaseIDKey, id))
	}
	if c == nil {
		return nil, goerr.Wrap(model.ErrNotFound, "case not found", goerr.V(model.CaseIDKey, id))
	}
	return c, nil
}

func (uc *UseCases) getProject(ctx context.Context, org string, id int64) (*model.Project, error) {
	p, err := uc.repo.Project().Get(ctx, org, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get project", goerr.V(model.ProjectIDKey, id))
	}
	if p == nil {
		return nil, goerr.Wrap(model.ErrNotFound, "project not found", goerr.V(model.ProjectIDKey, id))
	}
	return p, nil
}

// Subject loads the incident or case referenced by ref
func (uc *UseCases) Subject(ctx context.Context, org string, ref model.SubjectRef) (model.Subject, error) {
	switch ref.Kind {
	case types.SubjectKindIncident:
		return uc.getIncident(ctx, org, ref.ID)
	case types.SubjectKindCase:
		return uc.getCase(ctx, org, ref.ID)
	}
	return nil, goerr.Wrap(model.ErrInvalidInput, "unknown subject kind", goerr.V(model.SubjectKey, ref.String()))
}

func (uc *UseCases) bundle(ctx context.Context, org string, ref model.SubjectRef) (model.Bundle, error) {
	resources, err := uc.repo.Resource().List(ctx, org, ref)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list resources", goerr.V(model.SubjectKey, ref.String()))
	}
	return model.NewBundle(resources), nil
}

// commander returns the active commander (incident) or assignee (case)
func (uc *UseCases) commander(ctx context.Context, org string, ref model.SubjectRef) (*model.Participant, error) {
	participants, err := uc.repo.Participant().List(ctx, org, ref)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list participants", goerr.V(model.SubjectKey, ref.String()))
	}
	role := types.ParticipantRoleIncidentCommander
	if ref.Kind == types.SubjectKindCase {
		role = types.ParticipantRoleAssignee
	}
	if found := participants.WithActiveRole(role); len(found) > 0 {
		return found[0], nil
	}
	return nil, nil
}

// subjectAttributes flattens a subject into the attribute map evaluated by
// notification filters and resolver rules
func (uc *UseCases) subjectAttributes(ctx context.Context, org string, s model.Subject) map[string]any {
	attrs := map[string]any{
		"kind":        string(s.Ref().Kind),
		"name":        s.GetName(),
		"title":       s.GetTitle(),
		"description": s.GetDescription(),
		"status":      s.GetStatus(),
		"visibility":  "open",
	}
	if s.IsRestricted() {
		attrs["visibility"] = "restricted"
	}
	if p, err := uc.repo.Project().Get(ctx, org, s.GetProjectID()); err == nil && p != nil {
		attrs["project"] = p.Name
	}

	var tags []string
	for _, id := range s.GetTagIDs() {
		if t, err := uc.repo.Tag().Get(ctx, org, id); err == nil && t != nil {
			tags = append(tags, t.Name)
		}
	}
	attrs["tag"] = tags

	switch v := s.(type) {
	case *model.Incident:
		if t, err := uc.repo.IncidentType().Get(ctx, org, v.TypeID); err == nil && t != nil {
			attrs["incident_type"] = t.Name
		}
		if p, err := uc.repo.IncidentPriority().Get(ctx, org, v.PriorityID); err == nil && p != nil {
			attrs["incident_priority"] = p.Name
		}
		if sev, err := uc.repo.IncidentSeverity().Get(ctx, org, v.SeverityID); err == nil && sev != nil {
			attrs["incident_severity"] = sev.Name
		}
	case *model.Case:
		if t, err := uc.repo.CaseType().Get(ctx, org, v.TypeID); err == nil && t != nil {
			attrs["case_type"] = t.Name
		}
		if p, err := uc.repo.CasePriority().Get(ctx, org, v.PriorityID); err == nil && p != nil {
			attrs["case_priority"] = p.Name
		}
		if sev, err := uc.repo.CaseSeverity().Get(ctx, org, v.SeverityID); err == nil && sev != nil {
			attrs["case_severity"] = sev.Name
		}
		if v.SignalID != 0 {
			attrs["signal_id"] = strconv.FormatInt(v.SignalID, 10)
		}
	}
	return attrs
}

// saveSubject persists an incident or case
func (uc *UseCases) saveSubject(ctx context.Context, org string, s model.Subject) error {
	switch v := s.(type) {
	case *model.Incident:
		if _, err := uc.repo.Incident().Update(ctx, org, v); err != nil {
			return goerr.Wrap(err, "failed to update incident", goerr.V(model.IncidentIDKey, v.ID))
		}
	case *model.Case:
		if _, err := uc.repo.Case().Update(ctx, org, v); err != nil {
			return goerr.Wrap(err, "failed to update case", goerr.V(model.CaseIDKey, v.ID))
		}
	}
	return nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
