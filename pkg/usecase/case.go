package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// CreateCaseInput describes a new case. Zero catalog ids select the project
// defaults.
type CreateCaseInput struct {
	ProjectID   int64
	Title       string
	Description string
	TypeID      int64
	SeverityID  int64
	PriorityID  int64
	TagIDs      []int64
	SignalID    int64

	Reporter string
	// Assignee defaults to the on-call person of the case type service
	Assignee string
}

// CreateCase stores a new case with its reporter and assignee, then creates
// its resources in the background
func (uc *UseCases) CreateCase(ctx context.Context, org string, in CreateCaseInput) (*model.Case, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, model.NewValidationError("title", "title is required")
	}

	project, err := uc.getProject(ctx, org, in.ProjectID)
	if err != nil {
		return nil, err
	}
	caseType, err := catalogDefault(ctx, uc.repo.CaseType(), org, project.ID, in.TypeID, "case_type")
	if err != nil {
		return nil, err
	}
	severity, err := catalogDefault(ctx, uc.repo.CaseSeverity(), org, project.ID, in.SeverityID, "case_severity")
	if err != nil {
		return nil, err
	}
	priority, err := catalogDefault(ctx, uc.repo.CasePriority(), org, project.ID, in.PriorityID, "case_priority")
	if err != nil {
		return nil, err
	}

	now := uc.now()
	var created *model.Case
	if err := uc.repo.WithTx(ctx, org, func(ctx context.Context) error {
		name, err := uc.subjectName(ctx, org, types.SubjectKindCase, project, caseType.ID, model.Slugify(caseType.Name))
		if err != nil {
			return err
		}
		created, err = uc.repo.Case().Create(ctx, org, &model.Case{
			ProjectID:        project.ID,
			Name:             name,
			Title:            in.Title,
			Description:      in.Description,
			Status:           types.CaseStatusNew,
			Visibility:       caseType.Visibility.Normalize(),
			TypeID:           caseType.ID,
			SeverityID:       severity.ID,
			PriorityID:       priority.ID,
			DedicatedChannel: caseType.DedicatedChannel,
			ReportedAt:       now,
			TagIDs:           in.TagIDs,
			SignalID:         in.SignalID,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
		if err != nil {
			return goerr.Wrap(err, "failed to create case", goerr.V("name", name))
		}
		return nil
	}); err != nil {
		return nil, err
	}

	ctx = logging.WithAttrs(ctx, "case", created.Name)
	logging.From(ctx).Info("case created", "title", created.Title, "type", caseType.Name)
	uc.metrics.SubjectTransition(string(types.SubjectKindCase), "", string(created.Status))
	uc.logEvent(ctx, org, EventInput{
		Subject:     created.Ref(),
		Description: "Case created",
		StartedAt:   now,
	})

	assignee := in.Assignee
	if assignee == "" && caseType.OncallServiceID != 0 {
		if svc, err := uc.repo.Service().Get(ctx, org, caseType.OncallServiceID); err == nil && svc != nil {
			assignee = uc.resolveOncall(ctx, org, project.ID, svc.ExternalID)
			if assignee != "" && priority.PageAssignee {
				caseID := created.ID
				serviceID := svc.ExternalID
				uc.background(ctx, "case.page_assignee", func(ctx context.Context) error {
					c, err := uc.getCase(ctx, org, caseID)
					if err != nil {
						return err
					}
					uc.pageService(ctx, org, c, serviceID)
					return nil
				})
			}
		}
	}

	if in.Reporter != "" {
		if _, err := uc.AddParticipant(ctx, org, created.Ref(), AddParticipantInput{
			Email:   in.Reporter,
			Role:    types.ParticipantRoleReporter,
			AddedBy: in.Reporter,
			Reason:  "Reported the case",
			Quiet:   true,
		}); err != nil {
			return nil, err
		}
	}
	if assignee != "" {
		p, err := uc.AddParticipant(ctx, org, created.Ref(), AddParticipantInput{
			Email:   assignee,
			Role:    types.ParticipantRoleAssignee,
			AddedBy: in.Reporter,
			Reason:  "Assigned to the case",
			Quiet:   true,
		})
		if err != nil {
			return nil, err
		}
		if !p.HasActiveRole(types.ParticipantRoleAssignee) {
			if _, err := uc.addRole(ctx, org, p, types.ParticipantRoleAssignee); err != nil {
				return nil, err
			}
		}
	}

	caseID := created.ID
	uc.background(ctx, "case.create_resources", func(ctx context.Context) error {
		if err := uc.CreateCaseResources(ctx, org, caseID, ResourceOptions{}); err != nil {
			return err
		}
		c, err := uc.getCase(ctx, org, caseID)
		if err != nil {
			return err
		}
		uc.notifySubject(ctx, org, c, "created")
		return nil
	})

	return created, nil
}

// UpdateCaseInput carries the fields to change; nil fields are kept
type UpdateCaseInput struct {
	Title            *string
	Description      *string
	Resolution       *string
	ResolutionReason *string
	Status           *types.CaseStatus
	Visibility       *types.Visibility
	TypeID           int64
	SeverityID       int64
	PriorityID       int64
	TagIDs           []int64
	Actor            string
}

// UpdateCase applies field changes and runs the status transition when the
// status changed. The case visibility is not derived from its type after
// creation.
func (uc *UseCases) UpdateCase(ctx context.Context, org string, id int64, in UpdateCaseInput) (*model.Case, error) {
	c, err := uc.getCase(ctx, org, id)
	if err != nil {
		return nil, err
	}

	var changes []string
	if in.Title != nil && *in.Title != c.Title {
		c.Title = *in.Title
		changes = append(changes, "title")
	}
	if in.Description != nil && *in.Description != c.Description {
		c.Description = *in.Description
		changes = append(changes, "description")
	}
	if in.Resolution != nil && *in.Resolution != c.Resolution {
		c.Resolution = *in.Resolution
		changes = append(changes, "resolution")
	}
	if in.ResolutionReason != nil && *in.ResolutionReason != c.ResolutionReason {
		c.ResolutionReason = *in.ResolutionReason
		changes = append(changes, "resolution_reason")
	}
	if in.Visibility != nil && in.Visibility.Normalize() != c.Visibility {
		c.Visibility = in.Visibility.Normalize()
		changes = append(changes, "visibility")
	}
	if in.TypeID != 0 && in.TypeID != c.TypeID {
		if _, err := catalogDefault(ctx, uc.repo.CaseType(), org, c.ProjectID, in.TypeID, "case_type"); err != nil {
			return nil, err
		}
		c.TypeID = in.TypeID
		changes = append(changes, "type")
	}
	if in.SeverityID != 0 && in.SeverityID != c.SeverityID {
		if _, err := catalogDefault(ctx, uc.repo.CaseSeverity(), org, c.ProjectID, in.SeverityID, "case_severity"); err != nil {
			return nil, err
		}
		c.SeverityID = in.SeverityID
		changes = append(changes, "severity")
	}
	if in.PriorityID != 0 && in.PriorityID != c.PriorityID {
		if _, err := catalogDefault(ctx, uc.repo.CasePriority(), org, c.ProjectID, in.PriorityID, "case_priority"); err != nil {
			return nil, err
		}
		c.PriorityID = in.PriorityID
		changes = append(changes, "priority")
	}
	if in.TagIDs != nil {
		c.TagIDs = in.TagIDs
		changes = append(changes, "tags")
	}

	if len(changes) > 0 {
		c.UpdatedAt = uc.now()
		if c, err = uc.repo.Case().Update(ctx, org, c); err != nil {
			return nil, goerr.Wrap(err, "failed to update case", goerr.V(model.CaseIDKey, id))
		}
		for _, field := range changes {
			uc.logEvent(ctx, org, EventInput{
				Subject:     c.Ref(),
				Description: fmt.Sprintf("Case %s updated", field),
				Type:        types.EventTypeFieldUpdated,
				Owner:       in.Actor,
				Details:     map[string]any{"field": field},
			})
		}
	}

	if in.Status != nil && *in.Status != c.Status {
		if c, err = uc.TransitionCase(ctx, org, id, *in.Status, in.Actor); err != nil {
			return nil, err
		}
	} else if len(changes) > 0 {
		uc.background(ctx, "case.sync_resources", func(ctx context.Context) error {
			return uc.syncSubjectResources(ctx, org, model.CaseRef(id))
		})
	}
	return c, nil
}

// DeleteCase removes the case resources, participants and the case itself
func (uc *UseCases) DeleteCase(ctx context.Context, org string, id int64) error {
	if err := uc.DeleteSubjectResources(ctx, org, model.CaseRef(id)); err != nil {
		return err
	}
	if err := uc.repo.Participant().DeleteBySubject(ctx, org, model.CaseRef(id)); err != nil {
		return goerr.Wrap(err, "failed to delete participants", goerr.V(model.CaseIDKey, id))
	}
	if err := uc.repo.Case().Delete(ctx, org, id); err != nil && !errors.Is(err, model.ErrNotFound) {
		return goerr.Wrap(err, "failed to delete case", goerr.V(model.CaseIDKey, id))
	}
	return nil
}

// GetCase returns the case with id
func (uc *UseCases) GetCase(ctx context.Context, org string, id int64) (*model.Case, error) {
	return uc.getCase(ctx, org, id)
}

// ListCases returns cases matching q
func (uc *UseCases) ListCases(ctx context.Context, org string, q model.CaseQuery) ([]*model.Case, error) {
	cases, err := uc.repo.Case().List(ctx, org, q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list cases")
	}
	return cases, nil
}
