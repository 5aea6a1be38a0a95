package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// CreateIncidentInput describes a reported incident. Zero catalog ids select
// the project defaults.
type CreateIncidentInput struct {
	ProjectID   int64
	Title       string
	Description string
	TypeID      int64
	SeverityID  int64
	PriorityID  int64
	Visibility  types.Visibility
	TagIDs      []int64

	Reporter string
	// Commander defaults to the on-call person of CommanderServiceID, then
	// to the reporter
	Commander          string
	CommanderServiceID string
}

// catalogDefault returns the item with id, or the project default when id
// is zero
func catalogDefault[T model.CatalogItem](ctx context.Context, repo interfaces.CatalogRepository[T], org string, projectID, id int64, kind string) (T, error) {
	var zero T
	if id != 0 {
		item, err := repo.Get(ctx, org, id)
		if err != nil {
			return zero, goerr.Wrap(err, "failed to get "+kind, goerr.V("id", id))
		}
		if item.GetProjectID() != projectID {
			return zero, goerr.Wrap(model.NewValidationError(kind, kind+" belongs to another project"), "invalid "+kind)
		}
		return item, nil
	}
	items, err := repo.List(ctx, org, projectID)
	if err != nil {
		return zero, goerr.Wrap(err, "failed to list "+kind)
	}
	item, ok := model.FindDefault(items)
	if !ok {
		return zero, goerr.Wrap(model.NewValidationError(kind, "no "+kind+" configured"), "missing "+kind, goerr.V(model.ProjectIDKey, projectID))
	}
	return item, nil
}

// projectSlug is the name prefix of subjects of the project
func projectSlug(p *model.Project) string {
	if p.Slug != "" {
		return p.Slug
	}
	return model.Slugify(p.Name)
}

// subjectName allocates the next "<project>-<type>-NNNN" name. Sequences are
// kept per (kind, project, type).
func (uc *UseCases) subjectName(ctx context.Context, org string, kind types.SubjectKind, project *model.Project, typeID int64, typeSlug string) (string, error) {
	key := fmt.Sprintf("%s:%d:%d", kind, project.ID, typeID)
	seq, err := uc.repo.NextSequence(ctx, org, key)
	if err != nil {
		return "", goerr.Wrap(err, "failed to allocate subject name", goerr.V("key", key))
	}
	return fmt.Sprintf("%s-%s-%04d", projectSlug(project), typeSlug, seq), nil
}

// newIncident validates the input and stores the incident record
func (uc *UseCases) newIncident(ctx context.Context, org string, in CreateIncidentInput) (*model.Incident, *model.IncidentPriority, error) {
	verr := &model.ValidationError{}
	if strings.TrimSpace(in.Title) == "" {
		verr.Add("title", "title is required")
	}
	if in.Reporter == "" {
		verr.Add("reporter", "reporter is required")
	}
	if verr.HasErrors() {
		return nil, nil, verr
	}

	project, err := uc.getProject(ctx, org, in.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	incType, err := catalogDefault(ctx, uc.repo.IncidentType(), org, project.ID, in.TypeID, "incident_type")
	if err != nil {
		return nil, nil, err
	}
	severity, err := catalogDefault(ctx, uc.repo.IncidentSeverity(), org, project.ID, in.SeverityID, "incident_severity")
	if err != nil {
		return nil, nil, err
	}
	priority, err := catalogDefault(ctx, uc.repo.IncidentPriority(), org, project.ID, in.PriorityID, "incident_priority")
	if err != nil {
		return nil, nil, err
	}

	visibility := in.Visibility.Normalize()
	if incType.Visibility == types.VisibilityRestricted {
		visibility = types.VisibilityRestricted
	}

	now := uc.now()
	var created *model.Incident
	if err := uc.repo.WithTx(ctx, org, func(ctx context.Context) error {
		name, err := uc.subjectName(ctx, org, types.SubjectKindIncident, project, incType.ID, incType.Slug())
		if err != nil {
			return err
		}
		created, err = uc.repo.Incident().Create(ctx, org, &model.Incident{
			ProjectID:   project.ID,
			Name:        name,
			Title:       in.Title,
			Description: in.Description,
			Status:      types.IncidentStatusActive,
			Visibility:  visibility,
			TypeID:      incType.ID,
			SeverityID:  severity.ID,
			PriorityID:  priority.ID,
			ReportedAt:  now,
			TagIDs:      in.TagIDs,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return goerr.Wrap(err, "failed to create incident", goerr.V("name", name))
		}
		return nil
	}); err != nil {
		return nil, nil, err
	}

	logging.From(ctx).Info("incident created", "incident", created.Name, "type", incType.Name, "priority", priority.Name)
	uc.metrics.SubjectTransition(string(types.SubjectKindIncident), "", string(created.Status))
	uc.logEvent(ctx, org, EventInput{
		Subject:     created.Ref(),
		Description: "Incident created",
		StartedAt:   now,
	})
	return created, priority, nil
}

// CreateIncident stores a new active incident with its reporter and
// commander, then creates its resources in the background.
func (uc *UseCases) CreateIncident(ctx context.Context, org string, in CreateIncidentInput) (*model.Incident, error) {
	created, priority, err := uc.newIncident(ctx, org, in)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithAttrs(ctx, "incident", created.Name)

	commander := in.Commander
	if commander == "" && in.CommanderServiceID != "" {
		commander = uc.resolveOncall(ctx, org, created.ProjectID, in.CommanderServiceID)
	}
	if commander == "" {
		commander = in.Reporter
	}
	if _, err := uc.AddParticipant(ctx, org, created.Ref(), AddParticipantInput{
		Email:   in.Reporter,
		Role:    types.ParticipantRoleReporter,
		AddedBy: in.Reporter,
		Reason:  "Reported the incident",
		Quiet:   true,
	}); err != nil {
		return nil, err
	}
	p, err := uc.AddParticipant(ctx, org, created.Ref(), AddParticipantInput{
		Email:     commander,
		Role:      types.ParticipantRoleIncidentCommander,
		ServiceID: in.CommanderServiceID,
		AddedBy:   in.Reporter,
		Reason:    "Assigned as incident commander",
		Quiet:     true,
	})
	if err != nil {
		return nil, err
	}
	if !p.HasActiveRole(types.ParticipantRoleIncidentCommander) {
		if _, err := uc.addRole(ctx, org, p, types.ParticipantRoleIncidentCommander); err != nil {
			return nil, err
		}
	}

	incidentID := created.ID
	uc.background(ctx, "incident.create_resources", func(ctx context.Context) error {
		if err := uc.CreateIncidentResources(ctx, org, incidentID, ResourceOptions{}); err != nil {
			return err
		}
		inc, err := uc.getIncident(ctx, org, incidentID)
		if err != nil {
			return err
		}
		if priority.PageCommander && in.CommanderServiceID != "" {
			uc.pageService(ctx, org, inc, in.CommanderServiceID)
		}
		uc.notifySubject(ctx, org, inc, "created")
		if err := uc.scheduleReminder(ctx, org, inc.Ref(), types.ReminderKindTacticalReport, commander, uc.tacticalReminderDue(ctx, org, inc)); err != nil {
			logging.From(ctx).Warn("failed to schedule tactical report reminder", "error", err)
		}
		return nil
	})

	return created, nil
}

// pageService pages an on-call service for the subject
func (uc *UseCases) pageService(ctx context.Context, org string, s model.Subject, serviceID string) {
	oncall, err := active[interfaces.OncallProvider](ctx, uc, org, s.GetProjectID(), types.ProviderTypeOncall)
	if err != nil || oncall == nil {
		return
	}
	req := model.PageRequest{
		Title:       s.GetName() + ": " + s.GetTitle(),
		Description: s.GetDescription(),
		Weblink:     uc.subjectURL(org, s),
		Source:      SourceDispatch,
		DedupKey:    s.GetName(),
	}
	if err := uc.call(ctx, oncall, "page", func() error {
		return oncall.Page(ctx, serviceID, req)
	}); err != nil {
		logging.From(ctx).Warn("failed to page service", "service_id", serviceID, "error", err)
		return
	}
	uc.logEvent(ctx, org, EventInput{
		Subject:     s.Ref(),
		Description: "Paged on-call service " + serviceID,
	})
}

// subjectURL links to the subject in the web UI
func (uc *UseCases) subjectURL(org string, s model.Subject) string {
	if uc.uiURL == "" {
		return ""
	}
	kind := "incidents"
	if s.Ref().Kind == types.SubjectKindCase {
		kind = "cases"
	}
	return fmt.Sprintf("%s/%s/%s/%s", strings.TrimRight(uc.uiURL, "/"), org, kind, s.GetName())
}

// UpdateIncidentInput carries the fields to change; nil fields are kept
type UpdateIncidentInput struct {
	Title       *string
	Description *string
	Resolution  *string
	Status      *types.IncidentStatus
	Visibility  *types.Visibility
	TypeID      int64
	SeverityID  int64
	PriorityID  int64
	TagIDs      []int64
	Actor       string
}

// UpdateIncident applies field changes, logs one field_updated event per
// changed field and runs the status transition when the status changed.
func (uc *UseCases) UpdateIncident(ctx context.Context, org string, id int64, in UpdateIncidentInput) (*model.Incident, error) {
	inc, err := uc.getIncident(ctx, org, id)
	if err != nil {
		return nil, err
	}

	var changes []string
	if in.Title != nil && *in.Title != inc.Title {
		inc.Title = *in.Title
		changes = append(changes, "title")
	}
	if in.Description != nil && *in.Description != inc.Description {
		inc.Description = *in.Description
		changes = append(changes, "description")
	}
	if in.Resolution != nil && *in.Resolution != inc.Resolution {
		inc.Resolution = *in.Resolution
		changes = append(changes, "resolution")
	}
	if in.Visibility != nil && in.Visibility.Normalize() != inc.Visibility {
		inc.Visibility = in.Visibility.Normalize()
		changes = append(changes, "visibility")
	}
	if in.TypeID != 0 && in.TypeID != inc.TypeID {
		if _, err := catalogDefault(ctx, uc.repo.IncidentType(), org, inc.ProjectID, in.TypeID, "incident_type"); err != nil {
			return nil, err
		}
		inc.TypeID = in.TypeID
		changes = append(changes, "type")
	}
	if in.SeverityID != 0 && in.SeverityID != inc.SeverityID {
		if _, err := catalogDefault(ctx, uc.repo.IncidentSeverity(), org, inc.ProjectID, in.SeverityID, "incident_severity"); err != nil {
			return nil, err
		}
		inc.SeverityID = in.SeverityID
		changes = append(changes, "severity")
	}
	if in.PriorityID != 0 && in.PriorityID != inc.PriorityID {
		if _, err := catalogDefault(ctx, uc.repo.IncidentPriority(), org, inc.ProjectID, in.PriorityID, "incident_priority"); err != nil {
			return nil, err
		}
		inc.PriorityID = in.PriorityID
		changes = append(changes, "priority")
	}
	if in.TagIDs != nil {
		inc.TagIDs = in.TagIDs
		changes = append(changes, "tags")
	}

	if len(changes) > 0 {
		inc.UpdatedAt = uc.now()
		if inc, err = uc.repo.Incident().Update(ctx, org, inc); err != nil {
			return nil, goerr.Wrap(err, "failed to update incident", goerr.V(model.IncidentIDKey, id))
		}
		for _, field := range changes {
			uc.logEvent(ctx, org, EventInput{
				Subject:     inc.Ref(),
				Description: fmt.Sprintf("Incident %s updated", field),
				Type:        types.EventTypeFieldUpdated,
				Owner:       in.Actor,
				Details:     map[string]any{"field": field},
			})
		}
	}

	if in.Status != nil && *in.Status != inc.Status {
		if inc, err = uc.TransitionIncident(ctx, org, id, *in.Status, in.Actor); err != nil {
			return nil, err
		}
	} else if len(changes) > 0 {
		incidentID := inc.ID
		uc.background(ctx, "incident.sync_resources", func(ctx context.Context) error {
			return uc.syncSubjectResources(ctx, org, model.IncidentRef(incidentID))
		})
	}
	return inc, nil
}

// syncSubjectResources pushes the current subject fields to its ticket,
// document and channel topic
func (uc *UseCases) syncSubjectResources(ctx context.Context, org string, ref model.SubjectRef) error {
	var plan *resourcePlan
	switch ref.Kind {
	case types.SubjectKindIncident:
		inc, err := uc.getIncident(ctx, org, ref.ID)
		if err != nil {
			return err
		}
		if plan, err = uc.incidentPlan(ctx, org, inc); err != nil {
			return err
		}
	default:
		c, err := uc.getCase(ctx, org, ref.ID)
		if err != nil {
			return err
		}
		if plan, _, err = uc.casePlan(ctx, org, c); err != nil {
			return err
		}
	}
	uc.updateTicket(ctx, plan)
	uc.updateDocument(ctx, plan)

	if plan.subject.IsClosed() || plan.bundle.ChannelID() == "" || plan.bundle.ThreadID() != "" {
		return nil
	}
	chat, err := uc.chat(ctx, org, plan.project.ID)
	if err != nil || chat == nil {
		return err
	}
	topic := uc.channelTopic(ctx, org, plan.subject, plan.commander)
	return uc.call(ctx, chat, "set_topic", func() error {
		return chat.SetTopic(ctx, plan.bundle.ChannelID(), topic)
	})
}

// GetIncident returns the incident with id
func (uc *UseCases) GetIncident(ctx context.Context, org string, id int64) (*model.Incident, error) {
	return uc.getIncident(ctx, org, id)
}

// GetIncidentByName returns the incident named name
func (uc *UseCases) GetIncidentByName(ctx context.Context, org, name string) (*model.Incident, error) {
	inc, err := uc.repo.Incident().GetByName(ctx, org, name)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get incident", goerr.V("name", name))
	}
	if inc == nil {
		return nil, goerr.Wrap(model.ErrNotFound, "incident not found", goerr.V("name", name))
	}
	return inc, nil
}

// ListIncidents returns incidents matching q
func (uc *UseCases) ListIncidents(ctx context.Context, org string, q model.IncidentQuery) ([]*model.Incident, error) {
	incidents, err := uc.repo.Incident().List(ctx, org, q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list incidents")
	}
	return incidents, nil
}

// DeleteIncident removes the incident resources, participants and the
// incident itself
func (uc *UseCases) DeleteIncident(ctx context.Context, org string, id int64) error {
	if err := uc.DeleteSubjectResources(ctx, org, model.IncidentRef(id)); err != nil {
		return err
	}
	if err := uc.repo.Participant().DeleteBySubject(ctx, org, model.IncidentRef(id)); err != nil {
		return goerr.Wrap(err, "failed to delete participants", goerr.V(model.IncidentIDKey, id))
	}
	if err := uc.repo.Incident().Delete(ctx, org, id); err != nil && !errors.Is(err, model.ErrNotFound) {
		return goerr.Wrap(err, "failed to delete incident", goerr.V(model.IncidentIDKey, id))
	}
	return nil
}
