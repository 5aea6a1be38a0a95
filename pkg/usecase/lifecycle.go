package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// incidentFlows lists, per (prev, next), the phases run in order. Pairs not
// listed are no-ops.
var incidentFlows = map[[2]types.IncidentStatus][]types.IncidentStatus{
	{types.IncidentStatusActive, types.IncidentStatusStable}: {types.IncidentStatusStable},
	{types.IncidentStatusClosed, types.IncidentStatusStable}: {types.IncidentStatusStable},
	{types.IncidentStatusActive, types.IncidentStatusClosed}: {types.IncidentStatusStable, types.IncidentStatusClosed},
	{types.IncidentStatusStable, types.IncidentStatusClosed}: {types.IncidentStatusClosed},
	{types.IncidentStatusClosed, types.IncidentStatusActive}: {types.IncidentStatusActive},
}

// incidentFields applies the timestamp changes of entering phase
func incidentFields(inc *model.Incident, phase types.IncidentStatus, now time.Time) {
	switch phase {
	case types.IncidentStatusStable:
		if inc.StableAt == nil {
			inc.StableAt = &now
		}
	case types.IncidentStatusClosed:
		if inc.ClosedAt == nil || (inc.ReactivatedAt != nil && inc.ClosedAt.Before(*inc.ReactivatedAt)) {
			inc.ClosedAt = &now
		}
	case types.IncidentStatusActive:
		inc.ReactivatedAt = &now
	}
}

// TransitionIncident moves the incident to next. The status and timestamps
// are committed first; provider side effects run afterwards and are safe to
// repeat.
func (uc *UseCases) TransitionIncident(ctx context.Context, org string, id int64, next types.IncidentStatus, actor string) (*model.Incident, error) {
	if !next.IsValid() {
		return nil, model.NewValidationError("status", "unknown incident status "+string(next))
	}
	ref := model.IncidentRef(id)
	release, err := uc.repo.Lock(ctx, org, ref.String())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to lock incident", goerr.V(model.IncidentIDKey, id))
	}

	inc, err := uc.getIncident(ctx, org, id)
	if err != nil {
		release()
		return nil, err
	}
	prev := inc.Status
	phases, ok := incidentFlows[[2]types.IncidentStatus{prev, next}]
	if !ok {
		release()
		return inc, nil
	}

	now := uc.now()
	for _, phase := range phases {
		incidentFields(inc, phase, now)
	}
	inc.Status = next
	inc.UpdatedAt = now
	err = uc.repo.WithTx(ctx, org, func(ctx context.Context) error {
		var err error
		if inc, err = uc.repo.Incident().Update(ctx, org, inc); err != nil {
			return goerr.Wrap(err, "failed to update incident status", goerr.V(model.IncidentIDKey, id))
		}
		return nil
	})
	release()
	if err != nil {
		return nil, err
	}

	ctx = logging.WithAttrs(ctx, "incident", inc.Name)
	logging.From(ctx).Info("incident status changed", "from", prev, "to", next)
	uc.metrics.SubjectTransition(string(types.SubjectKindIncident), string(prev), string(next))
	uc.logEvent(ctx, org, EventInput{
		Subject:     ref,
		Description: "Incident marked as " + next.Title(),
		Owner:       actor,
		Details:     map[string]any{"from": string(prev), "to": string(next)},
	})

	for _, phase := range phases {
		switch phase {
		case types.IncidentStatusStable:
			uc.onIncidentStable(ctx, org, inc)
		case types.IncidentStatusClosed:
			uc.onIncidentClosed(ctx, org, inc)
		case types.IncidentStatusActive:
			uc.onIncidentReactivated(ctx, org, inc)
		}
	}
	if err := uc.syncSubjectResources(ctx, org, ref); err != nil {
		logging.From(ctx).Warn("failed to sync resources", "error", err)
	}
	uc.notifySubject(ctx, org, inc, "status_changed")
	return inc, nil
}

func (uc *UseCases) onIncidentStable(ctx context.Context, org string, inc *model.Incident) {
	if err := uc.ensureReviewDocument(ctx, org, inc); err != nil {
		logging.From(ctx).Warn("failed to create review document", "error", err)
	}
	if commander, _ := uc.commander(ctx, org, inc.Ref()); commander != nil {
		if err := uc.scheduleReminder(ctx, org, inc.Ref(), types.ReminderKindReviewDocument, commander.Email, uc.now().Add(24*time.Hour)); err != nil {
			logging.From(ctx).Warn("failed to schedule review reminder", "error", err)
		}
	}
}

// ensureReviewDocument creates the post-incident review document once
func (uc *UseCases) ensureReviewDocument(ctx context.Context, org string, inc *model.Incident) error {
	bundle, err := uc.bundle(ctx, org, inc.Ref())
	if err != nil {
		return err
	}
	if bundle.Has(types.ResourceTypeReviewDocument) {
		return nil
	}
	plan, err := uc.incidentPlan(ctx, org, inc)
	if err != nil {
		return err
	}
	doc, err := active[interfaces.DocumentProvider](ctx, uc, org, inc.ProjectID, types.ProviderTypeDocument)
	if err != nil || doc == nil {
		return err
	}
	var templateID string
	if t, err := uc.repo.IncidentType().Get(ctx, org, inc.TypeID); err == nil && t != nil {
		templateID = t.ReviewTemplateID
	}
	parent := plan.project.DocumentFolderID
	if s := bundle.Get(types.ResourceTypeStorage); s != nil && parent == "" {
		parent = s.ResourceID
	}
	r, err := callValue(ctx, uc, doc, "create_from_template", func() (*model.Resource, error) {
		return doc.CreateFromTemplate(ctx, inc.Name+" - Post Incident Review", templateID, parent)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to create review document")
	}
	if err := uc.putResource(ctx, plan, types.ResourceTypeReviewDocument, r); err != nil {
		return err
	}

	chat, err := uc.chat(ctx, org, inc.ProjectID)
	if err == nil && chat != nil && bundle.ChannelID() != "" && r.Weblink != "" {
		uc.sendMessage(ctx, chat, bundle.ChannelID(), "",
			"The post incident review document has been created: "+r.Weblink, nil)
	}
	return nil
}

func (uc *UseCases) onIncidentClosed(ctx context.Context, org string, inc *model.Incident) {
	bundle, err := uc.bundle(ctx, org, inc.Ref())
	if err != nil {
		logging.From(ctx).Warn("failed to load resources", "error", err)
		return
	}

	participants, err := uc.repo.Participant().List(ctx, org, inc.Ref())
	if err != nil {
		logging.From(ctx).Warn("failed to list participants", "error", err)
	}
	uc.requestFeedback(ctx, org, inc, participants.Active())
	if commander, _ := uc.commander(ctx, org, inc.Ref()); commander != nil && bundle.Has(types.ResourceTypeReviewDocument) {
		if err := uc.scheduleReminder(ctx, org, inc.Ref(), types.ReminderKindReviewDocument, commander.Email, uc.now().Add(24*time.Hour)); err != nil {
			logging.From(ctx).Warn("failed to schedule review reminder", "error", err)
		}
	}

	uc.closeDocuments(ctx, org, inc, bundle)
	uc.archiveConversation(ctx, org, inc, bundle)

	if err := uc.inactivateParticipants(ctx, org, inc.Ref()); err != nil {
		logging.From(ctx).Warn("failed to inactivate participants", "error", err)
	}
}

// closeDocuments opens documents to the organization and marks them
// read-only as configured by the project. Restricted subjects stay private.
func (uc *UseCases) closeDocuments(ctx context.Context, org string, s model.Subject, bundle model.Bundle) {
	project, err := uc.getProject(ctx, org, s.GetProjectID())
	if err != nil {
		return
	}
	if !project.OpenDocumentsOnClose && !project.ReadOnlyOnClose {
		return
	}
	doc, err := active[interfaces.DocumentProvider](ctx, uc, org, s.GetProjectID(), types.ProviderTypeDocument)
	if err != nil || doc == nil {
		return
	}
	for _, t := range []types.ResourceType{types.ResourceTypeDocument, types.ResourceTypeReviewDocument} {
		r := bundle.Get(t)
		if r == nil {
			continue
		}
		if project.OpenDocumentsOnClose && !s.IsRestricted() {
			if err := uc.call(ctx, doc, "open_access", func() error { return doc.OpenAccess(ctx, r.ResourceID) }); err != nil {
				logging.From(ctx).Warn("failed to open document", "document", r.ResourceID, "error", err)
			}
		}
		if project.ReadOnlyOnClose {
			if err := uc.call(ctx, doc, "mark_read_only", func() error { return doc.MarkReadOnly(ctx, r.ResourceID) }); err != nil {
				logging.From(ctx).Warn("failed to mark document read-only", "document", r.ResourceID, "error", err)
			}
		}
	}
}

func (uc *UseCases) archiveConversation(ctx context.Context, org string, s model.Subject, bundle model.Bundle) {
	if bundle.ChannelID() == "" || bundle.ThreadID() != "" {
		return
	}
	chat, err := uc.chat(ctx, org, s.GetProjectID())
	if err != nil || chat == nil {
		return
	}
	uc.sendMessage(ctx, chat, bundle.ChannelID(), "", s.GetName()+" has been closed. This channel will be archived.", nil)
	if err := uc.call(ctx, chat, "archive", func() error {
		return chat.ArchiveConversation(ctx, bundle.ChannelID())
	}); err != nil {
		logging.From(ctx).Warn("failed to archive conversation", "channel_id", bundle.ChannelID(), "error", err)
	}
}

func (uc *UseCases) unarchiveConversation(ctx context.Context, org string, s model.Subject, bundle model.Bundle) {
	if bundle.ChannelID() == "" || bundle.ThreadID() != "" {
		return
	}
	chat, err := uc.chat(ctx, org, s.GetProjectID())
	if err != nil || chat == nil {
		return
	}
	if err := uc.call(ctx, chat, "unarchive", func() error {
		return chat.UnarchiveConversation(ctx, bundle.ChannelID())
	}); err != nil {
		logging.From(ctx).Warn("failed to unarchive conversation", "channel_id", bundle.ChannelID(), "error", err)
	}
}

func (uc *UseCases) onIncidentReactivated(ctx context.Context, org string, inc *model.Incident) {
	bundle, err := uc.bundle(ctx, org, inc.Ref())
	if err != nil {
		logging.From(ctx).Warn("failed to load resources", "error", err)
		return
	}
	uc.unarchiveConversation(ctx, org, inc, bundle)

	revived, err := uc.reactivateParticipants(ctx, org, inc.Ref())
	if err != nil {
		logging.From(ctx).Warn("failed to reactivate participants", "error", err)
	}
	uc.addToTacticalGroup(ctx, org, inc.ProjectID, bundle, revived.Emails())
	uc.welcomeParticipants(ctx, org, inc, bundle, revived, false)

	if commander, _ := uc.commander(ctx, org, inc.Ref()); commander != nil {
		if err := uc.scheduleReminder(ctx, org, inc.Ref(), types.ReminderKindTacticalReport, commander.Email, uc.tacticalReminderDue(ctx, org, inc)); err != nil {
			logging.From(ctx).Warn("failed to schedule tactical report reminder", "error", err)
		}
	}
}

// requestFeedback asks participants to rate the response
func (uc *UseCases) requestFeedback(ctx context.Context, org string, inc *model.Incident, participants model.Participants) {
	if len(participants) == 0 {
		return
	}
	chat, err := uc.chat(ctx, org, inc.ProjectID)
	if err != nil || chat == nil {
		return
	}
	text := "How did the response to " + inc.Name + " go?"
	blocks := []slack.Block{
		markdownSection(text + "\nYour feedback helps us improve our incident response."),
		slack.NewActionBlock("",
			slack.NewButtonBlockElement(ActionFeedbackOpen, encodeActionValue(org, inc.Ref()),
				slack.NewTextBlockObject(slack.PlainTextType, "Provide feedback", false, false)),
		),
	}
	for _, p := range participants {
		if err := uc.call(ctx, chat, "send_direct", func() error {
			return chat.SendDirect(ctx, p.Email, text, blocks)
		}); err != nil {
			logging.From(ctx).Warn("failed to send feedback request", "email", p.Email, "error", err)
		}
	}
}

// caseFlows lists, per (prev, next), the phases run in order
var caseFlows = map[[2]types.CaseStatus][]types.CaseStatus{
	{types.CaseStatusNew, types.CaseStatusTriage}:       {types.CaseStatusTriage},
	{types.CaseStatusNew, types.CaseStatusClosed}:       {types.CaseStatusClosed},
	{types.CaseStatusTriage, types.CaseStatusClosed}:    {types.CaseStatusClosed},
	{types.CaseStatusEscalated, types.CaseStatusClosed}: {types.CaseStatusClosed},
	{types.CaseStatusClosed, types.CaseStatusNew}:       {types.CaseStatusNew},
	{types.CaseStatusClosed, types.CaseStatusTriage}:    {types.CaseStatusNew, types.CaseStatusTriage},
}

func caseFields(c *model.Case, phase types.CaseStatus, now time.Time) {
	switch phase {
	case types.CaseStatusTriage:
		if c.TriageAt == nil {
			c.TriageAt = &now
		}
	case types.CaseStatusEscalated:
		if c.EscalatedAt == nil {
			c.EscalatedAt = &now
		}
	case types.CaseStatusClosed:
		if c.ClosedAt == nil || (c.ReopenedAt != nil && c.ClosedAt.Before(*c.ReopenedAt)) {
			c.ClosedAt = &now
		}
	case types.CaseStatusNew:
		c.ReopenedAt = &now
	}
}

// TransitionCase moves the case to next. Escalation runs the case to
// incident escalation with the defaults of the case type.
func (uc *UseCases) TransitionCase(ctx context.Context, org string, id int64, next types.CaseStatus, actor string) (*model.Case, error) {
	if !next.IsValid() {
		return nil, model.NewValidationError("status", "unknown case status "+string(next))
	}
	if next == types.CaseStatusEscalated {
		c, _, err := uc.EscalateCase(ctx, org, id, EscalateCaseInput{Actor: actor})
		return c, err
	}

	ref := model.CaseRef(id)
	release, err := uc.repo.Lock(ctx, org, ref.String())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to lock case", goerr.V(model.CaseIDKey, id))
	}
	c, err := uc.getCase(ctx, org, id)
	if err != nil {
		release()
		return nil, err
	}
	prev := c.Status
	phases, ok := caseFlows[[2]types.CaseStatus{prev, next}]
	if !ok {
		release()
		return c, nil
	}

	now := uc.now()
	for _, phase := range phases {
		caseFields(c, phase, now)
	}
	c.Status = next
	c.UpdatedAt = now
	c, err = uc.repo.Case().Update(ctx, org, c)
	release()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update case status", goerr.V(model.CaseIDKey, id))
	}

	ctx = logging.WithAttrs(ctx, "case", c.Name)
	logging.From(ctx).Info("case status changed", "from", prev, "to", next)
	uc.metrics.SubjectTransition(string(types.SubjectKindCase), string(prev), string(next))
	uc.logEvent(ctx, org, EventInput{
		Subject:     ref,
		Description: "Case marked as " + next.Title(),
		Owner:       actor,
		Details:     map[string]any{"from": string(prev), "to": string(next)},
	})

	bundle, err := uc.bundle(ctx, org, ref)
	if err != nil {
		return nil, err
	}
	for _, phase := range phases {
		switch phase {
		case types.CaseStatusClosed:
			uc.closeDocuments(ctx, org, c, bundle)
			if c.DedicatedChannel {
				uc.archiveConversation(ctx, org, c, bundle)
			}
		case types.CaseStatusNew:
			if c.DedicatedChannel {
				uc.unarchiveConversation(ctx, org, c, bundle)
			}
			revived, err := uc.reactivateParticipants(ctx, org, ref)
			if err != nil {
				logging.From(ctx).Warn("failed to reactivate participants", "error", err)
			}
			uc.welcomeParticipants(ctx, org, c, bundle, revived, false)
		}
	}
	if err := uc.syncSubjectResources(ctx, org, ref); err != nil {
		logging.From(ctx).Warn("failed to sync resources", "error", err)
	}
	return c, nil
}
