package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// ResourceOptions tunes resource creation
type ResourceOptions struct {
	// Quiet skips the welcome messages and the participant announcement
	Quiet bool
}

// resourcePlan carries what the creation steps of one subject need
type resourcePlan struct {
	org     string
	subject model.Subject
	project *model.Project
	bundle  model.Bundle

	kindName     string
	priorityName string
	commander    string
	reporter     string
	labels       []string
	templateID   string
	description  string

	// conversation
	dedicated bool
	target    string
}

func (p *resourcePlan) participantEmails(ctx context.Context, uc *UseCases) []string {
	participants, err := uc.repo.Participant().List(ctx, p.org, p.subject.Ref())
	if err != nil {
		logging.From(ctx).Warn("failed to list participants", "error", err)
		return nil
	}
	return participants.Active().Emails()
}

// members returns the group emails of the bundle or, without groups, the
// participant emails
func (p *resourcePlan) members(ctx context.Context, uc *UseCases) []string {
	if emails := p.bundle.GroupEmails(); len(emails) > 0 {
		return emails
	}
	return p.participantEmails(ctx, uc)
}

func (uc *UseCases) putResource(ctx context.Context, plan *resourcePlan, t types.ResourceType, r *model.Resource) error {
	r.Subject = plan.subject.Ref()
	r.Type = t
	r.CreatedAt = uc.now()
	saved, err := uc.repo.Resource().Put(ctx, plan.org, r)
	if err != nil {
		return goerr.Wrap(err, "failed to save resource",
			goerr.V(model.SubjectKey, plan.subject.Ref().String()), goerr.V("type", t))
	}
	plan.bundle[t] = saved
	uc.logEvent(ctx, plan.org, EventInput{
		Subject:     plan.subject.Ref(),
		Description: fmt.Sprintf("%s created", resourceTitle(t)),
	})
	return nil
}

func resourceTitle(t types.ResourceType) string {
	switch t {
	case types.ResourceTypeTicket:
		return "Ticket"
	case types.ResourceTypeTacticalGroup:
		return "Tactical group"
	case types.ResourceTypeNotificationsGroup:
		return "Notifications group"
	case types.ResourceTypeStorage:
		return "Storage folder"
	case types.ResourceTypeDocument:
		return "Document"
	case types.ResourceTypeReviewDocument:
		return "Review document"
	case types.ResourceTypeConference:
		return "Conference"
	case types.ResourceTypeConversation:
		return "Conversation"
	}
	return string(t)
}

// ensureTicket creates the ticket. A failing ticket provider aborts the
// creation flow.
func (uc *UseCases) ensureTicket(ctx context.Context, plan *resourcePlan) error {
	if plan.bundle.Has(types.ResourceTypeTicket) {
		return nil
	}
	ticket, err := active[interfaces.TicketProvider](ctx, uc, plan.org, plan.project.ID, types.ProviderTypeTicket)
	if err != nil {
		return err
	}
	if ticket == nil {
		logging.From(ctx).Debug("no ticket provider configured", "subject", plan.subject.Ref().String())
		return nil
	}

	visibility := "open"
	if plan.subject.IsRestricted() {
		visibility = "restricted"
	}
	r, err := callValue(ctx, uc, ticket, "create", func() (*model.Resource, error) {
		return ticket.Create(ctx, model.TicketRequest{
			Subject:     plan.subject.Ref(),
			Name:        plan.subject.GetName(),
			Title:       plan.subject.GetTitle(),
			Description: plan.subject.GetDescription(),
			Kind:        plan.kindName,
			Priority:    plan.priorityName,
			Commander:   plan.commander,
			Reporter:    plan.reporter,
			Labels:      plan.labels,
			Visibility:  visibility,
		})
	})
	if err != nil {
		return goerr.Wrap(err, "failed to create ticket", goerr.V(model.SubjectKey, plan.subject.Ref().String()))
	}
	return uc.putResource(ctx, plan, types.ResourceTypeTicket, r)
}

func (uc *UseCases) ensureGroup(ctx context.Context, plan *resourcePlan, t types.ResourceType) error {
	if plan.bundle.Has(t) {
		return nil
	}
	group, err := active[interfaces.GroupProvider](ctx, uc, plan.org, plan.project.ID, types.ProviderTypeGroup)
	if err != nil || group == nil {
		return err
	}

	name, desc := plan.subject.GetName(), "Group for tactical discussions of "+plan.subject.GetName()
	members := plan.participantEmails(ctx, uc)
	if t == types.ResourceTypeNotificationsGroup {
		name += "-notifications"
		desc = "Group for notifications of " + plan.subject.GetName()
		members = nil
	}
	r, err := callValue(ctx, uc, group, "create", func() (*model.Resource, error) {
		return group.Create(ctx, name, desc, members)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to create group", goerr.V("name", name))
	}
	return uc.putResource(ctx, plan, t, r)
}

func (uc *UseCases) ensureStorage(ctx context.Context, plan *resourcePlan) error {
	if plan.bundle.Has(types.ResourceTypeStorage) {
		return nil
	}
	storage, err := active[interfaces.StorageProvider](ctx, uc, plan.org, plan.project.ID, types.ProviderTypeStorage)
	if err != nil || storage == nil {
		return err
	}
	members := plan.members(ctx, uc)
	r, err := callValue(ctx, uc, storage, "create_folder", func() (*model.Resource, error) {
		return storage.CreateFolder(ctx, plan.subject.GetName(), plan.project.StorageFolderID, members)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to create storage folder")
	}
	return uc.putResource(ctx, plan, types.ResourceTypeStorage, r)
}

func (uc *UseCases) ensureDocument(ctx context.Context, plan *resourcePlan) error {
	if plan.bundle.Has(types.ResourceTypeDocument) {
		return nil
	}
	doc, err := active[interfaces.DocumentProvider](ctx, uc, plan.org, plan.project.ID, types.ProviderTypeDocument)
	if err != nil || doc == nil {
		return err
	}
	parent := plan.project.DocumentFolderID
	if s := plan.bundle.Get(types.ResourceTypeStorage); s != nil && parent == "" {
		parent = s.ResourceID
	}
	title := fmt.Sprintf("%s - %s", plan.subject.GetName(), plan.subject.GetTitle())
	r, err := callValue(ctx, uc, doc, "create_from_template", func() (*model.Resource, error) {
		return doc.CreateFromTemplate(ctx, title, plan.templateID, parent)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to create document")
	}
	return uc.putResource(ctx, plan, types.ResourceTypeDocument, r)
}

func (uc *UseCases) ensureConference(ctx context.Context, plan *resourcePlan) error {
	if plan.bundle.Has(types.ResourceTypeConference) {
		return nil
	}
	conf, err := active[interfaces.ConferenceProvider](ctx, uc, plan.org, plan.project.ID, types.ProviderTypeConference)
	if err != nil || conf == nil {
		return err
	}
	invitees := plan.members(ctx, uc)
	r, err := callValue(ctx, uc, conf, "create", func() (*model.Resource, error) {
		return conf.Create(ctx, plan.subject.GetName(), invitees)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to create conference")
	}
	return uc.putResource(ctx, plan, types.ResourceTypeConference, r)
}

// ensureConversation creates a dedicated channel, or a thread on the target
// channel for cases without one
func (uc *UseCases) ensureConversation(ctx context.Context, plan *resourcePlan) error {
	if plan.bundle.Has(types.ResourceTypeConversation) {
		return nil
	}
	chat, err := uc.chat(ctx, plan.org, plan.project.ID)
	if err != nil || chat == nil {
		return err
	}

	if plan.dedicated {
		r, err := callValue(ctx, uc, chat, "create_conversation", func() (*model.Resource, error) {
			return chat.CreateConversation(ctx, plan.subject.GetName(), plan.subject.IsRestricted())
		})
		if err != nil {
			return goerr.Wrap(err, "failed to create conversation")
		}
		return uc.putResource(ctx, plan, types.ResourceTypeConversation, r)
	}

	if plan.target == "" {
		logging.From(ctx).Warn("no conversation target for case thread", "subject", plan.subject.Ref().String())
		return nil
	}
	ts, err := callValue(ctx, uc, chat, "send_message", func() (string, error) {
		return chat.SendMessage(ctx, plan.target, plan.subject.GetTitle(), caseThreadBlocks(plan.org, plan.subject), model.ChatMessageOptions{})
	})
	if err != nil {
		return goerr.Wrap(err, "failed to post case thread", goerr.V(model.ChannelIDKey, plan.target))
	}
	return uc.putResource(ctx, plan, types.ResourceTypeConversation, &model.Resource{
		ResourceID: plan.target + ":" + ts,
		ChannelID:  plan.target,
		ThreadID:   ts,
	})
}

func (uc *UseCases) updateTicket(ctx context.Context, plan *resourcePlan) {
	r := plan.bundle.Get(types.ResourceTypeTicket)
	if r == nil {
		return
	}
	ticket, err := active[interfaces.TicketProvider](ctx, uc, plan.org, plan.project.ID, types.ProviderTypeTicket)
	if err != nil || ticket == nil {
		return
	}
	upd := model.TicketUpdate{
		Name:        plan.subject.GetName(),
		Title:       plan.subject.GetTitle(),
		Description: plan.subject.GetDescription(),
		Status:      plan.subject.GetStatus(),
		Kind:        plan.kindName,
		Priority:    plan.priorityName,
		Commander:   plan.commander,
		Reporter:    plan.reporter,
		Labels:      plan.labels,
		Links:       map[string]string{},
	}
	if inc, ok := plan.subject.(*model.Incident); ok {
		upd.Cost = inc.Cost
		upd.Resolution = inc.Resolution
	}
	if c, ok := plan.subject.(*model.Case); ok {
		upd.Resolution = c.Resolution
	}
	for t, res := range plan.bundle {
		if t != types.ResourceTypeTicket && res.Weblink != "" {
			upd.Links[string(t)] = res.Weblink
		}
	}
	if err := uc.call(ctx, ticket, "update", func() error {
		return ticket.Update(ctx, r.ResourceID, upd)
	}); err != nil {
		logging.From(ctx).Warn("failed to update ticket", "ticket", r.ResourceID, "error", err)
	}
}

func (uc *UseCases) updateDocument(ctx context.Context, plan *resourcePlan) {
	r := plan.bundle.Get(types.ResourceTypeDocument)
	if r == nil {
		return
	}
	doc, err := active[interfaces.DocumentProvider](ctx, uc, plan.org, plan.project.ID, types.ProviderTypeDocument)
	if err != nil || doc == nil {
		return
	}
	values := map[string]string{
		"name":        plan.subject.GetName(),
		"title":       plan.subject.GetTitle(),
		"description": plan.subject.GetDescription(),
		"status":      plan.subject.GetStatus(),
		"type":        plan.kindName,
		"priority":    plan.priorityName,
		"commander":   plan.commander,
		"reporter":    plan.reporter,
	}
	for t, res := range plan.bundle {
		values[string(t)+"_weblink"] = res.Weblink
	}
	if err := uc.call(ctx, doc, "update", func() error {
		return doc.Update(ctx, r.ResourceID, values)
	}); err != nil {
		logging.From(ctx).Warn("failed to update document", "document", r.ResourceID, "error", err)
	}
}

// setupConversation sets topic, description and bookmarks of a dedicated
// channel
func (uc *UseCases) setupConversation(ctx context.Context, plan *resourcePlan, bookmarks []types.ResourceType) {
	if plan.bundle.ChannelID() == "" || plan.bundle.ThreadID() != "" {
		return
	}
	chat, err := uc.chat(ctx, plan.org, plan.project.ID)
	if err != nil || chat == nil {
		return
	}
	channelID := plan.bundle.ChannelID()

	topic := uc.channelTopic(ctx, plan.org, plan.subject, plan.commander)
	if err := uc.call(ctx, chat, "set_topic", func() error {
		return chat.SetTopic(ctx, channelID, topic)
	}); err != nil {
		logging.From(ctx).Warn("failed to set topic", "error", err)
	}
	if plan.description != "" {
		if err := uc.call(ctx, chat, "set_description", func() error {
			return chat.SetDescription(ctx, channelID, plan.description)
		}); err != nil {
			logging.From(ctx).Warn("failed to set description", "error", err)
		}
	}
	for _, t := range bookmarks {
		r := plan.bundle.Get(t)
		if r == nil || r.Weblink == "" {
			continue
		}
		if err := uc.call(ctx, chat, "add_bookmark", func() error {
			return chat.AddBookmark(ctx, channelID, resourceTitle(t), r.Weblink)
		}); err != nil {
			logging.From(ctx).Warn("failed to add bookmark", "type", t, "error", err)
		}
	}
}

// resolveParticipants asks the participant resolver for suggestions
func (uc *UseCases) resolveParticipants(ctx context.Context, plan *resourcePlan) []*model.ResolvedParticipant {
	resolver, err := active[interfaces.ParticipantResolver](ctx, uc, plan.org, plan.project.ID, types.ProviderTypeParticipantResolver)
	if err != nil || resolver == nil {
		return nil
	}
	attrs := uc.subjectAttributes(ctx, plan.org, plan.subject)
	resolved, err := callValue(ctx, uc, resolver, "resolve", func() ([]*model.ResolvedParticipant, error) {
		return resolver.Resolve(ctx, attrs)
	})
	if err != nil {
		logging.From(ctx).Warn("failed to resolve participants", "error", err)
		return nil
	}
	return resolved
}

// addResolved adds resolver suggestions; on-call services resolve to their
// current on-call person
func (uc *UseCases) addResolved(ctx context.Context, plan *resourcePlan, resolved []*model.ResolvedParticipant, role types.ParticipantRole, quiet bool) {
	for _, rp := range resolved {
		email := rp.Email
		if email == "" && rp.ServiceID != "" {
			email = uc.resolveOncall(ctx, plan.org, plan.project.ID, rp.ServiceID)
		}
		if email == "" {
			continue
		}
		if _, err := uc.AddParticipant(ctx, plan.org, plan.subject.Ref(), AddParticipantInput{
			Email:     email,
			Role:      role,
			ServiceID: rp.ServiceID,
			AddedBy:   "Dispatch",
			Reason:    rp.Reason,
			Quiet:     quiet,
		}); err != nil {
			logging.From(ctx).Warn("failed to add resolved participant", "email", email, "error", err)
		}
	}
}

func (uc *UseCases) resolveOncall(ctx context.Context, org string, projectID int64, serviceID string) string {
	oncall, err := active[interfaces.OncallProvider](ctx, uc, org, projectID, types.ProviderTypeOncall)
	if err != nil || oncall == nil {
		return ""
	}
	email, err := callValue(ctx, uc, oncall, "resolve_oncall", func() (string, error) {
		return oncall.ResolveOncall(ctx, serviceID)
	})
	if err != nil {
		logging.From(ctx).Warn("failed to resolve on-call", "service_id", serviceID, "error", err)
		return ""
	}
	return email
}

// welcomeInitial invites and welcomes the participants present before the
// resources existed and announces them in one message
func (uc *UseCases) welcomeInitial(ctx context.Context, plan *resourcePlan, announce bool) {
	participants, err := uc.repo.Participant().List(ctx, plan.org, plan.subject.Ref())
	if err != nil {
		logging.From(ctx).Warn("failed to list participants", "error", err)
		return
	}
	initial := participants.Active()
	uc.addToTacticalGroup(ctx, plan.org, plan.project.ID, plan.bundle, initial.Emails())
	uc.welcomeParticipants(ctx, plan.org, plan.subject, plan.bundle, initial, announce)
}

func (uc *UseCases) incidentPlan(ctx context.Context, org string, inc *model.Incident) (*resourcePlan, error) {
	project, err := uc.getProject(ctx, org, inc.ProjectID)
	if err != nil {
		return nil, err
	}
	bundle, err := uc.bundle(ctx, org, inc.Ref())
	if err != nil {
		return nil, err
	}
	plan := &resourcePlan{org: org, subject: inc, project: project, bundle: bundle, dedicated: true}

	if t, err := uc.repo.IncidentType().Get(ctx, org, inc.TypeID); err == nil && t != nil {
		plan.kindName = t.Name
		plan.templateID = t.DocumentTemplateID
		plan.labels = t.TicketLabels
		plan.description = t.ChannelDescription
	}
	if p, err := uc.repo.IncidentPriority().Get(ctx, org, inc.PriorityID); err == nil && p != nil {
		plan.priorityName = p.Name
	}
	if plan.description == "" {
		plan.description = inc.Title
	}
	plan.commander, plan.reporter = uc.roleEmails(ctx, org, inc.Ref(), types.ParticipantRoleIncidentCommander)
	return plan, nil
}

func (uc *UseCases) casePlan(ctx context.Context, org string, c *model.Case) (*resourcePlan, *model.CaseType, error) {
	project, err := uc.getProject(ctx, org, c.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	bundle, err := uc.bundle(ctx, org, c.Ref())
	if err != nil {
		return nil, nil, err
	}
	plan := &resourcePlan{org: org, subject: c, project: project, bundle: bundle, dedicated: c.DedicatedChannel, description: c.Title}

	caseType, err := uc.repo.CaseType().Get(ctx, org, c.TypeID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, nil, goerr.Wrap(err, "failed to get case type")
	}
	if caseType != nil {
		plan.kindName = caseType.Name
		plan.templateID = caseType.CaseTemplateID
		plan.target = caseType.ConversationTarget
	}
	if p, err := uc.repo.CasePriority().Get(ctx, org, c.PriorityID); err == nil && p != nil {
		plan.priorityName = p.Name
	}
	plan.commander, plan.reporter = uc.roleEmails(ctx, org, c.Ref(), types.ParticipantRoleAssignee)
	return plan, caseType, nil
}

// roleEmails returns the emails of the active commander role holder and the
// reporter
func (uc *UseCases) roleEmails(ctx context.Context, org string, ref model.SubjectRef, commanderRole types.ParticipantRole) (commander, reporter string) {
	participants, err := uc.repo.Participant().List(ctx, org, ref)
	if err != nil {
		return "", ""
	}
	if found := participants.WithActiveRole(commanderRole); len(found) > 0 {
		commander = found[0].Email
	}
	if found := participants.WithActiveRole(types.ParticipantRoleReporter); len(found) > 0 {
		reporter = found[0].Email
	}
	return commander, reporter
}

// CreateIncidentResources creates the missing resources of an incident in
// order and welcomes its participants. It is safe to run again after a
// partial failure.
func (uc *UseCases) CreateIncidentResources(ctx context.Context, org string, incidentID int64, opts ResourceOptions) error {
	inc, err := uc.getIncident(ctx, org, incidentID)
	if err != nil {
		return err
	}
	ctx = logging.WithAttrs(ctx, "incident", inc.Name)
	plan, err := uc.incidentPlan(ctx, org, inc)
	if err != nil {
		return err
	}

	if err := uc.ensureTicket(ctx, plan); err != nil {
		return err
	}
	resolved := uc.resolveParticipants(ctx, plan)

	steps := []func(context.Context, *resourcePlan) error{
		func(ctx context.Context, p *resourcePlan) error {
			return uc.ensureGroup(ctx, p, types.ResourceTypeTacticalGroup)
		},
		func(ctx context.Context, p *resourcePlan) error {
			return uc.ensureGroup(ctx, p, types.ResourceTypeNotificationsGroup)
		},
		uc.ensureStorage,
		uc.ensureDocument,
		uc.ensureConference,
		uc.ensureConversation,
	}
	for _, step := range steps {
		if err := step(ctx, plan); err != nil {
			logging.From(ctx).Error("failed to create incident resource", "error", err)
		}
	}

	uc.updateTicket(ctx, plan)
	uc.updateDocument(ctx, plan)
	uc.setupConversation(ctx, plan, []types.ResourceType{
		types.ResourceTypeDocument,
		types.ResourceTypeTicket,
		types.ResourceTypeConference,
		types.ResourceTypeStorage,
	})

	if !opts.Quiet {
		uc.welcomeInitial(ctx, plan, true)
	}
	uc.addResolved(ctx, plan, resolved, types.ParticipantRoleObserver, opts.Quiet)
	return nil
}

// CreateCaseResources creates the missing resources of a case
func (uc *UseCases) CreateCaseResources(ctx context.Context, org string, caseID int64, opts ResourceOptions) error {
	c, err := uc.getCase(ctx, org, caseID)
	if err != nil {
		return err
	}
	ctx = logging.WithAttrs(ctx, "case", c.Name)
	plan, caseType, err := uc.casePlan(ctx, org, c)
	if err != nil {
		return err
	}

	if err := uc.ensureTicket(ctx, plan); err != nil {
		return err
	}
	resolved := uc.resolveParticipants(ctx, plan)

	if caseType != nil && caseType.CreateAllResources {
		for _, step := range []func(context.Context, *resourcePlan) error{
			func(ctx context.Context, p *resourcePlan) error {
				return uc.ensureGroup(ctx, p, types.ResourceTypeTacticalGroup)
			},
			uc.ensureStorage,
			uc.ensureDocument,
		} {
			if err := step(ctx, plan); err != nil {
				logging.From(ctx).Error("failed to create case resource", "error", err)
			}
		}
		uc.updateDocument(ctx, plan)
	}

	if err := uc.ensureConversation(ctx, plan); err != nil {
		logging.From(ctx).Error("failed to create case conversation", "error", err)
	}

	uc.addResolved(ctx, plan, resolved, types.ParticipantRoleObserver, true)
	if !opts.Quiet {
		uc.welcomeInitial(ctx, plan, plan.dedicated)
	}

	uc.setupConversation(ctx, plan, []types.ResourceType{
		types.ResourceTypeDocument,
		types.ResourceTypeTicket,
		types.ResourceTypeStorage,
	})
	uc.updateTicket(ctx, plan)
	return nil
}

// DeleteSubjectResources removes the resources of a subject in reverse
// creation order. Missing resources are skipped.
func (uc *UseCases) DeleteSubjectResources(ctx context.Context, org string, ref model.SubjectRef) error {
	subject, err := uc.Subject(ctx, org, ref)
	if err != nil {
		return err
	}
	bundle, err := uc.bundle(ctx, org, ref)
	if err != nil {
		return err
	}
	projectID := subject.GetProjectID()

	order := types.AllResourceTypes()
	slices.Reverse(order)
	for _, t := range order {
		r := bundle.Get(t)
		if r == nil {
			continue
		}
		if err := uc.deleteResource(ctx, org, projectID, r); err != nil && !errors.Is(err, model.ErrNotFound) {
			logging.From(ctx).Warn("failed to delete resource", "type", t, "resource_id", r.ResourceID, "error", err)
		}
		if err := uc.repo.Resource().Delete(ctx, org, ref, t); err != nil {
			return goerr.Wrap(err, "failed to delete resource record", goerr.V("type", t))
		}
	}
	return nil
}

func (uc *UseCases) deleteResource(ctx context.Context, org string, projectID int64, r *model.Resource) error {
	switch r.Type {
	case types.ResourceTypeConversation:
		if r.ThreadID != "" {
			return nil
		}
		chat, err := uc.chat(ctx, org, projectID)
		if err != nil || chat == nil {
			return err
		}
		return uc.call(ctx, chat, "archive", func() error { return chat.ArchiveConversation(ctx, r.ChannelID) })
	case types.ResourceTypeDocument, types.ResourceTypeReviewDocument:
		doc, err := active[interfaces.DocumentProvider](ctx, uc, org, projectID, types.ProviderTypeDocument)
		if err != nil || doc == nil {
			return err
		}
		return uc.call(ctx, doc, "delete", func() error { return doc.Delete(ctx, r.ResourceID) })
	case types.ResourceTypeConference:
		conf, err := active[interfaces.ConferenceProvider](ctx, uc, org, projectID, types.ProviderTypeConference)
		if err != nil || conf == nil {
			return err
		}
		return uc.call(ctx, conf, "delete", func() error { return conf.Delete(ctx, r.ResourceID) })
	case types.ResourceTypeStorage:
		storage, err := active[interfaces.StorageProvider](ctx, uc, org, projectID, types.ProviderTypeStorage)
		if err != nil || storage == nil {
			return err
		}
		return uc.call(ctx, storage, "delete", func() error { return storage.Delete(ctx, r.ResourceID) })
	case types.ResourceTypeTacticalGroup, types.ResourceTypeNotificationsGroup:
		group, err := active[interfaces.GroupProvider](ctx, uc, org, projectID, types.ProviderTypeGroup)
		if err != nil || group == nil {
			return err
		}
		return uc.call(ctx, group, "delete", func() error { return group.Delete(ctx, r.Email) })
	case types.ResourceTypeTicket:
		ticket, err := active[interfaces.TicketProvider](ctx, uc, org, projectID, types.ProviderTypeTicket)
		if err != nil || ticket == nil {
			return err
		}
		return uc.call(ctx, ticket, "delete", func() error { return ticket.Delete(ctx, r.ResourceID) })
	}
	return nil
}
