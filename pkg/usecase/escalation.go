package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// EscalateCaseInput selects the incident classification. Zero ids fall back
// to the case type defaults, then to the project defaults.
type EscalateCaseInput struct {
	IncidentTypeID     int64
	IncidentPriorityID int64
	IncidentSeverityID int64
	Title              string
	Description        string
	Actor              string
}

// EscalateCase escalates a case into a new incident. A dedicated case
// channel is kept and renamed to the incident name; case participants join
// the incident with their mapped roles.
func (uc *UseCases) EscalateCase(ctx context.Context, org string, caseID int64, in EscalateCaseInput) (*model.Case, *model.Incident, error) {
	ref := model.CaseRef(caseID)
	release, err := uc.repo.Lock(ctx, org, ref.String())
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to lock case", goerr.V(model.CaseIDKey, caseID))
	}

	c, err := uc.getCase(ctx, org, caseID)
	if err != nil {
		release()
		return nil, nil, err
	}
	prev := c.Status
	if prev != types.CaseStatusNew && prev != types.CaseStatusTriage {
		release()
		logging.From(ctx).Info("case not escalated", "case", c.Name, "status", prev)
		return c, nil, nil
	}

	now := uc.now()
	if prev == types.CaseStatusNew {
		caseFields(c, types.CaseStatusTriage, now)
	}
	caseFields(c, types.CaseStatusEscalated, now)
	c.Status = types.CaseStatusEscalated
	c.UpdatedAt = now
	c, err = uc.repo.Case().Update(ctx, org, c)
	release()
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to update case status", goerr.V(model.CaseIDKey, caseID))
	}
	ctx = logging.WithAttrs(ctx, "case", c.Name)
	uc.metrics.SubjectTransition(string(types.SubjectKindCase), string(prev), string(c.Status))

	if in.IncidentTypeID == 0 || in.IncidentPriorityID == 0 {
		if ct, err := uc.repo.CaseType().Get(ctx, org, c.TypeID); err == nil && ct != nil {
			if in.IncidentTypeID == 0 {
				in.IncidentTypeID = ct.IncidentTypeID
			}
			if in.IncidentPriorityID == 0 {
				in.IncidentPriorityID = ct.IncidentPriorityID
			}
		}
	}
	if in.Title == "" {
		in.Title = c.Title
	}
	if in.Description == "" {
		in.Description = c.Description
	}

	caseParticipants, err := uc.repo.Participant().List(ctx, org, ref)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to list case participants")
	}
	reporter := in.Actor
	if found := caseParticipants.WithActiveRole(types.ParticipantRoleReporter); len(found) > 0 {
		reporter = found[0].Email
	}
	if reporter == "" {
		if found := caseParticipants.WithActiveRole(types.ParticipantRoleAssignee); len(found) > 0 {
			reporter = found[0].Email
		}
	}

	inc, _, err := uc.newIncident(ctx, org, CreateIncidentInput{
		ProjectID:   c.ProjectID,
		Title:       in.Title,
		Description: in.Description,
		TypeID:      in.IncidentTypeID,
		SeverityID:  in.IncidentSeverityID,
		PriorityID:  in.IncidentPriorityID,
		Visibility:  c.Visibility,
		TagIDs:      c.TagIDs,
		Reporter:    reporter,
	})
	if err != nil {
		return nil, nil, err
	}
	ctx = logging.WithAttrs(ctx, "incident", inc.Name)

	c.IncidentIDs = append(c.IncidentIDs, inc.ID)
	if c, err = uc.repo.Case().Update(ctx, org, c); err != nil {
		return nil, nil, goerr.Wrap(err, "failed to link incident to case", goerr.V(model.CaseIDKey, caseID))
	}

	caseBundle, err := uc.bundle(ctx, org, ref)
	if err != nil {
		return nil, nil, err
	}
	sharedChannel := c.DedicatedChannel && caseBundle.ChannelID() != "" && caseBundle.ThreadID() == ""
	if sharedChannel {
		if err := uc.bindCaseChannel(ctx, org, c, inc, caseBundle.Get(types.ResourceTypeConversation)); err != nil {
			return nil, nil, err
		}
	}

	if err := uc.carryParticipants(ctx, org, c, inc, caseParticipants.Active(), in.Actor); err != nil {
		return nil, nil, err
	}
	if err := uc.ensureReporter(ctx, org, c, inc, reporter, in.Actor); err != nil {
		return nil, nil, err
	}

	if err := uc.CreateIncidentResources(ctx, org, inc.ID, ResourceOptions{Quiet: sharedChannel}); err != nil {
		return nil, nil, err
	}

	incBundle, err := uc.bundle(ctx, org, inc.Ref())
	if err != nil {
		return nil, nil, err
	}
	incParticipants, err := uc.repo.Participant().List(ctx, org, inc.Ref())
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to list incident participants")
	}
	uc.addToTacticalGroup(ctx, org, inc.ProjectID, incBundle, incParticipants.Active().Emails())
	uc.shareCaseStorage(ctx, org, c, caseBundle, incBundle)

	uc.logEvent(ctx, org, EventInput{
		Subject:     ref,
		Description: "Case escalated to incident " + inc.Name,
		Owner:       in.Actor,
		Details:     map[string]any{"from": string(prev), "to": string(c.Status), "incident": inc.Name},
	})
	uc.logEvent(ctx, org, EventInput{
		Subject:     inc.Ref(),
		Description: "Incident created from case " + c.Name,
		Owner:       in.Actor,
	})

	if chat, err := uc.chat(ctx, org, c.ProjectID); err == nil && chat != nil && caseBundle.ChannelID() != "" {
		text := "This case has been escalated to incident " + inc.Name + "."
		if !sharedChannel {
			if ch := incBundle.ChannelID(); ch != "" {
				text += " The response continues in <#" + ch + ">."
			}
		}
		uc.sendMessage(ctx, chat, caseBundle.ChannelID(), caseBundle.ThreadID(), text, nil)
	}

	uc.notifySubject(ctx, org, inc, "created")
	return c, inc, nil
}

// bindCaseChannel makes the case channel the incident conversation and
// renames it after the incident
func (uc *UseCases) bindCaseChannel(ctx context.Context, org string, c *model.Case, inc *model.Incident, conv *model.Resource) error {
	if _, err := uc.repo.Resource().Put(ctx, org, &model.Resource{
		Subject:    inc.Ref(),
		Type:       types.ResourceTypeConversation,
		ResourceID: conv.ResourceID,
		Weblink:    conv.Weblink,
		ChannelID:  conv.ChannelID,
		CreatedAt:  uc.now(),
	}); err != nil {
		return goerr.Wrap(err, "failed to bind case conversation", goerr.V(model.ChannelIDKey, conv.ChannelID))
	}

	chat, err := uc.chat(ctx, org, c.ProjectID)
	if err != nil || chat == nil {
		return err
	}
	if err := uc.call(ctx, chat, "rename", func() error {
		return chat.RenameConversation(ctx, conv.ChannelID, inc.Name)
	}); err != nil {
		logging.From(ctx).Warn("failed to rename conversation", "channel_id", conv.ChannelID, "error", err)
	}
	return nil
}

// carryParticipants adds the active case participants to the incident with
// their mapped roles. Without an assignee the actor commands the incident.
func (uc *UseCases) carryParticipants(ctx context.Context, org string, c *model.Case, inc *model.Incident, participants model.Participants, actor string) error {
	hasCommander := false
	for _, p := range participants {
		roles := make([]types.ParticipantRole, 0, len(p.Roles))
		for _, r := range p.ActiveRoles() {
			mapped := types.IncidentRoleForCaseRole(r.Role)
			if mapped == types.ParticipantRoleIncidentCommander {
				if hasCommander {
					mapped = types.ParticipantRoleParticipant
				}
				hasCommander = true
			}
			roles = append(roles, mapped)
		}
		if len(roles) == 0 {
			continue
		}

		added, err := uc.AddParticipant(ctx, org, inc.Ref(), AddParticipantInput{
			Email:   p.Email,
			Role:    roles[0],
			AddedBy: actor,
			Reason:  "Participant of case " + c.Name,
			Quiet:   true,
		})
		if err != nil {
			return err
		}
		for _, role := range roles[1:] {
			if added.HasActiveRole(role) || role == types.ParticipantRoleParticipant {
				continue
			}
			if added, err = uc.addRole(ctx, org, added, role); err != nil {
				return err
			}
		}
	}

	if !hasCommander && actor != "" {
		p, err := uc.AddParticipant(ctx, org, inc.Ref(), AddParticipantInput{
			Email:   actor,
			Role:    types.ParticipantRoleIncidentCommander,
			AddedBy: actor,
			Reason:  "Escalated case " + c.Name,
			Quiet:   true,
		})
		if err != nil {
			return err
		}
		if !p.HasActiveRole(types.ParticipantRoleIncidentCommander) {
			if _, err := uc.addRole(ctx, org, p, types.ParticipantRoleIncidentCommander); err != nil {
				return err
			}
		}
	}
	return nil
}

// ensureReporter makes reporter the incident reporter unless a carried case
// participant already holds the role
func (uc *UseCases) ensureReporter(ctx context.Context, org string, c *model.Case, inc *model.Incident, reporter, actor string) error {
	if reporter == "" {
		return nil
	}
	participants, err := uc.repo.Participant().List(ctx, org, inc.Ref())
	if err != nil {
		return goerr.Wrap(err, "failed to list incident participants")
	}
	if len(participants.WithActiveRole(types.ParticipantRoleReporter)) > 0 {
		return nil
	}

	p, err := uc.AddParticipant(ctx, org, inc.Ref(), AddParticipantInput{
		Email:   reporter,
		Role:    types.ParticipantRoleReporter,
		AddedBy: actor,
		Reason:  "Escalated case " + c.Name,
		Quiet:   true,
	})
	if err != nil {
		return err
	}
	if !p.HasActiveRole(types.ParticipantRoleReporter) {
		if _, err := uc.addRole(ctx, org, p, types.ParticipantRoleReporter); err != nil {
			return err
		}
	}
	return nil
}

// shareCaseStorage gives the incident tactical group access to the case
// storage folder
func (uc *UseCases) shareCaseStorage(ctx context.Context, org string, c *model.Case, caseBundle, incBundle model.Bundle) {
	folder := caseBundle.Get(types.ResourceTypeStorage)
	group := incBundle.Get(types.ResourceTypeTacticalGroup)
	if folder == nil || group == nil || group.Email == "" {
		return
	}
	storage, err := active[interfaces.StorageProvider](ctx, uc, org, c.ProjectID, types.ProviderTypeStorage)
	if err != nil || storage == nil {
		return
	}
	if err := uc.call(ctx, storage, "add_members", func() error {
		return storage.AddMembers(ctx, folder.ResourceID, []string{group.Email})
	}); err != nil {
		logging.From(ctx).Warn("failed to share case storage", "folder", folder.ResourceID, "error", err)
	}
}
