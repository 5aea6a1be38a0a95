package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// AddParticipantInput describes who joins a subject and why
type AddParticipantInput struct {
	Email     string
	Role      types.ParticipantRole
	ServiceID string
	AddedBy   string
	Reason    string
	// Quiet skips the conversation invite, announcement and welcome; the
	// caller announces participants in bulk
	Quiet bool
}

// singularRoles can be held by at most one participant at a time
var singularRoles = map[types.ParticipantRole]bool{
	types.ParticipantRoleIncidentCommander: true,
	types.ParticipantRoleReporter:          true,
	types.ParticipantRoleAssignee:          true,
	types.ParticipantRoleScribe:            true,
	types.ParticipantRoleLiaison:           true,
}

// ensureIndividual returns the project individual of email, creating it from
// the directory profile when unknown
func (uc *UseCases) ensureIndividual(ctx context.Context, org string, projectID int64, email string) (*model.Individual, error) {
	ind, err := uc.repo.Individual().GetByEmail(ctx, org, projectID, email)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get individual", goerr.V(model.EmailKey, email))
	}
	if ind != nil {
		return ind, nil
	}

	ind = &model.Individual{ProjectID: projectID, Email: email}
	contact, err := active[interfaces.ContactProvider](ctx, uc, org, projectID, types.ProviderTypeContact)
	if err != nil {
		logging.From(ctx).Warn("contact provider unavailable", "error", err)
	}
	if contact != nil {
		info, err := callValue(ctx, uc, contact, "lookup", func() (*model.ContactInfo, error) {
			return contact.Lookup(ctx, email)
		})
		switch {
		case err == nil && info != nil:
			ind.Name, ind.Title, ind.Team, ind.Location, ind.Weblink = info.Name, info.Title, info.Team, info.Location, info.Weblink
		case err != nil && !errors.Is(err, model.ErrNotFound):
			logging.From(ctx).Warn("failed to look up individual", "email", email, "error", err)
		}
	}

	created, err := uc.repo.Individual().Upsert(ctx, org, ind)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create individual", goerr.V(model.EmailKey, email))
	}
	return created, nil
}

// AddParticipant adds email to the subject or reactivates a previous
// participant. It returns the participant, unchanged when it was already
// active or when its on-call service is already engaged.
func (uc *UseCases) AddParticipant(ctx context.Context, org string, ref model.SubjectRef, in AddParticipantInput) (*model.Participant, error) {
	if in.Email == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "participant email is required")
	}
	if in.Role == "" {
		in.Role = types.ParticipantRoleParticipant
	}
	subject, err := uc.Subject(ctx, org, ref)
	if err != nil {
		return nil, err
	}

	participants, err := uc.repo.Participant().List(ctx, org, ref)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list participants")
	}
	if in.ServiceID != "" {
		for _, p := range participants {
			if p.ServiceID == in.ServiceID {
				logging.From(ctx).Info("service already engaged, assuming hand-off",
					"subject", ref.String(), "service_id", in.ServiceID)
				return p, nil
			}
		}
	}

	now := uc.now()
	existing := participants.ByEmail(in.Email)
	var p *model.Participant
	switch {
	case existing != nil && existing.IsActive():
		return existing, nil

	case existing != nil:
		if subject.IsClosed() {
			return existing, nil
		}
		existing.AddRole(types.ParticipantRoleParticipant, now)
		if p, err = uc.repo.Participant().Update(ctx, org, existing); err != nil {
			return nil, goerr.Wrap(err, "failed to reactivate participant", goerr.V(model.EmailKey, in.Email))
		}
		uc.logEvent(ctx, org, EventInput{
			Subject:     ref,
			Description: in.Email + " has been re-added",
			Type:        types.EventTypeParticipantUpdated,
		})

	default:
		ind, err := uc.ensureIndividual(ctx, org, subject.GetProjectID(), in.Email)
		if err != nil {
			return nil, err
		}
		if singularRoles[in.Role] {
			if err := uc.releaseRole(ctx, org, participants, in.Role, now); err != nil {
				return nil, err
			}
		}
		np := &model.Participant{
			Subject:      ref,
			IndividualID: ind.ID,
			Email:        in.Email,
			AddedBy:      in.AddedBy,
			AddedReason:  in.Reason,
			ServiceID:    in.ServiceID,
			Team:         ind.Team,
			Location:     ind.Location,
		}
		np.AddRole(in.Role, now)
		if p, err = uc.repo.Participant().Create(ctx, org, np); err != nil {
			return nil, goerr.Wrap(err, "failed to create participant", goerr.V(model.EmailKey, in.Email))
		}
		uc.logEvent(ctx, org, EventInput{
			Subject:      ref,
			Description:  fmt.Sprintf("%s added to %s as %s", ind.DisplayName(), subject.GetName(), in.Role.Title()),
			Type:         types.EventTypeParticipantUpdated,
			IndividualID: ind.ID,
		})
	}

	bundle, err := uc.bundle(ctx, org, ref)
	if err != nil {
		return nil, err
	}
	uc.addToTacticalGroup(ctx, org, subject.GetProjectID(), bundle, []string{in.Email})

	if !subject.IsClosed() && !in.Quiet {
		uc.welcomeParticipants(ctx, org, subject, bundle, []*model.Participant{p}, true)
	}
	return p, nil
}

// releaseRole renounces a singular role from whoever holds it. Holders left
// without any active role stay on as participants.
func (uc *UseCases) releaseRole(ctx context.Context, org string, participants model.Participants, role types.ParticipantRole, now time.Time) error {
	for _, holder := range participants.WithActiveRole(role) {
		holder.Renounce(role, now)
		if !holder.IsActive() {
			holder.AddRole(types.ParticipantRoleParticipant, now)
		}
		if _, err := uc.repo.Participant().Update(ctx, org, holder); err != nil {
			return goerr.Wrap(err, "failed to release role", goerr.V(model.EmailKey, holder.Email))
		}
	}
	return nil
}

// addRole gives an existing participant an additional active role
func (uc *UseCases) addRole(ctx context.Context, org string, p *model.Participant, role types.ParticipantRole) (*model.Participant, error) {
	if p.HasActiveRole(role) {
		return p, nil
	}
	now := uc.now()
	if singularRoles[role] {
		participants, err := uc.repo.Participant().List(ctx, org, p.Subject)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list participants")
		}
		var others model.Participants
		for _, o := range participants {
			if o.ID != p.ID {
				others = append(others, o)
			}
		}
		if err := uc.releaseRole(ctx, org, others, role, now); err != nil {
			return nil, err
		}
	}
	if role != types.ParticipantRoleParticipant && role != types.ParticipantRoleObserver {
		p.Renounce(types.ParticipantRoleParticipant, now)
		p.Renounce(types.ParticipantRoleObserver, now)
	}
	p.AddRole(role, now)
	updated, err := uc.repo.Participant().Update(ctx, org, p)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to add role", goerr.V(model.EmailKey, p.Email))
	}
	return updated, nil
}

// RemoveParticipant renounces every role of email. The commander of an open
// subject and participants owning open tasks are kept; removed reports
// whether the participant left.
func (uc *UseCases) RemoveParticipant(ctx context.Context, org string, ref model.SubjectRef, email string) (removed bool, err error) {
	subject, err := uc.Subject(ctx, org, ref)
	if err != nil {
		return false, err
	}
	p, err := uc.repo.Participant().GetByEmail(ctx, org, ref, email)
	if err != nil {
		return false, goerr.Wrap(err, "failed to get participant", goerr.V(model.EmailKey, email))
	}
	if p == nil || !p.IsActive() {
		return false, goerr.Wrap(model.ErrNotFound, "participant not found", goerr.V(model.EmailKey, email))
	}

	bundle, err := uc.bundle(ctx, org, ref)
	if err != nil {
		return false, err
	}
	chat, err := uc.chat(ctx, org, subject.GetProjectID())
	if err != nil {
		return false, err
	}
	channelID := bundle.ChannelID()

	if !subject.IsClosed() && p.HasActiveRole(types.ParticipantRoleIncidentCommander) {
		if chat != nil && channelID != "" {
			if err := uc.call(ctx, chat, "invite", func() error {
				return chat.InviteToConversation(ctx, channelID, []string{email})
			}); err != nil {
				logging.From(ctx).Warn("failed to re-add commander", "error", err)
			}
			uc.sendEphemeral(ctx, chat, channelID, email, bundle.ThreadID(),
				"You cannot leave "+subject.GetName()+" while you are the incident commander. Reassign the role first.")
		}
		return false, nil
	}

	tasks, err := uc.repo.Task().List(ctx, org, ref)
	if err != nil {
		return false, goerr.Wrap(err, "failed to list tasks")
	}
	var open []string
	for _, t := range tasks {
		if t.Status == types.TaskStatusOpen && t.IsAssignedTo(email) {
			open = append(open, "• "+t.Description)
		}
	}
	if len(open) > 0 {
		if chat != nil && channelID != "" {
			uc.sendEphemeral(ctx, chat, channelID, email, bundle.ThreadID(),
				"You still have open tasks in "+subject.GetName()+". Resolve or reassign them before leaving:\n"+strings.Join(open, "\n"))
		}
		return false, nil
	}

	p.RenounceAll(uc.now())
	if _, err := uc.repo.Participant().Update(ctx, org, p); err != nil {
		return false, goerr.Wrap(err, "failed to remove participant", goerr.V(model.EmailKey, email))
	}
	uc.removeFromTacticalGroup(ctx, org, subject.GetProjectID(), bundle, []string{email})
	uc.logEvent(ctx, org, EventInput{
		Subject:     ref,
		Description: email + " removed from " + subject.GetName(),
		Type:        types.EventTypeParticipantUpdated,
	})
	return true, nil
}

// RecordActivity counts one message of email on every active role and
// promotes observers reaching the activity threshold. It returns nil when
// email does not participate.
func (uc *UseCases) RecordActivity(ctx context.Context, org string, ref model.SubjectRef, email string) (*model.Participant, error) {
	release, err := uc.repo.Lock(ctx, org, ref.String())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to lock subject", goerr.V("subject", ref.String()))
	}
	p, err := uc.repo.Participant().GetByEmail(ctx, org, ref, email)
	if err != nil {
		release()
		return nil, goerr.Wrap(err, "failed to get participant", goerr.V(model.EmailKey, email))
	}
	if p == nil || !p.IsActive() {
		release()
		return nil, nil
	}

	for _, r := range p.ActiveRoles() {
		r.Activity++
	}

	promoted := false
	if obs := p.ActiveRole(types.ParticipantRoleObserver); obs != nil && obs.Activity >= model.ObserverPromotionActivity {
		now := uc.now()
		p.Renounce(types.ParticipantRoleObserver, now)
		if !p.HasActiveRole(types.ParticipantRoleParticipant) {
			p.AddRole(types.ParticipantRoleParticipant, now)
		}
		promoted = true
	}

	updated, err := uc.repo.Participant().Update(ctx, org, p)
	release()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update participant activity", goerr.V(model.EmailKey, email))
	}

	if promoted {
		uc.logEvent(ctx, org, EventInput{
			Subject:      ref,
			Description:  email + "'s role changed from Observer to Participant due to activity",
			Type:         types.EventTypeFieldUpdated,
			IndividualID: p.IndividualID,
			Details:      map[string]any{"kind": model.EventKindRolePromotion, "email": email},
		})
	}
	return updated, nil
}

// AssignRole gives role to assignee. Singular roles move away from their
// current holder.
func (uc *UseCases) AssignRole(ctx context.Context, org string, ref model.SubjectRef, assignee string, role types.ParticipantRole, actor string) (types.AssignResult, error) {
	if !role.IsValid() {
		return types.AssignResultRoleNotAssigned, model.NewValidationError("role", "unknown role "+string(role))
	}
	subject, err := uc.Subject(ctx, org, ref)
	if err != nil {
		return types.AssignResultRoleNotAssigned, err
	}

	p, err := uc.repo.Participant().GetByEmail(ctx, org, ref, assignee)
	if err != nil {
		return types.AssignResultRoleNotAssigned, goerr.Wrap(err, "failed to get participant")
	}

	switch {
	case p != nil && p.HasActiveRole(role):
		return types.AssignResultAssigneeHasRole, nil

	case p == nil || !p.IsActive():
		if subject.IsClosed() {
			return types.AssignResultRoleNotAssigned, nil
		}
		added, err := uc.AddParticipant(ctx, org, ref, AddParticipantInput{
			Email:   assignee,
			Role:    role,
			AddedBy: actor,
			Reason:  "Assigned the " + role.Title() + " role by " + actor,
		})
		if err != nil {
			return types.AssignResultRoleNotAssigned, err
		}
		if !added.HasActiveRole(role) {
			if _, err := uc.addRole(ctx, org, added, role); err != nil {
				return types.AssignResultRoleNotAssigned, err
			}
		}

	default:
		if _, err := uc.addRole(ctx, org, p, role); err != nil {
			return types.AssignResultRoleNotAssigned, err
		}
	}

	uc.logEvent(ctx, org, EventInput{
		Subject:     ref,
		Description: fmt.Sprintf("%s has been assigned the role of %s", assignee, role.Title()),
		Type:        types.EventTypeParticipantUpdated,
		Owner:       actor,
	})

	if !subject.IsClosed() && role != types.ParticipantRoleParticipant {
		uc.announceRole(ctx, org, subject, assignee, role)
	}
	return types.AssignResultAssigned, nil
}

// inactivateParticipants renounces every active role of the subject
func (uc *UseCases) inactivateParticipants(ctx context.Context, org string, ref model.SubjectRef) error {
	participants, err := uc.repo.Participant().List(ctx, org, ref)
	if err != nil {
		return goerr.Wrap(err, "failed to list participants")
	}
	now := uc.now()
	for _, p := range participants.Active() {
		p.RenounceAll(now)
		if _, err := uc.repo.Participant().Update(ctx, org, p); err != nil {
			return goerr.Wrap(err, "failed to inactivate participant", goerr.V(model.EmailKey, p.Email))
		}
	}
	return nil
}

// reactivateParticipants restores the roles participants lost with their
// latest renouncement
func (uc *UseCases) reactivateParticipants(ctx context.Context, org string, ref model.SubjectRef) (model.Participants, error) {
	participants, err := uc.repo.Participant().List(ctx, org, ref)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list participants")
	}
	now := uc.now()
	var revived model.Participants
	for _, p := range participants {
		if p.IsActive() {
			continue
		}
		latest := p.LatestRenouncedAt()
		if latest == nil {
			continue
		}
		var roles []types.ParticipantRole
		for _, r := range p.Roles {
			if r.RenouncedAt != nil && r.RenouncedAt.Equal(*latest) {
				roles = append(roles, r.Role)
			}
		}
		for _, role := range roles {
			p.AddRole(role, now)
		}
		updated, err := uc.repo.Participant().Update(ctx, org, p)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to reactivate participant", goerr.V(model.EmailKey, p.Email))
		}
		revived = append(revived, updated)
	}
	return revived, nil
}
