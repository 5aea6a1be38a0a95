package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	slackmsg "github.com/Netflix/dispatch-sub000/pkg/domain/model/slack"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/utils/errutil"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

var mentionPattern = regexp.MustCompile(`<@([UW][A-Z0-9]+)(?:\|[^>]*)?>`)

// HandleEvent processes an Events API callback. Events outside of subject
// conversations are ignored.
func (uc *UseCases) HandleEvent(ctx context.Context, ev *slackevents.EventsAPIEvent) error {
	if m := slackmsg.NewMembership(ev); m != nil {
		return uc.handleMembership(ctx, m)
	}
	if r := slackmsg.NewReaction(ev); r != nil {
		return uc.handleReaction(ctx, r)
	}
	if msg := slackmsg.NewMessage(ev); msg != nil {
		return uc.handleMessage(ctx, msg)
	}
	logging.From(ctx).Debug("ignored slack event", "type", ev.InnerEvent.Type)
	return nil
}

// eventContext runs the pipeline for an event in a subject conversation. It
// returns nil when the conversation belongs to no subject.
func (uc *UseCases) eventContext(ctx context.Context, channelID, threadID, userID string) (context.Context, *RequestContext, error) {
	loc, err := uc.LocateConversation(ctx, channelID, threadID)
	if err != nil {
		return ctx, nil, err
	}
	if loc == nil {
		return ctx, nil, nil
	}
	rc := &RequestContext{
		Kind:      RequestKindEvent,
		ChannelID: channelID,
		ThreadID:  threadID,
		UserID:    userID,
		Metadata:  viewMetadata{Organization: loc.Organization, Subject: loc.Subject.String(), ProjectID: loc.ProjectID},
	}
	ctx, err = uc.runPipeline(ctx, rc)
	if err != nil {
		return ctx, nil, err
	}
	return ctx, rc, nil
}

func (uc *UseCases) handleMessage(ctx context.Context, msg *slackmsg.Message) error {
	if !msg.IsUserMessage() && !msg.IsJoin() {
		return nil
	}
	ctx, rc, err := uc.eventContext(ctx, msg.ChannelID(), msg.ThreadTS(), msg.UserID())
	if err != nil || rc == nil {
		return err
	}
	ref := rc.Ref()

	bundle, err := uc.bundle(ctx, rc.Organization, ref)
	if err != nil {
		return err
	}
	if rc.Config.BanThreads && msg.IsThreadReply() && ref.Kind == types.SubjectKindIncident && bundle.ThreadID() == "" {
		uc.reply(ctx, rc, "Please refrain from using threads in incident channels. Threads make it harder for incident participants to maintain context.", nil)
		return nil
	}
	if msg.IsJoin() || rc.Email == "" {
		return nil
	}

	p, err := uc.RecordActivity(ctx, rc.Organization, ref, rc.Email)
	if err != nil {
		return err
	}
	if p != nil {
		uc.afterHoursAdvisory(ctx, rc, p)
	}

	if _, err := uc.ExtractTags(ctx, rc.Organization, ref, msg.Text()); err != nil {
		errutil.Handle(ctx, err, "failed to extract tags from message")
	}
	uc.promptMentions(ctx, rc, msg.Text())
	uc.promptMonitorLinks(ctx, rc, msg.Text())
	return nil
}

// afterHoursAdvisory tells a participant once that the commander is outside
// working hours
func (uc *UseCases) afterHoursAdvisory(ctx context.Context, rc *RequestContext, p *model.Participant) {
	if p.AfterHoursNotification || rc.Subject.IsClosed() {
		return
	}
	commander, err := uc.commander(ctx, rc.Organization, rc.Ref())
	if err != nil || commander == nil || commander.Email == rc.Email {
		return
	}
	cu, err := callValue(ctx, uc, rc.Chat, "get_user_by_email", func() (*model.ChatUser, error) {
		return rc.Chat.GetUserByEmail(ctx, commander.Email)
	})
	if err != nil {
		logging.From(ctx).Warn("failed to look up commander timezone", "error", err)
		return
	}
	if !cu.IsAfterHours(uc.now()) {
		return
	}

	text := fmt.Sprintf("Responders may be outside of their working hours. The %s of %s is currently out of office hours (%s). Please be mindful of their time.",
		rolesTitle(rc.Ref().Kind), rc.Subject.GetName(), cu.TZ)
	uc.reply(ctx, rc, text, nil)

	p.AfterHoursNotification = true
	if _, err := uc.repo.Participant().Update(ctx, rc.Organization, p); err != nil {
		errutil.Handle(ctx, err, "failed to store after hours notification flag")
	}
}

func rolesTitle(kind types.SubjectKind) string {
	if kind == types.SubjectKindCase {
		return strings.ToLower(types.ParticipantRoleAssignee.Title())
	}
	return strings.ToLower(types.ParticipantRoleIncidentCommander.Title())
}

// promptMentions offers to invite mentioned users who do not participate
func (uc *UseCases) promptMentions(ctx context.Context, rc *RequestContext, text string) {
	if rc.Subject.IsClosed() {
		return
	}
	for _, m := range mentionPattern.FindAllStringSubmatch(text, -1) {
		u, err := rc.Chat.GetUser(ctx, m[1])
		if err != nil || u.IsBot || u.Email == "" {
			continue
		}
		p, err := uc.repo.Participant().GetByEmail(ctx, rc.Organization, rc.Ref(), strings.ToLower(u.Email))
		if err != nil || (p != nil && p.IsActive()) {
			continue
		}
		value := encodeActionValue(rc.Organization, rc.Ref()) + "|" + strings.ToLower(u.Email)
		blocks := []slack.Block{
			markdownSection(fmt.Sprintf("You mentioned <@%s>, but they are not in this conversation. Would you like to invite them?", u.ID)),
			slack.NewActionBlock("",
				slack.NewButtonBlockElement(ActionInviteUser, value, plainText("Invite")),
				slack.NewButtonBlockElement(ActionSubscribeUser, value, plainText("Subscribe to updates")),
			),
		}
		uc.reply(ctx, rc, "Invite "+u.DisplayName()+"?", blocks)
	}
}

// promptMonitorLinks asks whether links known to the monitor plugin should
// be watched
func (uc *UseCases) promptMonitorLinks(ctx context.Context, rc *RequestContext, text string) {
	mp, err := active[interfaces.MonitorProvider](ctx, uc, rc.Organization, rc.ProjectID, types.ProviderTypeMonitor)
	if err != nil || mp == nil {
		return
	}
	for _, re := range mp.Matchers() {
		for _, link := range re.FindAllString(text, -1) {
			value := encodeActionValue(rc.Organization, rc.Ref()) + "|" + link
			blocks := []slack.Block{
				markdownSection("Hi! Dispatch can monitor <" + link + "> and post status changes to the timeline. Do you want to monitor it?"),
				slack.NewActionBlock("",
					slack.NewButtonBlockElement(ActionMonitorLink, value, plainText("Monitor")),
					slack.NewButtonBlockElement(ActionIgnoreLink, value, plainText("Ignore")),
				),
			}
			uc.reply(ctx, rc, "Monitor "+link+"?", blocks)
		}
	}
}

// handleReaction imports the message when the timeline reaction is added
func (uc *UseCases) handleReaction(ctx context.Context, r *slackmsg.Reaction) error {
	ctx, rc, err := uc.eventContext(ctx, r.ChannelID, uc.reactionThread(ctx, r), r.UserID)
	if err != nil || rc == nil {
		return err
	}
	if r.Reaction != rc.Config.TimelineReaction() {
		return nil
	}
	if _, err := uc.ImportMessage(ctx, rc.Organization, rc.Ref(), rc.ProjectID, r.ChannelID, r.MessageTS); err != nil {
		return goerr.Wrap(err, "failed to import message to timeline", goerr.V("ts", r.MessageTS))
	}
	return nil
}

// reactionThread returns the thread of the reacted message. A message that
// starts no thread is probed as a thread parent.
func (uc *UseCases) reactionThread(ctx context.Context, r *slackmsg.Reaction) string {
	def, err := uc.orgs.Default()
	if err != nil {
		return r.MessageTS
	}
	project, err := uc.defaultProject(ctx, def.Slug)
	if err != nil {
		return r.MessageTS
	}
	chat, err := uc.chat(ctx, def.Slug, project.ID)
	if err != nil || chat == nil {
		return r.MessageTS
	}
	msg, err := callValue(ctx, uc, chat, "fetch_message", func() (*model.ChatMessage, error) {
		return chat.FetchMessage(ctx, r.ChannelID, r.MessageTS)
	})
	if err != nil {
		logging.From(ctx).Warn("failed to fetch reacted message", "channel_id", r.ChannelID, "ts", r.MessageTS, "error", err)
		return r.MessageTS
	}
	if msg.ThreadTS != "" {
		return msg.ThreadTS
	}
	return r.MessageTS
}

// handleMembership adds users joining a subject conversation and removes
// those leaving it
func (uc *UseCases) handleMembership(ctx context.Context, m *slackmsg.Membership) error {
	ctx, rc, err := uc.eventContext(ctx, m.ChannelID, "", m.UserID)
	if err != nil || rc == nil || rc.Email == "" {
		return err
	}
	if rc.User != nil && rc.User.IsBot {
		return nil
	}
	ref := rc.Ref()

	if !m.Joined {
		removed, err := uc.RemoveParticipant(ctx, rc.Organization, ref, rc.Email)
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		logging.From(ctx).Info("participant left conversation", "removed", removed)
		return nil
	}

	existing, err := uc.repo.Participant().GetByEmail(ctx, rc.Organization, ref, rc.Email)
	if err != nil {
		return goerr.Wrap(err, "failed to get participant", goerr.V(model.EmailKey, rc.Email))
	}
	if existing != nil && existing.IsActive() {
		return nil
	}

	in := AddParticipantInput{Email: rc.Email, Role: types.ParticipantRoleParticipant, Quiet: true}
	if m.InviterID != "" {
		if inviter, err := rc.Chat.GetUser(ctx, m.InviterID); err == nil {
			in.AddedBy = strings.ToLower(inviter.Email)
			in.Reason = "Added by " + inviter.DisplayName()
		}
	}
	if _, err := uc.AddParticipant(ctx, rc.Organization, ref, in); err != nil {
		return err
	}
	return nil
}
