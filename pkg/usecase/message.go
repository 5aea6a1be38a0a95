package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

func markdownSection(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

func contextBlock(text string) *slack.ContextBlock {
	return slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType, text, false, false))
}

// resourceLinks renders the weblinks of a bundle as one markdown line each
func resourceLinks(bundle model.Bundle) string {
	var lines []string
	for _, item := range []struct {
		t     types.ResourceType
		label string
	}{
		{types.ResourceTypeTicket, "Ticket"},
		{types.ResourceTypeDocument, "Document"},
		{types.ResourceTypeConference, "Conference"},
		{types.ResourceTypeStorage, "Storage"},
		{types.ResourceTypeReviewDocument, "Review document"},
	} {
		if r := bundle.Get(item.t); r != nil && r.Weblink != "" {
			lines = append(lines, fmt.Sprintf("*%s:* <%s|%s>", item.label, r.Weblink, r.Weblink))
		}
	}
	return strings.Join(lines, "\n")
}

func welcomeBlocks(subject model.Subject, bundle model.Bundle) []slack.Block {
	header := fmt.Sprintf("*Welcome to %s*\n%s", subject.GetName(), subject.GetTitle())
	blocks := []slack.Block{markdownSection(header)}
	if d := subject.GetDescription(); d != "" {
		blocks = append(blocks, markdownSection(d))
	}
	if links := resourceLinks(bundle); links != "" {
		blocks = append(blocks, markdownSection(links))
	}
	blocks = append(blocks, contextBlock("Status: "+subject.GetStatus()))
	return blocks
}

func (uc *UseCases) sendEphemeral(ctx context.Context, chat interfaces.ChatProvider, channelID, email, threadTS, text string) {
	if err := uc.call(ctx, chat, "send_ephemeral", func() error {
		return chat.SendEphemeral(ctx, channelID, email, text, nil, model.ChatMessageOptions{ThreadTS: threadTS})
	}); err != nil {
		logging.From(ctx).Warn("failed to send ephemeral message", "email", email, "error", err)
	}
}

func (uc *UseCases) sendMessage(ctx context.Context, chat interfaces.ChatProvider, channelID, threadTS, text string, blocks []slack.Block) string {
	ts, err := callValue(ctx, uc, chat, "send_message", func() (string, error) {
		return chat.SendMessage(ctx, channelID, text, blocks, model.ChatMessageOptions{ThreadTS: threadTS})
	})
	if err != nil {
		logging.From(ctx).Warn("failed to send message", "channel_id", channelID, "error", err)
	}
	return ts
}

// welcomeParticipants invites participants to the subject conversation and
// sends their welcome messages. announce also posts a join notice.
func (uc *UseCases) welcomeParticipants(ctx context.Context, org string, subject model.Subject, bundle model.Bundle, participants []*model.Participant, announce bool) {
	if len(participants) == 0 {
		return
	}
	chat, err := uc.chat(ctx, org, subject.GetProjectID())
	if err != nil || chat == nil {
		if err != nil {
			logging.From(ctx).Warn("chat provider unavailable", "error", err)
		}
		return
	}
	channelID, threadID := bundle.ChannelID(), bundle.ThreadID()
	if channelID == "" {
		return
	}

	emails := make([]string, 0, len(participants))
	for _, p := range participants {
		emails = append(emails, p.Email)
	}

	if threadID == "" {
		if err := uc.call(ctx, chat, "invite", func() error {
			return chat.InviteToConversation(ctx, channelID, emails)
		}); err != nil {
			logging.From(ctx).Warn("failed to invite participants", "channel_id", channelID, "error", err)
		}
	}

	if announce {
		uc.sendMessage(ctx, chat, channelID, threadID, participantsJoinedText(participants), nil)
	}

	blocks := welcomeBlocks(subject, bundle)
	text := "Welcome to " + subject.GetName()
	for _, p := range participants {
		if err := uc.call(ctx, chat, "send_ephemeral", func() error {
			return chat.SendEphemeral(ctx, channelID, p.Email, text, blocks, model.ChatMessageOptions{ThreadTS: threadID})
		}); err != nil {
			logging.From(ctx).Warn("failed to send welcome message", "email", p.Email, "error", err)
		}
		if subject.Ref().Kind != types.SubjectKindIncident {
			continue
		}
		if err := uc.call(ctx, chat, "send_direct", func() error {
			return chat.SendDirect(ctx, p.Email, text, blocks)
		}); err != nil {
			logging.From(ctx).Warn("failed to send welcome direct message", "email", p.Email, "error", err)
		}
	}
}

func participantsJoinedText(participants []*model.Participant) string {
	parts := make([]string, 0, len(participants))
	for _, p := range participants {
		var roles []string
		for _, r := range p.ActiveRoles() {
			roles = append(roles, r.Role.Title())
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", p.Email, strings.Join(roles, ", ")))
	}
	return "Participants added: " + strings.Join(parts, ", ")
}

// announceRole posts a role change and, for commanders, updates the channel
// topic and sends management tips
func (uc *UseCases) announceRole(ctx context.Context, org string, subject model.Subject, email string, role types.ParticipantRole) {
	chat, err := uc.chat(ctx, org, subject.GetProjectID())
	if err != nil || chat == nil {
		return
	}
	bundle, err := uc.bundle(ctx, org, subject.Ref())
	if err != nil || bundle.ChannelID() == "" {
		return
	}
	uc.sendMessage(ctx, chat, bundle.ChannelID(), bundle.ThreadID(),
		fmt.Sprintf("%s has been assigned the role of %s", email, role.Title()), nil)

	if role != types.ParticipantRoleIncidentCommander {
		return
	}
	if bundle.ThreadID() == "" {
		topic := uc.channelTopic(ctx, org, subject, email)
		if err := uc.call(ctx, chat, "set_topic", func() error {
			return chat.SetTopic(ctx, bundle.ChannelID(), topic)
		}); err != nil {
			logging.From(ctx).Warn("failed to set topic", "error", err)
		}
	}
	if err := uc.call(ctx, chat, "send_direct", func() error {
		return chat.SendDirect(ctx, email, "You are now the incident commander of "+subject.GetName(), []slack.Block{
			markdownSection("*Incident commander tips*\n" +
				"• Keep the channel focused and delegate work with tasks.\n" +
				"• Post tactical reports at the cadence of the incident priority.\n" +
				"• Assign a scribe so the timeline stays complete."),
		})
	}); err != nil {
		logging.From(ctx).Warn("failed to send commander tips", "error", err)
	}
}

// channelTopic renders "Commander: x | Status: y | Priority: z"
func (uc *UseCases) channelTopic(ctx context.Context, org string, subject model.Subject, commander string) string {
	parts := []string{}
	if commander != "" {
		parts = append(parts, "Commander: "+commander)
	}
	parts = append(parts, "Status: "+subject.GetStatus())
	if inc, ok := subject.(*model.Incident); ok {
		if p, err := uc.repo.IncidentPriority().Get(ctx, org, inc.PriorityID); err == nil && p != nil {
			parts = append(parts, "Priority: "+p.Name)
		}
		if t, err := uc.repo.IncidentType().Get(ctx, org, inc.TypeID); err == nil && t != nil {
			parts = append(parts, "Type: "+t.Name)
		}
	}
	return strings.Join(parts, " | ")
}

func (uc *UseCases) addToTacticalGroup(ctx context.Context, org string, projectID int64, bundle model.Bundle, emails []string) {
	r := bundle.Get(types.ResourceTypeTacticalGroup)
	if r == nil || r.Email == "" {
		return
	}
	group, err := active[interfaces.GroupProvider](ctx, uc, org, projectID, types.ProviderTypeGroup)
	if err != nil || group == nil {
		return
	}
	if err := uc.call(ctx, group, "add_members", func() error {
		return group.AddMembers(ctx, r.Email, emails)
	}); err != nil {
		logging.From(ctx).Warn("failed to add tactical group members", "group", r.Email, "error", err)
	}
}

func (uc *UseCases) removeFromTacticalGroup(ctx context.Context, org string, projectID int64, bundle model.Bundle, emails []string) {
	r := bundle.Get(types.ResourceTypeTacticalGroup)
	if r == nil || r.Email == "" {
		return
	}
	group, err := active[interfaces.GroupProvider](ctx, uc, org, projectID, types.ProviderTypeGroup)
	if err != nil || group == nil {
		return
	}
	if err := uc.call(ctx, group, "remove_members", func() error {
		return group.RemoveMembers(ctx, r.Email, emails)
	}); err != nil {
		logging.From(ctx).Warn("failed to remove tactical group members", "group", r.Email, "error", err)
	}
}

// caseThreadBlocks is the root message of a case living in a thread
func caseThreadBlocks(org string, subject model.Subject) []slack.Block {
	blocks := []slack.Block{
		markdownSection(fmt.Sprintf("*%s*\n%s", subject.GetName(), subject.GetTitle())),
	}
	if d := subject.GetDescription(); d != "" {
		blocks = append(blocks, markdownSection(d))
	}
	blocks = append(blocks, contextBlock("Status: "+subject.GetStatus()))

	value := encodeActionValue(org, subject.Ref())
	if subject.IsClosed() {
		return append(blocks, slack.NewActionBlock("",
			slack.NewButtonBlockElement(ActionCaseReopen, value, plainText("Reopen")),
		))
	}
	escalate := slack.NewButtonBlockElement(ActionCaseEscalate, value, plainText("Escalate"))
	escalate.Style = slack.StyleDanger
	return append(blocks, slack.NewActionBlock("",
		slack.NewButtonBlockElement(ActionCaseEdit, value, plainText("Edit")),
		slack.NewButtonBlockElement(ActionCaseResolve, value, plainText("Resolve")),
		escalate,
	))
}
