package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// Command handler keys. Slash command names map to them through the chat
// configuration; by default "/dispatch-<key>".
const (
	CommandReportIncident     = "report-incident"
	CommandUpdateIncident     = "update-incident"
	CommandAssignRole         = "assign-role"
	CommandEngageOncall       = "engage-oncall"
	CommandTacticalReport     = "report-tactical"
	CommandExecutiveReport    = "report-executive"
	CommandAddTimelineEvent   = "add-timeline-event"
	CommandNotificationsGroup = "update-notifications-group"
	CommandUpdateParticipant  = "update-participant"
	CommandListParticipants   = "list-participants"
	CommandListTasks          = "list-tasks"
	CommandListMyTasks        = "list-my-tasks"
	CommandListIncidents      = "list-incidents"
	CommandReportCase         = "report-case"
	CommandEscalateCase       = "escalate-case"
	CommandSummary            = "summary"
)

const defaultCommandPrefix = "/dispatch-"

type commandRoute struct {
	needsContext bool
	restricted   bool
	kind         types.SubjectKind
	handler      func(uc *UseCases, ctx context.Context, rc *RequestContext) error
}

var commandRoutes = map[string]*commandRoute{
	CommandReportIncident:     {handler: (*UseCases).cmdReportIncident},
	CommandReportCase:         {handler: (*UseCases).cmdReportCase},
	CommandListIncidents:      {handler: (*UseCases).cmdListIncidents},
	CommandUpdateIncident:     {needsContext: true, restricted: true, kind: types.SubjectKindIncident, handler: (*UseCases).cmdUpdateIncident},
	CommandTacticalReport:     {needsContext: true, restricted: true, kind: types.SubjectKindIncident, handler: (*UseCases).cmdTacticalReport},
	CommandExecutiveReport:    {needsContext: true, restricted: true, kind: types.SubjectKindIncident, handler: (*UseCases).cmdExecutiveReport},
	CommandNotificationsGroup: {needsContext: true, restricted: true, kind: types.SubjectKindIncident, handler: (*UseCases).cmdNotificationsGroup},
	CommandEngageOncall:       {needsContext: true, kind: types.SubjectKindIncident, handler: (*UseCases).cmdEngageOncall},
	CommandEscalateCase:       {needsContext: true, kind: types.SubjectKindCase, handler: (*UseCases).cmdEscalateCase},
	CommandAssignRole:         {needsContext: true, handler: (*UseCases).cmdAssignRole},
	CommandAddTimelineEvent:   {needsContext: true, handler: (*UseCases).cmdAddTimelineEvent},
	CommandUpdateParticipant:  {needsContext: true, handler: (*UseCases).cmdUpdateParticipant},
	CommandListParticipants:   {needsContext: true, handler: (*UseCases).cmdListParticipants},
	CommandListTasks:          {needsContext: true, handler: (*UseCases).cmdListTasks},
	CommandListMyTasks:        {needsContext: true, handler: (*UseCases).cmdListMyTasks},
	CommandSummary:            {needsContext: true, handler: (*UseCases).cmdSummary},
}

// resolveCommand maps a slash command to its route
func resolveCommand(conf *model.ChatConfig, command string) (*commandRoute, bool) {
	if conf != nil {
		if key, ok := conf.Commands[command]; ok {
			r, ok := commandRoutes[key]
			return r, ok
		}
	}
	r, ok := commandRoutes[strings.TrimPrefix(command, defaultCommandPrefix)]
	return r, ok
}

// SlashCommand is an inbound slash command
type SlashCommand struct {
	Command     string
	Text        string
	ChannelID   string
	UserID      string
	TriggerID   string
	ResponseURL string
}

// HandleCommand runs a slash command. Errors are reported to the invoking
// user, never returned.
func (uc *UseCases) HandleCommand(ctx context.Context, cmd SlashCommand) {
	rc := &RequestContext{
		Kind:        RequestKindCommand,
		Command:     cmd.Command,
		Text:        strings.TrimSpace(cmd.Text),
		ChannelID:   cmd.ChannelID,
		UserID:      cmd.UserID,
		TriggerID:   cmd.TriggerID,
		ResponseURL: cmd.ResponseURL,
	}
	uc.dispatch(ctx, rc, cmd.Command, func(ctx context.Context, rc *RequestContext) error {
		return rc.route.handler(uc, ctx, rc)
	})
}

func (uc *UseCases) openModal(ctx context.Context, rc *RequestContext, view slack.ModalViewRequest) (string, error) {
	id, err := callValue(ctx, uc, rc.Chat, "open_modal", func() (string, error) {
		return rc.Chat.OpenModal(ctx, rc.TriggerID, view)
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to open modal", goerr.V("callback_id", view.CallbackID))
	}
	return id, nil
}

func (uc *UseCases) cmdReportIncident(ctx context.Context, rc *RequestContext) error {
	view, err := uc.reportIncidentView(ctx, rc, rc.ProjectID, model.FormData{BlockTitle: model.TextValue(rc.Text)})
	if err != nil {
		return err
	}
	_, err = uc.openModal(ctx, rc, view)
	return err
}

func (uc *UseCases) cmdReportCase(ctx context.Context, rc *RequestContext) error {
	view, err := uc.reportCaseView(ctx, rc, rc.ProjectID, model.FormData{BlockTitle: model.TextValue(rc.Text)})
	if err != nil {
		return err
	}
	_, err = uc.openModal(ctx, rc, view)
	return err
}

func (uc *UseCases) cmdUpdateIncident(ctx context.Context, rc *RequestContext) error {
	view, err := uc.updateIncidentView(ctx, rc, rc.Subject.(*model.Incident))
	if err != nil {
		return err
	}
	_, err = uc.openModal(ctx, rc, view)
	return err
}

func (uc *UseCases) cmdAssignRole(ctx context.Context, rc *RequestContext) error {
	_, err := uc.openModal(ctx, rc, assignRoleView(rc))
	return err
}

func (uc *UseCases) cmdEngageOncall(ctx context.Context, rc *RequestContext) error {
	view, err := uc.engageOncallView(ctx, rc)
	if err != nil {
		return err
	}
	_, err = uc.openModal(ctx, rc, view)
	return err
}

// cmdTacticalReport opens the tactical report form prefilled with the last
// report. Without a previous report an AI draft replaces the form when ready.
func (uc *UseCases) cmdTacticalReport(ctx context.Context, rc *RequestContext) error {
	inc := rc.Subject.(*model.Incident)
	latest, err := uc.LatestReport(ctx, rc.Organization, inc.ID, types.ReportTypeTactical)
	if err != nil {
		return err
	}
	var prev map[string]any
	if latest != nil {
		prev = latest.Details
	}
	viewID, err := uc.openModal(ctx, rc, tacticalReportView(rc, prev))
	if err != nil || latest != nil {
		return err
	}
	if ai, _ := uc.ai(ctx, rc.Organization, inc.ProjectID); ai == nil {
		return nil
	}

	uc.background(ctx, "tactical.draft", func(ctx context.Context) error {
		draft, err := uc.DraftTacticalReport(ctx, rc.Organization, inc.ID)
		if err != nil {
			return err
		}
		view := tacticalReportView(rc, map[string]any{
			ReportConditions: draft.Conditions,
			ReportActions:    draft.Actions,
			ReportNeeds:      draft.Needs,
		})
		return uc.call(ctx, rc.Chat, "update_modal", func() error {
			return rc.Chat.UpdateModal(ctx, viewID, view)
		})
	})
	return nil
}

func (uc *UseCases) cmdExecutiveReport(ctx context.Context, rc *RequestContext) error {
	latest, err := uc.LatestReport(ctx, rc.Organization, rc.Subject.Ref().ID, types.ReportTypeExecutive)
	if err != nil {
		return err
	}
	var prev map[string]any
	if latest != nil {
		prev = latest.Details
	}
	_, err = uc.openModal(ctx, rc, executiveReportView(rc, prev))
	return err
}

func (uc *UseCases) cmdAddTimelineEvent(ctx context.Context, rc *RequestContext) error {
	_, err := uc.openModal(ctx, rc, addTimelineEventView(rc))
	return err
}

func (uc *UseCases) cmdNotificationsGroup(ctx context.Context, rc *RequestContext) error {
	bundle, err := uc.bundle(ctx, rc.Organization, rc.Ref())
	if err != nil {
		return err
	}
	group := bundle.Get(types.ResourceTypeNotificationsGroup)
	if group == nil {
		return model.NewValidationError(BlockMembers, "this incident has no notifications group")
	}
	gp, err := active[interfaces.GroupProvider](ctx, uc, rc.Organization, rc.ProjectID, types.ProviderTypeGroup)
	if err != nil {
		return err
	}
	if gp == nil {
		return model.NewValidationError(BlockMembers, "no group plugin is enabled")
	}
	members, err := callValue(ctx, uc, gp, "list_members", func() ([]string, error) {
		return gp.ListMembers(ctx, group.Email)
	})
	if err != nil {
		return err
	}
	_, err = uc.openModal(ctx, rc, notificationsGroupView(rc, members))
	return err
}

func (uc *UseCases) cmdUpdateParticipant(ctx context.Context, rc *RequestContext) error {
	participants, err := uc.repo.Participant().List(ctx, rc.Organization, rc.Ref())
	if err != nil {
		return goerr.Wrap(err, "failed to list participants", goerr.V(model.SubjectKey, rc.Ref().String()))
	}
	_, err = uc.openModal(ctx, rc, updateParticipantView(rc, participants.Active()))
	return err
}

func (uc *UseCases) cmdListParticipants(ctx context.Context, rc *RequestContext) error {
	participants, err := uc.repo.Participant().List(ctx, rc.Organization, rc.Ref())
	if err != nil {
		return goerr.Wrap(err, "failed to list participants", goerr.V(model.SubjectKey, rc.Ref().String()))
	}
	blocks := []slack.Block{markdownSection("*Participants of " + rc.Subject.GetName() + "*")}
	for _, p := range participants.Active() {
		roles := make([]string, 0, len(p.Roles))
		for _, r := range p.ActiveRoles() {
			roles = append(roles, r.Role.Title())
		}
		line := fmt.Sprintf("*%s*\n%s", p.Email, strings.Join(roles, ", "))
		if p.Team != "" {
			line += " | " + p.Team
		}
		if p.AddedReason != "" {
			line += "\n_" + p.AddedReason + "_"
		}
		blocks = append(blocks, markdownSection(line))
	}
	uc.reply(ctx, rc, "Participants of "+rc.Subject.GetName(), blocks)
	return nil
}

func (uc *UseCases) listTasks(ctx context.Context, rc *RequestContext, mine bool) error {
	tasks, err := uc.ListTasks(ctx, rc.Organization, rc.Ref())
	if err != nil {
		return err
	}
	var blocks []slack.Block
	for _, t := range tasks {
		if mine && !t.IsAssignedTo(rc.Email) {
			continue
		}
		blocks = append(blocks, buildTaskMessageBlocks(rc.Organization, t)...)
	}
	if len(blocks) == 0 {
		uc.reply(ctx, rc, "No tasks found.", nil)
		return nil
	}
	uc.reply(ctx, rc, "Tasks of "+rc.Subject.GetName(), blocks)
	return nil
}

func (uc *UseCases) cmdListTasks(ctx context.Context, rc *RequestContext) error {
	return uc.listTasks(ctx, rc, false)
}

func (uc *UseCases) cmdListMyTasks(ctx context.Context, rc *RequestContext) error {
	return uc.listTasks(ctx, rc, true)
}

// cmdListIncidents lists the open incidents of the organization with a join
// button for each
func (uc *UseCases) cmdListIncidents(ctx context.Context, rc *RequestContext) error {
	incidents, err := uc.ListIncidents(ctx, rc.Organization, model.IncidentQuery{
		Statuses: []types.IncidentStatus{types.IncidentStatusActive, types.IncidentStatusStable},
	})
	if err != nil {
		return err
	}
	blocks := []slack.Block{markdownSection("*Open incidents*")}
	for _, inc := range incidents {
		if inc.IsRestricted() {
			continue
		}
		text := fmt.Sprintf("*%s*: %s\nStatus: %s", inc.Name, inc.Title, inc.Status.Title())
		if link := uc.subjectURL(rc.Organization, inc); link != "" {
			text = fmt.Sprintf("*<%s|%s>*: %s\nStatus: %s", link, inc.Name, inc.Title, inc.Status.Title())
		}
		section := markdownSection(text)
		section.Accessory = slack.NewAccessory(slack.NewButtonBlockElement(ActionJoinIncident,
			encodeActionValue(rc.Organization, inc.Ref()), plainText("Join")))
		blocks = append(blocks, section)
	}
	if len(blocks) == 1 {
		uc.reply(ctx, rc, "There are no open incidents.", nil)
		return nil
	}
	uc.reply(ctx, rc, "Open incidents", blocks)
	return nil
}

func (uc *UseCases) cmdEscalateCase(ctx context.Context, rc *RequestContext) error {
	c := rc.Subject.(*model.Case)
	if c.Status == types.CaseStatusEscalated || c.IsClosed() {
		return model.NewValidationError(BlockStatus, "only new or triaged cases can be escalated")
	}
	view, err := uc.escalateCaseView(ctx, rc.metadata(), c)
	if err != nil {
		return err
	}
	_, err = uc.openModal(ctx, rc, view)
	return err
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "_none_"
	}
	return "• " + strings.Join(items, "\n• ")
}

// cmdSummary replies with the read-in summary of the subject
func (uc *UseCases) cmdSummary(ctx context.Context, rc *RequestContext) error {
	uc.reply(ctx, rc, "Generating a summary, this may take a moment...", nil)
	summary, err := uc.GenerateReadInSummary(ctx, rc.Organization, rc.Ref())
	if err != nil {
		return err
	}
	blocks := []slack.Block{
		slack.NewHeaderBlock(plainText("Read-in summary of " + rc.Subject.GetName())),
		markdownSection("*Summary*\n" + summary.Summary),
		markdownSection("*Current status*\n" + summary.CurrentStatus),
		markdownSection("*Timeline*\n" + bulletList(summary.Timeline)),
		markdownSection("*Actions taken*\n" + bulletList(summary.ActionsTaken)),
		contextBlock("This summary was generated by AI and may contain mistakes."),
	}
	uc.reply(ctx, rc, "Read-in summary of "+rc.Subject.GetName(), blocks)
	logging.From(ctx).Debug("read-in summary delivered")
	return nil
}
