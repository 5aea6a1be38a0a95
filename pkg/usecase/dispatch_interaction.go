package usecase

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

type actionHandler func(uc *UseCases, ctx context.Context, rc *RequestContext, action *slack.BlockAction) error

var actionHandlers = map[string]actionHandler{
	ActionFeedbackOpen:  (*UseCases).actFeedbackOpen,
	ActionRemindAgain:   (*UseCases).actRemindAgain,
	ActionTaskResolve:   (*UseCases).actTaskStatus,
	ActionTaskReopen:    (*UseCases).actTaskStatus,
	ActionInviteUser:    (*UseCases).actInviteUser,
	ActionSubscribeUser: (*UseCases).actSubscribeUser,
	ActionJoinIncident:  (*UseCases).actJoinIncident,
	ActionMonitorLink:   (*UseCases).actMonitorLink,
	ActionIgnoreLink:    (*UseCases).actIgnoreLink,
	ActionCaseReopen:    (*UseCases).actCaseReopen,
	ActionCaseEdit:      (*UseCases).actCaseEdit,
	ActionCaseResolve:   (*UseCases).actCaseResolve,
	ActionCaseEscalate:  (*UseCases).actCaseEscalate,
	ActionProjectSelect: (*UseCases).actProjectSelect,
}

// submitHandler processes a view submission and returns the text shown in
// the final view
type submitHandler func(uc *UseCases, ctx context.Context, rc *RequestContext) (string, error)

var submitHandlers = map[string]submitHandler{
	ViewReportIncident:     (*UseCases).submitReportIncident,
	ViewUpdateIncident:     (*UseCases).submitUpdateIncident,
	ViewAssignRole:         (*UseCases).submitAssignRole,
	ViewEngageOncall:       (*UseCases).submitEngageOncall,
	ViewTacticalReport:     (*UseCases).submitTacticalReport,
	ViewExecutiveReport:    (*UseCases).submitExecutiveReport,
	ViewAddTimelineEvent:   (*UseCases).submitAddTimelineEvent,
	ViewNotificationsGroup: (*UseCases).submitNotificationsGroup,
	ViewUpdateParticipant:  (*UseCases).submitUpdateParticipant,
	ViewFeedback:           (*UseCases).submitFeedback,
	ViewReportCase:         (*UseCases).submitReportCase,
	ViewEditCase:           (*UseCases).submitEditCase,
	ViewResolveCase:        (*UseCases).submitResolveCase,
	ViewEscalateCase:       (*UseCases).submitEscalateCase,
}

// HandleInteraction processes block actions and view submissions. A view
// submission is answered with an updating view right away; the submission
// runs in the background and its outcome replaces that view.
func (uc *UseCases) HandleInteraction(ctx context.Context, cb *slack.InteractionCallback) *slack.ViewSubmissionResponse {
	switch cb.Type {
	case slack.InteractionTypeBlockActions:
		for _, action := range cb.ActionCallback.BlockActions {
			uc.handleBlockAction(ctx, cb, action)
		}
		return nil

	case slack.InteractionTypeViewSubmission:
		handler, ok := submitHandlers[cb.View.CallbackID]
		if !ok {
			logging.From(ctx).Warn("unknown view submission", "callback_id", cb.View.CallbackID)
			return nil
		}
		rc := &RequestContext{
			Kind:       RequestKindInteraction,
			UserID:     cb.User.ID,
			ViewID:     cb.View.ID,
			CallbackID: cb.View.CallbackID,
			Metadata:   parseViewMetadata(cb.View.PrivateMetadata),
			State:      cb.View.State,
		}
		title := "Dispatch"
		if cb.View.Title != nil {
			title = cb.View.Title.Text
		}
		uc.background(ctx, "view."+cb.View.CallbackID, func(ctx context.Context) error {
			uc.dispatch(ctx, rc, cb.View.CallbackID, func(ctx context.Context, rc *RequestContext) error {
				text, err := handler(uc, ctx, rc)
				if err != nil {
					return err
				}
				return uc.call(ctx, rc.Chat, "update_modal", func() error {
					return rc.Chat.UpdateModal(ctx, rc.ViewID, resultView(title, text))
				})
			})
			return nil
		})
		view := UpdatingView(title)
		return slack.NewUpdateViewSubmissionResponse(&view)
	}

	logging.From(ctx).Debug("ignored interaction", "type", cb.Type)
	return nil
}

func (uc *UseCases) handleBlockAction(ctx context.Context, cb *slack.InteractionCallback, action *slack.BlockAction) {
	handler, ok := actionHandlers[action.ActionID]
	if !ok {
		logging.From(ctx).Debug("unknown block action", "action_id", action.ActionID)
		return
	}
	rc := &RequestContext{
		Kind:        RequestKindInteraction,
		UserID:      cb.User.ID,
		ChannelID:   cb.Channel.ID,
		ThreadID:    cb.Message.ThreadTimestamp,
		TriggerID:   cb.TriggerID,
		ResponseURL: cb.ResponseURL,
	}
	if rc.ChannelID == "" {
		rc.ChannelID = cb.Container.ChannelID
	}

	// Actions inside an open view carry their context in its metadata;
	// message buttons carry it in their value.
	if cb.View.ID != "" && cb.Container.Type == "view" {
		rc.ViewID, rc.CallbackID = cb.View.ID, cb.View.CallbackID
		rc.Metadata = parseViewMetadata(cb.View.PrivateMetadata)
		rc.State = cb.View.State
	} else {
		meta, err := actionMetadata(action)
		if err != nil {
			logging.From(ctx).Warn("invalid block action value", "action_id", action.ActionID, "error", err)
			return
		}
		rc.Metadata = meta
	}

	uc.dispatch(ctx, rc, action.ActionID, func(ctx context.Context, rc *RequestContext) error {
		return handler(uc, ctx, rc, action)
	})
}

// actionMetadata extracts the organization and subject of a message button
func actionMetadata(action *slack.BlockAction) (viewMetadata, error) {
	switch action.ActionID {
	case ActionTaskResolve, ActionTaskReopen:
		org, _, err := ParseTaskActionValue(action.Value)
		return viewMetadata{Organization: org}, err
	case ActionRemindAgain:
		org, _, _, err := ParseRemindAgainValue(action.Value)
		return viewMetadata{Organization: org, Subject: action.BlockID}, err
	}
	org, ref, _, err := decodeActionValue(action.Value)
	if err != nil {
		return viewMetadata{}, err
	}
	return viewMetadata{Organization: org, Subject: ref.String()}, nil
}

func actionArg(action *slack.BlockAction) string {
	_, arg, _ := strings.Cut(action.Value, "|")
	return arg
}

func (uc *UseCases) requireSubject(rc *RequestContext, kind types.SubjectKind) error {
	if rc.Subject == nil || rc.Subject.Ref().Kind != kind {
		return goerr.Wrap(model.ErrContext, "interaction requires a subject", goerr.V("required", kind))
	}
	return nil
}

func (uc *UseCases) actFeedbackOpen(ctx context.Context, rc *RequestContext, _ *slack.BlockAction) error {
	if err := uc.requireSubject(rc, types.SubjectKindIncident); err != nil {
		return err
	}
	_, err := uc.openModal(ctx, rc, feedbackView(rc.metadata()))
	return err
}

func (uc *UseCases) actRemindAgain(ctx context.Context, rc *RequestContext, action *slack.BlockAction) error {
	if err := uc.requireSubject(rc, types.SubjectKindIncident); err != nil {
		return err
	}
	_, rt, delay, err := ParseRemindAgainValue(action.Value)
	if err != nil {
		return err
	}
	if err := uc.DelayReportReminder(ctx, rc.Organization, rc.Ref().ID, rt, delay, rc.Email); err != nil {
		return err
	}
	uc.reply(ctx, rc, fmt.Sprintf("I'll remind you again in %s.", delay), nil)
	return nil
}

func (uc *UseCases) actTaskStatus(ctx context.Context, rc *RequestContext, action *slack.BlockAction) error {
	_, id, err := ParseTaskActionValue(action.Value)
	if err != nil {
		return err
	}
	status := types.TaskStatusResolved
	if action.ActionID == ActionTaskReopen {
		status = types.TaskStatusOpen
	}
	_, err = uc.SetTaskStatus(ctx, rc.Organization, id, status, rc.Email)
	return err
}

func (uc *UseCases) actInviteUser(ctx context.Context, rc *RequestContext, action *slack.BlockAction) error {
	email := actionArg(action)
	if rc.Subject == nil || email == "" {
		return goerr.Wrap(model.ErrInvalidInput, "invite action without user", goerr.V("value", action.Value))
	}
	reason := "Invited by " + rc.Email
	if rc.User != nil {
		reason = "Invited by " + rc.User.DisplayName()
	}
	if _, err := uc.AddParticipant(ctx, rc.Organization, rc.Ref(), AddParticipantInput{
		Email:   email,
		Role:    types.ParticipantRoleParticipant,
		AddedBy: rc.Email,
		Reason:  reason,
	}); err != nil {
		return err
	}
	uc.reply(ctx, rc, email+" has been invited to "+rc.Subject.GetName()+".", nil)
	return nil
}

// actSubscribeUser adds the user named in the value, or the clicking user,
// to the tactical group of the incident
func (uc *UseCases) actSubscribeUser(ctx context.Context, rc *RequestContext, action *slack.BlockAction) error {
	if err := uc.requireSubject(rc, types.SubjectKindIncident); err != nil {
		return err
	}
	email := actionArg(action)
	if email == "" {
		email = rc.Email
	}
	bundle, err := uc.bundle(ctx, rc.Organization, rc.Ref())
	if err != nil {
		return err
	}
	if bundle.Get(types.ResourceTypeTacticalGroup) == nil {
		return model.NewValidationError("subscribe", rc.Subject.GetName()+" has no tactical group")
	}
	uc.addToTacticalGroup(ctx, rc.Organization, rc.ProjectID, bundle, []string{email})
	uc.reply(ctx, rc, email+" is now subscribed to the updates of "+rc.Subject.GetName()+".", nil)
	return nil
}

func (uc *UseCases) actJoinIncident(ctx context.Context, rc *RequestContext, _ *slack.BlockAction) error {
	if err := uc.requireSubject(rc, types.SubjectKindIncident); err != nil {
		return err
	}
	if rc.Subject.IsClosed() {
		return model.NewValidationError("join", rc.Subject.GetName()+" is closed")
	}
	if _, err := uc.AddParticipant(ctx, rc.Organization, rc.Ref(), AddParticipantInput{
		Email:   rc.Email,
		Role:    types.ParticipantRoleParticipant,
		AddedBy: rc.Email,
		Reason:  "Joined from the incident list",
	}); err != nil {
		return err
	}
	uc.reply(ctx, rc, "You have been added to "+rc.Subject.GetName()+".", nil)
	return nil
}

// actMonitorLink records the current status of a link on the timeline
func (uc *UseCases) actMonitorLink(ctx context.Context, rc *RequestContext, action *slack.BlockAction) error {
	link := actionArg(action)
	if rc.Subject == nil || link == "" {
		return goerr.Wrap(model.ErrInvalidInput, "monitor action without link", goerr.V("value", action.Value))
	}
	mp, err := active[interfaces.MonitorProvider](ctx, uc, rc.Organization, rc.ProjectID, types.ProviderTypeMonitor)
	if err != nil {
		return err
	}
	if mp == nil {
		return model.NewValidationError("monitor", "no monitor plugin is enabled")
	}
	status, err := callValue(ctx, uc, mp, "status", func() (*model.MonitorStatus, error) {
		return mp.Status(ctx, link)
	})
	if err != nil {
		return err
	}
	uc.logEvent(ctx, rc.Organization, EventInput{
		Subject:     rc.Ref(),
		Source:      mp.Slug(),
		Description: fmt.Sprintf("Monitoring %s (%s)", link, status.State),
		Owner:       rc.Email,
		Details:     map[string]any{"url": link, "state": status.State, "title": status.Title},
	})
	uc.reply(ctx, rc, fmt.Sprintf("<%s> is now monitored. Current state: %s", link, status.State), nil)
	return nil
}

func (uc *UseCases) actIgnoreLink(ctx context.Context, rc *RequestContext, action *slack.BlockAction) error {
	uc.reply(ctx, rc, "OK, <"+actionArg(action)+"> will not be monitored.", nil)
	return nil
}

func (uc *UseCases) actionCase(rc *RequestContext) (*model.Case, error) {
	if err := uc.requireSubject(rc, types.SubjectKindCase); err != nil {
		return nil, err
	}
	return rc.Subject.(*model.Case), nil
}

func (uc *UseCases) actCaseReopen(ctx context.Context, rc *RequestContext, _ *slack.BlockAction) error {
	c, err := uc.actionCase(rc)
	if err != nil {
		return err
	}
	c, err = uc.TransitionCase(ctx, rc.Organization, c.ID, types.CaseStatusTriage, rc.Email)
	if err != nil {
		return err
	}
	uc.refreshCaseThread(ctx, rc.Organization, c)
	return nil
}

func (uc *UseCases) actCaseEdit(ctx context.Context, rc *RequestContext, _ *slack.BlockAction) error {
	c, err := uc.actionCase(rc)
	if err != nil {
		return err
	}
	view, err := uc.editCaseView(ctx, rc.metadata(), c)
	if err != nil {
		return err
	}
	_, err = uc.openModal(ctx, rc, view)
	return err
}

func (uc *UseCases) actCaseResolve(ctx context.Context, rc *RequestContext, _ *slack.BlockAction) error {
	c, err := uc.actionCase(rc)
	if err != nil {
		return err
	}
	_, err = uc.openModal(ctx, rc, resolveCaseView(rc.metadata(), c))
	return err
}

func (uc *UseCases) actCaseEscalate(ctx context.Context, rc *RequestContext, _ *slack.BlockAction) error {
	c, err := uc.actionCase(rc)
	if err != nil {
		return err
	}
	if c.Status != types.CaseStatusNew && c.Status != types.CaseStatusTriage {
		return model.NewValidationError(BlockStatus, "only new or triaged cases can be escalated")
	}
	view, err := uc.escalateCaseView(ctx, rc.metadata(), c)
	if err != nil {
		return err
	}
	_, err = uc.openModal(ctx, rc, view)
	return err
}

// actProjectSelect rebuilds a report form for the selected project,
// keeping the text already entered
func (uc *UseCases) actProjectSelect(ctx context.Context, rc *RequestContext, action *slack.BlockAction) error {
	if rc.ViewID == "" {
		return nil
	}
	p, err := uc.projectSelection(ctx, rc.Organization, model.SelectedValue{Value: action.SelectedOption.Value}, rc.ProjectID)
	if err != nil {
		return err
	}
	rc.ProjectID = p.ID

	var view slack.ModalViewRequest
	switch rc.CallbackID {
	case ViewReportCase:
		view, err = uc.reportCaseView(ctx, rc, p.ID, rc.Form)
	case ViewReportIncident:
		view, err = uc.reportIncidentView(ctx, rc, p.ID, rc.Form)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	return uc.call(ctx, rc.Chat, "update_modal", func() error {
		return rc.Chat.UpdateModal(ctx, rc.ViewID, view)
	})
}

// refreshCaseThread rewrites the root message of a case living in a thread
func (uc *UseCases) refreshCaseThread(ctx context.Context, org string, c *model.Case) {
	bundle, err := uc.bundle(ctx, org, c.Ref())
	if err != nil {
		return
	}
	conv := bundle.Get(types.ResourceTypeConversation)
	if conv == nil || conv.ThreadID == "" {
		return
	}
	chat, err := uc.chat(ctx, org, c.ProjectID)
	if err != nil || chat == nil {
		return
	}
	if err := uc.call(ctx, chat, "update_message", func() error {
		return chat.UpdateMessage(ctx, conv.ChannelID, conv.ThreadID, c.Title, caseThreadBlocks(org, c))
	}); err != nil {
		logging.From(ctx).Warn("failed to refresh case thread", "case", c.Name, "error", err)
	}
}

// formTags resolves the selected tags of a form
func (uc *UseCases) formTags(ctx context.Context, rc *RequestContext, projectID int64) ([]int64, error) {
	var ids []int64
	for _, sel := range rc.Form.MultiSelected(BlockTags) {
		id, err := catalogSelection(ctx, uc.repo.Tag(), rc.Organization, projectID, BlockTags, sel)
		if err != nil {
			return nil, err
		}
		if id != 0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// incidentClassificationForm resolves the type, severity and priority of a
// submitted incident form
func (uc *UseCases) incidentClassificationForm(ctx context.Context, rc *RequestContext, projectID int64) (typeID, severityID, priorityID int64, err error) {
	sel, _ := rc.Form.Selected(BlockIncidentType)
	if typeID, err = catalogSelection(ctx, uc.repo.IncidentType(), rc.Organization, projectID, BlockIncidentType, sel); err != nil {
		return
	}
	sel, _ = rc.Form.Selected(BlockIncidentSeverity)
	if severityID, err = catalogSelection(ctx, uc.repo.IncidentSeverity(), rc.Organization, projectID, BlockIncidentSeverity, sel); err != nil {
		return
	}
	sel, _ = rc.Form.Selected(BlockIncidentPriority)
	priorityID, err = catalogSelection(ctx, uc.repo.IncidentPriority(), rc.Organization, projectID, BlockIncidentPriority, sel)
	return
}

func (uc *UseCases) caseClassificationForm(ctx context.Context, rc *RequestContext, projectID int64) (typeID, severityID, priorityID int64, err error) {
	sel, _ := rc.Form.Selected(BlockCaseType)
	if typeID, err = catalogSelection(ctx, uc.repo.CaseType(), rc.Organization, projectID, BlockCaseType, sel); err != nil {
		return
	}
	sel, _ = rc.Form.Selected(BlockCaseSeverity)
	if severityID, err = catalogSelection(ctx, uc.repo.CaseSeverity(), rc.Organization, projectID, BlockCaseSeverity, sel); err != nil {
		return
	}
	sel, _ = rc.Form.Selected(BlockCasePriority)
	priorityID, err = catalogSelection(ctx, uc.repo.CasePriority(), rc.Organization, projectID, BlockCasePriority, sel)
	return
}

func requireText(form model.FormData, blocks ...string) error {
	for _, b := range blocks {
		if strings.TrimSpace(form.Text(b)) == "" {
			return model.NewValidationError(b, "field required")
		}
	}
	return nil
}

func (uc *UseCases) submitReportIncident(ctx context.Context, rc *RequestContext) (string, error) {
	if err := requireText(rc.Form, BlockTitle, BlockDescription); err != nil {
		return "", err
	}
	sel, _ := rc.Form.Selected(BlockProject)
	project, err := uc.projectSelection(ctx, rc.Organization, sel, rc.ProjectID)
	if err != nil {
		return "", err
	}
	typeID, sevID, prioID, err := uc.incidentClassificationForm(ctx, rc, project.ID)
	if err != nil {
		return "", err
	}
	tags, err := uc.formTags(ctx, rc, project.ID)
	if err != nil {
		return "", err
	}

	inc, err := uc.CreateIncident(ctx, rc.Organization, CreateIncidentInput{
		ProjectID:   project.ID,
		Title:       rc.Form.Text(BlockTitle),
		Description: rc.Form.Text(BlockDescription),
		TypeID:      typeID,
		SeverityID:  sevID,
		PriorityID:  prioID,
		TagIDs:      tags,
		Reporter:    rc.Email,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("This is a confirmation that you have reported an incident with the following information. You will be invited to the incident conversation shortly.\n*Name:* %s\n*Title:* %s", inc.Name, inc.Title), nil
}

func optionalText(form model.FormData, block string) *string {
	if _, ok := form[block]; !ok {
		return nil
	}
	v := form.Text(block)
	return &v
}

func (uc *UseCases) submitUpdateIncident(ctx context.Context, rc *RequestContext) (string, error) {
	if err := uc.requireSubject(rc, types.SubjectKindIncident); err != nil {
		return "", err
	}
	inc := rc.Subject.(*model.Incident)
	typeID, sevID, prioID, err := uc.incidentClassificationForm(ctx, rc, inc.ProjectID)
	if err != nil {
		return "", err
	}
	tags, err := uc.formTags(ctx, rc, inc.ProjectID)
	if err != nil {
		return "", err
	}

	in := UpdateIncidentInput{
		Title:       optionalText(rc.Form, BlockTitle),
		Description: optionalText(rc.Form, BlockDescription),
		Resolution:  optionalText(rc.Form, BlockResolution),
		TypeID:      typeID,
		SeverityID:  sevID,
		PriorityID:  prioID,
		TagIDs:      tags,
		Actor:       rc.Email,
	}
	if s := rc.Form.Text(BlockStatus); s != "" {
		status, err := types.ParseIncidentStatus(s)
		if err != nil {
			return "", model.NewValidationError(BlockStatus, err.Error())
		}
		in.Status = &status
	}
	if v := rc.Form.Text(BlockVisibility); v != "" {
		vis, err := types.ParseVisibility(v)
		if err != nil {
			return "", model.NewValidationError(BlockVisibility, err.Error())
		}
		in.Visibility = &vis
	}
	updated, err := uc.UpdateIncident(ctx, rc.Organization, inc.ID, in)
	if err != nil {
		return "", err
	}
	return "Incident " + updated.Name + " has been updated.", nil
}

// formUserEmail resolves the chat user selected in block
func (uc *UseCases) formUserEmail(ctx context.Context, rc *RequestContext, block string) (string, error) {
	sel, ok := rc.Form.Selected(block)
	if !ok {
		if multi := rc.Form.MultiSelected(block); len(multi) > 0 {
			sel = multi[0]
		}
	}
	if sel.Value == "" {
		return "", model.NewValidationError(block, "select a person")
	}
	if strings.Contains(sel.Value, "@") {
		return strings.ToLower(sel.Value), nil
	}
	u, err := callValue(ctx, uc, rc.Chat, "get_user", func() (*model.ChatUser, error) {
		return rc.Chat.GetUser(ctx, sel.Value)
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to resolve selected user", goerr.V("user_id", sel.Value))
	}
	if u.Email == "" {
		return "", model.NewValidationError(block, "the selected user has no email address")
	}
	return strings.ToLower(u.Email), nil
}

func (uc *UseCases) submitAssignRole(ctx context.Context, rc *RequestContext) (string, error) {
	if rc.Subject == nil {
		return "", goerr.Wrap(model.ErrContext, "assign role without subject")
	}
	email, err := uc.formUserEmail(ctx, rc, BlockParticipant)
	if err != nil {
		return "", err
	}
	role, err := types.ParseParticipantRole(rc.Form.Text(BlockRole))
	if err != nil {
		return "", model.NewValidationError(BlockRole, err.Error())
	}
	result, err := uc.AssignRole(ctx, rc.Organization, rc.Ref(), email, role, rc.Email)
	if err != nil {
		return "", err
	}
	switch result {
	case types.AssignResultAssigneeHasRole:
		return fmt.Sprintf("%s already has the %s role.", email, role.Title()), nil
	case types.AssignResultRoleNotAssigned:
		return fmt.Sprintf("The %s role could not be assigned to %s.", role.Title(), email), nil
	}
	return fmt.Sprintf("%s has been assigned the %s role.", email, role.Title()), nil
}

func (uc *UseCases) submitEngageOncall(ctx context.Context, rc *RequestContext) (string, error) {
	if err := uc.requireSubject(rc, types.SubjectKindIncident); err != nil {
		return "", err
	}
	sel, _ := rc.Form.Selected(BlockService)
	id, err := strconv.ParseInt(sel.Value, 10, 64)
	if err != nil {
		return "", model.NewValidationError(BlockService, "select a service")
	}
	svc, err := uc.repo.Service().Get(ctx, rc.Organization, id)
	if err != nil {
		return "", goerr.Wrap(err, "failed to get service", goerr.V("service_id", id))
	}

	email := uc.resolveOncall(ctx, rc.Organization, rc.ProjectID, svc.ExternalID)
	if email == "" {
		return "", model.NewValidationError(BlockService, "no one is on call for "+svc.Name)
	}
	if _, err := uc.AddParticipant(ctx, rc.Organization, rc.Ref(), AddParticipantInput{
		Email:     email,
		Role:      types.ParticipantRoleParticipant,
		ServiceID: svc.ExternalID,
		AddedBy:   rc.Email,
		Reason:    "On-call for " + svc.Name,
	}); err != nil {
		return "", err
	}
	text := fmt.Sprintf("%s, on-call for %s, has been added to the incident.", email, svc.Name)
	if strings.TrimSpace(rc.Form.Text(BlockDescription)) != "" {
		uc.pageService(ctx, rc.Organization, rc.Subject, svc.ExternalID)
		text += " The service has been paged."
	}
	return text, nil
}

func (uc *UseCases) submitReport(ctx context.Context, rc *RequestContext, rt types.ReportType) (string, error) {
	if err := uc.requireSubject(rc, types.SubjectKindIncident); err != nil {
		return "", err
	}
	if _, err := uc.CreateReport(ctx, rc.Organization, rc.Ref().ID, ReportInput{
		Type:    rt,
		Details: rc.Form.Details(),
		Actor:   rc.Email,
	}); err != nil {
		return "", err
	}
	return fmt.Sprintf("The %s report of %s has been created.", rt, rc.Subject.GetName()), nil
}

func (uc *UseCases) submitTacticalReport(ctx context.Context, rc *RequestContext) (string, error) {
	return uc.submitReport(ctx, rc, types.ReportTypeTactical)
}

func (uc *UseCases) submitExecutiveReport(ctx context.Context, rc *RequestContext) (string, error) {
	return uc.submitReport(ctx, rc, types.ReportTypeExecutive)
}

func (uc *UseCases) submitAddTimelineEvent(ctx context.Context, rc *RequestContext) (string, error) {
	if rc.Subject == nil {
		return "", goerr.Wrap(model.ErrContext, "timeline event without subject")
	}
	if err := requireText(rc.Form, BlockDescription); err != nil {
		return "", err
	}
	date, ok := rc.Form.Date(BlockDate)
	if !ok {
		return "", model.NewValidationError(BlockDate, "pick a date")
	}
	day, err := date.Time()
	if err != nil {
		return "", model.NewValidationError(BlockDate, "invalid date")
	}
	clock, err := time.Parse("15:04", strings.TrimSpace(rc.Form.Text(BlockTime)))
	if err != nil {
		return "", model.NewValidationError(BlockTime, "use the HH:MM format")
	}
	startedAt := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, time.UTC)

	if _, err := uc.LogEvent(ctx, rc.Organization, EventInput{
		Subject:     rc.Ref(),
		Source:      SourceChat,
		Description: rc.Form.Text(BlockDescription),
		Type:        types.EventTypeOther,
		StartedAt:   startedAt,
		Owner:       rc.Email,
	}); err != nil {
		return "", err
	}
	return "The event has been added to the timeline.", nil
}

// submitNotificationsGroup reconciles the notifications group with the
// submitted member list
func (uc *UseCases) submitNotificationsGroup(ctx context.Context, rc *RequestContext) (string, error) {
	if err := uc.requireSubject(rc, types.SubjectKindIncident); err != nil {
		return "", err
	}
	bundle, err := uc.bundle(ctx, rc.Organization, rc.Ref())
	if err != nil {
		return "", err
	}
	group := bundle.Get(types.ResourceTypeNotificationsGroup)
	if group == nil {
		return "", model.NewValidationError(BlockMembers, "this incident has no notifications group")
	}
	gp, err := active[interfaces.GroupProvider](ctx, uc, rc.Organization, rc.ProjectID, types.ProviderTypeGroup)
	if err != nil {
		return "", err
	}
	if gp == nil {
		return "", model.NewValidationError(BlockMembers, "no group plugin is enabled")
	}
	current, err := callValue(ctx, uc, gp, "list_members", func() ([]string, error) {
		return gp.ListMembers(ctx, group.Email)
	})
	if err != nil {
		return "", err
	}

	var wanted []string
	for _, line := range strings.FieldsFunc(rc.Form.Text(BlockMembers), func(r rune) bool { return r == '\n' || r == ',' }) {
		if m := strings.ToLower(strings.TrimSpace(line)); m != "" {
			wanted = append(wanted, m)
		}
	}
	wanted = uniqueStrings(wanted)

	var add, remove []string
	for _, m := range wanted {
		if !slices.Contains(current, m) {
			add = append(add, m)
		}
	}
	for _, m := range current {
		if !slices.Contains(wanted, m) {
			remove = append(remove, m)
		}
	}
	if len(add) > 0 {
		if err := uc.call(ctx, gp, "add_members", func() error { return gp.AddMembers(ctx, group.Email, add) }); err != nil {
			return "", err
		}
	}
	if len(remove) > 0 {
		if err := uc.call(ctx, gp, "remove_members", func() error { return gp.RemoveMembers(ctx, group.Email, remove) }); err != nil {
			return "", err
		}
	}
	uc.logEvent(ctx, rc.Organization, EventInput{
		Subject:     rc.Ref(),
		Description: fmt.Sprintf("Notifications group updated: %d added, %d removed", len(add), len(remove)),
		Type:        types.EventTypeParticipantUpdated,
		Owner:       rc.Email,
	})
	return "The notifications group has been updated.", nil
}

func (uc *UseCases) submitUpdateParticipant(ctx context.Context, rc *RequestContext) (string, error) {
	if rc.Subject == nil {
		return "", goerr.Wrap(model.ErrContext, "update participant without subject")
	}
	email := strings.ToLower(rc.Form.Text(BlockParticipant))
	p, err := uc.repo.Participant().GetByEmail(ctx, rc.Organization, rc.Ref(), email)
	if err != nil {
		return "", goerr.Wrap(err, "failed to get participant", goerr.V(model.EmailKey, email))
	}
	if p == nil {
		return "", model.NewValidationError(BlockParticipant, email+" does not participate")
	}
	if v := optionalText(rc.Form, BlockReason); v != nil {
		p.AddedReason = *v
	}
	if v := optionalText(rc.Form, BlockTeam); v != nil {
		p.Team = *v
	}
	if v := optionalText(rc.Form, BlockLocation); v != nil {
		p.Location = *v
	}
	if _, err := uc.repo.Participant().Update(ctx, rc.Organization, p); err != nil {
		return "", goerr.Wrap(err, "failed to update participant", goerr.V(model.EmailKey, email))
	}
	return "The participant " + email + " has been updated.", nil
}

func (uc *UseCases) submitFeedback(ctx context.Context, rc *RequestContext) (string, error) {
	if err := uc.requireSubject(rc, types.SubjectKindIncident); err != nil {
		return "", err
	}
	if _, err := uc.SubmitFeedback(ctx, rc.Organization, rc.Ref().ID, FeedbackInput{
		Email:     rc.Email,
		Rating:    rc.Form.Text(BlockRating),
		Feedback:  rc.Form.Text(BlockFeedback),
		Anonymous: len(rc.Form.MultiSelected(BlockAnonymous)) > 0,
	}); err != nil {
		return "", err
	}
	return "Thank you for your feedback!", nil
}

func (uc *UseCases) submitReportCase(ctx context.Context, rc *RequestContext) (string, error) {
	if err := requireText(rc.Form, BlockTitle); err != nil {
		return "", err
	}
	sel, _ := rc.Form.Selected(BlockProject)
	project, err := uc.projectSelection(ctx, rc.Organization, sel, rc.ProjectID)
	if err != nil {
		return "", err
	}
	typeID, sevID, prioID, err := uc.caseClassificationForm(ctx, rc, project.ID)
	if err != nil {
		return "", err
	}
	c, err := uc.CreateCase(ctx, rc.Organization, CreateCaseInput{
		ProjectID:   project.ID,
		Title:       rc.Form.Text(BlockTitle),
		Description: rc.Form.Text(BlockDescription),
		TypeID:      typeID,
		SeverityID:  sevID,
		PriorityID:  prioID,
		Reporter:    rc.Email,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Case %s has been created.\n*Title:* %s", c.Name, c.Title), nil
}

func (uc *UseCases) submitEditCase(ctx context.Context, rc *RequestContext) (string, error) {
	c, err := uc.actionCase(rc)
	if err != nil {
		return "", err
	}
	typeID, sevID, prioID, err := uc.caseClassificationForm(ctx, rc, c.ProjectID)
	if err != nil {
		return "", err
	}
	in := UpdateCaseInput{
		Title:       optionalText(rc.Form, BlockTitle),
		Description: optionalText(rc.Form, BlockDescription),
		TypeID:      typeID,
		SeverityID:  sevID,
		PriorityID:  prioID,
		Actor:       rc.Email,
	}
	if s := rc.Form.Text(BlockStatus); s != "" {
		status, err := types.ParseCaseStatus(s)
		if err != nil {
			return "", model.NewValidationError(BlockStatus, err.Error())
		}
		in.Status = &status
	}
	if v := rc.Form.Text(BlockVisibility); v != "" {
		vis, err := types.ParseVisibility(v)
		if err != nil {
			return "", model.NewValidationError(BlockVisibility, err.Error())
		}
		in.Visibility = &vis
	}
	updated, err := uc.UpdateCase(ctx, rc.Organization, c.ID, in)
	if err != nil {
		return "", err
	}
	uc.refreshCaseThread(ctx, rc.Organization, updated)
	return "Case " + updated.Name + " has been updated.", nil
}

func (uc *UseCases) submitResolveCase(ctx context.Context, rc *RequestContext) (string, error) {
	c, err := uc.actionCase(rc)
	if err != nil {
		return "", err
	}
	reason := rc.Form.Text(BlockResolutionReason)
	if !slices.Contains(caseResolutionReasons, reason) {
		return "", model.NewValidationError(BlockResolutionReason, "select a resolution reason")
	}
	resolution := rc.Form.Text(BlockResolution)
	closed := types.CaseStatusClosed
	updated, err := uc.UpdateCase(ctx, rc.Organization, c.ID, UpdateCaseInput{
		Resolution:       &resolution,
		ResolutionReason: &reason,
		Status:           &closed,
		Actor:            rc.Email,
	})
	if err != nil {
		return "", err
	}
	uc.refreshCaseThread(ctx, rc.Organization, updated)
	return "Case " + updated.Name + " has been resolved.", nil
}

func (uc *UseCases) submitEscalateCase(ctx context.Context, rc *RequestContext) (string, error) {
	c, err := uc.actionCase(rc)
	if err != nil {
		return "", err
	}
	typeID, sevID, prioID, err := uc.incidentClassificationForm(ctx, rc, c.ProjectID)
	if err != nil {
		return "", err
	}
	_, inc, err := uc.EscalateCase(ctx, rc.Organization, c.ID, EscalateCaseInput{
		IncidentTypeID:     typeID,
		IncidentSeverityID: sevID,
		IncidentPriorityID: prioID,
		Title:              rc.Form.Text(BlockTitle),
		Actor:              rc.Email,
	})
	if err != nil {
		return "", err
	}
	if inc == nil {
		return "Case " + c.Name + " was not escalated because it is no longer open.", nil
	}
	return fmt.Sprintf("Case %s has been escalated to incident %s.", c.Name, inc.Name), nil
}
