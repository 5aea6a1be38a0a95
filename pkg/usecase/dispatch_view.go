package usecase

import (
	"context"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// View callback ids
const (
	ViewReportIncident     = "incident-report"
	ViewUpdateIncident     = "incident-update"
	ViewAssignRole         = "incident-assign-role"
	ViewEngageOncall       = "incident-engage-oncall"
	ViewTacticalReport     = "incident-tactical-report"
	ViewExecutiveReport    = "incident-executive-report"
	ViewAddTimelineEvent   = "incident-add-timeline-event"
	ViewNotificationsGroup = "incident-notifications-group"
	ViewUpdateParticipant  = "incident-update-participant"
	ViewFeedback           = "incident-feedback"
	ViewReportCase         = "case-report"
	ViewEditCase           = "case-edit"
	ViewResolveCase        = "case-resolve"
	ViewEscalateCase       = "case-escalate-submit"
)

// Block ids of view inputs. They are the keys of the submitted FormData.
const (
	BlockTitle            = "title"
	BlockDescription      = "description"
	BlockResolution       = "resolution"
	BlockResolutionReason = "resolution_reason"
	BlockProject          = "project"
	BlockIncidentType     = "incident_type"
	BlockIncidentSeverity = "incident_severity"
	BlockIncidentPriority = "incident_priority"
	BlockCaseType         = "case_type"
	BlockCaseSeverity     = "case_severity"
	BlockCasePriority     = "case_priority"
	BlockTags             = "tags"
	BlockStatus           = "status"
	BlockVisibility       = "visibility"
	BlockParticipant      = "participant"
	BlockRole             = "role"
	BlockService          = "service"
	BlockDate             = "date"
	BlockTime             = "time"
	BlockMembers          = "members"
	BlockReason           = "reason"
	BlockTeam             = "team"
	BlockLocation         = "location"
	BlockRating           = "rating"
	BlockFeedback         = "feedback"
	BlockAnonymous        = "anonymous"
)

// caseResolutionReasons are the selectable reasons of a resolved case
var caseResolutionReasons = []string{
	"False Positive",
	"User Acknowledged",
	"Mitigated",
	"Escalated",
	"Other",
}

func plainText(s string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, s, false, false)
}

func option(value, text string) *slack.OptionBlockObject {
	return slack.NewOptionBlockObject(value, plainText(text), nil)
}

func idOption(item model.CatalogItem) *slack.OptionBlockObject {
	return option(strconv.FormatInt(item.GetID(), 10), item.GetName())
}

func textInput(blockID, label, initial string, multiline, optional bool) *slack.InputBlock {
	el := slack.NewPlainTextInputBlockElement(nil, blockID)
	el.Multiline = multiline
	el.InitialValue = initial
	b := slack.NewInputBlock(blockID, plainText(label), nil, el)
	b.Optional = optional
	return b
}

func selectInput(blockID, label string, options []*slack.OptionBlockObject, initial *slack.OptionBlockObject, optional bool) *slack.InputBlock {
	el := slack.NewOptionsSelectBlockElement(slack.OptTypeStatic, plainText("Select "+label), blockID, options...)
	el.InitialOption = initial
	b := slack.NewInputBlock(blockID, plainText(label), nil, el)
	b.Optional = optional
	return b
}

func multiSelectInput(blockID, label string, options []*slack.OptionBlockObject, initial []*slack.OptionBlockObject) *slack.InputBlock {
	el := slack.NewOptionsMultiSelectBlockElement(slack.MultiOptTypeStatic, plainText("Select "+label), blockID, options...)
	if len(initial) > 0 {
		el.InitialOptions = initial
	}
	b := slack.NewInputBlock(blockID, plainText(label), nil, el)
	b.Optional = true
	return b
}

func modal(callbackID, title, submit string, meta viewMetadata, blocks ...slack.Block) slack.ModalViewRequest {
	v := slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      callbackID,
		Title:           plainText(title),
		Close:           plainText("Cancel"),
		Blocks:          slack.Blocks{BlockSet: blocks},
		PrivateMetadata: meta.encode(),
	}
	if submit != "" {
		v.Submit = plainText(submit)
	}
	return v
}

// UpdatingView is the acknowledgement view shown while a submission is
// processed
func UpdatingView(title string) slack.ModalViewRequest {
	return resultView(title, ":hourglass_flowing_sand: Updating, this may take a few seconds...")
}

// resultView is the final view of a processed submission
func resultView(title, text string) slack.ModalViewRequest {
	if len(title) > 24 {
		title = title[:24]
	}
	return slack.ModalViewRequest{
		Type:   slack.VTModal,
		Title:  plainText(title),
		Close:  plainText("Close"),
		Blocks: slack.Blocks{BlockSet: []slack.Block{markdownSection(text)}},
	}
}

// catalogOptions lists the enabled items of a project as options with the
// selected item (or the default) as initial option
func catalogOptions[T model.CatalogItem](ctx context.Context, repo interfaces.CatalogRepository[T], org string, projectID, selected int64) ([]*slack.OptionBlockObject, *slack.OptionBlockObject, error) {
	items, err := repo.List(ctx, org, projectID)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to list catalog", goerr.V(model.ProjectIDKey, projectID))
	}
	var options []*slack.OptionBlockObject
	var initial *slack.OptionBlockObject
	for _, item := range items {
		if !item.IsEnabled() {
			continue
		}
		o := idOption(item)
		options = append(options, o)
		if item.GetID() == selected || (selected == 0 && item.IsDefault() && initial == nil) {
			initial = o
		}
	}
	return options, initial, nil
}

func (uc *UseCases) projectBlock(ctx context.Context, org string, selected int64) (slack.Block, error) {
	projects, err := uc.repo.Project().List(ctx, org)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list projects", goerr.V(model.OrgKey, org))
	}
	var options []*slack.OptionBlockObject
	var initial *slack.OptionBlockObject
	for _, p := range projects {
		o := option(strconv.FormatInt(p.ID, 10), p.Name)
		options = append(options, o)
		if p.ID == selected {
			initial = o
		}
	}
	el := slack.NewOptionsSelectBlockElement(slack.OptTypeStatic, plainText("Select project"), ActionProjectSelect, options...)
	el.InitialOption = initial
	b := slack.NewInputBlock(BlockProject, plainText("Project"), nil, el)
	b.DispatchAction = true
	return b, nil
}

func (uc *UseCases) tagBlock(ctx context.Context, org string, projectID int64, selected []int64) (slack.Block, error) {
	tags, err := uc.repo.Tag().List(ctx, org, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list tags", goerr.V(model.ProjectIDKey, projectID))
	}
	var options, initial []*slack.OptionBlockObject
	for _, t := range tags {
		if !t.IsEnabled() {
			continue
		}
		o := idOption(t)
		options = append(options, o)
		for _, id := range selected {
			if id == t.ID {
				initial = append(initial, o)
			}
		}
	}
	if len(options) == 0 {
		return nil, nil
	}
	return multiSelectInput(BlockTags, "Tags", options, initial), nil
}

// incidentClassification builds the type, severity and priority inputs of
// the project
func (uc *UseCases) incidentClassification(ctx context.Context, org string, projectID int64, inc *model.Incident) ([]slack.Block, error) {
	var typeID, sevID, prioID int64
	if inc != nil {
		typeID, sevID, prioID = inc.TypeID, inc.SeverityID, inc.PriorityID
	}
	typeOpts, typeInit, err := catalogOptions(ctx, uc.repo.IncidentType(), org, projectID, typeID)
	if err != nil {
		return nil, err
	}
	sevOpts, sevInit, err := catalogOptions(ctx, uc.repo.IncidentSeverity(), org, projectID, sevID)
	if err != nil {
		return nil, err
	}
	prioOpts, prioInit, err := catalogOptions(ctx, uc.repo.IncidentPriority(), org, projectID, prioID)
	if err != nil {
		return nil, err
	}
	return []slack.Block{
		selectInput(BlockIncidentType, "Type", typeOpts, typeInit, true),
		selectInput(BlockIncidentSeverity, "Severity", sevOpts, sevInit, true),
		selectInput(BlockIncidentPriority, "Priority", prioOpts, prioInit, true),
	}, nil
}

func (uc *UseCases) caseClassification(ctx context.Context, org string, projectID int64, c *model.Case) ([]slack.Block, error) {
	var typeID, sevID, prioID int64
	if c != nil {
		typeID, sevID, prioID = c.TypeID, c.SeverityID, c.PriorityID
	}
	typeOpts, typeInit, err := catalogOptions(ctx, uc.repo.CaseType(), org, projectID, typeID)
	if err != nil {
		return nil, err
	}
	sevOpts, sevInit, err := catalogOptions(ctx, uc.repo.CaseSeverity(), org, projectID, sevID)
	if err != nil {
		return nil, err
	}
	prioOpts, prioInit, err := catalogOptions(ctx, uc.repo.CasePriority(), org, projectID, prioID)
	if err != nil {
		return nil, err
	}
	return []slack.Block{
		selectInput(BlockCaseType, "Type", typeOpts, typeInit, true),
		selectInput(BlockCaseSeverity, "Severity", sevOpts, sevInit, true),
		selectInput(BlockCasePriority, "Priority", prioOpts, prioInit, true),
	}, nil
}

// reportIncidentView is the incident report form for a project. It is
// rebuilt when another project is selected.
func (uc *UseCases) reportIncidentView(ctx context.Context, rc *RequestContext, projectID int64, form model.FormData) (slack.ModalViewRequest, error) {
	proj, err := uc.projectBlock(ctx, rc.Organization, projectID)
	if err != nil {
		return slack.ModalViewRequest{}, err
	}
	classification, err := uc.incidentClassification(ctx, rc.Organization, projectID, nil)
	if err != nil {
		return slack.ModalViewRequest{}, err
	}
	tags, err := uc.tagBlock(ctx, rc.Organization, projectID, nil)
	if err != nil {
		return slack.ModalViewRequest{}, err
	}

	blocks := []slack.Block{
		contextBlock("If you suspect a security incident and need help, please fill out this form to the best of your abilities."),
		textInput(BlockTitle, "Title", form.Text(BlockTitle), false, false),
		textInput(BlockDescription, "Description", form.Text(BlockDescription), true, false),
		proj,
	}
	blocks = append(blocks, classification...)
	if tags != nil {
		blocks = append(blocks, tags)
	}

	meta := rc.metadata()
	meta.Subject, meta.ProjectID = "", projectID
	return modal(ViewReportIncident, "Report Incident", "Report", meta, blocks...), nil
}

func statusOptions[S ~string](statuses []S, current S) ([]*slack.OptionBlockObject, *slack.OptionBlockObject) {
	var options []*slack.OptionBlockObject
	var initial *slack.OptionBlockObject
	for _, s := range statuses {
		o := option(string(s), string(s))
		options = append(options, o)
		if s == current {
			initial = o
		}
	}
	return options, initial
}

func visibilityBlock(current types.Visibility) slack.Block {
	options, initial := statusOptions([]types.Visibility{types.VisibilityOpen, types.VisibilityRestricted}, current)
	return selectInput(BlockVisibility, "Visibility", options, initial, true)
}

func (uc *UseCases) updateIncidentView(ctx context.Context, rc *RequestContext, inc *model.Incident) (slack.ModalViewRequest, error) {
	classification, err := uc.incidentClassification(ctx, rc.Organization, inc.ProjectID, inc)
	if err != nil {
		return slack.ModalViewRequest{}, err
	}
	tags, err := uc.tagBlock(ctx, rc.Organization, inc.ProjectID, inc.TagIDs)
	if err != nil {
		return slack.ModalViewRequest{}, err
	}
	statuses, current := statusOptions([]types.IncidentStatus{types.IncidentStatusActive, types.IncidentStatusStable, types.IncidentStatusClosed}, inc.Status)

	blocks := []slack.Block{
		textInput(BlockTitle, "Title", inc.Title, false, false),
		textInput(BlockDescription, "Description", inc.Description, true, false),
		textInput(BlockResolution, "Resolution", inc.Resolution, true, true),
		selectInput(BlockStatus, "Status", statuses, current, false),
		visibilityBlock(inc.Visibility),
	}
	blocks = append(blocks, classification...)
	if tags != nil {
		blocks = append(blocks, tags)
	}
	return modal(ViewUpdateIncident, "Update Incident", "Update", rc.metadata(), blocks...), nil
}

func roleOptions(kind types.SubjectKind) []*slack.OptionBlockObject {
	roles := []types.ParticipantRole{
		types.ParticipantRoleIncidentCommander,
		types.ParticipantRoleScribe,
		types.ParticipantRoleLiaison,
		types.ParticipantRoleObserver,
		types.ParticipantRoleParticipant,
	}
	if kind == types.SubjectKindCase {
		roles = []types.ParticipantRole{
			types.ParticipantRoleAssignee,
			types.ParticipantRoleObserver,
			types.ParticipantRoleParticipant,
		}
	}
	options := make([]*slack.OptionBlockObject, 0, len(roles))
	for _, r := range roles {
		options = append(options, option(string(r), r.Title()))
	}
	return options
}

func userInput(blockID, label string) *slack.InputBlock {
	el := slack.NewOptionsSelectBlockElement(slack.OptTypeUser, plainText("Select a person"), blockID)
	return slack.NewInputBlock(blockID, plainText(label), nil, el)
}

func assignRoleView(rc *RequestContext) slack.ModalViewRequest {
	return modal(ViewAssignRole, "Assign Role", "Assign", rc.metadata(),
		userInput(BlockParticipant, "Person"),
		selectInput(BlockRole, "Role", roleOptions(rc.Ref().Kind), nil, false),
	)
}

func (uc *UseCases) engageOncallView(ctx context.Context, rc *RequestContext) (slack.ModalViewRequest, error) {
	services, err := uc.repo.Service().List(ctx, rc.Organization, rc.ProjectID)
	if err != nil {
		return slack.ModalViewRequest{}, goerr.Wrap(err, "failed to list services", goerr.V(model.ProjectIDKey, rc.ProjectID))
	}
	var options []*slack.OptionBlockObject
	for _, s := range services {
		if s.IsEnabled() {
			options = append(options, idOption(s))
		}
	}
	if len(options) == 0 {
		return slack.ModalViewRequest{}, model.NewValidationError(BlockService, "no on-call services are configured for this project")
	}
	return modal(ViewEngageOncall, "Engage Oncall", "Engage", rc.metadata(),
		selectInput(BlockService, "Service", options, nil, false),
		textInput(BlockDescription, "Page description", "", true, true),
	), nil
}

func tacticalReportView(rc *RequestContext, prev map[string]any) slack.ModalViewRequest {
	initial := func(key string) string {
		v, _ := prev[key].(string)
		return v
	}
	return modal(ViewTacticalReport, "Tactical Report", "Submit", rc.metadata(),
		contextBlock("Use this form to create a tactical report."),
		textInput(ReportConditions, "Conditions", initial(ReportConditions), true, false),
		textInput(ReportActions, "Actions", initial(ReportActions), true, false),
		textInput(ReportNeeds, "Needs", initial(ReportNeeds), true, false),
	)
}

func executiveReportView(rc *RequestContext, prev map[string]any) slack.ModalViewRequest {
	initial := func(key string) string {
		v, _ := prev[key].(string)
		return v
	}
	return modal(ViewExecutiveReport, "Executive Report", "Submit", rc.metadata(),
		contextBlock("Use this form to create an executive report."),
		textInput(ReportCurrentStatus, "Current Status", initial(ReportCurrentStatus), true, false),
		textInput(ReportOverview, "Overview", initial(ReportOverview), true, false),
		textInput(ReportNextSteps, "Next Steps", initial(ReportNextSteps), true, false),
	)
}

func addTimelineEventView(rc *RequestContext) slack.ModalViewRequest {
	date := slack.NewDatePickerBlockElement(BlockDate)
	return modal(ViewAddTimelineEvent, "Add Timeline Event", "Add", rc.metadata(),
		contextBlock("Use this form to add an event to the timeline. Times are in UTC."),
		slack.NewInputBlock(BlockDate, plainText("Date"), nil, date),
		textInput(BlockTime, "Time (HH:MM)", "", false, false),
		textInput(BlockDescription, "Description", "", true, false),
	)
}

func notificationsGroupView(rc *RequestContext, members []string) slack.ModalViewRequest {
	initial := ""
	for i, m := range members {
		if i > 0 {
			initial += "\n"
		}
		initial += m
	}
	return modal(ViewNotificationsGroup, "Notifications Group", "Update", rc.metadata(),
		contextBlock("One email address per line."),
		textInput(BlockMembers, "Members", initial, true, true),
	)
}

func updateParticipantView(rc *RequestContext, participants model.Participants) slack.ModalViewRequest {
	options := make([]*slack.OptionBlockObject, 0, len(participants))
	for _, p := range participants {
		options = append(options, option(p.Email, p.Email))
	}
	return modal(ViewUpdateParticipant, "Update Participant", "Update", rc.metadata(),
		selectInput(BlockParticipant, "Participant", options, nil, false),
		textInput(BlockReason, "Reason added", "", true, true),
		textInput(BlockTeam, "Team", "", false, true),
		textInput(BlockLocation, "Location", "", false, true),
	)
}

func feedbackView(meta viewMetadata) slack.ModalViewRequest {
	options := make([]*slack.OptionBlockObject, 0, len(feedbackRatings))
	for _, r := range feedbackRatings {
		options = append(options, option(r, r))
	}
	anonymous := slack.NewCheckboxGroupsBlockElement(BlockAnonymous, option("anonymous", "Submit anonymously"))
	anonBlock := slack.NewInputBlock(BlockAnonymous, plainText("Anonymous"), nil, anonymous)
	anonBlock.Optional = true
	return modal(ViewFeedback, "Incident Feedback", "Submit", meta,
		selectInput(BlockRating, "Rating", options, nil, false),
		textInput(BlockFeedback, "Feedback", "", true, true),
		anonBlock,
	)
}

func (uc *UseCases) reportCaseView(ctx context.Context, rc *RequestContext, projectID int64, form model.FormData) (slack.ModalViewRequest, error) {
	proj, err := uc.projectBlock(ctx, rc.Organization, projectID)
	if err != nil {
		return slack.ModalViewRequest{}, err
	}
	classification, err := uc.caseClassification(ctx, rc.Organization, projectID, nil)
	if err != nil {
		return slack.ModalViewRequest{}, err
	}
	blocks := []slack.Block{
		textInput(BlockTitle, "Title", form.Text(BlockTitle), false, false),
		textInput(BlockDescription, "Description", form.Text(BlockDescription), true, false),
		proj,
	}
	blocks = append(blocks, classification...)

	meta := rc.metadata()
	meta.Subject, meta.ProjectID = "", projectID
	return modal(ViewReportCase, "Open a Case", "Submit", meta, blocks...), nil
}

func (uc *UseCases) editCaseView(ctx context.Context, meta viewMetadata, c *model.Case) (slack.ModalViewRequest, error) {
	classification, err := uc.caseClassification(ctx, meta.Organization, c.ProjectID, c)
	if err != nil {
		return slack.ModalViewRequest{}, err
	}
	statuses, current := statusOptions([]types.CaseStatus{types.CaseStatusNew, types.CaseStatusTriage, types.CaseStatusClosed}, c.Status)
	blocks := []slack.Block{
		textInput(BlockTitle, "Title", c.Title, false, false),
		textInput(BlockDescription, "Description", c.Description, true, false),
		selectInput(BlockStatus, "Status", statuses, current, false),
		visibilityBlock(c.Visibility),
	}
	blocks = append(blocks, classification...)
	return modal(ViewEditCase, "Edit Case", "Update", meta, blocks...), nil
}

func resolveCaseView(meta viewMetadata, c *model.Case) slack.ModalViewRequest {
	options := make([]*slack.OptionBlockObject, 0, len(caseResolutionReasons))
	var initial *slack.OptionBlockObject
	for _, r := range caseResolutionReasons {
		o := option(r, r)
		options = append(options, o)
		if r == c.ResolutionReason {
			initial = o
		}
	}
	return modal(ViewResolveCase, "Resolve Case", "Resolve", meta,
		selectInput(BlockResolutionReason, "Resolution Reason", options, initial, false),
		textInput(BlockResolution, "Resolution", c.Resolution, true, false),
	)
}

func (uc *UseCases) escalateCaseView(ctx context.Context, meta viewMetadata, c *model.Case) (slack.ModalViewRequest, error) {
	blocks, err := uc.incidentClassification(ctx, meta.Organization, c.ProjectID, nil)
	if err != nil {
		return slack.ModalViewRequest{}, err
	}
	blocks = append([]slack.Block{
		markdownSection("Escalate case *" + c.Name + "* to an incident. The case conversation and participants carry over."),
		textInput(BlockTitle, "Incident title", c.Title, false, true),
	}, blocks...)
	return modal(ViewEscalateCase, "Escalate Case", "Escalate", meta, blocks...), nil
}
