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

// Report detail keys
const (
	ReportConditions    = "conditions"
	ReportActions       = "actions"
	ReportNeeds         = "needs"
	ReportCurrentStatus = "current_status"
	ReportOverview      = "overview"
	ReportNextSteps     = "next_steps"
)

var reportFields = map[types.ReportType][]string{
	types.ReportTypeTactical:  {ReportConditions, ReportActions, ReportNeeds},
	types.ReportTypeExecutive: {ReportCurrentStatus, ReportOverview, ReportNextSteps},
}

// ReportInput is a submitted report form
type ReportInput struct {
	Type    types.ReportType
	Details map[string]any
	Actor   string
}

func reportText(details map[string]any, key string) string {
	s, _ := details[key].(string)
	return strings.TrimSpace(s)
}

// CreateReport stores a tactical or executive report of an active incident,
// posts it to the conversation and sends it to the matching notifications.
// Submitting a report resets the reminder cadence of its type.
func (uc *UseCases) CreateReport(ctx context.Context, org string, incidentID int64, in ReportInput) (*model.Report, error) {
	fields, ok := reportFields[in.Type]
	if !ok {
		return nil, model.NewValidationError("type", "unknown report type")
	}
	verr := &model.ValidationError{}
	for _, f := range fields {
		if reportText(in.Details, f) == "" {
			verr.Add(f, f+" is required")
		}
	}
	if verr.HasErrors() {
		return nil, verr
	}

	inc, err := uc.getIncident(ctx, org, incidentID)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithAttrs(ctx, "incident", inc.Name)

	details := make(map[string]any, len(fields)+1)
	for _, f := range fields {
		details[f] = reportText(in.Details, f)
	}
	if in.Type == types.ReportTypeExecutive {
		if link := uc.executiveDocument(ctx, org, inc, details); link != "" {
			details["document_weblink"] = link
		}
	}

	report, err := uc.repo.Report().Create(ctx, org, &model.Report{
		Subject:   inc.Ref(),
		Type:      in.Type,
		Details:   details,
		CreatedBy: in.Actor,
		CreatedAt: uc.now(),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create report", goerr.V(model.IncidentIDKey, incidentID))
	}

	title := "Tactical report"
	if in.Type == types.ReportTypeExecutive {
		title = "Executive report"
	}
	uc.logEvent(ctx, org, EventInput{
		Subject:     inc.Ref(),
		Description: title + " created by " + in.Actor,
		Owner:       in.Actor,
		Details:     details,
	})

	text, blocks := reportBlocks(inc, title, fields, details)
	if bundle, err := uc.bundle(ctx, org, inc.Ref()); err == nil && bundle.ChannelID() != "" {
		if chat, err := uc.chat(ctx, org, inc.ProjectID); err == nil && chat != nil {
			uc.sendMessage(ctx, chat, bundle.ChannelID(), bundle.ThreadID(), text, blocks)
		}
	}

	data := map[string]any{"report_type": string(in.Type)}
	for k, v := range details {
		data[k] = v
	}
	tmpl := "*{{.name}}* {{.title}}\n*Conditions:* {{.conditions}}\n*Actions:* {{.actions}}\n*Needs:* {{.needs}}"
	if in.Type == types.ReportTypeExecutive {
		tmpl = "*{{.name}}* {{.title}}\n*Current status:* {{.current_status}}\n*Overview:* {{.overview}}\n*Next steps:* {{.next_steps}}"
	}
	if _, err := uc.FilterAndSend(ctx, org, inc, NotificationMessage{
		Title:    inc.Name + " " + title,
		Template: tmpl,
		Blocks:   blocks,
		Data:     data,
	}); err != nil {
		logging.From(ctx).Warn("failed to send report notifications", "error", err)
	}

	kind := types.ReminderKindTacticalReport
	if in.Type == types.ReportTypeExecutive {
		kind = types.ReminderKindExecutiveReport
	}
	if commander, err := uc.commander(ctx, org, inc.Ref()); err == nil && commander != nil {
		if err := uc.scheduleReminder(ctx, org, inc.Ref(), kind, commander.Email, uc.reportReminderDue(ctx, org, inc, in.Type)); err != nil {
			logging.From(ctx).Warn("failed to schedule report reminder", "error", err)
		}
	}

	logging.From(ctx).Info("report created", "type", in.Type, "by", in.Actor)
	return report, nil
}

func reportBlocks(inc *model.Incident, title string, fields []string, details map[string]any) (string, []slack.Block) {
	text := fmt.Sprintf("%s for %s", title, inc.Name)
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, text, false, false)),
	}
	for _, f := range fields {
		label := strings.ReplaceAll(f, "_", " ")
		label = strings.ToUpper(label[:1]) + label[1:]
		blocks = append(blocks, markdownSection(fmt.Sprintf("*%s*\n%s", label, reportText(details, f))))
	}
	if link := reportText(details, "document_weblink"); link != "" {
		blocks = append(blocks, contextBlock("<"+link+"|Executive report document>"))
	}
	return text, blocks
}

// executiveDocument creates the executive report document from the incident
// type template and fills it with the report. Returns the document link.
func (uc *UseCases) executiveDocument(ctx context.Context, org string, inc *model.Incident, details map[string]any) string {
	incType, err := uc.repo.IncidentType().Get(ctx, org, inc.TypeID)
	if err != nil || incType == nil || incType.ExecutiveTemplate == "" {
		return ""
	}
	docs, err := active[interfaces.DocumentProvider](ctx, uc, org, inc.ProjectID, types.ProviderTypeDocument)
	if err != nil || docs == nil {
		return ""
	}
	project, err := uc.getProject(ctx, org, inc.ProjectID)
	if err != nil {
		return ""
	}

	doc, err := callValue(ctx, uc, docs, "create_from_template", func() (*model.Resource, error) {
		return docs.CreateFromTemplate(ctx, inc.Name+" - Executive Report", incType.ExecutiveTemplate, project.DocumentFolderID)
	})
	if err != nil {
		logging.From(ctx).Warn("failed to create executive report document", "error", err)
		return ""
	}
	values := map[string]string{
		"name":           inc.Name,
		"title":          inc.Title,
		"current_status": reportText(details, ReportCurrentStatus),
		"overview":       reportText(details, ReportOverview),
		"next_steps":     reportText(details, ReportNextSteps),
	}
	if err := uc.call(ctx, docs, "update", func() error {
		return docs.Update(ctx, doc.ResourceID, values)
	}); err != nil {
		logging.From(ctx).Warn("failed to fill executive report document", "error", err)
	}
	return doc.Weblink
}

// ListReports returns the reports of an incident
func (uc *UseCases) ListReports(ctx context.Context, org string, incidentID int64) ([]*model.Report, error) {
	reports, err := uc.repo.Report().List(ctx, org, model.IncidentRef(incidentID))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list reports", goerr.V(model.IncidentIDKey, incidentID))
	}
	return reports, nil
}

// LatestReport returns the newest report of the type, or nil
func (uc *UseCases) LatestReport(ctx context.Context, org string, incidentID int64, t types.ReportType) (*model.Report, error) {
	r, err := uc.repo.Report().Latest(ctx, org, model.IncidentRef(incidentID), t)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get latest report", goerr.V(model.IncidentIDKey, incidentID))
	}
	return r, nil
}

// Feedback ratings
var feedbackRatings = []string{
	"Very satisfied",
	"Somewhat satisfied",
	"Neither satisfied nor dissatisfied",
	"Somewhat dissatisfied",
	"Very dissatisfied",
}

// FeedbackInput is a participant's rating of a closed incident
type FeedbackInput struct {
	Email     string
	Rating    string
	Feedback  string
	Anonymous bool
}

// SubmitFeedback stores incident feedback. Anonymous feedback drops the
// participant email.
func (uc *UseCases) SubmitFeedback(ctx context.Context, org string, incidentID int64, in FeedbackInput) (*model.Feedback, error) {
	valid := false
	for _, r := range feedbackRatings {
		if r == in.Rating {
			valid = true
			break
		}
	}
	if !valid {
		return nil, model.NewValidationError("rating", "unknown rating")
	}
	inc, err := uc.getIncident(ctx, org, incidentID)
	if err != nil {
		return nil, err
	}

	email := in.Email
	if in.Anonymous {
		email = ""
	}
	fb, err := uc.repo.Feedback().Create(ctx, org, &model.Feedback{
		Subject:   inc.Ref(),
		Email:     email,
		Rating:    in.Rating,
		Feedback:  in.Feedback,
		Anonymous: in.Anonymous,
		CreatedAt: uc.now(),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store feedback", goerr.V(model.IncidentIDKey, incidentID))
	}
	uc.logEvent(ctx, org, EventInput{
		Subject:     inc.Ref(),
		Description: "Feedback received: " + in.Rating,
	})
	return fb, nil
}
