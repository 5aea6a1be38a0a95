package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/service/worker"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// Scheduled job names
const (
	JobCaseTriageReminder       = "case-triage-reminder"
	JobCaseCloseReminder        = "case-close-reminder"
	JobIncidentTacticalReminder = "incident-tactical-reminder"
	JobIncidentDailyDigest      = "incident-daily-digest"
	JobIncidentCostRecompute    = "incident-cost-recompute"
	JobEvergreenCheck           = "evergreen-check"
	JobAutoTagger               = "auto-tagger"
)

const (
	caseTriageAge = 24 * time.Hour
	caseCloseAge  = 7 * 24 * time.Hour
)

// Jobs returns the periodic jobs of the scheduler
func (uc *UseCases) Jobs() []worker.Job {
	return []worker.Job{
		{Name: JobCaseTriageReminder, Spec: "0 18 * * *", Run: uc.eachOrg(uc.RemindCaseTriage)},
		{Name: JobCaseCloseReminder, Spec: "0 18 * * 1", Run: uc.eachOrg(uc.RemindCaseClose)},
		{Name: JobIncidentTacticalReminder, Spec: "@hourly", Run: uc.eachOrg(uc.RemindTacticalReports)},
		{Name: JobIncidentDailyDigest, Spec: "0 16 * * *", Run: uc.eachOrg(uc.SendDailyDigest)},
		{Name: JobIncidentCostRecompute, Spec: "*/5 * * * *", Run: uc.eachOrg(uc.RecomputeCosts)},
		{Name: JobEvergreenCheck, Spec: "0 10 * * *", Run: uc.eachOrg(uc.CheckEvergreen)},
		{Name: JobAutoTagger, Spec: "@hourly", Run: uc.eachOrg(uc.AutoTag)},
	}
}

// eachOrg runs fn for every organization. A failing organization does not
// stop the others; the first error is returned.
func (uc *UseCases) eachOrg(fn func(ctx context.Context, org string) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var first error
		for _, org := range uc.orgs.Slugs() {
			octx := logging.WithAttrs(ctx, "organization", org)
			if err := fn(octx, org); err != nil {
				logging.From(octx).Warn("job failed for organization", "error", err)
				if first == nil {
					first = err
				}
			}
		}
		return first
	}
}

func (uc *UseCases) remindStaleCases(ctx context.Context, org string, status types.CaseStatus, age time.Duration, text string) error {
	cases, err := uc.repo.Case().List(ctx, org, model.CaseQuery{Statuses: []types.CaseStatus{status}})
	if err != nil {
		return goerr.Wrap(err, "failed to list cases", goerr.V("status", status))
	}
	cutoff := uc.now().Add(-age)
	for _, c := range cases {
		if c.ReportedAt.After(cutoff) {
			continue
		}
		assignee, err := uc.commander(ctx, org, c.Ref())
		if err != nil || assignee == nil {
			continue
		}
		chat, err := uc.chat(ctx, org, c.ProjectID)
		if err != nil || chat == nil {
			continue
		}
		msg := fmt.Sprintf(text, c.Name, c.Title)
		if link := uc.subjectURL(org, c); link != "" {
			msg += "\n" + link
		}
		if err := uc.call(ctx, chat, "send_direct", func() error {
			return chat.SendDirect(ctx, assignee.Email, msg, nil)
		}); err != nil {
			logging.From(ctx).Warn("failed to send case reminder", "case", c.Name, "error", err)
		}
	}
	return nil
}

// RemindCaseTriage reminds assignees of cases left in new for over a day
func (uc *UseCases) RemindCaseTriage(ctx context.Context, org string) error {
	return uc.remindStaleCases(ctx, org, types.CaseStatusNew, caseTriageAge,
		"Case %s (%s) has been new for more than a day. Please triage it.")
}

// RemindCaseClose reminds assignees of cases in triage for over a week
func (uc *UseCases) RemindCaseClose(ctx context.Context, org string) error {
	return uc.remindStaleCases(ctx, org, types.CaseStatusTriage, caseCloseAge,
		"Case %s (%s) has been in triage for more than a week. Please close or escalate it.")
}

func (uc *UseCases) activeIncidents(ctx context.Context, org string, statuses ...types.IncidentStatus) ([]*model.Incident, error) {
	incidents, err := uc.repo.Incident().List(ctx, org, model.IncidentQuery{Statuses: statuses})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list incidents")
	}
	return incidents, nil
}

// RemindTacticalReports schedules the tactical reminder of every active
// incident for its commander and sends the reminders that are due
func (uc *UseCases) RemindTacticalReports(ctx context.Context, org string) error {
	incidents, err := uc.activeIncidents(ctx, org, types.IncidentStatusActive)
	if err != nil {
		return err
	}
	for _, inc := range incidents {
		commander, err := uc.commander(ctx, org, inc.Ref())
		if err != nil || commander == nil {
			continue
		}
		if err := uc.scheduleReminder(ctx, org, inc.Ref(), types.ReminderKindTacticalReport, commander.Email, uc.tacticalReminderDue(ctx, org, inc)); err != nil {
			logging.From(ctx).Warn("failed to schedule tactical reminder", "incident", inc.Name, "error", err)
		}
	}
	sent, err := uc.ProcessDueReminders(ctx, org)
	if err != nil {
		return err
	}
	if sent > 0 {
		logging.From(ctx).Info("reminders sent", "count", sent)
	}
	return nil
}

// SendDailyDigest posts active, stable and recently closed incidents to the
// daily report channels of each project
func (uc *UseCases) SendDailyDigest(ctx context.Context, org string) error {
	projects, err := uc.repo.Project().List(ctx, org)
	if err != nil {
		return goerr.Wrap(err, "failed to list projects")
	}
	since := uc.now().Add(-24 * time.Hour)
	for _, p := range projects {
		if !p.SendDailyReports || len(p.DailyReportChannels) == 0 {
			continue
		}
		incidents, err := uc.repo.Incident().List(ctx, org, model.IncidentQuery{ProjectID: p.ID})
		if err != nil {
			return goerr.Wrap(err, "failed to list incidents", goerr.V(model.ProjectIDKey, p.ID))
		}

		groups := map[types.IncidentStatus][]*model.Incident{}
		for _, inc := range incidents {
			if inc.IsRestricted() {
				continue
			}
			if inc.Status == types.IncidentStatusClosed && (inc.ClosedAt == nil || inc.ClosedAt.Before(since)) {
				continue
			}
			groups[inc.Status] = append(groups[inc.Status], inc)
		}
		if len(groups) == 0 {
			continue
		}

		blocks := []slack.Block{
			slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "Incident Daily Report", false, false)),
		}
		for _, status := range []types.IncidentStatus{types.IncidentStatusActive, types.IncidentStatusStable, types.IncidentStatusClosed} {
			if len(groups[status]) == 0 {
				continue
			}
			lines := []string{"*" + status.Title() + " incidents*"}
			for _, inc := range groups[status] {
				line := fmt.Sprintf("• %s: %s", inc.Name, inc.Title)
				if link := uc.subjectURL(org, inc); link != "" {
					line = fmt.Sprintf("• <%s|%s>: %s", link, inc.Name, inc.Title)
				}
				lines = append(lines, line)
			}
			blocks = append(blocks, markdownSection(strings.Join(lines, "\n")))
		}

		chat, err := uc.chat(ctx, org, p.ID)
		if err != nil || chat == nil {
			continue
		}
		for _, channel := range p.DailyReportChannels {
			uc.sendMessage(ctx, chat, channel, "", "Incident Daily Report", blocks)
		}
	}
	return nil
}

// RecomputeCosts refreshes the cost of every unresolved incident
func (uc *UseCases) RecomputeCosts(ctx context.Context, org string) error {
	incidents, err := uc.activeIncidents(ctx, org, types.IncidentStatusActive, types.IncidentStatusStable)
	if err != nil {
		return err
	}
	for _, inc := range incidents {
		if _, _, err := uc.RecomputeCost(ctx, org, inc.ID); err != nil {
			logging.From(ctx).Warn("failed to recompute cost", "incident", inc.Name, "error", err)
		}
	}
	return nil
}

// CheckEvergreen reminds owners of evergreen documents due for review
func (uc *UseCases) CheckEvergreen(ctx context.Context, org string) error {
	projects, err := uc.repo.Project().List(ctx, org)
	if err != nil {
		return goerr.Wrap(err, "failed to list projects")
	}
	now := uc.now()
	for _, p := range projects {
		docs, err := uc.repo.Document().List(ctx, org, p.ID)
		if err != nil {
			return goerr.Wrap(err, "failed to list documents", goerr.V(model.ProjectIDKey, p.ID))
		}
		chat, err := uc.chat(ctx, org, p.ID)
		if err != nil || chat == nil {
			continue
		}
		for _, d := range docs {
			if !d.EvergreenDue(now) {
				continue
			}
			text := fmt.Sprintf("You are the owner of the evergreen document <%s|%s>. Please review it and update it where needed.", d.Weblink, d.Name)
			if err := uc.call(ctx, chat, "send_direct", func() error {
				return chat.SendDirect(ctx, d.EvergreenOwner, text, nil)
			}); err != nil {
				logging.From(ctx).Warn("failed to send evergreen reminder", "document", d.Name, "error", err)
				continue
			}
			d.EvergreenLastReminderAt = &now
			if _, err := uc.repo.Document().Update(ctx, org, d); err != nil {
				return goerr.Wrap(err, "failed to update document", goerr.V("document", d.Name))
			}
		}
	}
	return nil
}

// AutoTag extracts discoverable tags from the documents of open incidents
func (uc *UseCases) AutoTag(ctx context.Context, org string) error {
	incidents, err := uc.activeIncidents(ctx, org, types.IncidentStatusActive, types.IncidentStatusStable)
	if err != nil {
		return err
	}
	for _, inc := range incidents {
		doc, err := uc.repo.Resource().Get(ctx, org, inc.Ref(), types.ResourceTypeDocument)
		if err != nil || doc == nil {
			continue
		}
		docs, err := active[interfaces.DocumentProvider](ctx, uc, org, inc.ProjectID, types.ProviderTypeDocument)
		if err != nil || docs == nil {
			continue
		}
		text, err := callValue(ctx, uc, docs, "fetch_text", func() (string, error) {
			return docs.FetchText(ctx, doc.ResourceID)
		})
		if err != nil {
			logging.From(ctx).Warn("failed to fetch document text", "incident", inc.Name, "error", err)
			continue
		}
		added, err := uc.ExtractTags(ctx, org, inc.Ref(), text)
		if err != nil {
			logging.From(ctx).Warn("failed to extract tags", "incident", inc.Name, "error", err)
			continue
		}
		if len(added) > 0 {
			logging.From(ctx).Info("tags added from document", "incident", inc.Name, "count", len(added))
		}
	}
	return nil
}
