package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// reminderDedupWindow merges reminders of the same kind and recipient due
// within this window
const reminderDedupWindow = 30 * time.Minute

// scheduleReminder persists a reminder unless an unsent one of the same kind
// and recipient is already due within the dedup window. A zero due time
// schedules nothing.
func (uc *UseCases) scheduleReminder(ctx context.Context, org string, ref model.SubjectRef, kind types.ReminderKind, recipient string, due time.Time) error {
	if due.IsZero() || recipient == "" {
		return nil
	}
	existing, err := uc.repo.Reminder().List(ctx, org, ref)
	if err != nil {
		return goerr.Wrap(err, "failed to list reminders", goerr.V(model.SubjectKey, ref.String()))
	}
	for _, r := range existing {
		if r.SentAt != nil || r.Kind != kind || r.Recipient != recipient {
			continue
		}
		if d := r.DueAt.Sub(due); d < reminderDedupWindow && d > -reminderDedupWindow {
			return nil
		}
	}
	if _, err := uc.repo.Reminder().Create(ctx, org, &model.Reminder{
		Subject:   ref,
		Kind:      kind,
		Recipient: recipient,
		DueAt:     due.UTC(),
		CreatedAt: uc.now(),
	}); err != nil {
		return goerr.Wrap(err, "failed to create reminder", goerr.V(model.SubjectKey, ref.String()))
	}
	return nil
}

// tacticalReminderDue returns when the next tactical report is due, or zero
// when the priority has no cadence
func (uc *UseCases) tacticalReminderDue(ctx context.Context, org string, inc *model.Incident) time.Time {
	return uc.reportReminderDue(ctx, org, inc, types.ReportTypeTactical)
}

func (uc *UseCases) reportReminderDue(ctx context.Context, org string, inc *model.Incident, rt types.ReportType) time.Time {
	priority, err := uc.repo.IncidentPriority().Get(ctx, org, inc.PriorityID)
	if err != nil || priority == nil {
		return time.Time{}
	}
	hours := priority.TacticalReportReminder
	delay := inc.DelayTacticalReportReminder
	if rt == types.ReportTypeExecutive {
		hours = priority.ExecutiveReportReminder
		delay = inc.DelayExecutiveReportReminder
	}
	if hours <= 0 {
		return time.Time{}
	}

	base := inc.ReportedAt
	if latest, err := uc.repo.Report().Latest(ctx, org, inc.Ref(), rt); err == nil && latest != nil {
		base = latest.CreatedAt
	}
	due := base.Add(time.Duration(hours) * time.Hour)
	if delay != nil && delay.After(due) {
		due = *delay
	}
	return due
}

// reminderReportType maps report reminders to their report type
func reminderReportType(kind types.ReminderKind) (types.ReportType, bool) {
	switch kind {
	case types.ReminderKindTacticalReport:
		return types.ReportTypeTactical, true
	case types.ReminderKindExecutiveReport:
		return types.ReportTypeExecutive, true
	}
	return "", false
}

// ProcessDueReminders sends the reminders due now. Report reminders of
// closed incidents are dropped; report reminders are rescheduled at the
// next cadence after sending.
func (uc *UseCases) ProcessDueReminders(ctx context.Context, org string) (int, error) {
	now := uc.now()
	due, err := uc.repo.Reminder().ListDue(ctx, org, now)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list due reminders", goerr.V(model.OrgKey, org))
	}

	sent := 0
	for _, r := range due {
		subject, err := uc.Subject(ctx, org, r.Subject)
		if err != nil {
			logging.From(ctx).Warn("reminder subject unavailable", "subject", r.Subject.String(), "error", err)
			uc.markReminderSent(ctx, org, r, now)
			continue
		}
		rt, isReport := reminderReportType(r.Kind)
		if isReport {
			inc, ok := subject.(*model.Incident)
			if !ok || inc.Status != types.IncidentStatusActive {
				uc.markReminderSent(ctx, org, r, now)
				continue
			}
			// a report submitted or a delay requested since scheduling moves the reminder
			if next := uc.reportReminderDue(ctx, org, inc, rt); next.After(now) {
				uc.markReminderSent(ctx, org, r, now)
				if err := uc.scheduleReminder(ctx, org, r.Subject, r.Kind, r.Recipient, next); err != nil {
					logging.From(ctx).Warn("failed to reschedule reminder", "error", err)
				}
				continue
			}
		}

		if err := uc.sendReminder(ctx, org, subject, r); err != nil {
			logging.From(ctx).Warn("failed to send reminder", "subject", r.Subject.String(), "kind", r.Kind, "error", err)
			continue
		}
		uc.markReminderSent(ctx, org, r, now)
		sent++

		if isReport {
			inc := subject.(*model.Incident)
			if h := uc.reminderInterval(ctx, org, inc, rt); h > 0 {
				if err := uc.scheduleReminder(ctx, org, r.Subject, r.Kind, r.Recipient, now.Add(h)); err != nil {
					logging.From(ctx).Warn("failed to reschedule reminder", "error", err)
				}
			}
		}
	}
	return sent, nil
}

func (uc *UseCases) reminderInterval(ctx context.Context, org string, inc *model.Incident, rt types.ReportType) time.Duration {
	priority, err := uc.repo.IncidentPriority().Get(ctx, org, inc.PriorityID)
	if err != nil || priority == nil {
		return 0
	}
	if rt == types.ReportTypeExecutive {
		return time.Duration(priority.ExecutiveReportReminder) * time.Hour
	}
	return time.Duration(priority.TacticalReportReminder) * time.Hour
}

func (uc *UseCases) markReminderSent(ctx context.Context, org string, r *model.Reminder, now time.Time) {
	r.SentAt = &now
	if _, err := uc.repo.Reminder().Update(ctx, org, r); err != nil {
		logging.From(ctx).Warn("failed to mark reminder sent", "error", err)
	}
}

func (uc *UseCases) sendReminder(ctx context.Context, org string, s model.Subject, r *model.Reminder) error {
	chat, err := uc.chat(ctx, org, s.GetProjectID())
	if err != nil {
		return err
	}
	if chat == nil {
		return goerr.Wrap(model.ErrNotFound, "no chat provider configured")
	}

	var text string
	var blocks []slack.Block
	switch r.Kind {
	case types.ReminderKindTacticalReport, types.ReminderKindExecutiveReport:
		rt, _ := reminderReportType(r.Kind)
		label := "tactical"
		if rt == types.ReportTypeExecutive {
			label = "executive"
		}
		text = fmt.Sprintf("It's time to send a new %s report for %s", label, s.GetName())
		blocks = []slack.Block{
			markdownSection(text + ".\nRun the report command in the incident channel."),
			slack.NewActionBlock(r.Subject.String(),
				slack.NewButtonBlockElement(ActionRemindAgain, RemindAgainValue(org, rt, 60),
					slack.NewTextBlockObject(slack.PlainTextType, "Remind me in 1 hour", false, false)),
			),
		}
	case types.ReminderKindReviewDocument:
		text = "Please complete the post incident review document of " + s.GetName()
		if bundle, err := uc.bundle(ctx, org, s.Ref()); err == nil {
			if doc := bundle.Get(types.ResourceTypeReviewDocument); doc != nil && doc.Weblink != "" {
				text += ": " + doc.Weblink
			}
		}
	case types.ReminderKindRating:
		uc.requestFeedback(ctx, org, s.(*model.Incident), model.Participants{{Email: r.Recipient}})
		return nil
	default:
		text = "Reminder for " + s.GetName()
	}

	return uc.call(ctx, chat, "send_direct", func() error {
		return chat.SendDirect(ctx, r.Recipient, text, blocks)
	})
}

// RemindAgainValue encodes the remind-again button value
// "<org>-<report_type>-<delay_minutes>"
func RemindAgainValue(org string, rt types.ReportType, delayMinutes int) string {
	return fmt.Sprintf("%s-%s-%d", org, rt, delayMinutes)
}

// ParseRemindAgainValue decodes a remind-again value from the right so the
// organization slug may contain dashes
func ParseRemindAgainValue(value string) (org string, rt types.ReportType, delay time.Duration, err error) {
	rest, minutes, ok := cutLast(value, "-")
	if !ok {
		return "", "", 0, goerr.Wrap(model.ErrInvalidInput, "malformed remind-again value", goerr.V("value", value))
	}
	n, err := strconv.Atoi(minutes)
	if err != nil || n <= 0 {
		return "", "", 0, goerr.Wrap(model.ErrInvalidInput, "invalid remind-again delay", goerr.V("value", value))
	}
	org, report, ok := cutLast(rest, "-")
	if !ok || org == "" {
		return "", "", 0, goerr.Wrap(model.ErrInvalidInput, "malformed remind-again value", goerr.V("value", value))
	}
	rt, err = types.ParseReportType(report)
	if err != nil {
		return "", "", 0, goerr.Wrap(model.ErrInvalidInput, "invalid remind-again report type", goerr.V("value", value))
	}
	return org, rt, time.Duration(n) * time.Minute, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

// DelayReportReminder postpones the next report reminder of the incident
func (uc *UseCases) DelayReportReminder(ctx context.Context, org string, incidentID int64, rt types.ReportType, delay time.Duration, recipient string) error {
	inc, err := uc.getIncident(ctx, org, incidentID)
	if err != nil {
		return err
	}
	at := uc.now().Add(delay)
	kind := types.ReminderKindTacticalReport
	if rt == types.ReportTypeExecutive {
		inc.DelayExecutiveReportReminder = &at
		kind = types.ReminderKindExecutiveReport
	} else {
		inc.DelayTacticalReportReminder = &at
	}
	if _, err := uc.repo.Incident().Update(ctx, org, inc); err != nil {
		return goerr.Wrap(err, "failed to delay reminder", goerr.V(model.IncidentIDKey, incidentID))
	}
	return uc.scheduleReminder(ctx, org, inc.Ref(), kind, recipient, at)
}
