package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/utils/errutil"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

const taskActionBlockID = "task_buttons"

// CreateTaskInput describes a follow-up task of a subject
type CreateTaskInput struct {
	Description string
	Owner       string
	Creator     string
	Assignees   []string
	ResolveBy   *time.Time
}

// CreateTask stores a task, mirrors it into the task provider and posts it
// to the subject conversation. Mirroring and posting are best-effort.
func (uc *UseCases) CreateTask(ctx context.Context, org string, ref model.SubjectRef, in CreateTaskInput) (*model.Task, error) {
	if strings.TrimSpace(in.Description) == "" {
		return nil, model.NewValidationError("description", "task description is required")
	}
	s, err := uc.Subject(ctx, org, ref)
	if err != nil {
		return nil, err
	}
	if in.Owner == "" {
		in.Owner = in.Creator
	}
	if in.Assignees == nil {
		in.Assignees = []string{}
	}

	now := uc.now()
	task := &model.Task{
		Subject:     ref,
		Description: in.Description,
		Status:      types.TaskStatusOpen,
		Owner:       in.Owner,
		Creator:     in.Creator,
		Assignees:   uniqueStrings(in.Assignees),
		ResolveBy:   in.ResolveBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if tp, err := active[interfaces.TaskProvider](ctx, uc, org, s.GetProjectID(), types.ProviderTypeTask); err == nil && tp != nil {
		res, err := callValue(ctx, uc, tp, "create", func() (*model.Resource, error) {
			return tp.Create(ctx, s.GetName(), task)
		})
		if err != nil {
			errutil.Handle(ctx, err, "failed to mirror task")
		} else {
			task.ResourceID, task.Weblink = res.ResourceID, res.Weblink
		}
	}

	created, err := uc.repo.Task().Create(ctx, org, task)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create task", goerr.V(model.SubjectKey, ref.String()))
	}

	uc.logEvent(ctx, org, EventInput{
		Subject:     ref,
		Description: "Task created: " + created.Description,
		Owner:       in.Creator,
	})
	uc.postTaskMessage(ctx, org, s, created)
	return created, nil
}

// SetTaskStatus resolves or reopens a task
func (uc *UseCases) SetTaskStatus(ctx context.Context, org string, id int64, status types.TaskStatus, actor string) (*model.Task, error) {
	if !status.IsValid() {
		return nil, model.NewValidationError("status", "invalid task status")
	}
	task, err := uc.repo.Task().Get(ctx, org, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get task", goerr.V("task_id", id))
	}
	if task.Status == status {
		return task, nil
	}
	s, err := uc.Subject(ctx, org, task.Subject)
	if err != nil {
		return nil, err
	}

	task.Status = status
	if status == types.TaskStatusResolved {
		now := uc.now()
		task.ResolvedAt = &now
	} else {
		task.ResolvedAt = nil
	}
	task.UpdatedAt = uc.now()

	updated, err := uc.repo.Task().Update(ctx, org, task)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update task", goerr.V("task_id", id))
	}

	if updated.ResourceID != "" {
		if tp, err := active[interfaces.TaskProvider](ctx, uc, org, s.GetProjectID(), types.ProviderTypeTask); err == nil && tp != nil {
			if err := uc.call(ctx, tp, "set_status", func() error {
				return tp.SetStatus(ctx, updated.ResourceID, status)
			}); err != nil {
				errutil.Handle(ctx, err, "failed to update mirrored task")
			}
		}
	}

	verb := "resolved"
	if status == types.TaskStatusOpen {
		verb = "reopened"
	}
	uc.logEvent(ctx, org, EventInput{
		Subject:     task.Subject,
		Description: fmt.Sprintf("Task %s by %s: %s", verb, actor, updated.Description),
		Owner:       actor,
	})
	uc.updateTaskMessage(ctx, org, s, updated)
	return updated, nil
}

// ListTasks returns the tasks of a subject
func (uc *UseCases) ListTasks(ctx context.Context, org string, ref model.SubjectRef) ([]*model.Task, error) {
	tasks, err := uc.repo.Task().List(ctx, org, ref)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list tasks", goerr.V(model.SubjectKey, ref.String()))
	}
	return tasks, nil
}

// SyncTasks imports tasks created or resolved in the external tracker.
// Tasks are matched by their external resource id.
func (uc *UseCases) SyncTasks(ctx context.Context, org string, ref model.SubjectRef) (int, error) {
	s, err := uc.Subject(ctx, org, ref)
	if err != nil {
		return 0, err
	}
	tp, err := active[interfaces.TaskProvider](ctx, uc, org, s.GetProjectID(), types.ProviderTypeTask)
	if err != nil || tp == nil {
		return 0, err
	}
	external, err := callValue(ctx, uc, tp, "list", func() ([]*model.Task, error) {
		return tp.List(ctx, s.GetName())
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list external tasks", goerr.V(model.SubjectKey, ref.String()))
	}

	changed := 0
	for _, ext := range external {
		existing, err := uc.repo.Task().GetByResourceID(ctx, org, ext.ResourceID)
		if err != nil {
			return changed, goerr.Wrap(err, "failed to look up task", goerr.V("resource_id", ext.ResourceID))
		}
		if existing == nil {
			ext.Subject = ref
			if ext.Status == "" {
				ext.Status = types.TaskStatusOpen
			}
			if ext.CreatedAt.IsZero() {
				ext.CreatedAt = uc.now()
			}
			if _, err := uc.repo.Task().Create(ctx, org, ext); err != nil {
				return changed, goerr.Wrap(err, "failed to import task", goerr.V("resource_id", ext.ResourceID))
			}
			changed++
			continue
		}
		if existing.Status != ext.Status && ext.Status.IsValid() {
			if _, err := uc.SetTaskStatus(ctx, org, existing.ID, ext.Status, "task tracker"); err != nil {
				return changed, err
			}
			changed++
		}
	}
	return changed, nil
}

func (uc *UseCases) postTaskMessage(ctx context.Context, org string, s model.Subject, task *model.Task) {
	bundle, err := uc.bundle(ctx, org, s.Ref())
	if err != nil || bundle.ChannelID() == "" {
		return
	}
	chat, err := uc.chat(ctx, org, s.GetProjectID())
	if err != nil || chat == nil {
		return
	}
	ts := uc.sendMessage(ctx, chat, bundle.ChannelID(), bundle.ThreadID(),
		"New task: "+task.Description, buildTaskMessageBlocks(org, task))
	if ts == "" {
		return
	}
	task.ChannelID, task.MessageTS = bundle.ChannelID(), ts
	if _, err := uc.repo.Task().Update(ctx, org, task); err != nil {
		errutil.Handle(ctx, err, "failed to store task message timestamp")
	}
}

func (uc *UseCases) updateTaskMessage(ctx context.Context, org string, s model.Subject, task *model.Task) {
	if task.MessageTS == "" {
		return
	}
	chat, err := uc.chat(ctx, org, s.GetProjectID())
	if err != nil || chat == nil {
		return
	}
	if err := uc.call(ctx, chat, "update_message", func() error {
		return chat.UpdateMessage(ctx, task.ChannelID, task.MessageTS, "Task updated: "+task.Description, buildTaskMessageBlocks(org, task))
	}); err != nil {
		logging.From(ctx).Warn("failed to update task message", "task_id", task.ID, "error", err)
	}
}

// buildTaskMessageBlocks renders a task with its resolve or reopen button
func buildTaskMessageBlocks(org string, task *model.Task) []slack.Block {
	emoji := ":white_circle:"
	if task.Status == types.TaskStatusResolved {
		emoji = ":white_check_mark:"
	}
	blocks := []slack.Block{
		markdownSection(emoji + " *Task:* " + task.Description),
	}

	parts := []string{}
	if len(task.Assignees) > 0 {
		parts = append(parts, "Assignees: "+strings.Join(task.Assignees, ", "))
	} else {
		parts = append(parts, "Unassigned")
	}
	parts = append(parts, "Status: "+string(task.Status))
	if task.ResolveBy != nil {
		parts = append(parts, "Resolve by: "+task.ResolveBy.Format(time.DateOnly))
	}
	if task.Weblink != "" {
		parts = append(parts, fmt.Sprintf(":link: <%s|Link>", task.Weblink))
	}
	blocks = append(blocks, contextBlock(strings.Join(parts, "  |  ")))

	value := TaskActionValue(org, task.ID)
	var btn *slack.ButtonBlockElement
	if task.Status == types.TaskStatusResolved {
		btn = slack.NewButtonBlockElement(ActionTaskReopen, value,
			slack.NewTextBlockObject(slack.PlainTextType, "Reopen", false, false))
	} else {
		btn = slack.NewButtonBlockElement(ActionTaskResolve, value,
			slack.NewTextBlockObject(slack.PlainTextType, "Resolve", false, false))
		btn.Style = slack.StylePrimary
	}
	blocks = append(blocks, slack.NewActionBlock(taskActionBlockID, btn))
	return blocks
}

// TaskActionValue encodes a task button value "<org>:<task_id>"
func TaskActionValue(org string, taskID int64) string {
	return fmt.Sprintf("%s:%d", org, taskID)
}

// ParseTaskActionValue parses a task button value. The id is taken after
// the last colon.
func ParseTaskActionValue(value string) (org string, taskID int64, err error) {
	org, id, ok := cutLast(value, ":")
	if !ok || org == "" {
		return "", 0, goerr.Wrap(model.ErrInvalidInput, "invalid task action value", goerr.V("value", value))
	}
	taskID, err = strconv.ParseInt(id, 10, 64)
	if err != nil {
		return "", 0, goerr.Wrap(model.ErrInvalidInput, "invalid task id in action value", goerr.V("value", value))
	}
	return org, taskID, nil
}
