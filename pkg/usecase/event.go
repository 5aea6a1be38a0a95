package usecase

import (
	"context"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// Event sources
const (
	SourceDispatch = "Dispatch Core App"
	SourceChat     = "Slack"
	SourceSignal   = "Signal Pipeline"
	SourceAI       = "Dispatch AI"
)

// EventInput describes a timeline entry to log
type EventInput struct {
	Subject      model.SubjectRef
	Source       string
	Description  string
	Type         types.EventType
	StartedAt    time.Time
	IndividualID int64
	Owner        string
	Details      map[string]any
	Pinned       bool
}

// LogEvent appends an event to the subject timeline. StartedAt defaults to now.
func (uc *UseCases) LogEvent(ctx context.Context, org string, in EventInput) (*model.Event, error) {
	if in.Subject.IsZero() {
		return nil, goerr.Wrap(model.ErrInvalidInput, "event requires a subject")
	}
	now := uc.now()
	started := in.StartedAt
	if started.IsZero() {
		started = now
	}
	evType := in.Type
	if evType == "" {
		evType = types.EventTypeOther
	}
	if in.Source == "" {
		in.Source = SourceDispatch
	}

	ev := &model.Event{
		ID:           model.NewEventID(),
		Subject:      in.Subject,
		StartedAt:    started.UTC(),
		EndedAt:      started.UTC(),
		Source:       in.Source,
		Description:  in.Description,
		Details:      in.Details,
		Type:         evType,
		Owner:        in.Owner,
		IndividualID: in.IndividualID,
		Pinned:       in.Pinned,
		CreatedAt:    now,
	}
	created, err := uc.repo.Event().Create(ctx, org, ev)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to log event", goerr.V(model.SubjectKey, in.Subject.String()))
	}
	return created, nil
}

// logEvent logs and swallows failures; timeline entries never abort a flow
func (uc *UseCases) logEvent(ctx context.Context, org string, in EventInput) {
	if _, err := uc.LogEvent(ctx, org, in); err != nil {
		logging.From(ctx).Warn("failed to log event", "error", err, "description", in.Description)
	}
}

// Timeline returns the events of a subject ordered by start time
func (uc *UseCases) Timeline(ctx context.Context, org string, ref model.SubjectRef) ([]*model.Event, error) {
	events, err := uc.repo.Event().List(ctx, org, ref)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list events", goerr.V(model.SubjectKey, ref.String()))
	}
	return events, nil
}

// ImportMessage logs the chat message at ts as a timeline event stamped with
// the message time
func (uc *UseCases) ImportMessage(ctx context.Context, org string, ref model.SubjectRef, projectID int64, channelID, ts string) (*model.Event, error) {
	chat, err := uc.chat(ctx, org, projectID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, goerr.Wrap(model.ErrNotFound, "no chat provider configured")
	}

	msg, err := callValue(ctx, uc, chat, "fetch_message", func() (*model.ChatMessage, error) {
		return chat.FetchMessage(ctx, channelID, ts)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch message", goerr.V(model.ChannelIDKey, channelID))
	}

	name := msg.UserName
	var individualID int64
	if msg.UserEmail != "" {
		if ind, err := uc.repo.Individual().GetByEmail(ctx, org, projectID, msg.UserEmail); err == nil && ind != nil {
			individualID = ind.ID
			name = ind.DisplayName()
		}
	}
	if name == "" {
		name = msg.UserID
	}

	return uc.LogEvent(ctx, org, EventInput{
		Subject:      ref,
		Source:       SourceChat + " message from " + name,
		Description:  msg.Text,
		Type:         types.EventTypeImportedMessage,
		StartedAt:    msg.Timestamp,
		IndividualID: individualID,
		Owner:        name,
	})
}

// tagMatcher finds discoverable tag names inside free text
type tagMatcher struct {
	re   *regexp.Regexp
	tags map[string]*model.Tag
}

func (uc *UseCases) buildTagMatcher(ctx context.Context, org string, projectID int64, kind types.SubjectKind) (*tagMatcher, error) {
	tags, err := uc.repo.Tag().List(ctx, org, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list tags")
	}
	tagTypes, err := uc.repo.TagType().List(ctx, org, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list tag types")
	}

	m := &tagMatcher{tags: map[string]*model.Tag{}}
	var names []string
	for _, t := range tags {
		if !t.Discoverable {
			continue
		}
		if tt, ok := model.FindByID(tagTypes, t.TagTypeID); ok {
			if kind == types.SubjectKindIncident && !tt.DiscoverableIncident {
				continue
			}
			if kind == types.SubjectKindCase && !tt.DiscoverableCase {
				continue
			}
		}
		m.tags[strings.ToLower(t.Name)] = t
		names = append(names, regexp.QuoteMeta(t.Name))
	}
	if len(names) == 0 {
		return m, nil
	}
	// longest names first so overlapping phrases match the most specific tag
	slices.SortFunc(names, func(a, b string) int { return len(b) - len(a) })
	m.re = regexp.MustCompile(`(?i)(?:^|\W)(` + strings.Join(names, "|") + `)(?:\W|$)`)
	return m, nil
}

func (m *tagMatcher) find(text string) []*model.Tag {
	if m.re == nil {
		return nil
	}
	var out []*model.Tag
	seen := map[int64]bool{}
	// resume right after each name so neighbouring tags can share a boundary
	for rest := text; ; {
		loc := m.re.FindStringSubmatchIndex(rest)
		if loc == nil {
			break
		}
		name := rest[loc[2]:loc[3]]
		rest = rest[loc[3]:]
		t, ok := m.tags[strings.ToLower(name)]
		if !ok || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}

// ExtractTags appends discoverable tags named in text to the subject and
// returns the tags that were added
func (uc *UseCases) ExtractTags(ctx context.Context, org string, ref model.SubjectRef, text string) ([]*model.Tag, error) {
	subject, err := uc.Subject(ctx, org, ref)
	if err != nil {
		return nil, err
	}
	matcher, err := uc.buildTagMatcher(ctx, org, subject.GetProjectID(), ref.Kind)
	if err != nil {
		return nil, err
	}

	found := matcher.find(text)
	if len(found) == 0 {
		return nil, nil
	}

	release, err := uc.repo.Lock(ctx, org, ref.String())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to lock subject", goerr.V("subject", ref.String()))
	}
	defer release()
	if subject, err = uc.Subject(ctx, org, ref); err != nil {
		return nil, err
	}

	var added []*model.Tag
	for _, t := range found {
		if slices.Contains(subject.GetTagIDs(), t.ID) {
			continue
		}
		added = append(added, t)
	}
	if len(added) == 0 {
		return nil, nil
	}

	switch v := subject.(type) {
	case *model.Incident:
		for _, t := range added {
			v.TagIDs = append(v.TagIDs, t.ID)
		}
	case *model.Case:
		for _, t := range added {
			v.TagIDs = append(v.TagIDs, t.ID)
		}
	}
	if err := uc.saveSubject(ctx, org, subject); err != nil {
		return nil, err
	}
	return added, nil
}
