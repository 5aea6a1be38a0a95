package usecase_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/service/llm"
	"github.com/Netflix/dispatch-sub000/pkg/usecase"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// wordTokenizer maps every space separated word to one token
type wordTokenizer struct {
	words []string
}

func (w *wordTokenizer) Encode(text string) []int {
	w.words = strings.Fields(text)
	out := make([]int, len(w.words))
	for i := range out {
		out[i] = i
	}
	return out
}

func (w *wordTokenizer) Decode(tokens []int) string {
	parts := make([]string, 0, len(tokens))
	for _, i := range tokens {
		parts = append(parts, w.words[i])
	}
	return strings.Join(parts, " ")
}

func TestGenerateIncidentSummaryTruncatesPrompt(t *testing.T) {
	const modelName = "claude-3-5-sonnet-20241022"
	f := newFixture(t, usecase.WithTokenizer(func(string) (llm.Tokenizer, error) {
		return &wordTokenizer{}, nil
	}))
	ai := &mockAI{model: modelName}
	f.registry.providers[types.ProviderTypeAI] = ai

	inc, err := f.repo.Incident().Create(f.ctx, testOrg, &model.Incident{
		ProjectID:   f.project.ID,
		Name:        "default-security-0001",
		Title:       "Noisy incident",
		Description: strings.Repeat("tok ", 200000),
		Status:      types.IncidentStatusStable,
		TypeID:      f.security.ID,
		ReportedAt:  f.now,
	})
	gt.NoError(t, err).Required()

	var buf bytes.Buffer
	ctx := logging.With(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))

	summary, err := f.uc.GenerateIncidentSummary(ctx, testOrg, inc.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, summary).Equal("summary")

	gt.Array(t, ai.prompts).Length(1).Required()
	words := len(strings.Fields(ai.prompts[0]))
	gt.Bool(t, words < llm.TokenBudget(modelName)).True()
	gt.Bool(t, words > 0).True()
	gt.String(t, buf.String()).Contains(`"level":"WARN"`)
	gt.String(t, buf.String()).Contains("truncating")
}

func TestGenerateReadInSummaryIsCached(t *testing.T) {
	f := newFixture(t, usecase.WithReadInCacheDuration(time.Hour))
	ai := &mockAI{
		model: "claude-3-5-sonnet-20241022",
		chatParseFn: func(ctx context.Context, prompt string, schema *gollem.Parameter, system string, out any) error {
			s := out.(*model.ReadInSummary)
			s.Timeline = []string{"12:00 key leaked"}
			s.ActionsTaken = []string{"key revoked"}
			s.CurrentStatus = "stable"
			s.Summary = "A leaked key was revoked."
			return nil
		},
	}
	f.registry.providers[types.ProviderTypeAI] = ai
	f.chat.fetchTranscriptFn = func(ctx context.Context, channelID, threadID string) ([]*model.ChatMessage, error) {
		return []*model.ChatMessage{
			{TS: "1709294400.000100", UserID: "U-alice", UserEmail: "alice@example.com", Text: "the key is revoked", Timestamp: f.now},
		}, nil
	}
	inc := f.incident(t, "default-security-0001", "C-inc")

	first, err := f.uc.GenerateReadInSummary(f.ctx, testOrg, inc.Ref())
	gt.NoError(t, err).Required()
	gt.Value(t, first.Summary).Equal("A leaked key was revoked.")

	f.now = f.now.Add(10 * time.Minute)
	second, err := f.uc.GenerateReadInSummary(f.ctx, testOrg, inc.Ref())
	gt.NoError(t, err).Required()
	gt.Value(t, second).Equal(first)
	gt.Value(t, ai.callCount()).Equal(1)

	t.Run("expired summary is regenerated", func(t *testing.T) {
		f.now = f.now.Add(2 * time.Hour)
		_, err := f.uc.GenerateReadInSummary(f.ctx, testOrg, inc.Ref())
		gt.NoError(t, err).Required()
		gt.Value(t, ai.callCount()).Equal(2)
	})
}

func TestGenerateReadInSummaryWithoutConversation(t *testing.T) {
	f := newFixture(t)
	f.registry.providers[types.ProviderTypeAI] = &mockAI{model: "claude-3-5-sonnet-20241022"}
	inc := f.incident(t, "default-security-0001", "")

	_, err := f.uc.GenerateReadInSummary(f.ctx, testOrg, inc.Ref())
	gt.Error(t, err).Is(model.ErrNotFound)
}
