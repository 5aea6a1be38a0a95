package llm_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/mock"
	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/service/llm"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

func newMockLLM(texts []string, err error) (*mock.LLMClientMock, *[]gollem.SessionConfig, *[]string) {
	var configs []gollem.SessionConfig
	var prompts []string
	client := &mock.LLMClientMock{
		NewSessionFunc: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
			configs = append(configs, gollem.NewSessionConfig(options...))
			return &mock.SessionMock{
				GenerateFunc: func(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (*gollem.Response, error) {
					for _, in := range input {
						if txt, ok := in.(gollem.Text); ok {
							prompts = append(prompts, string(txt))
						}
					}
					if err != nil {
						return nil, err
					}
					return &gollem.Response{Texts: texts}, nil
				},
			}, nil
		},
	}
	return client, &configs, &prompts
}

func TestChatCompletion(t *testing.T) {
	client, configs, prompts := newMockLLM([]string{"the incident ", "is contained"}, nil)
	p, err := llm.New(context.Background(), llm.Config{Model: "gpt-4o"}, llm.WithLLMClient(client))
	gt.NoError(t, err).Required()
	gt.Value(t, p.Model()).Equal("gpt-4o")

	text, err := p.ChatCompletion(context.Background(), "summarize", "you are a responder")
	gt.NoError(t, err).Required()
	gt.Value(t, text).Equal("the incident is contained")
	gt.Value(t, *prompts).Equal([]string{"summarize"})
	gt.Array(t, *configs).Length(1).Required()
	gt.Value(t, (*configs)[0].SystemPrompt()).Equal("you are a responder")
}

func TestChatParse(t *testing.T) {
	client, configs, _ := newMockLLM([]string{`{"timeline":["10:00 alert fired"],"actions_taken":["rotated keys"],"current_status":"contained","summary":"keys leaked"}`}, nil)
	p, err := llm.New(context.Background(), llm.Config{Model: "claude-3-5-sonnet-20241022"}, llm.WithLLMClient(client))
	gt.NoError(t, err).Required()

	var out model.ReadInSummary
	gt.NoError(t, p.ChatParse(context.Background(), "transcript", llm.ReadInSummarySchema(), "", &out)).Required()
	gt.Value(t, out.CurrentStatus).Equal("contained")
	gt.Value(t, out.ActionsTaken).Equal([]string{"rotated keys"})

	conf := (*configs)[0]
	gt.Value(t, conf.ContentType()).Equal(gollem.ContentTypeJSON)
	gt.Value(t, conf.ResponseSchema()).NotNil()

	t.Run("invalid JSON fails", func(t *testing.T) {
		client, _, _ := newMockLLM([]string{"not json"}, nil)
		p, err := llm.New(context.Background(), llm.Config{Model: "gpt-4o"}, llm.WithLLMClient(client))
		gt.NoError(t, err).Required()
		gt.Value(t, p.ChatParse(context.Background(), "x", nil, "", &out)).NotNil()
	})
}

func TestErrorClassification(t *testing.T) {
	client, _, _ := newMockLLM(nil, errors.New("status 429: rate limit exceeded"))
	p, err := llm.New(context.Background(), llm.Config{Model: "gpt-4o"}, llm.WithLLMClient(client))
	gt.NoError(t, err).Required()

	_, err = p.ChatCompletion(context.Background(), "x", "")
	gt.Value(t, model.ProviderErrorKindOf(err)).Equal(model.ProviderErrorRateLimited)
	gt.Bool(t, model.IsTransient(err)).True()
}

func TestNewValidation(t *testing.T) {
	ctx := context.Background()
	_, err := llm.New(ctx, llm.Config{Backend: llm.BackendOpenAI})
	gt.Value(t, err).NotNil()
	_, err = llm.New(ctx, llm.Config{Backend: llm.BackendClaude, Model: "claude-3-5-sonnet-20241022"})
	gt.Value(t, err).NotNil()
	_, err = llm.New(ctx, llm.Config{Backend: llm.BackendGemini, Model: "gemini-2.0-flash"})
	gt.Value(t, err).NotNil()
	_, err = llm.New(ctx, llm.Config{Backend: "bard", Model: "x"})
	gt.Value(t, err).NotNil()
}

func TestTokenBudget(t *testing.T) {
	gt.Value(t, llm.TokenLimit("claude-3-5-sonnet-20241022")).Equal(200000)
	gt.Value(t, llm.TokenBudget("claude-3-5-sonnet-20241022")).Equal(190000)
	gt.Value(t, llm.TokenLimit("gpt-4o-2024-05-13")).Equal(128000)
	gt.Value(t, llm.TokenLimit("gpt-4-0613")).Equal(8192)
	gt.Value(t, llm.TokenLimit("gpt-3.5-turbo")).Equal(16385)
	gt.Value(t, llm.TokenLimit("gemini-2.0-flash")).Equal(1048576)
	gt.Value(t, llm.TokenLimit("mystery-model")).Equal(llm.DefaultTokenLimit)
}

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

func TestTruncatePrompt(t *testing.T) {
	const modelName = "claude-3-5-sonnet-20241022"
	prompt := strings.Repeat("tok ", 200000)

	var buf bytes.Buffer
	ctx := logging.With(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))

	tok := &wordTokenizer{}
	out := llm.TruncatePrompt(ctx, tok, modelName, prompt)
	gt.Bool(t, len(tok.Encode(out)) < 190000).True()
	gt.String(t, buf.String()).Contains(`"level":"WARN"`)
	gt.String(t, buf.String()).Contains("truncating")

	t.Run("short prompts are untouched", func(t *testing.T) {
		buf.Reset()
		gt.Value(t, llm.TruncatePrompt(ctx, tok, modelName, "a short prompt")).Equal("a short prompt")
		gt.Value(t, buf.Len()).Equal(0)
	})
}
