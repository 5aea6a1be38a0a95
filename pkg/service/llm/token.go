package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pkoukk/tiktoken-go"

	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// TokenBufferRatio is the share of a model's context window kept free
const TokenBufferRatio = 0.05

// DefaultEncoding is used for models tiktoken does not know
const DefaultEncoding = "cl100k_base"

// DefaultTokenLimit applies to unknown models
const DefaultTokenLimit = 8192

// Longest prefixes first
var tokenLimits = []struct {
	prefix string
	limit  int
}{
	{"claude-3-5-sonnet", 200000},
	{"claude-3-5-haiku", 200000},
	{"claude-3-opus", 200000},
	{"claude-3-sonnet", 200000},
	{"claude-3-haiku", 200000},
	{"claude-", 200000},
	{"gpt-4o", 128000},
	{"gpt-4-turbo", 128000},
	{"gpt-4", 8192},
	{"gpt-3.5-turbo", 16385},
	{"gemini-1.5", 1048576},
	{"gemini-2", 1048576},
}

// TokenLimit returns the raw context window of model
func TokenLimit(model string) int {
	m := strings.ToLower(model)
	for _, l := range tokenLimits {
		if strings.HasPrefix(m, l.prefix) {
			return l.limit
		}
	}
	return DefaultTokenLimit
}

// TokenBudget returns the usable prompt size of model
func TokenBudget(model string) int {
	return int(float64(TokenLimit(model)) * (1 - TokenBufferRatio))
}

// Tokenizer encodes text into model tokens and back
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type tiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

func (t *tiktokenTokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *tiktokenTokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// keyed by model name
var tokenizers sync.Map

// TokenizerFor returns the tiktoken encoding of model, falling back to
// cl100k_base. Tokenizers are built once per model.
func TokenizerFor(model string) (Tokenizer, error) {
	if cached, ok := tokenizers.Load(model); ok {
		return cached.(Tokenizer), nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(DefaultEncoding)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to load token encoding",
				goerr.V("encoding", DefaultEncoding), goerr.V("model", model))
		}
	}
	tok, _ := tokenizers.LoadOrStore(model, &tiktokenTokenizer{enc: enc})
	return tok.(Tokenizer), nil
}

// TruncatePrompt drops tokens from the end of prompt until it fits the budget
// of model. The returned prompt is strictly shorter than the budget.
func TruncatePrompt(ctx context.Context, tok Tokenizer, model, prompt string) string {
	budget := TokenBudget(model)
	tokens := tok.Encode(prompt)
	if len(tokens) < budget {
		return prompt
	}

	keep := budget - 1
	logging.From(ctx).Warn("prompt exceeds model token budget, truncating",
		"model", model,
		"tokens", len(tokens),
		"budget", budget,
		"kept", keep,
	)
	return tok.Decode(tokens[:keep])
}
