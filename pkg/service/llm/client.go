package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/claude"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/m-mizutani/gollem/llm/openai"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// PluginSlug is the plugin name of the gollem AI provider
const PluginSlug = "gollem-ai"

// Supported LLM backends
const (
	BackendGemini = "gemini"
	BackendOpenAI = "openai"
	BackendClaude = "claude"
)

// Config is the plugin configuration of the AI provider
type Config struct {
	// Backend is one of gemini, openai or claude
	Backend string `json:"backend"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key,omitempty" masq:"secret"`

	// Vertex AI settings for the gemini backend
	ProjectID string `json:"project_id,omitempty"`
	Location  string `json:"location,omitempty"`
}

// Client implements the AI provider on top of a gollem LLM client
type Client struct {
	llm  gollem.LLMClient
	conf Config
}

var _ interfaces.AIProvider = (*Client)(nil)

// Option configures the client
type Option func(*Client)

// WithLLMClient replaces the LLM client built from the configuration
func WithLLMClient(c gollem.LLMClient) Option {
	return func(cl *Client) {
		cl.llm = c
	}
}

// New creates an AI provider. The backend client is built from conf unless
// WithLLMClient is given.
func New(ctx context.Context, conf Config, opts ...Option) (*Client, error) {
	if conf.Model == "" {
		return nil, goerr.New("AI model is required", goerr.V("backend", conf.Backend))
	}

	c := &Client{conf: conf}
	for _, opt := range opts {
		opt(c)
	}
	if c.llm != nil {
		return c, nil
	}

	var err error
	switch strings.ToLower(conf.Backend) {
	case BackendGemini:
		if conf.ProjectID == "" || conf.Location == "" {
			return nil, goerr.New("gemini backend requires project_id and location")
		}
		c.llm, err = gemini.New(ctx, conf.ProjectID, conf.Location, gemini.WithModel(conf.Model))
	case BackendOpenAI:
		if conf.APIKey == "" {
			return nil, goerr.New("openai backend requires api_key")
		}
		c.llm, err = openai.New(ctx, conf.APIKey, openai.WithModel(conf.Model))
	case BackendClaude:
		if conf.APIKey == "" {
			return nil, goerr.New("claude backend requires api_key")
		}
		c.llm, err = claude.New(ctx, conf.APIKey, claude.WithModel(conf.Model))
	default:
		return nil, goerr.New("unknown AI backend", goerr.V("backend", conf.Backend))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create LLM client", goerr.V("backend", conf.Backend), goerr.V("model", conf.Model))
	}
	return c, nil
}

func (c *Client) Slug() string             { return PluginSlug }
func (c *Client) Type() types.ProviderType { return types.ProviderTypeAI }

// Model returns the configured model name
func (c *Client) Model() string { return c.conf.Model }

// LLM returns the underlying gollem client
func (c *Client) LLM() gollem.LLMClient { return c.llm }

func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"), strings.Contains(msg, "resource_exhausted"):
		return model.NewProviderError(PluginSlug, model.ProviderErrorRateLimited, err)
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"), strings.Contains(msg, "permission"):
		return model.NewProviderError(PluginSlug, model.ProviderErrorAuth, err)
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"), strings.Contains(msg, "503"),
		strings.Contains(msg, "overloaded"), strings.Contains(msg, "unavailable"), strings.Contains(msg, "timeout"):
		return model.NewProviderError(PluginSlug, model.ProviderErrorTransient, err)
	}
	return model.NewProviderError(PluginSlug, model.ProviderErrorFatal, err)
}

func firstText(resp *gollem.Response) (string, error) {
	if resp == nil || len(resp.Texts) == 0 {
		return "", goerr.Wrap(model.NewProviderError(PluginSlug, model.ProviderErrorFatal, nil), "LLM returned no text")
	}
	return strings.Join(resp.Texts, ""), nil
}

// ChatCompletion sends prompt with an optional system message and returns
// the text answer
func (c *Client) ChatCompletion(ctx context.Context, prompt, system string) (string, error) {
	var opts []gollem.SessionOption
	if system != "" {
		opts = append(opts, gollem.WithSessionSystemPrompt(system))
	}

	session, err := c.llm.NewSession(ctx, opts...)
	if err != nil {
		return "", goerr.Wrap(classify(err), "failed to create LLM session", goerr.V("model", c.conf.Model))
	}
	resp, err := session.Generate(ctx, []gollem.Input{gollem.Text(prompt)})
	if err != nil {
		return "", goerr.Wrap(classify(err), "failed to generate completion", goerr.V("model", c.conf.Model))
	}
	return firstText(resp)
}

// ChatParse asks for a JSON answer following schema and decodes it into out
func (c *Client) ChatParse(ctx context.Context, prompt string, schema *gollem.Parameter, system string, out any) error {
	opts := []gollem.SessionOption{
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
	}
	if schema != nil {
		opts = append(opts, gollem.WithSessionResponseSchema(schema))
	}
	if system != "" {
		opts = append(opts, gollem.WithSessionSystemPrompt(system))
	}

	session, err := c.llm.NewSession(ctx, opts...)
	if err != nil {
		return goerr.Wrap(classify(err), "failed to create LLM session", goerr.V("model", c.conf.Model))
	}
	resp, err := session.Generate(ctx, []gollem.Input{gollem.Text(prompt)})
	if err != nil {
		return goerr.Wrap(classify(err), "failed to generate structured response", goerr.V("model", c.conf.Model))
	}
	text, err := firstText(resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return goerr.Wrap(err, "failed to parse LLM response", goerr.V("response", text))
	}
	return nil
}
