package rule

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// Plugin slugs of the rule based resolvers
const (
	ParticipantPluginSlug = "rule-participant-resolver"
	DocumentPluginSlug    = "rule-document-resolver"
)

// ParticipantRule suggests people and on-call services when its filter
// matches a subject's attributes
type ParticipantRule struct {
	Name       string           `json:"name"`
	Filter     model.FilterExpr `json:"filter"`
	Emails     []string         `json:"emails,omitempty"`
	ServiceIDs []string         `json:"service_ids,omitempty"`
}

// ParticipantConfig is the plugin configuration of the participant resolver
type ParticipantConfig struct {
	Rules []ParticipantRule `json:"rules"`
}

// ParticipantResolver evaluates participant rules in order
type ParticipantResolver struct {
	rules []ParticipantRule
}

var _ interfaces.ParticipantResolver = (*ParticipantResolver)(nil)

// NewParticipantResolver validates the rules and creates the resolver
func NewParticipantResolver(conf ParticipantConfig) (*ParticipantResolver, error) {
	for i, r := range conf.Rules {
		if err := r.Filter.Validate(); err != nil {
			return nil, goerr.Wrap(err, "invalid participant rule filter", goerr.V("index", i), goerr.V("rule", r.Name))
		}
	}
	return &ParticipantResolver{rules: conf.Rules}, nil
}

func (r *ParticipantResolver) Slug() string             { return ParticipantPluginSlug }
func (r *ParticipantResolver) Type() types.ProviderType { return types.ProviderTypeParticipantResolver }

// Resolve returns the emails and services of every matching rule. Each email
// and service appears once, attributed to the first rule that named it.
func (r *ParticipantResolver) Resolve(_ context.Context, attrs map[string]any) ([]*model.ResolvedParticipant, error) {
	seen := map[string]bool{}
	var out []*model.ResolvedParticipant
	for _, rule := range r.rules {
		if !rule.Filter.Match(attrs) {
			continue
		}
		reason := "Matched participant rule " + rule.Name
		for _, email := range rule.Emails {
			email = strings.ToLower(strings.TrimSpace(email))
			if email == "" || seen["e:"+email] {
				continue
			}
			seen["e:"+email] = true
			out = append(out, &model.ResolvedParticipant{Email: email, Reason: reason})
		}
		for _, id := range rule.ServiceIDs {
			if id == "" || seen["s:"+id] {
				continue
			}
			seen["s:"+id] = true
			out = append(out, &model.ResolvedParticipant{ServiceID: id, Reason: reason})
		}
	}
	return out, nil
}

// DocumentResolver selects project documents whose filter matches a subject
type DocumentResolver struct{}

var _ interfaces.DocumentResolver = (*DocumentResolver)(nil)

// NewDocumentResolver creates the document resolver. It takes no settings.
func NewDocumentResolver() *DocumentResolver {
	return &DocumentResolver{}
}

func (r *DocumentResolver) Slug() string             { return DocumentPluginSlug }
func (r *DocumentResolver) Type() types.ProviderType { return types.ProviderTypeDocumentResolver }

// Resolve returns the enabled documents with a non-empty filter matching attrs
func (r *DocumentResolver) Resolve(_ context.Context, attrs map[string]any, documents []*model.Document) ([]*model.Document, error) {
	var out []*model.Document
	for _, d := range documents {
		if !d.Enabled || d.Filter.IsEmpty() {
			continue
		}
		if d.Filter.Match(attrs) {
			out = append(out, d)
		}
	}
	return out, nil
}
