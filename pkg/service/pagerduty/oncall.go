package pagerduty

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PagerDuty/go-pagerduty"
	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// PluginSlug is the plugin name of the PagerDuty on-call provider
const PluginSlug = "pagerduty-oncall"

// Config is the plugin configuration of the PagerDuty on-call provider
type Config struct {
	APIKey string `json:"api_key" masq:"secret"`
	// FromEmail is the PagerDuty user incidents are created as
	FromEmail string `json:"from_email"`
	// APIEndpoint overrides the REST endpoint
	APIEndpoint string `json:"api_endpoint,omitempty"`
}

// Client resolves on-call engineers of PagerDuty services and pages them
type Client struct {
	pd   *pagerduty.Client
	conf Config
}

var _ interfaces.OncallProvider = (*Client)(nil)

// New creates a PagerDuty on-call provider
func New(conf Config) (*Client, error) {
	if conf.APIKey == "" {
		return nil, goerr.New("PagerDuty API key is required")
	}
	if conf.FromEmail == "" {
		return nil, goerr.New("PagerDuty from_email is required")
	}

	var opts []pagerduty.ClientOptions
	if conf.APIEndpoint != "" {
		opts = append(opts, pagerduty.WithAPIEndpoint(conf.APIEndpoint))
	}
	return &Client{pd: pagerduty.NewClient(conf.APIKey, opts...), conf: conf}, nil
}

func (c *Client) Slug() string             { return PluginSlug }
func (c *Client) Type() types.ProviderType { return types.ProviderTypeOncall }

func classify(err error) error {
	var apiErr pagerduty.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.RateLimited():
			return model.NewProviderError(PluginSlug, model.ProviderErrorRateLimited, err)
		case apiErr.Temporary():
			return model.NewProviderError(PluginSlug, model.ProviderErrorTransient, err)
		case apiErr.NotFound():
			return model.NewProviderError(PluginSlug, model.ProviderErrorNotFound, err)
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return model.NewProviderError(PluginSlug, model.ProviderErrorAuth, err)
		}
	}
	return model.NewProviderError(PluginSlug, model.ProviderErrorFatal, err)
}

// ResolveOncall returns the email of the first-level on-call engineer of the
// service's escalation policy
func (c *Client) ResolveOncall(ctx context.Context, serviceID string) (string, error) {
	svc, err := c.pd.GetServiceWithContext(ctx, serviceID, &pagerduty.GetServiceOptions{})
	if err != nil {
		return "", goerr.Wrap(classify(err), "failed to get PagerDuty service", goerr.V("serviceID", serviceID))
	}

	resp, err := c.pd.ListOnCallsWithContext(ctx, pagerduty.ListOnCallOptions{
		EscalationPolicyIDs: []string{svc.EscalationPolicy.ID},
		Includes:            []string{"users"},
		Earliest:            true,
	})
	if err != nil {
		return "", goerr.Wrap(classify(err), "failed to list on-calls",
			goerr.V("serviceID", serviceID), goerr.V("policyID", svc.EscalationPolicy.ID))
	}

	var first *pagerduty.OnCall
	for i := range resp.OnCalls {
		oc := &resp.OnCalls[i]
		if first == nil || oc.EscalationLevel < first.EscalationLevel {
			first = oc
		}
	}
	if first == nil {
		return "", goerr.Wrap(model.ErrNotFound, "nobody is on call", goerr.V("serviceID", serviceID))
	}

	if first.User.Email != "" {
		return strings.ToLower(first.User.Email), nil
	}
	user, err := c.pd.GetUserWithContext(ctx, first.User.ID, pagerduty.GetUserOptions{})
	if err != nil {
		return "", goerr.Wrap(classify(err), "failed to get on-call user", goerr.V("userID", first.User.ID))
	}
	return strings.ToLower(user.Email), nil
}

// Page opens a PagerDuty incident on the service. DedupKey is used as the
// incident key so repeated pages collapse.
func (c *Client) Page(ctx context.Context, serviceID string, req model.PageRequest) error {
	details := req.Description
	if req.Weblink != "" {
		details = fmt.Sprintf("%s\n\n%s", details, req.Weblink)
	}

	_, err := c.pd.CreateIncidentWithContext(ctx, c.conf.FromEmail, &pagerduty.CreateIncidentOptions{
		Type:        "incident",
		Title:       req.Title,
		Service:     &pagerduty.APIReference{ID: serviceID, Type: "service_reference"},
		IncidentKey: req.DedupKey,
		Body:        &pagerduty.APIDetails{Type: "incident_body", Details: details},
	})
	if err != nil {
		return goerr.Wrap(classify(err), "failed to page service", goerr.V("serviceID", serviceID), goerr.V("title", req.Title))
	}
	return nil
}
