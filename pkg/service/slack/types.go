package slack

import (
	"errors"
	"net"

	"github.com/slack-go/slack"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

// PluginSlug is the plugin name of the Slack chat provider
const PluginSlug = "slack-conversation"

// Bookmark titles in channel order
const (
	BookmarkDocument   = "Incident Document"
	BookmarkTicket     = "Ticket"
	BookmarkConference = "Conference"
	BookmarkStorage    = "Storage"
)

var (
	authErrors = map[string]bool{
		"invalid_auth":           true,
		"not_authed":             true,
		"account_inactive":       true,
		"token_revoked":          true,
		"missing_scope":          true,
		"not_allowed_token_type": true,
	}
	notFoundErrors = map[string]bool{
		"channel_not_found": true,
		"users_not_found":   true,
		"user_not_found":    true,
		"message_not_found": true,
		"not_in_channel":    true,
		"thread_not_found":  true,
	}
	transientErrors = map[string]bool{
		"internal_error":      true,
		"fatal_error":         true,
		"service_unavailable": true,
		"request_timeout":     true,
		"ratelimited":         true,
	}
)

// classify wraps a Slack API error into a provider error of the right kind
func classify(err error) error {
	if err == nil {
		return nil
	}

	var rl *slack.RateLimitedError
	if errors.As(err, &rl) {
		pe := model.NewProviderError(PluginSlug, model.ProviderErrorRateLimited, err)
		pe.RetryAfter = rl.RetryAfter
		return pe
	}

	var se slack.SlackErrorResponse
	if errors.As(err, &se) {
		switch {
		case authErrors[se.Err]:
			return model.NewProviderError(PluginSlug, model.ProviderErrorAuth, err)
		case notFoundErrors[se.Err]:
			return model.NewProviderError(PluginSlug, model.ProviderErrorNotFound, err)
		case transientErrors[se.Err]:
			return model.NewProviderError(PluginSlug, model.ProviderErrorTransient, err)
		}
		return model.NewProviderError(PluginSlug, model.ProviderErrorFatal, err)
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return model.NewProviderError(PluginSlug, model.ProviderErrorTransient, err)
	}
	var sc slack.StatusCodeError
	if errors.As(err, &sc) && sc.Retryable() {
		return model.NewProviderError(PluginSlug, model.ProviderErrorTransient, err)
	}
	return model.NewProviderError(PluginSlug, model.ProviderErrorFatal, err)
}

// isSlackError reports whether err is the Slack API error code
func isSlackError(err error, code string) bool {
	var se slack.SlackErrorResponse
	return errors.As(err, &se) && se.Err == code
}
