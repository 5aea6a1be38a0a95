// Package google provides the Google Workspace providers: mailing groups
// (Admin Directory), conference bridges (Calendar with Meet) and email
// (Gmail). All of them authenticate with a service account using
// domain-wide delegation.
package google

import (
	"context"
	"errors"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

// Config is the plugin configuration shared by the Google providers
type Config struct {
	// CredentialsJSON is a service account key with domain-wide delegation
	CredentialsJSON string `json:"credentials_json,omitempty" masq:"secret"`
	// Subject is the Workspace user the service account acts as
	Subject string `json:"subject,omitempty"`
	// Domain is the Workspace domain of created groups
	Domain string `json:"domain,omitempty"`
}

// clientOptions builds the API client options for scopes. Extra options are
// appended, so callers can override the endpoint in tests.
func clientOptions(ctx context.Context, conf Config, scopes []string, extra []option.ClientOption) ([]option.ClientOption, error) {
	var opts []option.ClientOption
	if conf.CredentialsJSON != "" {
		jwtConf, err := google.JWTConfigFromJSON([]byte(conf.CredentialsJSON), scopes...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to parse Google service account key")
		}
		jwtConf.Subject = conf.Subject
		opts = append(opts, option.WithTokenSource(jwtConf.TokenSource(ctx)))
	} else if len(extra) == 0 {
		opts = append(opts, option.WithScopes(scopes...))
	}
	return append(opts, extra...), nil
}

// ErrorKind maps an HTTP status of a Google API error to a provider error kind
func ErrorKind(code int) model.ProviderErrorKind {
	switch {
	case code == http.StatusNotFound:
		return model.ProviderErrorNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return model.ProviderErrorAuth
	case code == http.StatusTooManyRequests:
		return model.ProviderErrorRateLimited
	case code >= http.StatusInternalServerError:
		return model.ProviderErrorTransient
	}
	return model.ProviderErrorFatal
}

func classify(slug string, err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return model.NewProviderError(slug, ErrorKind(gerr.Code), err)
	}
	return model.NewProviderError(slug, model.ProviderErrorFatal, err)
}

func statusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}
