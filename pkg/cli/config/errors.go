package config

import (
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

// Sentinel errors for configuration validation
var (
	ErrConfigNotFound  = goerr.New("configuration file not found")
	ErrInvalidConfig   = goerr.New("invalid configuration")
	ErrDuplicateName   = goerr.New("duplicate name")
	ErrMissingName     = goerr.New("name is required")
	ErrUnknownRef      = goerr.New("reference to an undefined entry")
	ErrInvalidProvider = goerr.New("invalid provider")
)

// Context keys for error values
const (
	ConfigPathKey   = "config_path"
	OrganizationKey = "organization"
	ProjectKey      = "project"
	SectionKey      = "section"
	NameKey         = "name"
	RefKey          = "ref"
)

// IsUserError reports whether err stems from operator supplied configuration
func IsUserError(err error) bool {
	for _, sentinel := range []error{
		ErrConfigNotFound, ErrInvalidConfig, ErrDuplicateName,
		ErrMissingName, ErrUnknownRef, ErrInvalidProvider,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
