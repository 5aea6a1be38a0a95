package types

import (
	"regexp"

	"github.com/m-mizutani/goerr/v2"
)

// ProjectSlug is the lowercase, hyphenated project identifier used as the
// first segment of subject names
type ProjectSlug string

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Validate checks if the slug is valid
func (s ProjectSlug) Validate() error {
	if s == "" {
		return goerr.New("project slug cannot be empty")
	}
	if !slugPattern.MatchString(string(s)) {
		return goerr.New("project slug must be lowercase alphanumeric with hyphens", goerr.V("slug", s))
	}
	return nil
}

func (s ProjectSlug) String() string {
	return string(s)
}
