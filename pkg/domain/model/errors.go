package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors of the error taxonomy
var (
	ErrNotFound      = errors.New("not found")
	ErrContext       = errors.New("unable to resolve subject from conversation")
	ErrRole          = errors.New("command restricted to privileged roles")
	ErrBotNotPresent = errors.New("bot is not a member of the conversation")
	ErrStateConflict = errors.New("state conflict")
	ErrInvalidInput  = errors.New("invalid input")
)

// Context keys for error values
const (
	OrgKey        = "organization"
	ProjectIDKey  = "project_id"
	IncidentIDKey = "incident_id"
	CaseIDKey     = "case_id"
	SubjectKey    = "subject"
	EmailKey      = "email"
	ChannelIDKey  = "channel_id"
	ProviderKey   = "provider"
	PluginKey     = "plugin"
	SignalIDKey   = "signal_id"
	GenAITypeKey  = "genai_type"
)

// FieldError is one entry of a ValidationError: the location of the invalid
// input and a message.
type FieldError struct {
	Loc string `json:"loc"`
	Msg string `json:"msg"`
}

// ValidationError rejects input at the boundary with a list of field errors.
type ValidationError struct {
	Details []FieldError
}

// NewValidationError builds a ValidationError with a single detail
func NewValidationError(loc, msg string) *ValidationError {
	return &ValidationError{Details: []FieldError{{Loc: loc, Msg: msg}}}
}

// Add appends a field error
func (e *ValidationError) Add(loc, msg string) {
	e.Details = append(e.Details, FieldError{Loc: loc, Msg: msg})
}

// HasErrors reports whether any detail was recorded
func (e *ValidationError) HasErrors() bool {
	return e != nil && len(e.Details) > 0
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Loc+": "+d.Msg)
	}
	return "validation error: " + strings.Join(parts, "; ")
}

// StateConflictError is a StateConflict carrying the offending location, e.g.
// enabling a second prompt of the same genai_type.
type StateConflictError struct {
	Loc string
	Msg string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("state conflict on %s: %s", e.Loc, e.Msg)
}

// Unwrap allows errors.Is(err, ErrStateConflict)
func (e *StateConflictError) Unwrap() error {
	return ErrStateConflict
}

func NewStateConflict(loc, msg string) *StateConflictError {
	return &StateConflictError{Loc: loc, Msg: msg}
}

// ProviderErrorKind classifies failures of external providers
type ProviderErrorKind string

const (
	ProviderErrorTransient   ProviderErrorKind = "transient"
	ProviderErrorRateLimited ProviderErrorKind = "rate_limited"
	ProviderErrorAuth        ProviderErrorKind = "auth"
	ProviderErrorNotFound    ProviderErrorKind = "not_found"
	ProviderErrorFatal       ProviderErrorKind = "fatal"
)

// ProviderError wraps a failure returned by a provider implementation.
type ProviderError struct {
	Kind       ProviderErrorKind
	Provider   string
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s provider error (%s)", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s provider error (%s): %s", e.Provider, e.Kind, e.Err.Error())
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a ProviderError of the given kind
func NewProviderError(provider string, kind ProviderErrorKind, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Err: err}
}

// ProviderErrorKindOf returns the kind of the first ProviderError in err's
// chain, or fatal when err is not a ProviderError.
func ProviderErrorKindOf(err error) ProviderErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ProviderErrorFatal
}

// IsTransient reports whether err is a retryable provider failure
func IsTransient(err error) bool {
	kind := ProviderErrorKindOf(err)
	return kind == ProviderErrorTransient || kind == ProviderErrorRateLimited
}
