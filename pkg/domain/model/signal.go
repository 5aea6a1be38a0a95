package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// Signal is a detection definition. Its instances open cases.
type Signal struct {
	CatalogBase
	Owner      string `json:"owner,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	Variant    string `json:"variant,omitempty"`

	CaseTypeID     int64 `json:"case_type_id"`
	CasePriorityID int64 `json:"case_priority_id,omitempty"`
	CaseSeverityID int64 `json:"case_severity_id,omitempty"`
	CreateCase     bool  `json:"create_case"`

	EntityTypeIDs []int64 `json:"entity_type_ids,omitempty"`
	FilterIDs     []int64 `json:"filter_ids,omitempty"`
	TagIDs        []int64 `json:"tag_ids,omitempty"`

	GenAIEnabled       bool   `json:"genai_enabled"`
	GenAIModel         string `json:"genai_model,omitempty"`
	GenAIPrompt        string `json:"genai_prompt,omitempty"`
	GenAISystemMessage string `json:"genai_system_message,omitempty"`
}

// EntityType extracts entities from signal payloads with a JSONPath and an
// optional regular expression.
type EntityType struct {
	CatalogBase
	JPath  string `json:"jpath"`
	Regex  string `json:"regular_expression,omitempty"`
	Global bool   `json:"global"`
}

// SignalFilter drops (snooze) or merges (deduplicate) matching instances
type SignalFilter struct {
	CatalogBase
	Action     types.FilterAction `json:"action"`
	Expression FilterExpr         `json:"expression,omitempty"`
	// Window is the deduplication window in seconds
	Window    int        `json:"window"`
	ExpiresAt *time.Time `json:"expiration,omitempty"`
}

// WindowDuration returns the deduplication window, defaulting to one hour
func (f *SignalFilter) WindowDuration() time.Duration {
	if f.Window <= 0 {
		return time.Hour
	}
	return time.Duration(f.Window) * time.Second
}

// Expired reports whether a snooze filter no longer applies
func (f *SignalFilter) Expired(now time.Time) bool {
	return f.ExpiresAt != nil && now.After(*f.ExpiresAt)
}

// Entity is a value extracted from signal payloads
type Entity struct {
	ID           int64     `json:"id"`
	ProjectID    int64     `json:"project_id"`
	EntityTypeID int64     `json:"entity_type_id"`
	TypeName     string    `json:"entity_type_name"`
	Value        string    `json:"value"`
	CreatedAt    time.Time `json:"created_at"`
}

// SignalInstance is one emission of a signal
type SignalInstance struct {
	ID           string             `json:"id"`
	ProjectID    int64              `json:"project_id"`
	SignalID     int64              `json:"signal_id"`
	Raw          json.RawMessage    `json:"raw"`
	Fingerprint  string             `json:"fingerprint"`
	EntityIDs    []int64            `json:"entity_ids,omitempty"`
	CaseID       int64              `json:"case_id,omitempty"`
	FilterAction types.FilterAction `json:"filter_action"`
	CreatedAt    time.Time          `json:"created_at"`
}

// SignalInstanceQuery filters signal instance listings
type SignalInstanceQuery struct {
	SignalID    int64
	Fingerprint string
	Since       *time.Time
	Limit       int
}

// Fingerprint hashes the canonicalized set of (entity type, value) pairs
// together with the signal id. Order and duplicates of entities do not change
// the result.
func Fingerprint(signalID int64, entities []*Entity) string {
	seen := make(map[string]struct{}, len(entities))
	pairs := make([]string, 0, len(entities))
	for _, e := range entities {
		p := e.TypeName + "\x00" + e.Value
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		pairs = append(pairs, p)
	}
	sort.Strings(pairs)

	h := sha256.New()
	h.Write([]byte(strconv.FormatInt(signalID, 10)))
	h.Write([]byte{'\n'})
	h.Write([]byte(strings.Join(pairs, "\n")))
	return hex.EncodeToString(h.Sum(nil))
}
