package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// SubjectRef identifies an incident or a case. Participants, events,
// resources, tasks and reports reference their subject through it.
type SubjectRef struct {
	Kind types.SubjectKind `json:"kind"`
	ID   int64             `json:"id"`
}

// IncidentRef returns a reference to an incident
func IncidentRef(id int64) SubjectRef {
	return SubjectRef{Kind: types.SubjectKindIncident, ID: id}
}

// CaseRef returns a reference to a case
func CaseRef(id int64) SubjectRef {
	return SubjectRef{Kind: types.SubjectKindCase, ID: id}
}

// IsZero reports whether the reference is unset
func (r SubjectRef) IsZero() bool {
	return r.Kind == "" || r.ID == 0
}

func (r SubjectRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// ParseSubjectRef parses the String() form
func ParseSubjectRef(s string) (SubjectRef, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok {
		return SubjectRef{}, fmt.Errorf("invalid subject reference: %s", s)
	}
	k := types.SubjectKind(kind)
	if !k.IsValid() {
		return SubjectRef{}, fmt.Errorf("invalid subject kind: %s", kind)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return SubjectRef{}, fmt.Errorf("invalid subject id: %s", id)
	}
	return SubjectRef{Kind: k, ID: n}, nil
}

// Subject is the behavior shared by incidents and cases
type Subject interface {
	Ref() SubjectRef
	GetName() string
	GetTitle() string
	GetDescription() string
	GetProjectID() int64
	GetStatus() string
	GetTagIDs() []int64
	IsClosed() bool
	IsRestricted() bool
}

// TextRank scores a subject against a free-text query: a name match ranks
// above a title match, which ranks above a description match. Zero means no
// match; an empty query matches everything with rank 1.
func TextRank(q, name, title, description string) int {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return 1
	}
	switch {
	case strings.Contains(strings.ToLower(name), q):
		return 3
	case strings.Contains(strings.ToLower(title), q):
		return 2
	case strings.Contains(strings.ToLower(description), q):
		return 1
	}
	return 0
}
