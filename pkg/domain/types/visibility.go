package types

import "fmt"

// Visibility controls whether a subject is discoverable and included in notifications
type Visibility string

const (
	VisibilityOpen       Visibility = "open"
	VisibilityRestricted Visibility = "restricted"
)

// IsValid checks if the visibility is valid
func (v Visibility) IsValid() bool {
	return v == VisibilityOpen || v == VisibilityRestricted
}

// Normalize treats empty visibility as open
func (v Visibility) Normalize() Visibility {
	if v == "" {
		return VisibilityOpen
	}
	return v
}

func (v Visibility) String() string {
	return string(v)
}

// ParseVisibility parses a string into a Visibility
func ParseVisibility(s string) (Visibility, error) {
	v := Visibility(s)
	if !v.IsValid() {
		return "", fmt.Errorf("invalid visibility: %s", s)
	}
	return v, nil
}
