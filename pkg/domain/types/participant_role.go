package types

import "fmt"

// ParticipantRole is a role a participant holds on a subject
type ParticipantRole string

const (
	ParticipantRoleParticipant       ParticipantRole = "participant"
	ParticipantRoleObserver          ParticipantRole = "observer"
	ParticipantRoleReporter          ParticipantRole = "reporter"
	ParticipantRoleIncidentCommander ParticipantRole = "incident_commander"
	ParticipantRoleScribe            ParticipantRole = "scribe"
	ParticipantRoleLiaison           ParticipantRole = "liaison"
	ParticipantRoleAssignee          ParticipantRole = "assignee"
)

// AllParticipantRoles returns all valid participant roles
func AllParticipantRoles() []ParticipantRole {
	return []ParticipantRole{
		ParticipantRoleParticipant,
		ParticipantRoleObserver,
		ParticipantRoleReporter,
		ParticipantRoleIncidentCommander,
		ParticipantRoleScribe,
		ParticipantRoleLiaison,
		ParticipantRoleAssignee,
	}
}

// IsValid checks if the participant role is valid
func (r ParticipantRole) IsValid() bool {
	for _, v := range AllParticipantRoles() {
		if r == v {
			return true
		}
	}
	return false
}

// IsPrivileged reports whether the role may run restricted commands
func (r ParticipantRole) IsPrivileged() bool {
	return r == ParticipantRoleIncidentCommander || r == ParticipantRoleScribe
}

func (r ParticipantRole) String() string {
	return string(r)
}

// Title returns a human readable label
func (r ParticipantRole) Title() string {
	switch r {
	case ParticipantRoleIncidentCommander:
		return "Incident Commander"
	case ParticipantRoleParticipant:
		return "Participant"
	case ParticipantRoleObserver:
		return "Observer"
	case ParticipantRoleReporter:
		return "Reporter"
	case ParticipantRoleScribe:
		return "Scribe"
	case ParticipantRoleLiaison:
		return "Liaison"
	case ParticipantRoleAssignee:
		return "Assignee"
	default:
		return string(r)
	}
}

// ParseParticipantRole parses a string into a ParticipantRole
func ParseParticipantRole(s string) (ParticipantRole, error) {
	r := ParticipantRole(s)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid participant role: %s", s)
	}
	return r, nil
}

// IncidentRoleForCaseRole maps a case role to the role the same person holds on
// an incident escalated from that case.
func IncidentRoleForCaseRole(r ParticipantRole) ParticipantRole {
	switch r {
	case ParticipantRoleAssignee:
		return ParticipantRoleIncidentCommander
	case ParticipantRoleReporter:
		return ParticipantRoleReporter
	case ParticipantRoleObserver:
		return ParticipantRoleObserver
	default:
		return ParticipantRoleParticipant
	}
}
