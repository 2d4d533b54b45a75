package domain

import "fmt"

// Role is resolved server-side from the verified identity, never from the client payload.
type Role int

const (
	RoleUnknown Role = iota
	RoleParticipant
	RoleOrganizer
)

func (r Role) String() string {
	switch r {
	case RoleParticipant:
		return "participant"
	case RoleOrganizer:
		return "organizer"
	default:
		return "unknown"
	}
}

// ParseRole maps a claim value to a Role.
func ParseRole(raw string) (Role, error) {
	switch raw {
	case "participant":
		return RoleParticipant, nil
	case "organizer":
		return RoleOrganizer, nil
	default:
		return RoleUnknown, fmt.Errorf("unknown role %q", raw)
	}
}

// Principal is the verified caller handed over by the auth collaborator.
type Principal struct {
	ID   string
	Role Role
}
