package kart

// Role selects how a vehicle advances on a tick.
type Role uint8

const (
	// RoleAuthorityDriven is the authority's own locally controlled
	// vehicle. Captured moves go straight into the authority simulator.
	RoleAuthorityDriven Role = iota + 1
	// RolePredicting is the locally controlled vehicle on a remote
	// participant. It predicts and reconciles.
	RolePredicting
	// RoleReplaying is someone else's vehicle on a remote participant.
	// It reconciles with no queue and dead-reckons between states.
	RoleReplaying
	// RoleAuthorityServing is the authority's copy of a vehicle controlled
	// elsewhere. It only moves when a move arrives.
	RoleAuthorityServing
)

// ResolveRole derives a vehicle's role from who owns the simulation and
// who owns the input.
func ResolveRole(isAuthority, isLocallyControlled bool) Role {
	switch {
	case isAuthority && isLocallyControlled:
		return RoleAuthorityDriven
	case isAuthority:
		return RoleAuthorityServing
	case isLocallyControlled:
		return RolePredicting
	default:
		return RoleReplaying
	}
}

func (r Role) String() string {
	switch r {
	case RoleAuthorityDriven:
		return "authority-driven"
	case RolePredicting:
		return "predicting"
	case RoleReplaying:
		return "replaying"
	case RoleAuthorityServing:
		return "authority-serving"
	default:
		return "unknown"
	}
}
