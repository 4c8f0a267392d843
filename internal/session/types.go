package session

import "github.com/ovaphlow/pitchfork/client-session-go/internal/credential"

// State of the session as seen by the gate.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	// Revalidating means a background profile check is in flight.
	Revalidating
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Revalidating:
		return "revalidating"
	default:
		return "unknown"
	}
}

// Snapshot is the observable value pushed to subscribers.
type Snapshot struct {
	State State
	User  *credential.User
}

// Decision is the outcome of a route guard.
type Decision struct {
	Allow      bool
	RedirectTo string
}

func Allow() Decision { return Decision{Allow: true} }

func RedirectTo(path string) Decision { return Decision{RedirectTo: path} }
