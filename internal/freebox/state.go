package freebox

// State is the caller-visible position of a Client in the pairing flow.
type State string

const (
	StateUnknown       State = "unknown"
	StateDiscovered    State = "discovered"
	StateAuthorizing   State = "authorizing"
	StateGranted       State = "granted"
	StateDenied        State = "denied"
	StateSessionOpen   State = "session_open"
	StateSessionClosed State = "session_closed"
)

// State derives the current state from the credential fields.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case c.descriptor == nil:
		return StateUnknown
	case c.appToken == "":
		return StateDiscovered
	case c.sessionToken != "":
		return StateSessionOpen
	}

	switch c.authStatus {
	case AuthorizationGranted:
		if c.sessionClosed {
			return StateSessionClosed
		}
		return StateGranted
	case AuthorizationDenied:
		return StateDenied
	default:
		return StateAuthorizing
	}
}

func (c *Client) session() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionToken
}
