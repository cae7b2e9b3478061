package session

// Provider supplies the currently authenticated operator identity, or "" when
// no session is active. The actual authentication flow lives outside this
// pipeline; the gateway only needs to know who is saving.
type Provider interface {
	Current() string
}

// Static is a fixed-identity provider, used by the CLI entrypoints and tests.
type Static struct {
	Operator string
}

func (s Static) Current() string {
	return s.Operator
}
