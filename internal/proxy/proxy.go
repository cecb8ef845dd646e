package proxy

import "fmt"

// Config describes one monitored MTProto proxy endpoint. Secret is the
// canonical even-length lowercase hex form produced by NormalizeSecret.
// Values are immutable after load.
type Config struct {
	Name   string
	Server string
	Port   int
	Secret string
}

// Key identifies a proxy for failure-streak bookkeeping. The secret prefix
// is included so a re-keyed proxy on the same address starts a fresh streak.
func (c Config) Key() string {
	prefix := c.Secret
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("%s:%d:%s", c.Server, c.Port, prefix)
}

// HostPort returns the endpoint in "server:port" form.
func (c Config) HostPort() string {
	return fmt.Sprintf("%s:%d", c.Server, c.Port)
}

// SecretPreview masks the secret for display: first 8 and last 6 hex digits
// joined by an ellipsis. Short secrets are shown as-is.
func (c Config) SecretPreview() string {
	if len(c.Secret) < 14 {
		return c.Secret
	}
	return c.Secret[:8] + "…" + c.Secret[len(c.Secret)-6:]
}
