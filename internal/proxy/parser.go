package proxy

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	ErrInvalidLink   = errors.New("invalid proxy link")
	ErrInvalidSecret = errors.New("invalid proxy secret")
)

// ParseLink parses a tg://proxy descriptor link into a Config. The secret
// query parameter is normalized to canonical hex via NormalizeSecret.
func ParseLink(name, link string) (Config, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidLink, link, err)
	}
	if u.Scheme != "tg" || u.Host != "proxy" {
		return Config{}, fmt.Errorf("%w: not a tg://proxy link: %s", ErrInvalidLink, link)
	}

	q := u.Query()
	server := strings.TrimSpace(q.Get("server"))
	if server == "" {
		return Config{}, fmt.Errorf("%w: missing server: %s", ErrInvalidLink, link)
	}
	port, err := strconv.Atoi(strings.TrimSpace(q.Get("port")))
	if err != nil || port < 0 {
		return Config{}, fmt.Errorf("%w: invalid port %q", ErrInvalidLink, q.Get("port"))
	}

	secret, err := NormalizeSecret(q.Get("secret"))
	if err != nil {
		return Config{}, err
	}

	return Config{Name: name, Server: server, Port: port, Secret: secret}, nil
}

// NormalizeSecret converts a secret to canonical lowercase hex. Hex input is
// accepted case-insensitively with an optional 0x prefix; otherwise the
// value is treated as (possibly unpadded) base64.
func NormalizeSecret(secret string) (string, error) {
	s := strings.ReplaceAll(strings.TrimSpace(secret), " ", "")
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		s = s[2:]
	}
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSecret)
	}

	if b, err := hex.DecodeString(s); err == nil {
		return hex.EncodeToString(b), nil
	}

	if pad := (4 - len(s)%4) % 4; pad > 0 {
		s += strings.Repeat("=", pad)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		b, err = base64.URLEncoding.DecodeString(s)
	}
	if err != nil {
		return "", fmt.Errorf("%w: neither hex nor base64: %q", ErrInvalidSecret, secret)
	}
	return hex.EncodeToString(b), nil
}
