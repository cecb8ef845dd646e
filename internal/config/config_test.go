package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validProxies = `
[Proxies]
eu1 = tg://proxy?server=1.2.3.4&port=443&secret=ee` + "00112233445566778899aabbccddeeff" + `6578616d706c652e636f6d
us1 = tg://proxy?server=5.6.7.8&port=8443&secret=dd00112233445566778899aabbccddeeff
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.ini")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
[Server]
web_port = 9000
check_timeout = 7
refresh_min = 120
refresh_max = 240
egress_socks5 = 127.0.0.1:1080

[Telegram]
api_id = 12345
api_hash = abcdef0123456789
`+validProxies)

	rc, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if rc.WebPort != 9000 {
		t.Fatalf("web_port = %d", rc.WebPort)
	}
	if rc.Timeout != 7*time.Second {
		t.Fatalf("timeout = %v", rc.Timeout)
	}
	if rc.RefreshMin != 120 || rc.RefreshMax != 240 {
		t.Fatalf("window = (%d,%d)", rc.RefreshMin, rc.RefreshMax)
	}
	if rc.Egress != "127.0.0.1:1080" {
		t.Fatalf("egress = %q", rc.Egress)
	}
	if rc.APIID != 12345 || rc.APIHash != "abcdef0123456789" {
		t.Fatalf("telegram = (%d,%q)", rc.APIID, rc.APIHash)
	}
	if len(rc.Proxies) != 2 {
		t.Fatalf("proxies = %+v", rc.Proxies)
	}
	if rc.Proxies[0].Name != "eu1" || rc.Proxies[0].Server != "1.2.3.4" || rc.Proxies[0].Port != 443 {
		t.Fatalf("first proxy = %+v", rc.Proxies[0])
	}
	if !strings.HasPrefix(rc.Proxies[1].Secret, "dd") {
		t.Fatalf("second secret = %q", rc.Proxies[1].Secret)
	}
}

func TestLoadWritesServerDefaults(t *testing.T) {
	path := writeConfig(t, `
[Telegram]
api_id = 12345
api_hash = abcdef0123456789
`+validProxies)

	rc, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if rc.WebPort != 8899 || rc.Timeout != 10*time.Second {
		t.Fatalf("defaults not applied: port=%d timeout=%v", rc.WebPort, rc.Timeout)
	}
	if rc.RefreshMin != 300 || rc.RefreshMax != 600 {
		t.Fatalf("default window = (%d,%d)", rc.RefreshMin, rc.RefreshMax)
	}

	// The defaults must be persisted back to the file.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"web_port", "check_timeout", "refresh_min", "refresh_max", "log_file"} {
		if !strings.Contains(string(raw), key) {
			t.Fatalf("key %q not written back:\n%s", key, raw)
		}
	}
}

func TestLoadRejectsBadProxyLink(t *testing.T) {
	path := writeConfig(t, `
[Telegram]
api_id = 12345
api_hash = abcdef0123456789

[Proxies]
bad = http://example.com/not-a-proxy-link
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed proxy link")
	}
}

func TestLoadRejectsMissingTelegramCredentials(t *testing.T) {
	cases := map[string]string{
		"missing api_id": `
[Telegram]
api_hash = abcdef0123456789
` + validProxies,
		"non-numeric api_id": `
[Telegram]
api_id = not-a-number
api_hash = abcdef0123456789
` + validProxies,
		"missing api_hash": `
[Telegram]
api_id = 12345
` + validProxies,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadRequiresProxies(t *testing.T) {
	path := writeConfig(t, `
[Telegram]
api_id = 12345
api_hash = abcdef0123456789

[Proxies]
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when no proxies are configured")
	}
}
