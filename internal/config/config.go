package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"mtprotowatch/internal/proxy"
)

const (
	DefaultConfigPath = "config/config.ini"
)

var defaultServer = map[string]string{
	"web_port":      "8899",
	"check_timeout": "10",
	"refresh_min":   "300",
	"refresh_max":   "600",
	"egress_socks5": "",
	"log_file":      "logs/mtprotowatch.log",
}

// RuntimeConfig is the fully parsed and validated startup configuration.
// Bad descriptor links or secrets are fatal here; nothing later in the
// process revalidates them.
type RuntimeConfig struct {
	Path       string
	WebPort    int
	Timeout    time.Duration
	RefreshMin int
	RefreshMax int
	Egress     string
	LogFile    string
	APIID      int
	APIHash    string
	Proxies    []proxy.Config
}

func Load(path string) (*RuntimeConfig, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultConfigPath
	}

	if err := ensureParent(path); err != nil {
		return nil, err
	}

	cfg, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, path)
	if err != nil {
		return nil, fmt.Errorf("load ini: %w", err)
	}

	if !cfg.Section("Server").HasKey("web_port") {
		applyServerDefaults(cfg)
		if err := cfg.SaveTo(path); err != nil {
			return nil, fmt.Errorf("save default config: %w", err)
		}
	}

	server := cfg.Section("Server")
	rc := &RuntimeConfig{
		Path:       path,
		WebPort:    server.Key("web_port").MustInt(8899),
		Timeout:    time.Duration(server.Key("check_timeout").MustInt(10)) * time.Second,
		RefreshMin: server.Key("refresh_min").MustInt(300),
		RefreshMax: server.Key("refresh_max").MustInt(600),
		Egress:     strings.TrimSpace(server.Key("egress_socks5").String()),
		LogFile:    strings.TrimSpace(server.Key("log_file").MustString("logs/mtprotowatch.log")),
	}

	tg := cfg.Section("Telegram")
	rc.APIID, err = tg.Key("api_id").Int()
	if err != nil {
		return nil, fmt.Errorf("api_id must be an integer: %w", err)
	}
	rc.APIHash = strings.TrimSpace(tg.Key("api_hash").String())
	if rc.APIHash == "" {
		return nil, fmt.Errorf("api_hash is missing")
	}

	for _, key := range cfg.Section("Proxies").Keys() {
		name := strings.TrimSpace(key.Name())
		link := strings.TrimSpace(key.String())
		if name == "" || link == "" {
			continue
		}
		p, err := proxy.ParseLink(name, link)
		if err != nil {
			return nil, fmt.Errorf("proxy %q: %w", name, err)
		}
		rc.Proxies = append(rc.Proxies, p)
	}
	if len(rc.Proxies) == 0 {
		return nil, fmt.Errorf("no valid proxies configured in %s", path)
	}

	return rc, nil
}

func applyServerDefaults(cfg *ini.File) {
	sec := cfg.Section("Server")
	for k, v := range defaultServer {
		if !sec.HasKey(k) {
			sec.Key(k).SetValue(v)
		}
	}
}

func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
