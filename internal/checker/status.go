package checker

import (
	"net"
	"sort"
	"strconv"
	"strings"
)

// ProxyStatus is the per-cycle merged record served for one proxy.
type ProxyStatus struct {
	Name          string `json:"name"`
	Server        string `json:"server"`
	Port          int    `json:"port"`
	SecretPreview string `json:"secret_preview"`
	OK            bool   `json:"ok"`
	Confirmed     bool   `json:"confirmed"`
	Mode          string `json:"mode,omitempty"`
	SecretVariant string `json:"secret_variant,omitempty"`
	Method        string `json:"method"`
	LatencyMS     int64  `json:"latency_ms"`
	LastChecked   int64  `json:"last_checked"`
	LastOK        int64  `json:"last_ok,omitempty"`
	FailStreak    int    `json:"fail_streak"`
	Error         string `json:"error,omitempty"`
}

// Meta carries cycle-level aggregates alongside the per-proxy statuses.
type Meta struct {
	RefreshMinS    int      `json:"refresh_min_s"`
	RefreshMaxS    int      `json:"refresh_max_s"`
	NextRefreshInS int      `json:"next_refresh_in_s"`
	TimeoutS       int      `json:"timeout_s"`
	Total          int      `json:"total"`
	Alive          int      `json:"alive"`
	Confirmed      int      `json:"confirmed"`
	ModesAvailable []string `json:"modes_available"`
	Error          string   `json:"error,omitempty"`
}

// Snapshot is the immutable-once-published result of one check cycle. It is
// replaced wholesale every cycle; readers receive a copy and never see a
// partially updated value.
type Snapshot struct {
	Timestamp  int64         `json:"timestamp"`
	Datetime   string        `json:"datetime"`
	Meta       Meta          `json:"meta"`
	AliveList  []string      `json:"alive_list"`
	AliveCount int           `json:"alive_count"`
	DeadList   []string      `json:"dead_list"`
	DeadCount  int           `json:"dead_count"`
	Proxies    []ProxyStatus `json:"proxies"`
}

// sortStatuses orders reachable-and-confirmed entries first, then by lower
// latency. A negative latency counts as unknown and sorts last.
func sortStatuses(statuses []ProxyStatus) {
	sort.SliceStable(statuses, func(i, j int) bool {
		a, b := statuses[i], statuses[j]
		if a.OK != b.OK {
			return a.OK
		}
		if a.Confirmed != b.Confirmed {
			return a.Confirmed
		}
		return sortLatency(a.LatencyMS) < sortLatency(b.LatencyMS)
	})
}

func sortLatency(ms int64) int64 {
	if ms < 0 {
		return 1 << 40
	}
	return ms
}

// dedupSortedHostPorts deduplicates "server:port" identities and sorts them
// numerically by address octets, then port. Hostnames fall back to lexical
// order so the comparison stays total.
func dedupSortedHostPorts(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, v := range list {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return hostPortLess(out[i], out[j]) })
	return out
}

func hostPortLess(a, b string) bool {
	ha, pa := splitHostPortLoose(a)
	hb, pb := splitHostPortLoose(b)

	ipa, ipb := net.ParseIP(ha), net.ParseIP(hb)
	switch {
	case ipa != nil && ipb != nil:
		if c := strings.Compare(string(ipa.To16()), string(ipb.To16())); c != 0 {
			return c < 0
		}
	case ipa != nil:
		return true
	case ipb != nil:
		return false
	default:
		if ha != hb {
			return ha < hb
		}
	}
	return pa < pb
}

func splitHostPortLoose(s string) (string, int) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return s, 0
	}
	port, _ := strconv.Atoi(s[idx+1:])
	return s[:idx], port
}
