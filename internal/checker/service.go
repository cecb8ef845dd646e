// Package checker owns the proxy health-checking engine: the per-cycle
// orchestrator, the process-lifetime failure-streak tracker, the jittered
// refresher loop, and the mutex-guarded snapshot handed to the HTTP layer.
package checker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"mtprotowatch/internal/probe"
	"mtprotowatch/internal/proxy"
)

// Method tags reported per proxy status.
const (
	MethodDecoy    = "decoy-handshake"
	MethodProtocol = "protocol"
	MethodInternal = "internal"
)

// checkBudget is the slack added on top of the probe timeout for one
// proxy's whole check (decoy attempt plus protocol combinations).
const checkBudget = 2 * time.Second

// Settings are the fixed knobs the checker starts with. The refresh window
// stays mutable at runtime through the Service.
type Settings struct {
	Timeout    time.Duration
	RefreshMin int
	RefreshMax int
	Egress     string
}

// Outcome is the merged result of checking one proxy within a cycle.
type Outcome struct {
	OK        bool
	Confirmed bool
	Mode      string
	Variant   string
	Method    string
	Latency   time.Duration
	Error     string
}

// Service runs the background check cycles and publishes snapshots. One
// Service instance lives for the whole process.
type Service struct {
	mu            sync.RWMutex
	proxies       []proxy.Config
	timeout       time.Duration
	refreshMin    int
	refreshMax    int
	nextRefreshIn int
	snapshot      Snapshot
	failStreak    map[string]int
	lastOK        map[string]int64

	force  chan struct{}
	dialer probe.Dialer

	// CheckFunc performs one proxy's check. Replaceable in tests.
	CheckFunc func(ctx context.Context, cfg proxy.Config) Outcome
}

func NewService(proxies []proxy.Config, settings Settings) (*Service, error) {
	dialer, err := probe.NewDialer(settings.Egress, settings.Timeout)
	if err != nil {
		return nil, err
	}

	s := &Service{
		proxies:    proxies,
		timeout:    settings.Timeout,
		refreshMin: settings.RefreshMin,
		refreshMax: settings.RefreshMax,
		failStreak: make(map[string]int),
		lastOK:     make(map[string]int64),
		force:      make(chan struct{}, 1),
		dialer:     dialer,
	}
	s.CheckFunc = s.checkProxy
	s.snapshot = s.emptySnapshot(time.Now(), "")
	return s, nil
}

// Run is the refresher loop: an immediate cycle on startup, then a uniform
// random delay from the refresh window (interruptible by the force signal)
// before each subsequent cycle. Cycles never overlap.
func (s *Service) Run(ctx context.Context) {
	first := true
	for {
		if !first {
			delay := s.nextDelay()
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			case <-s.force:
				timer.Stop()
			}
		}
		first = false
		if ctx.Err() != nil {
			return
		}

		snap, err := s.safeCycle(ctx)
		if err != nil {
			slog.Error("check cycle failed", "error", err)
			snap = s.emptySnapshot(time.Now(), "refresher_failed: "+err.Error())
		}
		s.publish(snap)
	}
}

// ForceRefresh raises the force signal. It cancels the current inter-cycle
// wait only; an in-flight cycle always runs to completion.
func (s *Service) ForceRefresh() {
	select {
	case s.force <- struct{}{}:
	default:
	}
}

// GetSnapshot returns the latest published snapshot. Snapshots are never
// mutated after publication, so the shallow copy is safe to hand out.
func (s *Service) GetSnapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Window returns the current refresh window bounds in seconds.
func (s *Service) Window() (min, max int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshMin, s.refreshMax
}

// SetRefreshCap applies the compatibility "refresh=N" parameter: N becomes
// the max (floored to 5) and min follows at half of it, also floored to 5.
func (s *Service) SetRefreshCap(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 5 {
		n = 5
	}
	s.refreshMax = n
	s.refreshMin = n / 2
	if s.refreshMin < 5 {
		s.refreshMin = 5
	}
}

// SetRefreshMin and SetRefreshMax apply explicit window overrides with a
// floor of 1; the max is raised to the min when the bounds cross.
func (s *Service) SetRefreshMin(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 1 {
		n = 1
	}
	s.refreshMin = n
	if s.refreshMax < s.refreshMin {
		s.refreshMax = s.refreshMin
	}
}

func (s *Service) SetRefreshMax(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 1 {
		n = 1
	}
	s.refreshMax = n
	if s.refreshMax < s.refreshMin {
		s.refreshMax = s.refreshMin
	}
}

// nextDelay drains any pending force signal, then picks the next wait
// uniformly from the window. Draining first prevents a force raised during
// the previous cycle from collapsing the loop into a tight spin.
func (s *Service) nextDelay() time.Duration {
	select {
	case <-s.force:
	default:
	}

	s.mu.Lock()
	a, b := s.refreshMin, s.refreshMax
	if a < 1 {
		a = 1
	}
	if b < a {
		b = a
	}
	n := a + rand.Intn(b-a+1)
	s.nextRefreshIn = n
	s.mu.Unlock()
	return time.Duration(n) * time.Second
}

func (s *Service) safeCycle(ctx context.Context) (snap Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return s.runCycle(ctx), nil
}

// runCycle probes every proxy concurrently, merges results with the
// tracker state, and builds the next snapshot. A failure inside one
// proxy's goroutine is recovered into a failed outcome so it can never
// abort the cycle for the others.
func (s *Service) runCycle(ctx context.Context) Snapshot {
	s.mu.RLock()
	proxies := s.proxies
	timeout := s.timeout
	s.mu.RUnlock()

	outcomes := make([]Outcome, len(proxies))
	var wg sync.WaitGroup
	for i, p := range proxies {
		wg.Add(1)
		go func(i int, p proxy.Config) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = Outcome{
						Method: MethodInternal,
						Error:  fmt.Sprintf("internal: check panic: %v", r),
					}
				}
			}()
			checkCtx, cancel := context.WithTimeout(ctx, timeout+checkBudget)
			defer cancel()
			outcomes[i] = s.CheckFunc(checkCtx, p)
		}(i, p)
	}
	wg.Wait()

	return s.merge(proxies, outcomes, timeout)
}

func (s *Service) merge(proxies []proxy.Config, outcomes []Outcome, timeout time.Duration) Snapshot {
	now := time.Now()
	epoch := now.Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]ProxyStatus, 0, len(proxies))
	var aliveList, deadList []string
	confirmed := 0

	for i, p := range proxies {
		r := outcomes[i]
		key := p.Key()

		if r.OK {
			s.failStreak[key] = 0
			s.lastOK[key] = epoch
			aliveList = append(aliveList, p.HostPort())
			if r.Confirmed {
				confirmed++
			}
		} else {
			s.failStreak[key]++
			deadList = append(deadList, p.HostPort())
		}

		statuses = append(statuses, ProxyStatus{
			Name:          p.Name,
			Server:        p.Server,
			Port:          p.Port,
			SecretPreview: p.SecretPreview(),
			OK:            r.OK,
			Confirmed:     r.Confirmed,
			Mode:          r.Mode,
			SecretVariant: r.Variant,
			Method:        r.Method,
			LatencyMS:     r.Latency.Milliseconds(),
			LastChecked:   epoch,
			LastOK:        s.lastOK[key],
			FailStreak:    s.failStreak[key],
			Error:         r.Error,
		})
	}

	sortStatuses(statuses)
	alive := dedupSortedHostPorts(aliveList)
	dead := dedupSortedHostPorts(deadList)

	return Snapshot{
		Timestamp: epoch,
		Datetime:  now.Format("2006-01-02 15:04:05"),
		Meta: Meta{
			RefreshMinS:    s.refreshMin,
			RefreshMaxS:    s.refreshMax,
			NextRefreshInS: s.nextRefreshIn,
			TimeoutS:       int(timeout.Seconds()),
			Total:          len(statuses),
			Alive:          len(aliveList),
			Confirmed:      confirmed,
			ModesAvailable: probe.ModeNames(),
		},
		AliveList:  alive,
		AliveCount: len(alive),
		DeadList:   dead,
		DeadCount:  len(dead),
		Proxies:    statuses,
	}
}

func (s *Service) publish(snap Snapshot) {
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
	slog.Info("snapshot published",
		"alive", snap.AliveCount, "dead", snap.DeadCount, "confirmed", snap.Meta.Confirmed)
}

func (s *Service) emptySnapshot(now time.Time, errText string) Snapshot {
	s.mu.RLock()
	min, max, next := s.refreshMin, s.refreshMax, s.nextRefreshIn
	timeout := s.timeout
	total := len(s.proxies)
	s.mu.RUnlock()

	return Snapshot{
		Timestamp: now.Unix(),
		Datetime:  now.Format("2006-01-02 15:04:05"),
		Meta: Meta{
			RefreshMinS:    min,
			RefreshMaxS:    max,
			NextRefreshInS: next,
			TimeoutS:       int(timeout.Seconds()),
			Total:          total,
			ModesAvailable: probe.ModeNames(),
			Error:          errText,
		},
		AliveList: []string{},
		DeadList:  []string{},
		DeadCount: total,
		Proxies:   []ProxyStatus{},
	}
}

// checkProxy is the production check: the decoy TLS probe first when the
// secret embeds a domain, then the full protocol probe.
func (s *Service) checkProxy(ctx context.Context, p proxy.Config) Outcome {
	start := time.Now()
	addr := p.HostPort()

	var decoyErr string
	if proxy.IsDomainSecret(p.Secret) {
		domain, ok := proxy.ExtractDomain(p.Secret)
		if !ok {
			decoyErr = "domain-flavored secret but domain extraction failed"
		} else if perr := probe.DecoyTLS(ctx, s.dialer, addr, domain, s.timeout); perr == nil {
			return Outcome{
				OK:      true,
				Variant: "orig",
				Method:  MethodDecoy,
				Latency: time.Since(start),
			}
		} else {
			decoyErr = perr.Error()
		}
	}

	res := probe.Protocol(ctx, s.dialer, addr, proxy.Variants(p.Secret), s.timeout)
	out := Outcome{
		OK:        res.Established,
		Confirmed: res.Confirmed,
		Variant:   res.Variant,
		Method:    MethodProtocol,
		Latency:   time.Since(start),
	}
	if res.Established {
		out.Mode = res.Mode.String()
		if res.Err != nil {
			out.Error = res.Err.Error()
		}
		return out
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	if decoyErr != "" {
		out.Error = decoyErr
	}
	return out
}
