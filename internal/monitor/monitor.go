// Package monitor samples process memory on a fixed interval and exposes the
// last sample to the admission path. It warns at a soft threshold (and nudges
// the runtime to return memory) and at a hard threshold; the hard gate itself
// lives in the export service.
package monitor

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Sample struct {
	RSS       uint64
	HeapUsed  uint64
	HeapTotal uint64
}

type Monitor struct {
	soft     uint64
	hard     uint64
	interval time.Duration
	sampler  func() Sample
	forceGC  func()

	mu   sync.RWMutex
	last Sample
}

type Option func(*Monitor)

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithSampler replaces the process-memory sampler. Used by tests.
func WithSampler(fn func() Sample) Option {
	return func(m *Monitor) { m.sampler = fn }
}

// WithForceGC replaces the soft-threshold collection hook. Used by tests.
func WithForceGC(fn func()) Option {
	return func(m *Monitor) { m.forceGC = fn }
}

func New(softBytes, hardBytes uint64, opts ...Option) *Monitor {
	m := &Monitor{
		soft:     softBytes,
		hard:     hardBytes,
		interval: time.Minute,
		sampler:  readProcessMemory,
		forceGC:  debug.FreeOSMemory,
	}
	for _, o := range opts {
		o(m)
	}
	m.Sample()
	return m
}

// Run samples on the configured interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample()
		}
	}
}

// Sample takes a fresh measurement, stores it, and applies threshold policy.
func (m *Monitor) Sample() Sample {
	s := m.sampler()

	m.mu.Lock()
	m.last = s
	m.mu.Unlock()

	switch {
	case s.RSS > m.hard:
		slog.Warn("memory above hard threshold, new jobs will be rejected",
			"rssMB", s.RSS/(1<<20), "hardMB", m.hard/(1<<20))
	case s.RSS > m.soft:
		slog.Warn("memory above soft threshold, forcing collection",
			"rssMB", s.RSS/(1<<20), "softMB", m.soft/(1<<20))
		m.forceGC()
	}

	return s
}

// CurrentRSS returns the RSS of the last sample.
func (m *Monitor) CurrentRSS() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last.RSS
}

// HardExceeded reports whether the last sample was above the hard threshold.
func (m *Monitor) HardExceeded() bool {
	return m.CurrentRSS() > m.hard
}

// readProcessMemory reads RSS from /proc/self/status, falling back to the Go
// runtime's view when the file is unavailable (non-Linux hosts).
func readProcessMemory() Sample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s := Sample{
		HeapUsed:  ms.HeapAlloc,
		HeapTotal: ms.HeapSys,
		RSS:       ms.Sys,
	}

	if rss, ok := readVmRSS(); ok {
		s.RSS = rss
	}
	return s
}

func readVmRSS() (uint64, bool) {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return 0, false
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, false
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return kb * 1024, true
	}
	return 0, false
}
