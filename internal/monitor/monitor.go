// Package monitor samples host resources. Sustained CPU load widens the
// inference interval of the live pipeline until load falls again; storage
// filling up raises a warning.
package monitor

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/tphakala/lensnet-go/internal/conf"
	"github.com/tphakala/lensnet-go/internal/events"
	"github.com/tphakala/lensnet-go/internal/logger"
)

// diskHysteresis is how far below the warning level usage must fall
// before a disk alert clears.
const diskHysteresis = 5.0

// GetLogger returns the module logger for the monitor.
func GetLogger() logger.Logger {
	return logger.Global().Module("monitor")
}

// Throttle is the rate limit the governor adjusts.
type Throttle interface {
	MinInterval() time.Duration
	SetMinInterval(d time.Duration)
}

// Publisher receives resource events.
type Publisher interface {
	TryPublish(e events.Event) bool
}

type nopPublisher struct{}

func (nopPublisher) TryPublish(events.Event) bool { return false }

// CPUSampler returns the current total CPU usage in percent.
type CPUSampler func(ctx context.Context) (float64, error)

// UsageFunc returns the used percentage of the filesystem holding path.
type UsageFunc func(ctx context.Context, path string) (float64, error)

// Option configures a Monitor.
type Option func(*Monitor)

func WithCPUSampler(s CPUSampler) Option { return func(m *Monitor) { m.sampleCPU = s } }

func WithDiskUsage(u UsageFunc) Option { return func(m *Monitor) { m.diskUsage = u } }

func WithClock(now func() time.Time) Option { return func(m *Monitor) { m.now = now } }

func WithPublisher(p Publisher) Option { return func(m *Monitor) { m.bus = p } }

// WithStorage replaces the storage groups derived from settings.
func WithStorage(groups []MountGroup) Option { return func(m *Monitor) { m.storage = groups } }

// Monitor is the CPU governor and storage watcher.
type Monitor struct {
	cfg       conf.MonitoringSettings
	throttle  Throttle
	bus       Publisher
	sampleCPU CPUSampler
	diskUsage UsageFunc
	now       func() time.Time
	storage   []MountGroup
	log       logger.Logger

	mu        sync.Mutex
	governed  bool
	base      time.Duration // interval before widening
	widened   time.Duration // interval the governor set
	lastCPU   float64
	diskAlert map[string]bool
}

// New creates a Monitor adjusting throttle. Storage paths come from the
// output settings unless WithStorage is given.
func New(settings *conf.Settings, throttle Throttle, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:       settings.Monitoring,
		throttle:  throttle,
		bus:       nopPublisher{},
		sampleCPU: sampleCPU,
		diskUsage: diskUsage,
		now:       time.Now,
		log:       GetLogger(),
		diskAlert: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.storage == nil && m.cfg.DiskWarning > 0 {
		m.storage = storageGroups(StoragePaths(settings))
	}
	return m
}

func sampleCPU(ctx context.Context) (float64, error) {
	// interval 0 compares against the previous call and never blocks
	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil || len(pct) == 0 {
		return 0, err
	}
	return pct[0], nil
}

func diskUsage(ctx context.Context, path string) (float64, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return u.UsedPercent, nil
}

// Run samples every configured interval until ctx is done. A widened
// interval is restored on exit.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("resource monitor started",
		logger.Duration("interval", m.cfg.Interval),
		logger.Float64("cpu_high", m.cfg.CPUHigh),
		logger.Float64("cpu_low", m.cfg.CPULow),
		logger.Int("storage_mounts", len(m.storage)))

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.release()
			return nil
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check runs one sampling round.
func (m *Monitor) Check(ctx context.Context) {
	m.checkCPU(ctx)
	m.checkDisk(ctx)
}

func (m *Monitor) checkCPU(ctx context.Context) {
	usage, err := m.sampleCPU(ctx)
	if err != nil {
		m.log.Warn("failed to sample CPU usage", logger.Error(err))
		return
	}

	m.mu.Lock()
	m.lastCPU = usage
	var ev *events.ResourceEvent
	switch {
	case !m.governed && usage >= m.cfg.CPUHigh:
		m.base = m.throttle.MinInterval()
		m.widened = time.Duration(float64(m.base) * m.cfg.MaxIntervalFactor)
		m.throttle.SetMinInterval(m.widened)
		m.governed = true
		m.log.Warn("CPU load high, widening inference interval",
			logger.Float64("cpu_percent", usage),
			logger.Duration("from", m.base),
			logger.Duration("to", m.widened))
		ev = m.resourceEvent(events.ResourceCPU, "", usage, m.cfg.CPUHigh, events.SeverityWarning)
	case m.governed && usage <= m.cfg.CPULow:
		m.restoreLocked()
		m.log.Info("CPU load recovered, inference interval restored",
			logger.Float64("cpu_percent", usage),
			logger.Duration("interval", m.throttle.MinInterval()))
		ev = m.resourceEvent(events.ResourceCPU, "", usage, m.cfg.CPUHigh, events.SeverityRecovery)
	}
	m.mu.Unlock()

	if ev != nil {
		m.bus.TryPublish(*ev)
	}
}

// restoreLocked puts back the base interval unless someone changed the
// interval while it was widened.
func (m *Monitor) restoreLocked() {
	if m.throttle.MinInterval() == m.widened {
		m.throttle.SetMinInterval(m.base)
	}
	m.governed = false
}

func (m *Monitor) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.governed {
		m.restoreLocked()
	}
}

func (m *Monitor) checkDisk(ctx context.Context) {
	if m.cfg.DiskWarning <= 0 {
		return
	}
	for _, g := range m.storage {
		usage, err := m.diskUsage(ctx, g.Paths[0])
		if err != nil {
			m.log.Debug("failed to read disk usage", logger.String("path", g.Paths[0]), logger.Error(err))
			continue
		}

		m.mu.Lock()
		alerted := m.diskAlert[g.MountPoint]
		var ev *events.ResourceEvent
		switch {
		case !alerted && usage >= m.cfg.DiskWarning:
			m.diskAlert[g.MountPoint] = true
			m.log.Warn("capture storage filling up",
				logger.String("mount", g.MountPoint),
				logger.Float64("used_percent", usage))
			ev = m.resourceEvent(events.ResourceDisk, g.MountPoint, usage, m.cfg.DiskWarning, events.SeverityWarning)
		case alerted && usage < m.cfg.DiskWarning-diskHysteresis:
			m.diskAlert[g.MountPoint] = false
			ev = m.resourceEvent(events.ResourceDisk, g.MountPoint, usage, m.cfg.DiskWarning, events.SeverityRecovery)
		}
		m.mu.Unlock()

		if ev != nil {
			m.bus.TryPublish(*ev)
		}
	}
}

func (m *Monitor) resourceEvent(resource, path string, value, threshold float64, severity string) *events.ResourceEvent {
	return &events.ResourceEvent{
		Resource:  resource,
		Path:      path,
		Value:     value,
		Threshold: threshold,
		Severity:  severity,
		At:        m.now(),
	}
}

// Status is a snapshot of the monitor state.
type Status struct {
	CPUPercent float64         `json:"cpu_percent"`
	Governed   bool            `json:"governed"`
	DiskAlerts map[string]bool `json:"disk_alerts,omitempty"`
}

// Status returns the latest readings.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{CPUPercent: m.lastCPU, Governed: m.governed, DiskAlerts: maps.Clone(m.diskAlert)}
}
