package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Pinger checks whether the remote store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor turns periodic reachability checks into connectivity signals for
// an engine, standing in for a browser's online/offline events.
type Monitor struct {
	cron    *cron.Cron
	engine  *Engine
	pinger  Pinger
	userID  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewMonitor schedules a check every interval.
func NewMonitor(engine *Engine, pinger Pinger, userID string, interval time.Duration, logger *slog.Logger) (*Monitor, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}

	m := &Monitor{
		cron:    cron.New(cron.WithLocation(time.Local)),
		engine:  engine,
		pinger:  pinger,
		userID:  userID,
		timeout: interval / 2,
		logger:  logger,
	}
	if _, err := m.cron.AddFunc(fmt.Sprintf("@every %ds", seconds), m.Check); err != nil {
		return nil, fmt.Errorf("schedule connectivity check: %w", err)
	}
	return m, nil
}

// Check pings the remote once. While online it also retries anything left
// in the queue by an earlier failed write.
func (m *Monitor) Check() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	err := m.pinger.Ping(ctx)
	if err != nil {
		m.logger.Debug("remote unreachable", slog.String("error", err.Error()))
	}
	online := err == nil

	if rep := m.engine.SetOnline(context.Background(), m.userID, online); rep != nil || !online {
		return
	}
	if n, err := m.engine.queue.Len(ctx); err != nil || n == 0 {
		return
	}
	if _, err := m.engine.Flush(context.Background(), m.userID); err != nil {
		m.logger.Debug("periodic flush incomplete", slog.String("error", err.Error()))
	}
}

func (m *Monitor) Start() {
	m.cron.Start()
}

// Stop waits for a running check to finish.
func (m *Monitor) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}
