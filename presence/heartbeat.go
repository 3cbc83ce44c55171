package presence

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"duochat/contract"
)

// HeartbeatWorker periodically persists the owning user's last-seen
// timestamp so offline peers see a recent value even if the process dies
// without a clean Release. Each tick also logs client self stats for
// troubleshooting sessions that silently stall.
type HeartbeatWorker struct {
	log      *slog.Logger
	gateway  contract.Gateway
	tracker  *Tracker
	interval time.Duration
}

func NewHeartbeatWorker(log *slog.Logger, gateway contract.Gateway, tracker *Tracker, interval time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, gateway: gateway, tracker: tracker, interval: interval}
}

// Run executes the main loop of the worker, writing last-seen on every tick.
// Both the write and the stat collection are best effort: a failed tick is
// logged and retried on the next one, never aborting the worker.
func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting presence heartbeat worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			session := w.tracker.Session()
			if err := w.gateway.UpdateLastSeen(ctx, session.UserID, time.Now().UTC()); err != nil {
				w.log.Warn("Last-seen heartbeat failed", "user", session.UserID, "err", err)
				continue
			}

			rss, cpu, err := selfStats(p)
			if err != nil {
				w.log.Debug("Self stats unavailable", "err", err)
				continue
			}
			w.log.Debug("Heartbeat", "user", session.UserID, "ram_bytes", rss, "cpu_percent", cpu)
		}
	}
}

// selfStats retrieves memory and CPU usage for the given process.
func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
