// Package observability reports process and registry health.
package observability

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// RegistryGauges is the read-only view of the connection registry the
// telemetry worker samples.
type RegistryGauges interface {
	Stats() (subjects, connections int)
}

// TelemetryWorker periodically logs process self-stats (RSS, CPU, OS
// status) together with the registry gauges. Diagnostic output only; no
// component consumes it.
type TelemetryWorker struct {
	log      *slog.Logger
	registry RegistryGauges
	interval time.Duration
}

func NewTelemetryWorker(log *slog.Logger, registry RegistryGauges, interval time.Duration) *TelemetryWorker {
	return &TelemetryWorker{log: log, registry: registry, interval: interval}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	w.log.Info("Starting telemetry worker", "interval", w.interval)
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
			rss, cpu, status, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			subjects, connections := w.registry.Stats()
			w.log.Info("Telemetry",
				"subjects", subjects,
				"connections", connections,
				"ramBytes", rss,
				"cpuPercent", cpu,
				"pidStatus", status,
			)
		}
	}
}

// selfStats retrieves memory, CPU and OS status for the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}
	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
