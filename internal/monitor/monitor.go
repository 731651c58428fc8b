// Package monitor logs process memory and online count at a fixed
// interval, but only while anyone is connected, to keep idle logs
// quiet.
package monitor

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"webchat/internal/logger"
	"webchat/internal/presence"
)

// Run blocks until ctx is cancelled, emitting one log line per
// interval while the presence registry is non-empty.
func Run(ctx context.Context, registry *presence.Registry, interval time.Duration) {
	log := logger.New("monitor")

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Error("cannot inspect own process: %v", err)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			online := registry.Count()
			if online == 0 {
				continue
			}
			mem, err := proc.MemoryInfo()
			if err != nil {
				log.Warn("reading memory info: %v", err)
				continue
			}
			log.Info("RAM: %dMB | online: %d", mem.RSS/1024/1024, online)
		}
	}
}
