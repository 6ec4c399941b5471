package sse

import (
	"log/slog"
	"time"
)

// DefaultKeepAliveInterval is safe for most proxies and edge runtimes.
const DefaultKeepAliveInterval = 10 * time.Second

// KeepAliveWriter abstracts the keep-alive write so the ticker can be
// tested without a real HTTP connection.
type KeepAliveWriter interface {
	WriteKeepAlive() error
}

// TickerKeepAlive sends keep-alive pings at a fixed interval until
// stopped or until a write fails.
type TickerKeepAlive struct {
	interval time.Duration
	done     chan struct{}
}

// NewTickerKeepAlive creates a ticker-based keep-alive strategy.
func NewTickerKeepAlive(interval time.Duration) *TickerKeepAlive {
	return &TickerKeepAlive{
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins pinging on the interval. The returned channel closes
// when the keep-alive loop terminates.
func (k *TickerKeepAlive) Start(writer KeepAliveWriter, logger *slog.Logger) <-chan struct{} {
	ticker := time.NewTicker(k.interval)
	stopChan := make(chan struct{})

	go func() {
		defer close(stopChan)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					// Connection dropped; stop pinging.
					logger.Warn("keep-alive write failed, stopping", "error", err)
					return
				}
			case <-k.done:
				return
			}
		}
	}()

	return stopChan
}

// Stop terminates the keep-alive loop. Safe to call multiple times.
func (k *TickerKeepAlive) Stop() {
	select {
	case <-k.done:
	default:
		close(k.done)
	}
}
