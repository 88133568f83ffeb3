package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// PendingProcessor mirrors one batch of pending rows, reporting how many it handled.
type PendingProcessor interface {
	ProcessPending(ctx context.Context) (int, error)
}

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to check for pending rows (default: 30s)
	PollInterval time.Duration

	// MaxBatches caps the batches processed per poll (default: 10)
	MaxBatches int
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval: 30 * time.Second,
		MaxBatches:   10,
	}
}

var ErrAlreadyRunning = errors.New("sync processor is already running")

// SyncProcessor periodically mirrors rows whose AMQP message was lost.
type SyncProcessor struct {
	processor PendingProcessor
	config    SyncProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncProcessor(processor PendingProcessor, config SyncProcessorConfig) *SyncProcessor {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultSyncProcessorConfig().PollInterval
	}
	if config.MaxBatches <= 0 {
		config.MaxBatches = DefaultSyncProcessorConfig().MaxBatches
	}
	return &SyncProcessor{processor: processor, config: config}
}

// Start begins the polling loop. Returns ErrAlreadyRunning if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started", "poll_interval", p.config.PollInterval)
	return nil
}

// Stop signals the loop and waits for it to finish or for ctx to end.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}
}

func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll drains pending rows until a batch comes back empty, fails, or the
// per-poll cap is reached.
func (p *SyncProcessor) poll(ctx context.Context) {
	total := 0
	for i := 0; i < p.config.MaxBatches; i++ {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}
		n, err := p.processor.ProcessPending(ctx)
		if err != nil {
			slog.WarnContext(ctx, "Periodic sync failed", "synced", total, "error", err)
			return
		}
		if n == 0 {
			break
		}
		total += n
	}
	if total > 0 {
		slog.InfoContext(ctx, "Periodic sync completed", "synced", total)
	}
}
