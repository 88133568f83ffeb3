package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingProcessor struct {
	calls   atomic.Int64
	backlog atomic.Int64
	err     error
}

func (c *countingProcessor) ProcessPending(context.Context) (int, error) {
	c.calls.Add(1)
	if c.err != nil {
		return 0, c.err
	}
	if c.backlog.Load() == 0 {
		return 0, nil
	}
	c.backlog.Add(-1)
	return 1, nil
}

func TestDefaultSyncProcessorConfig(t *testing.T) {
	config := DefaultSyncProcessorConfig()
	if config.PollInterval != 30*time.Second {
		t.Errorf("expected PollInterval 30s, got %v", config.PollInterval)
	}
	if config.MaxBatches != 10 {
		t.Errorf("expected MaxBatches 10, got %d", config.MaxBatches)
	}
}

func TestNewSyncProcessorFillsDefaults(t *testing.T) {
	p := NewSyncProcessor(&countingProcessor{}, SyncProcessorConfig{})
	if p.config != DefaultSyncProcessorConfig() {
		t.Errorf("expected defaults, got %+v", p.config)
	}
}

func TestSyncProcessor_StartTwice(t *testing.T) {
	p := NewSyncProcessor(&countingProcessor{}, SyncProcessorConfig{PollInterval: time.Hour})
	ctx := context.Background()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if !p.IsRunning() {
		t.Fatal("processor should be running")
	}
	if err := p.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if p.IsRunning() {
		t.Fatal("processor should be stopped")
	}
}

func TestSyncProcessor_StopNotRunning(t *testing.T) {
	p := NewSyncProcessor(&countingProcessor{}, DefaultSyncProcessorConfig())
	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func TestSyncProcessor_PollDrainsUpToCap(t *testing.T) {
	proc := &countingProcessor{}
	proc.backlog.Store(5)
	p := NewSyncProcessor(proc, SyncProcessorConfig{PollInterval: time.Hour, MaxBatches: 3})
	p.stopCh = make(chan struct{})

	p.poll(context.Background())
	if proc.backlog.Load() != 2 || proc.calls.Load() != 3 {
		t.Fatalf("expected 3 batches, backlog=%d calls=%d", proc.backlog.Load(), proc.calls.Load())
	}

	p.poll(context.Background())
	if proc.backlog.Load() != 0 || proc.calls.Load() != 6 {
		t.Fatalf("expected drained backlog after empty batch, backlog=%d calls=%d", proc.backlog.Load(), proc.calls.Load())
	}
}

func TestSyncProcessor_PollStopsOnError(t *testing.T) {
	proc := &countingProcessor{err: errors.New("sheets down")}
	p := NewSyncProcessor(proc, SyncProcessorConfig{PollInterval: time.Hour, MaxBatches: 5})
	p.stopCh = make(chan struct{})

	p.poll(context.Background())
	if proc.calls.Load() != 1 {
		t.Fatalf("expected one attempt, got %d", proc.calls.Load())
	}
}

func TestSyncProcessor_PollsOnTicker(t *testing.T) {
	proc := &countingProcessor{}
	p := NewSyncProcessor(proc, SyncProcessorConfig{PollInterval: 10 * time.Millisecond, MaxBatches: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for proc.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if proc.calls.Load() == 0 {
		t.Fatal("expected at least one poll")
	}
}
