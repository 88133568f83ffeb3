package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bookkeeping/internal/amqp"
	"bookkeeping/internal/core"
)

// Repository is the local store the service writes to.
type Repository interface {
	InsertTransactions(ctx context.Context, batch []core.TransactionData) ([]core.Transaction, error)
	DeleteTransactions(ctx context.Context, ids []string) error
	UpdateTransaction(ctx context.Context, id string, p core.TransactionPatch) (bool, error)
	Close() error
}

// Publisher announces local changes to the sync worker.
type Publisher interface {
	PublishSync(ctx context.Context, reason string, ids []string) error
	Close() error
}

// TransactionService orchestrates transaction writes across SQLite and AMQP.
// A write succeeds once it is stored locally; publishing is best effort and
// the worker's periodic sync picks up anything a lost message missed.
type TransactionService struct {
	storage   Repository
	publisher Publisher
}

// NewTransactionService accepts a nil publisher, in which case nothing is announced.
func NewTransactionService(storage Repository, publisher Publisher) *TransactionService {
	return &TransactionService{storage: storage, publisher: publisher}
}

// CreateTransactions saves the batch locally and publishes one sync message.
func (s *TransactionService) CreateTransactions(ctx context.Context, batch []core.TransactionData) ([]core.Transaction, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	txs, err := s.storage.InsertTransactions(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("save transactions: %w", err)
	}
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	reason := amqp.ReasonImport
	if len(txs) == 1 {
		reason = amqp.ReasonAdd
	}
	s.publish(ctx, reason, ids)
	return txs, nil
}

// DeleteTransactions soft deletes locally and publishes one sync message.
func (s *TransactionService) DeleteTransactions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.storage.DeleteTransactions(ctx, ids); err != nil {
		return fmt.Errorf("soft delete transactions: %w", err)
	}
	s.publish(ctx, amqp.ReasonDelete, ids)
	return nil
}

// UpdateTransaction applies p locally and publishes when the row exists.
func (s *TransactionService) UpdateTransaction(ctx context.Context, id string, p core.TransactionPatch) (bool, error) {
	found, err := s.storage.UpdateTransaction(ctx, id, p)
	if err != nil {
		return false, fmt.Errorf("update transaction: %w", err)
	}
	if found {
		s.publish(ctx, amqp.ReasonUpdate, []string{id})
	}
	return found, nil
}

func (s *TransactionService) publish(ctx context.Context, reason string, ids []string) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping sync message", "reason", reason)
		return
	}
	if err := s.publisher.PublishSync(ctx, reason, ids); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"reason", reason, "count", len(ids), "error", err)
	}
}

// Close closes both storage and AMQP connections.
func (s *TransactionService) Close() error {
	var errs []error
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close transaction service: %w", err)
	}
	return nil
}
