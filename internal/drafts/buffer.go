// Package drafts holds parsed import rows while the user reviews them.
package drafts

import (
	"errors"
	"strings"
	"sync"

	"bookkeeping/internal/core"
)

// Field names accepted by Buffer.Edit.
const (
	FieldDate        = "date"
	FieldType        = "type"
	FieldAmount      = "amount"
	FieldCategory    = "category"
	FieldDescription = "description"
)

var (
	ErrUnknownField = errors.New("unknown draft field")
	ErrInvalidValue = errors.New("invalid draft value")
)

// Buffer is an ordered list of drafts addressed by their local key.
// It is safe for concurrent use.
type Buffer struct {
	mu     sync.Mutex
	drafts []core.Draft
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Load replaces the buffer contents.
func (b *Buffer) Load(drafts []core.Draft) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drafts = append([]core.Draft(nil), drafts...)
}

// Drafts returns a copy of the current drafts in order.
func (b *Buffer) Drafts() []core.Draft {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]core.Draft(nil), b.drafts...)
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.drafts)
}

func (b *Buffer) Empty() bool {
	return b.Len() == 0
}

// Edit replaces one field of the draft with the given key. A key that
// matches nothing is ignored. Type values are normalised like the parser
// does; amount values must parse or the draft is left unchanged.
func (b *Buffer) Edit(key, field, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.indexOf(key)
	if i < 0 {
		return nil
	}
	apply, err := editor(field, value)
	if err != nil {
		return err
	}
	apply(&b.drafts[i].TransactionData)
	return nil
}

// editor validates an edit before the target draft is touched.
func editor(field, value string) (func(*core.TransactionData), error) {
	switch strings.ToLower(field) {
	case FieldDate:
		return func(d *core.TransactionData) { d.Date = value }, nil
	case FieldType:
		t := core.NormalizeType(value)
		return func(d *core.TransactionData) { d.Type = t }, nil
	case FieldAmount:
		m, err := core.ParseAmount(value)
		if err != nil {
			return nil, ErrInvalidValue
		}
		return func(d *core.TransactionData) { d.Amount = m }, nil
	case FieldCategory:
		return func(d *core.TransactionData) { d.Category = value }, nil
	case FieldDescription:
		return func(d *core.TransactionData) { d.Description = value }, nil
	}
	return nil, ErrUnknownField
}

// Remove drops the draft with the given key, if present.
func (b *Buffer) Remove(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.indexOf(key); i >= 0 {
		b.drafts = append(b.drafts[:i], b.drafts[i+1:]...)
	}
}

// RemoveKeys drops every draft whose key is listed. Drafts loaded after the
// keys were taken stay in place.
func (b *Buffer) RemoveKeys(keys []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	kept := b.drafts[:0]
	for _, d := range b.drafts {
		if _, ok := drop[d.Key]; !ok {
			kept = append(kept, d)
		}
	}
	b.drafts = kept
}

// NetImpact is the signed sum of the current drafts: income adds, expense subtracts.
func (b *Buffer) NetImpact() core.Money {
	b.mu.Lock()
	defer b.mu.Unlock()
	var net core.Money
	for _, d := range b.drafts {
		net = net.Add(d.Signed())
	}
	return net
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drafts = nil
}

func (b *Buffer) indexOf(key string) int {
	for i := range b.drafts {
		if b.drafts[i].Key == key {
			return i
		}
	}
	return -1
}
