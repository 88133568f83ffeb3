package selection

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeleter struct {
	err     error
	calls   [][]string
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeDeleter) DeleteTransactions(_ context.Context, ids []string) error {
	f.calls = append(f.calls, append([]string(nil), ids...))
	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		<-f.block
	}
	return f.err
}

type countingRefresher struct{ n int }

func (c *countingRefresher) Invalidate(context.Context) { c.n++ }

var visible = []string{"a", "b", "c", "d", "e"}

func TestToggleAll_TwiceReturnsToEmpty(t *testing.T) {
	s := New(&fakeDeleter{}, nil, 0)

	s.ToggleAll(visible)
	assert.Equal(t, visible, s.IDs())
	assert.True(t, s.AllSelected(visible))

	s.ToggleAll(visible)
	assert.Empty(t, s.IDs())
}

func TestToggleAll_PartialSelectionSelectsVisible(t *testing.T) {
	s := New(&fakeDeleter{}, nil, 0)
	s.ToggleOne("b")
	s.ToggleOne("hidden")

	s.ToggleAll(visible)
	assert.Equal(t, visible, s.IDs())
}

func TestToggleAll_EmptyVisible(t *testing.T) {
	s := New(&fakeDeleter{}, nil, 0)
	s.ToggleOne("a")

	s.ToggleAll(nil)
	assert.Empty(t, s.IDs())
	assert.False(t, s.AllSelected(nil))
}

func TestToggleOne(t *testing.T) {
	s := New(&fakeDeleter{}, nil, 0)
	s.ToggleOne("a")
	assert.True(t, s.Selected("a"))
	s.ToggleOne("a")
	assert.False(t, s.Selected("a"))
	assert.Equal(t, 0, s.Len())
}

func TestConfirmDelete_Success(t *testing.T) {
	store := &fakeDeleter{}
	ref := &countingRefresher{}
	s := New(store, ref, 0)
	s.ToggleOne("c")
	s.ToggleOne("a")
	s.OpenConfirm()

	require.NoError(t, s.ConfirmDelete(context.Background()))

	require.Len(t, store.calls, 1)
	assert.Equal(t, []string{"a", "c"}, store.calls[0])
	assert.Empty(t, s.IDs())
	assert.False(t, s.Confirming())
	assert.Equal(t, 1, ref.n)
}

func TestConfirmDelete_FailureKeepsState(t *testing.T) {
	store := &fakeDeleter{err: errors.New("sheet locked")}
	ref := &countingRefresher{}
	s := New(store, ref, 0)
	s.ToggleAll(visible)
	s.OpenConfirm()

	err := s.ConfirmDelete(context.Background())

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, FailureMessage, se.Message)
	assert.ErrorIs(t, err, store.err)
	assert.Equal(t, visible, s.IDs())
	assert.True(t, s.Confirming())
	assert.False(t, s.Deleting())
	assert.Equal(t, 0, ref.n)
}

func TestConfirmDelete_EmptySelectionClosesPrompt(t *testing.T) {
	store := &fakeDeleter{}
	s := New(store, nil, 0)
	s.OpenConfirm()

	require.NoError(t, s.ConfirmDelete(context.Background()))
	assert.Empty(t, store.calls)
	assert.False(t, s.Confirming())
}

func TestConfirmDelete_RejectsConcurrentDelete(t *testing.T) {
	store := &fakeDeleter{block: make(chan struct{}), entered: make(chan struct{})}
	s := New(store, nil, 0)
	s.ToggleOne("a")

	done := make(chan error, 1)
	go func() { done <- s.ConfirmDelete(context.Background()) }()

	<-store.entered
	assert.True(t, s.Deleting())
	assert.ErrorIs(t, s.ConfirmDelete(context.Background()), ErrInProgress)

	close(store.block)
	require.NoError(t, <-done)
	assert.Len(t, store.calls, 1)
}

func TestReset(t *testing.T) {
	s := New(&fakeDeleter{}, nil, 0)
	s.ToggleAll(visible)
	s.OpenConfirm()

	s.Reset()
	assert.Empty(t, s.IDs())
	assert.False(t, s.Confirming())

	s.OpenConfirm()
	s.CancelConfirm()
	assert.False(t, s.Confirming())
}

func TestRetain(t *testing.T) {
	s := New(&fakeDeleter{}, nil, 0)
	s.ToggleOne("a")
	s.ToggleOne("b")
	s.OpenConfirm()

	assert.Zero(t, s.Retain([]string{"a", "b", "c"}))
	assert.True(t, s.Confirming(), "nothing dropped, prompt stays")

	assert.Equal(t, 1, s.Retain([]string{"a", "c"}))
	assert.Equal(t, []string{"a"}, s.IDs())
	assert.False(t, s.Confirming())

	assert.Equal(t, 1, s.Retain(nil))
	assert.Empty(t, s.IDs())
}
