package drafts

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookkeeping/internal/core"
)

func draft(key string, typ core.TransactionType, cents int64) core.Draft {
	return core.Draft{
		Key: key,
		TransactionData: core.TransactionData{
			Date: "2024-01-01", Type: typ, Amount: core.Money{Cents: cents}, Category: "Misc",
		},
	}
}

func expectedNet(ds []core.Draft) int64 {
	var income, expense int64
	for _, d := range ds {
		if d.Type == core.Income {
			income += d.Amount.Cents
		} else {
			expense += d.Amount.Cents
		}
	}
	return income - expense
}

func TestBuffer_EditReplacesOneField(t *testing.T) {
	b := NewBuffer()
	b.Load([]core.Draft{draft("a", core.Expense, 100), draft("b", core.Expense, 200)})

	require.NoError(t, b.Edit("a", FieldCategory, "Food"))
	require.NoError(t, b.Edit("a", FieldAmount, "12.5"))
	require.NoError(t, b.Edit("a", FieldType, "Income"))
	require.NoError(t, b.Edit("a", FieldDescription, "lunch"))
	require.NoError(t, b.Edit("a", FieldDate, "2024-02-02"))

	got := b.Drafts()
	assert.Equal(t, core.TransactionData{
		Date: "2024-02-02", Type: core.Income, Amount: core.Money{Cents: 1250},
		Category: "Food", Description: "lunch",
	}, got[0].TransactionData)
	assert.Equal(t, draft("b", core.Expense, 200), got[1])
}

func TestBuffer_EditTypeNormalizes(t *testing.T) {
	b := NewBuffer()
	b.Load([]core.Draft{draft("a", core.Income, 100)})

	require.NoError(t, b.Edit("a", FieldType, "income"))
	assert.Equal(t, core.Expense, b.Drafts()[0].Type)
}

func TestBuffer_EditRejectsBadInput(t *testing.T) {
	b := NewBuffer()
	b.Load([]core.Draft{draft("a", core.Expense, 100)})

	assert.ErrorIs(t, b.Edit("a", FieldAmount, "lots"), ErrInvalidValue)
	assert.ErrorIs(t, b.Edit("a", "id", "x"), ErrUnknownField)
	assert.Equal(t, draft("a", core.Expense, 100), b.Drafts()[0])
}

func TestBuffer_MissingKeyIsNoop(t *testing.T) {
	b := NewBuffer()
	b.Load([]core.Draft{draft("a", core.Expense, 100)})

	assert.NoError(t, b.Edit("zzz", FieldAmount, "5"))
	assert.NoError(t, b.Edit("zzz", "bogus", "5"))
	b.Remove("zzz")
	assert.Equal(t, []core.Draft{draft("a", core.Expense, 100)}, b.Drafts())
}

func TestBuffer_EditThenRemove(t *testing.T) {
	edits := []struct{ field, value string }{
		{FieldAmount, "999"},
		{FieldAmount, "bad"},
		{FieldType, "Income"},
		{FieldCategory, ""},
		{"unknown", "x"},
	}
	for _, e := range edits {
		t.Run(e.field+"="+e.value, func(t *testing.T) {
			b := NewBuffer()
			b.Load([]core.Draft{draft("a", core.Expense, 1), draft("b", core.Expense, 2)})

			_ = b.Edit("a", e.field, e.value)
			b.Remove("a")

			for _, d := range b.Drafts() {
				assert.NotEqual(t, "a", d.Key)
			}
			assert.Equal(t, 1, b.Len())
		})
	}
}

func TestBuffer_RemoveKeysKeepsOthers(t *testing.T) {
	b := NewBuffer()
	b.Load([]core.Draft{draft("a", core.Expense, 1), draft("b", core.Income, 2), draft("c", core.Expense, 3)})

	b.RemoveKeys([]string{"a", "c", "missing"})

	require.Equal(t, 1, b.Len())
	assert.Equal(t, "b", b.Drafts()[0].Key)
	assert.Equal(t, int64(2), b.NetImpact().Cents)

	b.RemoveKeys(nil)
	assert.Equal(t, 1, b.Len())
}

func TestBuffer_NetImpactTracksEveryState(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	b := NewBuffer()

	var initial []core.Draft
	for i := 0; i < 20; i++ {
		typ := core.Expense
		if r.Intn(2) == 0 {
			typ = core.Income
		}
		initial = append(initial, draft(fmt.Sprintf("k%d", i), typ, int64(r.Intn(10000))))
	}
	b.Load(initial)
	assert.Equal(t, expectedNet(b.Drafts()), b.NetImpact().Cents)

	for step := 0; step < 40; step++ {
		key := fmt.Sprintf("k%d", r.Intn(20))
		switch r.Intn(3) {
		case 0:
			b.Remove(key)
		case 1:
			_ = b.Edit(key, FieldAmount, fmt.Sprintf("%d.%02d", r.Intn(500), r.Intn(100)))
		default:
			_ = b.Edit(key, FieldType, []string{"Income", "Expense", "junk"}[r.Intn(3)])
		}
		assert.Equal(t, expectedNet(b.Drafts()), b.NetImpact().Cents, "step %d", step)
	}

	b.Clear()
	assert.True(t, b.Empty())
	assert.Equal(t, int64(0), b.NetImpact().Cents)
}

func TestBuffer_LoadCopiesInput(t *testing.T) {
	in := []core.Draft{draft("a", core.Expense, 100)}
	b := NewBuffer()
	b.Load(in)
	in[0].Category = "mutated"

	assert.Equal(t, "Misc", b.Drafts()[0].Category)
}

func TestBuffer_ConcurrentAccess(t *testing.T) {
	b := NewBuffer()
	var ds []core.Draft
	for i := 0; i < 100; i++ {
		ds = append(ds, draft(fmt.Sprintf("k%d", i), core.Expense, 1))
	}
	b.Load(ds)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			_ = b.Edit(key, FieldAmount, "2")
			_ = b.NetImpact()
			if i%2 == 0 {
				b.Remove(key)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, b.Len())
	assert.Equal(t, int64(-100*50), b.NetImpact().Cents)
}
