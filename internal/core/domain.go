package core

import (
	"errors"
	"strings"
)

const (
	Income  TransactionType = "Income"
	Expense TransactionType = "Expense"
)

// UncategorizedLabel is assigned to rows that arrive without a category.
const UncategorizedLabel = "Uncategorized"

type (
	TransactionType string

	Money struct {
		Cents int64
	}

	// TransactionData holds every field of a transaction except its id.
	TransactionData struct {
		Date        string // kept verbatim, parsed on demand
		Type        TransactionType
		Amount      Money
		Category    string
		Description string
	}

	// Transaction is a persisted row. ID is assigned by the store.
	Transaction struct {
		ID string
		TransactionData
	}

	// Draft is an imported row awaiting review. Key only addresses the row
	// inside the import buffer and is never sent to a store.
	Draft struct {
		Key string
		TransactionData
	}

	// TransactionPatch carries the fields of a partial update. Nil fields
	// are left untouched.
	TransactionPatch struct {
		Date        *string
		Type        *TransactionType
		Amount      *Money
		Category    *string
		Description *string
	}
)

var (
	ErrEmptyDate     = errors.New("empty date")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidType   = errors.New("invalid transaction type")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyCategory = errors.New("empty category")
	ErrEmptyPatch    = errors.New("empty patch")
)

// NormalizeType maps a raw type value to a TransactionType. Only the exact
// string "Income" yields Income; anything else, including blanks, is Expense.
func NormalizeType(s string) TransactionType {
	if s == string(Income) {
		return Income
	}
	return Expense
}

// ParseTransactionType is the strict counterpart of NormalizeType used by forms.
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.TrimSpace(s) {
	case string(Income):
		return Income, nil
	case string(Expense):
		return Expense, nil
	}
	return "", ErrInvalidType
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// Signed returns the amount with income positive and expense negative.
func (d TransactionData) Signed() Money {
	if d.Type == Income {
		return d.Amount
	}
	return Money{Cents: -d.Amount.Cents}
}

// Validate applies the rules of the single-transaction form.
func (d TransactionData) Validate() error {
	if strings.TrimSpace(d.Date) == "" {
		return ErrEmptyDate
	}
	if _, ok := ParseDate(d.Date); !ok {
		return ErrInvalidDate
	}
	if !d.Type.Valid() {
		return ErrInvalidType
	}
	if err := d.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(d.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// Data returns the draft without its local key.
func (d Draft) Data() TransactionData {
	return d.TransactionData
}

// Empty reports whether the patch carries no field.
func (p TransactionPatch) Empty() bool {
	return p.Date == nil && p.Type == nil && p.Amount == nil && p.Category == nil && p.Description == nil
}

// Apply returns d with the patch fields applied. Blank strings and a zero
// amount are ignored, matching how the spreadsheet store treats them.
func (p TransactionPatch) Apply(d TransactionData) TransactionData {
	if p.Date != nil && *p.Date != "" {
		d.Date = *p.Date
	}
	if p.Type != nil && *p.Type != "" {
		d.Type = *p.Type
	}
	if p.Amount != nil && p.Amount.Cents != 0 {
		d.Amount = *p.Amount
	}
	if p.Category != nil && *p.Category != "" {
		d.Category = *p.Category
	}
	if p.Description != nil && *p.Description != "" {
		d.Description = *p.Description
	}
	return d
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}
