// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and converting between cents and dollar representations.
package core

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// leadingNumber matches the numeric prefix of a value the way spreadsheet
// exports are usually read: optional sign, digits, fraction and exponent.
// Anything after the prefix is ignored ("12.50 USD" is 12.50).
var leadingNumber = regexp.MustCompile(`^([+-]?)(\d*)(?:\.(\d*))?(?:[eE]([+-]?\d+))?`)

// maxWholeUnits keeps whole*100 inside int64.
const maxWholeUnits = (1<<63 - 1) / 100

// ParseAmount converts the leading decimal number of s to Money.
//
// Leading whitespace is skipped and trailing text is ignored. The value is
// rounded half away from zero to cents. Values without a digit, or that are
// not finite once converted, return ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12.34")     -> 1234
//	ParseAmount("12.345")    -> 1235 (rounds up)
//	ParseAmount("-3.1")      -> -310
//	ParseAmount("12.5 USD")  -> 1250
//	ParseAmount("1e3")       -> 100000
//	ParseAmount("abc")       -> ErrInvalidAmount
func ParseAmount(s string) (Money, error) {
	s = strings.TrimLeft(s, " \t\r\n\v\f\u00a0\ufeff")
	m := leadingNumber.FindStringSubmatch(s)
	if m == nil || (m[2] == "" && m[3] == "") {
		return Money{}, ErrInvalidAmount
	}
	sign, intPart, fracPart, exp := m[1], m[2], m[3], m[4]

	if exp != "" {
		f, err := strconv.ParseFloat(m[0], 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return Money{}, ErrInvalidAmount
		}
		c := math.Round(f * 100)
		if math.Abs(c) >= float64(math.MaxInt64) {
			return Money{}, ErrInvalidAmount
		}
		return Money{Cents: int64(c)}, nil
	}

	cents, err := decimalToCents(intPart, fracPart)
	if err != nil {
		return Money{}, err
	}
	if sign == "-" {
		cents = -cents
	}
	return Money{Cents: cents}, nil
}

// ParseDecimalToCents converts a plain, non-negative decimal string to cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// performs half-up rounding on the third decimal place. Used by form inputs
// where trailing text is a mistake rather than a unit.
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" && fracPart == "" {
		return 0, ErrInvalidAmount
	}
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return 0, ErrInvalidAmount
		}
	}
	return decimalToCents(intPart, fracPart)
}

// decimalToCents joins validated digit strings into cents, rounding on the
// third fractional digit.
func decimalToCents(intPart, fracPart string) (int64, error) {
	if intPart == "" {
		intPart = "0"
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil || iv > maxWholeUnits {
		return 0, ErrInvalidAmount
	}
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	if iv*100 > math.MaxInt64-fracCents {
		return 0, ErrInvalidAmount
	}
	return iv*100 + fracCents, nil
}

// Add returns m+o.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// String formats the amount with two decimals and no currency symbol.
func (m Money) String() string {
	c := m.Cents
	neg := c < 0
	if neg {
		c = -c
	}
	s := strconv.FormatInt(c/100, 10) + "." + leftPad2(c%100)
	if neg {
		return "-" + s
	}
	return s
}

func leftPad2(v int64) string {
	if v < 10 {
		return "0" + strconv.FormatInt(v, 10)
	}
	return strconv.FormatInt(v, 10)
}
