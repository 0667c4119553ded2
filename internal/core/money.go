// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and converting between paise and rupee representations.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseDecimalToPaise converts a decimal rupee string to paise with
// half-up rounding on the third decimal place. The result is always
// positive paise. The dot is the only separator: commas group digits
// in INR amounts ("1,00,000"), so a comma anywhere is rejected rather
// than guessed at.
//
// Examples:
//   ParseDecimalToPaise("12.34") -> 1234, nil
//   ParseDecimalToPaise("12.345") -> 1234, nil (rounds down)
//   ParseDecimalToPaise("12.346") -> 1235, nil (rounds up)
//   ParseDecimalToPaise("12,34") -> error
func ParseDecimalToPaise(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		// Only positive values allowed
		return 0, ErrInvalidAmount
	}
	// Split into integer and fractional part
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	// Convert integer part - check for overflow
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	// Prevent overflow when multiplying by 100
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	// Take first two fractional digits; then half-up rounding on third
	var fracPaise int64 = 0
	if len(fracPart) > 0 {
		d1 := int64(fracPart[0] - '0')
		fracPaise = d1 * 10
		if len(fracPart) > 1 {
			d2 := int64(fracPart[1] - '0')
			fracPaise += d2
			if len(fracPart) > 2 {
				if fracPart[2] >= '5' {
					fracPaise++
				}
			}
		}
	}
	paise := iv*100 + fracPaise
	if paise <= 0 {
		return 0, ErrInvalidAmount
	}
	return paise, nil
}

// Rupees returns the rupee value as a float64 for display purposes.
// Note: use paise for calculations to avoid floating-point precision issues.
func (m Money) Rupees() float64 {
	return float64(m.Paise) / 100.0
}

// FormatINR renders the amount as whole rupees with Indian digit grouping,
// e.g. 123456789 paise -> "₹12,34,568". Paise are rounded half-up.
func (m Money) FormatINR() string {
	paise := m.Paise
	neg := paise < 0
	if neg {
		paise = -paise
	}
	rupees := (paise + 50) / 100
	digits := strconv.FormatInt(rupees, 10)

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString("₹")
	n := len(digits)
	if n <= 3 {
		b.WriteString(digits)
		return b.String()
	}
	// Indian grouping: last three digits together, then groups of two.
	head := digits[:n-3]
	if len(head)%2 == 1 {
		b.WriteString(head[:1])
		b.WriteByte(',')
		head = head[1:]
	}
	for i := 0; i < len(head); i += 2 {
		b.WriteString(head[i : i+2])
		b.WriteByte(',')
	}
	b.WriteString(digits[n-3:])
	return b.String()
}
