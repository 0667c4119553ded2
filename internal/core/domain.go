package core

import (
	"errors"
	"strings"
	"time"
)

type (
	Money struct {
		Paise int64
	}

	Expense struct {
		ID          int64 // Database ID for operations
		UserID      string
		Description string
		Amount      Money
		Category    string
		OccurredAt  time.Time
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyUserID      = errors.New("empty user id")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidBudget    = errors.New("invalid budget")
	ErrNotFound         = errors.New("not found")
)

func (m Money) Validate() error {
	if m.Paise <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return ErrEmptyUserID
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if e.OccurredAt.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}
