package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletBalance is the client's read-only copy of the backend balance.
type WalletBalance struct {
	Amount    decimal.Decimal `json:"balance"`
	FetchedAt time.Time       `json:"-"`
}

// Formatted renders the amount with two decimal places.
func (b WalletBalance) Formatted() string {
	return b.Amount.StringFixed(2)
}

// LedgerEntryType classifies wallet history rows.
type LedgerEntryType string

const (
	EntryCreditTopUp  LedgerEntryType = "CREDIT_TOPUP"
	EntryDebitParking LedgerEntryType = "DEBIT_PARKING"
)

// LedgerEntry is one row of wallet history as returned by the backend.
type LedgerEntry struct {
	Amount      decimal.Decimal `json:"amount"`
	Type        LedgerEntryType `json:"type"`
	Vehicle     string          `json:"vehicle,omitempty"`
	Description string          `json:"description,omitempty"`
	Timestamp   string          `json:"timestamp,omitempty"`
}
