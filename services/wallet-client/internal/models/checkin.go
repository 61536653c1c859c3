package models

import "github.com/shopspring/decimal"

// CheckInRequest is sent once per user click.
type CheckInRequest struct {
	UserID  string `json:"uid"`
	Vehicle string `json:"vehicle"`
}

// CheckInResult mirrors the check-in endpoint response.
type CheckInResult struct {
	Success    bool             `json:"success"`
	NewBalance *decimal.Decimal `json:"new_balance,omitempty"`
	Message    string           `json:"message,omitempty"`
}
