package models

import "time"

type Participant struct {
	ID              string    `json:"id"`
	DisplayName     string    `json:"display_name"`
	WalletAccountID string    `json:"wallet_account_id"`
	SecretHash      string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}
