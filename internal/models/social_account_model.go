package models

import (
	"time"
)

const (
	AccountStatusConnected    = "connected"
	AccountStatusDisconnected = "disconnected"
)

// Account is one connected publishing identity plus its posting cadence.
type Account struct {
	ID                string     `db:"id" json:"id"`
	Platform          string     `db:"platform" json:"platform"`
	ExternalAccountID string     `db:"external_account_id" json:"external_account_id"`
	Name              string     `db:"name" json:"name"`
	PostsPerWeek      float64    `db:"posts_per_week" json:"posts_per_week"`
	BestTimes         []string   `db:"best_times" json:"best_times"`
	Timezone          string     `db:"timezone" json:"timezone"`
	Status            string     `db:"status" json:"status"`
	AccessToken       string     `db:"access_token" json:"-"`
	RefreshToken      string     `db:"refresh_token" json:"-"`
	TokenExpiresAt    *time.Time `db:"token_expires_at" json:"token_expires_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

func (a *Account) Connected() bool {
	return a.Status == AccountStatusConnected
}
