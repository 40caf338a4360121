// Package model defines the data models for the Botify marketplace ledger.
package model

import "time"

// Roles a user can hold.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a marketplace account and its bite balance.
// MonetizationEnabled is true iff TotalBotsPublished reached the unlock
// threshold at some point; it is never cleared.
type User struct {
	ID                  string    `db:"id" json:"id"`
	Email               string    `db:"email" json:"email,omitempty"`
	PasswordHash        string    `db:"password_hash" json:"-"`
	Role                string    `db:"role" json:"role"`
	Bites               int64     `db:"bites" json:"bites"`
	Bots                IDSet     `json:"bots"`
	Purchases           IDSet     `json:"purchases"`
	MonetizationEnabled bool      `db:"monetization_enabled" json:"monetizationEnabled"`
	TotalBotsPublished  int       `db:"total_bots_published" json:"totalBotsPublished"`
	CreatedAt           time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time `db:"updated_at" json:"updatedAt"`
}

// Bot represents a published chatbot package.
type Bot struct {
	ID           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	Description  string    `db:"description" json:"description"`
	Platform     string    `db:"platform" json:"platform"`
	UserID       string    `db:"user_id" json:"userId"`
	Price        int64     `db:"price" json:"price"`
	FileURL      string    `db:"file_url" json:"fileUrl"`
	FileName     string    `db:"file_name" json:"fileName"`
	Downloads    int64     `db:"downloads" json:"downloads"`
	Rating       float64   `db:"rating" json:"rating"`
	RatingsCount int64     `db:"ratings_count" json:"ratingsCount"`
	Official     bool      `db:"official" json:"official"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// IsFree reports whether the bot can be acquired without bites.
func (b *Bot) IsFree() bool {
	return b.Price == 0
}

// Transaction is an append-only record of a single balance change.
// Amount is always positive; Type carries the direction.
type Transaction struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"userId"`
	Type        string    `db:"type" json:"type"`
	Amount      int64     `db:"amount" json:"amount"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"timestamp"`
}

// Purchase is an append-only record of a bot acquisition.
// BotTitle is denormalized so the record survives bot deletion.
type Purchase struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	BotID     string    `db:"bot_id" json:"botId"`
	BotTitle  string    `db:"bot_title" json:"botTitle"`
	Price     int64     `db:"price" json:"price"`
	CreatedAt time.Time `db:"created_at" json:"timestamp"`
}

// Transaction types for categorizing balance changes.
const (
	TxTypeEarn     = "earn"     // Bites entering the system (admin grant)
	TxTypeSpend    = "spend"    // Bites leaving without a counterparty
	TxTypePurchase = "purchase" // Buyer side of a bot sale
	TxTypeSale     = "sale"     // Owner side of a bot sale
)

// TransactionTypes returns every valid transaction type.
func TransactionTypes() []string {
	return []string{TxTypeEarn, TxTypeSpend, TxTypePurchase, TxTypeSale}
}

// Entitlement describes a user's relationship to a bot.
type Entitlement struct {
	Owns      bool `json:"owns"`
	Purchased bool `json:"purchased"`
}

// CanDownload reports whether a user with this entitlement may download bot.
func (e Entitlement) CanDownload(bot *Bot) bool {
	return bot.IsFree() || e.Owns || e.Purchased
}

// Entitled reports whether the bot is already owned or acquired.
func (e Entitlement) Entitled() bool {
	return e.Owns || e.Purchased
}

// PendingFileDeletion is a stored file whose deletion failed and is waiting
// to be retried.
type PendingFileDeletion struct {
	FileURL   string    `db:"file_url" json:"fileUrl"`
	Attempts  int       `db:"attempts" json:"attempts"`
	LastError string    `db:"last_error" json:"lastError"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
