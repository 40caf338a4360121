package model

import (
	"errors"
	"fmt"
)

// DefaultMonetizationThreshold is the number of publications that unlocks
// paid pricing.
const DefaultMonetizationThreshold = 2

// Ledger rule violations.
var (
	ErrInvalidAmount      = errors.New("invalid amount: must be positive")
	ErrInvalidPrice       = fmt.Errorf("%w: price must not be negative", ErrInvalidAmount)
	ErrInsufficientFunds  = errors.New("insufficient bites")
	ErrMonetizationLocked = errors.New("monetization not enabled for this user")
)

// Credit adds amount bites to the balance.
func (u *User) Credit(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	u.Bites += amount
	return nil
}

// Debit removes amount bites. The balance is left untouched on error.
func (u *User) Debit(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if u.Bites < amount {
		return ErrInsufficientFunds
	}
	u.Bites -= amount
	return nil
}

// CheckPrice validates that the user may publish a bot at price.
func (u *User) CheckPrice(price int64, threshold int) error {
	if price < 0 {
		return ErrInvalidPrice
	}
	if price > 0 && u.TotalBotsPublished < threshold {
		return ErrMonetizationLocked
	}
	return nil
}

// RecordPublication adds botID to the published set, bumps the publication
// counter and unlocks monetization once threshold is reached.
// Returns true when this call performed the unlock.
func (u *User) RecordPublication(botID string, threshold int) bool {
	u.Bots.Add(botID)
	u.TotalBotsPublished++
	if !u.MonetizationEnabled && u.TotalBotsPublished >= threshold {
		u.MonetizationEnabled = true
		return true
	}
	return false
}

// Unpublish drops botID from the published set. The publication counter and
// the monetization flag are historical and stay as they are.
func (u *User) Unpublish(botID string) bool {
	return u.Bots.Remove(botID)
}

// EntitlementFor reports the user's relationship with botID.
func (u *User) EntitlementFor(botID string) Entitlement {
	return Entitlement{
		Owns:      u.Bots.Contains(botID),
		Purchased: u.Purchases.Contains(botID),
	}
}

// BotsNeeded returns how many more publications unlock monetization.
func (u *User) BotsNeeded(threshold int) int {
	if u.MonetizationEnabled || u.TotalBotsPublished >= threshold {
		return 0
	}
	return threshold - u.TotalBotsPublished
}

// PurchasePlan is the outcome of evaluating a purchase before applying it.
type PurchasePlan struct {
	AlreadyEntitled bool  // Nothing to do: buyer owns or already acquired the bot
	Charge          int64 // Bites moved from buyer to owner (0 for free bots)
}

// PlanPurchase decides what acquiring bot means for buyer.
// A buyer who is the bot's publisher, or who already acquired it, is
// entitled and is never charged again.
func PlanPurchase(buyer *User, bot *Bot) (PurchasePlan, error) {
	if bot.Price < 0 {
		return PurchasePlan{}, ErrInvalidPrice
	}
	ent := buyer.EntitlementFor(bot.ID)
	if ent.Entitled() || bot.UserID == buyer.ID {
		return PurchasePlan{AlreadyEntitled: true}, nil
	}
	if buyer.Bites < bot.Price {
		return PurchasePlan{}, ErrInsufficientFunds
	}
	return PurchasePlan{Charge: bot.Price}, nil
}

// Settle moves price bites from buyer to owner and marks botID as purchased
// by buyer. Either every effect is applied or none is.
func Settle(buyer, owner *User, botID string, price int64) error {
	if price < 0 {
		return ErrInvalidPrice
	}
	if price > 0 {
		if err := buyer.Debit(price); err != nil {
			return err
		}
		if err := owner.Credit(price); err != nil {
			buyer.Bites += price
			return err
		}
	}
	buyer.Purchases.Add(botID)
	return nil
}
