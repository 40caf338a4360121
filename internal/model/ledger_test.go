package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDSet(t *testing.T) {
	var s IDSet
	assert.False(t, s.Contains("a"))
	assert.False(t, s.Remove("a"))

	assert.True(t, s.Add("b"))
	assert.True(t, s.Add("a"))
	assert.False(t, s.Add("a"))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"a", "b"}, s.Slice())

	assert.True(t, s.Remove("a"))
	assert.False(t, s.Contains("a"))
	assert.True(t, s.Contains("b"))
}

func TestIDSet_JSONFlagMap(t *testing.T) {
	s := NewIDSet("bot-1", "bot-2")
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"bot-1":true,"bot-2":true}`, string(data))

	var decoded IDSet
	require.NoError(t, json.Unmarshal([]byte(`{"x":true,"y":false}`), &decoded))
	assert.True(t, decoded.Contains("x"))
	assert.False(t, decoded.Contains("y"))
}

func TestCheckPrice(t *testing.T) {
	u := &User{ID: "u"}
	assert.NoError(t, u.CheckPrice(0, 2))
	assert.ErrorIs(t, u.CheckPrice(-1, 2), ErrInvalidPrice)
	assert.ErrorIs(t, u.CheckPrice(5, 2), ErrMonetizationLocked)

	u.TotalBotsPublished = 2
	assert.NoError(t, u.CheckPrice(5, 2))
}

func TestRecordPublication_UnlocksOnSecond(t *testing.T) {
	u := &User{ID: "author"}
	assert.Equal(t, 2, u.BotsNeeded(2))

	assert.False(t, u.RecordPublication("bot-1", 2))
	assert.False(t, u.MonetizationEnabled)
	assert.Equal(t, 1, u.BotsNeeded(2))

	assert.True(t, u.RecordPublication("bot-2", 2))
	assert.True(t, u.MonetizationEnabled)
	assert.Equal(t, 0, u.BotsNeeded(2))

	assert.False(t, u.RecordPublication("bot-3", 2))
	assert.Equal(t, 3, u.TotalBotsPublished)

	u.Unpublish("bot-1")
	u.Unpublish("bot-2")
	assert.True(t, u.MonetizationEnabled)
}

func TestPlanPurchase(t *testing.T) {
	owner := &User{ID: "owner", Bots: NewIDSet("bot-1")}
	bot := &Bot{ID: "bot-1", UserID: "owner", Price: 5}

	buyer := &User{ID: "buyer", Bites: 3}
	_, err := PlanPurchase(buyer, bot)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	buyer.Bites = 7
	plan, err := PlanPurchase(buyer, bot)
	require.NoError(t, err)
	assert.Equal(t, PurchasePlan{Charge: 5}, plan)

	plan, err = PlanPurchase(owner, bot)
	require.NoError(t, err)
	assert.True(t, plan.AlreadyEntitled)

	buyer.Purchases.Add("bot-1")
	plan, err = PlanPurchase(buyer, bot)
	require.NoError(t, err)
	assert.True(t, plan.AlreadyEntitled)
	assert.Zero(t, plan.Charge)
}

func TestEntitlement_CanDownload(t *testing.T) {
	free := &Bot{ID: "f", Price: 0}
	paid := &Bot{ID: "p", Price: 10}

	assert.True(t, Entitlement{}.CanDownload(free))
	assert.False(t, Entitlement{}.CanDownload(paid))
	assert.True(t, Entitlement{Owns: true}.CanDownload(paid))
	assert.True(t, Entitlement{Purchased: true}.CanDownload(paid))
}

// Scenario: A publishes two free bots, unlocks monetization, prices a third
// at 5; B fails with 3 bites and succeeds with 7.
func TestMarketplaceScenario(t *testing.T) {
	a := &User{ID: "a", Bites: 10}
	require.NoError(t, a.CheckPrice(0, 2))
	a.RecordPublication("bot-1", 2)
	require.NoError(t, a.CheckPrice(0, 2))
	a.RecordPublication("bot-2", 2)
	assert.Equal(t, 2, a.TotalBotsPublished)
	assert.True(t, a.MonetizationEnabled)

	require.NoError(t, a.CheckPrice(5, 2))
	a.RecordPublication("bot-3", 2)
	bot := &Bot{ID: "bot-3", UserID: "a", Price: 5}

	b := &User{ID: "b", Bites: 3}
	_, err := PlanPurchase(b, bot)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(3), b.Bites)
	assert.Equal(t, int64(10), a.Bites)

	b.Bites = 7
	plan, err := PlanPurchase(b, bot)
	require.NoError(t, err)
	require.NoError(t, Settle(b, a, bot.ID, plan.Charge))
	assert.Equal(t, int64(2), b.Bites)
	assert.Equal(t, int64(15), a.Bites)
	assert.True(t, b.EntitlementFor("bot-3").Purchased)
}

func TestAddRating(t *testing.T) {
	b := &Bot{ID: "b"}
	require.NoError(t, b.AddRating(5))
	require.NoError(t, b.AddRating(4))
	assert.Equal(t, int64(2), b.RatingsCount)
	assert.InDelta(t, 4.5, b.Rating, 0.0001)

	require.NoError(t, b.AddRating(1))
	assert.InDelta(t, 3.3, b.Rating, 0.0001)

	assert.ErrorIs(t, b.AddRating(0), ErrInvalidRating)
	assert.ErrorIs(t, b.AddRating(6), ErrInvalidRating)
	assert.Equal(t, int64(3), b.RatingsCount)
}
