package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"botify/internal/metrics"
	"botify/internal/model"
	"botify/internal/pkg/id"
	"botify/internal/pkg/lock"
	"botify/internal/repository"
	"botify/internal/storage"
)

// Ledger operation names used in logs and metrics.
const (
	opGrant    = "grant"
	opPublish  = "publish"
	opPurchase = "purchase"
	opDelete   = "delete"
	opDownload = "download"
	opRate     = "rate"
)

// LedgerConfig holds the currency and monetization rules.
type LedgerConfig struct {
	MonetizationThreshold int
	OfficialUserID        string
	SignupBonus           int64
}

// BotDraft is the publisher-supplied part of a new bot.
type BotDraft struct {
	Title       string
	Description string
	Platform    string
	Price       int64
	FileURL     string
	FileName    string
}

// PurchaseResult describes a completed purchase.
type PurchaseResult struct {
	BotID           string `json:"botId"`
	PurchaseID      string `json:"purchaseId,omitempty"`
	Price           int64  `json:"price"`
	AlreadyEntitled bool   `json:"alreadyEntitled"`
	Balance         int64  `json:"balance"`
}

// Dashboard is a user's view of their balance, bots and monetization.
type Dashboard struct {
	User                *model.User          `json:"user"`
	Bots                []*model.Bot         `json:"bots"`
	MonetizationEnabled bool                 `json:"monetizationEnabled"`
	BotsNeeded          int                  `json:"botsNeeded"`
	RecentTransactions  []*model.Transaction `json:"recentTransactions"`
	Purchases           []*model.Purchase    `json:"purchases"`
	Totals              map[string]int64     `json:"totals"`
}

// dashboardHistory is how many transactions and purchases a dashboard shows.
const dashboardHistory = 10

// LedgerService owns every balance, entitlement and monetization mutation.
// Each mutation is one store transaction; users touched by it are also
// serialized in-process to keep conflict retries rare.
type LedgerService struct {
	store  *repository.Store
	runner *repository.TxRunner
	files  storage.FileStore
	locks  *lock.KeyLock
	cfg    LedgerConfig
}

// NewLedgerService creates a new LedgerService instance.
func NewLedgerService(
	store *repository.Store,
	runner *repository.TxRunner,
	files storage.FileStore,
	locks *lock.KeyLock,
	cfg LedgerConfig,
) *LedgerService {
	if cfg.MonetizationThreshold < 1 {
		cfg.MonetizationThreshold = model.DefaultMonetizationThreshold
	}
	if files == nil {
		files = storage.Disabled{}
	}
	return &LedgerService{
		store:  store,
		runner: runner,
		files:  files,
		locks:  locks,
		cfg:    cfg,
	}
}

// Threshold returns the number of publications that unlocks paid pricing.
func (s *LedgerService) Threshold() int {
	return s.cfg.MonetizationThreshold
}

func observe(op string, start time.Time, err error) {
	metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.LedgerOperationsTotal.WithLabelValues(op, errorKind(err)).Inc()
}

// EnsureUser creates the user on first authentication and reports whether it
// was created. New users start with the configured signup bonus, recorded
// as an earn transaction.
func (s *LedgerService) EnsureUser(ctx context.Context, userID, email string) (*model.User, bool, error) {
	if userID == "" {
		return nil, false, ErrNotAuthenticated
	}

	unlock, err := s.locks.LockMany(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	var user *model.User
	var created bool
	err = s.runner.InTx(ctx, func(st *repository.Store) error {
		var err error
		user, created, err = st.Users.Ensure(ctx, userID, email)
		if err != nil || !created {
			return err
		}
		return s.applySignupBonus(ctx, st, user)
	})
	if err != nil {
		return nil, false, translate(err)
	}

	if created {
		log.Info().Str("user_id", userID).Msg("User created")
	}
	return user, created, nil
}

// CreateUser stores a new account, e.g. from email sign-up, and applies the
// signup bonus. Returns ErrEmailTaken if the email is registered.
func (s *LedgerService) CreateUser(ctx context.Context, u *model.User) (*model.User, error) {
	var user *model.User
	err := s.runner.InTx(ctx, func(st *repository.Store) error {
		created, err := st.Users.Create(ctx, u)
		if err != nil {
			return err
		}
		user = created
		return s.applySignupBonus(ctx, st, user)
	})
	if err != nil {
		return nil, translate(err)
	}

	log.Info().Str("user_id", user.ID).Msg("User created")
	return user, nil
}

func (s *LedgerService) applySignupBonus(ctx context.Context, st *repository.Store, user *model.User) error {
	if s.cfg.SignupBonus <= 0 {
		return nil
	}
	if err := user.Credit(s.cfg.SignupBonus); err != nil {
		return err
	}
	if err := st.Users.Save(ctx, user); err != nil {
		return err
	}
	return st.Transactions.Create(ctx, &model.Transaction{
		UserID:      user.ID,
		Type:        model.TxTypeEarn,
		Amount:      s.cfg.SignupBonus,
		Description: "Signup bonus",
	})
}

// GetUserData returns the user record with both membership sets.
func (s *LedgerService) GetUserData(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	return user, nil
}

// GrantBites credits amount bites to userID and records an earn
// transaction. Authorization of adminID is the caller's concern; adminID is
// kept for the audit log.
func (s *LedgerService) GrantBites(ctx context.Context, adminID, userID string, amount int64, reason string) (user *model.User, err error) {
	start := time.Now()
	defer func() { observe(opGrant, start, err) }()

	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if userID == "" {
		return nil, ErrNotFound
	}

	unlock, err := s.locks.LockMany(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = s.runner.InTx(ctx, func(st *repository.Store) error {
		u, err := st.Users.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if err := u.Credit(amount); err != nil {
			return err
		}
		if err := st.Users.Save(ctx, u); err != nil {
			return err
		}
		if err := st.Transactions.Create(ctx, &model.Transaction{
			UserID:      userID,
			Type:        model.TxTypeEarn,
			Amount:      amount,
			Description: "Admin grant: " + reason,
		}); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		err = translate(err)
		log.Warn().Err(err).Str("admin_id", adminID).Str("user_id", userID).Int64("amount", amount).Msg("Grant failed")
		return nil, err
	}

	metrics.BitesMovedTotal.WithLabelValues(model.TxTypeEarn).Add(float64(amount))
	log.Info().
		Str("operation", opGrant).
		Str("admin_id", adminID).
		Str("user_id", userID).
		Int64("amount", amount).
		Int64("balance", user.Bites).
		Msg("Bites granted")
	return user, nil
}

// GrantBitesByEmail resolves the user by email and grants to them.
func (s *LedgerService) GrantBitesByEmail(ctx context.Context, adminID, email string, amount int64, reason string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrInvalidInput
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	user, err := s.store.Users.FindByEmail(ctx, email)
	if err != nil {
		return nil, translate(err)
	}
	return s.GrantBites(ctx, adminID, user.ID, amount, reason)
}

func (d BotDraft) validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if d.Price < 0 {
		return model.ErrInvalidPrice
	}
	return nil
}

// PublishBot creates a bot owned by authorID. A positive price requires
// monetization, which unlocks once the author has published the threshold
// number of bots.
func (s *LedgerService) PublishBot(ctx context.Context, authorID string, draft BotDraft) (bot *model.Bot, err error) {
	start := time.Now()
	defer func() { observe(opPublish, start, err) }()

	if authorID == "" {
		return nil, ErrNotAuthenticated
	}
	if err := draft.validate(); err != nil {
		return nil, err
	}
	if err := checkPackage(s.files, draft.FileURL, s.packageFolder(authorID)); err != nil {
		return nil, err
	}

	botID, err := id.Generate(id.PrefixBot)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.LockMany(ctx, authorID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var unlocked bool
	err = s.runner.InTx(ctx, func(st *repository.Store) error {
		author, err := st.Users.GetForUpdate(ctx, authorID)
		if err != nil {
			return err
		}
		if err := author.CheckPrice(draft.Price, s.cfg.MonetizationThreshold); err != nil {
			return err
		}

		b := &model.Bot{
			ID:          botID,
			Title:       strings.TrimSpace(draft.Title),
			Description: draft.Description,
			Platform:    draft.Platform,
			UserID:      authorID,
			Price:       draft.Price,
			FileURL:     draft.FileURL,
			FileName:    draft.FileName,
		}
		if err := st.Bots.Create(ctx, b); err != nil {
			return err
		}
		if err := st.Users.AddBot(ctx, authorID, b.ID); err != nil {
			return err
		}
		unlocked = author.RecordPublication(b.ID, s.cfg.MonetizationThreshold)
		if err := st.Users.Save(ctx, author); err != nil {
			return err
		}
		bot = b
		return nil
	})
	if err != nil {
		err = translate(err)
		log.Warn().Err(err).Str("user_id", authorID).Int64("price", draft.Price).Msg("Publish failed")
		return nil, err
	}

	log.Info().
		Str("operation", opPublish).
		Str("user_id", authorID).
		Str("bot_id", bot.ID).
		Int64("price", bot.Price).
		Bool("monetization_unlocked", unlocked).
		Msg("Bot published")
	return bot, nil
}

func (s *LedgerService) packageFolder(authorID string) string {
	if authorID == s.cfg.OfficialUserID {
		return officialFolder
	}
	return authorID
}

// checkPackage accepts an empty fileURL or one uploaded to files under
// folder. Packages of other accounts are rejected with ErrForbidden.
func checkPackage(files storage.FileStore, fileURL, folder string) error {
	if fileURL == "" {
		return nil
	}
	err := storage.CheckFolder(files, fileURL, folder)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotInFolder):
		return fmt.Errorf("%w: file_url belongs to another account", ErrForbidden)
	}
	return fmt.Errorf("%w: file_url is not an uploaded package: %w", ErrInvalidInput, err)
}

// PurchaseBot acquires botID for buyerID. Free bots are granted without a
// balance change; paid bots move the price from buyer to owner with a
// purchase and a sale transaction. Buying a bot the buyer published or
// already acquired succeeds without any effect.
func (s *LedgerService) PurchaseBot(ctx context.Context, buyerID, botID string) (result *PurchaseResult, err error) {
	start := time.Now()
	defer func() { observe(opPurchase, start, err) }()

	if buyerID == "" {
		return nil, ErrNotAuthenticated
	}

	// Owner is fixed for a bot's lifetime, so it is safe to read it up front.
	pre, err := s.store.Bots.GetByID(ctx, botID)
	if err != nil {
		return nil, translate(err)
	}

	unlock, err := s.locks.LockMany(ctx, buyerID, pre.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = s.runner.InTx(ctx, func(st *repository.Store) error {
		bot, err := st.Bots.GetByID(ctx, botID)
		if err != nil {
			return err
		}
		users, err := lockUsers(ctx, st, buyerID, bot.UserID)
		if err != nil {
			return err
		}
		buyer, owner := users[buyerID], users[bot.UserID]

		plan, err := model.PlanPurchase(buyer, bot)
		if err != nil {
			return err
		}
		res := &PurchaseResult{BotID: bot.ID, Price: plan.Charge, AlreadyEntitled: plan.AlreadyEntitled, Balance: buyer.Bites}
		if plan.AlreadyEntitled {
			result = res
			return nil
		}

		if err := model.Settle(buyer, owner, bot.ID, plan.Charge); err != nil {
			return err
		}
		if err := st.Users.AddPurchase(ctx, buyer.ID, bot.ID); err != nil {
			return err
		}
		purchase := &model.Purchase{UserID: buyer.ID, BotID: bot.ID, BotTitle: bot.Title, Price: plan.Charge}
		if err := st.Purchases.Create(ctx, purchase); err != nil {
			return err
		}
		res.PurchaseID = purchase.ID
		res.Balance = buyer.Bites

		if plan.Charge > 0 {
			if err := settleBalances(ctx, st, buyer, owner, bot, plan.Charge); err != nil {
				return err
			}
		}
		result = res
		return nil
	})
	if err != nil {
		err = translate(err)
		log.Warn().Err(err).Str("user_id", buyerID).Str("bot_id", botID).Msg("Purchase failed")
		return nil, err
	}

	if result.Price > 0 {
		metrics.BitesMovedTotal.WithLabelValues(model.TxTypePurchase).Add(float64(result.Price))
		metrics.BitesMovedTotal.WithLabelValues(model.TxTypeSale).Add(float64(result.Price))
	}
	log.Info().
		Str("operation", opPurchase).
		Str("user_id", buyerID).
		Str("bot_id", botID).
		Int64("amount", result.Price).
		Bool("already_entitled", result.AlreadyEntitled).
		Msg("Bot purchased")
	return result, nil
}

// lockUsers row-locks the given users in ascending id order.
func lockUsers(ctx context.Context, st *repository.Store, ids ...string) (map[string]*model.User, error) {
	users := make(map[string]*model.User, len(ids))
	ordered := append([]string(nil), ids...)
	sort.Strings(ordered)
	for _, uid := range ordered {
		if _, ok := users[uid]; ok {
			continue
		}
		u, err := st.Users.GetForUpdate(ctx, uid)
		if err != nil {
			return nil, err
		}
		users[uid] = u
	}
	return users, nil
}

// settleBalances persists both sides of a paid settlement.
func settleBalances(ctx context.Context, st *repository.Store, buyer, owner *model.User, bot *model.Bot, price int64) error {
	if err := st.Users.Save(ctx, buyer); err != nil {
		return err
	}
	if err := st.Users.Save(ctx, owner); err != nil {
		return err
	}
	if err := st.Transactions.Create(ctx, &model.Transaction{
		UserID:      buyer.ID,
		Type:        model.TxTypePurchase,
		Amount:      price,
		Description: "Purchased bot: " + bot.Title,
	}); err != nil {
		return err
	}
	return st.Transactions.Create(ctx, &model.Transaction{
		UserID:      owner.ID,
		Type:        model.TxTypeSale,
		Amount:      price,
		Description: "Sale of bot: " + bot.Title,
	})
}

// DeleteBot removes botID and its membership in the owner's published set,
// then deletes the stored file unless another bot still references it. A
// failed file deletion is queued for the cleanup sweeper and does not fail
// the call.
func (s *LedgerService) DeleteBot(ctx context.Context, requesterID, botID string) (err error) {
	start := time.Now()
	defer func() { observe(opDelete, start, err) }()

	if requesterID == "" {
		return ErrNotAuthenticated
	}

	unlock, err := s.locks.LockMany(ctx, requesterID)
	if err != nil {
		return err
	}
	defer unlock()

	var fileURL string
	err = s.runner.InTx(ctx, func(st *repository.Store) error {
		bot, err := st.Bots.GetForUpdate(ctx, botID)
		if err != nil {
			return err
		}
		if bot.UserID != requesterID {
			return ErrNotOwner
		}
		owner, err := st.Users.GetForUpdate(ctx, requesterID)
		if err != nil {
			return err
		}
		if err := st.Users.RemoveBot(ctx, owner.ID, bot.ID); err != nil {
			return err
		}
		if err := st.Bots.Delete(ctx, bot.ID); err != nil {
			return err
		}
		owner.Unpublish(bot.ID)
		if bot.FileURL == "" {
			return nil
		}
		refs, err := st.Bots.CountByFileURL(ctx, bot.FileURL)
		if err != nil {
			return err
		}
		if refs == 0 {
			fileURL = bot.FileURL
		}
		return nil
	})
	if err != nil {
		err = translate(err)
		log.Warn().Err(err).Str("user_id", requesterID).Str("bot_id", botID).Msg("Delete failed")
		return err
	}

	log.Info().Str("operation", opDelete).Str("user_id", requesterID).Str("bot_id", botID).Msg("Bot deleted")

	if fileURL != "" {
		s.removeFile(ctx, fileURL)
	}
	return nil
}

// removeFile deletes a stored file, queueing it for the sweeper on failure.
func (s *LedgerService) removeFile(ctx context.Context, fileURL string) {
	err := s.files.Delete(ctx, fileURL)
	switch {
	case err == nil, errors.Is(err, storage.ErrNotFound):
		metrics.FileCleanupTotal.WithLabelValues("deleted").Inc()
		return
	case errors.Is(err, storage.ErrForeignURL):
		log.Error().Err(err).Str("file_url", fileURL).Msg("Stored file URL is not deletable, skipping cleanup")
		metrics.FileCleanupTotal.WithLabelValues("dropped").Inc()
		return
	}

	log.Warn().Err(err).Str("file_url", fileURL).Msg("Failed to delete stored file, queueing for cleanup")
	if qerr := s.store.FileCleanup.Enqueue(ctx, fileURL, err.Error()); qerr != nil {
		log.Error().Err(qerr).Str("file_url", fileURL).Msg("Failed to queue file cleanup")
		return
	}
	metrics.FileCleanupTotal.WithLabelValues("queued").Inc()
}

// ListTransactions returns the user's transactions, newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, userID string, limit int) ([]*model.Transaction, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	txs, err := s.store.Transactions.ListByUserID(ctx, userID, limit)
	if err != nil {
		return nil, translate(err)
	}
	return txs, nil
}

// QueryEntitlement reports whether userID published or acquired botID.
func (s *LedgerService) QueryEntitlement(ctx context.Context, userID, botID string) (model.Entitlement, error) {
	if userID == "" {
		return model.Entitlement{}, ErrNotAuthenticated
	}
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return model.Entitlement{}, translate(err)
	}
	return user.EntitlementFor(botID), nil
}

// Dashboard collects the user's balance, bots, monetization progress and
// recent activity.
func (s *LedgerService) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	user, err := s.GetUserData(ctx, userID)
	if err != nil {
		return nil, err
	}

	bots, err := s.store.Bots.ListByUser(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	txs, err := s.store.Transactions.ListByUserID(ctx, userID, dashboardHistory)
	if err != nil {
		return nil, translate(err)
	}
	purchases, err := s.store.Purchases.ListByUserID(ctx, userID, dashboardHistory)
	if err != nil {
		return nil, translate(err)
	}
	totals, err := s.store.Transactions.SumByType(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	for _, typ := range model.TransactionTypes() {
		if _, ok := totals[typ]; !ok {
			totals[typ] = 0
		}
	}

	return &Dashboard{
		User:                user,
		Bots:                bots,
		MonetizationEnabled: user.MonetizationEnabled,
		BotsNeeded:          user.BotsNeeded(s.cfg.MonetizationThreshold),
		RecentTransactions:  txs,
		Purchases:           purchases,
		Totals:              totals,
	}, nil
}
