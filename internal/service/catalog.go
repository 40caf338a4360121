package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"botify/internal/model"
	"botify/internal/pkg/id"
	"botify/internal/pkg/lock"
	"botify/internal/repository"
	"botify/internal/storage"
)

// Upload constraints for bot packages.
const (
	PackageExtension   = ".zip"
	PackageContentType = "application/zip"
	officialFolder     = "official"
	officialRating     = 5
)

// CatalogService handles the bot catalog: listing, official bots, package
// uploads, downloads and ratings.
type CatalogService struct {
	store          *repository.Store
	runner         *repository.TxRunner
	files          storage.FileStore
	locks          *lock.KeyLock
	officialUserID string
	threshold      int
	now            func() time.Time
}

// NewCatalogService creates a new CatalogService instance.
func NewCatalogService(
	store *repository.Store,
	runner *repository.TxRunner,
	files storage.FileStore,
	locks *lock.KeyLock,
	cfg LedgerConfig,
) *CatalogService {
	if files == nil {
		files = storage.Disabled{}
	}
	if cfg.MonetizationThreshold < 1 {
		cfg.MonetizationThreshold = model.DefaultMonetizationThreshold
	}
	return &CatalogService{
		store:          store,
		runner:         runner,
		files:          files,
		locks:          locks,
		officialUserID: cfg.OfficialUserID,
		threshold:      cfg.MonetizationThreshold,
		now:            time.Now,
	}
}

// ListBots returns every bot, or only official ones.
func (s *CatalogService) ListBots(ctx context.Context, officialOnly bool) ([]*model.Bot, error) {
	bots, err := s.store.Bots.List(ctx, officialOnly)
	if err != nil {
		return nil, translate(err)
	}
	return bots, nil
}

// GetBot returns a single bot.
func (s *CatalogService) GetBot(ctx context.Context, botID string) (*model.Bot, error) {
	bot, err := s.store.Bots.GetByID(ctx, botID)
	if err != nil {
		return nil, translate(err)
	}
	return bot, nil
}

// AddOfficialBot seeds a bot owned by the reserved official account. Official
// bots are always free and start with the top rating.
func (s *CatalogService) AddOfficialBot(ctx context.Context, adminID string, draft BotDraft) (*model.Bot, error) {
	draft.Price = 0
	if err := draft.validate(); err != nil {
		return nil, err
	}
	if err := checkPackage(s.files, draft.FileURL, officialFolder); err != nil {
		return nil, err
	}

	botID, err := id.Generate(id.PrefixBot)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.LockMany(ctx, s.officialUserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var bot *model.Bot
	err = s.runner.InTx(ctx, func(st *repository.Store) error {
		official, err := st.Users.GetForUpdate(ctx, s.officialUserID)
		if err != nil {
			return err
		}
		b := &model.Bot{
			ID:          botID,
			Title:       strings.TrimSpace(draft.Title),
			Description: draft.Description,
			Platform:    draft.Platform,
			UserID:      official.ID,
			FileURL:     draft.FileURL,
			FileName:    draft.FileName,
			Rating:      officialRating,
			Official:    true,
		}
		if err := st.Bots.Create(ctx, b); err != nil {
			return err
		}
		if err := st.Users.AddBot(ctx, official.ID, b.ID); err != nil {
			return err
		}
		official.RecordPublication(b.ID, s.threshold)
		if err := st.Users.Save(ctx, official); err != nil {
			return err
		}
		bot = b
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	log.Info().Str("admin_id", adminID).Str("bot_id", bot.ID).Msg("Official bot added")
	return bot, nil
}

// UploadPackage stores a ZIP package for ownerID and returns its URL.
// Official packages go under the shared official folder.
func (s *CatalogService) UploadPackage(ctx context.Context, ownerID, fileName string, official bool, r io.Reader) (string, error) {
	if ownerID == "" {
		return "", ErrNotAuthenticated
	}
	if !strings.EqualFold(path.Ext(fileName), PackageExtension) {
		return "", fmt.Errorf("%w: only %s packages are accepted", ErrInvalidInput, PackageExtension)
	}

	folder := ownerID
	if official {
		folder = officialFolder
	}
	objectPath := storage.ObjectPath(folder, fileName, s.now())

	url, err := s.files.Upload(ctx, objectPath, PackageContentType, r)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	log.Info().Str("user_id", ownerID).Str("object", objectPath).Msg("Package uploaded")
	return url, nil
}

// Download checks that userID may download botID, counts the download and
// returns the package URL.
func (s *CatalogService) Download(ctx context.Context, userID, botID string) (url string, err error) {
	start := time.Now()
	defer func() { observe(opDownload, start, err) }()

	if userID == "" {
		return "", ErrNotAuthenticated
	}

	err = s.runner.InTx(ctx, func(st *repository.Store) error {
		user, err := st.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		bot, err := st.Bots.GetByID(ctx, botID)
		if err != nil {
			return err
		}
		if !user.EntitlementFor(bot.ID).CanDownload(bot) {
			return ErrNotEntitled
		}
		if _, err := st.Bots.IncrementDownloads(ctx, bot.ID); err != nil {
			return err
		}
		url = bot.FileURL
		return nil
	})
	if err != nil {
		return "", translate(err)
	}
	return url, nil
}

// RateBot folds a 1-5 star rating into the bot's running average.
func (s *CatalogService) RateBot(ctx context.Context, userID, botID string, stars int) (bot *model.Bot, err error) {
	start := time.Now()
	defer func() { observe(opRate, start, err) }()

	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	if stars < model.MinRating || stars > model.MaxRating {
		return nil, ErrInvalidRating
	}

	unlock, err := s.locks.LockMany(ctx, "rating:"+botID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = s.runner.InTx(ctx, func(st *repository.Store) error {
		b, err := st.Bots.GetForUpdate(ctx, botID)
		if err != nil {
			return err
		}
		if err := b.AddRating(stars); err != nil {
			return err
		}
		if err := st.Bots.SaveRating(ctx, b); err != nil {
			return err
		}
		bot = b
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	log.Info().Str("user_id", userID).Str("bot_id", botID).Int("stars", stars).Float64("rating", bot.Rating).Msg("Bot rated")
	return bot, nil
}
