package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"botify/internal/model"
)

// UserRepository handles user data persistence, including the bots and
// purchases membership sets.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, role, bites, monetization_enabled, total_bots_published, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	var email *string
	err := row.Scan(
		&user.ID,
		&email,
		&user.PasswordHash,
		&user.Role,
		&user.Bites,
		&user.MonetizationEnabled,
		&user.TotalBotsPublished,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Email = stringOrEmpty(email)
	return &user, nil
}

// Create inserts a new user with empty membership sets.
// Returns ErrEmailTaken if the email is already registered.
func (r *UserRepository) Create(ctx context.Context, u *model.User) (*model.User, error) {
	const query = `
		INSERT INTO users (id, email, password_hash, role, bites, monetization_enabled, total_bots_published, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, 0, NOW(), NOW())
		RETURNING ` + userColumns

	role := u.Role
	if role == "" {
		role = model.RoleUser
	}

	user, err := scanUser(r.db.QueryRow(ctx, query, u.ID, nullString(u.Email), u.PasswordHash, role, u.Bites))
	if err != nil {
		if pgErrorCode(err) == codeUniqueViolation {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Ensure creates the user if it does not exist yet and reports whether it
// was created. An existing user is returned unchanged.
func (r *UserRepository) Ensure(ctx context.Context, id, email string) (*model.User, bool, error) {
	const query = `
		INSERT INTO users (id, email, role, bites, created_at, updated_at)
		VALUES ($1, $2, 'user', 0, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRow(ctx, query, id, nullString(email)))
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		if pgErrorCode(err) == codeUniqueViolation {
			return nil, false, ErrEmailTaken
		}
		return nil, false, fmt.Errorf("failed to ensure user: %w", err)
	}

	// Already there
	user, err = r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return user, false, nil
}

// GetByID retrieves a user with both membership sets.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetForUpdate is GetByID that also row-locks the user until the enclosing
// transaction ends.
func (r *UserRepository) GetForUpdate(ctx context.Context, id string) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

// FindByEmail retrieves a user by email.
// Returns ErrUserNotFound if no user has that email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.getOne(ctx, query, email)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*model.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if err := r.loadSets(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (r *UserRepository) loadSets(ctx context.Context, user *model.User) error {
	bots, err := r.memberIDs(ctx, `SELECT bot_id FROM user_bots WHERE user_id = $1`, user.ID)
	if err != nil {
		return fmt.Errorf("failed to load published bots: %w", err)
	}
	purchases, err := r.memberIDs(ctx, `SELECT bot_id FROM user_purchases WHERE user_id = $1`, user.ID)
	if err != nil {
		return fmt.Errorf("failed to load purchases: %w", err)
	}
	user.Bots = model.NewIDSet(bots...)
	user.Purchases = model.NewIDSet(purchases...)
	return nil
}

func (r *UserRepository) memberIDs(ctx context.Context, query, userID string) ([]string, error) {
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Save persists the balance and monetization state of u.
// The CHECK constraint on bites rejects a negative balance.
func (r *UserRepository) Save(ctx context.Context, u *model.User) error {
	const query = `
		UPDATE users
		SET bites = $2, monetization_enabled = $3, total_bots_published = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query, u.ID, u.Bites, u.MonetizationEnabled, u.TotalBotsPublished).Scan(&u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// AddBot adds botID to the user's published set.
func (r *UserRepository) AddBot(ctx context.Context, userID, botID string) error {
	const query = `INSERT INTO user_bots (user_id, bot_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.db.Exec(ctx, query, userID, botID); err != nil {
		return fmt.Errorf("failed to add published bot: %w", err)
	}
	return nil
}

// RemoveBot removes botID from the user's published set.
func (r *UserRepository) RemoveBot(ctx context.Context, userID, botID string) error {
	const query = `DELETE FROM user_bots WHERE user_id = $1 AND bot_id = $2`
	if _, err := r.db.Exec(ctx, query, userID, botID); err != nil {
		return fmt.Errorf("failed to remove published bot: %w", err)
	}
	return nil
}

// AddPurchase adds botID to the user's purchases set.
func (r *UserRepository) AddPurchase(ctx context.Context, userID, botID string) error {
	const query = `INSERT INTO user_purchases (user_id, bot_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.db.Exec(ctx, query, userID, botID); err != nil {
		return fmt.Errorf("failed to add purchase flag: %w", err)
	}
	return nil
}
