package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/connorpauley-png/content-command-sub001/internal/models"
)

type AccountRepository interface {
	CreateAccount(ctx context.Context, a *models.Account) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	AccountForPlatform(ctx context.Context, platform string) (*models.Account, error)
	ListAccountsExpiringBefore(ctx context.Context, before time.Time) ([]models.Account, error)
	SetAccountTokens(ctx context.Context, id, oldAccessToken string, a *models.Account) error
}

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, platform, external_account_id, name, posts_per_week, best_times, timezone, status,
	access_token, refresh_token, token_expires_at, created_at, updated_at`

func scanAccount(row rowScanner) (models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID,
		&a.Platform,
		&a.ExternalAccountID,
		&a.Name,
		&a.PostsPerWeek,
		pq.Array(&a.BestTimes),
		&a.Timezone,
		&a.Status,
		&a.AccessToken,
		&a.RefreshToken,
		&a.TokenExpiresAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func (r *accountRepository) CreateAccount(ctx context.Context, a *models.Account) error {
	query := `
		INSERT INTO social_accounts (id, platform, external_account_id, name, posts_per_week, best_times, timezone,
			status, access_token, refresh_token, token_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		a.ID,
		a.Platform,
		a.ExternalAccountID,
		a.Name,
		a.PostsPerWeek,
		pq.Array(nonNil(a.BestTimes)),
		a.Timezone,
		a.Status,
		a.AccessToken,
		a.RefreshToken,
		a.TokenExpiresAt,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *accountRepository) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM social_accounts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &a, nil
}

// AccountForPlatform returns the connected account publishing to platform.
func (r *accountRepository) AccountForPlatform(ctx context.Context, platform string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM social_accounts
		WHERE platform = $1 AND status = $2 ORDER BY updated_at DESC LIMIT 1`
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, platform, models.AccountStatusConnected))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account for %s: %w", platform, ErrNotFound)
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &a, nil
}

func (r *accountRepository) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return r.queryAccounts(ctx, `SELECT `+accountColumns+` FROM social_accounts ORDER BY created_at ASC`)
}

func (r *accountRepository) ListAccountsExpiringBefore(ctx context.Context, before time.Time) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM social_accounts
		WHERE status = $1 AND refresh_token <> '' AND token_expires_at IS NOT NULL AND token_expires_at < $2`
	return r.queryAccounts(ctx, query, models.AccountStatusConnected, before)
}

// SetAccountTokens swaps tokens only while the stored access token still equals oldAccessToken,
// so two concurrent refreshes cannot overwrite each other.
func (r *accountRepository) SetAccountTokens(ctx context.Context, id, oldAccessToken string, a *models.Account) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	updateTokenQuery := `
		UPDATE social_accounts
		SET
			access_token = COALESCE(NULLIF($3, ''), access_token),
			refresh_token = COALESCE(NULLIF($4, ''), refresh_token),
			token_expires_at = COALESCE($5, token_expires_at),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND access_token = $2;
	`
	result, err := tx.ExecContext(ctx, updateTokenQuery, id, oldAccessToken, a.AccessToken, a.RefreshToken, a.TokenExpiresAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		slog.Info("no rows affected; account may not exist or token changed")
		return fmt.Errorf("account %s token update: %w", id, ErrNotFound)
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *accountRepository) queryAccounts(ctx context.Context, query string, args ...any) ([]models.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, a)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return accounts, nil
}
