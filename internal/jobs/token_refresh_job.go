package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/linkedin"

	config "github.com/connorpauley-png/content-command-sub001/configs"
	"github.com/connorpauley-png/content-command-sub001/internal/clock"
	"github.com/connorpauley-png/content-command-sub001/internal/models"
	"github.com/connorpauley-png/content-command-sub001/internal/platform"
	"github.com/connorpauley-png/content-command-sub001/pkg/utils"
)

const (
	refreshWindow    = 30 * time.Minute
	concurrencyLimit = 10
)

type TokenStore interface {
	ListAccountsExpiringBefore(ctx context.Context, before time.Time) ([]models.Account, error)
	SetAccountTokens(ctx context.Context, id, oldAccessToken string, a *models.Account) error
}

type TokenRefreshJob struct {
	store   TokenStore
	cipher  *utils.TokenCipher
	oauth   map[string]*oauth2.Config
	clock   clock.Clock
	logger  *slog.Logger
	reload  func(ctx context.Context) error
	running atomic.Bool
}

// OAuthConfigs lists the platforms whose tokens can be refreshed with the configured clients.
func OAuthConfigs(cfg *config.Config) map[string]*oauth2.Config {
	configs := make(map[string]*oauth2.Config)
	if cfg.LinkedInClientID != "" {
		configs[platform.LinkedIn] = &oauth2.Config{
			ClientID:     cfg.LinkedInClientID,
			ClientSecret: cfg.LinkedInSecret,
			Endpoint:     linkedin.Endpoint,
		}
	}
	if cfg.GoogleClientID != "" {
		configs[platform.GMB] = &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"https://www.googleapis.com/auth/business.manage"},
		}
	}
	return configs
}

// NewTokenRefreshJob builds the job. reload runs after at least one account was refreshed.
func NewTokenRefreshJob(
	store TokenStore,
	cipher *utils.TokenCipher,
	oauth map[string]*oauth2.Config,
	clk clock.Clock,
	logger *slog.Logger,
	reload func(ctx context.Context) error) *TokenRefreshJob {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenRefreshJob{
		store:  store,
		cipher: cipher,
		oauth:  oauth,
		clock:  clk,
		logger: logger,
		reload: reload,
	}
}

// RefreshTokens is the cron entry point. Overlapping ticks are dropped.
func (j *TokenRefreshJob) RefreshTokens() {
	if !j.running.CompareAndSwap(false, true) {
		j.logger.Info("token refresh still running, skipping tick")
		return
	}
	defer j.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := j.Run(ctx); err != nil {
		slog.Info(err.Error())
	}
}

// Run refreshes every connected account whose token expires within the refresh window and
// returns how many were updated.
func (j *TokenRefreshJob) Run(ctx context.Context) (int, error) {
	accounts, err := j.store.ListAccountsExpiringBefore(ctx, j.clock.Now().Add(refreshWindow))
	if err != nil {
		return 0, fmt.Errorf("list expiring accounts: %w", err)
	}

	var (
		wg        sync.WaitGroup
		refreshed atomic.Int32
	)
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		conf, ok := j.oauth[acc.Platform]
		if !ok {
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc models.Account) {
			defer wg.Done()
			defer func() { <-semaphore }()

			log := j.logger.With("account_id", acc.ID, "platform", acc.Platform)
			if err := j.refresh(ctx, conf, acc); err != nil {
				log.Warn("unable to refresh token", "error", err)
				return
			}
			refreshed.Add(1)
			log.Info("token refreshed")
		}(acc)
	}
	wg.Wait()

	n := int(refreshed.Load())
	if n > 0 && j.reload != nil {
		if err := j.reload(ctx); err != nil {
			return n, fmt.Errorf("reload credentials: %w", err)
		}
	}
	return n, nil
}

func (j *TokenRefreshJob) refresh(ctx context.Context, conf *oauth2.Config, acc models.Account) error {
	refreshToken, err := j.cipher.Decrypt(acc.RefreshToken)
	if err != nil {
		return fmt.Errorf("decrypt refresh token: %w", err)
	}

	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return err
	}

	access, err := j.cipher.Encrypt(token.AccessToken)
	if err != nil {
		return err
	}
	update := &models.Account{AccessToken: access}
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		if update.RefreshToken, err = j.cipher.Encrypt(token.RefreshToken); err != nil {
			return err
		}
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		update.TokenExpiresAt = &expiry
	}

	return j.store.SetAccountTokens(ctx, acc.ID, acc.AccessToken, update)
}
