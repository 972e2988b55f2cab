package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/connorpauley-png/content-command-sub001/internal/models"
	"github.com/connorpauley-png/content-command-sub001/internal/platform"
	"github.com/connorpauley-png/content-command-sub001/internal/repository"
	"github.com/connorpauley-png/content-command-sub001/pkg/utils"
)

// PlatformService resolves publishing credentials. Connected accounts stored in Postgres win;
// the environment's static credentials are the fallback.
type PlatformService interface {
	platform.CredentialSource
	Connected(platform string) bool
	List(ctx context.Context) ([]models.Account, error)
	Reload(ctx context.Context) error
}

type platformService struct {
	accounts repository.AccountRepository
	cipher   *utils.TokenCipher
	static   platform.StaticCredentials

	mu        sync.RWMutex
	connected map[string]bool
}

func NewPlatformService(accounts repository.AccountRepository, cipher *utils.TokenCipher, static platform.StaticCredentials) PlatformService {
	return &platformService{
		accounts:  accounts,
		cipher:    cipher,
		static:    static,
		connected: map[string]bool{},
	}
}

func (s *platformService) Credentials(ctx context.Context, key string) (platform.Credentials, error) {
	if s.accounts != nil {
		acct, err := s.accounts.AccountForPlatform(ctx, key)
		switch {
		case err == nil:
			token, err := s.decrypt(acct.AccessToken)
			if err != nil {
				return platform.Credentials{}, fmt.Errorf("decrypt %s token: %w", key, err)
			}
			return platform.Credentials{AccountID: acct.ExternalAccountID, AccessToken: token}, nil
		case !errors.Is(err, repository.ErrNotFound):
			slog.Info(err.Error())
			return platform.Credentials{}, err
		}
	}
	if s.static == nil {
		return platform.Credentials{}, fmt.Errorf("%w: %s", platform.ErrNoCredentials, key)
	}
	return s.static.Credentials(ctx, key)
}

// Connected answers from the snapshot taken by the last Reload.
func (s *platformService) Connected(key string) bool {
	if c, ok := s.static[key]; ok && c.AccessToken != "" {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected[key]
}

func (s *platformService) List(ctx context.Context) ([]models.Account, error) {
	if s.accounts == nil {
		return nil, nil
	}
	return s.accounts.ListAccounts(ctx)
}

func (s *platformService) Reload(ctx context.Context) error {
	accounts, err := s.List(ctx)
	if err != nil {
		return err
	}
	connected := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		if a.Connected() && a.AccessToken != "" {
			connected[a.Platform] = true
		}
	}
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
	return nil
}

func (s *platformService) decrypt(token string) (string, error) {
	if s.cipher == nil {
		return token, nil
	}
	return s.cipher.Decrypt(token)
}
