package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kairos/launch/internal/envato"
	"kairos/launch/internal/repository"
	"kairos/launch/pkg/crypto"
	"kairos/launch/pkg/logging"
)

type Provider string

const (
	ProviderEnvato Provider = "envato"
	ProviderVercel Provider = "vercel"
)

func ParseProvider(s string) (Provider, error) {
	switch p := Provider(s); p {
	case ProviderEnvato, ProviderVercel:
		return p, nil
	}
	return "", ErrUnsupportedProvider
}

var Providers = []Provider{ProviderEnvato, ProviderVercel}

// MarketplaceAccounts resolves the buyer behind a marketplace token.
type MarketplaceAccounts interface {
	Account(ctx context.Context, token string) (*envato.Account, error)
}

// ConnectionService keeps the access tokens a user granted us for the
// marketplace and the deployment platform, sealed at rest.
type ConnectionService interface {
	Connect(ctx context.Context, userID string, provider Provider, token string, ttl time.Duration) error
	Disconnect(ctx context.Context, userID string, provider Provider) error
	// Token returns ErrProviderNotConnected when nothing is stored.
	Token(ctx context.Context, userID string, provider Provider) (string, error)
	// Connected reports, per provider, whether a token is stored.
	Connected(ctx context.Context, userID string) (map[Provider]bool, error)
}

type connectionService struct {
	store repository.StateStore
	box      *crypto.Box
	accounts MarketplaceAccounts
	audit    AuditService
}

// NewConnectionService builds the service. accounts may be nil, in which case
// marketplace tokens are stored without being checked.
func NewConnectionService(store repository.StateStore, box *crypto.Box, accounts MarketplaceAccounts, audit AuditService) ConnectionService {
	return &connectionService{store: store, box: box, accounts: accounts, audit: audit}
}

func connectionKey(userID string, provider Provider) string {
	return "connection:" + string(provider) + ":" + userID
}

func (s *connectionService) Connect(ctx context.Context, userID string, provider Provider, token string, ttl time.Duration) error {
	var account *envato.Account
	if provider == ProviderEnvato && s.accounts != nil {
		var err error
		if account, err = s.accounts.Account(ctx, token); err != nil {
			return fmt.Errorf("envato: %w", err)
		}
	}

	sealed, err := s.box.Seal([]byte(token))
	if err != nil {
		return fmt.Errorf("seal token: %w", err)
	}
	if err := s.store.Set(ctx, connectionKey(userID, provider), []byte(sealed), ttl); err != nil {
		return fmt.Errorf("store token: %w", err)
	}

	switch provider {
	case ProviderVercel:
		s.audit.Log(ctx, AuditVercelConnected, userID, nil)
	case ProviderEnvato:
		details := map[string]interface{}{}
		if account != nil {
			details["username"] = account.Username
			logging.FromContext(ctx).Info("marketplace account connected", zap.String("username", account.Username))
		}
		s.audit.Log(ctx, AuditUserSignIn, userID, details)
	}
	return nil
}

func (s *connectionService) Disconnect(ctx context.Context, userID string, provider Provider) error {
	if err := s.store.Delete(ctx, connectionKey(userID, provider)); err != nil {
		return err
	}
	if provider == ProviderEnvato {
		s.audit.Log(ctx, AuditUserSignOut, userID, nil)
	}
	return nil
}

func (s *connectionService) Connected(ctx context.Context, userID string) (map[Provider]bool, error) {
	out := make(map[Provider]bool, len(Providers))
	for _, p := range Providers {
		ok, err := s.store.Exists(ctx, connectionKey(userID, p))
		if err != nil {
			return nil, fmt.Errorf("check %s connection: %w", p, err)
		}
		out[p] = ok
	}
	return out, nil
}

func (s *connectionService) Token(ctx context.Context, userID string, provider Provider) (string, error) {
	raw, err := s.store.Get(ctx, connectionKey(userID, provider))
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	if raw == nil {
		return "", ErrProviderNotConnected
	}
	token, err := s.box.Open(string(raw))
	if err != nil {
		return "", fmt.Errorf("open token: %w", err)
	}
	return string(token), nil
}
