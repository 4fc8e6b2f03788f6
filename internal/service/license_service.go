package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"kairos/launch/internal/envato"
	"kairos/launch/internal/license"
	"kairos/launch/pkg/logging"
)

// Marketplace answers purchase questions for a buyer's access token.
type Marketplace interface {
	HasPurchased(ctx context.Context, token, itemID string) (bool, error)
	FindPurchase(ctx context.Context, token, code string) (*envato.Purchase, error)
}

type LicenseService interface {
	// Verify checks that userID owns itemID, going through the license cache.
	// A failed marketplace call is reported in Result.Err; the returned error
	// is only set when the check could not be attempted.
	Verify(ctx context.Context, userID, itemID string) (license.Result, error)
	// CheckPurchaseCode returns ErrPurchaseCodeMismatch unless code is one of
	// the buyer's purchases of itemID. It is not cached.
	CheckPurchaseCode(ctx context.Context, userID, itemID, code string) error
	ClearCache(ctx context.Context) error
	ClearEntry(ctx context.Context, userID, itemID string) error
	CacheSize(ctx context.Context) (int, error)
}

type licenseService struct {
	cache       *license.Cache
	marketplace Marketplace
	connections ConnectionService
	audit       AuditService
}

func NewLicenseService(cache *license.Cache, marketplace Marketplace, connections ConnectionService, audit AuditService) LicenseService {
	return &licenseService{
		cache:       cache,
		marketplace: marketplace,
		connections: connections,
		audit:       audit,
	}
}

func (s *licenseService) Verify(ctx context.Context, userID, itemID string) (license.Result, error) {
	token, err := s.connections.Token(ctx, userID, ProviderEnvato)
	if err != nil {
		return license.Result{}, err
	}

	result := s.cache.Verify(ctx, userID, itemID, func(ctx context.Context, _, itemID string) (bool, error) {
		return s.marketplace.HasPurchased(ctx, token, itemID)
	})

	details := map[string]interface{}{
		"itemId":   itemID,
		"verified": result.Verified,
		"cached":   result.Cached,
	}
	action := AuditLicenseVerified
	if !result.Verified {
		action = AuditLicenseVerificationFailed
		if result.Err != nil {
			details["error"] = result.Err.Error()
		}
	}
	s.audit.Log(ctx, action, userID, details)

	logging.FromContext(ctx).Info("license checked",
		zap.String("item_id", itemID),
		zap.Bool("verified", result.Verified),
		zap.Bool("cached", result.Cached),
	)
	return result, nil
}

func (s *licenseService) CheckPurchaseCode(ctx context.Context, userID, itemID, code string) error {
	token, err := s.connections.Token(ctx, userID, ProviderEnvato)
	if err != nil {
		return err
	}
	purchase, err := s.marketplace.FindPurchase(ctx, token, code)
	if err != nil {
		return fmt.Errorf("envato: %w", err)
	}
	if purchase == nil || strconv.FormatInt(purchase.Item.ID, 10) != itemID {
		logging.FromContext(ctx).Warn("purchase code not owned by buyer",
			zap.String("item_id", itemID),
			zap.Bool("found", purchase != nil),
		)
		return ErrPurchaseCodeMismatch
	}
	return nil
}

func (s *licenseService) ClearCache(ctx context.Context) error {
	if err := s.cache.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear license cache: %w", err)
	}
	return nil
}

func (s *licenseService) ClearEntry(ctx context.Context, userID, itemID string) error {
	if err := s.cache.Clear(ctx, userID, itemID); err != nil {
		return fmt.Errorf("clear license entry: %w", err)
	}
	return nil
}

func (s *licenseService) CacheSize(ctx context.Context) (int, error) {
	return s.cache.Len(ctx)
}
