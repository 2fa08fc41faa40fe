package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/tierhost/tierhost/internal/cache"
	"github.com/tierhost/tierhost/internal/events"
	"github.com/tierhost/tierhost/internal/metrics"
	"github.com/tierhost/tierhost/internal/model"
	"github.com/tierhost/tierhost/internal/repository"
	"github.com/tierhost/tierhost/internal/tier"
	"github.com/tierhost/tierhost/internal/token"
)

const maxTokenRetries = 3

// LinkPolicy bounds the lifetime of issued links, in seconds.
type LinkPolicy struct {
	MinSeconds     int
	MaxSeconds     int
	DefaultSeconds int
	TokenLength    int
}

// DefaultLinkPolicy returns the 300-30000 second policy with a 300 second default.
func DefaultLinkPolicy() LinkPolicy {
	return LinkPolicy{
		MinSeconds:     300,
		MaxSeconds:     30000,
		DefaultSeconds: 300,
		TokenLength:    token.DefaultLength,
	}
}

// ClientInfo identifies the caller of a redemption for event hashing.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// TempLinkService issues and redeems temporary links.
type TempLinkService struct {
	links    LinkStore
	files    FileStore
	cache    LinkCache
	events   EventPublisher
	policy   LinkPolicy
	generate token.Generator
	now      func() time.Time
	logger   *slog.Logger
	metrics  metrics.Recorder
}

// NewTempLinkService creates a new TempLinkService.
func NewTempLinkService(
	links LinkStore,
	files FileStore,
	linkCache LinkCache,
	publisher EventPublisher,
	policy LinkPolicy,
	logger *slog.Logger,
	recorder metrics.Recorder,
) *TempLinkService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TempLinkService{
		links:    links,
		files:    files,
		cache:    linkCache,
		events:   publisher,
		policy:   policy,
		generate: token.Generate,
		now:      time.Now,
		logger:   logger,
		metrics:  recorder,
	}
}

// WithClock replaces the time source.
func (s *TempLinkService) WithClock(now func() time.Time) *TempLinkService {
	s.now = now
	return s
}

// WithTokenGenerator replaces the token generator.
func (s *TempLinkService) WithTokenGenerator(g token.Generator) *TempLinkService {
	s.generate = g
	return s
}

// Policy returns the active lifetime policy.
func (s *TempLinkService) Policy() LinkPolicy {
	return s.policy
}

// ParseDuration parses the requested lifetime in seconds.
// An empty value selects the policy default.
func (s *TempLinkService) ParseDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return time.Duration(s.policy.DefaultSeconds) * time.Second, nil
	}

	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < s.policy.MinSeconds || seconds > s.policy.MaxSeconds {
		return 0, &DurationError{Raw: raw, Min: s.policy.MinSeconds, Max: s.policy.MaxSeconds}
	}

	return time.Duration(seconds) * time.Second, nil
}

// Generate issues a temporary link to fileID valid for the requested
// number of seconds.
func (s *TempLinkService) Generate(ctx context.Context, principal *model.AuthContext, fileID, rawSeconds string) (*model.TemporaryLink, error) {
	if principal == nil || !tier.CanIssueLinks(principal.Tier) {
		return nil, ErrForbiddenTier
	}

	// The target is looked up by id alone; any Enterprise user may link to it.
	file, err := s.files.GetFileByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to load file: %w", err)
	}

	ttl, err := s.ParseDuration(rawSeconds)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	link := &model.TemporaryLink{
		ID:        generateULID(),
		IssuerID:  principal.UserID,
		FileID:    file.ID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	// Not written through to the cache: a file delete committing in
	// between would have nothing to evict. The first redeem backfills.
	if err := s.insertWithUniqueToken(ctx, link); err != nil {
		return nil, err
	}

	s.metrics.IncLinkIssued()
	s.events.PublishAsync(events.Event{
		Type:       events.TypeLinkIssued,
		LinkID:     link.ID,
		FileID:     link.FileID,
		UserID:     link.IssuerID,
		ExpiresAt:  link.ExpiresAt.Unix(),
		OccurredAt: now.UnixMilli(),
	})
	s.logger.Info("temp_link_issued",
		"link_id", link.ID,
		"file_id", link.FileID,
		"issuer_id", link.IssuerID,
		"expires_at", link.ExpiresAt,
	)

	return link, nil
}

// insertWithUniqueToken mints tokens until the store accepts one.
func (s *TempLinkService) insertWithUniqueToken(ctx context.Context, link *model.TemporaryLink) error {
	for i := 0; i < maxTokenRetries; i++ {
		tok, err := s.generate(s.policy.TokenLength)
		if err != nil {
			return fmt.Errorf("failed to generate token: %w", err)
		}
		link.Token = tok

		err = s.links.CreateTemporaryLink(ctx, link)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, repository.ErrTokenExists):
			continue
		case errors.Is(err, repository.ErrFileNotFound):
			return ErrFileNotFound
		default:
			return fmt.Errorf("failed to create temporary link: %w", err)
		}
	}

	return fmt.Errorf("failed to generate unique token after %d attempts", maxTokenRetries)
}

// Redeem resolves a token to its link. Expiry is inclusive: a link is
// still valid at exactly its expiry instant.
func (s *TempLinkService) Redeem(ctx context.Context, principal *model.AuthContext, tok string, client ClientInfo) (*model.TemporaryLink, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveRedeemDuration(time.Since(start))
	}()

	if principal == nil || !tier.CanIssueLinks(principal.Tier) {
		s.metrics.IncLinkRedeemed(metrics.OutcomeForbidden)
		return nil, ErrForbiddenTier
	}

	link, err := s.lookup(ctx, tok)
	if err != nil {
		if errors.Is(err, ErrLinkNotFound) {
			s.metrics.IncLinkRedeemed(metrics.OutcomeNotFound)
		}
		return nil, err
	}

	now := s.now()
	if link.IsExpiredAt(now) {
		s.metrics.IncLinkRedeemed(metrics.OutcomeExpired)
		s.logger.Info("temp_link_expired", "link_id", link.ID, "expired_at", link.ExpiresAt)
		return nil, ErrLinkExpired
	}

	s.metrics.IncLinkRedeemed(metrics.OutcomeRedirected)
	s.events.PublishAsync(events.Event{
		Type:       events.TypeLinkRedeemed,
		LinkID:     link.ID,
		FileID:     link.FileID,
		UserID:     principal.UserID,
		ClientHash: events.ClientHash(client.IP, client.UserAgent, now),
		OccurredAt: now.UnixMilli(),
	})
	s.logger.Info("temp_link_redeemed", "link_id", link.ID, "file_id", link.FileID, "user_id", principal.UserID)

	return link, nil
}

// lookup is cache-first; Redis failures fall through to the store.
func (s *TempLinkService) lookup(ctx context.Context, tok string) (*model.TemporaryLink, error) {
	// Step 1: Try cache
	link, err := s.cache.GetTemporaryLink(ctx, tok)
	if err == nil {
		s.metrics.IncLinkCacheHit()
		return link, nil
	}

	// Step 2: Check negative cache
	if errors.Is(err, cache.ErrCacheMiss) {
		s.metrics.IncLinkCacheMiss()
		negative, negErr := s.cache.IsNegativelyCached(ctx, tok)
		if negErr != nil {
			s.logger.Warn("temp_link_negative_cache_failed", "error", negErr)
		}
		if negative {
			return nil, ErrLinkNotFound
		}
	} else {
		s.logger.Warn("temp_link_cache_get_failed", "error", err)
	}

	// Step 3: DB lookup
	link, err = s.links.GetTemporaryLinkByToken(ctx, tok)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			if err := s.cache.SetNegativeCache(ctx, tok); err != nil {
				s.logger.Warn("temp_link_negative_cache_set_failed", "error", err)
			}
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to load temporary link: %w", err)
	}

	// Step 4: Backfill cache
	if err := s.cache.SetTemporaryLink(ctx, link); err != nil {
		s.logger.Warn("temp_link_cache_set_failed", "link_id", link.ID, "error", err)
	}

	return link, nil
}
