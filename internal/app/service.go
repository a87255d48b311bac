/**
 * @description
 * This file contains the core business logic for the bond service.
 * The Service layer validates payloads, enriches bonds with their legal name
 * and persists them for the requesting user.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/transfa/bond-service/internal/domain"
	"github.com/transfa/bond-service/pkg/rabbitmq"
)

// DefaultEventsExchange is the topic exchange bond events are published to.
const DefaultEventsExchange = "bonds.events"

const createRateLimitScope = "bond_create"

var (
	// ErrMissingUser is returned when an operation is attempted without an owner.
	ErrMissingUser = errors.New("user ID cannot be empty")
	// ErrRateLimited is matched by RateLimitError.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// ValidationError carries the field errors of a rejected payload.
type ValidationError struct {
	Fields domain.FieldErrors
}

func (e *ValidationError) Error() string { return e.Fields.Error() }

// RateLimitError reports a rejected request and when the client may retry.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %ds", ErrRateLimited, e.RetryAfterSeconds)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// Repository defines the database operations that the service needs.
type Repository interface {
	CreateBond(ctx context.Context, bond *domain.Bond) (*domain.Bond, error)
	ListBonds(ctx context.Context, userID, legalNameFilter string) ([]domain.Bond, error)
}

// LegalNameResolver looks up the legal name of an LEI. ok is false on any failure.
type LegalNameResolver interface {
	LegalName(ctx context.Context, lei string) (name string, ok bool)
}

// RateLimiter admits or rejects one request for subject within scope.
type RateLimiter interface {
	Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (RateLimitDecision, error)
}

// BondService provides the business logic for bond management.
type BondService struct {
	repo      Repository
	resolver  LegalNameResolver
	publisher rabbitmq.Publisher
	exchange  string
	logger    *slog.Logger

	limiter              RateLimiter
	createLimitPerMinute int
}

// NewBondService creates a new bond service. A nil publisher disables events.
func NewBondService(repo Repository, resolver LegalNameResolver, publisher rabbitmq.Publisher, exchange string, logger *slog.Logger) *BondService {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = &rabbitmq.EventProducerFallback{Logger: logger}
	}
	if strings.TrimSpace(exchange) == "" {
		exchange = DefaultEventsExchange
	}
	return &BondService{
		repo:      repo,
		resolver:  resolver,
		publisher: publisher,
		exchange:  exchange,
		logger:    logger.With("component", "bond_service"),
	}
}

// SetRateLimiter enables per-user rate limiting of bond creation.
// A nil limiter or a non-positive limit disables it.
func (s *BondService) SetRateLimiter(limiter RateLimiter, createPerMinute int) {
	s.limiter = limiter
	s.createLimitPerMinute = createPerMinute
}

// ListBonds returns the bonds owned by userID. A non-empty legalNameFilter is
// matched as given, spaces included, against the legal name ignoring case.
func (s *BondService) ListBonds(ctx context.Context, userID, legalNameFilter string) ([]domain.Bond, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}

	bonds, err := s.repo.ListBonds(ctx, userID, legalNameFilter)
	if err != nil {
		return nil, fmt.Errorf("list bonds: %w", err)
	}
	return bonds, nil
}

// CreateBond validates fields and stores a new bond owned by userID. When no
// legal name is supplied it is looked up by LEI; a failed lookup leaves it unset.
// Rejected payloads do not count towards the create rate limit.
func (s *BondService) CreateBond(ctx context.Context, userID string, fields map[string]any) (*domain.Bond, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}

	bond, fieldErrs := domain.ValidateBond(fields)
	if fieldErrs != nil {
		return nil, &ValidationError{Fields: fieldErrs}
	}
	bond.UserID = userID

	if err := s.checkCreateRateLimit(ctx, userID); err != nil {
		return nil, err
	}

	resolved := false
	if !bond.HasLegalName() && s.resolver != nil {
		if name, ok := s.resolver.LegalName(ctx, bond.LEI); ok {
			name = truncateRunes(name, domain.LegalNameMaxLength)
			bond.LegalName = &name
			resolved = true
		}
	}

	created, err := s.repo.CreateBond(ctx, &bond)
	if err != nil {
		return nil, fmt.Errorf("create bond: %w", err)
	}

	s.publishCreated(ctx, created, resolved)
	return created, nil
}

func (s *BondService) checkCreateRateLimit(ctx context.Context, userID string) error {
	if s.limiter == nil || s.createLimitPerMinute <= 0 {
		return nil
	}

	decision, err := s.limiter.Allow(ctx, createRateLimitScope, userID, s.createLimitPerMinute, time.Minute)
	if err != nil {
		// Limiter errors fail open.
		s.logger.Warn("rate limiter unavailable", "user_id", userID, "error", err)
		return nil
	}
	if !decision.Allowed {
		s.logger.Info("bond create rate limited", "user_id", userID, "count", decision.Count)
		return &RateLimitError{RetryAfterSeconds: decision.RetryAfterSeconds()}
	}
	return nil
}

func (s *BondService) publishCreated(ctx context.Context, bond *domain.Bond, resolved bool) {
	event := domain.BondCreatedEvent{
		EventID:           uuid.NewString(),
		BondID:            bond.ID,
		UserID:            bond.UserID,
		ISIN:              bond.ISIN,
		LEI:               bond.LEI,
		LegalName:         bond.LegalName,
		LegalNameResolved: resolved,
		OccurredAt:        time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, s.exchange, domain.BondCreatedRoutingKey, event); err != nil {
		s.logger.Error("failed to publish bond event", "bond_id", bond.ID, "event_id", event.EventID, "error", err)
	}
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
