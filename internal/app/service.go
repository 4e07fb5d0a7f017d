/**
 * @description
 * This file contains the core business logic for the distribution-service. The
 * `Service` struct orchestrates the payment distribution ledger, coordinating
 * between the database repository, the external resolver clients, and the
 * message broker.
 *
 * Key features:
 * - Implements the claim path: an atomic pending -> claimed transition with
 *   exactly-once semantics under concurrent requests.
 * - Creates pending distributions from payout triggers after validating the
 *   recipient against the recipient-service.
 * - Publishes lifecycle events to RabbitMQ for asynchronous consumers; event
 *   delivery is fire-and-forget and never gates a ledger transition.
 *
 * @dependencies
 * - context, errors, fmt, log, strings, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/worklane/distribution-service/internal/domain"
	"github.com/worklane/distribution-service/internal/store"
	"github.com/worklane/distribution-service/pkg/rabbitmq"
)

const (
	eventExchange = "worklane.events"

	routingKeyClaimed = "distribution.claimed"
	routingKeyPaid    = "distribution.paid"
	routingKeyFailed  = "distribution.failed"
	routingKeyExpired = "distribution.expired"

	defaultClaimTTL = 72 * time.Hour
)

var (
	ErrAlreadyClaimed         = errors.New("distribution already claimed")
	ErrIdempotencyKeyInUse    = errors.New("idempotency key already used by another distribution")
	ErrInvalidIdempotencyKey  = errors.New("idempotency key must not be empty")
	ErrInvalidRecipient       = errors.New("recipient type or id is invalid")
	ErrRecipientNotFound      = errors.New("recipient does not exist")
	ErrInvalidAmount          = errors.New("amount must be a positive number of cents")
	ErrInvalidCurrency        = errors.New("currency must be a three-letter ISO code")
	ErrResolverUnavailable    = errors.New("external resolver unavailable")
	ErrInvalidTransactionHash = errors.New("transaction hash is malformed")
	ErrAmountMismatch         = errors.New("settlement amount does not match distribution amount")
	ErrNetworkMismatch        = errors.New("settlement network does not match recipient's configured chain")
	ErrHashInUse              = errors.New("transaction hash already attached to another distribution")
)

// NetworkResolver resolves the blockchain network expected for a recipient's
// configured chain. Implemented by pkg/chainresolver.
type NetworkResolver interface {
	ExpectedNetwork(ctx context.Context, recipientType string, recipientID uuid.UUID) (string, error)
}

// RecipientResolver answers whether a payable recipient exists. Implemented by
// pkg/recipientclient.
type RecipientResolver interface {
	RecipientExists(ctx context.Context, recipientType string, recipientID uuid.UUID) (bool, error)
}

// ClaimRateLimiter enforces a fixed-window rate limit on claim submissions.
type ClaimRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for payment distributions.
type Service struct {
	repo          store.Repository
	networks      NetworkResolver
	recipients    RecipientResolver
	eventProducer rabbitmq.Publisher

	claimTTL time.Duration

	claimRateLimiter        ClaimRateLimiter
	claimRateLimitPerMinute int
}

// NewService creates a new distribution service instance.
func NewService(repo store.Repository, networks NetworkResolver, recipients RecipientResolver, producer rabbitmq.Publisher, claimTTL time.Duration) *Service {
	if claimTTL <= 0 {
		claimTTL = defaultClaimTTL
	}
	return &Service{
		repo:          repo,
		networks:      networks,
		recipients:    recipients,
		eventProducer: producer,
		claimTTL:      claimTTL,
	}
}

// SetClaimRateLimiter wires the optional distributed limiter for the claim path.
func (s *Service) SetClaimRateLimiter(limiter ClaimRateLimiter, perMinute int) {
	s.claimRateLimiter = limiter
	s.claimRateLimitPerMinute = perMinute
}

// ConsumeClaimRateLimit consumes one claim-attempt token for a recipient.
// Returns allowed=true when rate limiting is disabled or unavailable; limiter
// outages never block claims.
func (s *Service) ConsumeClaimRateLimit(ctx context.Context, recipientID uuid.UUID) (allowed bool, retryAfterSeconds int) {
	if s.claimRateLimiter == nil || s.claimRateLimitPerMinute <= 0 {
		return true, 0
	}
	count, retryAfter, err := s.claimRateLimiter.ConsumeRateLimit(ctx, "distribution_claim", recipientID.String(), s.claimRateLimitPerMinute, time.Minute)
	if err != nil {
		log.Printf("level=warn component=service flow=claim msg=\"rate limiter unavailable; allowing request\" recipient_id=%s err=%v", recipientID, err)
		return true, 0
	}
	if count > s.claimRateLimitPerMinute {
		return false, retryAfter
	}
	return true, 0
}

// GetDistribution returns one non-deleted distribution.
func (s *Service) GetDistribution(ctx context.Context, id uuid.UUID) (*domain.PaymentDistribution, error) {
	return s.repo.FindDistributionByID(ctx, id)
}

// ListDistributions returns one page of distributions matching the filter.
func (s *Service) ListDistributions(ctx context.Context, opts domain.ListOptions) (*domain.DistributionPage, error) {
	if opts.RecipientType != "" && !domain.ValidRecipientType(opts.RecipientType) {
		return nil, ErrInvalidRecipient
	}
	if opts.Status != "" && !domain.ValidStatus(opts.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", store.ErrInvalidState, opts.Status)
	}
	return s.repo.ListDistributions(ctx, opts)
}

// CreateDistribution records a new pending distribution from a payout trigger.
// Recipient existence is delegated to the recipient-service; this core never
// re-validates it afterwards.
func (s *Service) CreateDistribution(ctx context.Context, req domain.CreateDistributionRequest) (*domain.PaymentDistribution, error) {
	if !domain.ValidRecipientType(req.RecipientType) || req.RecipientID == uuid.Nil {
		return nil, ErrInvalidRecipient
	}
	if req.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return nil, ErrInvalidCurrency
	}

	if s.recipients != nil {
		exists, err := s.recipients.RecipientExists(ctx, req.RecipientType, req.RecipientID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrResolverUnavailable, err)
		}
		if !exists {
			return nil, ErrRecipientNotFound
		}
	}

	dist := &domain.PaymentDistribution{
		ID:            uuid.New(),
		RecipientType: req.RecipientType,
		RecipientID:   req.RecipientID,
		JobID:         req.JobID,
		AmountCents:   req.AmountCents,
		Currency:      currency,
		Status:        domain.StatusPending,
		Version:       1,
	}
	created, err := s.repo.CreateDistribution(ctx, dist)
	if err != nil {
		return nil, fmt.Errorf("failed to create distribution record: %w", err)
	}

	log.Printf("level=info component=service flow=payout_trigger msg=\"distribution created\" distribution_id=%s recipient_id=%s amount_cents=%d", created.ID, created.RecipientID, created.AmountCents)
	return created, nil
}

// ClaimDistribution reserves a pending distribution for payout.
//
// Exactly one conditional transition succeeds among concurrent callers; a
// loser whose idempotency key matches the winner's receives the winner's
// record (duplicate submission), any other loser receives ErrAlreadyClaimed.
func (s *Service) ClaimDistribution(ctx context.Context, id uuid.UUID, idempotencyKey string) (*domain.PaymentDistribution, error) {
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		return nil, ErrInvalidIdempotencyKey
	}

	dist, err := s.repo.FindDistributionByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if dist.Status != domain.StatusPending {
		return s.resolveClaimOnNonPending(dist, key)
	}

	// A key may back at most one distribution at or beyond claimed.
	if holder, err := s.repo.FindDistributionByIdempotencyKey(ctx, key); err == nil {
		if holder.ID != dist.ID {
			return nil, ErrIdempotencyKeyInUse
		}
	} else if !errors.Is(err, store.ErrDistributionNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	claimed, err := s.repo.TryTransition(ctx, dist.ID, domain.StatusPending, domain.StatusClaimed, store.TransitionFields{
		ClaimIdempotencyKey: &key,
		ClaimedAt:           &now,
	}, dist.Version)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			// The key landed on another distribution between the pre-check and
			// the write.
			if holder, findErr := s.repo.FindDistributionByIdempotencyKey(ctx, key); findErr == nil && holder.ID == dist.ID {
				return holder, nil
			}
			return nil, ErrIdempotencyKeyInUse
		}
		if errors.Is(err, store.ErrInvalidState) || errors.Is(err, store.ErrVersionConflict) {
			// Lost the race; decide between duplicate submission and hard conflict.
			current, findErr := s.repo.FindDistributionByID(ctx, dist.ID)
			if findErr != nil {
				return nil, findErr
			}
			return s.resolveClaimOnNonPending(current, key)
		}
		return nil, err
	}

	log.Printf("level=info component=service flow=claim msg=\"distribution claimed\" distribution_id=%s recipient_id=%s", claimed.ID, claimed.RecipientID)
	s.publishEvent(routingKeyClaimed, claimed, nil)
	return claimed, nil
}

// resolveClaimOnNonPending maps a claim attempt against a non-pending record
// to its outcome: the duplicate-submission replay is success-shaped, anything
// else is a conflict or an invalid-state rejection.
func (s *Service) resolveClaimOnNonPending(dist *domain.PaymentDistribution, key string) (*domain.PaymentDistribution, error) {
	switch dist.Status {
	case domain.StatusClaimed, domain.StatusPaid:
		if dist.ClaimIdempotencyKey != nil && *dist.ClaimIdempotencyKey == key {
			return dist, nil
		}
		return nil, ErrAlreadyClaimed
	case domain.StatusPending:
		// Raced against a writer that has since been rolled back or retried;
		// the caller can safely resubmit with the same key.
		return nil, store.ErrVersionConflict
	default:
		return nil, store.ErrInvalidState
	}
}

// SoftDeleteDistribution marks a distribution deleted for audit retention.
func (s *Service) SoftDeleteDistribution(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.SoftDeleteDistribution(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return store.ErrDistributionNotFound
	}
	log.Printf("level=info component=service flow=admin msg=\"distribution soft-deleted\" distribution_id=%s", id)
	return nil
}

// publishEvent emits a lifecycle event for a distribution. Failures are logged
// and dropped: the ledger transition already committed and must not depend on
// broker availability.
func (s *Service) publishEvent(routingKey string, dist *domain.PaymentDistribution, reason *string) {
	if s.eventProducer == nil {
		return
	}

	event := domain.DistributionEvent{
		DistributionID:  dist.ID,
		RecipientType:   dist.RecipientType,
		RecipientID:     dist.RecipientID,
		JobID:           dist.JobID,
		AmountCents:     dist.AmountCents,
		Currency:        dist.Currency,
		Status:          dist.Status,
		TransactionHash: dist.TransactionHash,
		Reason:          reason,
		Timestamp:       time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.eventProducer.Publish(ctx, eventExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=service msg=\"event publish failed; continuing\" routing_key=%s distribution_id=%s err=%v", routingKey, dist.ID, err)
	}
}
