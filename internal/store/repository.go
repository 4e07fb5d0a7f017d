/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for
 * all data access operations required by the distribution-service. By defining an
 * interface, we decouple the application's business logic from the specific
 * database implementation (e.g., PostgreSQL), making the code more modular and
 * easier to test.
 *
 * The conditional `TryTransition` is the only mutation path for an existing
 * distribution: callers never perform a read-then-write outside it.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/worklane/distribution-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Lookup methods. Soft-deleted rows are invisible to all of them.
	FindDistributionByID(ctx context.Context, id uuid.UUID) (*domain.PaymentDistribution, error)
	FindDistributionByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentDistribution, error)
	FindDistributionByTransactionHash(ctx context.Context, hash string) (*domain.PaymentDistribution, error)

	// Listing for the query service and the expiry sweep.
	ListDistributions(ctx context.Context, opts domain.ListOptions) (*domain.DistributionPage, error)
	ListExpiredPendingDistributions(ctx context.Context, cutoff time.Time, limit int) ([]domain.PaymentDistribution, error)

	// CreateDistribution inserts a new pending distribution (payout trigger).
	CreateDistribution(ctx context.Context, dist *domain.PaymentDistribution) (*domain.PaymentDistribution, error)

	// TryTransition atomically moves a distribution from expectedStatus to
	// newStatus, applies fields, and increments the version counter. It checks
	// status and version in the same statement that writes, so concurrent
	// writers serialize on the row: exactly one succeeds, the rest observe
	// ErrVersionConflict or ErrInvalidState.
	TryTransition(ctx context.Context, id uuid.UUID, expectedStatus, newStatus string, fields TransitionFields, expectedVersion int64) (*domain.PaymentDistribution, error)

	// SoftDeleteDistribution marks a record deleted for audit retention.
	SoftDeleteDistribution(ctx context.Context, id uuid.UUID) (bool, error)
}

// TransitionFields carries the columns a transition may set. Nil fields are
// left untouched; timestamps and settlement references are therefore written
// exactly once, on the transition that supplies them.
type TransitionFields struct {
	ClaimIdempotencyKey *string
	ClaimedAt           *time.Time
	PaidAt              *time.Time
	TransactionHash     *string
	BlockchainNetwork   *string
	FailureReason       *string
}
