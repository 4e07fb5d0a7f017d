/**
 * @description
 * Expiry sweep for stale pending distributions. Distributions that stay
 * unclaimed past the configured claim TTL are moved to the terminal `expired`
 * status by a scheduled batch job, so the ledger does not accumulate claimable
 * amounts forever.
 *
 * The sweep routes every write through the conditional transition, so a claim
 * that lands between the sweep's read and its write wins and the sweep simply
 * skips that row.
 */

package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/worklane/distribution-service/internal/domain"
	"github.com/worklane/distribution-service/internal/store"
)

const expiryReason = "claim window elapsed before the distribution was claimed"

// ExpirySweepResult summarizes one expiry sweep run.
type ExpirySweepResult struct {
	Examined int
	Expired  int
	Skipped  int
}

// ExpirePendingDistributions transitions pending distributions older than the
// claim TTL to expired, up to batchLimit rows per run. Rows claimed or
// otherwise modified between the listing and the transition are skipped.
func (s *Service) ExpirePendingDistributions(ctx context.Context, batchLimit int) (*ExpirySweepResult, error) {
	cutoff := time.Now().UTC().Add(-s.claimTTL)
	candidates, err := s.repo.ListExpiredPendingDistributions(ctx, cutoff, batchLimit)
	if err != nil {
		return nil, err
	}

	result := &ExpirySweepResult{Examined: len(candidates)}
	reason := expiryReason
	for i := range candidates {
		dist := &candidates[i]
		expired, err := s.repo.TryTransition(ctx, dist.ID, domain.StatusPending, domain.StatusExpired, store.TransitionFields{
			FailureReason: &reason,
		}, dist.Version)
		if err != nil {
			if errors.Is(err, store.ErrInvalidState) || errors.Is(err, store.ErrVersionConflict) || errors.Is(err, store.ErrDistributionNotFound) {
				result.Skipped++
				continue
			}
			return result, err
		}
		result.Expired++
		s.publishEvent(routingKeyExpired, expired, &reason)
	}

	if result.Examined > 0 {
		log.Printf("level=info component=service flow=expiry_sweep msg=\"sweep finished\" examined=%d expired=%d skipped=%d cutoff=%s", result.Examined, result.Expired, result.Skipped, cutoff.Format(time.RFC3339))
	}
	return result, nil
}
