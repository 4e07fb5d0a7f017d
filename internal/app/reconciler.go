/**
 * @description
 * Settlement reconciliation for the distribution-service. When the chain
 * watcher (or an operator, via the internal webhook) reports a blockchain
 * settlement for a claimed distribution, this flow verifies the report against
 * the ledger record and finalizes the distribution as paid or failed.
 *
 * Key behaviors:
 * - Duplicate reports carrying the hash already recorded on a paid
 *   distribution are acknowledged as no-ops, so watcher redeliveries are safe.
 * - Amount or network mismatches move the distribution to a terminal failed
 *   state with a structured reason rather than leaving it stuck in claimed.
 * - The expected network comes from the chain-resolver service; when that
 *   lookup fails the report is rejected as retryable without touching the row.
 *
 * @dependencies
 * - context, errors, fmt, log, regexp: Standard Go libraries.
 * - internal/domain, internal/store: Domain models and data access.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/worklane/distribution-service/internal/domain"
	"github.com/worklane/distribution-service/internal/store"
)

// transactionHashPattern accepts 0x-prefixed hex up to the lengths produced by
// the supported networks (EVM 32-byte digests and longer rollup receipts).
var transactionHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{2,128}$`)

// ReportSettlement reconciles a blockchain settlement report against the
// ledger. On success the distribution moves claimed -> paid with the
// transaction hash and network recorded exactly once. A verification mismatch
// moves it claimed -> failed and returns the terminal record alongside the
// mismatch error so callers can surface both.
func (s *Service) ReportSettlement(ctx context.Context, report domain.SettlementReport) (*domain.PaymentDistribution, error) {
	if !transactionHashPattern.MatchString(report.TransactionHash) {
		return nil, ErrInvalidTransactionHash
	}

	dist, err := s.repo.FindDistributionByID(ctx, report.DistributionID)
	if err != nil {
		return nil, err
	}

	// Watcher redelivery of an already-applied settlement.
	if dist.Status == domain.StatusPaid && dist.TransactionHash != nil && *dist.TransactionHash == report.TransactionHash {
		log.Printf("level=info component=service flow=settlement msg=\"duplicate settlement report ignored\" distribution_id=%s tx_hash=%s", dist.ID, report.TransactionHash)
		return dist, nil
	}

	if dist.Status != domain.StatusClaimed {
		return nil, fmt.Errorf("%w: settlement reported for %s distribution", store.ErrInvalidState, dist.Status)
	}

	// A hash can settle at most one distribution. The partial unique index is
	// the authority; this pre-check just produces a better failure reason.
	if holder, findErr := s.repo.FindDistributionByTransactionHash(ctx, report.TransactionHash); findErr == nil {
		if holder.ID != dist.ID {
			reason := fmt.Sprintf("transaction hash %s already settles distribution %s", report.TransactionHash, holder.ID)
			return s.failSettlement(ctx, dist, reason, ErrHashInUse)
		}
	} else if !errors.Is(findErr, store.ErrDistributionNotFound) {
		return nil, findErr
	}

	if report.AmountCents != dist.AmountCents {
		reason := fmt.Sprintf("settled amount %d does not match owed amount %d", report.AmountCents, dist.AmountCents)
		return s.failSettlement(ctx, dist, reason, ErrAmountMismatch)
	}

	if s.networks != nil {
		expected, resolveErr := s.networks.ExpectedNetwork(ctx, dist.RecipientType, dist.RecipientID)
		if resolveErr != nil {
			// Leave the distribution in claimed; the watcher will redeliver.
			return nil, fmt.Errorf("%w: %v", ErrResolverUnavailable, resolveErr)
		}
		if expected != "" && expected != report.Network {
			reason := fmt.Sprintf("settled on network %s but recipient is configured for %s", report.Network, expected)
			return s.failSettlement(ctx, dist, reason, ErrNetworkMismatch)
		}
	}

	now := time.Now().UTC()
	paid, err := s.repo.TryTransition(ctx, dist.ID, domain.StatusClaimed, domain.StatusPaid, store.TransitionFields{
		PaidAt:            &now,
		TransactionHash:   &report.TransactionHash,
		BlockchainNetwork: &report.Network,
	}, dist.Version)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateHash) {
			// Raced another settlement carrying the same hash for a different row.
			reason := fmt.Sprintf("transaction hash %s already settles another distribution", report.TransactionHash)
			return s.failSettlement(ctx, dist, reason, ErrHashInUse)
		}
		if errors.Is(err, store.ErrVersionConflict) || errors.Is(err, store.ErrInvalidState) {
			current, findErr := s.repo.FindDistributionByID(ctx, dist.ID)
			if findErr != nil {
				return nil, findErr
			}
			if current.Status == domain.StatusPaid && current.TransactionHash != nil && *current.TransactionHash == report.TransactionHash {
				return current, nil
			}
			return nil, fmt.Errorf("%w: distribution moved to %s during settlement", store.ErrInvalidState, current.Status)
		}
		return nil, err
	}

	log.Printf("level=info component=service flow=settlement msg=\"distribution settled\" distribution_id=%s tx_hash=%s network=%s", paid.ID, report.TransactionHash, report.Network)
	s.publishEvent(routingKeyPaid, paid, nil)
	return paid, nil
}

// failSettlement moves a claimed distribution to failed with the given reason
// and returns the terminal record together with the verification error.
func (s *Service) failSettlement(ctx context.Context, dist *domain.PaymentDistribution, reason string, cause error) (*domain.PaymentDistribution, error) {
	failed, err := s.repo.TryTransition(ctx, dist.ID, domain.StatusClaimed, domain.StatusFailed, store.TransitionFields{
		FailureReason: &reason,
	}, dist.Version)
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) || errors.Is(err, store.ErrInvalidState) {
			current, findErr := s.repo.FindDistributionByID(ctx, dist.ID)
			if findErr != nil {
				return nil, findErr
			}
			if current.Status == domain.StatusFailed {
				return current, cause
			}
			return nil, fmt.Errorf("%w: distribution moved to %s during settlement verification", store.ErrInvalidState, current.Status)
		}
		return nil, err
	}

	log.Printf("level=warn component=service flow=settlement msg=\"settlement verification failed\" distribution_id=%s reason=%q", failed.ID, reason)
	s.publishEvent(routingKeyFailed, failed, &reason)
	return failed, cause
}
