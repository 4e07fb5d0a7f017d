/**
 * @description
 * This file defines the core domain models for the distribution-service.
 * These structs represent the payment distribution ledger entity and the data
 * transfer objects (DTOs) used by the service's business logic, database
 * interactions, and API layers.
 *
 * @notes
 * - Amounts are stored as `int64` cents to avoid floating-point inaccuracies
 *   with financial data.
 * - A distribution is never physically deleted; `DeletedAt` marks soft removal
 *   for audit retention and every read/write path filters on it.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Distribution statuses. `failed` and `expired` are terminal.
const (
	StatusPending = "pending"
	StatusClaimed = "claimed"
	StatusPaid    = "paid"
	StatusFailed  = "failed"
	StatusExpired = "expired"
)

// Recipient types a distribution can be owed to.
const (
	RecipientTypeUser         = "user"
	RecipientTypeOrganization = "organization"
)

// PaymentDistribution is the central ledger record for an amount owed to a
// recipient. It maps directly to the `payment_distributions` table.
//
// The `Version` column implements optimistic concurrency control: every write
// goes through the store's conditional transition, which checks the expected
// status and version and increments the version in the same statement.
type PaymentDistribution struct {
	ID                  uuid.UUID  `json:"id"`
	RecipientType       string     `json:"recipient_type"`
	RecipientID         uuid.UUID  `json:"recipient_id"`
	JobID               *uuid.UUID `json:"job_id,omitempty"`
	AmountCents         int64      `json:"amount_cents"`
	Currency            string     `json:"currency"`
	Status              string     `json:"status"`
	ClaimIdempotencyKey *string    `json:"claim_idempotency_key,omitempty"`
	ClaimedAt           *time.Time `json:"claimed_at,omitempty"`
	PaidAt              *time.Time `json:"paid_at,omitempty"`
	TransactionHash     *string    `json:"transaction_hash,omitempty"`
	BlockchainNetwork   *string    `json:"blockchain_network,omitempty"`
	FailureReason       *string    `json:"failure_reason,omitempty"`
	Version             int64      `json:"version"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	DeletedAt           *time.Time `json:"-"`
}

// IsTerminal reports whether no further transitions are permitted.
func (d *PaymentDistribution) IsTerminal() bool {
	return d.Status == StatusPaid || d.Status == StatusFailed || d.Status == StatusExpired
}

// ValidStatus reports whether s is one of the known distribution statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusClaimed, StatusPaid, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// ValidRecipientType reports whether t is a known recipient type.
func ValidRecipientType(t string) bool {
	return t == RecipientTypeUser || t == RecipientTypeOrganization
}

// ClaimRequest is the DTO for incoming claim API requests.
type ClaimRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
}

// SettlementReport is the DTO for a blockchain settlement notification,
// whether it arrives over the webhook endpoint or the message broker.
type SettlementReport struct {
	DistributionID  uuid.UUID `json:"distribution_id"`
	TransactionHash string    `json:"transaction_hash"`
	Network         string    `json:"network"`
	AmountCents     int64     `json:"amount_cents"`
}

// CreateDistributionRequest is the payout-trigger payload that creates a new
// pending distribution. It arrives via the internal HTTP endpoint or the
// `payout.triggered` broker binding.
type CreateDistributionRequest struct {
	RecipientType string     `json:"recipient_type"`
	RecipientID   uuid.UUID  `json:"recipient_id"`
	JobID         *uuid.UUID `json:"job_id,omitempty"`
	AmountCents   int64      `json:"amount_cents"`
	Currency      string     `json:"currency"`
}

// ListOptions controls filtering and pagination for distribution listings.
type ListOptions struct {
	RecipientType string
	RecipientID   *uuid.UUID
	JobID         *uuid.UUID
	Status        string
	Page          int
	Limit         int
}

// DistributionPage is one page of distributions plus the unpaginated total.
type DistributionPage struct {
	Items []PaymentDistribution `json:"items"`
	Total int64                 `json:"total"`
}

// DistributionEvent is the message payload published to RabbitMQ when a
// distribution changes state. Delivery is fire-and-forget: publishing failure
// never blocks or reverses the ledger transition it announces.
type DistributionEvent struct {
	DistributionID  uuid.UUID  `json:"distribution_id"`
	RecipientType   string     `json:"recipient_type"`
	RecipientID     uuid.UUID  `json:"recipient_id"`
	JobID           *uuid.UUID `json:"job_id,omitempty"`
	AmountCents     int64      `json:"amount_cents"`
	Currency        string     `json:"currency"`
	Status          string     `json:"status"`
	TransactionHash *string    `json:"transaction_hash,omitempty"`
	Reason          *string    `json:"reason,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}
