/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the
 * `payment_distributions` table.
 *
 * The write path is a single conditional UPDATE guarded by both the expected
 * status and the expected version, so every state transition is a compare-and-set
 * against the row; a follow-up read classifies a missed update as NotFound,
 * InvalidState, or VersionConflict.
 *
 * @dependencies
 * - context, errors, fmt, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/worklane/distribution-service/internal/domain"
)

var (
	ErrDistributionNotFound = errors.New("distribution not found")
	ErrInvalidState         = errors.New("distribution is not in a state that permits this operation")
	ErrVersionConflict      = errors.New("distribution was modified concurrently")
	ErrDuplicateHash        = errors.New("transaction hash already attached to a distribution")
	ErrDuplicateKey         = errors.New("claim idempotency key already in use")
)

const distributionColumns = `
	id, recipient_type, recipient_id, job_id, amount_cents, currency, status,
	claim_idempotency_key, claimed_at, paid_at, transaction_hash, blockchain_network,
	failure_reason, version, created_at, updated_at, deleted_at
`

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDistribution(row rowScanner) (*domain.PaymentDistribution, error) {
	var d domain.PaymentDistribution
	err := row.Scan(
		&d.ID,
		&d.RecipientType,
		&d.RecipientID,
		&d.JobID,
		&d.AmountCents,
		&d.Currency,
		&d.Status,
		&d.ClaimIdempotencyKey,
		&d.ClaimedAt,
		&d.PaidAt,
		&d.TransactionHash,
		&d.BlockchainNetwork,
		&d.FailureReason,
		&d.Version,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// FindDistributionByID retrieves a non-deleted distribution by its ID.
func (r *PostgresRepository) FindDistributionByID(ctx context.Context, id uuid.UUID) (*domain.PaymentDistribution, error) {
	query := `SELECT ` + distributionColumns + ` FROM payment_distributions WHERE id = $1 AND deleted_at IS NULL`
	dist, err := scanDistribution(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDistributionNotFound
		}
		return nil, err
	}
	return dist, nil
}

// FindDistributionByIdempotencyKey retrieves the non-deleted distribution holding a claim key.
func (r *PostgresRepository) FindDistributionByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentDistribution, error) {
	query := `SELECT ` + distributionColumns + ` FROM payment_distributions WHERE claim_idempotency_key = $1 AND deleted_at IS NULL`
	dist, err := scanDistribution(r.db.QueryRow(ctx, query, key))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDistributionNotFound
		}
		return nil, err
	}
	return dist, nil
}

// FindDistributionByTransactionHash retrieves the non-deleted distribution a settlement hash is attached to.
func (r *PostgresRepository) FindDistributionByTransactionHash(ctx context.Context, hash string) (*domain.PaymentDistribution, error) {
	query := `SELECT ` + distributionColumns + ` FROM payment_distributions WHERE transaction_hash = $1 AND deleted_at IS NULL`
	dist, err := scanDistribution(r.db.QueryRow(ctx, query, hash))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDistributionNotFound
		}
		return nil, err
	}
	return dist, nil
}

// ListDistributions retrieves one page of distributions matching the filter,
// along with the unpaginated total for the same filter.
func (r *PostgresRepository) ListDistributions(ctx context.Context, opts domain.ListOptions) (*domain.DistributionPage, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := opts.Page
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	where := []string{"deleted_at IS NULL"}
	args := []interface{}{}
	argPos := 1

	if opts.RecipientType != "" {
		where = append(where, fmt.Sprintf("recipient_type = $%d", argPos))
		args = append(args, opts.RecipientType)
		argPos++
	}
	if opts.RecipientID != nil {
		where = append(where, fmt.Sprintf("recipient_id = $%d", argPos))
		args = append(args, *opts.RecipientID)
		argPos++
	}
	if opts.JobID != nil {
		where = append(where, fmt.Sprintf("job_id = $%d", argPos))
		args = append(args, *opts.JobID)
		argPos++
	}
	if opts.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argPos))
		args = append(args, opts.Status)
		argPos++
	}

	whereClause := strings.Join(where, " AND ")

	var total int64
	countQuery := `SELECT COUNT(*) FROM payment_distributions WHERE ` + whereClause
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, err
	}

	listQuery := fmt.Sprintf(
		`SELECT %s FROM payment_distributions WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		distributionColumns, whereClause, argPos, argPos+1,
	)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.PaymentDistribution, 0, limit)
	for rows.Next() {
		dist, err := scanDistribution(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *dist)
	}

	return &domain.DistributionPage{Items: items, Total: total}, nil
}

// ListExpiredPendingDistributions returns pending distributions created before
// the cutoff, oldest first. Used exclusively by the expiry sweep.
func (r *PostgresRepository) ListExpiredPendingDistributions(ctx context.Context, cutoff time.Time, limit int) ([]domain.PaymentDistribution, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + distributionColumns + `
		FROM payment_distributions
		WHERE status = 'pending' AND deleted_at IS NULL AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.PaymentDistribution
	for rows.Next() {
		dist, err := scanDistribution(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *dist)
	}
	return items, nil
}

// CreateDistribution inserts a new distribution record in `pending` status.
func (r *PostgresRepository) CreateDistribution(ctx context.Context, dist *domain.PaymentDistribution) (*domain.PaymentDistribution, error) {
	query := `
		INSERT INTO payment_distributions (
			id, recipient_type, recipient_id, job_id, amount_cents, currency, status, version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + distributionColumns
	created, err := scanDistribution(r.db.QueryRow(ctx, query,
		dist.ID,
		dist.RecipientType,
		dist.RecipientID,
		dist.JobID,
		dist.AmountCents,
		dist.Currency,
		domain.StatusPending,
		dist.Version,
	))
	if err != nil {
		return nil, err
	}
	return created, nil
}

// TryTransition performs the conditional state transition described on the
// Repository interface. COALESCE keeps unset fields untouched so claimed_at,
// paid_at, and the settlement references are written exactly once.
func (r *PostgresRepository) TryTransition(ctx context.Context, id uuid.UUID, expectedStatus, newStatus string, fields TransitionFields, expectedVersion int64) (*domain.PaymentDistribution, error) {
	query := `
		UPDATE payment_distributions
		SET
			status = $3,
			claim_idempotency_key = COALESCE($4, claim_idempotency_key),
			claimed_at = COALESCE($5, claimed_at),
			paid_at = COALESCE($6, paid_at),
			transaction_hash = COALESCE($7, transaction_hash),
			blockchain_network = COALESCE($8, blockchain_network),
			failure_reason = COALESCE($9, failure_reason),
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1
		  AND status = $2
		  AND version = $10
		  AND deleted_at IS NULL
		RETURNING ` + distributionColumns

	dist, err := scanDistribution(r.db.QueryRow(ctx, query,
		id,
		expectedStatus,
		newStatus,
		fields.ClaimIdempotencyKey,
		fields.ClaimedAt,
		fields.PaidAt,
		fields.TransactionHash,
		fields.BlockchainNetwork,
		fields.FailureReason,
		expectedVersion,
	))
	if err == nil {
		return dist, nil
	}

	if isUniqueViolation(err) {
		return nil, classifyUniqueViolation(err)
	}
	if err != pgx.ErrNoRows {
		return nil, err
	}

	// The guarded update missed. Re-read the row to tell the caller why.
	current, findErr := r.FindDistributionByID(ctx, id)
	if findErr != nil {
		return nil, findErr
	}
	if current.Status != expectedStatus {
		return nil, ErrInvalidState
	}
	return nil, ErrVersionConflict
}

// SoftDeleteDistribution marks a distribution deleted. Returns false when the
// record does not exist or was already deleted.
func (r *PostgresRepository) SoftDeleteDistribution(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE payment_distributions
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// classifyUniqueViolation maps the partial unique indexes on
// transaction_hash and claim_idempotency_key to their sentinel errors.
func classifyUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	if strings.Contains(pgErr.ConstraintName, "transaction_hash") {
		return ErrDuplicateHash
	}
	if strings.Contains(pgErr.ConstraintName, "idempotency") {
		return ErrDuplicateKey
	}
	return err
}
