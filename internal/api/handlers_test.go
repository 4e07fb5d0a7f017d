package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/worklane/distribution-service/internal/app"
	"github.com/worklane/distribution-service/internal/domain"
	"github.com/worklane/distribution-service/internal/store"
)

// handlersRepoStub backs a single distribution and mirrors the conditional
// transition semantics of the real repository.
type handlersRepoStub struct {
	store.Repository

	dist *domain.PaymentDistribution
}

func (s *handlersRepoStub) FindDistributionByID(ctx context.Context, id uuid.UUID) (*domain.PaymentDistribution, error) {
	if s.dist == nil || s.dist.ID != id || s.dist.DeletedAt != nil {
		return nil, store.ErrDistributionNotFound
	}
	copied := *s.dist
	return &copied, nil
}

func (s *handlersRepoStub) FindDistributionByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentDistribution, error) {
	if s.dist != nil && s.dist.DeletedAt == nil && s.dist.ClaimIdempotencyKey != nil && *s.dist.ClaimIdempotencyKey == key {
		copied := *s.dist
		return &copied, nil
	}
	return nil, store.ErrDistributionNotFound
}

func (s *handlersRepoStub) FindDistributionByTransactionHash(ctx context.Context, hash string) (*domain.PaymentDistribution, error) {
	if s.dist != nil && s.dist.DeletedAt == nil && s.dist.TransactionHash != nil && *s.dist.TransactionHash == hash {
		copied := *s.dist
		return &copied, nil
	}
	return nil, store.ErrDistributionNotFound
}

func (s *handlersRepoStub) TryTransition(ctx context.Context, id uuid.UUID, expectedStatus, newStatus string, fields store.TransitionFields, expectedVersion int64) (*domain.PaymentDistribution, error) {
	if s.dist == nil || s.dist.ID != id || s.dist.DeletedAt != nil {
		return nil, store.ErrDistributionNotFound
	}
	if s.dist.Status != expectedStatus {
		return nil, store.ErrInvalidState
	}
	if s.dist.Version != expectedVersion {
		return nil, store.ErrVersionConflict
	}
	s.dist.Status = newStatus
	if fields.ClaimIdempotencyKey != nil && s.dist.ClaimIdempotencyKey == nil {
		s.dist.ClaimIdempotencyKey = fields.ClaimIdempotencyKey
	}
	if fields.ClaimedAt != nil && s.dist.ClaimedAt == nil {
		s.dist.ClaimedAt = fields.ClaimedAt
	}
	if fields.PaidAt != nil && s.dist.PaidAt == nil {
		s.dist.PaidAt = fields.PaidAt
	}
	if fields.TransactionHash != nil && s.dist.TransactionHash == nil {
		s.dist.TransactionHash = fields.TransactionHash
	}
	if fields.BlockchainNetwork != nil && s.dist.BlockchainNetwork == nil {
		s.dist.BlockchainNetwork = fields.BlockchainNetwork
	}
	if fields.FailureReason != nil && s.dist.FailureReason == nil {
		s.dist.FailureReason = fields.FailureReason
	}
	s.dist.Version++
	s.dist.UpdatedAt = time.Now().UTC()
	copied := *s.dist
	return &copied, nil
}

func newHandlerFixture(dist *domain.PaymentDistribution) (*DistributionHandlers, *handlersRepoStub) {
	repo := &handlersRepoStub{dist: dist}
	service := app.NewService(repo, nil, nil, nil, 0)
	return NewDistributionHandlers(service), repo
}

func newPendingDist() *domain.PaymentDistribution {
	return &domain.PaymentDistribution{
		ID:            uuid.New(),
		RecipientType: domain.RecipientTypeUser,
		RecipientID:   uuid.New(),
		AmountCents:   5000,
		Currency:      "USD",
		Status:        domain.StatusPending,
		Version:       1,
		CreatedAt:     time.Now().UTC(),
	}
}

func doRequest(t *testing.T, handlerFunc http.HandlerFunc, method, path string, urlParamID uuid.UUID, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("distributionID", urlParamID.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	handlerFunc(rec, req)
	return rec
}

func TestClaimDistributionHandler_ClaimsPendingRecord(t *testing.T) {
	dist := newPendingDist()
	handlers, repo := newHandlerFixture(dist)

	rec := doRequest(t, handlers.ClaimDistributionHandler, "POST", "/distributions/"+dist.ID.String()+"/claim", dist.ID, domain.ClaimRequest{IdempotencyKey: "worker-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got domain.PaymentDistribution
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Status != domain.StatusClaimed {
		t.Fatalf("expected claimed, got %q", got.Status)
	}
	if repo.dist.Status != domain.StatusClaimed {
		t.Fatal("expected the stored record to be claimed")
	}
}

func TestClaimDistributionHandler_ReplayReturns200(t *testing.T) {
	dist := newPendingDist()
	handlers, _ := newHandlerFixture(dist)

	first := doRequest(t, handlers.ClaimDistributionHandler, "POST", "/claim", dist.ID, domain.ClaimRequest{IdempotencyKey: "worker-1"})
	if first.Code != http.StatusOK {
		t.Fatalf("first claim: expected 200, got %d", first.Code)
	}
	second := doRequest(t, handlers.ClaimDistributionHandler, "POST", "/claim", dist.ID, domain.ClaimRequest{IdempotencyKey: "worker-1"})
	if second.Code != http.StatusOK {
		t.Fatalf("replay: expected 200, got %d: %s", second.Code, second.Body.String())
	}
}

func TestClaimDistributionHandler_SecondKeyGets409(t *testing.T) {
	dist := newPendingDist()
	handlers, _ := newHandlerFixture(dist)

	if rec := doRequest(t, handlers.ClaimDistributionHandler, "POST", "/claim", dist.ID, domain.ClaimRequest{IdempotencyKey: "worker-1"}); rec.Code != http.StatusOK {
		t.Fatalf("first claim: expected 200, got %d", rec.Code)
	}
	rec := doRequest(t, handlers.ClaimDistributionHandler, "POST", "/claim", dist.ID, domain.ClaimRequest{IdempotencyKey: "worker-2"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestClaimDistributionHandler_MissingKeyGets400(t *testing.T) {
	dist := newPendingDist()
	handlers, _ := newHandlerFixture(dist)

	rec := doRequest(t, handlers.ClaimDistributionHandler, "POST", "/claim", dist.ID, domain.ClaimRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestClaimDistributionHandler_UnknownIDGets404(t *testing.T) {
	handlers, _ := newHandlerFixture(nil)

	rec := doRequest(t, handlers.ClaimDistributionHandler, "POST", "/claim", uuid.New(), domain.ClaimRequest{IdempotencyKey: "worker-1"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestClaimDistributionHandler_ExpiredRecordGets422(t *testing.T) {
	dist := newPendingDist()
	dist.Status = domain.StatusExpired
	handlers, _ := newHandlerFixture(dist)

	rec := doRequest(t, handlers.ClaimDistributionHandler, "POST", "/claim", dist.ID, domain.ClaimRequest{IdempotencyKey: "worker-1"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestReportSettlementHandler_SettlesClaimedRecord(t *testing.T) {
	dist := newPendingDist()
	key := "worker-1"
	now := time.Now().UTC()
	dist.Status = domain.StatusClaimed
	dist.ClaimIdempotencyKey = &key
	dist.ClaimedAt = &now
	handlers, repo := newHandlerFixture(dist)

	rec := doRequest(t, handlers.ReportSettlementHandler, "POST", "/settlement", dist.ID, settlementWebhookRequest{
		TransactionHash: "0xabc123def4",
		Network:         "base-mainnet",
		AmountCents:     dist.AmountCents,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if repo.dist.Status != domain.StatusPaid {
		t.Fatalf("expected stored record to be paid, got %q", repo.dist.Status)
	}
}

func TestReportSettlementHandler_AmountMismatchGets422WithRecord(t *testing.T) {
	dist := newPendingDist()
	key := "worker-1"
	dist.Status = domain.StatusClaimed
	dist.ClaimIdempotencyKey = &key
	handlers, repo := newHandlerFixture(dist)

	rec := doRequest(t, handlers.ReportSettlementHandler, "POST", "/settlement", dist.ID, settlementWebhookRequest{
		TransactionHash: "0xabc123def4",
		Network:         "base-mainnet",
		AmountCents:     1,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	if repo.dist.Status != domain.StatusFailed {
		t.Fatalf("expected stored record to be failed, got %q", repo.dist.Status)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if _, ok := body["distribution"]; !ok {
		t.Fatal("expected the terminal record in the error body")
	}
}

func TestReportSettlementHandler_PendingRecordGets409(t *testing.T) {
	dist := newPendingDist()
	handlers, _ := newHandlerFixture(dist)

	rec := doRequest(t, handlers.ReportSettlementHandler, "POST", "/settlement", dist.ID, settlementWebhookRequest{
		TransactionHash: "0xabc123def4",
		Network:         "base-mainnet",
		AmountCents:     dist.AmountCents,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestReportSettlementHandler_MalformedHashGets400(t *testing.T) {
	dist := newPendingDist()
	dist.Status = domain.StatusClaimed
	handlers, _ := newHandlerFixture(dist)

	rec := doRequest(t, handlers.ReportSettlementHandler, "POST", "/settlement", dist.ID, settlementWebhookRequest{
		TransactionHash: "not-a-hash",
		Network:         "base-mainnet",
		AmountCents:     dist.AmountCents,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetDistributionHandler_InvalidUUIDGets400(t *testing.T) {
	handlers, _ := newHandlerFixture(nil)

	req := httptest.NewRequest("GET", "/distributions/not-a-uuid", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("distributionID", "not-a-uuid")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	handlers.GetDistributionHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
