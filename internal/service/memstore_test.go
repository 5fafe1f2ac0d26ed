package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/skolaris/be-school-fees/internal/apperrors"
	"github.com/skolaris/be-school-fees/internal/client"
	"github.com/skolaris/be-school-fees/internal/repository"
	"github.com/skolaris/be-school-fees/internal/workflow"
)

// memStore is an in-memory implementation of every store interface. The
// transition methods reproduce the conditional-update semantics of the pgx
// repositories so concurrency behavior can be tested without a database.
type memStore struct {
	mu       sync.Mutex
	fees     map[string]*repository.FeeStructure
	subs     map[string]*repository.SubscriptionRequest
	proofs   []*repository.PaymentProof
	payments []*repository.Payment
	auditLog []*repository.AuditRecord
	events   []client.WorkflowEvent
}

func newMemStore() *memStore {
	return &memStore{
		fees: make(map[string]*repository.FeeStructure),
		subs: make(map[string]*repository.SubscriptionRequest),
	}
}

// ── FeeStore ──────────────────────────────────────────────────────────────────

func (m *memStore) Create(ctx context.Context, fee *repository.FeeStructure, audit *repository.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fee.ID = uuid.NewString()
	fee.Status = workflow.Initial(workflow.EntityFee)
	fee.CreatedAt = time.Now()
	fee.UpdatedAt = fee.CreatedAt
	cp := *fee
	m.fees[fee.ID] = &cp

	audit.EntityID = fee.ID
	m.appendAuditLocked(audit)
	return nil
}

func (m *memStore) GetByID(ctx context.Context, id, schoolID string) (*repository.FeeStructure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fee, ok := m.fees[id]
	if !ok || fee.SchoolID != schoolID {
		return nil, apperrors.NotFound("fee structure", id)
	}
	cp := *fee
	return &cp, nil
}

func (m *memStore) List(ctx context.Context, schoolID string, status *workflow.Status, limit, offset int) ([]*repository.FeeStructure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*repository.FeeStructure
	for _, fee := range m.fees {
		if fee.SchoolID != schoolID {
			continue
		}
		if status != nil && fee.Status != *status {
			continue
		}
		cp := *fee
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) TransitionStatus(ctx context.Context, id, schoolID string, from, to workflow.Status, audit *repository.AuditRecord) (*repository.FeeStructure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fee, ok := m.fees[id]
	if !ok || fee.SchoolID != schoolID {
		return nil, apperrors.NotFound("fee structure", id)
	}
	if fee.Status != from {
		return nil, apperrors.Newf(apperrors.ErrCodeConflict,
			"fee structure %q changed concurrently: status is no longer %q", id, from)
	}

	fee.Status = to
	fee.UpdatedAt = time.Now()
	m.appendAuditLocked(audit)
	cp := *fee
	return &cp, nil
}

func (m *memStore) Delete(ctx context.Context, id, schoolID string, audit *repository.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fee, ok := m.fees[id]
	if !ok || fee.SchoolID != schoolID {
		return apperrors.NotFound("fee structure", id)
	}
	if fee.Status != workflow.FeeDraft {
		return apperrors.Newf(apperrors.ErrCodeConflict, "fee structure %q is not draft", id)
	}

	delete(m.fees, id)
	m.appendAuditLocked(audit)
	return nil
}

// ── SubscriptionStore ─────────────────────────────────────────────────────────

func (m *memStore) CreateSubscription(ctx context.Context, sub *repository.SubscriptionRequest, audit *repository.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub.ID = uuid.NewString()
	sub.Status = workflow.Initial(workflow.EntitySubscription)
	sub.CreatedAt = time.Now()
	sub.UpdatedAt = sub.CreatedAt
	cp := *sub
	m.subs[sub.ID] = &cp

	audit.EntityID = sub.ID
	m.appendAuditLocked(audit)
	return nil
}

func (m *memStore) GetSubscriptionByID(ctx context.Context, id, schoolID string) (*repository.SubscriptionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[id]
	if !ok || sub.SchoolID != schoolID {
		return nil, apperrors.NotFound("subscription request", id)
	}
	cp := *sub
	return &cp, nil
}

func (m *memStore) ListSubscriptions(ctx context.Context, schoolID string, status *workflow.Status, limit, offset int) ([]*repository.SubscriptionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*repository.SubscriptionRequest
	for _, sub := range m.subs {
		if sub.SchoolID != schoolID {
			continue
		}
		if status != nil && sub.Status != *status {
			continue
		}
		cp := *sub
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) TransitionSubscriptionStatus(ctx context.Context, id, schoolID string, from, to workflow.Status, audit *repository.AuditRecord) (*repository.SubscriptionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[id]
	if !ok || sub.SchoolID != schoolID {
		return nil, apperrors.NotFound("subscription request", id)
	}
	if sub.Status != from {
		return nil, apperrors.Newf(apperrors.ErrCodeConflict,
			"subscription request %q changed concurrently: status is no longer %q", id, from)
	}

	sub.Status = to
	sub.UpdatedAt = time.Now()
	m.appendAuditLocked(audit)
	cp := *sub
	return &cp, nil
}

// subStore adapts memStore to the SubscriptionStore interface, whose method
// names collide with FeeStore's.
type subStore struct{ *memStore }

func (s subStore) Create(ctx context.Context, sub *repository.SubscriptionRequest, audit *repository.AuditRecord) error {
	return s.CreateSubscription(ctx, sub, audit)
}

func (s subStore) GetByID(ctx context.Context, id, schoolID string) (*repository.SubscriptionRequest, error) {
	return s.GetSubscriptionByID(ctx, id, schoolID)
}

func (s subStore) List(ctx context.Context, schoolID string, status *workflow.Status, limit, offset int) ([]*repository.SubscriptionRequest, error) {
	return s.ListSubscriptions(ctx, schoolID, status, limit, offset)
}

func (s subStore) TransitionStatus(ctx context.Context, id, schoolID string, from, to workflow.Status, audit *repository.AuditRecord) (*repository.SubscriptionRequest, error) {
	return s.TransitionSubscriptionStatus(ctx, id, schoolID, from, to, audit)
}

// ── ProofStore ────────────────────────────────────────────────────────────────

type proofStore struct{ *memStore }

func (p proofStore) Insert(ctx context.Context, proof *repository.PaymentProof) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	proof.ID = uuid.NewString()
	proof.Status = repository.ProofUnderReview
	proof.CreatedAt = time.Now()
	cp := *proof
	p.proofs = append(p.proofs, &cp)
	return nil
}

func (p proofStore) ListByRequest(ctx context.Context, requestID, schoolID string) ([]*repository.PaymentProof, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*repository.PaymentProof
	for i := len(p.proofs) - 1; i >= 0; i-- {
		pr := p.proofs[i]
		if pr.RequestID == requestID && pr.SchoolID == schoolID {
			cp := *pr
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (p proofStore) GetLatest(ctx context.Context, requestID, schoolID string) (*repository.PaymentProof, error) {
	proofs, _ := p.ListByRequest(ctx, requestID, schoolID)
	if len(proofs) == 0 {
		return nil, apperrors.NotFound("payment proof for request", requestID)
	}
	return proofs[0], nil
}

func (p proofStore) MarkReviewed(ctx context.Context, id, schoolID, outcome, reviewedBy string, note *string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pr := range p.proofs {
		if pr.ID != id || pr.SchoolID != schoolID {
			continue
		}
		if pr.Status != repository.ProofUnderReview {
			return apperrors.New(apperrors.ErrCodeConflict, "proof not found or already reviewed")
		}
		now := time.Now()
		pr.Status = outcome
		pr.ReviewedBy = &reviewedBy
		pr.ReviewedAt = &now
		pr.ReviewNote = note
		return nil
	}
	return apperrors.New(apperrors.ErrCodeConflict, "proof not found or already reviewed")
}

// ── PaymentStore ──────────────────────────────────────────────────────────────

type paymentStore struct{ *memStore }

func (p paymentStore) Insert(ctx context.Context, payment *repository.Payment) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	payment.ID = uuid.NewString()
	payment.CreatedAt = time.Now()
	cp := *payment
	p.payments = append(p.payments, &cp)
	return nil
}

func (p paymentStore) SumForEntity(ctx context.Context, schoolID string, entityType workflow.EntityType, entityID string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sum := decimal.Zero
	for _, pay := range p.payments {
		if pay.SchoolID == schoolID && pay.EntityType == entityType && pay.EntityID == entityID {
			sum = sum.Add(pay.Amount)
		}
	}
	return sum, nil
}

func (p paymentStore) CountForEntity(ctx context.Context, schoolID string, entityType workflow.EntityType, entityID string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var n int64
	for _, pay := range p.payments {
		if pay.SchoolID == schoolID && pay.EntityType == entityType && pay.EntityID == entityID {
			n++
		}
	}
	return n, nil
}

func (p paymentStore) ListForEntity(ctx context.Context, schoolID string, entityType workflow.EntityType, entityID string) ([]*repository.Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*repository.Payment
	for _, pay := range p.payments {
		if pay.SchoolID == schoolID && pay.EntityType == entityType && pay.EntityID == entityID {
			cp := *pay
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ── AuditStore ────────────────────────────────────────────────────────────────

type auditStore struct{ *memStore }

func (a auditStore) Append(ctx context.Context, rec *repository.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.appendAuditLocked(rec)
	return nil
}

func (a auditStore) History(ctx context.Context, entityType workflow.EntityType, entityID, schoolID string) ([]*repository.AuditRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []*repository.AuditRecord
	for _, rec := range a.auditLog {
		if rec.EntityType == entityType && rec.EntityID == entityID && rec.SchoolID == schoolID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) appendAuditLocked(rec *repository.AuditRecord) {
	cp := *rec
	cp.ID = int64(len(m.auditLog) + 1)
	cp.CreatedAt = time.Now()
	m.auditLog = append(m.auditLog, &cp)
}

// ── EventPublisher ────────────────────────────────────────────────────────────

type eventRecorder struct{ *memStore }

func (e eventRecorder) Publish(_ context.Context, event client.WorkflowEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

// ── wiring ────────────────────────────────────────────────────────────────────

var (
	_ FeeStore          = (*memStore)(nil)
	_ SubscriptionStore = subStore{}
	_ ProofStore        = proofStore{}
	_ PaymentStore      = paymentStore{}
	_ AuditStore        = auditStore{}
	_ EventPublisher    = eventRecorder{}
)
