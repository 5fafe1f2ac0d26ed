package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/skolaris/be-school-fees/internal/apperrors"
	"github.com/skolaris/be-school-fees/internal/httpx"
	"github.com/skolaris/be-school-fees/internal/service"
	"github.com/skolaris/be-school-fees/internal/workflow"
)

// Tenant scope and actor identity ride on headers until the identity service
// fronts this API with real tokens.
const (
	headerSchoolID = "X-School-ID"
	headerActorID  = "X-Actor-ID"
)

// HTTPHandler exposes the workflow, evidence, payment, and reconciliation
// services over HTTP.
type HTTPHandler struct {
	workflows      *service.WorkflowService
	evidence       *service.EvidenceService
	payments       *service.PaymentService
	reconciliation *service.ReconciliationService
	log            zerolog.Logger
	maxUploadBytes int64
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	workflows *service.WorkflowService,
	evidence *service.EvidenceService,
	payments *service.PaymentService,
	reconciliation *service.ReconciliationService,
	log zerolog.Logger,
	maxUploadBytes int64,
) *HTTPHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = service.DefaultMaxUploadBytes
	}
	return &HTTPHandler{
		workflows:      workflows,
		evidence:       evidence,
		payments:       payments,
		reconciliation: reconciliation,
		log:            log,
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes mounts every API route on the given router.
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Route("/fees", func(r chi.Router) {
		r.Post("/", h.CreateFee)
		r.Get("/", h.ListFees)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetFee)
			r.Delete("/", h.DeleteFee)
			r.Post("/transition", h.TransitionFee)
			r.Get("/history", h.FeeHistory)
			r.Get("/balance", h.FeeBalance)
		})
	})

	r.Route("/subscriptions", func(r chi.Router) {
		r.Post("/", h.CreateSubscription)
		r.Get("/", h.ListSubscriptions)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetSubscription)
			r.Post("/transition", h.TransitionSubscription)
			r.Post("/proofs", h.AttachProof)
			r.Get("/proofs", h.ListProofs)
			r.Post("/review", h.ReviewProof)
			r.Get("/history", h.SubscriptionHistory)
			r.Get("/balance", h.SubscriptionBalance)
		})
	})

	r.Route("/payments", func(r chi.Router) {
		r.Post("/", h.RecordPayment)
		r.Get("/", h.ListPayments)
	})

	r.Get("/reports/defaulters", h.ListDefaulters)
}

// ── Fee structures ────────────────────────────────────────────────────────────

// CreateFee handles POST /fees.
func (h *HTTPHandler) CreateFee(w http.ResponseWriter, r *http.Request) {
	schoolID, actorID, err := h.scope(r)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	var body struct {
		Name      string          `json:"name"`
		ClassName *string         `json:"class_name"`
		Period    string          `json:"period"`
		Amount    decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.Error(w, r, h.log, apperrors.New(apperrors.ErrCodeValidation, "invalid request body"))
		return
	}

	fee, err := h.workflows.CreateFee(r.Context(), service.CreateFeeRequest{
		SchoolID:  schoolID,
		Name:      body.Name,
		ClassName: body.ClassName,
		Period:    body.Period,
		Amount:    body.Amount,
		ActorID:   actorID,
	})
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, fee)
}

// GetFee handles GET /fees/{id}.
func (h *HTTPHandler) GetFee(w http.ResponseWriter, r *http.Request) {
	schoolID, err := h.schoolID(r)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	fee, err := h.workflows.GetFee(r.Context(), chi.URLParam(r, "id"), schoolID)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	httpx.JSON(w, http.StatusOK, fee)
}

// ListFees handles GET /fees.
func (h *HTTPHandler) ListFees(w http.ResponseWriter, r *http.Request) {
	schoolID, err := h.schoolID(r)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	status, err := statusFilter(r, workflow.EntityFee)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	limit, offset := pagination(r)

	fees, err := h.workflows.ListFees(r.Context(), schoolID, status, limit, offset)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{"fees": fees, "limit": limit, "offset": offset})
}

// TransitionFee handles POST /fees/{id}/transition.
func (h *HTTPHandler) TransitionFee(w http.ResponseWriter, r *http.Request) {
	schoolID, actorID, err := h.scope(r)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	var body struct {
		To     string  `json:"to"`
		Reason *string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.Error(w, r, h.log, apperrors.New(apperrors.ErrCodeValidation, "invalid request body"))
		return
	}

	fee, err := h.workflows.TransitionFee(r.Context(), chi.URLParam(r, "id"), schoolID, workflow.Status(body.To), actorID, body.Reason)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	httpx.JSON(w, http.StatusOK, fee)
}

// DeleteFee handles DELETE /fees/{id}. Fees with recorded payments are
// archived rather than removed; the response says which happened.
func (h *HTTPHandler) DeleteFee(w http.ResponseWriter, r *http.Request) {
	schoolID, actorID, err := h.scope(r)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	result, err := h.workflows.DeleteFee(r.Context(), chi.URLParam(r, "id"), schoolID, actorID)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	if result.Archived {
		httpx.JSON(w, http.StatusOK, map[string]any{"archived": true, "fee": result.Fee})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FeeHistory handles GET /fees/{id}/history.
func (h *HTTPHandler) FeeHistory(w http.ResponseWriter, r *http.Request) {
	h.history(w, r, workflow.EntityFee)
}

// FeeBalance handles GET /fees/{id}/balance.
func (h *HTTPHandler) FeeBalance(w http.ResponseWriter, r *http.Request) {
	schoolID, err := h.schoolID(r)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	balance, err := h.reconciliation.ComputeFeeBalance(r.Context(), chi.URLParam(r, "id"), schoolID)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	httpx.JSON(w, http.StatusOK, balance)
}

// ── Subscription requests ─────────────────────────────────────────────────────

// CreateSubscription handles POST /subscriptions.
func (h *HTTPHandler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	schoolID, actorID, err := h.scope(r)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	var body struct {
		StudentID      string          `json:"student_id"`
		PlanName       string          `json:"plan_name"`
		Period         string          `json:"period"`
		ExpectedAmount decimal.Decimal `json:"expected_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.Error(w, r, h.log, apperrors.New(apperrors.ErrCodeValidation, "invalid request body"))
		return
	}

	sub, err := h.workflows.CreateSubscription(r.Context(), service.CreateSubscriptionRequest{
		SchoolID:       schoolID,
		StudentID:      body.StudentID,
		PlanName:       body.PlanName,
		Period:         body.Period,
		ExpectedAmount: body.ExpectedAmount,
		ActorID:        actorID,
	})
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, sub)
}

// GetSubscription handles GET /subscriptions/{id}.
func (h *HTTPHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	schoolID, err := h.schoolID(r)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	sub, err := h.workflows.GetSubscription(r.Context(), chi.URLParam(r, "id"), schoolID)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	httpx.JSON(w, http.StatusOK, sub)
}

// ListSubscriptions handles GET /subscriptions.
func (h *HTTPHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	schoolID, err := h.schoolID(r)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	status, err := statusFilter(r, workflow.EntitySubscription)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	limit, offset := pagination(r)

	subs, err := h.workflows.ListSubscriptions(r.Context(), schoolID, status, limit, offset)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{"subscriptions": subs, "limit": limit, "offset": offset})
}

// TransitionSubscription handles POST /subscriptions/{id}/transition.
func (h *HTTPHandler) TransitionSubscription(w http.ResponseWriter, r *http.Request) {
	schoolID, actorID, err := h.scope(r)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	var body struct {
		To     string  `json:"to"`
		Reason *string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.Error(w, r, h.log, apperrors.New(apperrors.ErrCodeValidation, "invalid request body"))
		return
	}

	sub, err := h.workflows.TransitionSubscription(r.Context(), chi.URLParam(r, "id"), schoolID, workflow.Status(body.To), actorID, body.Reason)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	httpx.JSON(w, http.StatusOK, sub)
}

// AttachProof handles POST /subscriptions/{id}/proofs. The body is multipart
// form data with a "file" part plus "declared_amount" and "transfer_date"
// (RFC 3339 date) fields.
func (h *HTTPHandler) AttachProof(w http.ResponseWriter, r *http.Request) {
	schoolID, actorID, err := h.scope(r)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	// One extra KiB admits the form field overhead around a maximum-size file.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1024)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		httpx.Error(w, r, h.log, apperrors.New(apperrors.ErrCodeValidation, "invalid or oversized multipart body"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Error(w, r, h.log, apperrors.InvalidInput("file", "file part is required"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		httpx.Error(w, r, h.log, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to read uploaded file"))
		return
	}

	amount, err := decimal.NewFromString(r.FormValue("declared_amount"))
	if err != nil {
		httpx.Error(w, r, h.log, apperrors.InvalidInput("declared_amount", "declared_amount must be a decimal number"))
		return
	}

	transferDate, err := time.Parse("2006-01-02", r.FormValue("transfer_date"))
	if err != nil {
		httpx.Error(w, r, h.log, apperrors.InvalidInput("transfer_date", "transfer_date must be a YYYY-MM-DD date"))
		return
	}

	proof, err := h.evidence.AttachProof(r.Context(), chi.URLParam(r, "id"), schoolID, service.ProofUpload{
		FileName:       header.Filename,
		Content:        content,
		DeclaredAmount: amount,
		TransferDate:   transferDate,
		ActorID:        actorID,
	})
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, proof)
}

// ListProofs handles GET /subscriptions/{id}/proofs.
func (h *HTTPHandler) ListProofs(w http.ResponseWriter, r *http.Request) {
	schoolID, err := h.schoolID(r)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	proofs, err := h.evidence.ListProofs(r.Context(), chi.URLParam(r, "id"), schoolID)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{"proofs": proofs})
}

// ReviewProof handles POST /subscriptions/{id}/review.
func (h *HTTPHandler) ReviewProof(w http.ResponseWriter, r *http.Request) {
	schoolID, actorID, err := h.scope(r)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	var body struct {
		Decision string  `json:"decision"`
		Note     *string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.Error(w, r, h.log, apperrors.New(apperrors.ErrCodeValidation, "invalid request body"))
		return
	}

	sub, err := h.evidence.ReviewProof(r.Context(), chi.URLParam(r, "id"), schoolID, body.Decision, actorID, body.Note)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	httpx.JSON(w, http.StatusOK, sub)
}

// SubscriptionHistory handles GET /subscriptions/{id}/history.
func (h *HTTPHandler) SubscriptionHistory(w http.ResponseWriter, r *http.Request) {
	h.history(w, r, workflow.EntitySubscription)
}

// SubscriptionBalance handles GET /subscriptions/{id}/balance.
func (h *HTTPHandler) SubscriptionBalance(w http.ResponseWriter, r *http.Request) {
	schoolID, err := h.schoolID(r)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	balance, err := h.reconciliation.ComputeSubscriptionBalance(r.Context(), chi.URLParam(r, "id"), schoolID)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	httpx.JSON(w, http.StatusOK, balance)
}

// ── Payments and reports ──────────────────────────────────────────────────────

// RecordPayment handles POST /payments.
func (h *HTTPHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	schoolID, actorID, err := h.scope(r)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	var body struct {
		EntityType string          `json:"entity_type"`
		EntityID   string          `json:"entity_id"`
		PayerID    *string         `json:"payer_id"`
		Amount     decimal.Decimal `json:"amount"`
		PaidAt     time.Time       `json:"paid_at"`
		Method     *string         `json:"method"`
		Reference  *string         `json:"reference"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.Error(w, r, h.log, apperrors.New(apperrors.ErrCodeValidation, "invalid request body"))
		return
	}

	payment, err := h.payments.RecordPayment(r.Context(), service.RecordPaymentRequest{
		SchoolID:   schoolID,
		EntityType: workflow.EntityType(body.EntityType),
		EntityID:   body.EntityID,
		PayerID:    body.PayerID,
		Amount:     body.Amount,
		PaidAt:     body.PaidAt,
		Method:     body.Method,
		Reference:  body.Reference,
		ActorID:    actorID,
	})
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, payment)
}

// ListPayments handles GET /payments?entity_type=...&entity_id=...
func (h *HTTPHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	schoolID, err := h.schoolID(r)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	entityType := workflow.EntityType(r.URL.Query().Get("entity_type"))
	entityID := r.URL.Query().Get("entity_id")
	if entityID == "" {
		httpx.Error(w, r, h.log, apperrors.InvalidInput("entity_id", "entity_id is required"))
		return
	}

	payments, err := h.payments.ListPayments(r.Context(), schoolID, entityType, entityID)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{"payments": payments})
}

// ListDefaulters handles GET /reports/defaulters.
func (h *HTTPHandler) ListDefaulters(w http.ResponseWriter, r *http.Request) {
	schoolID, err := h.schoolID(r)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	entries, err := h.reconciliation.ListFeeDefaulters(r.Context(), schoolID)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{"defaulters": entries})
}

// ── helpers ───────────────────────────────────────────────────────────────────

func (h *HTTPHandler) history(w http.ResponseWriter, r *http.Request, entityType workflow.EntityType) {
	schoolID, err := h.schoolID(r)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	records, err := h.workflows.History(r.Context(), entityType, chi.URLParam(r, "id"), schoolID)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{"history": records})
}

func (h *HTTPHandler) schoolID(r *http.Request) (string, error) {
	schoolID := r.Header.Get(headerSchoolID)
	if schoolID == "" {
		return "", apperrors.New(apperrors.ErrCodeUnauthorized, "X-School-ID header is required")
	}
	return schoolID, nil
}

func (h *HTTPHandler) scope(r *http.Request) (schoolID, actorID string, err error) {
	schoolID, err = h.schoolID(r)
	if err != nil {
		return "", "", err
	}
	actorID = r.Header.Get(headerActorID)
	if actorID == "" {
		return "", "", apperrors.New(apperrors.ErrCodeUnauthorized, "X-Actor-ID header is required")
	}
	return schoolID, actorID, nil
}

func statusFilter(r *http.Request, entityType workflow.EntityType) (*workflow.Status, error) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return nil, nil
	}
	status := workflow.Status(raw)
	if !workflow.Known(entityType, status) {
		return nil, apperrors.InvalidInput("status", "unknown status "+strconv.Quote(raw))
	}
	return &status, nil
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 50
	}
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
