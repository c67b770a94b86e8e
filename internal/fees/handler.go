package fees

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/madrasa-erp/madrasa/internal/platform/httpx"
	"github.com/madrasa-erp/madrasa/internal/shared"
)

// IdempotencyHeader deduplicates retried payment submissions.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes the fee billing JSON API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers fee billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/fees", func(r chi.Router) {
		r.Post("/", h.createFee)
		r.Get("/", h.listFees)
		r.Get("/statistics", h.statistics)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getFee)
			r.Post("/waivers/{waiverID}", h.applyWaiver)
			r.Post("/installments", h.createInstallments)
			r.Get("/installments", h.listInstallments)
			r.Post("/late-fees", h.applyLateFees)
			r.Post("/payments", h.recordPayment)
			r.Get("/payments", h.listPayments)
		})
	})

	r.Route("/waivers", func(r chi.Router) {
		r.Post("/", h.createWaiver)
		r.Post("/{id}/approve", h.approveWaiver)
		r.Post("/{id}/reject", h.rejectWaiver)
	})
	r.Get("/students/{id}/waivers/applicable", h.applicableWaivers)

	r.Route("/late-fee-policies", func(r chi.Router) {
		r.Post("/", h.createPolicy)
		r.Get("/", h.listPolicies)
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", httpx.ErrValidation, name)
	}
	return id, nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", httpx.ErrValidation, raw)
	}
	return t, nil
}

func queryInt(r *http.Request, key string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(key))
	return v
}

// --- fees ---

func (h *Handler) createFee(w http.ResponseWriter, r *http.Request) {
	var req createFeeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !httpx.Validate(w, h.validator, req) {
		return
	}
	due, err := parseDate(req.DueDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	fee, err := h.service.Create(r.Context(), CreateFeeInput{
		StudentID:   req.StudentID,
		FeeType:     req.FeeType,
		Description: req.Description,
		Amount:      req.Amount,
		DueDate:     due,
		CreatedBy:   shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, r, "create fee", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toFeeResponse(fee))
}

func (h *Handler) listFees(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, err := ParseFeeStatus(q.Get("status"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page := shared.NewPagination(queryInt(r, "page"), queryInt(r, "per_page"), 0)
	studentID, _ := strconv.ParseInt(q.Get("student_id"), 10, 64)
	filter := FeeFilter{
		Status:    status,
		StudentID: studentID,
		FeeType:   q.Get("fee_type"),
		Limit:     page.PerPage,
		Offset:    page.Offset(),
	}
	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list fees", err)
		return
	}
	out := make([]feeResponse, 0, len(items))
	for _, f := range items {
		out = append(out, toFeeResponse(f))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       out,
		"pagination": shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) getFee(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	fee, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get fee", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFeeResponse(fee))
}

func (h *Handler) statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStatistics(r.Context())
	if err != nil {
		h.fail(w, r, "fee statistics", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStatisticsResponse(stats))
}

// --- waivers ---

func (h *Handler) createWaiver(w http.ResponseWriter, r *http.Request) {
	var req createWaiverRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !httpx.Validate(w, h.validator, req) {
		return
	}
	from, err := parseDate(req.ValidFrom)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	until, err := parseDate(req.ValidUntil)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	waiver, err := h.service.CreateWaiver(r.Context(), CreateWaiverInput{
		StudentID:  req.StudentID,
		FeeID:      req.FeeID,
		WaiverType: WaiverType(req.WaiverType),
		AmountType: AmountType(req.AmountType),
		Amount:     req.Amount,
		ValidFrom:  from,
		ValidUntil: until,
		Reason:     req.Reason,
		CreatedBy:  shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, r, "create waiver", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toWaiverResponse(waiver))
}

func (h *Handler) approveWaiver(w http.ResponseWriter, r *http.Request) {
	h.reviewWaiver(w, r, h.service.ApproveWaiver)
}

func (h *Handler) rejectWaiver(w http.ResponseWriter, r *http.Request) {
	h.reviewWaiver(w, r, h.service.RejectWaiver)
}

func (h *Handler) reviewWaiver(w http.ResponseWriter, r *http.Request, review func(context.Context, int64, int64) (FeeWaiver, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	waiver, err := review(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "review waiver", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toWaiverResponse(waiver))
}

func (h *Handler) applyWaiver(w http.ResponseWriter, r *http.Request) {
	feeID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	waiverID, err := pathID(r, "waiverID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	fee, err := h.service.ApplyWaiverToFee(r.Context(), feeID, waiverID)
	if err != nil {
		h.fail(w, r, "apply waiver", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFeeResponse(fee))
}

func (h *Handler) applicableWaivers(w http.ResponseWriter, r *http.Request) {
	studentID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.GetApplicableWaivers(r.Context(), studentID)
	if err != nil {
		h.fail(w, r, "applicable waivers", err)
		return
	}
	out := make([]waiverResponse, 0, len(list))
	for _, wv := range list {
		out = append(out, toWaiverResponse(wv))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// --- installments ---

func (h *Handler) createInstallments(w http.ResponseWriter, r *http.Request) {
	feeID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req installmentPlanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !httpx.Validate(w, h.validator, req) {
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	plan, err := h.service.CreateInstallmentPlan(r.Context(), feeID, InstallmentPlanInput{
		Count:     req.Count,
		StartDate: start,
		Frequency: Frequency(req.Frequency),
	})
	if err != nil {
		h.fail(w, r, "create installment plan", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"data": toInstallmentResponses(plan)})
}

func (h *Handler) listInstallments(w http.ResponseWriter, r *http.Request) {
	feeID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	plan, err := h.service.ListInstallments(r.Context(), feeID)
	if err != nil {
		h.fail(w, r, "list installments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": toInstallmentResponses(plan)})
}

// --- late fees ---

func (h *Handler) applyLateFees(w http.ResponseWriter, r *http.Request) {
	feeID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	fee, err := h.service.CalculateAndApplyLateFees(r.Context(), feeID)
	if err != nil {
		h.fail(w, r, "apply late fees", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFeeResponse(fee))
}

func (h *Handler) createPolicy(w http.ResponseWriter, r *http.Request) {
	var req createPolicyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !httpx.Validate(w, h.validator, req) {
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	policy, err := h.service.CreatePolicy(r.Context(), CreatePolicyInput{
		Name:            req.Name,
		FeeType:         req.FeeType,
		GracePeriodDays: req.GracePeriodDays,
		CalculationType: CalculationType(req.CalculationType),
		Amount:          req.Amount,
		MaxLateFee:      req.MaxLateFee,
		Compound:        req.Compound,
		ExcludeHolidays: req.ExcludeHolidays,
		IsActive:        active,
	})
	if err != nil {
		h.fail(w, r, "create late fee policy", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPolicyResponse(policy))
}

func (h *Handler) listPolicies(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListPolicies(r.Context())
	if err != nil {
		h.fail(w, r, "list late fee policies", err)
		return
	}
	out := make([]policyResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toPolicyResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// --- payments ---

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	feeID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req recordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !httpx.Validate(w, h.validator, req) {
		return
	}
	paidAt, err := parseDate(req.PaidAt)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payment, fee, err := h.service.RecordPayment(r.Context(), feeID, RecordPaymentInput{
		Amount:         req.Amount,
		Method:         PaymentMethod(req.Method),
		Note:           req.Note,
		ReceivedBy:     shared.ActorFromContext(r.Context()),
		PaidAt:         paidAt,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		h.fail(w, r, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"payment": toPaymentResponse(payment),
		"fee":     toFeeResponse(fee),
	})
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	feeID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.ListPayments(r.Context(), feeID)
	if err != nil {
		h.fail(w, r, "list payments", err)
		return
	}
	out := make([]paymentResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toPaymentResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}
