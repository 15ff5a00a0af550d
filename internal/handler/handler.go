// Package handler содержит HTTP-обработчики API сервиса гермес.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeninmail/hermes-system/internal/cost"
	"github.com/jeninmail/hermes-system/internal/middleware"
	"github.com/jeninmail/hermes-system/internal/model"
	"github.com/jeninmail/hermes-system/internal/repository"
	"github.com/jeninmail/hermes-system/internal/service"
	"github.com/jeninmail/hermes-system/internal/slack"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateEvent(ctx context.Context, name, theseusQueue string) (*service.CreateEventResult, error)
	CreateLetter(ctx context.Context, event *model.Event, in service.CreateLetterInput) (*service.CreateLetterResult, error)
	CalculateCost(mailType model.MailType, country string, weightGrams *int) (int64, error)
	CreateOrder(ctx context.Context, event *model.Event, in service.CreateOrderInput) (*service.CreateOrderResult, error)
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
	MarkEventPaid(ctx context.Context, eventID int64) (*service.MarkPaidResult, error)
	GetFinancialSummary(ctx context.Context) (*service.FinancialSummary, error)
	CheckPendingLetters(ctx context.Context) (service.CheckStats, error)
	HandleInteraction(ctx context.Context, in slack.Interaction) error
}

// Handler реализует HTTP-обработчики API сервиса гермес.
type Handler struct {
	service       Service
	logger        *zap.Logger
	eventAuth     *middleware.EventAuth
	adminAuth     *middleware.AdminAuth
	slackVerifier *middleware.SlackVerifier
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, eventAuth *middleware.EventAuth, adminAuth *middleware.AdminAuth, slackVerifier *middleware.SlackVerifier) *Handler {
	return &Handler{
		service:       s,
		logger:        logger,
		eventAuth:     eventAuth,
		adminAuth:     adminAuth,
		slackVerifier: slackVerifier,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	ErrorID string `json:"error_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeFieldError(w http.ResponseWriter, field, reason string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: reason, Field: field})
}

// writeInternalError логирует ошибку с коротким идентификатором и отдаёт
// клиенту общий ответ без деталей.
func (h *Handler) writeInternalError(w http.ResponseWriter, err error, msg string) {
	errorID := uuid.NewString()[:8]
	h.logger.Error(msg, zap.Error(err), zap.String("errorID", errorID))
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Error:   "internal server error",
		ErrorID: errorID,
	})
}

type letterRequest struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	AddressLine1   string `json:"address_line_1"`
	AddressLine2   string `json:"address_line_2"`
	City           string `json:"city"`
	State          string `json:"state"`
	PostalCode     string `json:"postal_code"`
	Country        string `json:"country"`
	RecipientEmail string `json:"recipient_email"`
	MailType       string `json:"mail_type"`
	WeightGrams    *int   `json:"weight_grams"`
	RubberStamps   string `json:"rubber_stamps"`
	Notes          string `json:"notes"`
}

func (r *letterRequest) validate() (field, reason string) {
	required := []struct {
		name  string
		value string
	}{
		{"first_name", r.FirstName},
		{"last_name", r.LastName},
		{"address_line_1", r.AddressLine1},
		{"city", r.City},
		{"state", r.State},
		{"postal_code", r.PostalCode},
		{"country", r.Country},
		{"rubber_stamps", r.RubberStamps},
	}
	for _, f := range required {
		if f.value == "" {
			return f.name, "field is required"
		}
	}

	if !model.MailType(r.MailType).Valid() {
		return "mail_type", "must be one of: lettermail, bubble_packet, parcel"
	}
	if r.WeightGrams != nil && *r.WeightGrams < 1 {
		return "weight_grams", "must be at least 1"
	}

	return "", ""
}

type letterResponse struct {
	LetterID              string  `json:"letter_id"`
	CostUSD               float64 `json:"cost_usd"`
	FormattedRubberStamps string  `json:"formatted_rubber_stamps"`
	Status                string  `json:"status"`
	TheseusURL            string  `json:"theseus_url"`
	QuoteRequired         bool    `json:"quote_required,omitempty"`
}

// CreateLetter обрабатывает создание письма от аутентифицированного события.
func (h *Handler) CreateLetter(w http.ResponseWriter, r *http.Request) {
	event, ok := middleware.GetEventFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req letterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if field, reason := req.validate(); field != "" {
		writeFieldError(w, field, reason)
		return
	}

	res, err := h.service.CreateLetter(r.Context(), event, service.CreateLetterInput{
		Recipient: model.Address{
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			AddressLine1: req.AddressLine1,
			AddressLine2: req.AddressLine2,
			City:         req.City,
			State:        req.State,
			PostalCode:   req.PostalCode,
			Country:      req.Country,
		},
		RecipientEmail: req.RecipientEmail,
		MailType:       model.MailType(req.MailType),
		WeightGrams:    req.WeightGrams,
		Stamps:         req.RubberStamps,
		Notes:          req.Notes,
	})
	if err != nil {
		var valErr *cost.ValidationError
		switch {
		case errors.As(err, &valErr):
			writeFieldError(w, valErr.Field, valErr.Reason)
		case errors.Is(err, service.ErrMailUnavailable):
			writeError(w, http.StatusBadGateway, "Mail service temporarily unavailable, please contact support")
		default:
			h.writeInternalError(w, err, "create letter error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, letterResponse{
		LetterID:              res.LetterID,
		CostUSD:               cost.CentsToUSD(res.CostCents),
		FormattedRubberStamps: res.FormattedText,
		Status:                string(res.Status),
		TheseusURL:            res.TheseusURL,
		QuoteRequired:         res.QuoteRequired,
	})
}

type costRequest struct {
	Country     string `json:"country"`
	MailType    string `json:"mail_type"`
	WeightGrams *int   `json:"weight_grams"`
}

type costResponse struct {
	CostCents int64   `json:"cost_cents"`
	CostUSD   float64 `json:"cost_usd"`
	Message   string  `json:"message,omitempty"`
}

// CalculateCost рассчитывает стоимость отправления без создания письма.
func (h *Handler) CalculateCost(w http.ResponseWriter, r *http.Request) {
	var req costRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !model.MailType(req.MailType).Valid() {
		writeFieldError(w, "mail_type", "must be one of: lettermail, bubble_packet, parcel")
		return
	}

	costCents, err := h.service.CalculateCost(model.MailType(req.MailType), req.Country, req.WeightGrams)
	if err != nil {
		if errors.Is(err, cost.ErrQuoteRequired) {
			writeJSON(w, http.StatusOK, costResponse{
				Message: "Custom quote required, the team will follow up",
			})
			return
		}
		var valErr *cost.ValidationError
		if errors.As(err, &valErr) {
			writeFieldError(w, valErr.Field, valErr.Reason)
			return
		}
		h.writeInternalError(w, err, "calculate cost error")
		return
	}

	writeJSON(w, http.StatusOK, costResponse{
		CostCents: costCents,
		CostUSD:   cost.CentsToUSD(costCents),
	})
}

type orderRequest struct {
	OrderText    string `json:"order_text"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	PhoneNumber  string `json:"phone_number"`
	AddressLine1 string `json:"address_line_1"`
	AddressLine2 string `json:"address_line_2"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
	OrderNotes   string `json:"order_notes"`
}

func (r *orderRequest) validate() (field, reason string) {
	required := []struct {
		name  string
		value string
	}{
		{"order_text", r.OrderText},
		{"first_name", r.FirstName},
		{"last_name", r.LastName},
		{"address_line_1", r.AddressLine1},
		{"city", r.City},
		{"state", r.State},
		{"postal_code", r.PostalCode},
		{"country", r.Country},
	}
	for _, f := range required {
		if f.value == "" {
			return f.name, "field is required"
		}
	}
	return "", ""
}

type orderResponse struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	StatusURL string    `json:"status_url"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateOrder обрабатывает создание заказа на фулфилмент.
// Персональные данные получателя из запроса не сохраняются и передаются
// только в уведомление чата.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	event, ok := middleware.GetEventFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if field, reason := req.validate(); field != "" {
		writeFieldError(w, field, reason)
		return
	}

	res, err := h.service.CreateOrder(r.Context(), event, service.CreateOrderInput{
		Text:         req.OrderText,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PhoneNumber:  req.PhoneNumber,
		AddressLine1: req.AddressLine1,
		AddressLine2: req.AddressLine2,
		City:         req.City,
		State:        req.State,
		PostalCode:   req.PostalCode,
		Country:      req.Country,
		Notes:        req.OrderNotes,
	})
	if err != nil {
		h.writeInternalError(w, err, "create order error")
		return
	}

	writeJSON(w, http.StatusCreated, orderResponse{
		OrderID:   res.OrderID,
		Status:    string(res.Status),
		StatusURL: res.StatusURL,
		CreatedAt: res.CreatedAt,
	})
}

type orderStatusResponse struct {
	OrderID         string     `json:"order_id"`
	Status          string     `json:"status"`
	TrackingCode    string     `json:"tracking_code,omitempty"`
	FulfillmentNote string     `json:"fulfillment_note,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	FulfilledAt     *time.Time `json:"fulfilled_at,omitempty"`
}

// GetOrderStatus возвращает публичный статус заказа по его идентификатору.
func (h *Handler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	order, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.writeInternalError(w, err, "get order error")
		return
	}

	writeJSON(w, http.StatusOK, orderStatusResponse{
		OrderID:         order.OrderID,
		Status:          string(order.Status),
		TrackingCode:    order.Tracking,
		FulfillmentNote: order.Note,
		CreatedAt:       order.CreatedAt,
		FulfilledAt:     order.FulfilledAt,
	})
}

type createEventRequest struct {
	Name      string `json:"name"`
	QueueName string `json:"queue_name"`
}

type eventResponse struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	TheseusQueue    string    `json:"theseus_queue"`
	BalanceDueCents int64     `json:"balance_due_cents"`
	LetterCount     int64     `json:"letter_count"`
	IsPaid          bool      `json:"is_paid"`
	CreatedAt       time.Time `json:"created_at"`
	APIKey          string    `json:"api_key,omitempty"`
}

// CreateEvent регистрирует новое событие. API-ключ возвращается
// единственный раз и нигде больше не доступен в открытом виде.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		writeFieldError(w, "name", "field is required")
		return
	}
	if req.QueueName == "" {
		writeFieldError(w, "queue_name", "field is required")
		return
	}

	res, err := h.service.CreateEvent(r.Context(), req.Name, req.QueueName)
	if err != nil {
		if errors.Is(err, repository.ErrEventExists) {
			writeError(w, http.StatusConflict, "event already exists")
			return
		}
		h.writeInternalError(w, err, "create event error")
		return
	}

	writeJSON(w, http.StatusCreated, eventResponse{
		ID:              res.Event.ID,
		Name:            res.Event.Name,
		TheseusQueue:    res.Event.TheseusQueue,
		BalanceDueCents: res.Event.BalanceDueCents,
		LetterCount:     res.Event.LetterCount,
		IsPaid:          res.Event.IsPaid,
		CreatedAt:       res.Event.CreatedAt,
		APIKey:          res.APIKey,
	})
}

// MarkEventPaid сбрасывает баланс события и помечает его оплаченным.
func (h *Handler) MarkEventPaid(w http.ResponseWriter, r *http.Request) {
	eventID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	res, err := h.service.MarkEventPaid(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		h.writeInternalError(w, err, "mark event paid error")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// GetFinancialSummary возвращает сводку по событиям с задолженностью.
func (h *Handler) GetFinancialSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetFinancialSummary(r.Context())
	if err != nil {
		h.writeInternalError(w, err, "financial summary error")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// CheckLetterStatus запускает внеочередную сверку статусов писем.
func (h *Handler) CheckLetterStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.CheckPendingLetters(r.Context())
	if err != nil {
		h.writeInternalError(w, err, "manual status check error")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// SlackInteractions обрабатывает интерактивные колбэки Slack.
// Ошибки валидации форм возвращаются как response_action: errors,
// остальные исходы — пустой ответ 200.
func (h *Handler) SlackInteractions(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form payload")
		return
	}

	payload := r.PostFormValue("payload")
	if payload == "" {
		writeError(w, http.StatusBadRequest, "missing payload")
		return
	}

	interaction, err := slack.ParseInteraction([]byte(payload))
	if err != nil {
		h.logger.Warn("unparsable interaction payload", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if err := h.service.HandleInteraction(r.Context(), interaction); err != nil {
		var fieldErrs service.FieldErrors
		if errors.As(err, &fieldErrs) {
			writeJSON(w, http.StatusOK, map[string]any{
				"response_action": "errors",
				"errors":          fieldErrs,
			})
			return
		}
		h.writeInternalError(w, err, "handle interaction error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Health возвращает состояние сервиса.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
