// Package service реализует бизнес-логику сервиса гермес: создание писем
// и заказов, сверку статусов с внешней почтовой системой и обработку
// интерактивных колбэков.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeninmail/hermes-system/internal/cost"
	"github.com/jeninmail/hermes-system/internal/metrics"
	"github.com/jeninmail/hermes-system/internal/model"
	"github.com/jeninmail/hermes-system/internal/repository"
	"github.com/jeninmail/hermes-system/internal/security"
	"github.com/jeninmail/hermes-system/internal/slack"
	"github.com/jeninmail/hermes-system/internal/stamps"
)

// ErrMailUnavailable возвращается, когда внешняя почтовая система недоступна.
// До успешного создания письма в ней локально ничего не сохраняется.
var ErrMailUnavailable = errors.New("mail service temporarily unavailable")

// Сбор за один заказ, добавляемый к балансу события.
const orderFeeCents = 100

const orderIDLength = 7

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateEvent(ctx context.Context, name, apiKeyHash, theseusQueue string) (*model.Event, error)
	GetEventByAPIKeyHash(ctx context.Context, apiKeyHash string) (*model.Event, error)
	GetEventByID(ctx context.Context, id int64) (*model.Event, error)
	CreateLetter(ctx context.Context, letter *model.Letter) (int64, error)
	SetLetterNotification(ctx context.Context, letterID string, ref model.MessageRef) error
	GetLetterByLetterID(ctx context.Context, letterID string) (*model.Letter, error)
	GetPendingLetters(ctx context.Context) ([]model.Letter, error)
	UpdateLetterStatus(ctx context.Context, letterID string, status model.LetterStatus) error
	MarkLetterShipped(ctx context.Context, letterID string, mailedAt time.Time) error
	CreateOrder(ctx context.Context, order *model.Order, feeCents int64) (int64, error)
	SetOrderNotification(ctx context.Context, orderID string, ref model.MessageRef) error
	GetOrderByPublicID(ctx context.Context, orderID string) (*model.Order, error)
	FulfillOrder(ctx context.Context, orderID, tracking, note string, fulfilledAt time.Time) error
	UpdateOrderTracking(ctx context.Context, orderID, tracking string) error
	MarkEventPaid(ctx context.Context, eventID int64) (int64, error)
	GetUnpaidEvents(ctx context.Context) ([]model.Event, error)
	GetLetterCountries(ctx context.Context, eventID int64) ([]string, error)
	GetLastLetterAt(ctx context.Context, eventID int64) (*time.Time, error)
}

// MailGateway описывает контракт внешней почтовой системы.
type MailGateway interface {
	CreateLetter(ctx context.Context, queueName string, addr model.Address, rubberStamps, recipientEmail, notes string) (string, error)
	GetLetterStatus(ctx context.Context, letterID string) (string, error)
	MarkMailed(ctx context.Context, letterID string) error
	LetterURL(letterID string) string
	PublicLetterURL(letterID string) string
	QueueURL(queueName string) string
}

// Notifier описывает контракт чат-системы уведомлений.
type Notifier interface {
	SendLetterCreated(ctx context.Context, info slack.LetterInfo) (model.MessageRef, error)
	UpdateLetterShipped(ctx context.Context, ref model.MessageRef, info slack.LetterInfo, mailedAt time.Time) error
	SendParcelQuoteRequest(ctx context.Context, info slack.LetterInfo, weightGrams int) error
	SendOrderCreated(ctx context.Context, info slack.OrderInfo) (model.MessageRef, error)
	UpdateOrderFulfilled(ctx context.Context, ref model.MessageRef, info slack.OrderInfo, tracking, note string, fulfilledAt time.Time) error
	SendErrorNotification(ctx context.Context, eventName, errorMessage, requestSummary string) error
	OpenFulfillOrderModal(ctx context.Context, triggerID, orderID string) error
	OpenUpdateTrackingModal(ctx context.Context, triggerID, orderID, currentTracking string) error
}

// FieldErrors содержит ошибки валидации по отдельным полям формы.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for field, reason := range e {
		parts = append(parts, field+": "+reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Service содержит бизнес-логику сервиса гермес.
type Service struct {
	repo          Repository
	mail          MailGateway
	notifier      Notifier
	logger        *zap.Logger
	checkInterval time.Duration
}

// NewService создаёт новый сервис с указанными зависимостями.
// Интервал сверки статусов по умолчанию — один час.
func NewService(repo Repository, mail MailGateway, notifier Notifier, logger *zap.Logger, checkInterval time.Duration) *Service {
	if checkInterval <= 0 {
		checkInterval = time.Hour
	}
	return &Service{
		repo:          repo,
		mail:          mail,
		notifier:      notifier,
		logger:        logger,
		checkInterval: checkInterval,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// CreateEventResult содержит созданное событие и его API-ключ.
// Ключ возвращается единственный раз и нигде не сохраняется в открытом виде.
type CreateEventResult struct {
	Event  *model.Event
	APIKey string
}

// CreateEvent регистрирует новое событие и выдаёт ему API-ключ.
func (s *Service) CreateEvent(ctx context.Context, name, theseusQueue string) (*CreateEventResult, error) {
	apiKey, err := security.GenerateAPIKey()
	if err != nil {
		return nil, err
	}

	event, err := s.repo.CreateEvent(ctx, name, security.HashAPIKey(apiKey), theseusQueue)
	if err != nil {
		return nil, err
	}

	return &CreateEventResult{Event: event, APIKey: apiKey}, nil
}

// GetEventByAPIKey возвращает событие по его API-ключу.
func (s *Service) GetEventByAPIKey(ctx context.Context, apiKey string) (*model.Event, error) {
	return s.repo.GetEventByAPIKeyHash(ctx, security.HashAPIKey(apiKey))
}

// CreateLetterInput содержит данные запроса на создание письма.
type CreateLetterInput struct {
	Recipient      model.Address
	RecipientEmail string
	MailType       model.MailType
	WeightGrams    *int
	Stamps         string
	Notes          string
}

// CreateLetterResult содержит данные созданного письма для ответа клиенту.
type CreateLetterResult struct {
	LetterID      string
	CostCents     int64
	FormattedText string
	Status        model.LetterStatus
	TheseusURL    string
	QuoteRequired bool
}

// CreateLetter рассчитывает стоимость, создаёт письмо во внешней почтовой
// системе, сохраняет его с атомарным обновлением баланса события и отправляет
// уведомление. Ошибка внешней системы прерывает операцию до каких-либо
// локальных записей; ошибка уведомления операцию не прерывает.
func (s *Service) CreateLetter(ctx context.Context, event *model.Event, in CreateLetterInput) (*CreateLetterResult, error) {
	quoteRequired := false

	costCents, err := cost.Calculate(in.MailType, in.Recipient.Country, in.WeightGrams)
	if err != nil {
		if !errors.Is(err, cost.ErrQuoteRequired) {
			return nil, err
		}
		// Посылка: стоимость определяется вручную, письмо создаётся с нулевой
		// стоимостью и отдельным запросом оценки.
		quoteRequired = true
		costCents = 0
	}

	formatted := stamps.Format(in.Stamps)

	letterID, err := s.mail.CreateLetter(ctx, event.TheseusQueue, in.Recipient, formatted, in.RecipientEmail, in.Notes)
	if err != nil {
		metrics.GatewayErrors.WithLabelValues("theseus").Inc()
		s.logger.Error("theseus create letter failed",
			zap.Error(err),
			zap.String("event", event.Name),
		)

		if notifyErr := s.notifier.SendErrorNotification(ctx, event.Name, err.Error(),
			fmt.Sprintf("Recipient: %s, %s", in.Recipient.FirstName, in.Recipient.Country)); notifyErr != nil {
			s.logger.Error("send error notification failed", zap.Error(notifyErr))
		}

		return nil, ErrMailUnavailable
	}

	letter := &model.Letter{
		LetterID:       letterID,
		EventID:        event.ID,
		Recipient:      in.Recipient,
		RecipientEmail: in.RecipientEmail,
		MailType:       in.MailType,
		WeightGrams:    in.WeightGrams,
		StampsRaw:      in.Stamps,
		StampsFmt:      formatted,
		Notes:          in.Notes,
		CostCents:      costCents,
		Status:         model.LetterStatusQueued,
	}

	if _, err := s.repo.CreateLetter(ctx, letter); err != nil {
		return nil, err
	}

	metrics.LettersCreated.WithLabelValues(string(in.MailType)).Inc()

	info := s.letterInfo(event, letter)

	ref, err := s.notifier.SendLetterCreated(ctx, info)
	if err != nil {
		metrics.GatewayErrors.WithLabelValues("slack").Inc()
		s.logger.Error("send letter notification failed", zap.Error(err), zap.String("letterID", letterID))
	} else if err := s.repo.SetLetterNotification(ctx, letterID, ref); err != nil {
		s.logger.Error("save letter notification ref failed", zap.Error(err), zap.String("letterID", letterID))
	}

	if quoteRequired {
		weight := 0
		if in.WeightGrams != nil {
			weight = *in.WeightGrams
		}
		if err := s.notifier.SendParcelQuoteRequest(ctx, info, weight); err != nil {
			metrics.GatewayErrors.WithLabelValues("slack").Inc()
			s.logger.Error("send parcel quote request failed", zap.Error(err), zap.String("letterID", letterID))
		}
	}

	return &CreateLetterResult{
		LetterID:      letterID,
		CostCents:     costCents,
		FormattedText: formatted,
		Status:        model.LetterStatusQueued,
		TheseusURL:    s.mail.PublicLetterURL(letterID),
		QuoteRequired: quoteRequired,
	}, nil
}

func (s *Service) letterInfo(event *model.Event, letter *model.Letter) slack.LetterInfo {
	return slack.LetterInfo{
		EventName:     event.Name,
		QueueName:     event.TheseusQueue,
		RecipientName: letter.Recipient.FullName(),
		Country:       letter.Recipient.Country,
		StampsRaw:     letter.StampsRaw,
		CostCents:     letter.CostCents,
		Notes:         letter.Notes,
		LetterID:      letter.LetterID,
		LetterURL:     s.mail.LetterURL(letter.LetterID),
		QueueURL:      s.mail.QueueURL(event.TheseusQueue),
	}
}

// CalculateCost рассчитывает стоимость отправления без создания письма.
func (s *Service) CalculateCost(mailType model.MailType, country string, weightGrams *int) (int64, error) {
	return cost.Calculate(mailType, country, weightGrams)
}

// CreateOrderInput содержит данные запроса на создание заказа.
// Персональные данные получателя передаются только в уведомление чата.
type CreateOrderInput struct {
	Text string

	FirstName    string
	LastName     string
	Email        string
	PhoneNumber  string
	AddressLine1 string
	AddressLine2 string
	City         string
	State        string
	PostalCode   string
	Country      string
	Notes        string
}

// CreateOrderResult содержит данные созданного заказа для ответа клиенту.
type CreateOrderResult struct {
	OrderID   string
	Status    model.OrderStatus
	StatusURL string
	CreatedAt time.Time
}

const orderIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func generateOrderID() string {
	buf := make([]byte, orderIDLength)
	for i := range buf {
		buf[i] = orderIDAlphabet[rand.Intn(len(orderIDAlphabet))]
	}
	return string(buf)
}

// OrderStatusURL возвращает публичную ссылку на страницу статуса заказа.
func OrderStatusURL(orderID string) string {
	return fmt.Sprintf("https://fulfillment.hackclub.com/odr!%s", orderID)
}

// CreateOrder создаёт заказ с уникальным публичным идентификатором и
// добавляет фиксированный сбор к балансу события. При коллизии идентификатора
// генерируется новый; блокировки между попытками не удерживаются, так как
// каждая проверка уникальности — отдельная вставка.
func (s *Service) CreateOrder(ctx context.Context, event *model.Event, in CreateOrderInput) (*CreateOrderResult, error) {
	order := &model.Order{
		EventID: event.ID,
		Text:    in.Text,
		Status:  model.OrderStatusPending,
	}

	for {
		order.OrderID = generateOrderID()
		_, err := s.repo.CreateOrder(ctx, order, orderFeeCents)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrDuplicateOrderID) {
			s.logger.Info("order id collision, regenerating", zap.String("orderID", order.OrderID))
			continue
		}
		return nil, err
	}

	metrics.OrdersCreated.Inc()

	statusURL := OrderStatusURL(order.OrderID)

	addressLines := []string{in.AddressLine1}
	if in.AddressLine2 != "" {
		addressLines = append(addressLines, in.AddressLine2)
	}
	addressLines = append(addressLines,
		fmt.Sprintf("%s, %s, %s", in.City, in.State, in.PostalCode),
		in.Country,
	)

	ref, err := s.notifier.SendOrderCreated(ctx, slack.OrderInfo{
		EventName:     event.Name,
		OrderID:       order.OrderID,
		OrderText:     in.Text,
		StatusURL:     statusURL,
		RecipientName: in.FirstName + " " + in.LastName,
		Email:         in.Email,
		PhoneNumber:   in.PhoneNumber,
		AddressLines:  addressLines,
		OrderNotes:    in.Notes,
	})
	if err != nil {
		metrics.GatewayErrors.WithLabelValues("slack").Inc()
		s.logger.Error("send order notification failed", zap.Error(err), zap.String("orderID", order.OrderID))
	} else if err := s.repo.SetOrderNotification(ctx, order.OrderID, ref); err != nil {
		s.logger.Error("save order notification ref failed", zap.Error(err), zap.String("orderID", order.OrderID))
	}

	return &CreateOrderResult{
		OrderID:   order.OrderID,
		Status:    model.OrderStatusPending,
		StatusURL: statusURL,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// GetOrder возвращает заказ по публичному идентификатору.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return s.repo.GetOrderByPublicID(ctx, orderID)
}
