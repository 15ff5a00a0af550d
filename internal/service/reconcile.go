package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jeninmail/hermes-system/internal/cost"
	"github.com/jeninmail/hermes-system/internal/metrics"
	"github.com/jeninmail/hermes-system/internal/model"
	"github.com/jeninmail/hermes-system/internal/slack"
)

// CheckStats содержит итоги одного прогона сверки статусов.
type CheckStats struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Mailed  int `json:"mailed"`
}

// StartStatusChecks запускает фоновый процесс сверки статусов писем
// с внешней почтовой системой.
func (s *Service) StartStatusChecks(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats, err := s.CheckPendingLetters(ctx)
				if err != nil {
					s.logger.Error("status check run failed", zap.Error(err))
					continue
				}
				s.logger.Info("status check complete",
					zap.Int("checked", stats.Checked),
					zap.Int("updated", stats.Updated),
					zap.Int("mailed", stats.Mailed),
				)
			}
		}
	}()
}

// CheckPendingLetters опрашивает внешнюю почтовую систему по всем письмам
// в неконечных статусах и применяет изменившиеся статусы. Каждое письмо
// обрабатывается и фиксируется независимо: ошибка шлюза или нераспознанный
// статус для одного письма логируется и не прерывает обработку остальных.
func (s *Service) CheckPendingLetters(ctx context.Context) (CheckStats, error) {
	metrics.StatusCheckRuns.Inc()

	var stats CheckStats

	letters, err := s.repo.GetPendingLetters(ctx)
	if err != nil {
		return stats, err
	}

	s.logger.Info("starting letter status check", zap.Int("pending", len(letters)))

	for _, letter := range letters {
		stats.Checked++
		metrics.LettersChecked.Inc()

		raw, err := s.mail.GetLetterStatus(ctx, letter.LetterID)
		if err != nil {
			metrics.GatewayErrors.WithLabelValues("theseus").Inc()
			s.logger.Error("get letter status failed",
				zap.Error(err),
				zap.String("letterID", letter.LetterID),
			)
			continue
		}

		newStatus, ok := model.ParseLetterStatus(raw)
		if !ok {
			// Неизвестный статус не должен портить локальное состояние.
			s.logger.Warn("unknown letter status from theseus",
				zap.String("status", raw),
				zap.String("letterID", letter.LetterID),
			)
			continue
		}

		if newStatus == letter.Status {
			continue
		}

		s.logger.Info("letter status changed",
			zap.String("letterID", letter.LetterID),
			zap.String("from", string(letter.Status)),
			zap.String("to", string(newStatus)),
		)

		if newStatus == model.LetterStatusShipped {
			mailedAt := time.Now().UTC()
			if err := s.repo.MarkLetterShipped(ctx, letter.LetterID, mailedAt); err != nil {
				s.logger.Error("mark letter shipped failed", zap.Error(err), zap.String("letterID", letter.LetterID))
				continue
			}

			stats.Updated++
			stats.Mailed++
			metrics.LettersUpdated.Inc()
			metrics.LettersMailed.Inc()

			s.notifyLetterShipped(ctx, &letter, mailedAt)
			continue
		}

		if err := s.repo.UpdateLetterStatus(ctx, letter.LetterID, newStatus); err != nil {
			s.logger.Error("update letter status failed", zap.Error(err), zap.String("letterID", letter.LetterID))
			continue
		}

		stats.Updated++
		metrics.LettersUpdated.Inc()
	}

	return stats, nil
}

// notifyLetterShipped обновляет сообщение чата для отправленного письма.
// Ошибки только логируются: локальный переход уже зафиксирован.
func (s *Service) notifyLetterShipped(ctx context.Context, letter *model.Letter, mailedAt time.Time) {
	if !letter.Notification.Set() {
		return
	}

	event, err := s.repo.GetEventByID(ctx, letter.EventID)
	if err != nil {
		s.logger.Error("get event for shipped notification failed", zap.Error(err), zap.String("letterID", letter.LetterID))
		return
	}

	if err := s.notifier.UpdateLetterShipped(ctx, letter.Notification, s.letterInfo(event, letter), mailedAt); err != nil {
		metrics.GatewayErrors.WithLabelValues("slack").Inc()
		s.logger.Error("update shipped notification failed", zap.Error(err), zap.String("letterID", letter.LetterID))
	}
}

// MarkLetterMailed обрабатывает нажатие "Mark as Mailed": письмо переводится
// в shipped локально даже при отказе внешней почтовой системы — человек
// подтвердил фактическую отправку, и его действие не должно блокироваться
// временной ошибкой шлюза. Повторное нажатие на уже отправленном письме —
// no-op.
func (s *Service) MarkLetterMailed(ctx context.Context, letterID string) error {
	letter, err := s.repo.GetLetterByLetterID(ctx, letterID)
	if err != nil {
		return err
	}

	if letter.Status == model.LetterStatusShipped {
		s.logger.Info("letter already shipped, ignoring mark mailed", zap.String("letterID", letterID))
		return nil
	}

	if err := s.mail.MarkMailed(ctx, letterID); err != nil {
		metrics.GatewayErrors.WithLabelValues("theseus").Inc()
		s.logger.Error("theseus mark mailed failed, keeping local transition",
			zap.Error(err),
			zap.String("letterID", letterID),
		)
	}

	mailedAt := time.Now().UTC()
	if err := s.repo.MarkLetterShipped(ctx, letterID, mailedAt); err != nil {
		return err
	}

	metrics.LettersMailed.Inc()

	letter.Status = model.LetterStatusShipped
	letter.MailedAt = &mailedAt
	s.notifyLetterShipped(ctx, letter, mailedAt)

	return nil
}

const (
	maxTrackingLen = 64
	maxNoteLen     = 500
)

// FulfillOrder переводит заказ в статус fulfilled с необязательными
// трекинг-кодом и заметкой. Ошибки валидации возвращаются по полям.
func (s *Service) FulfillOrder(ctx context.Context, orderID, tracking, note string) error {
	fieldErrs := FieldErrors{}
	if len(tracking) > maxTrackingLen {
		fieldErrs[slack.BlockTrackingCode] = "Tracking code must be 64 characters or less"
	}
	if len(note) > maxNoteLen {
		fieldErrs[slack.BlockFulfillmentNote] = "Note must be 500 characters or less"
	}
	if len(fieldErrs) > 0 {
		return fieldErrs
	}

	order, err := s.repo.GetOrderByPublicID(ctx, orderID)
	if err != nil {
		return err
	}

	fulfilledAt := time.Now().UTC()
	if err := s.repo.FulfillOrder(ctx, orderID, tracking, note, fulfilledAt); err != nil {
		return err
	}

	s.logger.Info("order fulfilled", zap.String("orderID", orderID))

	s.notifyOrderFulfilled(ctx, order, tracking, note, fulfilledAt)
	return nil
}

// UpdateTracking изменяет трекинг-код уже выполненного заказа, не трогая
// время фулфилмента и заметку.
func (s *Service) UpdateTracking(ctx context.Context, orderID, tracking string) error {
	fieldErrs := FieldErrors{}
	if tracking == "" {
		fieldErrs[slack.BlockTrackingCode] = "Tracking code is required"
	} else if len(tracking) > maxTrackingLen {
		fieldErrs[slack.BlockTrackingCode] = "Tracking code must be 64 characters or less"
	}
	if len(fieldErrs) > 0 {
		return fieldErrs
	}

	order, err := s.repo.GetOrderByPublicID(ctx, orderID)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateOrderTracking(ctx, orderID, tracking); err != nil {
		return err
	}

	fulfilledAt := order.CreatedAt
	if order.FulfilledAt != nil {
		fulfilledAt = *order.FulfilledAt
	}

	s.notifyOrderFulfilled(ctx, order, tracking, order.Note, fulfilledAt)
	return nil
}

func (s *Service) notifyOrderFulfilled(ctx context.Context, order *model.Order, tracking, note string, fulfilledAt time.Time) {
	if !order.Notification.Set() {
		return
	}

	event, err := s.repo.GetEventByID(ctx, order.EventID)
	if err != nil {
		s.logger.Error("get event for order notification failed", zap.Error(err), zap.String("orderID", order.OrderID))
		return
	}

	info := slack.OrderInfo{
		EventName: event.Name,
		OrderID:   order.OrderID,
		OrderText: order.Text,
		StatusURL: OrderStatusURL(order.OrderID),
	}

	if err := s.notifier.UpdateOrderFulfilled(ctx, order.Notification, info, tracking, note, fulfilledAt); err != nil {
		metrics.GatewayErrors.WithLabelValues("slack").Inc()
		s.logger.Error("update order notification failed", zap.Error(err), zap.String("orderID", order.OrderID))
	}
}

// HandleInteraction обрабатывает разобранный интерактивный колбэк.
// Ошибки валидации форм возвращаются как FieldErrors для отображения
// в модальном окне.
func (s *Service) HandleInteraction(ctx context.Context, in slack.Interaction) error {
	switch in.Kind {
	case slack.InteractionMarkMailed:
		return s.MarkLetterMailed(ctx, in.LetterID)

	case slack.InteractionFulfillOrderOpen:
		if in.TriggerID == "" {
			return nil
		}
		return s.notifier.OpenFulfillOrderModal(ctx, in.TriggerID, in.OrderID)

	case slack.InteractionFulfillOrderSubmit:
		return s.FulfillOrder(ctx, in.OrderID, in.TrackingCode, in.FulfillmentNote)

	case slack.InteractionUpdateTrackingOpen:
		if in.TriggerID == "" {
			return nil
		}

		order, err := s.repo.GetOrderByPublicID(ctx, in.OrderID)
		if err != nil {
			return err
		}
		return s.notifier.OpenUpdateTrackingModal(ctx, in.TriggerID, in.OrderID, order.Tracking)

	case slack.InteractionUpdateTrackingSubmit:
		return s.UpdateTracking(ctx, in.OrderID, in.TrackingCode)

	case slack.InteractionUnknown:
		s.logger.Debug("ignoring unrecognized interaction", zap.String("userID", in.UserID))
		return nil
	}

	return nil
}

// MarkPaidResult содержит итоги сброса баланса события.
type MarkPaidResult struct {
	EventID              int64  `json:"event_id"`
	EventName            string `json:"event_name"`
	PreviousBalanceCents int64  `json:"previous_balance_cents"`
	NewBalanceCents      int64  `json:"new_balance_cents"`
	IsPaid               bool   `json:"is_paid"`
}

// MarkEventPaid сбрасывает баланс события и помечает его оплаченным.
func (s *Service) MarkEventPaid(ctx context.Context, eventID int64) (*MarkPaidResult, error) {
	event, err := s.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	previous, err := s.repo.MarkEventPaid(ctx, eventID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("event marked paid",
		zap.Int64("eventID", eventID),
		zap.Int64("previousBalanceCents", previous),
	)

	return &MarkPaidResult{
		EventID:              eventID,
		EventName:            event.Name,
		PreviousBalanceCents: previous,
		NewBalanceCents:      0,
		IsPaid:               true,
	}, nil
}

// StampCounts содержит количество писем по тарифным регионам.
type StampCounts struct {
	Canada        int `json:"canada"`
	US            int `json:"us"`
	International int `json:"international"`
}

// UnpaidEvent содержит сводку по событию с ненулевым балансом.
type UnpaidEvent struct {
	EventID      int64       `json:"event_id"`
	EventName    string      `json:"event_name"`
	BalanceUSD   float64     `json:"balance_due_usd"`
	LetterCount  int64       `json:"letter_count"`
	Stamps       StampCounts `json:"stamps"`
	LastLetterAt *time.Time  `json:"last_letter_at"`
}

func countStampRegions(countries []string) StampCounts {
	var counts StampCounts
	for _, country := range countries {
		switch cost.StampRegion(country) {
		case cost.RegionCA:
			counts.Canada++
		case cost.RegionUS:
			counts.US++
		default:
			counts.International++
		}
	}
	return counts
}

// FinancialSummary содержит сводку по всем событиям с задолженностью.
type FinancialSummary struct {
	UnpaidEvents []UnpaidEvent `json:"unpaid_events"`
	TotalDueUSD  float64       `json:"total_due_usd"`
	TotalStamps  StampCounts   `json:"total_stamps"`
}

// GetFinancialSummary агрегирует балансы и количество писем по регионам
// для всех событий с задолженностью.
func (s *Service) GetFinancialSummary(ctx context.Context) (*FinancialSummary, error) {
	events, err := s.repo.GetUnpaidEvents(ctx)
	if err != nil {
		return nil, err
	}

	summary := &FinancialSummary{
		UnpaidEvents: make([]UnpaidEvent, 0, len(events)),
	}

	var totalDueCents int64

	for _, event := range events {
		countries, err := s.repo.GetLetterCountries(ctx, event.ID)
		if err != nil {
			return nil, err
		}

		counts := countStampRegions(countries)

		lastLetterAt, err := s.repo.GetLastLetterAt(ctx, event.ID)
		if err != nil {
			return nil, err
		}

		summary.UnpaidEvents = append(summary.UnpaidEvents, UnpaidEvent{
			EventID:      event.ID,
			EventName:    event.Name,
			BalanceUSD:   float64(event.BalanceDueCents) / 100,
			LetterCount:  event.LetterCount,
			Stamps:       counts,
			LastLetterAt: lastLetterAt,
		})

		totalDueCents += event.BalanceDueCents
		summary.TotalStamps.Canada += counts.Canada
		summary.TotalStamps.US += counts.US
		summary.TotalStamps.International += counts.International
	}

	summary.TotalDueUSD = float64(totalDueCents) / 100

	return summary, nil
}
