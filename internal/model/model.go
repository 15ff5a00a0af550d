// Package model содержит доменные сущности сервиса гермес.
package model

import (
	"strings"
	"time"
)

// MailType описывает тип почтового отправления.
type MailType string

const (
	MailTypeLettermail   MailType = "lettermail"
	MailTypeBubblePacket MailType = "bubble_packet"
	MailTypeParcel       MailType = "parcel"
)

// Valid проверяет, что тип отправления входит в список поддерживаемых.
func (t MailType) Valid() bool {
	switch t {
	case MailTypeLettermail, MailTypeBubblePacket, MailTypeParcel:
		return true
	}
	return false
}

// LetterStatus описывает статус письма в жизненном цикле отправки.
type LetterStatus string

const (
	LetterStatusQueued     LetterStatus = "queued"
	LetterStatusProcessing LetterStatus = "processing"
	LetterStatusShipped    LetterStatus = "shipped"
	LetterStatusFailed     LetterStatus = "failed"
)

// Terminal возвращает true для конечных статусов, которые больше не опрашиваются.
func (s LetterStatus) Terminal() bool {
	return s == LetterStatusShipped || s == LetterStatusFailed
}

// ParseLetterStatus сопоставляет строку статуса из внешней почтовой системы
// с локальным перечислением. Регистр и пробелы по краям не учитываются.
// Неизвестная строка возвращает ok=false и не должна изменять локальное состояние.
func ParseLetterStatus(raw string) (LetterStatus, bool) {
	switch LetterStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case LetterStatusQueued:
		return LetterStatusQueued, true
	case LetterStatusProcessing:
		return LetterStatusProcessing, true
	case LetterStatusShipped:
		return LetterStatusShipped, true
	case LetterStatusFailed:
		return LetterStatusFailed, true
	}
	return "", false
}

// OrderStatus описывает статус заказа на фулфилмент.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFulfilled OrderStatus = "fulfilled"
)

// Event представляет программу-арендатора, от имени которой создаются письма и заказы.
type Event struct {
	ID              int64
	Name            string
	APIKeyHash      string
	TheseusQueue    string
	BalanceDueCents int64
	LetterCount     int64
	IsPaid          bool
	CreatedAt       time.Time
}

// MessageRef идентифицирует отправленное уведомление в чате для последующего редактирования.
type MessageRef struct {
	ChannelID string
	MessageTS string
}

// Set возвращает true, если ссылка на сообщение заполнена.
func (r MessageRef) Set() bool {
	return r.ChannelID != "" && r.MessageTS != ""
}

// Address содержит почтовый адрес получателя письма.
type Address struct {
	FirstName    string
	LastName     string
	AddressLine1 string
	AddressLine2 string
	City         string
	State        string
	PostalCode   string
	Country      string
}

// FullName возвращает имя получателя для отображения в уведомлениях.
func (a Address) FullName() string {
	return a.FirstName + " " + a.LastName
}

// Letter описывает письмо и его состояние в локальной и внешней почтовой системах.
// Поля получателя неизменяемы после создания; стоимость фиксируется при создании
// и никогда не пересчитывается.
type Letter struct {
	ID        int64
	LetterID  string
	EventID   int64
	Recipient Address

	RecipientEmail string
	MailType       MailType
	WeightGrams    *int
	StampsRaw      string
	StampsFmt      string
	Notes          string

	CostCents int64
	Status    LetterStatus
	CreatedAt time.Time
	MailedAt  *time.Time

	Notification MessageRef
}

// Order описывает заказ на фулфилмент. Персональные данные получателя
// намеренно отсутствуют: они передаются только в уведомление чата и
// никогда не сохраняются в базе.
type Order struct {
	ID       int64
	OrderID  string
	EventID  int64
	Text     string
	Status   OrderStatus
	Tracking string
	Note     string

	CreatedAt   time.Time
	FulfilledAt *time.Time

	Notification MessageRef
}
