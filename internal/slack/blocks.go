package slack

import (
	"context"
	"fmt"
	"time"

	"github.com/jeninmail/hermes-system/internal/cost"
	"github.com/jeninmail/hermes-system/internal/model"
	"github.com/jeninmail/hermes-system/internal/stamps"
)

// Block представляет один блок Block Kit в сообщении или модальном окне.
type Block map[string]any

// View представляет описание модального окна для views.open.
type View map[string]any

func headerBlock(text string) Block {
	return Block{
		"type": "header",
		"text": map[string]any{"type": "plain_text", "text": text, "emoji": true},
	}
}

func sectionBlock(markdown string) Block {
	return Block{
		"type": "section",
		"text": map[string]any{"type": "mrkdwn", "text": markdown},
	}
}

func contextBlock(markdown string) Block {
	return Block{
		"type": "context",
		"elements": []map[string]any{
			{"type": "mrkdwn", "text": markdown},
		},
	}
}

func dividerBlock() Block {
	return Block{"type": "divider"}
}

func actionsBlock(elements ...map[string]any) Block {
	return Block{"type": "actions", "elements": elements}
}

func linkButton(text, actionID, url string) map[string]any {
	return map[string]any{
		"type":      "button",
		"text":      map[string]any{"type": "plain_text", "text": text},
		"url":       url,
		"action_id": actionID,
	}
}

func primaryButton(text, actionID, value string) map[string]any {
	return map[string]any{
		"type":      "button",
		"text":      map[string]any{"type": "plain_text", "text": text},
		"style":     "primary",
		"action_id": actionID,
		"value":     value,
	}
}

// LetterInfo содержит данные письма для уведомлений.
type LetterInfo struct {
	EventName     string
	QueueName     string
	RecipientName string
	Country       string
	StampsRaw     string
	CostCents     int64
	Notes         string
	LetterID      string
	LetterURL     string
	QueueURL      string
}

// SendLetterCreated отправляет уведомление о новом письме с кнопкой
// "Mark as Mailed" и возвращает ссылку на сообщение.
func (c *Client) SendLetterCreated(ctx context.Context, info LetterInfo) (model.MessageRef, error) {
	blocks := []Block{
		headerBlock("📬 New Letter Created"),
		sectionBlock(fmt.Sprintf("*Event:* %s | *Queue:* %s\n*Recipient:* %s, %s",
			info.EventName, info.QueueName, info.RecipientName, info.Country)),
		sectionBlock(fmt.Sprintf("*Items to Pack:*\n%s", stamps.FormatForDisplay(info.StampsRaw))),
		sectionBlock(fmt.Sprintf("*Cost:* $%.2f USD", cost.CentsToUSD(info.CostCents))),
	}

	if info.Notes != "" {
		blocks = append(blocks, sectionBlock(fmt.Sprintf("*Notes:* %s", info.Notes)))
	}

	blocks = append(blocks, actionsBlock(
		linkButton("View in Theseus", "view_letter", info.LetterURL),
		linkButton("View Queue", "view_queue", info.QueueURL),
		primaryButton("Mark as Mailed", ActionMarkMailed+":"+info.LetterID, info.LetterID),
	))

	return c.PostMessage(ctx, blocks, fmt.Sprintf("New letter created for %s", info.EventName))
}

// UpdateLetterShipped редактирует сообщение письма после отправки:
// кнопка "Mark as Mailed" убирается, добавляется время отправки.
func (c *Client) UpdateLetterShipped(ctx context.Context, ref model.MessageRef, info LetterInfo, mailedAt time.Time) error {
	blocks := []Block{
		headerBlock("📮 Letter Shipped"),
		sectionBlock(fmt.Sprintf("*Event:* %s | *Queue:* %s\n*Recipient:* %s, %s",
			info.EventName, info.QueueName, info.RecipientName, info.Country)),
		sectionBlock(fmt.Sprintf("*Items to Pack:*\n%s", stamps.FormatForDisplay(info.StampsRaw))),
		sectionBlock(fmt.Sprintf("*Cost:* $%.2f USD", cost.CentsToUSD(info.CostCents))),
		sectionBlock(fmt.Sprintf("*Mailed:* %s", mailedAt.Format("2006-01-02 03:04 PM"))),
		actionsBlock(
			linkButton("View in Theseus", "view_letter", info.LetterURL),
			linkButton("View Queue", "view_queue", info.QueueURL),
		),
	}

	return c.UpdateMessage(ctx, ref, blocks, fmt.Sprintf("Letter shipped for %s", info.EventName))
}

// SendParcelQuoteRequest отправляет запрос ручной оценки стоимости посылки.
func (c *Client) SendParcelQuoteRequest(ctx context.Context, info LetterInfo, weightGrams int) error {
	blocks := []Block{
		headerBlock("📦 Parcel Quote Needed"),
		sectionBlock(fmt.Sprintf("*Event:* %s\n*Recipient:* %s, %s\n*Weight:* %dg",
			info.EventName, info.RecipientName, info.Country, weightGrams)),
		sectionBlock(fmt.Sprintf("*Items to Pack:*\n%s", stamps.FormatForDisplay(info.StampsRaw))),
		contextBlock("Parcels require a custom quote before they can be billed."),
		actionsBlock(
			linkButton("View in Theseus", "view_letter", info.LetterURL),
		),
	}

	_, err := c.PostMessage(ctx, blocks, fmt.Sprintf("Parcel quote needed for %s", info.EventName))
	return err
}

// OrderInfo содержит данные заказа для уведомлений. Адрес и контакты
// получателя живут только в сообщении чата и не попадают в базу.
type OrderInfo struct {
	EventName string
	OrderID   string
	OrderText string
	StatusURL string

	RecipientName string
	Email         string
	PhoneNumber   string
	AddressLines  []string
	OrderNotes    string
}

// SendOrderCreated отправляет уведомление о новом заказе с кнопкой "Mark Fulfilled".
func (c *Client) SendOrderCreated(ctx context.Context, info OrderInfo) (model.MessageRef, error) {
	blocks := []Block{
		headerBlock("🛒 New Order Request"),
		sectionBlock(fmt.Sprintf("*Event:* %s\n*Order ID:* `%s`", info.EventName, info.OrderID)),
		sectionBlock(fmt.Sprintf("*Order Details:*\n%s", info.OrderText)),
	}

	shipTo := fmt.Sprintf("*Ship To:*\n%s", info.RecipientName)
	for _, line := range info.AddressLines {
		shipTo += "\n" + line
	}
	if info.Email != "" {
		shipTo += "\n" + info.Email
	}
	if info.PhoneNumber != "" {
		shipTo += "\n" + info.PhoneNumber
	}
	blocks = append(blocks, sectionBlock(shipTo))

	if info.OrderNotes != "" {
		blocks = append(blocks, sectionBlock(fmt.Sprintf("*Notes:*\n%s", info.OrderNotes)))
	}

	blocks = append(blocks,
		dividerBlock(),
		contextBlock("💵 $1 fee per item • Charged to event's HCB"),
		actionsBlock(
			linkButton("View Status Page", "view_order_status", info.StatusURL),
			primaryButton("Mark Fulfilled", ActionFulfillOrder+":"+info.OrderID, info.OrderID),
		),
	)

	return c.PostMessage(ctx, blocks, fmt.Sprintf("New order request from %s", info.EventName))
}

// UpdateOrderFulfilled редактирует сообщение заказа после фулфилмента.
func (c *Client) UpdateOrderFulfilled(ctx context.Context, ref model.MessageRef, info OrderInfo, tracking, note string, fulfilledAt time.Time) error {
	blocks := []Block{
		headerBlock("✅ Order Fulfilled"),
		sectionBlock(fmt.Sprintf("*Event:* %s\n*Order ID:* `%s`", info.EventName, info.OrderID)),
		sectionBlock(fmt.Sprintf("*Order Details:*\n%s", info.OrderText)),
		sectionBlock(fmt.Sprintf("*Fulfilled:* %s", fulfilledAt.Format("2006-01-02 03:04 PM"))),
	}

	if tracking != "" {
		blocks = append(blocks, sectionBlock(fmt.Sprintf("*Tracking Code:* `%s`", tracking)))
	}
	if note != "" {
		blocks = append(blocks, sectionBlock(fmt.Sprintf("*Note:* %s", note)))
	}

	blocks = append(blocks, actionsBlock(
		linkButton("View Status Page", "view_order_status", info.StatusURL),
		primaryButton("Update Tracking", ActionUpdateTracking+":"+info.OrderID, info.OrderID),
	))

	return c.UpdateMessage(ctx, ref, blocks, fmt.Sprintf("Order %s fulfilled", info.OrderID))
}

// SendErrorNotification отправляет уведомление об ошибке для ручного разбора.
func (c *Client) SendErrorNotification(ctx context.Context, eventName, errorMessage, requestSummary string) error {
	blocks := []Block{
		headerBlock("🚨 Error"),
		sectionBlock(fmt.Sprintf("*Event:* %s\n*Error:* %s", eventName, errorMessage)),
	}
	if requestSummary != "" {
		blocks = append(blocks, contextBlock(requestSummary))
	}

	_, err := c.PostMessage(ctx, blocks, fmt.Sprintf("Error for %s", eventName))
	return err
}

func textInput(blockID, actionID, label, placeholder, initial string, optional bool) Block {
	element := map[string]any{
		"type":      "plain_text_input",
		"action_id": actionID,
		"placeholder": map[string]any{
			"type": "plain_text",
			"text": placeholder,
		},
	}
	if initial != "" {
		element["initial_value"] = initial
	}

	return Block{
		"type":     "input",
		"block_id": blockID,
		"optional": optional,
		"element":  element,
		"label":    map[string]any{"type": "plain_text", "text": label},
	}
}

// OpenFulfillOrderModal открывает модальное окно фулфилмента заказа
// с необязательными полями трекинг-кода и заметки.
func (c *Client) OpenFulfillOrderModal(ctx context.Context, triggerID, orderID string) error {
	view := View{
		"type":        "modal",
		"callback_id": CallbackFulfillOrder + ":" + orderID,
		"title":       map[string]any{"type": "plain_text", "text": "Fulfill Order"},
		"submit":      map[string]any{"type": "plain_text", "text": "Fulfill"},
		"close":       map[string]any{"type": "plain_text", "text": "Cancel"},
		"blocks": []Block{
			sectionBlock(fmt.Sprintf("Fulfilling order `%s`", orderID)),
			textInput(BlockTrackingCode, "tracking_code", "Tracking Code", "e.g. 1Z999AA10123456784", "", true),
			textInput(BlockFulfillmentNote, "fulfillment_note", "Note", "Optional note shown on the status page", "", true),
		},
	}

	return c.OpenView(ctx, triggerID, view)
}

// OpenUpdateTrackingModal открывает модальное окно изменения трекинг-кода
// уже выполненного заказа.
func (c *Client) OpenUpdateTrackingModal(ctx context.Context, triggerID, orderID, currentTracking string) error {
	view := View{
		"type":        "modal",
		"callback_id": CallbackUpdateTracking + ":" + orderID,
		"title":       map[string]any{"type": "plain_text", "text": "Update Tracking"},
		"submit":      map[string]any{"type": "plain_text", "text": "Update"},
		"close":       map[string]any{"type": "plain_text", "text": "Cancel"},
		"blocks": []Block{
			sectionBlock(fmt.Sprintf("Updating tracking for order `%s`", orderID)),
			textInput(BlockTrackingCode, "tracking_code", "Tracking Code", "e.g. 1Z999AA10123456784", currentTracking, false),
		},
	}

	return c.OpenView(ctx, triggerID, view)
}
