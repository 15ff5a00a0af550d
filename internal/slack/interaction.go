package slack

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Идентификаторы действий и колбэков в интерактивных сообщениях.
const (
	ActionMarkMailed     = "mark_mailed"
	ActionFulfillOrder   = "fulfill_order"
	ActionUpdateTracking = "update_tracking"

	CallbackFulfillOrder   = "fulfill_order_modal"
	CallbackUpdateTracking = "update_tracking_modal"

	BlockTrackingCode    = "tracking_code_block"
	BlockFulfillmentNote = "fulfillment_note_block"
)

// InteractionKind перечисляет виды интерактивных колбэков.
type InteractionKind int

const (
	// InteractionUnknown — нераспознанный payload; обрабатывается как no-op.
	InteractionUnknown InteractionKind = iota
	// InteractionMarkMailed — нажатие кнопки "Mark as Mailed" на письме.
	InteractionMarkMailed
	// InteractionFulfillOrderOpen — нажатие "Mark Fulfilled", нужно открыть модальное окно.
	InteractionFulfillOrderOpen
	// InteractionFulfillOrderSubmit — отправка модального окна фулфилмента.
	InteractionFulfillOrderSubmit
	// InteractionUpdateTrackingOpen — нажатие "Update Tracking", нужно открыть модальное окно.
	InteractionUpdateTrackingOpen
	// InteractionUpdateTrackingSubmit — отправка модального окна трекинга.
	InteractionUpdateTrackingSubmit
)

// Interaction — разобранный интерактивный колбэк из Slack.
type Interaction struct {
	Kind      InteractionKind
	UserID    string
	TriggerID string

	LetterID string
	OrderID  string

	TrackingCode    string
	FulfillmentNote string
}

type rawInteraction struct {
	Type string `json:"type"`
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	TriggerID string `json:"trigger_id"`
	View      struct {
		CallbackID string `json:"callback_id"`
		State      struct {
			Values map[string]map[string]struct {
				Value string `json:"value"`
			} `json:"values"`
		} `json:"state"`
	} `json:"view"`
	Actions []struct {
		ActionID string `json:"action_id"`
	} `json:"actions"`
}

// ParseInteraction разбирает JSON-payload интерактивного колбэка в тегированный
// вариант Interaction. Нераспознанные формы payload возвращаются с Kind
// InteractionUnknown, а не ошибкой: Slack шлёт и действия, которые сервису
// не интересны (например, нажатия URL-кнопок).
func ParseInteraction(payload []byte) (Interaction, error) {
	var raw rawInteraction
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Interaction{}, fmt.Errorf("unmarshal payload: %w", err)
	}

	in := Interaction{
		Kind:      InteractionUnknown,
		UserID:    raw.User.ID,
		TriggerID: raw.TriggerID,
	}

	switch raw.Type {
	case "view_submission":
		kind, id, ok := splitID(raw.View.CallbackID)
		if !ok {
			return in, nil
		}

		switch kind {
		case CallbackFulfillOrder:
			in.Kind = InteractionFulfillOrderSubmit
			in.OrderID = id
			in.TrackingCode = stateValue(raw, BlockTrackingCode, "tracking_code")
			in.FulfillmentNote = stateValue(raw, BlockFulfillmentNote, "fulfillment_note")
		case CallbackUpdateTracking:
			in.Kind = InteractionUpdateTrackingSubmit
			in.OrderID = id
			in.TrackingCode = stateValue(raw, BlockTrackingCode, "tracking_code")
		}

	case "block_actions":
		for _, action := range raw.Actions {
			kind, id, ok := splitID(action.ActionID)
			if !ok {
				continue
			}

			switch kind {
			case ActionMarkMailed:
				in.Kind = InteractionMarkMailed
				in.LetterID = id
			case ActionFulfillOrder:
				in.Kind = InteractionFulfillOrderOpen
				in.OrderID = id
			case ActionUpdateTracking:
				in.Kind = InteractionUpdateTrackingOpen
				in.OrderID = id
			default:
				continue
			}
			break
		}
	}

	return in, nil
}

func splitID(composite string) (kind, id string, ok bool) {
	idx := strings.IndexByte(composite, ':')
	if idx <= 0 || idx == len(composite)-1 {
		return "", "", false
	}
	return composite[:idx], composite[idx+1:], true
}

func stateValue(raw rawInteraction, blockID, actionID string) string {
	block, ok := raw.View.State.Values[blockID]
	if !ok {
		return ""
	}
	return block[actionID].Value
}
