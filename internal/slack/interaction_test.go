package slack

import "testing"

func TestParseInteraction_MarkMailed(t *testing.T) {
	payload := []byte(`{
		"type": "block_actions",
		"user": {"id": "U123"},
		"trigger_id": "trig1",
		"actions": [{"action_id": "mark_mailed:ltr!abc123"}]
	}`)

	in, err := ParseInteraction(payload)
	if err != nil {
		t.Fatalf("ParseInteraction error: %v", err)
	}
	if in.Kind != InteractionMarkMailed {
		t.Fatalf("kind = %v, want InteractionMarkMailed", in.Kind)
	}
	if in.LetterID != "ltr!abc123" {
		t.Fatalf("letterID = %q", in.LetterID)
	}
	if in.UserID != "U123" {
		t.Fatalf("userID = %q", in.UserID)
	}
}

func TestParseInteraction_FulfillOrderOpen(t *testing.T) {
	payload := []byte(`{
		"type": "block_actions",
		"user": {"id": "U123"},
		"trigger_id": "trig2",
		"actions": [{"action_id": "fulfill_order:aB3xY9z"}]
	}`)

	in, err := ParseInteraction(payload)
	if err != nil {
		t.Fatalf("ParseInteraction error: %v", err)
	}
	if in.Kind != InteractionFulfillOrderOpen {
		t.Fatalf("kind = %v", in.Kind)
	}
	if in.OrderID != "aB3xY9z" || in.TriggerID != "trig2" {
		t.Fatalf("unexpected interaction: %+v", in)
	}
}

func TestParseInteraction_FulfillOrderSubmit(t *testing.T) {
	payload := []byte(`{
		"type": "view_submission",
		"user": {"id": "U123"},
		"view": {
			"callback_id": "fulfill_order_modal:aB3xY9z",
			"state": {
				"values": {
					"tracking_code_block": {"tracking_code": {"value": "1Z999"}},
					"fulfillment_note_block": {"fulfillment_note": {"value": "packed with care"}}
				}
			}
		}
	}`)

	in, err := ParseInteraction(payload)
	if err != nil {
		t.Fatalf("ParseInteraction error: %v", err)
	}
	if in.Kind != InteractionFulfillOrderSubmit {
		t.Fatalf("kind = %v", in.Kind)
	}
	if in.OrderID != "aB3xY9z" {
		t.Fatalf("orderID = %q", in.OrderID)
	}
	if in.TrackingCode != "1Z999" || in.FulfillmentNote != "packed with care" {
		t.Fatalf("unexpected values: %+v", in)
	}
}

func TestParseInteraction_UpdateTrackingSubmit(t *testing.T) {
	payload := []byte(`{
		"type": "view_submission",
		"view": {
			"callback_id": "update_tracking_modal:aB3xY9z",
			"state": {
				"values": {
					"tracking_code_block": {"tracking_code": {"value": "RR123456785CA"}}
				}
			}
		}
	}`)

	in, err := ParseInteraction(payload)
	if err != nil {
		t.Fatalf("ParseInteraction error: %v", err)
	}
	if in.Kind != InteractionUpdateTrackingSubmit {
		t.Fatalf("kind = %v", in.Kind)
	}
	if in.TrackingCode != "RR123456785CA" {
		t.Fatalf("tracking = %q", in.TrackingCode)
	}
}

func TestParseInteraction_URLButtonIgnored(t *testing.T) {
	payload := []byte(`{
		"type": "block_actions",
		"actions": [{"action_id": "view_letter"}]
	}`)

	in, err := ParseInteraction(payload)
	if err != nil {
		t.Fatalf("ParseInteraction error: %v", err)
	}
	if in.Kind != InteractionUnknown {
		t.Fatalf("kind = %v, want InteractionUnknown", in.Kind)
	}
}

func TestParseInteraction_UnknownType(t *testing.T) {
	in, err := ParseInteraction([]byte(`{"type": "shortcut"}`))
	if err != nil {
		t.Fatalf("ParseInteraction error: %v", err)
	}
	if in.Kind != InteractionUnknown {
		t.Fatalf("kind = %v, want InteractionUnknown", in.Kind)
	}
}

func TestParseInteraction_BadJSON(t *testing.T) {
	if _, err := ParseInteraction([]byte(`{`)); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}
