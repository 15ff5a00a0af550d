package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jeninmail/hermes-system/internal/model"
)

func TestPostMessage_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat.postMessage" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer xoxb-test" {
			t.Fatalf("authorization = %q", got)
		}

		var payload struct {
			Channel string  `json:"channel"`
			Blocks  []Block `json:"blocks"`
			Text    string  `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.Channel != "C123" {
			t.Fatalf("channel = %q", payload.Channel)
		}
		if len(payload.Blocks) == 0 || payload.Text == "" {
			t.Fatalf("blocks or fallback text missing")
		}

		json.NewEncoder(w).Encode(apiResponse{OK: true, TS: "1700000000.000100", Channel: "C123"})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "xoxb-test", "C123")

	ref, err := client.PostMessage(context.Background(), []Block{sectionBlock("hi")}, "hi")
	if err != nil {
		t.Fatalf("PostMessage error: %v", err)
	}
	if ref.ChannelID != "C123" || ref.MessageTS != "1700000000.000100" {
		t.Fatalf("unexpected ref: %+v", ref)
	}
}

func TestPostMessage_SlackError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiResponse{OK: false, Error: "channel_not_found"})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "xoxb-test", "C123")

	_, err := client.PostMessage(context.Background(), []Block{sectionBlock("hi")}, "hi")
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "channel_not_found" {
		t.Fatalf("message = %q", apiErr.Message)
	}
}

func TestUpdateMessage_UsesRef(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat.update" {
			t.Fatalf("path = %s", r.URL.Path)
		}

		var payload struct {
			Channel string `json:"channel"`
			TS      string `json:"ts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.Channel != "C123" || payload.TS != "1700000000.000100" {
			t.Fatalf("unexpected ref in payload: %+v", payload)
		}

		json.NewEncoder(w).Encode(apiResponse{OK: true})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "xoxb-test", "C123")

	ref := model.MessageRef{ChannelID: "C123", MessageTS: "1700000000.000100"}
	if err := client.UpdateMessage(context.Background(), ref, []Block{sectionBlock("edit")}, "edit"); err != nil {
		t.Fatalf("UpdateMessage error: %v", err)
	}
}

func TestOpenFulfillOrderModal(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/views.open" {
			t.Fatalf("path = %s", r.URL.Path)
		}

		var payload struct {
			TriggerID string `json:"trigger_id"`
			View      View   `json:"view"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.TriggerID != "trig1" {
			t.Fatalf("trigger_id = %q", payload.TriggerID)
		}
		if got := payload.View["callback_id"]; got != "fulfill_order_modal:aB3xY9z" {
			t.Fatalf("callback_id = %v", got)
		}

		json.NewEncoder(w).Encode(apiResponse{OK: true})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "xoxb-test", "C123")

	if err := client.OpenFulfillOrderModal(context.Background(), "trig1", "aB3xY9z"); err != nil {
		t.Fatalf("OpenFulfillOrderModal error: %v", err)
	}
}

func TestSendLetterCreated_MarkMailedButton(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Blocks []Block `json:"blocks"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}

		last := payload.Blocks[len(payload.Blocks)-1]
		if last["type"] != "actions" {
			t.Fatalf("last block = %v, want actions", last["type"])
		}

		elements, ok := last["elements"].([]any)
		if !ok || len(elements) != 3 {
			t.Fatalf("expected 3 action elements, got %v", last["elements"])
		}
		btn := elements[2].(map[string]any)
		if btn["action_id"] != "mark_mailed:ltr!abc123" {
			t.Fatalf("action_id = %v", btn["action_id"])
		}

		json.NewEncoder(w).Encode(apiResponse{OK: true, TS: "1.2", Channel: "C123"})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "xoxb-test", "C123")

	_, err := client.SendLetterCreated(context.Background(), LetterInfo{
		EventName:     "Winter Hardware",
		QueueName:     "winter",
		RecipientName: "Orpheus Dino",
		Country:       "Canada",
		StampsRaw:     "1x stickers",
		CostCents:     175,
		LetterID:      "ltr!abc123",
	})
	if err != nil {
		t.Fatalf("SendLetterCreated error: %v", err)
	}
}

func TestNotConfiguredClient(t *testing.T) {
	var client *Client

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := client.PostMessage(ctx, nil, "x"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
