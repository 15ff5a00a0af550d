package theseus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jeninmail/hermes-system/internal/model"
)

func testAddress() model.Address {
	return model.Address{
		FirstName:    "Orpheus",
		LastName:     "Dino",
		AddressLine1: "15 Falls Rd",
		City:         "Shelburne",
		State:        "VT",
		PostalCode:   "05482",
		Country:      "United States",
	}
}

func TestCreateLetter_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/letter_queues/winter-hardware" {
			t.Fatalf("path = %s, want /letter_queues/winter-hardware", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("authorization = %q", got)
		}

		var payload struct {
			Address struct {
				FirstName string `json:"first_name"`
				Country   string `json:"country"`
			} `json:"address"`
			RubberStamps string            `json:"rubber_stamps"`
			Metadata     map[string]string `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.Address.FirstName != "Orpheus" {
			t.Fatalf("first_name = %q", payload.Address.FirstName)
		}
		if payload.RubberStamps != "1x stickers" {
			t.Fatalf("rubber_stamps = %q", payload.RubberStamps)
		}
		if payload.Metadata["notes"] != "fragile" {
			t.Fatalf("metadata notes = %q", payload.Metadata["notes"])
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(letterResponse{ID: "ltr!abc123", Status: "queued"})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "test-key")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	id, err := client.CreateLetter(ctx, "winter-hardware", testAddress(), "1x stickers", "", "fragile")
	if err != nil {
		t.Fatalf("CreateLetter error: %v", err)
	}
	if id != "ltr!abc123" {
		t.Fatalf("id = %q, want ltr!abc123", id)
	}
}

func TestCreateLetter_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "test-key")

	_, err := client.CreateLetter(context.Background(), "q", testAddress(), "stamps", "", "")
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", apiErr.StatusCode)
	}
}

func TestGetLetterStatus_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/letters/ltr!abc123" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(letterResponse{ID: "ltr!abc123", Status: "shipped"})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "test-key")

	status, err := client.GetLetterStatus(context.Background(), "ltr!abc123")
	if err != nil {
		t.Fatalf("GetLetterStatus error: %v", err)
	}
	if status != "shipped" {
		t.Fatalf("status = %q, want shipped", status)
	}
}

func TestGetLetterStatus_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "test-key")

	_, err := client.GetLetterStatus(context.Background(), "ltr!missing")
	if !IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestMarkMailed_OK(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/letters/ltr!abc123/mark_mailed" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		called = true
		w.Write([]byte(`{"message":"ok"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "test-key")

	if err := client.MarkMailed(context.Background(), "ltr!abc123"); err != nil {
		t.Fatalf("MarkMailed error: %v", err)
	}
	if !called {
		t.Fatalf("mark_mailed endpoint not called")
	}
}

func TestMarkMailed_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "test-key")

	err := client.MarkMailed(context.Background(), "ltr!missing")
	if !IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestNotConfigured(t *testing.T) {
	var client *Client

	if _, err := client.GetLetterStatus(context.Background(), "ltr!abc"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestURLHelpers(t *testing.T) {
	client := NewClient("http://localhost:1", "k")

	if got := client.PublicLetterURL("ltr!abc"); got != "https://hack.club/ltr!abc" {
		t.Fatalf("PublicLetterURL = %q", got)
	}
	if got := client.LetterURL("ltr!abc"); got != "https://mail.hackclub.com/back_office/letters/ltr!abc" {
		t.Fatalf("LetterURL = %q", got)
	}
	if got := client.QueueURL("q1"); got != "https://mail.hackclub.com/back_office/letter/queues/q1" {
		t.Fatalf("QueueURL = %q", got)
	}
}
