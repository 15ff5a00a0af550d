package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func gzipTestHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("received: " + string(body)))
}

func TestGzipMiddleware(t *testing.T) {
	handler := GzipMiddleware(http.HandlerFunc(gzipTestHandler))

	tests := []struct {
		name           string
		requestBody    string
		gzipRequest    bool
		acceptEncoding string
		wantEncoding   string
		wantBody       string
	}{
		{
			name:           "client accepts gzip",
			requestBody:    `{"test":"data"}`,
			acceptEncoding: "gzip",
			wantEncoding:   "gzip",
			wantBody:       `received: {"test":"data"}`,
		},
		{
			name:           "client does not accept gzip",
			requestBody:    "plain request",
			acceptEncoding: "",
			wantEncoding:   "",
			wantBody:       "received: plain request",
		},
		{
			name:           "gzip request body",
			requestBody:    "compressed request",
			gzipRequest:    true,
			acceptEncoding: "",
			wantEncoding:   "",
			wantBody:       "received: compressed request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = strings.NewReader(tt.requestBody)
			if tt.gzipRequest {
				var buf bytes.Buffer
				zw := gzip.NewWriter(&buf)
				_, _ = zw.Write([]byte(tt.requestBody))
				_ = zw.Close()
				body = &buf
			}

			req := httptest.NewRequest(http.MethodPost, "/", body)
			if tt.gzipRequest {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if got := rec.Header().Get("Content-Encoding"); got != tt.wantEncoding {
				t.Errorf("Content-Encoding = %q, want %q", got, tt.wantEncoding)
			}

			var respBody []byte
			if tt.wantEncoding == "gzip" {
				zr, err := gzip.NewReader(rec.Body)
				if err != nil {
					t.Fatalf("gzip.NewReader error: %v", err)
				}
				defer zr.Close()
				respBody, err = io.ReadAll(zr)
				if err != nil {
					t.Fatalf("read gzip body error: %v", err)
				}
			} else {
				respBody = rec.Body.Bytes()
			}

			if string(respBody) != tt.wantBody {
				t.Errorf("body = %q, want %q", respBody, tt.wantBody)
			}
		})
	}
}
