// Package theseus предоставляет клиент для внешней почтовой системы Theseus.
package theseus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/jeninmail/hermes-system/internal/model"
)

// APIError описывает ошибку обращения к Theseus API вместе с HTTP-статусом ответа.
type APIError struct {
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("theseus api error: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("theseus api error: %s", e.Message)
}

// IsNotFound возвращает true, если ошибка означает отсутствие письма в Theseus.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// Client инкапсулирует HTTP-взаимодействие с Theseus API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт клиент Theseus для указанного адреса и API-ключа.
// Количество повторов ограничено: при недоступности сервиса вызов
// завершается ошибкой, а не зависает в бесконечных ретраях.
func NewClient(baseURL, apiKey string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.HTTPClient.Timeout = 30 * time.Second
	// Повторяем только сетевые сбои: HTTP-ответ с любым статусом
	// возвращается вызывающей стороне без ретраев.
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil, nil
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: rc.StandardClient(),
	}
}

type createLetterRequest struct {
	Address        createLetterAddress `json:"address"`
	RubberStamps   string              `json:"rubber_stamps"`
	RecipientEmail string              `json:"recipient_email,omitempty"`
	Metadata       map[string]string   `json:"metadata"`
}

type createLetterAddress struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Line1      string `json:"line_1"`
	Line2      string `json:"line_2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type letterResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateLetter создаёт письмо в указанной очереди Theseus и возвращает его
// внешний идентификатор (например, "ltr!32jhyrnk").
func (c *Client) CreateLetter(ctx context.Context, queueName string, addr model.Address, rubberStamps, recipientEmail, notes string) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", &APIError{Message: "theseus client not configured"}
	}

	payload := createLetterRequest{
		Address: createLetterAddress{
			FirstName:  addr.FirstName,
			LastName:   addr.LastName,
			Line1:      addr.AddressLine1,
			Line2:      addr.AddressLine2,
			City:       addr.City,
			State:      addr.State,
			PostalCode: addr.PostalCode,
			Country:    addr.Country,
		},
		RubberStamps:   rubberStamps,
		RecipientEmail: recipientEmail,
		Metadata:       map[string]string{},
	}
	if notes != "" {
		payload.Metadata["notes"] = notes
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/letter_queues/%s", c.baseURL, queueName)

	resp, err := c.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", &APIError{Message: "create letter failed", StatusCode: resp.StatusCode}
	}

	var result letterResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return result.ID, nil
}

// GetLetterStatus запрашивает текущий статус письма по его внешнему идентификатору.
func (c *Client) GetLetterStatus(ctx context.Context, letterID string) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", &APIError{Message: "theseus client not configured"}
	}

	url := fmt.Sprintf("%s/letters/%s", c.baseURL, letterID)

	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", &APIError{Message: fmt.Sprintf("letter not found: %s", letterID), StatusCode: http.StatusNotFound}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Message: "get letter status failed", StatusCode: resp.StatusCode}
	}

	var result letterResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return result.Status, nil
}

// MarkMailed помечает письмо отправленным в Theseus.
func (c *Client) MarkMailed(ctx context.Context, letterID string) error {
	if c == nil || c.baseURL == "" {
		return &APIError{Message: "theseus client not configured"}
	}

	url := fmt.Sprintf("%s/letters/%s/mark_mailed", c.baseURL, letterID)

	resp, err := c.do(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &APIError{Message: fmt.Sprintf("letter not found: %s", letterID), StatusCode: http.StatusNotFound}
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{Message: "mark mailed failed", StatusCode: resp.StatusCode}
	}

	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("request failed: %v", err)}
	}

	return resp, nil
}

// LetterURL возвращает адрес письма в бэк-офисе Theseus для уведомлений.
func (c *Client) LetterURL(letterID string) string {
	return fmt.Sprintf("https://mail.hackclub.com/back_office/letters/%s", letterID)
}

// PublicLetterURL возвращает короткую публичную ссылку на письмо.
func (c *Client) PublicLetterURL(letterID string) string {
	return fmt.Sprintf("https://hack.club/%s", letterID)
}

// QueueURL возвращает адрес очереди в бэк-офисе Theseus.
func (c *Client) QueueURL(queueName string) string {
	return fmt.Sprintf("https://mail.hackclub.com/back_office/letter/queues/%s", queueName)
}
