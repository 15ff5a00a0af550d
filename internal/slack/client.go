// Package slack предоставляет клиент чат-системы для уведомлений о письмах
// и заказах и разбор интерактивных колбэков.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jeninmail/hermes-system/internal/model"
)

// DefaultAPIAddress задаёт адрес Slack Web API по умолчанию.
const DefaultAPIAddress = "https://slack.com/api"

// APIError описывает отказ Slack API (ok=false в ответе либо транспортная ошибка).
type APIError struct {
	Method  string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s: %s", e.Method, e.Message)
}

// Client инкапсулирует HTTP-взаимодействие со Slack Web API.
type Client struct {
	baseURL    string
	token      string
	channel    string
	httpClient *http.Client
}

// NewClient создаёт клиент Slack для указанного адреса API, токена бота
// и канала уведомлений.
func NewClient(baseURL, token, channel string) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIAddress
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		channel: channel,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type apiResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	TS      string `json:"ts"`
	Channel string `json:"channel"`
}

// PostMessage отправляет сообщение в канал уведомлений и возвращает ссылку
// на него для последующего редактирования.
func (c *Client) PostMessage(ctx context.Context, blocks []Block, fallback string) (model.MessageRef, error) {
	payload := map[string]any{
		"channel": c.channel,
		"blocks":  blocks,
		"text":    fallback,
	}

	resp, err := c.call(ctx, "chat.postMessage", payload)
	if err != nil {
		return model.MessageRef{}, err
	}

	return model.MessageRef{ChannelID: resp.Channel, MessageTS: resp.TS}, nil
}

// UpdateMessage редактирует ранее отправленное сообщение по его ссылке.
func (c *Client) UpdateMessage(ctx context.Context, ref model.MessageRef, blocks []Block, fallback string) error {
	payload := map[string]any{
		"channel": ref.ChannelID,
		"ts":      ref.MessageTS,
		"blocks":  blocks,
		"text":    fallback,
	}

	_, err := c.call(ctx, "chat.update", payload)
	return err
}

// OpenView открывает модальное окно в ответ на интерактивное действие.
func (c *Client) OpenView(ctx context.Context, triggerID string, view View) error {
	payload := map[string]any{
		"trigger_id": triggerID,
		"view":       view,
	}

	_, err := c.call(ctx, "views.open", payload)
	return err
}

func (c *Client) call(ctx context.Context, method string, payload map[string]any) (*apiResponse, error) {
	if c == nil || c.token == "" {
		return nil, &APIError{Method: method, Message: "slack client not configured"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	url := c.baseURL + "/" + method

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Method: method, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Method: method, Message: fmt.Sprintf("unexpected status: %d", resp.StatusCode)}
	}

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if !result.OK {
		return nil, &APIError{Method: method, Message: result.Error}
	}

	return &result, nil
}
