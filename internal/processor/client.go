package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	processortypes "github.com/collabary/payments/internal/core/datamodel/processor"
)

// API is the processor contract consumed by the escrow and payout state
// machines. The real transport details stay behind this boundary.
type API interface {
	CreateIntent(ctx context.Context, req *processortypes.CreateIntentRequest) (*processortypes.Intent, error)
	ConfirmIntent(ctx context.Context, intentID, methodRef string) (*processortypes.Intent, error)
	CaptureIntent(ctx context.Context, intentID string) (*processortypes.Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*processortypes.Intent, error)
	CreateTransfer(ctx context.Context, req *processortypes.CreateTransferRequest) (*processortypes.Transfer, error)
}

type Config struct {
	APIURL  string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: cfg.APIURL,
		apiKey:  cfg.APIKey,
		logger:  logger,
	}
}

func (c *Client) CreateIntent(ctx context.Context, req *processortypes.CreateIntentRequest) (*processortypes.Intent, error) {
	var intent processortypes.Intent
	if err := c.do(ctx, http.MethodPost, "/v1/intents", req, &intent); err != nil {
		return nil, err
	}

	c.logger.Info("intent created",
		"intent_id", intent.ID,
		"amount", req.Amount,
		"destination", req.DestinationRef)

	return &intent, nil
}

func (c *Client) ConfirmIntent(ctx context.Context, intentID, methodRef string) (*processortypes.Intent, error) {
	var intent processortypes.Intent
	path := fmt.Sprintf("/v1/intents/%s/confirm", intentID)
	if err := c.do(ctx, http.MethodPost, path, &processortypes.ConfirmIntentRequest{MethodRef: methodRef}, &intent); err != nil {
		return nil, err
	}

	c.logger.Info("intent confirmed", "intent_id", intent.ID, "status", intent.Status)
	return &intent, nil
}

func (c *Client) CaptureIntent(ctx context.Context, intentID string) (*processortypes.Intent, error) {
	var intent processortypes.Intent
	path := fmt.Sprintf("/v1/intents/%s/capture", intentID)
	if err := c.do(ctx, http.MethodPost, path, nil, &intent); err != nil {
		return nil, err
	}

	c.logger.Info("intent captured", "intent_id", intent.ID, "status", intent.Status)
	return &intent, nil
}

func (c *Client) RetrieveIntent(ctx context.Context, intentID string) (*processortypes.Intent, error) {
	var intent processortypes.Intent
	path := fmt.Sprintf("/v1/intents/%s", intentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *Client) CreateTransfer(ctx context.Context, req *processortypes.CreateTransferRequest) (*processortypes.Transfer, error) {
	var transfer processortypes.Transfer
	if err := c.do(ctx, http.MethodPost, "/v1/transfers", req, &transfer); err != nil {
		return nil, err
	}

	c.logger.Info("transfer created",
		"transfer_id", transfer.ID,
		"amount", req.Amount,
		"destination", req.DestinationRef)

	return &transfer, nil
}

// apiErrorBody is the processor's error response shape.
type apiErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// network failures are retryable by definition
		return newTransientError("network_error", "request to processor failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return newTransientError("read_error", "failed to read processor response", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		c.logger.Warn("processor returned server error",
			"status", resp.StatusCode,
			"path", path)
		return newTransientError("server_error", fmt.Sprintf("processor returned status %d", resp.StatusCode), nil)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiErrorBody
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Code != "" {
			c.logger.Warn("processor rejected request",
				"status", resp.StatusCode,
				"code", apiErr.Error.Code,
				"path", path)
			return newPermanentError(apiErr.Error.Code, apiErr.Error.Message)
		}
		return newPermanentError("request_rejected", fmt.Sprintf("processor returned status %d", resp.StatusCode))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return newTransientError("decode_error", "failed to decode processor response", err)
		}
	}

	return nil
}
