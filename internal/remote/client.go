// Package remote is a client for the callable functions that front the
// wallet app and the ledger: logins, escrow creation, payments, withdrawals.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Function names
const (
	FnRequestWalletLogin   = "requestWalletLogin"
	FnCheckWalletLogin     = "checkWalletLogin"
	FnCreateEscrow         = "createEscrow"
	FnRequestEscrowPayment = "requestEscrowPayment"
	FnConfirmEscrowPayment = "confirmEscrowPayment"
	FnWithdrawEscrow       = "withdrawEscrow"
)

var ErrMalformedResponse = errors.New("malformed response")

// APIError is an error envelope returned by a function.
type APIError struct {
	Function   string
	HTTPStatus int
	Status     string // e.g. FAILED_PRECONDITION
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s: %s: %s", e.Function, e.Status, e.Message)
	}
	return fmt.Sprintf("%s returned %d: %s", e.Function, e.HTTPStatus, e.Message)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// call invokes a function. Some functions wrap their return value in one more
// {"result": ...} layer; it is unwrapped too.
func (c *Client) call(ctx context.Context, name string, data any, out any) error {
	body, err := json.Marshal(map[string]any{"data": data})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote api unavailable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", name, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &APIError{Function: name, HTTPStatus: resp.StatusCode, Message: string(raw)}
		}
		return fmt.Errorf("%s: %w: %v", name, ErrMalformedResponse, err)
	}
	if env.Error != nil {
		return &APIError{Function: name, HTTPStatus: resp.StatusCode, Status: env.Error.Status, Message: env.Error.Message}
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Function: name, HTTPStatus: resp.StatusCode, Message: string(raw)}
	}
	if isNull(env.Result) {
		return fmt.Errorf("%s: %w: missing result", name, ErrMalformedResponse)
	}

	result := env.Result
	var inner struct {
		Result json.RawMessage `json:"result"`
	}
	if json.Unmarshal(result, &inner) == nil && !isNull(inner.Result) {
		result = inner.Result
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("%s: %w: %v", name, ErrMalformedResponse, err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	s := bytes.TrimSpace(raw)
	return len(s) == 0 || bytes.Equal(s, []byte("null"))
}
