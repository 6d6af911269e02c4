// Package jsonrpc provides a JSON-RPC 2.0 client over HTTP. Transport retries
// are the concern of the *http.Client handed to NewClient; this package deals
// with framing, status codes and provider error objects.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

var (
	// ErrProviderReturnedError indicates that the server answered with a JSON-RPC error object.
	ErrProviderReturnedError = errors.New("provider error")

	// ErrUnexpectedStatus indicates a non-2xx HTTP answer that carried no JSON-RPC body.
	ErrUnexpectedStatus = errors.New("unexpected http status")
)

// Error is the error object of a JSON-RPC response. It matches
// ErrProviderReturnedError with errors.Is.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: [%d] - %s", ErrProviderReturnedError, e.Code, e.Message)
}

func (e *Error) Is(target error) bool {
	return target == ErrProviderReturnedError
}

// response represents a standard JSON-RPC 2.0 response.
type response struct {
	JsonRPC string          `json:"jsonrpc"`
	Error   *Error          `json:"error"`
	Result  json.RawMessage `json:"result"`
}

// Err returns the response error object, if any.
func (r response) Err() error {
	if r.Error == nil {
		return nil
	}

	return r.Error
}

// Client sends JSON-RPC requests.
type Client interface {
	// Fetch sends method with params and returns the raw result. A JSON null
	// result is returned as is; callers decide what absence means.
	Fetch(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

type client struct {
	providerEndpoint string
	httpClient       *http.Client
}

var _ Client = (*client)(nil)

func (c *client) Fetch(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}

	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      uuid.NewString(),
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.providerEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	var data response
	if err := json.Unmarshal(raw, &data); err != nil {
		if res.StatusCode/100 != 2 {
			return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, res.StatusCode)
		}
		return nil, err
	}

	return data.Result, data.Err()
}

// Call is Fetch followed by decoding the result into out.
func Call(ctx context.Context, c Client, out any, method string, params ...any) error {
	raw, err := c.Fetch(ctx, method, params...)
	if err != nil {
		return err
	}

	return json.Unmarshal(raw, out)
}

// NewClient returns a Client posting to providerEndpoint with httpClient.
func NewClient(httpClient *http.Client, providerEndpoint string) *client {
	return &client{
		providerEndpoint: providerEndpoint,
		httpClient:       httpClient,
	}
}
