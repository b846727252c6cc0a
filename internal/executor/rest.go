package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"viewflow/pkg/errors"
)

const (
	statementsPath      = "/api/2.0/sql/statements"
	defaultPollInterval = 2 * time.Second
	defaultWaitTimeout  = "30s"
)

// Client talks to the statement execution REST service. A submission
// may return before completion; the client then polls the statement at
// a fixed interval until it reaches a terminal state, bounded by the
// caller's context. There is no client-side retry of a failed or
// canceled statement.
type Client struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	pollInterval time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithPollInterval overrides the fixed polling interval.
func WithPollInterval(d time.Duration) ClientOption {
	return func(c *Client) { c.pollInterval = d }
}

// NewClient returns a REST executor client for the service at baseURL.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      baseURL,
		token:        token,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Wire shapes. The service reports statement status as a state plus an
// optional error message, and result rows as an array of column->value
// objects.
type statementPayload struct {
	Statement   string `json:"statement"`
	Catalog     string `json:"catalog,omitempty"`
	Schema      string `json:"schema,omitempty"`
	WarehouseID string `json:"warehouse_id"`
	WaitTimeout string `json:"wait_timeout,omitempty"`
}

type statementEnvelope struct {
	StatementID string `json:"statement_id"`
	Status      struct {
		State string `json:"state"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"status"`
	Result struct {
		Rows []map[string]interface{} `json:"rows"`
	} `json:"result"`
}

func (e *statementEnvelope) toResponse() *StatementResponse {
	return &StatementResponse{
		StatementID: e.StatementID,
		State:       State(e.Status.State),
		Rows:        e.Result.Rows,
		Error:       e.Status.Error.Message,
	}
}

// Execute submits the statement and blocks until a terminal state.
func (c *Client) Execute(ctx context.Context, req StatementRequest) (*StatementResponse, error) {
	waitTimeout := req.WaitTimeout
	if waitTimeout == "" {
		waitTimeout = defaultWaitTimeout
	}

	payload := statementPayload{
		Statement:   req.Statement,
		Catalog:     req.Namespace.Catalog,
		Schema:      req.Namespace.Schema,
		WarehouseID: req.WarehouseID,
		WaitTimeout: waitTimeout,
	}

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+statementsPath, payload)
	if err != nil {
		return nil, err
	}
	if resp.State.Terminal() {
		return resp, nil
	}
	return c.waitForCompletion(ctx, resp.StatementID)
}

// GetStatus fetches the current state of a previously submitted statement.
func (c *Client) GetStatus(ctx context.Context, statementID string) (*StatementResponse, error) {
	return c.do(ctx, http.MethodGet, fmt.Sprintf("%s%s/%s", c.baseURL, statementsPath, statementID), nil)
}

// waitForCompletion polls at the fixed interval until the statement
// reaches a terminal state or ctx is done.
func (c *Client) waitForCompletion(ctx context.Context, statementID string) (*StatementResponse, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), errors.ErrCodeTimeout,
				fmt.Sprintf("gave up waiting for statement %s", statementID)).
				WithContext("statement_id", statementID)
		case <-ticker.C:
			resp, err := c.GetStatus(ctx, statementID)
			if err != nil {
				return nil, err
			}
			if resp.State.Terminal() {
				return resp, nil
			}
		}
	}
}

func (c *Client) do(ctx context.Context, method, url string, payload interface{}) (*StatementResponse, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to encode statement payload")
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExecutorProtocol, "failed to build executor request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExecutorProtocol, "executor request failed")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, errors.New(errors.ErrCodeExecutorProtocol,
			fmt.Sprintf("executor returned HTTP %d: %s", httpResp.StatusCode, bytes.TrimSpace(data))).
			WithContext("status_code", httpResp.StatusCode)
	}

	var envelope statementEnvelope
	if err := json.NewDecoder(httpResp.Body).Decode(&envelope); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExecutorProtocol, "failed to decode executor response")
	}
	return envelope.toResponse(), nil
}
