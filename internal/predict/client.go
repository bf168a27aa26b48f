package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Request is the classifier's input contract: the extracted text plus the
// numeric signals derived from it.
type Request struct {
	Text           string  `json:"text"`
	NumericSignals Signals `json:"numeric_signals"`
}

// Caller abstracts the transport to the classification capability so the
// adapter can be exercised against stubs.
type Caller interface {
	Predict(ctx context.Context, req Request) ([]byte, error)
}

// Client posts prediction requests to the classifier endpoint and returns
// the raw response body. It decides nothing about the payload; shape
// validation and normalization live in the adapter.
type Client struct {
	httpClient *http.Client
	url        string
	logger     *slog.Logger
}

func NewClient(url string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
		logger:     logger,
	}
}

func (c *Client) Predict(ctx context.Context, preq Request) ([]byte, error) {
	reqID := uuid.New().String()
	start := time.Now()

	bs, err := json.Marshal(preq)
	if err != nil {
		c.logger.Error("predict.http.encode_error", "req_id", reqID, "error", err)
		return nil, fmt.Errorf("encode json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(bs))
	if err != nil {
		c.logger.Error("predict.http.build_request_error", "req_id", reqID, "error", err)
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("predict.http.request",
		"req_id", reqID,
		"url", c.url,
		"text_len", len(preq.Text),
		"budget_crores", preq.NumericSignals.BudgetCrores,
		"timeline_months", preq.NumericSignals.TimelineMonths,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("predict.http.send_error",
			"req_id", reqID, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("predict.http.body_close_error", "req_id", reqID, "error", cerr)
		}
	}()

	raw, _ := io.ReadAll(resp.Body)

	c.logger.Info("predict.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return raw, fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}
	return raw, nil
}
