package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ChainRelay submits receipts to the chain-settlement endpoint over HTTP.
// Every call carries a bounded timeout; the relay never blocks a worker
// longer than that.
type ChainRelay struct {
	endpoint string
	client   *http.Client
}

// NewChainRelay creates a relay targeting the given endpoint.
func NewChainRelay(endpoint string, timeout time.Duration) *ChainRelay {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ChainRelay{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *ChainRelay) Name() string { return "chain" }

// Submit posts the receipt and returns the reference the relay endpoint
// assigned. Transport errors, timeouts, and non-2xx responses all surface
// as ErrBackendUnavailable.
func (c *ChainRelay) Submit(ctx context.Context, receipt Receipt) (string, error) {
	body, err := json.Marshal(receipt)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode)
	}

	var ack struct {
		Reference string `json:"reference"`
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := json.Unmarshal(data, &ack); err != nil || ack.Reference == "" {
		// Endpoint accepted the receipt but sent no usable reference.
		return fmt.Sprintf("chain-%s", receipt.RequestID), nil
	}
	return ack.Reference, nil
}
