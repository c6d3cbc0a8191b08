package tally

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/lohithk/tallysync/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Client talks to the Tally HTTP export port.
type Client struct {
	url  string
	http *http.Client
}

// NewClient creates a client for the given export endpoint. A zero timeout
// falls back to the default.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

// Export posts an envelope and returns the raw response body. Transport
// failures are logged, not raised; callers get an empty body plus a flag so
// "source unreachable" stays distinguishable from "zero records".
func (c *Client) Export(ctx context.Context, envelope string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(envelope))
	if err != nil {
		log.Printf("[tally] build request failed: %v", err)
		return "", true
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("[tally] request failed: %v", err)
		return "", true
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[tally] read response failed: %v", err)
		return "", true
	}
	return string(body), false
}

// Fetch exports one record type, trying the rich request first and falling
// back to the minimal request exactly once when the rich batch parses empty.
// The tier is inferred solely from whether rows came back.
func (c *Client) Fetch(ctx context.Context, rt domain.RecordType) (domain.Batch, domain.ExportTier, bool) {
	richColumns := requestFields(rt.Fields)
	raw, richFailed := c.Export(ctx, richEnvelope(rt))
	batch := Normalize(raw, richColumns)
	if !batch.Empty() {
		log.Printf("[tally] %s: rich tier (%d rows)", rt.Name, len(batch.Rows))
		return batch, domain.TierRich, false
	}

	raw, minimalFailed := c.Export(ctx, minimalEnvelope(rt))
	batch = Normalize(raw, minimalFields())
	if !batch.Empty() {
		log.Printf("[tally] %s: minimal tier (%d rows)", rt.Name, len(batch.Rows))
		return batch, domain.TierMinimal, false
	}

	log.Printf("[tally] %s: no rows from either tier", rt.Name)
	return batch, domain.TierNone, richFailed || minimalFailed
}

// CheckReachable probes the export endpoint. Tally answers plain GETs on
// its port, so any HTTP response counts as reachable.
func (c *Client) CheckReachable(ctx context.Context) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return false, err.Error()
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Sprintf("tally unreachable at %s: %v", c.url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 400 {
		return false, fmt.Sprintf("tally returned HTTP %d", resp.StatusCode)
	}
	return true, fmt.Sprintf("tally HTTP OK (%d) at %s", resp.StatusCode, c.url)
}
