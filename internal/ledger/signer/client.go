// Package signer submits payouts through an external signing service that
// holds the treasury keys.
package signer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/json-iterator/go"

	"treasury/internal/domain"
	"treasury/internal/ledger"
)

type transferPayload struct {
	Reference string `json:"reference"`
	From      string `json:"from"`
	To        string `json:"to"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	Memo      string `json:"memo,omitempty"`
}

type transferResponse struct {
	TxID    string `json:"tx_id"`
	Message string `json:"message"`
}

// Client posts transfers to {baseURL}/v1/transfers.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Transport: transport},
	}
}

// SubmitTransfer returns the ledger transaction id. Network failures and 5xx
// responses wrap domain.ErrPayoutSubmission and may be retried; 4xx responses
// wrap domain.ErrPayoutRejected.
func (c *Client) SubmitTransfer(ctx context.Context, req ledger.TransferRequest) (string, error) {
	body, err := json.Marshal(transferPayload{
		Reference: req.Reference,
		From:      req.From,
		To:        req.To,
		Asset:     req.Asset,
		Amount:    req.Amount.String(),
		Memo:      req.Memo,
	})
	if err != nil {
		return "", fmt.Errorf("marshal transfer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create transfer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPayoutSubmission, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", domain.ErrPayoutSubmission, err)
	}
	var out transferResponse
	_ = json.Unmarshal(raw, &out)

	switch {
	case resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: signer http %d: %s", domain.ErrPayoutSubmission, resp.StatusCode, out.Message)
	case resp.StatusCode >= http.StatusBadRequest:
		return "", fmt.Errorf("%w: signer http %d: %s", domain.ErrPayoutRejected, resp.StatusCode, out.Message)
	}
	if out.TxID == "" {
		return "", fmt.Errorf("%w: signer returned no tx_id", domain.ErrPayoutSubmission)
	}
	return out.TxID, nil
}

var _ ledger.Submitter = (*Client)(nil)
