// Package xrpl reads treasury activity from an XRPL node over JSON-RPC.
package xrpl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"treasury/internal/domain"
	"treasury/internal/ledger"
)

const (
	defaultPageLimit = 200
	defaultMaxPages  = 20
	dropsPerXRP      = 1_000_000
)

var transientRPCErrors = map[string]bool{
	"tooBusy":   true,
	"slowDown":  true,
	"noNetwork": true,
	"noCurrent": true,
	"noClosed":  true,
}

// Client implements ledger.Reader against the rippled JSON-RPC API.
type Client struct {
	endpoint  string
	http      *http.Client
	logger    zerolog.Logger
	pageLimit int
	maxPages  int
}

// NewClient builds a client for endpoint. The context passed to each call
// bounds the request; the transport keeps connections alive between polls.
func NewClient(endpoint string, logger zerolog.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		endpoint:  strings.TrimRight(endpoint, "/"),
		http:      &http.Client{Transport: transport},
		logger:    logger.With().Str("component", "xrpl").Logger(),
		pageLimit: defaultPageLimit,
		maxPages:  defaultMaxPages,
	}
}

type rpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type rpcError struct {
	Status       string `json:"status"`
	Error        string `json:"error"`
	ErrorMessage string `json:"error_message"`
}

type accountTxParams struct {
	Account        string          `json:"account"`
	LedgerIndexMin int64           `json:"ledger_index_min"`
	LedgerIndexMax int64           `json:"ledger_index_max"`
	Forward        bool            `json:"forward"`
	Limit          int             `json:"limit"`
	Marker         json.RawMessage `json:"marker,omitempty"`
}

type accountTxResult struct {
	rpcError
	LedgerIndexMax int64           `json:"ledger_index_max"`
	Marker         json.RawMessage `json:"marker"`
	Transactions   []accountTxItem `json:"transactions"`
}

type accountTxItem struct {
	Tx          *txJSON  `json:"tx"`
	TxJSON      *txJSON  `json:"tx_json"`
	Hash        string   `json:"hash"`
	LedgerIndex int64    `json:"ledger_index"`
	Meta        metaJSON `json:"meta"`
	Validated   bool     `json:"validated"`
}

type txJSON struct {
	Hash            string          `json:"hash"`
	TransactionType string          `json:"TransactionType"`
	Account         string          `json:"Account"`
	Destination     string          `json:"Destination"`
	Amount          json.RawMessage `json:"Amount"`
	DeliverMax      json.RawMessage `json:"DeliverMax"`
	LedgerIndex     int64           `json:"ledger_index"`
	Memos           []struct {
		Memo struct {
			MemoData string `json:"MemoData"`
		} `json:"Memo"`
	} `json:"Memos"`
}

type metaJSON struct {
	TransactionResult string          `json:"TransactionResult"`
	TransactionIndex  int64           `json:"TransactionIndex"`
	DeliveredAmount   json.RawMessage `json:"delivered_amount"`
}

type issuedAmount struct {
	Currency string `json:"currency"`
	Issuer   string `json:"issuer"`
	Value    string `json:"value"`
}

type serverInfoResult struct {
	rpcError
	Info struct {
		ValidatedLedger struct {
			Seq int64 `json:"seq"`
		} `json:"validated_ledger"`
	} `json:"info"`
}

// FetchActivity pages through account_tx from sinceCursor to the latest
// validated ledger, oldest first. Only validated successful payments are
// returned. Paging stops at maxPages unless the pages so far never left the
// start ledgers, in which case it continues until the cursor can advance.
func (c *Client) FetchActivity(ctx context.Context, address string, sinceCursor int64) (ledger.Activity, error) {
	params := accountTxParams{
		Account:        address,
		LedgerIndexMin: sinceCursor,
		LedgerIndexMax: -1,
		Forward:        true,
		Limit:          c.pageLimit,
	}

	var (
		activity   ledger.Activity
		maxLedger  int64
		lastLedger int64
		stalled    bool
	)
	for page := 0; ; page++ {
		var result accountTxResult
		if err := c.call(ctx, "account_tx", params, &result); err != nil {
			return ledger.Activity{}, err
		}
		if result.LedgerIndexMax > maxLedger {
			maxLedger = result.LedgerIndexMax
		}
		for _, item := range result.Transactions {
			if idx := item.ledgerIndex(); idx > lastLedger {
				lastLedger = idx
			}
			tx, ok, err := convert(item)
			if err != nil {
				c.logger.Warn().Err(err).Str("tx_id", item.hash()).Msg("skip undecodable transaction")
				continue
			}
			if ok {
				activity.Transactions = append(activity.Transactions, tx)
			}
		}

		if len(result.Marker) == 0 || string(result.Marker) == "null" {
			activity.Cursor = maxLedger
			break
		}
		if page+1 >= c.maxPages {
			// Resume inside the last ledger seen; replays are absorbed downstream.
			if lastLedger-1 > sinceCursor {
				activity.Cursor = lastLedger - 1
				c.logger.Warn().Int64("cursor", activity.Cursor).Int("pages", page+1).Msg("account_tx page limit reached")
				break
			}
			if !stalled {
				stalled = true
				c.logger.Warn().Int64("since", sinceCursor).Msg("account_tx page limit reached inside the start ledgers, paging on")
			}
		}
		params.Marker = result.Marker
	}

	if activity.Cursor < sinceCursor {
		activity.Cursor = sinceCursor
	}
	return activity, nil
}

// LatestCursor returns the latest validated ledger index.
func (c *Client) LatestCursor(ctx context.Context) (int64, error) {
	var result serverInfoResult
	if err := c.call(ctx, "server_info", struct{}{}, &result); err != nil {
		return 0, err
	}
	seq := result.Info.ValidatedLedger.Seq
	if seq <= 0 {
		return 0, fmt.Errorf("%w: server_info has no validated ledger", domain.ErrTransientLedger)
	}
	return seq, nil
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(rpcRequest{Method: method, Params: []any{params}})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrTransientLedger, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s: http %d", domain.ErrTransientLedger, method, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: http %d: %s", method, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", domain.ErrTransientLedger, method, err)
	}
	var status rpcError
	if err := json.Unmarshal(envelope.Result, &status); err != nil {
		return fmt.Errorf("decode %s status: %w", method, err)
	}
	if status.Status == "error" || status.Error != "" {
		if transientRPCErrors[status.Error] {
			return fmt.Errorf("%w: %s: %s", domain.ErrTransientLedger, method, status.Error)
		}
		return fmt.Errorf("%s: %s %s", method, status.Error, status.ErrorMessage)
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

func (i accountTxItem) tx() *txJSON {
	if i.TxJSON != nil {
		return i.TxJSON
	}
	return i.Tx
}

func (i accountTxItem) hash() string {
	if i.Hash != "" {
		return i.Hash
	}
	if tx := i.tx(); tx != nil {
		return tx.Hash
	}
	return ""
}

func (i accountTxItem) ledgerIndex() int64 {
	if i.LedgerIndex != 0 {
		return i.LedgerIndex
	}
	if tx := i.tx(); tx != nil {
		return tx.LedgerIndex
	}
	return 0
}

func convert(item accountTxItem) (domain.LedgerTransaction, bool, error) {
	tx := item.tx()
	if tx == nil || !item.Validated || tx.TransactionType != "Payment" || item.Meta.TransactionResult != "tesSUCCESS" {
		return domain.LedgerTransaction{}, false, nil
	}

	raw := item.Meta.DeliveredAmount
	if len(raw) == 0 || string(raw) == `"unavailable"` {
		raw = tx.Amount
		if len(raw) == 0 {
			raw = tx.DeliverMax
		}
	}
	asset, amount, err := parseAmount(raw)
	if err != nil {
		return domain.LedgerTransaction{}, false, err
	}

	ledgerIndex := item.ledgerIndex()

	memos := make([]string, 0, len(tx.Memos))
	for _, m := range tx.Memos {
		if text := ledger.DecodeMemo(m.Memo.MemoData); text != "" {
			memos = append(memos, text)
		}
	}

	return domain.LedgerTransaction{
		ID:     item.hash(),
		From:   tx.Account,
		To:     tx.Destination,
		Asset:  asset,
		Amount: amount,
		Memo:   strings.Join(memos, " "),
		Ledger: ledgerIndex,
		Index:  item.Meta.TransactionIndex,
	}, true, nil
}

// parseAmount decodes an XRPL amount: a string of drops for XRP or an
// object for issued currencies.
func parseAmount(raw json.RawMessage) (string, decimal.Decimal, error) {
	if len(raw) == 0 {
		return "", decimal.Zero, errors.New("missing amount")
	}
	if raw[0] == '"' {
		var drops string
		if err := json.Unmarshal(raw, &drops); err != nil {
			return "", decimal.Zero, fmt.Errorf("decode drops: %w", err)
		}
		v, err := decimal.NewFromString(drops)
		if err != nil {
			return "", decimal.Zero, fmt.Errorf("parse drops %q: %w", drops, err)
		}
		return "XRP", v.Div(decimal.NewFromInt(dropsPerXRP)), nil
	}

	var issued issuedAmount
	if err := json.Unmarshal(raw, &issued); err != nil {
		return "", decimal.Zero, fmt.Errorf("decode issued amount: %w", err)
	}
	v, err := decimal.NewFromString(issued.Value)
	if err != nil {
		return "", decimal.Zero, fmt.Errorf("parse value %q: %w", issued.Value, err)
	}
	return issued.Currency + "." + issued.Issuer, v, nil
}

var _ ledger.Reader = (*Client)(nil)
