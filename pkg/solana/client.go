package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/perenalabs/perenapay-backend/pkg/config"
	"github.com/perenalabs/perenapay-backend/pkg/logger"
	"github.com/perenalabs/perenapay-backend/pkg/metrics"
)

// signatureScanLimit bounds how many signatures per reference are inspected.
// A reference address only ever appears in the transfer that settles it, so
// anything beyond a handful of signatures is noise.
const signatureScanLimit = 10

// CheckResult reports what the ledger knows about a reference. Found means a
// finalized-enough transaction mentioning the reference exists; Succeeded
// reports whether that transaction executed without error.
type CheckResult struct {
	Found     bool
	Signature string
	Succeeded bool
	Slot      uint64
}

// Verifier is the ledger surface the payment lifecycle depends on.
type Verifier interface {
	CheckReference(ctx context.Context, reference string) (CheckResult, error)
}

// Client talks JSON-RPC to a Solana node. All calls go through a circuit
// breaker so a flapping RPC endpoint cannot pile up goroutines behind it.
type Client struct {
	http       *resty.Client
	breaker    *gobreaker.CircuitBreaker
	commitment string
	logg       *logger.Logger
	metrics    *metrics.VerificationMetrics
}

// ClientParams carries the dependencies for NewClient.
type ClientParams struct {
	Config  config.SolanaConfig
	Logger  *logger.Logger
	Metrics *metrics.VerificationMetrics
}

// NewClient builds a Client against the configured RPC endpoint.
func NewClient(params ClientParams) (*Client, error) {
	if params.Config.RPCURL == "" {
		return nil, errors.New("solana rpc url is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}

	httpClient := resty.New().
		SetBaseURL(params.Config.RPCURL).
		SetTimeout(params.Config.RequestTimeout).
		SetRetryCount(params.Config.RetryCount).
		SetHeader("Content-Type", "application/json")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "solana-rpc",
		Timeout: params.Config.BreakerCooloff,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= params.Config.BreakerMaxFail
		},
	})

	commitment := params.Config.Commitment
	if commitment == "" {
		commitment = "confirmed"
	}

	return &Client{
		http:       httpClient,
		breaker:    breaker,
		commitment: commitment,
		logg:       params.Logger,
		metrics:    params.Metrics,
	}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type signatureInfo struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	Err       json.RawMessage `json:"err"`
}

type signaturesEnvelope struct {
	Result []signatureInfo `json:"result"`
	Error  *rpcError       `json:"error"`
}

type transactionEnvelope struct {
	Result *transactionResult `json:"result"`
	Error  *rpcError          `json:"error"`
}

type transactionResult struct {
	Slot uint64           `json:"slot"`
	Meta *transactionMeta `json:"meta"`
}

type transactionMeta struct {
	Err json.RawMessage `json:"err"`
}

// CheckReference lists recent signatures mentioning the reference address and
// inspects the newest one's transaction. A non-nil error means the ledger
// could not be consulted; callers must treat that as indeterminate, not as
// absence.
func (c *Client) CheckReference(ctx context.Context, reference string) (CheckResult, error) {
	if reference == "" {
		return CheckResult{}, errors.New("reference is required")
	}

	sigs, err := c.signaturesForAddress(ctx, reference)
	if err != nil {
		return CheckResult{}, fmt.Errorf("listing signatures for reference: %w", err)
	}
	if len(sigs) == 0 {
		return CheckResult{}, nil
	}

	// Only the newest signature is inspected. If its transaction is not
	// yet retrievable at this commitment the reference reads as pending
	// and a later check sees the settled transaction.
	newest := sigs[0]
	tx, err := c.transaction(ctx, newest.Signature)
	if err != nil {
		return CheckResult{}, fmt.Errorf("fetching transaction %s: %w", newest.Signature, err)
	}
	if tx == nil {
		return CheckResult{}, nil
	}
	succeeded := tx.Meta == nil || isNullErr(tx.Meta.Err)
	return CheckResult{
		Found:     true,
		Signature: newest.Signature,
		Succeeded: succeeded,
		Slot:      tx.Slot,
	}, nil
}

func (c *Client) signaturesForAddress(ctx context.Context, address string) ([]signatureInfo, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getSignaturesForAddress",
		Params: []any{
			address,
			map[string]any{
				"limit":      signatureScanLimit,
				"commitment": c.commitment,
			},
		},
	}

	var envelope signaturesEnvelope
	if err := c.call(ctx, req, &envelope); err != nil {
		return nil, err
	}
	if envelope.Error != nil {
		return nil, envelope.Error
	}
	return envelope.Result, nil
}

func (c *Client) transaction(ctx context.Context, signature string) (*transactionResult, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getTransaction",
		Params: []any{
			signature,
			map[string]any{
				"commitment":                     c.commitment,
				"maxSupportedTransactionVersion": 0,
			},
		},
	}

	var envelope transactionEnvelope
	if err := c.call(ctx, req, &envelope); err != nil {
		return nil, err
	}
	if envelope.Error != nil {
		return nil, envelope.Error
	}
	return envelope.Result, nil
}

func (c *Client) call(ctx context.Context, req rpcRequest, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		start := time.Now()
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(req).
			Post("")
		c.metrics.ObserveRPCLatency(time.Since(start))
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("rpc status %d", resp.StatusCode())
		}
		// Decode the body ourselves. Some nodes answer without a JSON
		// content type, which would leave the envelope zero-valued and
		// read as an empty result instead of an error.
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return nil, fmt.Errorf("decode rpc response: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logg.Warn(ctx, "solana rpc circuit open, skipping call")
		}
		return err
	}
	return nil
}

func isNullErr(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	return string(raw) == "null"
}
