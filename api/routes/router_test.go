package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/perenalabs/perenapay-backend/internal/merchants"
	"github.com/perenalabs/perenapay-backend/internal/payments"
	"github.com/perenalabs/perenapay-backend/internal/stablecoins"
	"github.com/perenalabs/perenapay-backend/pkg/config"
	"github.com/perenalabs/perenapay-backend/pkg/logger"
	"github.com/perenalabs/perenapay-backend/pkg/solana"
)

type ledgerStub struct {
	result solana.CheckResult
	err    error
}

func (l *ledgerStub) CheckReference(ctx context.Context, reference string) (solana.CheckResult, error) {
	return l.result, l.err
}

func testRouter(t *testing.T, verifier solana.Verifier) http.Handler {
	t.Helper()

	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.Payments.RequestTTL = 15 * time.Minute
	cfg.Payments.USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	cfg.RateLimit.Window = time.Minute
	cfg.RateLimit.MaxRequests = 1000

	logg := logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})

	repo := merchants.NewMemoryRepository()
	merchantSvc, err := merchants.NewService(merchants.ServiceParams{Repo: repo, Logger: logg})
	if err != nil {
		t.Fatalf("merchant service: %v", err)
	}

	catalog := stablecoins.NewCatalog(cfg.Payments)
	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Store:     payments.NewMemoryStore(),
		Merchants: repo,
		Verifier:  verifier,
		Catalog:   catalog,
		Config:    cfg.Payments,
		Logger:    logg,
	})
	if err != nil {
		t.Fatalf("payment service: %v", err)
	}

	return NewRouter(cfg, logg, nil, nil, merchantSvc, paymentSvc, catalog, "memory")
}

func onboardMerchant(t *testing.T, router http.Handler) (id, apiKey string) {
	t.Helper()

	body := `{"name":"Acme Imports","email":"finance@acme.test","wallet_address":"9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/merchants", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("onboarding failed: %d %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Data struct {
			ID     string `json:"id"`
			APIKey string `json:"api_key"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.APIKey == "" {
		t.Fatal("expected api key in onboarding response")
	}
	return envelope.Data.ID, envelope.Data.APIKey
}

func TestHealthLive(t *testing.T) {
	router := testRouter(t, &ledgerStub{})

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if rec.Header().Get("X-PerenaPay-Env") != "test" {
		t.Fatal("expected env header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := testRouter(t, &ledgerStub{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestPaymentsRequireAPIKey(t *testing.T) {
	router := testRouter(t, &ledgerStub{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(`{"amount":"10","currency":"USDC"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestPaymentLifecycleOverHTTP(t *testing.T) {
	verifier := &ledgerStub{result: solana.CheckResult{
		Found:     true,
		Signature: "3signedAndSettled",
		Succeeded: true,
		Slot:      4242,
	}}
	router := testRouter(t, verifier)

	_, apiKey := onboardMerchant(t, router)

	// create
	body := `{"amount":"42.50","currency":"usdc","metadata":{"order_id":"A-1009"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body))
	req.Header.Set("X-API-Key", apiKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", rec.Code, rec.Body.String())
	}

	var created struct {
		Data struct {
			Payment struct {
				ID        string `json:"id"`
				Status    string `json:"status"`
				Reference string `json:"reference"`
			} `json:"payment"`
			Instructions struct {
				Recipient string `json:"recipient"`
				TokenMint string `json:"token_mint"`
			} `json:"instructions"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.Data.Payment.Status != "PENDING" {
		t.Fatalf("expected PENDING got %s", created.Data.Payment.Status)
	}
	if created.Data.Instructions.TokenMint == "" {
		t.Fatal("expected token mint in instructions")
	}

	// verify
	req = httptest.NewRequest(http.MethodPost, "/api/v1/payments/"+created.Data.Payment.ID+"/verify", nil)
	req.Header.Set("X-API-Key", apiKey)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("verify failed: %d %s", rec.Code, rec.Body.String())
	}

	var verified struct {
		Data struct {
			Status               string  `json:"status"`
			TransactionSignature *string `json:"transaction_signature"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&verified); err != nil {
		t.Fatalf("decode verify response: %v", err)
	}
	if verified.Data.Status != "COMPLETED" {
		t.Fatalf("expected COMPLETED got %s", verified.Data.Status)
	}
	if verified.Data.TransactionSignature == nil || *verified.Data.TransactionSignature != "3signedAndSettled" {
		t.Fatal("expected settling signature on payment")
	}

	// list
	req = httptest.NewRequest(http.MethodGet, "/api/v1/payments?status=completed", nil)
	req.Header.Set("X-API-Key", apiKey)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("list failed: %d %s", rec.Code, rec.Body.String())
	}
	var listed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(listed.Data) != 1 || listed.Data[0].ID != created.Data.Payment.ID {
		t.Fatalf("unexpected listing: %+v", listed.Data)
	}
}

func TestCancelPaymentOverHTTP(t *testing.T) {
	router := testRouter(t, &ledgerStub{})

	_, apiKey := onboardMerchant(t, router)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(`{"amount":"10","currency":"USDC"}`))
	req.Header.Set("X-API-Key", apiKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", rec.Code, rec.Body.String())
	}

	var created struct {
		Data struct {
			Payment struct {
				ID string `json:"id"`
			} `json:"payment"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/payments/"+created.Data.Payment.ID+"/cancel", nil)
	req.Header.Set("X-API-Key", apiKey)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("cancel failed: %d %s", rec.Code, rec.Body.String())
	}
	var cancelled struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&cancelled); err != nil {
		t.Fatalf("decode cancel response: %v", err)
	}
	if cancelled.Data.Status != "CANCELLED" {
		t.Fatalf("expected CANCELLED got %s", cancelled.Data.Status)
	}
}
