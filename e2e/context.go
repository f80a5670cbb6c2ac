package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prometheus/client_golang/prometheus"

	jwttoken "proofdrop/internal/jwt_token"
	"proofdrop/internal/merkle"
	"proofdrop/internal/platform/config"
	"proofdrop/internal/server"
	"proofdrop/internal/verification/service"
	"proofdrop/pkg/domain"
)

const (
	signingKey = "e2e-signing-key"
	issuer     = "proofdrop-e2e"
)

var (
	ownerAccount   = domain.MustAddress("0x00000000000000000000000000000000000000f0")
	hubAccount     = domain.MustAddress("0x00000000000000000000000000000000000000f1")
	mailboxAccount = domain.MustAddress("0x00000000000000000000000000000000000000f2")
)

// TestContext holds one in-memory proofdrop instance and the state carried
// between the steps of a scenario.
type TestContext struct {
	BaseURL          string
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte

	server *httptest.Server
	app    *server.App
	jwt    *jwttoken.JWTService

	accounts      map[string]domain.Address
	distributions map[string]*merkle.Distribution
}

// NewTestContext boots proofdrop with in-memory stores and the local relay
// transport looped back to its own domain.
func NewTestContext() (*TestContext, error) {
	cfg := config.Config{
		Environment: "e2e",
		LogLevel:    slog.LevelError,
		Chain: config.ChainConfig{
			Domain:           1,
			Owner:            ownerAccount,
			Hub:              hubAccount,
			Mailbox:          mailboxAccount,
			RegistryAddress:  domain.MustAddress("0x00000000000000000000000000000000000a11ce"),
			MultiSendAddress: domain.MustAddress("0x000000000000000000000000000000000000b001"),
			AirdropAddress:   domain.MustAddress("0x000000000000000000000000000000000000b002"),
			FeeSinkAddress:   domain.MustAddress("0x000000000000000000000000000000000000b003"),
		},
		Auth: config.AuthConfig{SigningKey: signingKey, Issuer: issuer, TokenTTL: time.Hour},
		Relay: config.RelayConfig{
			Transport:     "local",
			OriginDomain:  1,
			WritePolicy:   "max",
			AwaitInterval: 20 * time.Millisecond,
			AwaitAttempts: 50,
		},
		Verification: config.VerificationConfig{
			Source:    "local",
			TTL:       720 * time.Hour,
			ScopeSeed: "proofdrop-e2e",
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := server.New(context.Background(), cfg, log, server.WithRegistry(prometheus.NewRegistry()))
	if err != nil {
		return nil, fmt.Errorf("start proofdrop: %w", err)
	}
	srv := httptest.NewServer(app.Handler())

	return &TestContext{
		BaseURL:       srv.URL,
		HTTPClient:    &http.Client{Timeout: 10 * time.Second},
		server:        srv,
		app:           app,
		jwt:           jwttoken.NewJWTService(signingKey, issuer, time.Hour),
		distributions: make(map[string]*merkle.Distribution),
		accounts: map[string]domain.Address{
			"owner":   ownerAccount,
			"hub":     hubAccount,
			"mailbox": mailboxAccount,
		},
	}, nil
}

func (tc *TestContext) Close() {
	tc.server.Close()
	_ = tc.app.Shutdown(context.Background()) //nolint:errcheck // test teardown
}

// Account resolves a scenario name to a stable address, minting one on
// first use.
func (tc *TestContext) Account(name string) domain.Address {
	name = strings.ToLower(name)
	if addr, ok := tc.accounts[name]; ok {
		return addr
	}
	addr := domain.BytesToBytes32([]byte(name)).Address()
	tc.accounts[name] = addr
	return addr
}

func (tc *TestContext) token(name string) (string, error) {
	return tc.jwt.GenerateCallerToken(context.Background(), tc.Account(name))
}

// hookPayload is what the Hub would post after verifying account.
func hookPayload(account domain.Address) (string, error) {
	raw, err := service.EncodeHookPayload(service.HookPayload{
		UserIdentifier: domain.SenderIDFromAddress(account),
	})
	if err != nil {
		return "", err
	}
	return hexutil.Encode(raw), nil
}

// Do sends a request as the named caller and stores the response.
func (tc *TestContext) Do(as, method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, tc.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != "" {
		token, err := tc.token(as)
		if err != nil {
			return fmt.Errorf("failed to mint token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return nil
}

// expectStatus fails the step unless the last response had status.
func (tc *TestContext) expectStatus(status int) error {
	if tc.LastResponse == nil {
		return fmt.Errorf("no response received")
	}
	if tc.LastResponse.StatusCode != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, tc.LastResponse.StatusCode, string(tc.LastResponseBody))
	}
	return nil
}

// GetResponseField extracts a top-level field from the JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var data map[string]any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	value, ok := data[field]
	if !ok {
		return nil, fmt.Errorf("field %s not found in response", field)
	}
	return value, nil
}

func (tc *TestContext) decode(v any) error {
	if err := json.Unmarshal(tc.LastResponseBody, v); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
