package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	jwttoken "proofdrop/internal/jwt_token"
	"proofdrop/internal/platform/config"
	"proofdrop/internal/verification/models"
	"proofdrop/internal/verification/service"
	"proofdrop/pkg/domain"
	"proofdrop/pkg/testutil"
)

// testConfig is an in-memory, local-transport deployment looped back to
// its own domain.
func testConfig() config.Config {
	return config.Config{
		Environment: "test",
		Chain: config.ChainConfig{
			Domain:           7,
			Owner:            testutil.Accounts.Owner,
			Hub:              testutil.Accounts.Hub,
			Mailbox:          testutil.Accounts.Mailbox,
			RegistryAddress:  testutil.NumberedAccount(1),
			MultiSendAddress: testutil.NumberedAccount(2),
			AirdropAddress:   testutil.NumberedAccount(3),
			FeeSinkAddress:   testutil.NumberedAccount(4),
		},
		Auth: config.AuthConfig{SigningKey: "server-test-key", Issuer: "proofdrop-test", TokenTTL: time.Hour},
		Relay: config.RelayConfig{
			Transport:     "local",
			OriginDomain:  7,
			WritePolicy:   "max",
			AwaitInterval: 10 * time.Millisecond,
			AwaitAttempts: 100,
		},
		Verification: config.VerificationConfig{
			Source:    "crosschain",
			TTL:       24 * time.Hour,
			ScopeSeed: "server-test",
		},
	}
}

// harness drives one App through its HTTP handler with minted tokens.
type harness struct {
	suite.Suite
	cfg config.Config
	app *App
	jwt *jwttoken.JWTService
}

func (s *harness) start(cfg config.Config) {
	s.Require().NoError(cfg.Validate())
	s.cfg = cfg

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := New(context.Background(), cfg, log, WithRegistry(prometheus.NewRegistry()))
	s.Require().NoError(err)
	s.app = app
	s.jwt = jwttoken.NewJWTService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
}

func (s *harness) do(as domain.Address, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !as.IsZero() {
		token, err := s.jwt.GenerateCallerToken(context.Background(), as)
		s.Require().NoError(err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.app.Handler().ServeHTTP(w, req)
	return w
}

func (s *harness) verify(account domain.Address) {
	raw, err := service.EncodeHookPayload(service.HookPayload{UserIdentifier: domain.SenderIDFromAddress(account)})
	s.Require().NoError(err)
	w := s.do(s.cfg.Chain.Hub, http.MethodPost, "/hub/verification", map[string]string{"payload": hexutil.Encode(raw)})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
}

type ServerSuite struct {
	harness
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	s.start(testConfig())
}

func (s *ServerSuite) TearDownTest() {
	s.NoError(s.app.Shutdown(context.Background()))
}

func (s *ServerSuite) TestHealthRoutesArePublic() {
	for _, path := range []string{"/health", "/health/live", "/health/ready", "/metrics"} {
		w := s.do(domain.Address{}, http.MethodGet, path, nil)
		s.Equal(http.StatusOK, w.Code, path)
	}
}

func (s *ServerSuite) TestProtocolRoutesNeedCaller() {
	w := s.do(domain.Address{}, http.MethodGet, "/events", nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(testutil.Accounts.Alice, http.MethodGet, "/events", nil)
	s.Equal(http.StatusOK, w.Code)
}

func (s *ServerSuite) TestAdminRoutesNeedOwner() {
	body := map[string]string{"account": testutil.Accounts.Alice.Hex(), "amount": "5"}

	w := s.do(testutil.Accounts.Alice, http.MethodPost, "/admin/ledger/credit", body)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(s.cfg.Chain.Owner, http.MethodPost, "/admin/ledger/credit", body)
	s.Equal(http.StatusOK, w.Code, w.Body.String())
}

// With VERIFICATION_SOURCE=crosschain, distribution only trusts relayed
// status, so a locally verified sender must relay before batch sending.
func (s *ServerSuite) TestCrosschainSourceGatesDistribution() {
	alice := testutil.Accounts.Alice
	s.verify(alice)
	w := s.do(s.cfg.Chain.Owner, http.MethodPost, "/admin/ledger/credit",
		map[string]string{"account": alice.Hex(), "amount": "100"})
	s.Require().Equal(http.StatusOK, w.Code)

	batch := map[string]any{
		"recipients": []string{testutil.Accounts.Bob.Hex()},
		"amounts":    []string{"10"},
		"value":      "10",
	}
	w = s.do(alice, http.MethodPost, "/multisend/native", batch)
	s.Equal(http.StatusPreconditionFailed, w.Code, w.Body.String())

	w = s.do(alice, http.MethodPost, "/relay", map[string]any{
		"destination_domain": 7,
		"recipient":          s.cfg.Chain.RegistryAddress.Hex(),
		"account":            alice.Hex(),
	})
	s.Require().Equal(http.StatusAccepted, w.Code, w.Body.String())

	w = s.do(alice, http.MethodPost, "/relay/await", map[string]any{"account": alice.Hex()})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.do(alice, http.MethodGet, "/crosschain/verification/"+alice.Hex(), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var st models.Status
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &st))
	s.True(st.Verified)

	w = s.do(alice, http.MethodPost, "/multisend/native", batch)
	s.Equal(http.StatusOK, w.Code, w.Body.String())
}

func TestNewRejectsUnknownWritePolicy(t *testing.T) {
	cfg := testConfig()
	cfg.Relay.WritePolicy = "latest"

	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), WithRegistry(prometheus.NewRegistry()))
	require.Error(t, err)
}

func TestRunReturnsWhenContextEnds(t *testing.T) {
	app, err := New(context.Background(), testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)), WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, app.Run(ctx))
	assert.NoError(t, app.Shutdown(context.Background()))
}
