package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"proofdrop/internal/distribution/ledger"
	"proofdrop/internal/events"
	eventsmemory "proofdrop/internal/events/store/memory"
	"proofdrop/internal/platform/logger"
	"proofdrop/internal/relay/confirm"
	"proofdrop/internal/relay/mailbox"
	"proofdrop/internal/relay/receiver"
	"proofdrop/internal/relay/sender"
	"proofdrop/internal/relay/trusted"
	"proofdrop/internal/verification/models"
	"proofdrop/internal/verification/store"
	"proofdrop/pkg/domain"
	"proofdrop/pkg/platform/middleware/requesttime"
	"proofdrop/pkg/requestcontext"
	"proofdrop/pkg/testutil"
)

const (
	origin      domain.Domain = 1
	destination domain.Domain = 10
)

func asCaller(account domain.Address) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(r.Context(), account)))
		})
	}
}

type HandlerSuite struct {
	suite.Suite
	local    *mailbox.Local
	trusted  *trusted.Set
	receiver *receiver.Receiver
	sender   *sender.Sender
	poller   *confirm.Poller
	sender32 domain.Bytes32
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	emitter := events.NewPublisher(eventsmemory.New())
	owner := testutil.Accounts.Owner
	s.sender32 = domain.SenderIDFromAddress(testutil.Accounts.Contract)
	s.trusted = trusted.New(trusted.NewInMemoryStore(), emitter, owner, false, nil, logger.Discard())
	s.receiver = receiver.New(store.NewInMemoryStore(), receiver.NewInMemoryStore(), receiver.NewInMemoryStore(), s.trusted, emitter,
		receiver.Config{Owner: owner, Mailbox: testutil.Accounts.Mailbox, SourceDomain: origin}, logger.Discard())
	s.local = mailbox.NewLocal(origin, testutil.Accounts.Mailbox, mailbox.NewInMemoryNonces(), logger.Discard(),
		mailbox.WithDeliveryClock(func() time.Time { return testutil.FixedNow }))
	s.local.Register(destination, s.receiver)
	s.sender = sender.New(testutil.NewVerifiedAccounts(testutil.Accounts.Alice), s.local, ledger.NewMemory(), emitter,
		sender.Config{Registry: testutil.Accounts.Contract, FeeSink: testutil.NumberedAccount(900)}, logger.Discard())
	s.poller = confirm.New(time.Millisecond, 1000, logger.Discard())
}

func (s *HandlerSuite) do(caller domain.Address, method, path, body string) *httptest.ResponseRecorder {
	h := New(s.trusted, s.receiver, s.sender, s.poller, logger.Discard(), nil)
	r := chi.NewRouter()
	r.Use(requesttime.MiddlewareWithClock(func() time.Time { return testutil.FixedNow }))
	r.Use(asCaller(caller))
	h.Register(r)
	h.RegisterAdmin(r)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestTrustedSenderLifecycle() {
	owner := testutil.Accounts.Owner
	contract := testutil.Accounts.Contract.Hex()

	rec := s.do(owner, http.MethodPost, "/admin/trusted-senders", `{"sender":"`+contract+`"}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(testutil.Accounts.Bob, http.MethodGet, "/trusted-senders/"+s.sender32.Hex(), "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var got TrustedSenderResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.True(got.Trusted)
	s.False(got.Enforced)

	rec = s.do(owner, http.MethodPut, "/admin/trusted-senders/enforcement", `{"enforce":true}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var list TrustedSendersResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &list))
	s.True(list.Enforced)
	s.Len(list.Senders, 1)

	rec = s.do(owner, http.MethodDelete, "/admin/trusted-senders/"+contract, "")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.False(got.Trusted)
}

func (s *HandlerSuite) TestAdminRoutesRejectNonOwner() {
	rec := s.do(testutil.Accounts.Bob, http.MethodPost, "/admin/trusted-senders", `{"sender":"`+testutil.Accounts.Contract.Hex()+`"}`)
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(testutil.Accounts.Bob, http.MethodPut, "/admin/relay/mailbox", `{"mailbox":"`+testutil.Accounts.Carol.Hex()+`"}`)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *HandlerSuite) TestEnforcementRequiresFlag() {
	rec := s.do(testutil.Accounts.Owner, http.MethodPut, "/admin/trusted-senders/enforcement", `{}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestRelayThenAwait() {
	body := `{"destination_domain":10,"recipient":"` + testutil.Accounts.Carol.Hex() + `","account":"` + testutil.Accounts.Alice.Hex() + `"}`
	rec := s.do(testutil.Accounts.Bob, http.MethodPost, "/relay", body)
	s.Require().Equal(http.StatusAccepted, rec.Code, rec.Body.String())
	var relayed sender.Relayed
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &relayed))
	s.False(relayed.MessageID.IsZero())

	s.local.Wait()
	rec = s.do(testutil.Accounts.Bob, http.MethodPost, "/relay/await", `{"account":"`+testutil.Accounts.Alice.Hex()+`"}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var awaited AwaitResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &awaited))
	s.Equal(relayed.ExpiresAt.Unix(), awaited.ExpiresAt)

	rec = s.do(testutil.Accounts.Bob, http.MethodGet, "/crosschain/verification/"+testutil.Accounts.Alice.Hex(), "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var status models.Status
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &status))
	s.True(status.Verified)
}

func (s *HandlerSuite) TestRelayUnverifiedAccount() {
	body := `{"destination_domain":10,"recipient":"` + testutil.Accounts.Carol.Hex() + `","account":"` + testutil.Accounts.Bob.Hex() + `"}`
	rec := s.do(testutil.Accounts.Bob, http.MethodPost, "/relay", body)
	s.Equal(http.StatusPreconditionFailed, rec.Code, rec.Body.String())
}

func (s *HandlerSuite) TestAwaitTimesOut() {
	s.poller = confirm.New(time.Millisecond, 3, logger.Discard())
	rec := s.do(testutil.Accounts.Bob, http.MethodPost, "/relay/await", `{"account":"`+testutil.Accounts.Bob.Hex()+`"}`)
	s.Equal(http.StatusGatewayTimeout, rec.Code)
	s.Contains(rec.Body.String(), `"retryable":true`)
}

func (s *HandlerSuite) TestDirectMailboxDelivery() {
	message, err := mailbox.EncodeVerification(testutil.Accounts.Bob, testutil.FixedNow.Add(time.Hour))
	s.Require().NoError(err)
	body := `{"origin_domain":1,"sender":"` + s.sender32.Hex() + `","message":"` + hexutil.Encode(message) + `"}`

	rec := s.do(testutil.Accounts.Bob, http.MethodPost, "/mailbox/handle", body)
	s.Equal(http.StatusForbidden, rec.Code, rec.Body.String())

	rec = s.do(testutil.Accounts.Mailbox, http.MethodPost, "/mailbox/handle", body)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	ok, err := s.receiver.IsVerified(requestcontext.WithTime(context.Background(), testutil.FixedNow), testutil.Accounts.Bob)
	s.Require().NoError(err)
	s.True(ok)

	wrongOrigin := strings.Replace(body, `"origin_domain":1`, `"origin_domain":7`, 1)
	rec = s.do(testutil.Accounts.Mailbox, http.MethodPost, "/mailbox/handle", wrongOrigin)
	s.Equal(http.StatusForbidden, rec.Code, rec.Body.String())
}
