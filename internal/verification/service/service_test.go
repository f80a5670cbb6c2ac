package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"proofdrop/internal/events"
	eventsmemory "proofdrop/internal/events/store/memory"
	"proofdrop/internal/platform/logger"
	"proofdrop/internal/verification/models"
	"proofdrop/internal/verification/service/mocks"
	"proofdrop/internal/verification/store"
	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
	"proofdrop/pkg/platform/sentinel"
	"proofdrop/pkg/requestcontext"
	"proofdrop/pkg/testutil"
)

var registryAddress = testutil.Accounts.Contract

func hookPayloadFor(t *testing.T, account domain.Address) []byte {
	t.Helper()
	data, err := EncodeHookPayload(HookPayload{
		DestinationChainID: domain.BytesToBytes32([]byte{0x2a}),
		UserIdentifier:     domain.SenderIDFromAddress(account),
		PolicyData:         []byte("age>=18"),
	})
	require.NoError(t, err)
	return data
}

type RegistrySuite struct {
	suite.Suite
	store    *store.InMemoryStore
	events   *eventsmemory.Store
	registry *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.store = store.NewInMemoryStore()
	s.events = eventsmemory.New()
	s.registry = New(s.store, events.NewPublisher(s.events), Config{
		Address:   registryAddress,
		Owner:     testutil.Accounts.Owner,
		Hub:       testutil.Accounts.Hub,
		ScopeSeed: "proofdrop",
	}, logger.Discard())
}

func (s *RegistrySuite) at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *RegistrySuite) TestNeverVerified() {
	ctx := s.at(testutil.FixedNow)
	ok, err := s.registry.IsVerified(ctx, testutil.Accounts.Alice)
	s.Require().NoError(err)
	s.False(ok)

	exp, err := s.registry.ExpiresAt(ctx, testutil.Accounts.Alice)
	s.Require().NoError(err)
	s.True(exp.IsZero())
}

func (s *RegistrySuite) TestHookIssuesThirtyDayCredential() {
	alice := testutil.Accounts.Alice
	ctx := s.at(testutil.FixedNow)

	rec, err := s.registry.Hook(ctx, testutil.Accounts.Hub, hookPayloadFor(s.T(), alice))
	s.Require().NoError(err)
	want := testutil.FixedNow.Add(30 * 24 * time.Hour)
	s.Equal(want, rec.ExpiresAt)

	exp, err := s.registry.ExpiresAt(ctx, alice)
	s.Require().NoError(err)
	s.Equal(want, exp)

	s.Run("valid until the expiry instant", func() {
		ok, err := s.registry.IsVerified(s.at(want.Add(-time.Second)), alice)
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("invalid at and after the expiry instant", func() {
		ok, err := s.registry.IsVerified(s.at(want), alice)
		s.Require().NoError(err)
		s.False(ok)
		ok, err = s.registry.IsVerified(s.at(want.Add(time.Second)), alice)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("emits Verified", func() {
		got, err := s.events.List(ctx, events.Filter{Name: events.Verified})
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal(alice.Hex(), got[0].Attr("account"))
		s.Equal(want.Format(time.RFC3339), got[0].Attr("expires_at"))
	})
}

func (s *RegistrySuite) TestReverificationExtendsExpiry() {
	alice := testutil.Accounts.Alice
	first, err := s.registry.Hook(s.at(testutil.FixedNow), testutil.Accounts.Hub, hookPayloadFor(s.T(), alice))
	s.Require().NoError(err)

	later := testutil.FixedNow.Add(10 * 24 * time.Hour)
	second, err := s.registry.Hook(s.at(later), testutil.Accounts.Hub, hookPayloadFor(s.T(), alice))
	s.Require().NoError(err)
	s.True(second.ExpiresAt.After(first.ExpiresAt))
}

func (s *RegistrySuite) TestHookNeverRegressesExpiry() {
	alice := testutil.Accounts.Alice
	first, err := s.registry.Hook(s.at(testutil.FixedNow), testutil.Accounts.Hub, hookPayloadFor(s.T(), alice))
	s.Require().NoError(err)

	// A skewed clock reading earlier than the first hook.
	second, err := s.registry.Hook(s.at(testutil.FixedNow.Add(-time.Hour)), testutil.Accounts.Hub, hookPayloadFor(s.T(), alice))
	s.Require().NoError(err)
	s.Equal(first.ExpiresAt, second.ExpiresAt)
}

func (s *RegistrySuite) TestHookRejections() {
	ctx := s.at(testutil.FixedNow)

	s.Run("caller is not the hub", func() {
		_, err := s.registry.Hook(ctx, testutil.Accounts.Alice, hookPayloadFor(s.T(), testutil.Accounts.Alice))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		ok, _ := s.registry.IsVerified(ctx, testutil.Accounts.Alice)
		s.False(ok)
	})

	s.Run("malformed payload", func() {
		_, err := s.registry.Hook(ctx, testutil.Accounts.Hub, []byte{0x01, 0x02})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("zero account", func() {
		_, err := s.registry.Hook(ctx, testutil.Accounts.Hub, hookPayloadFor(s.T(), domain.Address{}))
		s.True(dErrors.HasCode(err, dErrors.CodeZeroAddress))
	})
}

func (s *RegistrySuite) TestScope() {
	ctx := s.at(testutil.FixedNow)

	scope, err := s.registry.Scope(ctx)
	s.Require().NoError(err)
	s.Equal(ScopeHash("proofdrop", registryAddress), scope)

	s.Run("owner updates seed and config id", func() {
		configID := domain.BytesToBytes32([]byte{0x07})
		s.Require().NoError(s.registry.SetScope(ctx, testutil.Accounts.Owner, "other-seed"))
		s.Require().NoError(s.registry.SetConfigID(ctx, testutil.Accounts.Owner, configID))

		cfg, err := s.registry.ScopeConfig(ctx)
		s.Require().NoError(err)
		s.Equal("other-seed", cfg.ScopeSeed)
		s.Equal(configID, cfg.ConfigID)

		scope, err := s.registry.Scope(ctx)
		s.Require().NoError(err)
		s.Equal(ScopeHash("other-seed", registryAddress), scope)
	})

	s.Run("non-owner is forbidden", func() {
		err := s.registry.SetConfigID(ctx, testutil.Accounts.Alice, domain.Bytes32{})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		err = s.registry.SetScope(ctx, testutil.Accounts.Alice, "x")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *RegistrySuite) TestExpiryKeepsSubSecondPrecision() {
	now := testutil.FixedNow.Add(1500 * time.Millisecond)
	rec, err := s.registry.Hook(s.at(now), testutil.Accounts.Hub, hookPayloadFor(s.T(), testutil.Accounts.Alice))
	s.Require().NoError(err)
	s.True(rec.ExpiresAt.Equal(now.Add(DefaultTTL)), "got %s", rec.ExpiresAt)

	ok, err := s.registry.IsVerified(s.at(now.Add(DefaultTTL).Add(-time.Millisecond)), testutil.Accounts.Alice)
	s.Require().NoError(err)
	s.True(ok, "still valid a millisecond before now+TTL")
}

func (s *RegistrySuite) TestFailedEmitStoresNothing() {
	emitter := testutil.NewFaultyEmitter(events.NewPublisher(s.events))
	registry := New(s.store, emitter, Config{
		Address:   registryAddress,
		Owner:     testutil.Accounts.Owner,
		Hub:       testutil.Accounts.Hub,
		ScopeSeed: "proofdrop",
	}, logger.Discard())
	ctx := s.at(testutil.FixedNow)

	emitter.Break()
	_, err := registry.Hook(ctx, testutil.Accounts.Hub, hookPayloadFor(s.T(), testutil.Accounts.Alice))
	s.Require().ErrorIs(err, testutil.ErrEmitFailed)
	rec, err := registry.Record(ctx, testutil.Accounts.Alice)
	s.Require().NoError(err)
	s.Nil(rec)

	err = registry.SetScope(ctx, testutil.Accounts.Owner, "other-seed")
	s.Require().ErrorIs(err, testutil.ErrEmitFailed)
	cfg, err := registry.ScopeConfig(ctx)
	s.Require().NoError(err)
	s.Equal("proofdrop", cfg.ScopeSeed)

	emitter.Fix()
	_, err = registry.Hook(ctx, testutil.Accounts.Hub, hookPayloadFor(s.T(), testutil.Accounts.Alice))
	s.Require().NoError(err)
	got, err := s.events.List(ctx, events.Filter{Name: events.Verified})
	s.Require().NoError(err)
	s.Len(got, 1)
}

func TestScopeHashDependsOnRegistryAddress(t *testing.T) {
	a := ScopeHash("seed", testutil.Accounts.Contract)
	b := ScopeHash("seed", testutil.Accounts.Token)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, ScopeHash("seed", testutil.Accounts.Contract))
}

func TestHookPropagatesStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockStore(ctrl)
	registry := New(mockStore, events.NewPublisher(eventsmemory.New()), Config{
		Hub: testutil.Accounts.Hub,
	}, logger.Discard())

	mockStore.EXPECT().Get(gomock.Any(), testutil.Accounts.Alice).Return(nil, sentinel.ErrNotFound)
	mockStore.EXPECT().Put(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))

	_, err := registry.Hook(context.Background(), testutil.Accounts.Hub, hookPayloadFor(t, testutil.Accounts.Alice))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestReadsPropagateStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockStore(ctrl)
	registry := New(mockStore, events.NewPublisher(eventsmemory.New()), Config{}, logger.Discard())

	mockStore.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout")).Times(2)

	_, err := registry.IsVerified(context.Background(), testutil.Accounts.Alice)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	_, err = registry.ExpiresAt(context.Background(), testutil.Accounts.Alice)
	assert.Error(t, err)
}

func TestRecordStatus(t *testing.T) {
	now := testutil.FixedNow
	st := models.NewStatus(testutil.Accounts.Alice, nil, now)
	assert.False(t, st.Verified)
	assert.Zero(t, st.ExpiresAt)

	st = models.NewStatus(testutil.Accounts.Alice, &models.Record{ExpiresAt: now.Add(time.Minute)}, now)
	assert.True(t, st.Verified)
	assert.Equal(t, now.Add(time.Minute).Unix(), st.ExpiresAt)
}
