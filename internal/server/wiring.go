package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"proofdrop/internal/distribution/airdrop"
	distributionhandler "proofdrop/internal/distribution/handler"
	"proofdrop/internal/distribution/ledger"
	"proofdrop/internal/distribution/multisend"
	"proofdrop/internal/distribution/source"
	"proofdrop/internal/events"
	eventshandler "proofdrop/internal/events/handler"
	eventsmemory "proofdrop/internal/events/store/memory"
	eventspostgres "proofdrop/internal/events/store/postgres"
	jwttoken "proofdrop/internal/jwt_token"
	"proofdrop/internal/platform/config"
	"proofdrop/internal/platform/database"
	"proofdrop/internal/platform/health"
	"proofdrop/internal/platform/kafka"
	"proofdrop/internal/platform/kafka/consumer"
	"proofdrop/internal/platform/kafka/producer"
	"proofdrop/internal/platform/metrics"
	redisclient "proofdrop/internal/platform/redis"
	"proofdrop/internal/platform/tracer"
	"proofdrop/internal/relay/confirm"
	relayhandler "proofdrop/internal/relay/handler"
	"proofdrop/internal/relay/mailbox"
	"proofdrop/internal/relay/receiver"
	"proofdrop/internal/relay/sender"
	"proofdrop/internal/relay/trusted"
	verificationhandler "proofdrop/internal/verification/handler"
	"proofdrop/internal/verification/service"
	"proofdrop/internal/verification/store"
	"proofdrop/migrations"
	"proofdrop/pkg/platform/circuit"
	"proofdrop/pkg/platform/outbox"
	outboxmetrics "proofdrop/pkg/platform/outbox/metrics"
	outboxmemory "proofdrop/pkg/platform/outbox/store/memory"
	outboxpostgres "proofdrop/pkg/platform/outbox/store/postgres"
	"proofdrop/pkg/platform/outbox/worker"
)

// infra holds the optional external connections. A nil pool or client
// selects the in-memory backend for that concern.
type infra struct {
	pool  *database.Pool
	redis *redisclient.Client
}

func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		if err := database.Migrate(ctx, pool.DB(), migrations.FS, log); err != nil {
			pool.Close() //nolint:errcheck // best-effort cleanup on init failure
			return nil, err
		}
		log.Info("postgres connected, migrations applied")
	} else {
		log.Warn("DB_URL not set, using in-memory stores")
	}

	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		if pool != nil {
			pool.Close() //nolint:errcheck // best-effort cleanup on init failure
		}
		return nil, err
	}
	if rc == nil {
		log.Info("REDIS_URL not set, verification cache disabled")
	}
	return &infra{pool: pool, redis: rc}, nil
}

func (i *infra) db() *sql.DB {
	if i.pool == nil {
		return nil
	}
	return i.pool.DB()
}

func (i *infra) Close() {
	if i.redis != nil {
		_ = i.redis.Close() //nolint:errcheck // shutdown path
	}
	if i.pool != nil {
		_ = i.pool.Close() //nolint:errcheck // shutdown path
	}
}

// App is the composed service: the HTTP handler plus the background jobs
// and shutdown hooks behind it.
type App struct {
	handler http.Handler
	infra   *infra

	health       *health.Handler
	jwt          *jwttoken.JWTService
	verification *verificationhandler.Handler
	relay        *relayhandler.Handler
	distribution *distributionhandler.Handler
	events       *eventshandler.Handler

	background []func(ctx context.Context) error
	stoppers   []func(ctx context.Context) error
}

type options struct {
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
}

type Option func(*options)

// WithRegistry registers every collector on reg and serves /metrics from it.
// Tests that build more than one App per process need a fresh registry each.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registerer = reg
		o.gatherer = reg
	}
}

// New connects the configured backends, applies migrations and wires every
// module. Empty DB_URL and REDIS_URL select in-memory backends.
func New(ctx context.Context, cfg config.Config, log *slog.Logger, opts ...Option) (*App, error) {
	o := options{
		registerer: prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	in, err := openInfra(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a, err := build(ctx, cfg, in, o, log)
	if err != nil {
		in.Close()
		return nil, err
	}
	a.infra = in
	a.handler = newRouter(cfg, a, o, log)
	return a, nil
}

func (a *App) Handler() http.Handler {
	return a.handler
}

// Run blocks running the background jobs (the kafka mailbox consumer)
// until ctx ends or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, job := range a.background {
		g.Go(func() error { return job(gctx) })
	}
	return g.Wait()
}

// Shutdown runs the stop hooks in reverse order, then closes connections.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(a.stoppers) - 1; i >= 0; i-- {
		if err := a.stoppers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.infra != nil {
		a.infra.Close()
	}
	return errors.Join(errs...)
}

// backends are the per-concern stores for the selected persistence mode.
type backends struct {
	registry   service.Store
	received   receiver.RecordStore
	deliveries receiver.DeliveryStore
	settings   receiver.SettingsStore
	trusted    trusted.Store
	nonces     mailbox.NonceStore
	outbox     outbox.Store
	events     events.Store
	ledger     ledger.Ledger
	airdrops   airdrop.Store
}

func newBackends(cfg config.Config, in *infra, m *metrics.Metrics, log *slog.Logger) *backends {
	var b backends
	if db := in.db(); db != nil {
		registry := store.NewPostgres(db, store.TableRegistry)
		relayStore := receiver.NewPostgresStore(db)
		b = backends{
			registry:   registry,
			received:   store.NewPostgres(db, store.TableReceiver),
			deliveries: relayStore,
			settings:   relayStore,
			trusted:    trusted.NewPostgresStore(db),
			nonces:     mailbox.NewPostgresNonces(db),
			outbox:     outboxpostgres.New(db),
			events:     eventspostgres.New(db),
			ledger:     ledger.NewPostgres(db),
			airdrops:   airdrop.NewPostgresStore(db),
		}
	} else {
		relayStore := receiver.NewInMemoryStore()
		b = backends{
			registry:   store.NewInMemoryStore(),
			received:   store.NewInMemoryStore(),
			deliveries: relayStore,
			settings:   relayStore,
			trusted:    trusted.NewInMemoryStore(),
			nonces:     mailbox.NewInMemoryNonces(),
			outbox:     outboxmemory.New(),
			events:     eventsmemory.New(),
			ledger:     ledger.NewMemory(),
			airdrops:   airdrop.NewInMemoryStore(),
		}
	}

	if in.redis != nil {
		ttl := cfg.Verification.CacheTTL
		cooldown := circuit.WithCooldown(cfg.Verification.CacheCooldown)
		b.registry = &cachedRegistryStore{
			records: store.NewCachedStore(b.registry, in.redis.Client, "registry", ttl, m, log, cooldown),
			scopes:  b.registry,
		}
		b.received = store.NewCachedStore(b.received, in.redis.Client, "receiver", ttl, m, log, cooldown)
	}
	return &b
}

func build(ctx context.Context, cfg config.Config, in *infra, o options, log *slog.Logger) (*App, error) {
	m := metrics.NewWith(o.registerer)
	tr := tracer.NewOTel(tracer.WithChainDomain(cfg.Chain.Domain), tracer.WithEnvironment(cfg.Environment))
	b := newBackends(cfg, in, m, log)
	a := &App{
		health: health.New(cfg.Environment),
		jwt:    jwttoken.NewJWTService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.TokenTTL),
	}
	a.health.SetInfo("relay_transport", cfg.Relay.Transport)
	a.health.SetInfo("verification_source", cfg.Verification.Source)
	a.health.SetInfo("chain_domain", cfg.Chain.Domain.String())
	if in.pool != nil {
		a.health.RegisterCheck("postgres", in.pool.Health)
	}
	if in.redis != nil {
		a.health.RegisterCheck("redis", in.redis.Health)
		if err := o.registerer.Register(redisclient.NewPoolCollector(in.redis)); err != nil {
			return nil, fmt.Errorf("register redis pool collector: %w", err)
		}
	}

	kafkaMode := cfg.Relay.Transport == "kafka"
	pubOpts := []events.Option{events.WithLogger(log)}
	if kafkaMode {
		pubOpts = append(pubOpts, events.WithOutbox(b.outbox, cfg.Kafka.EventsTopic()))
	}
	publisher := events.NewPublisher(b.events, pubOpts...)
	uow := database.NewTransactor(in.db())
	a.stoppers = append(a.stoppers, func(context.Context) error {
		publisher.Close()
		return nil
	})

	registry := service.New(b.registry, publisher, service.Config{
		Address:   cfg.Chain.RegistryAddress,
		Owner:     cfg.Chain.Owner,
		Hub:       cfg.Chain.Hub,
		ScopeSeed: cfg.Verification.ScopeSeed,
	}, log, service.WithTTL(cfg.Verification.TTL), service.WithMetrics(m), service.WithTracer(tr), service.WithTransactor(uow))

	senders := trusted.New(b.trusted, publisher, cfg.Chain.Owner, cfg.Relay.EnforceTrusted, m, log, trusted.WithTransactor(uow))

	policy, err := receiver.ParseWritePolicy(cfg.Relay.WritePolicy)
	if err != nil {
		return nil, err
	}
	recv := receiver.New(b.received, b.deliveries, b.settings, senders, publisher, receiver.Config{
		Owner:        cfg.Chain.Owner,
		Mailbox:      cfg.Chain.Mailbox,
		SourceDomain: cfg.Relay.OriginDomain,
		WritePolicy:  policy,
	}, log, receiver.WithMetrics(m), receiver.WithTracer(tr), receiver.WithTransactor(uow))

	var dispatcher mailbox.Dispatcher
	if kafkaMode {
		d, err := a.wireKafka(ctx, cfg, b, recv, m, o, log)
		if err != nil {
			return nil, err
		}
		dispatcher = d
	} else {
		local := mailbox.NewLocal(cfg.Chain.Domain, cfg.Chain.Mailbox, b.nonces, log)
		local.Register(cfg.Chain.Domain, recv)
		a.stoppers = append(a.stoppers, func(context.Context) error {
			local.Wait()
			return nil
		})
		dispatcher = local
	}

	verifier, err := source.Select(cfg.Verification.Source, registry, recv)
	if err != nil {
		return nil, err
	}

	relaySender := sender.New(registry, dispatcher, b.ledger, publisher, sender.Config{
		Registry: cfg.Chain.RegistryAddress,
		FeeSink:  cfg.Chain.FeeSinkAddress,
	}, log, sender.WithMetrics(m), sender.WithTracer(tr))
	poller := confirm.New(cfg.Relay.AwaitInterval, cfg.Relay.AwaitAttempts, log, confirm.WithMetrics(m), confirm.WithTracer(tr))

	batches := multisend.New(verifier, b.ledger, publisher, cfg.Chain.MultiSendAddress, log,
		multisend.WithMetrics(m), multisend.WithTracer(tr))
	drops := airdrop.New(b.airdrops, verifier, b.ledger, publisher, cfg.Chain.AirdropAddress, log,
		airdrop.WithMetrics(m), airdrop.WithTracer(tr))
	balances := ledger.NewService(b.ledger, cfg.Chain.Owner, log)

	a.verification = verificationhandler.New(registry, log, m)
	a.relay = relayhandler.New(senders, recv, relaySender, poller, log, m)
	a.distribution = distributionhandler.New(batches, drops, balances, log, m)
	a.events = eventshandler.New(publisher, log)
	return a, nil
}

// wireKafka routes outgoing envelopes and events through the outbox and
// consumes this chain's mailbox topic.
func (a *App) wireKafka(ctx context.Context, cfg config.Config, b *backends, recv *receiver.Receiver, m *metrics.Metrics, o options, log *slog.Logger) (mailbox.Dispatcher, error) {
	inbound := cfg.Kafka.MailboxTopic(cfg.Chain.Domain)
	if err := kafka.EnsureTopics(ctx, cfg.Kafka, inbound, cfg.Kafka.EventsTopic()); err != nil {
		return nil, err
	}

	prod, err := producer.New(cfg.Kafka, log)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	w := worker.New(b.outbox, prod,
		worker.WithBatchSize(cfg.Kafka.OutboxBatchSize),
		worker.WithPollInterval(cfg.Kafka.OutboxPollInterval),
		worker.WithMetrics(outboxmetrics.NewWith(o.registerer)),
		worker.WithLogger(log),
	)
	w.Start()
	a.stoppers = append(a.stoppers, func(context.Context) error { return prod.Close() }, w.Stop)

	cons, err := consumer.New(cfg.Kafka, []string{inbound}, mailbox.NewInbound(recv, cfg.Chain.Mailbox, m, log), log)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	a.background = append(a.background, cons.Run)

	hc, err := kafka.NewHealthChecker(cfg.Kafka, inbound, cfg.Kafka.EventsTopic())
	if err != nil {
		return nil, err
	}
	a.stoppers = append(a.stoppers, func(context.Context) error {
		hc.Close()
		return nil
	})
	a.health.RegisterCheck("kafka", hc.Check)
	a.health.RegisterCheck("kafka_producer", prod.Health)

	log.Info("kafka relay transport ready", "inbound_topic", inbound, "events_topic", cfg.Kafka.EventsTopic())
	return mailbox.NewOutboxDispatcher(cfg.Chain.Domain, b.nonces, b.outbox, cfg.Kafka.MailboxTopic, log), nil
}
