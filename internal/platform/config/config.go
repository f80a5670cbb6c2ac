package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	"proofdrop/pkg/domain"
)

// Config is the full process configuration, read once from the environment
// so main stays lean. Empty connection URLs select the in-memory backends.
type Config struct {
	Addr        string     `env:"PROOFDROP_ADDR" envDefault:":8080"`
	Environment string     `env:"PROOFDROP_ENV" envDefault:"dev"`
	LogLevel    slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	Database     DatabaseConfig     `envPrefix:"DB_"`
	Redis        RedisConfig        `envPrefix:"REDIS_"`
	Kafka        KafkaConfig        `envPrefix:"KAFKA_"`
	Chain        ChainConfig        `envPrefix:"CHAIN_"`
	Auth         AuthConfig         `envPrefix:"AUTH_"`
	Relay        RelayConfig        `envPrefix:"RELAY_"`
	Verification VerificationConfig `envPrefix:"VERIFICATION_"`
}

type DatabaseConfig struct {
	URL             string        `env:"URL"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
}

type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

type KafkaConfig struct {
	Brokers            string        `env:"BROKERS"`
	TopicPrefix        string        `env:"TOPIC_PREFIX" envDefault:"proofdrop"`
	GroupID            string        `env:"GROUP_ID" envDefault:"proofdrop-relay"`
	Acks               string        `env:"ACKS" envDefault:"all"`
	Retries            int           `env:"RETRIES" envDefault:"3"`
	DeliveryTimeout    time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"30s"`
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"200ms"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	Partitions         int32         `env:"PARTITIONS" envDefault:"3"`
	ReplicationFactor  int16         `env:"REPLICATION_FACTOR" envDefault:"1"`
}

// ChainConfig names this deployment's chain and the privileged addresses.
type ChainConfig struct {
	Domain domain.Domain `env:"DOMAIN" envDefault:"1"`

	Owner   domain.Address `env:"OWNER"`
	Hub     domain.Address `env:"HUB"`
	Mailbox domain.Address `env:"MAILBOX"`

	RegistryAddress  domain.Address `env:"REGISTRY_ADDRESS" envDefault:"0x00000000000000000000000000000000000a11ce"`
	MultiSendAddress domain.Address `env:"MULTISEND_ADDRESS" envDefault:"0x000000000000000000000000000000000000b001"`
	AirdropAddress   domain.Address `env:"AIRDROP_ADDRESS" envDefault:"0x000000000000000000000000000000000000b002"`
	FeeSinkAddress   domain.Address `env:"FEE_SINK_ADDRESS" envDefault:"0x000000000000000000000000000000000000b003"`
}

type AuthConfig struct {
	SigningKey string        `env:"SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	Issuer     string        `env:"ISSUER" envDefault:"proofdrop"`
	TokenTTL   time.Duration `env:"TOKEN_TTL" envDefault:"15m"`
}

// RelayConfig configures both relay directions.
// Transport "local" delivers in-process; "kafka" goes through the outbox.
type RelayConfig struct {
	Transport      string        `env:"TRANSPORT" envDefault:"local"`
	OriginDomain   domain.Domain `env:"ORIGIN_DOMAIN" envDefault:"1"`
	EnforceTrusted bool          `env:"ENFORCE_TRUSTED" envDefault:"false"`
	WritePolicy    string        `env:"WRITE_POLICY" envDefault:"max"`
	AwaitInterval  time.Duration `env:"AWAIT_INTERVAL" envDefault:"2s"`
	AwaitAttempts  int           `env:"AWAIT_ATTEMPTS" envDefault:"30"`
}

type VerificationConfig struct {
	Source    string        `env:"SOURCE" envDefault:"local"`
	TTL       time.Duration `env:"TTL" envDefault:"720h"`
	ScopeSeed string        `env:"SCOPE_SEED" envDefault:"proofdrop"`
	CacheTTL  time.Duration `env:"CACHE_TTL" envDefault:"5m"`

	// CacheCooldown is how long an open cache breaker waits before probing
	// Redis again.
	CacheCooldown time.Duration `env:"CACHE_COOLDOWN" envDefault:"5s"`
}

// FromEnv parses and validates the configuration.
func FromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c Config) Validate() error {
	if c.Chain.Owner.IsZero() {
		return fmt.Errorf("CHAIN_OWNER must be set")
	}
	if c.Chain.Hub.IsZero() {
		return fmt.Errorf("CHAIN_HUB must be set")
	}
	switch c.Relay.Transport {
	case "local":
	case "kafka":
		if c.Kafka.Brokers == "" {
			return fmt.Errorf("RELAY_TRANSPORT=kafka requires KAFKA_BROKERS")
		}
		switch c.Kafka.Acks {
		case "0", "1", "all":
		default:
			return fmt.Errorf("unknown KAFKA_ACKS %q", c.Kafka.Acks)
		}
	default:
		return fmt.Errorf("unknown RELAY_TRANSPORT %q", c.Relay.Transport)
	}
	switch c.Relay.WritePolicy {
	case "max", "overwrite":
	default:
		return fmt.Errorf("unknown RELAY_WRITE_POLICY %q", c.Relay.WritePolicy)
	}
	switch c.Verification.Source {
	case "local", "crosschain":
	default:
		return fmt.Errorf("unknown VERIFICATION_SOURCE %q", c.Verification.Source)
	}
	if c.Verification.TTL <= 0 {
		return fmt.Errorf("VERIFICATION_TTL must be positive")
	}
	if c.Relay.AwaitAttempts <= 0 || c.Relay.AwaitInterval <= 0 {
		return fmt.Errorf("RELAY_AWAIT_INTERVAL and RELAY_AWAIT_ATTEMPTS must be positive")
	}
	return nil
}

// MailboxTopic is the Kafka topic carrying envelopes destined for d.
func (k KafkaConfig) MailboxTopic(d domain.Domain) string {
	return k.TopicPrefix + ".mailbox." + d.String()
}

// EventsTopic carries the protocol event log.
func (k KafkaConfig) EventsTopic() string {
	return k.TopicPrefix + ".events"
}
