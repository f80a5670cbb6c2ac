package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proofdrop/pkg/domain"
)

const (
	ownerHex = "0x00000000000000000000000000000000000000aa"
	hubHex   = "0x00000000000000000000000000000000000000bb"
)

func setRequired(t *testing.T) {
	t.Setenv("CHAIN_OWNER", ownerHex)
	t.Setenv("CHAIN_HUB", hubHex)
}

func TestFromEnv_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, domain.MustAddress(ownerHex), cfg.Chain.Owner)
	assert.Equal(t, domain.Domain(1), cfg.Chain.Domain)
	assert.Equal(t, 30*24*time.Hour, cfg.Verification.TTL)
	assert.Equal(t, 5*time.Second, cfg.Verification.CacheCooldown)
	assert.Equal(t, "local", cfg.Relay.Transport)
	assert.Equal(t, "max", cfg.Relay.WritePolicy)
	assert.Equal(t, 30, cfg.Relay.AwaitAttempts)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, "proofdrop.mailbox.10", cfg.Kafka.MailboxTopic(10))
}

func TestFromEnv_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("CHAIN_DOMAIN", "42161")
	t.Setenv("RELAY_ORIGIN_DOMAIN", "8453")
	t.Setenv("RELAY_ENFORCE_TRUSTED", "true")
	t.Setenv("VERIFICATION_SOURCE", "crosschain")
	t.Setenv("DB_URL", "postgres://localhost/proofdrop")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, domain.Domain(42161), cfg.Chain.Domain)
	assert.Equal(t, domain.Domain(8453), cfg.Relay.OriginDomain)
	assert.True(t, cfg.Relay.EnforceTrusted)
	assert.Equal(t, "crosschain", cfg.Verification.Source)
	assert.Equal(t, "postgres://localhost/proofdrop", cfg.Database.URL)
}

func TestFromEnv_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"missing owner":           {"CHAIN_OWNER": "", "CHAIN_HUB": hubHex},
		"malformed hub":           {"CHAIN_OWNER": ownerHex, "CHAIN_HUB": "0x1234"},
		"kafka without brokers":   {"CHAIN_OWNER": ownerHex, "CHAIN_HUB": hubHex, "RELAY_TRANSPORT": "kafka"},
		"unknown kafka acks":      {"CHAIN_OWNER": ownerHex, "CHAIN_HUB": hubHex, "RELAY_TRANSPORT": "kafka", "KAFKA_BROKERS": "localhost:9092", "KAFKA_ACKS": "2"},
		"unknown write policy":    {"CHAIN_OWNER": ownerHex, "CHAIN_HUB": hubHex, "RELAY_WRITE_POLICY": "min"},
		"unknown source":          {"CHAIN_OWNER": ownerHex, "CHAIN_HUB": hubHex, "VERIFICATION_SOURCE": "oracle"},
		"non-positive await":      {"CHAIN_OWNER": ownerHex, "CHAIN_HUB": hubHex, "RELAY_AWAIT_ATTEMPTS": "0"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			require.Error(t, err)
		})
	}
}
