package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(mapLookup(nil))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, DeliverySES, cfg.DeliveryMode)
	assert.Equal(t, LedgerPostgres, cfg.LedgerBackend)
	assert.Equal(t, 15*time.Minute, cfg.PassInterval)
	assert.Equal(t, 2*time.Minute, cfg.ClaimTTL)
	assert.Equal(t, 10, cfg.RateLimit)
	assert.Equal(t, 60, cfg.RateLimitPerIP)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.False(t, cfg.AllowClockOverride)
	assert.False(t, cfg.RunOnStart)
	assert.Equal(t, cfg.AWSRegion, cfg.SQSRegion)
	assert.Equal(t, cfg.AWSRegion, cfg.SNSRegion)
	assert.Empty(t, cfg.SNSTopicARN)
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := FromLookup(mapLookup(map[string]string{
		"PORT":                 "9090",
		"TRIGGER_TOKEN":        " tok ",
		"ALLOW_CLOCK_OVERRIDE": "true",
		"PASS_INTERVAL":        "5m",
		"RUN_ON_START":         "1",
		"TIMEZONE":             "UTC",
		"DELIVERY_MODE":        "RELAY",
		"RELAY_URL":            "https://relay.example.com/send",
		"RELAY_TIMEOUT":        "3s",
		"LEDGER_BACKEND":       "memory",
		"AWS_REGION":           "eu-west-1",
		"SNS_REGION":           "us-west-2",
		"SNS_TOPIC_ARN":        "arn:aws:sns:us-west-2:123:nudge-events",
		"RATE_LIMIT":           "0",
		"RATE_LIMIT_PER_IP":    "120",
	}))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "tok", cfg.TriggerToken)
	assert.True(t, cfg.AllowClockOverride)
	assert.Equal(t, 5*time.Minute, cfg.PassInterval)
	assert.True(t, cfg.RunOnStart)
	assert.Equal(t, DeliveryRelay, cfg.DeliveryMode)
	assert.Equal(t, 3*time.Second, cfg.RelayTimeout)
	assert.Equal(t, LedgerMemory, cfg.LedgerBackend)
	assert.Equal(t, "eu-west-1", cfg.SQSRegion)
	assert.Equal(t, "us-west-2", cfg.SNSRegion)
	assert.Equal(t, 0, cfg.RateLimit)
	assert.Equal(t, 120, cfg.RateLimitPerIP)
}

func TestFromLookup_Timezone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skip("tzdata not available")
	}

	cfg, err := FromLookup(mapLookup(map[string]string{"TIMEZONE": "Asia/Tokyo"}))
	require.NoError(t, err)
	assert.Equal(t, loc.String(), cfg.Location.String())
}

func TestFromLookup_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad port", map[string]string{"PORT": "http"}},
		{"bad interval", map[string]string{"PASS_INTERVAL": "often"}},
		{"negative interval", map[string]string{"PASS_INTERVAL": "-1m"}},
		{"bad bool", map[string]string{"ALLOW_CLOCK_OVERRIDE": "maybe"}},
		{"bad timezone", map[string]string{"TIMEZONE": "Mars/Olympus_Mons"}},
		{"unknown delivery mode", map[string]string{"DELIVERY_MODE": "pigeon"}},
		{"relay without url", map[string]string{"DELIVERY_MODE": "relay"}},
		{"sqs without queue", map[string]string{"DELIVERY_MODE": "sqs"}},
		{"unknown ledger", map[string]string{"LEDGER_BACKEND": "sqlite"}},
		{"negative rate limit", map[string]string{"RATE_LIMIT": "-5"}},
		{"negative per-ip rate limit", map[string]string{"RATE_LIMIT_PER_IP": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromLookup(mapLookup(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestFromLookup_DotenvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	contents := "DELIVERY_MODE=sqs\nSQS_QUEUE_URL=https://sqs.us-east-1.amazonaws.com/123/nudge\n# comment\nRUN_ON_START=true\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	vars, err := godotenv.Read(path)
	require.NoError(t, err)

	cfg, err := FromLookup(mapLookup(vars))
	require.NoError(t, err)

	assert.Equal(t, DeliverySQS, cfg.DeliveryMode)
	assert.Equal(t, "https://sqs.us-east-1.amazonaws.com/123/nudge", cfg.SQSQueueURL)
	assert.True(t, cfg.RunOnStart)
}
