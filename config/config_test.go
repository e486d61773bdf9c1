package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConsumerGroupDefaultsPerInstance(t *testing.T) {
	t.Setenv("KAFKA_CONSUMER_GROUP", "")

	cfg := Load()
	host, err := os.Hostname()
	if err == nil && host != "" {
		assert.Equal(t, "kitchen-display-"+host, cfg.Kafka.ConsumerGroup)
	}
	assert.NotEqual(t, "kitchen-display-group", cfg.Kafka.ConsumerGroup)
	assert.Contains(t, cfg.Kafka.ConsumerGroup, "kitchen-display-")
}

func TestConsumerGroupOverride(t *testing.T) {
	t.Setenv("KAFKA_CONSUMER_GROUP", "expo-display")

	assert.Equal(t, "expo-display", Load().Kafka.ConsumerGroup)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PUSH_TRANSPORT", "AMQP")
	t.Setenv("POLL_INTERVAL_SECONDS", "-3")
	t.Setenv("CORS_ALLOWED_ORIGINS", " http://a.local, ,http://b.local")

	cfg := Load()
	assert.Equal(t, "amqp", cfg.Display.PushTransport)
	assert.Equal(t, 10*time.Second, cfg.Display.PollInterval)
	assert.Equal(t, []string{"http://a.local", "http://b.local"}, cfg.Server.CORSAllowedOrigins)
}
