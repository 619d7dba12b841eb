package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentsdk/pkg/config"
)

func TestRedisBackendKeyConstruction(t *testing.T) {
	b, err := NewRedisBackend(config.RedisQueueConfig{Addr: "localhost:6379", Queue: "custom:jobs"})
	require.NoError(t, err)
	assert.Equal(t, "custom:jobs:job:j1", b.jobKey("j1"))
	assert.Equal(t, "custom:jobs:dlq", b.dlqKey)

	defaulted, err := NewRedisBackend(config.RedisQueueConfig{Addr: "localhost:6379"})
	require.NoError(t, err)
	assert.Equal(t, "agentsdk:jobs", defaulted.queueKey)

	_, err = NewRedisBackend(config.RedisQueueConfig{})
	assert.Error(t, err)
}
