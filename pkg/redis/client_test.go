package redis

import (
	"errors"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestIsNilError(t *testing.T) {
	assert.True(t, IsNilError(redis.Nil))
	assert.True(t, IsNilError(fmt.Errorf("get lock: %w", redis.Nil)))
	assert.False(t, IsNilError(errors.New("connection refused")))
	assert.False(t, IsNilError(nil))
}
