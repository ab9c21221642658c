package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitAllowsUnderThreshold(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewLimiter(db, 5, time.Minute)

	mock.ExpectIncr("ratelimit:1.2.3.4").SetVal(1)
	mock.ExpectExpire("ratelimit:1.2.3.4", time.Minute).SetVal(true)
	mock.ExpectTTL("ratelimit:1.2.3.4").SetVal(time.Minute)

	result, err := limiter.Limit(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 4, result.Remaining)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLimitBlocksOverThreshold(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewLimiter(db, 5, time.Minute)

	mock.ExpectIncr("ratelimit:1.2.3.4").SetVal(6)
	mock.ExpectTTL("ratelimit:1.2.3.4").SetVal(30 * time.Second)

	result, err := limiter.Limit(context.Background(), "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Zero(t, result.Remaining)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLimitOnlyFirstHitSetsExpiry(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewLimiter(db, 5, time.Minute)

	mock.ExpectIncr("ratelimit:9.9.9.9").SetVal(2)
	mock.ExpectTTL("ratelimit:9.9.9.9").SetVal(45 * time.Second)

	_, err := limiter.Limit(context.Background(), "9.9.9.9")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet(), "Expire must only run when the counter is fresh")
}

func TestLimitSurfacesRedisErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := NewLimiter(db, 5, time.Minute)

	mock.ExpectIncr("ratelimit:1.2.3.4").SetErr(assert.AnError)

	_, err := limiter.Limit(context.Background(), "1.2.3.4")
	assert.Error(t, err, "callers decide the fail-open policy, the limiter just reports")
}
