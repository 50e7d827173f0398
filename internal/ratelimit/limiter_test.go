// Distributed rate limiter tests in Paddock.
// These run against the redis-server configured in config/test.env, the
// bucket script is what production executes.

package ratelimit

import (
	"Paddock/pkg/db"
	"Paddock/pkg/log"
	"context"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
)

// Global instance of log.Logger to be used during ratelimit testing.
var logger log.Logger

// Global instance of Db instance to be used during ratelimit testing.
var dbConnWrp *db.RedisDB

// Global context
var ctx context.Context = context.Background()

// Sets up resources before running ratelimit tests.
func setup() {
	// Initializing Resources before test run

	// Load test.env
	enverr := godotenv.Load("../../config/test.env")
	if enverr != nil {
		// Error during loading test.env, abort test run immediately
		os.Exit(4)
	}
	version := os.Getenv("VERSION")

	// Logger
	logger = log.New(version)

	// Db client instance
	var dberr error
	dbConnWrp, dberr = db.NewDbConnection(ctx, logger)
	if dberr != nil {
		logger.Fatal().Err(dberr).Msg("Redis client couldn't PING the redis-server.")
	}

	logger.Info().Msg("Test resources setup successful.")
}

// Cleans up the resources built during execution of setup()
func teardown() {
	logger.Info().Msg("Cleaning up resources ...")
	dbConnWrp.Client().Close()
	logger.Info().Msg("Cleanup complete :)")
}

func TestMain(m *testing.M) {
	// Setting up Resources
	setup()
	// Running the tests
	testExitCode := m.Run()
	// Cleanup Resources
	teardown()
	// Exiting the test
	os.Exit(testExitCode)
}

// uniqueName keeps parallel test runs from sharing a bucket.
func uniqueName() string {
	return "test-" + xid.New().String()
}

func TestAcquireBurstThenDenied(t *testing.T) {
	limiter := NewLimiter(dbConnWrp, uniqueName(), Config{Capacity: 3, RefillPerMs: 0.001}, logger)

	for i := 0; i < 3; i++ {
		allowed, wait, aqerr := limiter.Acquire(ctx)
		assert.Nil(t, aqerr)
		assert.True(t, allowed)
		assert.Zero(t, wait)
	}

	allowed, wait, aqerr := limiter.Acquire(ctx)
	assert.Nil(t, aqerr)
	assert.False(t, allowed)
	// One token refills within a second at 0.001 tokens/ms.
	assert.Greater(t, wait, time.Duration(0))
	assert.LessOrEqual(t, wait, 1100*time.Millisecond)
}

func TestBucketSharedAcrossLimiters(t *testing.T) {
	name := uniqueName()
	first := NewLimiter(dbConnWrp, name, Config{Capacity: 2, RefillPerMs: 0.001}, logger)
	second := NewLimiter(dbConnWrp, name, Config{Capacity: 2, RefillPerMs: 0.001}, logger)

	allowed, _, aqerr := first.Acquire(ctx)
	assert.Nil(t, aqerr)
	assert.True(t, allowed)
	allowed, _, aqerr = second.Acquire(ctx)
	assert.Nil(t, aqerr)
	assert.True(t, allowed)

	// Both limiters drained the same bucket.
	allowed, _, aqerr = first.Acquire(ctx)
	assert.Nil(t, aqerr)
	assert.False(t, allowed)
}

func TestDoWaitsForRefill(t *testing.T) {
	// One token capacity, 20 tokens per second: the second call has to
	// wait roughly 50ms for its token.
	limiter := NewLimiter(dbConnWrp, uniqueName(), Config{Capacity: 1, RefillPerMs: 0.02}, logger)

	calls := 0
	fn := func(ctx context.Context) error {
		calls++
		return nil
	}
	assert.Nil(t, limiter.Do(ctx, fn))

	start := time.Now()
	assert.Nil(t, limiter.Do(ctx, fn))
	assert.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestDoHonorsContextCancel(t *testing.T) {
	limiter := NewLimiter(dbConnWrp, uniqueName(), Config{Capacity: 1, RefillPerMs: 0.0001}, logger)

	assert.Nil(t, limiter.Do(ctx, func(ctx context.Context) error { return nil }))

	cancelCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	doerr := limiter.Do(cancelCtx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, doerr, context.DeadlineExceeded)
}
