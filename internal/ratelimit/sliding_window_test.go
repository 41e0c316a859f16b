/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/suite"
)

type SlidingWindowLimiterTestSuite struct {
	suite.Suite
}

func TestSlidingWindowLimiter(t *testing.T) {
	suite.Run(t, new(SlidingWindowLimiterTestSuite))
}

func (ts *SlidingWindowLimiterTestSuite) TestAllowSequential() {
	limiter, err := NewSlidingWindowLimiter(Rate{Count: 2, Duration: time.Minute}, 100)
	ts.Require().NoError(err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allow, retryAfter, err := limiter.Allow(ctx, "rl:op:a")
		ts.Require().NoError(err)
		ts.Require().True(allow)
		ts.Require().Zero(retryAfter)
	}

	allow, retryAfter, err := limiter.Allow(ctx, "rl:op:a")
	ts.Require().NoError(err)
	ts.Require().False(allow)
	ts.Require().Greater(retryAfter, time.Duration(0))
	ts.Require().LessOrEqual(retryAfter, time.Minute)

	// Keys do not share windows.
	allow, _, err = limiter.Allow(ctx, "rl:op:b")
	ts.Require().NoError(err)
	ts.Require().True(allow)
}

func (ts *SlidingWindowLimiterTestSuite) TestRetryAfterPointsToWindowEnd() {
	limiter, err := NewSlidingWindowLimiter(Rate{Count: 1, Duration: time.Hour}, 100)
	ts.Require().NoError(err)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 10, 15, 0, 0, time.UTC))
	limiter.clock = clock
	ctx := context.Background()

	allow, _, err := limiter.Allow(ctx, "rl:op:a")
	ts.Require().NoError(err)
	ts.Require().True(allow)

	allow, retryAfter, err := limiter.Allow(ctx, "rl:op:a")
	ts.Require().NoError(err)
	ts.Require().False(allow)
	ts.Require().Equal(45*time.Minute, retryAfter)
}
