/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type LeakyBucketLimiterTestSuite struct {
	suite.Suite
}

func TestLeakyBucketLimiter(t *testing.T) {
	suite.Run(t, new(LeakyBucketLimiterTestSuite))
}

func (ts *LeakyBucketLimiterTestSuite) TestAllowSequential() {
	limiter, err := NewLeakyBucketLimiter(Rate{Count: 2, Duration: time.Second}, 100)
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
	ts.Require().LessOrEqual(retryAfter, time.Second)
}

func (ts *LeakyBucketLimiterTestSuite) TestSingleCallRate() {
	limiter, err := NewLeakyBucketLimiter(Rate{Count: 1, Duration: time.Minute}, 100)
	ts.Require().NoError(err)
	ctx := context.Background()

	allow, _, err := limiter.Allow(ctx, "rl:op:a")
	ts.Require().NoError(err)
	ts.Require().True(allow)

	allow, retryAfter, err := limiter.Allow(ctx, "rl:op:a")
	ts.Require().NoError(err)
	ts.Require().False(allow)
	ts.Require().Greater(retryAfter, 50*time.Second)
}
