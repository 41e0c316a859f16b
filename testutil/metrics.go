/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// RequireSamplesCountInHistogram asserts that hist has observed exactly wantSamplesCount values.
// A histogram taken from a HistogramVec may be passed after a type assertion of the returned Observer.
func RequireSamplesCountInHistogram(t require.TestingT, hist prometheus.Histogram, wantSamplesCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	var m dto.Metric
	require.NoError(t, hist.Write(&m))
	require.NotNil(t, m.GetHistogram(), "metric is not a histogram")
	require.Equal(t, uint64(wantSamplesCount), m.GetHistogram().GetSampleCount(), "samples count")
}
