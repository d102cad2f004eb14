package cmdlog

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"xnom/internal/metrics"
)

func TestRunCountsErrors(t *testing.T) {
	before := testutil.ToFloat64(metrics.CommandErrors.WithLabelValues("like"))
	runs := testutil.ToFloat64(metrics.CommandRuns.WithLabelValues("like"))

	assert.NoError(t, Run("like", func() error { return nil }))
	err := Run("like", func() error { return errors.New("nope") })
	assert.EqualError(t, err, "nope")

	assert.Equal(t, runs+2, testutil.ToFloat64(metrics.CommandRuns.WithLabelValues("like")))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.CommandErrors.WithLabelValues("like")))
}
