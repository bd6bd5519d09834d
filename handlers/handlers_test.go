package handlers

import (
	"bytes"
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignis-ml/ignis"
)

func echoProcess(ctx context.Context, e *ignis.Engine, batch any) (any, error) {
	return batch, nil
}

func batches(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func TestMetrics_CountsEpochsAndIterations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	e := ignis.New(echoProcess)
	require.NoError(t, m.Attach(e))

	_, err = e.Run(context.Background(), batches(3), ignis.RunOptions{MaxEpochs: 2})
	require.NoError(t, err)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.epochsTotal))
	assert.Equal(t, float64(6), testutil.ToFloat64(m.iterationsTotal))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.running), "gauge drops after the run")
}

func TestMetrics_DetachStopsCounting(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	e := ignis.New(echoProcess)
	require.NoError(t, m.Attach(e))

	_, err = e.Run(context.Background(), batches(2), ignis.RunOptions{})
	require.NoError(t, err)
	m.Detach()

	_, err = e.Run(context.Background(), batches(2), ignis.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.iterationsTotal))
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err, "same registry cannot hold the collectors twice")
}

func TestProgressLogger_LogsMilestones(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	pl := NewProgressLogger(logger).WithIterationInterval(2)
	e := ignis.New(echoProcess)
	require.NoError(t, pl.Attach(e))

	_, err := e.Run(context.Background(), batches(4), ignis.RunOptions{})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "run started")
	assert.Contains(t, out, "epoch completed")
	assert.Contains(t, out, "run completed")
}

func TestProgressLogger_DetachSilences(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	pl := NewProgressLogger(logger)
	e := ignis.New(echoProcess)
	require.NoError(t, pl.Attach(e))
	pl.Detach()

	_, err := e.Run(context.Background(), batches(2), ignis.RunOptions{})
	require.NoError(t, err)

	assert.Empty(t, buf.String())
}

func TestProgressLogger_StateDiff(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	pl := NewProgressLogger(logger).WithStateDiff()
	e := ignis.New(echoProcess)
	require.NoError(t, pl.Attach(e))

	_, err := e.Run(context.Background(), batches(2), ignis.RunOptions{MaxEpochs: 2})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "state changed")
}
