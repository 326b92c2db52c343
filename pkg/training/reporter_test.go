package training

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	r := m.Reporter("abc")
	r.Report(1, 2, 0.7, 0.9)
	r.Report(2, 2, 0.5, 0.6)
	m.RunFinished("completed")

	assert.Equal(t, 0.5, testutil.ToFloat64(m.TrainingLoss.WithLabelValues("abc")))
	assert.Equal(t, 0.6, testutil.ToFloat64(m.ValidationLoss.WithLabelValues("abc")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Epochs.WithLabelValues("abc")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("completed")))

	expected := `
# HELP mlp_runs_total Number of finished training runs by final status.
# TYPE mlp_runs_total counter
mlp_runs_total{status="completed"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "mlp_runs_total"))
}

func TestConsoleReporter(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewConsoleReporter(zerolog.New(&buf))
	reporter.Report(3, 10, 0.123456, 0.5)

	out := buf.String()
	assert.Contains(t, out, "Epoch 3/10 - Training Loss: 0.1235 - Validation Loss: 0.5000")
	assert.Contains(t, out, `"epoch":3`)
}
