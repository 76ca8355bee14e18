package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/ImprovedQ/internal/config"
	"github.com/mitchelldurbincs/ImprovedQ/internal/events"
	"github.com/mitchelldurbincs/ImprovedQ/internal/experiment"
)

func newTestBus() (*events.EventBus, *progress) {
	bus := events.NewEventBus(zerolog.Nop())
	prog := &progress{}
	bus.SubscribeFunc(events.TypeTrialCompleted, prog.handle)
	return bus, prog
}

func noOverrides() cliFlags {
	return cliFlags{trials: -1, episodes: -1, epsilon: -1, parallel: -1}
}

func testConfig() config.Config {
	c := config.Config{
		Experiment: experiment.DefaultConfig(),
		Logging:    config.LoggingConfig{Level: "info", Format: "console"},
	}
	c.Experiment.Trials = 3
	c.Experiment.Episodes = 5
	return c
}

func TestFlagsApply(t *testing.T) {
	base := testConfig()

	assert.Equal(t, base, noOverrides().apply(base))

	f := noOverrides()
	f.trials = 9
	f.epsilon = 0
	f.rule = "episode"
	f.parallel = 0
	f.showQ = true
	f.chart = "out.html"
	got := f.apply(base)

	assert.Equal(t, 9, got.Experiment.Trials)
	assert.Equal(t, 5, got.Experiment.Episodes)
	assert.Equal(t, 0.0, got.Experiment.Epsilon, "zero is a real override")
	assert.Equal(t, "episode", got.Experiment.UpdateRule)
	assert.Equal(t, 0, got.Experiment.Parallelism)
	assert.True(t, got.Output.ShowQ)
	assert.Equal(t, "out.html", got.Output.ChartPath)
	assert.Equal(t, 3, base.Experiment.Trials, "apply works on a copy")
}

func TestRunWritesOutputs(t *testing.T) {
	c := testConfig()
	c.Output.ShowQ = true
	c.Output.Summary = true
	c.Output.ChartPath = filepath.Join(t.TempDir(), "rates.html")

	bus, prog := newTestBus()
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), bus, prog, c, &out))

	lines := strings.Split(out.String(), "\n")
	for i := 0; i < c.Experiment.Episodes; i++ {
		assert.Equal(t, c.Experiment.Trials, strings.Count(lines[i], ", "), "line %d", i)
	}
	assert.Equal(t, "    |  s0   s1   s2 ", lines[c.Experiment.Episodes][:20])
	assert.Contains(t, out.String(), "episode,mean,stddev,min,max\n")

	chart, err := os.ReadFile(c.Output.ChartPath)
	require.NoError(t, err)
	assert.Contains(t, string(chart), "ImprovedQ reward rate")
}

func TestRunInvalidConfig(t *testing.T) {
	c := testConfig()
	c.Experiment.Trials = 0

	bus, prog := newTestBus()
	var out bytes.Buffer
	assert.Error(t, run(context.Background(), bus, prog, c, &out))
	assert.Zero(t, out.Len())
	assert.Zero(t, bus.GetSubscriberCount(), "event logger removed after a failed run")
}

func TestRunSubscribesEventLoggerPerRun(t *testing.T) {
	c := testConfig()
	c.Logging.Events = []string{events.TypeTrialCompleted}
	bus, prog := newTestBus()

	for i := 0; i < 2; i++ {
		var out bytes.Buffer
		require.NoError(t, run(context.Background(), bus, prog, c, &out))
		assert.Zero(t, bus.GetSubscriberCount())
		assert.Equal(t, int64(c.Experiment.Trials), prog.done.Load(), "run %d", i)
		assert.Equal(t, int64(c.Experiment.Trials), prog.total.Load())
	}
}
