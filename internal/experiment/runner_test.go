package experiment

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/ImprovedQ/internal/agent"
	"github.com/mitchelldurbincs/ImprovedQ/internal/env"
	"github.com/mitchelldurbincs/ImprovedQ/internal/events"
	"github.com/mitchelldurbincs/ImprovedQ/internal/testutil"
)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Trials = 6
	cfg.Episodes = 20
	return cfg
}

func newTestRunner(t *testing.T, cfg Config, bus events.Publisher) *Runner {
	t.Helper()
	r, err := NewRunner(cfg, testutil.NopLogger(), bus)
	require.NoError(t, err)
	return r
}

func TestNewRunnerRejectsInvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.UpdateRule = "sarsa"

	r, err := NewRunner(cfg, testutil.NopLogger(), nil)
	assert.Nil(t, r)
	assert.True(t, errors.Is(err, agent.ErrUnknownUpdateRule))
}

func TestRunTrialMatchesHandWrittenLoop(t *testing.T) {
	cfg := smallConfig()
	r := newTestRunner(t, cfg, nil)

	result, err := r.RunTrial(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1003), result.Seed)
	assert.NotEmpty(t, result.RunID)

	// Replay the trial directly against the components
	learner, err := agent.NewQLearner(cfg.Agent, nil)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(1003))
	actionCount := 0
	sumOfRewards := 0.0
	var lastTraj *agent.Trajectory
	for episode := 0; episode < cfg.Episodes; episode++ {
		sm := env.NewStateMachine()
		traj := agent.NewTrajectory(sm.CurrentState())
		for !sm.IsGoal() {
			act, err := learner.SelectAction(sm.CurrentState(), rng, cfg.Epsilon)
			require.NoError(t, err)
			require.NoError(t, sm.Apply(act))
			reward := sm.Reward()
			traj.Append(sm.CurrentState(), act)
			require.NoError(t, learner.Update(traj, reward))
			actionCount++
			sumOfRewards += reward
		}
		assert.Equal(t, sumOfRewards/float64(actionCount), result.Rates[episode], "episode %d", episode)
		assert.Equal(t, traj.Len()-1, result.Steps[episode], "episode %d", episode)
		lastTraj = traj
	}

	assert.Equal(t, lastTraj.Steps(), result.FinalTrajectory)
	assert.True(t, learner.QValues().Equal(result.QValues))
}

func TestRunTrialIsReproducible(t *testing.T) {
	r := newTestRunner(t, smallConfig(), nil)

	a, err := r.RunTrial(context.Background(), 0)
	require.NoError(t, err)
	b, err := r.RunTrial(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, a.Rates, b.Rates)
	assert.Equal(t, a.Steps, b.Steps)
	assert.Equal(t, a.FinalTrajectory, b.FinalTrajectory)
	assert.True(t, a.QValues.Equal(b.QValues))
	assert.NotEqual(t, a.RunID, b.RunID, "run IDs identify executions, not seeds")

	c, err := r.RunTrial(context.Background(), 1)
	require.NoError(t, err)
	assert.NotEqual(t, a.Rates, c.Rates, "different trial index, different seed")
}

func TestTrajectoriesAreWellFormed(t *testing.T) {
	r := newTestRunner(t, smallConfig(), nil)
	result, err := r.RunTrial(context.Background(), 2)
	require.NoError(t, err)

	traj := result.FinalTrajectory
	require.GreaterOrEqual(t, len(traj), 6, "shortest path to any goal is 5 steps")
	assert.Equal(t, agent.Step{State: 0, Action: agent.PlaceholderAction}, traj[0])

	table := env.DefaultTransitionTable()
	for i := 1; i < len(traj); i++ {
		next, ok := table.Next(traj[i-1].State, traj[i].Action)
		require.True(t, ok)
		assert.Equal(t, next, traj[i].State)
		if i < len(traj)-1 {
			assert.False(t, table.IsGoal(traj[i].State), "no action after a goal")
		}
	}
	assert.True(t, table.IsGoal(traj[len(traj)-1].State))
}

func TestRunParallelMatchesSequential(t *testing.T) {
	seqCfg := smallConfig()
	seqCfg.Parallelism = 1
	parCfg := smallConfig()
	parCfg.Parallelism = 4

	seq, err := newTestRunner(t, seqCfg, nil).Run(context.Background())
	require.NoError(t, err)
	par, err := newTestRunner(t, parCfg, nil).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, par.Trials, len(seq.Trials))
	for i := range seq.Trials {
		assert.Equal(t, i, par.Trials[i].Index)
		assert.Equal(t, seq.Trials[i].Rates, par.Trials[i].Rates, "trial %d", i)
		assert.True(t, seq.Trials[i].QValues.Equal(par.Trials[i].QValues), "trial %d", i)
	}
}

func TestRunLearnsTowardsGoalReward(t *testing.T) {
	cfg := smallConfig()
	cfg.Episodes = 100
	cfg.Parallelism = 0

	results, err := newTestRunner(t, cfg, nil).Run(context.Background())
	require.NoError(t, err)

	trials, episodes := results.Dims()
	assert.Equal(t, cfg.Trials, trials)
	assert.Equal(t, cfg.Episodes, episodes)

	for _, tr := range results.Trials {
		for e, rate := range tr.Rates {
			// A goal pays at least 150 and at most 200 and takes at least 5
			// actions, so the running rate stays in (0, 40].
			assert.Greater(t, rate, 0.0, "trial %d episode %d", tr.Index, e)
			assert.LessOrEqual(t, rate, 40.0, "trial %d episode %d", tr.Index, e)
		}

		// The last transition of the final episode entered a goal, so its
		// pair was just pulled towards a reward of at least 150.
		traj := tr.FinalTrajectory
		last, prev := traj[len(traj)-1], traj[len(traj)-2]
		assert.Greater(t, tr.QValues.Get(prev.State, last.Action), 0.0, "trial %d", tr.Index)
	}
}

func TestRunEpisodeRule(t *testing.T) {
	cfg := smallConfig()
	cfg.UpdateRule = agent.RuleEpisode

	r := newTestRunner(t, cfg, nil)
	result, err := r.RunTrial(context.Background(), 0)
	require.NoError(t, err)

	// Replay with updates only once per episode
	learner, err := agent.NewQLearner(cfg.Agent, agent.EpisodeUpdate{})
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(1000))
	for episode := 0; episode < cfg.Episodes; episode++ {
		sm := env.NewStateMachine()
		traj := agent.NewTrajectory(0)
		for !sm.IsGoal() {
			act, err := learner.SelectAction(sm.CurrentState(), rng, cfg.Epsilon)
			require.NoError(t, err)
			require.NoError(t, sm.Apply(act))
			traj.Append(sm.CurrentState(), act)
		}
		require.NoError(t, learner.Update(traj, sm.Reward()))
	}

	assert.True(t, learner.QValues().Equal(result.QValues))
}

func TestRunStepLimit(t *testing.T) {
	cfg := smallConfig()
	cfg.MaxStepsPerEpisode = 1

	_, err := newTestRunner(t, cfg, nil).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStepLimit))

	var trialErr *TrialError
	require.True(t, errors.As(err, &trialErr))
	assert.Equal(t, 0, trialErr.Episode)
	assert.Equal(t, 1, trialErr.Step)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestRunner(t, smallConfig(), nil).Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

type recordingBus struct {
	mu     sync.Mutex
	counts map[string]int
}

func (b *recordingBus) Publish(e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts[e.Type()]++
}

func TestRunPublishesEvents(t *testing.T) {
	cfg := smallConfig()
	cfg.Parallelism = 3
	bus := &recordingBus{counts: map[string]int{}}

	_, err := newTestRunner(t, cfg, bus).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, cfg.Trials, bus.counts[events.TypeTrialStarted])
	assert.Equal(t, cfg.Trials*cfg.Episodes, bus.counts[events.TypeEpisodeCompleted])
	assert.Equal(t, cfg.Trials, bus.counts[events.TypeTrialCompleted])
}

func TestRunWithEventBus(t *testing.T) {
	cfg := smallConfig()
	cfg.Trials = 2
	bus := events.NewEventBus(testutil.NopLogger())

	var mu sync.Mutex
	goals := map[int]int{}
	bus.SubscribeFunc(events.TypeEpisodeCompleted, func(e events.Event) {
		ev := e.(*events.EpisodeCompletedEvent)
		mu.Lock()
		defer mu.Unlock()
		goals[ev.GoalState]++
	})

	_, err := newTestRunner(t, cfg, bus).Run(context.Background())
	require.NoError(t, err)

	total := 0
	for state, n := range goals {
		assert.GreaterOrEqual(t, state, env.GoalThreshold)
		total += n
	}
	assert.Equal(t, cfg.Trials*cfg.Episodes, total)
}

func TestTrialError(t *testing.T) {
	err := NewTrialError(4, 12, 3, env.ErrInvalidTransition)
	assert.Equal(t, "trial 4 episode 12 step 3: invalid transition", err.Error())
	assert.True(t, errors.Is(err, env.ErrInvalidTransition))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(*Config)
		contains string
	}{
		{"zero trials", func(c *Config) { c.Trials = 0 }, "trials"},
		{"zero episodes", func(c *Config) { c.Episodes = 0 }, "episodes"},
		{"epsilon above 1", func(c *Config) { c.Epsilon = 1.5 }, "epsilon"},
		{"negative parallelism", func(c *Config) { c.Parallelism = -2 }, "parallelism"},
		{"zero step limit", func(c *Config) { c.MaxStepsPerEpisode = 0 }, "max_steps_per_episode"},
		{"unknown rule", func(c *Config) { c.UpdateRule = "td-lambda" }, "unknown update rule"},
		{"bad agent", func(c *Config) { c.Agent.DiscountRate = 3 }, "discount_rate"},
		{"NaN epsilon", func(c *Config) { c.Epsilon = math.NaN() }, "epsilon"},
		{"infinite epsilon", func(c *Config) { c.Epsilon = math.Inf(1) }, "epsilon"},
		{"NaN initial value", func(c *Config) { c.Agent.InitialValue = math.NaN() }, "initial_value"},
		{"too few states", func(c *Config) { c.Agent.StateCount = 15 }, "environment is 21 x 3"},
		{"too many actions", func(c *Config) { c.Agent.ActionCount = 4 }, "environment is 21 x 3"},
		{"too few actions", func(c *Config) { c.Agent.ActionCount = 2 }, "environment is 21 x 3"},
	}

	require.NoError(t, DefaultConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestDefaultConfigMatchesReferenceExperiment(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 100, cfg.Trials)
	assert.Equal(t, 100, cfg.Episodes)
	assert.Equal(t, 0.2, cfg.Epsilon)
	assert.Equal(t, int64(1000), cfg.Seed(0))
	assert.Equal(t, int64(1099), cfg.Seed(99))
	assert.Equal(t, 3, cfg.Agent.ActionCount)
	assert.Equal(t, 21, cfg.Agent.StateCount)
	assert.Equal(t, 0.1, cfg.Agent.LearningRate)
	assert.Equal(t, 0.1, cfg.Agent.DiscountRate)
}

func TestResultsOutputs(t *testing.T) {
	cfg := smallConfig()
	cfg.Trials = 3
	cfg.Episodes = 4
	results, err := newTestRunner(t, cfg, nil).Run(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, results.WriteTable(&buf))
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, cfg.Episodes)
	for _, line := range lines {
		assert.Equal(t, cfg.Trials, strings.Count(line, ", "))
		assert.True(t, strings.HasSuffix(line, ", "))
	}
}
