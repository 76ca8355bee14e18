package experiment

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mitchelldurbincs/ImprovedQ/internal/agent"
	"github.com/mitchelldurbincs/ImprovedQ/internal/env"
	"github.com/mitchelldurbincs/ImprovedQ/internal/events"
)

// TrialResult is everything one trial produced
type TrialResult struct {
	Index           int
	Seed            int64
	RunID           string
	Rates           []float64 // running reward per action after each episode
	Steps           []int     // actions taken in each episode
	QValues         *agent.QTable
	FinalTrajectory []agent.Step
}

// Runner drives trials of the learner against the state machine
type Runner struct {
	cfg    Config
	rule   agent.UpdateRule
	logger zerolog.Logger
	bus    events.Publisher
}

// NewRunner validates cfg and returns a runner. A nil bus drops events.
func NewRunner(cfg Config, logger zerolog.Logger, bus events.Publisher) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid experiment config: %w", err)
	}
	rule, err := agent.ParseUpdateRule(cfg.UpdateRule)
	if err != nil {
		return nil, err
	}
	if bus == nil {
		bus = events.NopPublisher{}
	}
	return &Runner{
		cfg:    cfg,
		rule:   rule,
		logger: logger.With().Str("component", "experiment_runner").Logger(),
		bus:    bus,
	}, nil
}

// Config returns the runner's experiment config
func (r *Runner) Config() Config {
	return r.cfg
}

// Run executes every trial and gathers their results in trial order. Trials
// share nothing, so they run concurrently up to cfg.Parallelism (0 means
// one per CPU). The first failing trial cancels the rest.
func (r *Runner) Run(ctx context.Context) (*Results, error) {
	start := time.Now()
	limit := r.cfg.Parallelism
	if limit == 0 {
		limit = runtime.NumCPU()
	}

	r.logger.Info().
		Int("trials", r.cfg.Trials).
		Int("episodes", r.cfg.Episodes).
		Float64("epsilon", r.cfg.Epsilon).
		Str("update_rule", r.rule.Name()).
		Int("parallelism", limit).
		Msg("Starting experiment")

	trials := make([]TrialResult, r.cfg.Trials)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := 0; i < r.cfg.Trials; i++ {
		i := i
		g.Go(func() error {
			result, err := r.RunTrial(gctx, i)
			if err != nil {
				return err
			}
			trials[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		r.logger.Error().Err(err).Msg("Experiment aborted")
		return nil, err
	}

	results := NewResults(trials)
	r.logger.Info().
		Dur("duration", time.Since(start)).
		Float64("final_mean_rate", results.FinalMeanRate()).
		Msg("Experiment completed")
	return results, nil
}

// RunTrial runs one trial with a fresh learner and an rng seeded from its index
func (r *Runner) RunTrial(ctx context.Context, index int) (TrialResult, error) {
	start := time.Now()
	seed := r.cfg.Seed(index)
	runID := uuid.New().String()
	logger := r.logger.With().Int("trial", index).Str("run_id", runID).Logger()

	learner, err := agent.NewQLearner(r.cfg.Agent, r.rule)
	if err != nil {
		return TrialResult{}, NewTrialError(index, 0, 0, err)
	}
	rng := rand.New(rand.NewSource(seed))

	r.bus.Publish(events.NewTrialStartedEvent(runID, index, seed))
	logger.Debug().Int64("seed", seed).Msg("Trial started")

	result := TrialResult{
		Index: index,
		Seed:  seed,
		RunID: runID,
		Rates: make([]float64, r.cfg.Episodes),
		Steps: make([]int, r.cfg.Episodes),
	}

	var (
		actionCount  int
		sumOfRewards float64
	)
	for episode := 0; episode < r.cfg.Episodes; episode++ {
		if err := ctx.Err(); err != nil {
			return TrialResult{}, NewTrialError(index, episode, 0, err)
		}

		ep, err := r.runEpisode(learner, rng)
		if err != nil {
			err.Trial = index
			err.Episode = episode
			return TrialResult{}, err
		}

		actionCount += ep.steps
		sumOfRewards += ep.rewardSum
		result.Rates[episode] = sumOfRewards / float64(actionCount)
		result.Steps[episode] = ep.steps
		if episode == r.cfg.Episodes-1 {
			result.FinalTrajectory = ep.trajectory.Steps()
		}

		r.bus.Publish(events.NewEpisodeCompletedEvent(
			runID, index, episode, ep.steps, ep.goalState, ep.finalReward, result.Rates[episode],
		))
	}

	result.QValues = learner.QValues()
	finalRate := result.Rates[r.cfg.Episodes-1]
	r.bus.Publish(events.NewTrialCompletedEvent(runID, index, r.cfg.Episodes, actionCount, finalRate, time.Since(start)))
	logger.Debug().
		Int("total_steps", actionCount).
		Float64("final_reward_rate", finalRate).
		Msg("Trial completed")

	return result, nil
}

type episodeOutcome struct {
	steps       int
	rewardSum   float64
	finalReward float64
	goalState   int
	trajectory  *agent.Trajectory
}

// runEpisode plays one episode from state 0 until the environment reports a
// goal. No action is issued once the goal is reached. Returned errors carry
// the step only; the caller fills in trial and episode.
func (r *Runner) runEpisode(learner *agent.QLearner, rng *rand.Rand) (episodeOutcome, *TrialError) {
	sm := env.NewStateMachine()
	trajectory := agent.NewTrajectory(sm.CurrentState())
	out := episodeOutcome{trajectory: trajectory}

	reward := 0.0
	for !sm.IsGoal() {
		if out.steps >= r.cfg.MaxStepsPerEpisode {
			return out, NewTrialError(0, 0, out.steps, fmt.Errorf("%w: %d", ErrStepLimit, r.cfg.MaxStepsPerEpisode))
		}

		action, err := learner.SelectAction(sm.CurrentState(), rng, r.cfg.Epsilon)
		if err != nil {
			return out, NewTrialError(0, 0, out.steps, err)
		}
		if err := sm.Apply(action); err != nil {
			return out, NewTrialError(0, 0, out.steps, err)
		}

		reward = sm.Reward()
		trajectory.Append(sm.CurrentState(), action)
		if r.rule.PerStep() {
			if err := learner.Update(trajectory, reward); err != nil {
				return out, NewTrialError(0, 0, out.steps, err)
			}
		}

		out.steps++
		out.rewardSum += reward
	}

	if !r.rule.PerStep() && trajectory.Len() > 1 {
		if err := learner.Update(trajectory, reward); err != nil {
			return out, NewTrialError(0, 0, out.steps, err)
		}
	}

	out.finalReward = reward
	out.goalState = sm.CurrentState()
	return out, nil
}
