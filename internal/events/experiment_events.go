package events

import (
	"time"
)

// Event type constants
const (
	TypeTrialStarted     = "trial.started"
	TypeEpisodeCompleted = "episode.completed"
	TypeTrialCompleted   = "trial.completed"
)

// TrialStartedEvent is published when a trial builds its learner and rng
type TrialStartedEvent struct {
	BaseEvent
	Trial int   `json:"trial"`
	Seed  int64 `json:"seed"`
}

// NewTrialStartedEvent creates a new TrialStartedEvent
func NewTrialStartedEvent(runID string, trial int, seed int64) *TrialStartedEvent {
	return &TrialStartedEvent{
		BaseEvent: BaseEvent{
			EventType: TypeTrialStarted,
			Time:      time.Now(),
			Run:       runID,
		},
		Trial: trial,
		Seed:  seed,
	}
}

// EpisodeCompletedEvent is published once the environment reaches a goal
type EpisodeCompletedEvent struct {
	BaseEvent
	Trial      int     `json:"trial"`
	Episode    int     `json:"episode"`
	Steps      int     `json:"steps"`
	GoalState  int     `json:"goal_state"`
	Reward     float64 `json:"reward"`
	RewardRate float64 `json:"reward_rate"`
}

// NewEpisodeCompletedEvent creates a new EpisodeCompletedEvent
func NewEpisodeCompletedEvent(runID string, trial, episode, steps, goalState int, reward, rewardRate float64) *EpisodeCompletedEvent {
	return &EpisodeCompletedEvent{
		BaseEvent: BaseEvent{
			EventType: TypeEpisodeCompleted,
			Time:      time.Now(),
			Run:       runID,
		},
		Trial:      trial,
		Episode:    episode,
		Steps:      steps,
		GoalState:  goalState,
		Reward:     reward,
		RewardRate: rewardRate,
	}
}

// TrialCompletedEvent is published after the last episode of a trial
type TrialCompletedEvent struct {
	BaseEvent
	Trial           int           `json:"trial"`
	Episodes        int           `json:"episodes"`
	TotalSteps      int           `json:"total_steps"`
	FinalRewardRate float64       `json:"final_reward_rate"`
	Duration        time.Duration `json:"duration"`
}

// NewTrialCompletedEvent creates a new TrialCompletedEvent
func NewTrialCompletedEvent(runID string, trial, episodes, totalSteps int, finalRate float64, duration time.Duration) *TrialCompletedEvent {
	return &TrialCompletedEvent{
		BaseEvent: BaseEvent{
			EventType: TypeTrialCompleted,
			Time:      time.Now(),
			Run:       runID,
		},
		Trial:           trial,
		Episodes:        episodes,
		TotalSteps:      totalSteps,
		FinalRewardRate: finalRate,
		Duration:        duration,
	}
}
