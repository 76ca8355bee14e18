package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mitchelldurbincs/ImprovedQ/internal/config"
	"github.com/mitchelldurbincs/ImprovedQ/internal/events"
	"github.com/mitchelldurbincs/ImprovedQ/internal/events/subscribers"
	"github.com/mitchelldurbincs/ImprovedQ/internal/experiment"
)

// cliFlags holds command line overrides. Sentinel values (-1, empty, false)
// leave the config value in place.
type cliFlags struct {
	logLevel string
	trials   int
	episodes int
	epsilon  float64
	rule     string
	parallel int
	showQ    bool
	color    bool
	summary  bool
	chart    string
}

func (f cliFlags) apply(c config.Config) config.Config {
	if f.logLevel != "" {
		c.Logging.Level = f.logLevel
	}
	if f.trials != -1 {
		c.Experiment.Trials = f.trials
	}
	if f.episodes != -1 {
		c.Experiment.Episodes = f.episodes
	}
	if f.epsilon >= 0 {
		c.Experiment.Epsilon = f.epsilon
	}
	if f.rule != "" {
		c.Experiment.UpdateRule = f.rule
	}
	if f.parallel != -1 {
		c.Experiment.Parallelism = f.parallel
	}
	if f.chart != "" {
		c.Output.ChartPath = f.chart
	}
	c.Output.ShowQ = c.Output.ShowQ || f.showQ
	c.Output.Color = c.Output.Color || f.color
	c.Output.Summary = c.Output.Summary || f.summary
	return c
}

func main() {
	var f cliFlags
	configPath := flag.String("config", "", "Path to config file")
	env := flag.String("env", "", "Environment overlay, loads config.<env>.yaml (empty for none)")
	watch := flag.Bool("watch", false, "Rerun the experiment whenever the config file changes")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error) (empty to use config default)")
	flag.IntVar(&f.trials, "trials", -1, "Number of independent trials (-1 to use config default)")
	flag.IntVar(&f.episodes, "episodes", -1, "Episodes per trial (-1 to use config default)")
	flag.Float64Var(&f.epsilon, "epsilon", -1, "Exploration probability (negative to use config default)")
	flag.StringVar(&f.rule, "rule", "", "Update rule, step or episode (empty to use config default)")
	flag.IntVar(&f.parallel, "parallel", -1, "Trials run concurrently, 0 for one per CPU (-1 to use config default)")
	flag.BoolVar(&f.showQ, "show-q", false, "Print the Q table learned by trial 0")
	flag.BoolVar(&f.color, "color", false, "Highlight greedy actions in the Q table")
	flag.BoolVar(&f.summary, "summary", false, "Print per-episode mean, stddev, min and max as CSV")
	flag.StringVar(&f.chart, "chart", "", "Write an HTML chart of the mean reward rate to this path")
	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize config")
	}
	if err := config.LoadEnvironmentConfig(*env); err != nil {
		log.Fatal().Err(err).Msg("Failed to load environment config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	current := f.apply(*config.Get())
	setupLogging(current.Logging.Level, current.Logging.Format)

	bus := events.NewEventBus(log.Logger)
	prog := &progress{}
	bus.SubscribeFunc(events.TypeTrialCompleted, prog.handle)

	if !*watch {
		if err := run(ctx, bus, prog, current, os.Stdout); err != nil {
			log.Fatal().Err(err).Msg("Experiment failed")
		}
		return
	}

	if config.ConfigFilePath() == "" {
		log.Fatal().Msg("No config file loaded, nothing to watch")
	}

	// Holds at most the latest reloaded config
	changed := make(chan *config.Config, 1)
	config.WatchConfig(func(c *config.Config, err error) {
		if err != nil {
			log.Error().Err(err).Msg("Ignoring invalid config change")
			return
		}
		select {
		case <-changed:
		default:
		}
		changed <- c
	})
	log.Info().Str("file", config.ConfigFilePath()).Msg("Watching config file")

	for {
		if err := run(ctx, bus, prog, current, os.Stdout); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Experiment failed")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Shutting down")
			return
		case c := <-changed:
			current = f.apply(*c)
			setupLogging(current.Logging.Level, current.Logging.Format)
			log.Info().Msg("Config changed, rerunning experiment")
		}
	}
}

const eventLoggerID = "cli-logger"

// run executes one experiment and writes its outputs to out. The event logger
// is subscribed for this run only, so it follows the run's logging settings.
func run(ctx context.Context, bus *events.EventBus, prog *progress, c config.Config, out io.Writer) error {
	sub := subscribers.NewLoggerSubscriber(eventLoggerID, log.Logger, zerolog.DebugLevel)
	sub.SetEventFilter(c.Logging.Events)
	sub.SetDevMode(c.Logging.Level == "debug")
	bus.Subscribe(sub)
	defer bus.Unsubscribe(eventLoggerID)
	prog.reset(c.Experiment.Trials)

	runner, err := experiment.NewRunner(c.Experiment, log.Logger, bus)
	if err != nil {
		return err
	}
	results, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	if err := results.WriteTable(out); err != nil {
		return fmt.Errorf("writing rate table: %w", err)
	}
	if c.Output.ShowQ {
		if err := results.Trials[0].QValues.Show(out, c.Output.Color); err != nil {
			return fmt.Errorf("writing Q table: %w", err)
		}
	}
	if c.Output.Summary {
		if err := results.WriteSummary(out); err != nil {
			return fmt.Errorf("writing summary: %w", err)
		}
	}
	if c.Output.ChartPath != "" {
		if err := writeChart(results, c.Output.ChartPath); err != nil {
			return err
		}
		log.Info().Str("path", c.Output.ChartPath).Msg("Chart written")
	}
	return nil
}

// progress counts finished trials of the current run
type progress struct {
	total atomic.Int64
	done  atomic.Int64
}

func (p *progress) reset(total int) {
	p.total.Store(int64(total))
	p.done.Store(0)
}

func (p *progress) handle(e events.Event) {
	ev, ok := e.(*events.TrialCompletedEvent)
	if !ok {
		return
	}
	n := p.done.Add(1)
	log.Info().
		Int("trial", ev.Trial).
		Int64("done", n).
		Int64("total", p.total.Load()).
		Float64("final_reward_rate", ev.FinalRewardRate).
		Msg("Trial finished")
}

func writeChart(results *experiment.Results, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chart file: %w", err)
	}
	if err := results.RenderChart(f, "ImprovedQ reward rate"); err != nil {
		f.Close()
		return fmt.Errorf("rendering chart: %w", err)
	}
	return f.Close()
}

func setupLogging(level, format string) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || logLevel == zerolog.NoLevel {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	// Logs go to stderr; stdout carries the results
	if os.Getenv("APP_ENV") == "production" || format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}
