package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LeNguyenHoangNhan/circuitpython/bus"
	"github.com/LeNguyenHoangNhan/circuitpython/ports/simhost"
	"github.com/LeNguyenHoangNhan/circuitpython/services/config"
	"github.com/LeNguyenHoangNhan/circuitpython/services/heartbeat"
	"github.com/LeNguyenHoangNhan/circuitpython/services/power"
	"github.com/LeNguyenHoangNhan/circuitpython/supervisor"
	"github.com/LeNguyenHoangNhan/circuitpython/types"
	"github.com/LeNguyenHoangNhan/circuitpython/x/logx"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// stateFile overrides the wake-state path from the configuration.
	stateFile string
	// sleepFor is how far in the future the time alarm is set.
	sleepFor time.Duration
	// deep selects deep sleep instead of light sleep.
	deep bool
	// wakePin adds a pin alarm on the given pin number (-1 disables it).
	wakePin int
	// connected pretends a host is attached over USB.
	connected bool
	// cycles bounds the number of sleep cycles (0 means run forever).
	cycles int

	// rootCmd represents the base command for running the sleep simulator.
	rootCmd = &cobra.Command{
		Use:   "sleepsim",
		Short: "Run the host-side sleep and wake-alarm simulator.",
		Long: `Runs the power-management loop against the host-side simulator port.

Each cycle arms a time alarm (--sleep past now) and optionally a pin alarm
(--pin), then enters light or deep sleep. With --connected the loop behaves
as if a host is attached: sleeps become interruptible active waits, and deep
sleep is simulated with a program restart instead of a power cycle.
The wake cause of a deep sleep is persisted to the state file so the next
boot can report it.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return run(ctx)
		},
	}
)

// Execute runs the sleepsim CLI and exits with non-zero status on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&stateFile, "state-file", "s", "", "path to persist the deep-sleep wake cause")
	rootCmd.Flags().DurationVar(&sleepFor, "sleep", 10*time.Second, "time alarm offset from now")
	rootCmd.Flags().BoolVar(&deep, "deep", false, "use deep sleep instead of light sleep")
	rootCmd.Flags().IntVar(&wakePin, "pin", -1, "also wake on a rising edge of this pin")
	rootCmd.Flags().BoolVar(&connected, "connected", false, "behave as if a host is attached over USB")
	rootCmd.Flags().IntVar(&cycles, "cycles", 1, "number of sleep cycles to run (0 = forever)")
}

// staticWorkflow reports a fixed host-connection state for the whole run.
type staticWorkflow bool

func (w staticWorkflow) Active() bool { return bool(w) }

func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if stateFile != "" {
		cfg.StateFile = stateFile
	}

	log := logx.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	b := bus.NewBus(16)
	if err = config.Publish(cfg, b.NewConnection("config")); err != nil {
		return err
	}

	// Restore the wake cause of the previous "power cycle" before anything
	// else can observe the wake alarm slot.
	if err = simhost.Boot(cfg.StateFile, log); err != nil {
		return err
	}

	port := simhost.New(simhost.Config{
		Log:       log,
		Conn:      b.NewConnection("port"),
		StateFile: cfg.StateFile,
	})

	for _, p := range cfg.Pins {
		port.SetPinLevel(p.Number, p.Initial)
	}

	if err = heartbeat.New(log).Start(ctx, b.NewConnection("heartbeat")); err != nil {
		return err
	}

	state := supervisor.NewState(b.NewConnection("supervisor"))
	clock := supervisor.SystemClock{}
	svc := power.New(clock, staticWorkflow(connected), port, state, log)

	reportWake(log, state)

	for cycle := 0; cycles == 0 || cycle < cycles; cycle++ {
		alarms := []types.Alarm{
			&types.TimeAlarm{TriggerMs: clock.TicksMs() + sleepFor.Milliseconds()},
		}
		if wakePin >= 0 {
			alarms = append(alarms, &types.PinAlarm{Pin: wakePin, Value: true, Edge: true, Pull: types.PullDown})
		}

		if deep {
			err = svc.ExitAndDeepSleepUntilAlarms(ctx, alarms...)
			if errors.Is(err, supervisor.ErrReload) {
				// Simulated deep sleep: unwind, then start the next
				// cycle as if the board had just rebooted.
				if reason, ok := state.ConsumeRestart(); ok {
					log.Infow("program restarted", "reason", reason.String())
				}

				reportWake(log, state)

				continue
			}

			return err
		}

		fired, err := svc.LightSleepUntilAlarms(ctx, alarms...)
		if err != nil {
			return err
		}

		log.Infow("woke from light sleep", "cause", fired.AlarmKind())
	}

	return nil
}

// reportWake logs the alarm that ended the previous deep sleep, if any.
func reportWake(log *zap.SugaredLogger, state *supervisor.State) {
	a, ok := power.WakeAlarm()
	if !ok {
		log.Infow("no wake alarm", "run_reason", state.RunReason().String())
		return
	}

	switch w := a.(type) {
	case *types.TimeAlarm:
		log.Infow("woke on time alarm", "trigger_ms", w.TriggerMs)
	case *types.PinAlarm:
		log.Infow("woke on pin alarm", "pin", w.Pin, "value", w.Value, "edge", w.Edge)
	default:
		log.Infow("woke on alarm", "kind", a.AlarmKind())
	}
}
