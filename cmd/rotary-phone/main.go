// Command rotary-phone turns a rotary telephone's hook switch and dial into
// hook and digit events, optionally starting a voice assistant and
// forwarding events to MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/rotary-phone/internal/assistant"
	"github.com/sweeney/rotary-phone/internal/config"
	"github.com/sweeney/rotary-phone/internal/coordinator"
	"github.com/sweeney/rotary-phone/internal/gpio"
	"github.com/sweeney/rotary-phone/internal/mailbox"
	"github.com/sweeney/rotary-phone/internal/monitor"
	"github.com/sweeney/rotary-phone/internal/mqtt"
	"github.com/sweeney/rotary-phone/internal/status"
	"github.com/sweeney/rotary-phone/internal/web"
)

type rootOptions struct {
	ConfigPath string
	Verbose    bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "rotary-phone",
		Short: "Rotary telephone hook and dial daemon",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(opts.Verbose)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newStateCommand(opts))
	return cmd
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func newRunCommand(root *rootOptions) *cobra.Command {
	var broker string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the hook switch and dial until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.ConfigPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("broker") {
				cfg.Broker = broker
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&broker, "broker", "", "MQTT broker address, overrides config (empty disables)")
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	chip, err := gpio.NewRealChip(cfg.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer chip.Close()

	hookLine, err := chip.Line(cfg.HookPin)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer hookLine.Close()

	dialLine, err := chip.Line(cfg.DialPin)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer dialLine.Close()

	lvl, err := hookLine.Read()
	if err != nil {
		return fmt.Errorf("read hook line: %w", err)
	}
	initial := monitor.HookStateFor(lvl)

	tracker := status.NewTracker(time.Now(), initial, status.Config{
		HookPin:        cfg.HookPin,
		DialPin:        cfg.DialPin,
		SettleMs:       cfg.Settle.Milliseconds(),
		QuietMs:        cfg.QuietTimeout.Milliseconds(),
		HeartbeatMs:    cfg.Heartbeat.Milliseconds(),
		AssistantDigit: cfg.AssistantDigit,
		Broker:         cfg.Broker,
	})

	// Publisher and sink stay nil interfaces when MQTT is disabled.
	var (
		publisher mqtt.Publisher
		conn      mqtt.ConnectionStatus
		sink      coordinator.Sink
	)
	if cfg.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.Broker, cfg.ClientID, slog.Default())
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		p.OnConnectionChange(tracker.SetMQTTConnected)
		publisher, conn, sink = p, p, p
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		slog.Info("http status server listening", "addr", cfg.HTTPAddr)
	}

	var asst coordinator.Assistant = assistant.Nop{}
	if argv := cfg.AssistantArgv(); argv != nil {
		asst = assistant.NewCommand(argv[0], argv[1:]...)
	}

	events := mailbox.New[monitor.Event]()
	opts := []monitor.Option{
		monitor.WithSettle(cfg.Settle),
		monitor.WithQuietTimeout(cfg.QuietTimeout),
		monitor.WithHookWait(cfg.HookWait),
	}
	coord, err := coordinator.New(coordinator.Config{
		Hook:           monitor.NewHookMonitor(hookLine, events, initial, opts...),
		Dial:           monitor.NewDialMonitor(dialLine, events, initial, opts...),
		Events:         events,
		InitialHook:    initial,
		Assistant:      asst,
		AssistantDigit: cfg.AssistantDigit,
		Sink:           sink,
		Tracker:        tracker,
	})
	if err != nil {
		return err
	}

	slog.Info("started",
		"chip", cfg.Chip, "hook_pin", cfg.HookPin, "dial_pin", cfg.DialPin,
		"hook", initial, "broker", cfg.Broker, "heartbeat", cfg.Heartbeat)

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return runLoop(ctx, coord, publisher, conn, tracker, heartbeat, sigCh, time.Now)
}

// runner is the part of the coordinator the lifecycle loop drives.
type runner interface {
	Run(ctx context.Context) error
}

// runLoop runs the coordinator and publishes lifecycle events around it:
// STARTUP once, HEARTBEAT on each tick and SHUTDOWN when a signal arrives
// or the coordinator stops on its own.
func runLoop(ctx context.Context, coord runner, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat <-chan time.Time, sig <-chan os.Signal, now func() time.Time) error {
	publishStatus(publisher, mqttStatus, tracker, now, "STARTUP", "")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()

	for {
		select {
		case s := <-sig:
			reason := signalName(s)
			slog.Info("shutting down", "signal", reason)
			cancel()
			err := <-done
			publishStatus(publisher, mqttStatus, tracker, now, "SHUTDOWN", reason)
			return err

		case <-ctx.Done():
			err := <-done
			publishStatus(publisher, mqttStatus, tracker, now, "SHUTDOWN", "CANCELLED")
			return err

		case err := <-done:
			reason := "STOPPED"
			switch {
			case err != nil:
				reason = "FAULT"
			case ctx.Err() != nil:
				reason = "CANCELLED"
			}
			publishStatus(publisher, mqttStatus, tracker, now, "SHUTDOWN", reason)
			return err

		case <-heartbeat:
			if tracker != nil {
				snap := tracker.Snapshot()
				slog.Info("heartbeat", "uptime", snap.Uptime().Truncate(time.Second),
					"hook", snap.Hook, "digits", snap.Counts.Digits,
					"assistant_sessions", snap.Counts.AssistantSessions)
			}
			publishStatus(publisher, mqttStatus, tracker, now, "HEARTBEAT", "")
		}
	}
}

// publishStatus sends a system event carrying a status snapshot.
// Failures are logged; MQTT trouble never stops the daemon.
func publishStatus(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, event, reason string) {
	if publisher == nil {
		return
	}
	ev := mqtt.SystemEvent{
		Timestamp: now(),
		Event:     event,
		Reason:    reason,
		Retained:  event != "HEARTBEAT",
	}
	if tracker != nil {
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
		ev.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), event, reason)
	}
	if err := publisher.PublishSystem(ev); err != nil {
		slog.Warn("publish system event", "event", event, "error", err)
		return
	}
	slog.Debug("published system event", "event", event)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
