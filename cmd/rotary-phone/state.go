package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sweeney/rotary-phone/internal/config"
	"github.com/sweeney/rotary-phone/internal/gpio"
	"github.com/sweeney/rotary-phone/internal/monitor"
)

func newStateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the current hook and dial line levels and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.ConfigPath)
			if err != nil {
				return err
			}

			chip, err := gpio.NewRealChip(cfg.Chip)
			if err != nil {
				return fmt.Errorf("init gpio: %w", err)
			}
			defer chip.Close()

			hook, err := chip.Line(cfg.HookPin)
			if err != nil {
				return fmt.Errorf("init gpio: %w", err)
			}
			defer hook.Close()

			dial, err := chip.Line(cfg.DialPin)
			if err != nil {
				return fmt.Errorf("init gpio: %w", err)
			}
			defer dial.Close()

			return printState(cmd.OutOrStdout(), hook, dial)
		},
	}
}

func printState(w io.Writer, hook, dial gpio.Line) error {
	h, err := hook.Read()
	if err != nil {
		return fmt.Errorf("read hook line: %w", err)
	}
	d, err := dial.Read()
	if err != nil {
		return fmt.Errorf("read dial line: %w", err)
	}
	_, err = fmt.Fprintf(w, "HOOK: %s (%s), DIAL: %s\n", monitor.HookStateFor(h), h, d)
	return err
}
