package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/cjeanneret/ThermoBox/internal/config"
	"github.com/cjeanneret/ThermoBox/internal/journal"
	"github.com/cjeanneret/ThermoBox/internal/logic/counter"
	"github.com/cjeanneret/ThermoBox/internal/logic/session"
)

func newCounterCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Inspect or initialize the image counter",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the last used image id and the next file name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			store, err := counter.Open(cfg.Output.CounterFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "counter file: %s\n", store.Path())
			fmt.Fprintf(out, "current:      %d\n", store.Current())
			fmt.Fprintf(out, "next image:   %s\n", session.ImagePath(cfg.Output.OutputPath, cfg.Output.ImageName, store.Current()+1))
			return nil
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [value]",
		Short: "Create the counter file (default value 0)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v uint64
			if len(args) == 1 {
				parsed, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("counter value must be a non-negative integer, got %q", args[0])
				}
				v = parsed
			}
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if existing, err := counter.Open(cfg.Output.CounterFile); err == nil && !force {
				return fmt.Errorf("counter file %s already holds %d, use --force to overwrite", existing.Path(), existing.Current())
			}
			store, err := counter.Init(cfg.Output.CounterFile, v)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "counter file %s set to %d\n", store.Path(), store.Current())
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing counter")
	cmd.AddCommand(initCmd)

	return cmd
}

func newJournalCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Read the session journal",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if cfg.Journal.Path == "" {
				return fmt.Errorf("journal.path is not set in %s", *cfgPath)
			}
			j, err := journal.Open(cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No sessions recorded")
				return nil
			}
			fmt.Fprintln(out, formatRow("STARTED", "DURATION", "OUTCOME", "IMAGE"))
			for _, e := range entries {
				fmt.Fprintln(out, formatEntry(e))
			}
			return nil
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of sessions to show")
	cmd.AddCommand(listCmd)

	return cmd
}

func formatEntry(e journal.Entry) string {
	line := formatRow(
		e.StartedAt.Local().Format("2006-01-02 15:04:05"),
		e.FinishedAt.Sub(e.StartedAt).Round(100*time.Millisecond).String(),
		outcomeStyle(e.Outcome).Render(string(e.Outcome)),
		e.ImagePath,
	)
	if e.Error != "" {
		line += "\n    " + lipgloss.NewStyle().Faint(true).Render(e.Error)
	}
	return line
}

func formatRow(started, duration, outcome, image string) string {
	return padStr(started, 21) + padStr(duration, 10) + padStr(outcome, 14) + image
}

// padStr pads s to width, ignoring ANSI colour codes.
func padStr(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s + " "
	}
	return s + strings.Repeat(" ", width-visible)
}

func outcomeStyle(o journal.Outcome) lipgloss.Style {
	switch o {
	case journal.OutcomePrinted:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case journal.OutcomePrintFailed:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	case journal.OutcomeAborted:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	default:
		return lipgloss.NewStyle().Faint(true)
	}
}
