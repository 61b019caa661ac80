package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/openmined/deltasync/internal/delta"
	"github.com/openmined/deltasync/internal/engine"
	"github.com/openmined/deltasync/internal/version"
	"github.com/spf13/cobra"
)

func newScanCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [root]",
		Short: "Show what changed locally since the last pass",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFlag(cmd)
			if err != nil {
				return err
			}
			ws, err := c.openWorkspace(cmd.Context(), cmd, args)
			if err != nil {
				return err
			}
			defer ws.Close()

			lock := engine.NewRootLock(ws.engine.Root())
			if err := lock.Lock(); err != nil {
				return err
			}
			defer lock.Unlock()

			calc := delta.NewLocalCalculator(ws.store, ws.hasher, delta.WithIgnore(ws.ignore))
			entries, err := calc.Calculate(ws.engine.Root())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, entries, func(w io.Writer) error {
				return writeEntries(w, entries)
			})
		},
	}
}

func newPlanCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "plan [root]",
		Short: "Merge local and remote changes into a per-path plan",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFlag(cmd)
			if err != nil {
				return err
			}
			ws, err := c.openWorkspace(cmd.Context(), cmd, args)
			if err != nil {
				return err
			}
			defer ws.Close()

			p, err := ws.engine.Plan(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, p, func(w io.Writer) error {
				return writePlan(w, p)
			})
		},
	}
}

func newBaselineCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "baseline [root]",
		Short: "Record the current local and remote state as synced without transferring",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFlag(cmd)
			if err != nil {
				return err
			}
			ws, err := c.openWorkspace(cmd.Context(), cmd, args)
			if err != nil {
				return err
			}
			defer ws.Close()

			exec := engine.NewBaselineExecutor(ws.store, ws.source.Name(), engine.WithRemoteID(ws.remoteID))
			res, err := ws.engine.Run(cmd.Context(), exec)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, res, func(w io.Writer) error {
				return writeResult(w, res)
			})
		},
	}
}

func newWatchCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [root]",
		Short: "Print a new plan whenever the root changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFlag(cmd)
			if err != nil {
				return err
			}
			ws, err := c.openWorkspace(cmd.Context(), cmd, args)
			if err != nil {
				return err
			}
			defer ws.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			watcher := engine.NewWatcher(ws.engine.Root(), engine.WithWatchIgnore(ws.ignore))
			if err := watcher.Start(ctx); err != nil {
				return fmt.Errorf("watch %s: %w", ws.engine.Root(), err)
			}
			defer watcher.Stop()

			out := cmd.OutOrStdout()
			err = ws.engine.Watch(ctx, watcher.Triggers(), ws.cfg.WatchInterval, func(p *engine.Plan, err error) {
				if err != nil {
					slog.Warn("plan failed", "error", err)
					return
				}
				if err := render(out, format, p, func(w io.Writer) error { return writePlan(w, p) }); err != nil {
					slog.Error("render plan", "error", err)
				}
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func newStateCmd(c *cli) *cobra.Command {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and edit the persisted sync state",
	}

	var status string
	listCmd := &cobra.Command{
		Use:   "list [root]",
		Short: "List tracked paths",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFlag(cmd)
			if err != nil {
				return err
			}
			ws, err := c.openWorkspace(cmd.Context(), cmd, args)
			if err != nil {
				return err
			}
			defer ws.Close()

			var states []*delta.SyncState
			if status != "" {
				parsed, err := delta.ParseFileSyncStatus(status)
				if err != nil {
					return err
				}
				states, err = ws.store.GetSyncStatesByStatus(parsed)
				if err != nil {
					return err
				}
			} else if states, err = ws.store.GetAllSyncStates(); err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), format, states, func(w io.Writer) error {
				return writeStates(w, states)
			})
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "only paths with this status")

	var root string
	forgetCmd := &cobra.Command{
		Use:   "forget <path>...",
		Short: "Drop the baseline of paths so the next pass treats them as new",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rootArgs []string
			if root != "" {
				rootArgs = []string{root}
			}
			ws, err := c.openWorkspace(cmd.Context(), cmd, rootArgs)
			if err != nil {
				return err
			}
			defer ws.Close()

			lock := engine.NewRootLock(ws.cfg.Root)
			if err := lock.Lock(); err != nil {
				return err
			}
			defer lock.Unlock()

			for _, p := range args {
				if err := ws.store.DeleteSyncState(p); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "forgot", p)
			}
			return nil
		},
	}
	forgetCmd.Flags().StringVar(&root, "root", "", "sync root (default from config)")

	stateCmd.AddCommand(listCmd, forgetCmd)
	return stateCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFlag(cmd)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, version.Current(), func(w io.Writer) error {
				_, err := fmt.Fprintln(w, version.Detailed())
				return err
			})
		},
	}
}
