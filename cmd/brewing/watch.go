package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/brewing"
	"github.com/aretw0/brewing/pkg/adapters/lifecycle"
	"github.com/aretw0/brewing/pkg/collection"
	"github.com/aretw0/brewing/pkg/core"
)

var watchAll bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the specifications of the project",
	Long:  `Print the listing whenever it changes, together with the reload events of the collection. Stops on Ctrl+C.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ws, err := openWorkspace(brewing.WithWatch(true), brewing.WithReadOnly(true))
		if err != nil {
			return err
		}
		defer closeWorkspace(ws)

		out := cmd.OutOrStdout()
		live := ws.Store.Live(collection.View{OrderBy: collection.ByDateCreated})
		defer live.Close()
		select {
		case <-live.Changes():
		default:
		}
		printListing(cmd, live.Data())

		var opts []lifecycle.SourceOption
		if !watchAll {
			opts = append(opts, lifecycle.WithFilter(func(e core.Event) bool {
				return e.Type == core.EventLoad || e.Type == core.EventLoadFailed
			}))
		}
		src := lifecycle.NewSource(ws.Store.Watch(ctx), opts...)
		if err := src.Start(ctx); err != nil {
			return err
		}

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-live.Changes():
				printListing(cmd, live.Data())
			case e, ok := <-src.Events():
				if !ok {
					return nil
				}
				fmt.Fprintln(out, "--", e.String())
				if ev, isCore := e.(core.Event); isCore && ev.Err != nil {
					fmt.Fprintln(out, "   error:", ev.Err)
				}
			}
		}
	},
}

func printListing(cmd *cobra.Command, specs []core.Specification) {
	out := cmd.OutOrStdout()
	if len(specs) == 0 {
		fmt.Fprintln(out, "(no specifications)")
		return
	}
	for _, s := range specs {
		fmt.Fprintln(out, summaryLine(s))
	}
}

var historyCount int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the latest commits of a versioned project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(brewing.WithReadOnly(true))
		if err != nil {
			return err
		}
		defer closeWorkspace(ws)

		h, ok := ws.Persistence.(interface {
			History(ctx context.Context, n int) ([]string, error)
		})
		if !ok {
			return fmt.Errorf("the %s adapter keeps no history", ws.Adapter)
		}
		lines, err := h.History(contextOf(cmd), historyCount)
		if err != nil {
			return err
		}
		for _, l := range lines {
			fmt.Fprintln(cmd.OutOrStdout(), l)
		}
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the collaborator is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(brewing.WithReadOnly(true))
		if err != nil {
			return err
		}
		defer closeWorkspace(ws)

		if hc, ok := ws.Persistence.(core.HealthChecker); ok {
			if err := hc.Health(contextOf(cmd)); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: healthy (%d specifications)\n", ws.Adapter, ws.Store.Len())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(healthCmd)
	watchCmd.Flags().BoolVar(&watchAll, "all", false, "Print every change event, not only reloads")
	historyCmd.Flags().IntVarP(&historyCount, "number", "n", 10, "Number of commits")
}
