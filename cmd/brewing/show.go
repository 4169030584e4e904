package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/brewing"
	"github.com/aretw0/brewing/pkg/core"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a specification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace(brewing.WithReadOnly(true))
		if err != nil {
			return err
		}
		defer closeWorkspace(ws)

		spec, err := lookup(ws, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if showJSON {
			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			return encoder.Encode(spec)
		}

		fmt.Fprintln(out, summaryLine(spec))
		if spec.Summary != nil {
			fmt.Fprintln(out, *spec.Summary)
		}
		fmt.Fprintf(out, "created %s, updated %s\n", spec.DateCreated.Format("2006-01-02 15:04"), spec.DateUpdated.Format("2006-01-02 15:04"))
		if spec.DatePublished != nil {
			fmt.Fprintf(out, "published %s\n", spec.DatePublished.Format("2006-01-02 15:04"))
		}
		if draft := core.StringValue(spec.DraftContent); draft != "" {
			fmt.Fprintln(out)
			fmt.Fprintln(out, strings.TrimRight(draft, "\n"))
		}
		return nil
	},
}

// lookup finds a specification by id or by an unambiguous id prefix.
func lookup(ws *brewing.Workspace, ref string) (core.Specification, error) {
	if spec, ok := ws.Store.Get(ref); ok {
		return spec, nil
	}
	var found []core.Specification
	for _, s := range ws.Store.Snapshot() {
		if strings.HasPrefix(s.ID, ref) {
			found = append(found, s)
		}
	}
	switch len(found) {
	case 0:
		return core.Specification{}, fmt.Errorf("%w: %s", core.ErrNotFound, ref)
	case 1:
		return found[0], nil
	default:
		return core.Specification{}, fmt.Errorf("ambiguous id %q matches %d specifications", ref, len(found))
	}
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output in JSON format")
}
