package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/brewing"
	"github.com/aretw0/brewing/pkg/collection"
	"github.com/aretw0/brewing/pkg/core"
)

var (
	listJSON      bool
	listSort      string
	listDesc      bool
	listLimit     int
	listPublished bool
	listDrafts    bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the specifications of the project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := listView()
		if err != nil {
			return err
		}

		ws, err := openWorkspace(brewing.WithReadOnly(true))
		if err != nil {
			return err
		}
		defer closeWorkspace(ws)

		specs := ws.Store.Query(view)
		out := cmd.OutOrStdout()
		if listJSON {
			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			return encoder.Encode(specs)
		}

		for _, s := range specs {
			fmt.Fprintln(out, summaryLine(s))
		}
		return nil
	},
}

func listView() (collection.View, error) {
	view := collection.View{Limit: listLimit}
	switch listSort {
	case "", "created":
		view.OrderBy = collection.ByDateCreated
	case "updated":
		view.OrderBy = collection.ByDateUpdated
	case "name":
		view.OrderBy = collection.ByName
	default:
		return view, fmt.Errorf("unknown sort key %q (created, updated, name)", listSort)
	}
	if listDesc {
		view.Direction = collection.Desc
	}
	switch {
	case listPublished && listDrafts:
		return view, fmt.Errorf("--published and --drafts are exclusive")
	case listPublished:
		view.Where = func(s core.Specification) bool { return s.DatePublished != nil && s.Published() }
	case listDrafts:
		view.Where = func(s core.Specification) bool { return !s.Published() }
	}
	return view, nil
}

func summaryLine(s core.Specification) string {
	var b strings.Builder
	b.WriteString(s.ID)
	b.WriteString("  ")
	if s.Emoji != nil {
		b.WriteString(*s.Emoji + " ")
	}
	b.WriteString(s.Name)
	if !s.Published() {
		b.WriteString(" (draft)")
	}
	return b.String()
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	listCmd.Flags().StringVar(&listSort, "sort", "created", "Sort key: created, updated or name")
	listCmd.Flags().BoolVar(&listDesc, "desc", false, "Sort descending")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Show at most n specifications")
	listCmd.Flags().BoolVar(&listPublished, "published", false, "Only specifications whose draft is published")
	listCmd.Flags().BoolVar(&listDrafts, "drafts", false, "Only specifications with unpublished changes")
}
