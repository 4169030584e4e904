package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/brewing/pkg/core"
)

var (
	newEmoji   string
	newSummary string
	newDraft   string
)

var newCmd = &cobra.Command{
	Use:   "new [name]",
	Short: "Create a specification",
	Long:  `Create a specification. Without a name it is called "Untitled feature".`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer closeWorkspace(ws)

		spec := core.Specification{Name: strings.Join(args, " ")}
		if newEmoji != "" {
			spec.Emoji = core.String(newEmoji)
		}
		if newSummary != "" {
			spec.Summary = core.String(newSummary)
		}
		if cmd.Flags().Changed("draft") {
			spec.DraftContent = core.String(newDraft)
		}
		tx, err := ws.Store.Insert(spec)
		if err != nil {
			return err
		}
		if err := await(tx); err != nil {
			return err
		}
		created, _ := ws.Store.Get(tx.EntityID)
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", summaryLine(created))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().StringVar(&newEmoji, "emoji", "", "Icon of the specification")
	newCmd.Flags().StringVar(&newSummary, "summary", "", "Short description")
	newCmd.Flags().StringVar(&newDraft, "draft", "", "Initial draft content")
}
