package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/brewing"
	"github.com/aretw0/brewing/pkg/debounce"
)

var (
	editField    string
	editDebounce bool
)

var renameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a specification",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer closeWorkspace(ws)

		spec, err := lookup(ws, args[0])
		if err != nil {
			return err
		}
		name := strings.Join(args[1:], " ")
		tx, err := ws.Store.Update(spec.ID, func(s *brewing.Specification) { s.Name = name })
		if err != nil {
			return err
		}
		if err := await(tx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", spec.ID, name)
		return nil
	},
}

// editCmd streams stdin into one field. Every line updates the pending
// value; the debounce coordinator writes it once typing pauses, and the
// remainder is flushed at end of input.
var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a field of a specification from standard input",
	Long: `Read standard input into a field (draft_content by default). For
draft_content the lines accumulate; for other fields each line replaces the
value. Writes are debounced like in the editor.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer closeWorkspace(ws)

		spec, err := lookup(ws, args[0])
		if err != nil {
			return err
		}
		key := debounce.Key{ID: spec.ID, Field: debounce.Field(editField)}
		if _, ok := key.Field.Value(spec); !ok {
			return fmt.Errorf("%w: %q", debounce.ErrUnknownField, editField)
		}

		if err := streamInto(ws, key, cmd.InOrStdin()); err != nil {
			return err
		}
		tx, err := ws.Debouncer.Flush(key)
		if err != nil {
			return err
		}
		if tx == nil {
			tx = ws.Debouncer.Last(key)
		}
		if tx == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No changes.")
			return nil
		}
		if err := await(tx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s of %s\n", key.Field, spec.ID)
		return nil
	},
}

func streamInto(ws *brewing.Workspace, key debounce.Key, r io.Reader) error {
	accumulate := key.Field == debounce.FieldDraftContent
	var value strings.Builder

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if accumulate {
			value.WriteString(line)
			value.WriteString("\n")
		} else {
			value.Reset()
			value.WriteString(line)
		}
		if !editDebounce {
			continue
		}
		if err := ws.Debouncer.Schedule(key, value.String(), 0); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	if editDebounce {
		return nil
	}
	return ws.Debouncer.Schedule(key, value.String(), 0)
}

var publishCmd = &cobra.Command{
	Use:   "publish <id>",
	Short: "Publish the draft of a specification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer closeWorkspace(ws)

		spec, err := lookup(ws, args[0])
		if err != nil {
			return err
		}
		tx, err := ws.Store.Publish(spec.ID)
		if err != nil {
			return err
		}
		if err := await(tx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Published %s\n", spec.ID)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a specification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer closeWorkspace(ws)

		spec, err := lookup(ws, args[0])
		if err != nil {
			return err
		}
		tx, err := ws.Store.Delete(spec.ID)
		if err != nil {
			return err
		}
		if err := await(tx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", spec.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(deleteCmd)
	editCmd.Flags().StringVar(&editField, "field", string(debounce.FieldDraftContent), "Field to edit: draft_content, name, summary or emoji")
	editCmd.Flags().BoolVar(&editDebounce, "live", true, "Write while reading, after each pause in the input")
}
