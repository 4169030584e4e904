package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aretw0/brewing"
	"github.com/aretw0/brewing/pkg/core"
)

var initName string

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a brewing project in the current directory",
	Long:  `Create the .brewing directory and the project file. With a .git directory present, every change is committed.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := projectDir
		if dir == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			dir = cwd
		}
		if err := initProject(contextOf(cmd), dir, initName); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Initialized brewing project in", dir)
		return nil
	},
}

// createCmd mirrors `brewing create <name>`: a new directory holding a
// fresh project.
var createCmd = &cobra.Command{
	Use:   "create <project_name>",
	Short: "Create a new brewing project in a new directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		parent := projectDir
		if parent == "" {
			parent = "."
		}
		dir := filepath.Join(parent, name)
		if _, err := os.Stat(dir); err == nil {
			return fmt.Errorf("sorry the %q directory already exists", name)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		if err := initProject(contextOf(cmd), dir, name); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "✅ Cool! Your project was created.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Start developing using:")
		fmt.Fprintf(out, "cd %s\n", name)
		fmt.Fprintln(out, "brewing list")
		return nil
	},
}

func initProject(ctx context.Context, dir, name string) error {
	ws, err := brewing.Open(dir,
		brewing.WithAdapter(brewing.AdapterFS),
		brewing.WithAutoInit(true),
		brewing.WithWatch(false),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}
	defer closeWorkspace(ws)

	if name == "" {
		return nil
	}
	p, err := ws.Project.Get(ctx)
	if err != nil {
		return err
	}
	_, err = ws.Project.Update(ctx, core.ProjectUpdate{Onboarded: p.Onboarded, Name: &name})
	return err
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Show the project configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer closeWorkspace(ws)
		if ws.Project == nil {
			return errors.New("the collaborator has no project configuration")
		}

		p, err := ws.Project.Get(contextOf(cmd))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "id:        %s\n", p.ID)
		fmt.Fprintf(out, "name:      %s\n", p.Name)
		fmt.Fprintf(out, "onboarded: %t\n", p.Onboarded)
		return nil
	},
}

var onboardCmd = &cobra.Command{
	Use:   "onboard <name>",
	Short: "Complete the setup flow under the given project name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := openWorkspace()
		if err != nil {
			return err
		}
		defer closeWorkspace(ws)
		if ws.Project == nil {
			return errors.New("the collaborator has no project configuration")
		}

		p, err := ws.Project.Onboard(contextOf(cmd), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Project %q onboarded.\n", p.Name)
		return nil
	},
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(onboardCmd)
	initCmd.Flags().StringVar(&initName, "name", "", "Project name")
}
