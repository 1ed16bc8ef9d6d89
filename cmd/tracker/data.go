package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump every table as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		export, err := a.service.ExportAll(cmd.Context())
		if err != nil {
			return fmt.Errorf("exporting data: %w", err)
		}

		var w io.Writer = cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}
			defer f.Close()
			w = f
		}

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(export); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}

		if output != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d snapshots to %s\n", len(export.PlayerStats), output)
		}
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all stored stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.service.ClearAll(cmd.Context()); err != nil {
			return fmt.Errorf("clearing data: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "All data cleared")
		return nil
	},
}
