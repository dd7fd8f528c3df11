package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bleemesser/icloudimport/util"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var checkLibrary bool

	rootCmd := &cobra.Command{
		Use:           util.Usage,
		Short:         "Import a folder of photos and videos into the photo library",
		Long:          "Sorts every photo and video in the folder into albums, merges photos with their companion video into live photos, and imports them.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("Usage: %s", util.Usage)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := util.NewArgs(args, checkLibrary)
			if err != nil {
				return fmt.Errorf("Argument error: %w\nUsage: %s", err, util.Usage)
			}
			return run(cmd.Context(), a, cmd.OutOrStdout())
		},
	}
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w\nUsage: %s", err, util.Usage)
	})

	rootCmd.Flags().BoolVar(&checkLibrary, "check-library", false, "Look every photo up in the library before importing it")

	return rootCmd
}
