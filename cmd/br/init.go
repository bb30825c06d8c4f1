package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/braid-dev/braid/internal/configfile"
	"github.com/braid-dev/braid/internal/errs"
	"github.com/braid-dev/braid/internal/idgen"
	"github.com/braid-dev/braid/internal/storage/sqlite"
)

var initPrefix string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a workspace in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := idgen.ValidatePrefix(initPrefix); err != nil {
			return err
		}

		workspace, err := configfile.Create(".", initPrefix)
		if err != nil {
			return errs.Wrap(errs.CodeInvalidArgument, err, "init failed").
				WithHint("a workspace already initialized here cannot be re-initialized")
		}

		db, err := sqlite.Open(workspace.DBPath(initPrefix))
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		if err := db.SetConfig(ctx, "issue_prefix", initPrefix); err != nil {
			return errs.Wrap(errs.CodeIOError, err, "failed to record issue prefix")
		}

		if jsonMode() {
			return outputJSON(map[string]string{
				"workspace": workspace.BeadsDir,
				"prefix":    initPrefix,
			})
		}
		fmt.Printf("Initialized workspace in %s (prefix %q)\n", workspace.BeadsDir, initPrefix)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initPrefix, "prefix", "br", "issue ID prefix for this workspace")
	rootCmd.AddCommand(initCmd)
}
