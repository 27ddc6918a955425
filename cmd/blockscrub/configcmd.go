package blockscrub

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/varalys/blockscrub/internal/cache"
	"github.com/varalys/blockscrub/internal/config"
	"github.com/varalys/blockscrub/internal/files"
)

func newConfigCmd(a *app) *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Configuration helpers"}

	var output string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample .blockscrub.yml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if err := os.WriteFile(output, []byte(config.Sample()), 0o644); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Wrote", output)

			// keep the result cache out of version control
			dir := filepath.Dir(output)
			if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
				if err := files.AppendIgnore(dir, cache.FileName); err != nil {
					return err
				}
			}
			return nil
		},
	}
	initCmd.Flags().StringVar(&output, "output", config.LocalNames[0], "output file path")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the config files in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			if gp, err := config.GlobalPath(); err == nil {
				fmt.Fprintln(w, "global:", gp)
			}
			st, err := a.loadSettings()
			if err != nil {
				return err
			}
			if st.path != "" {
				fmt.Fprintln(w, "active:", st.path)
			} else {
				fmt.Fprintln(w, "active: none")
			}
			return nil
		},
	}

	cfgCmd.AddCommand(initCmd, pathCmd)
	return cfgCmd
}
