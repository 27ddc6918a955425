package blockscrub

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/varalys/blockscrub/internal/engine"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Compile every configured format and report problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.loadSettings()
			if err != nil {
				return err
			}
			fc := st.merged
			if len(fc.Formats) == 0 {
				return errNoFormats
			}
			w := cmd.OutOrStdout()

			// each format is decoded and compiled on its own so one bad
			// entry does not hide the others
			bad := 0
			for _, ext := range sortedKeys(fc.Formats) {
				spec, err := fc.Formats[ext].Spec(ext)
				if err == nil {
					_, err = engine.New(spec)
				}
				if err != nil {
					bad++
					fmt.Fprintf(w, "FAIL  %-8s %v\n", ext, err)
					continue
				}
				fmt.Fprintf(w, "ok    %-8s %s\n", spec.Extension, spec.BlockPattern)
			}
			if bad > 0 {
				return fmt.Errorf("%d of %d formats invalid", bad, len(fc.Formats))
			}
			if _, err := buildRegistry(fc); err != nil {
				return err
			}
			return nil
		},
	}
}
