package blockscrub

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newFormatsCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "formats",
		Short: "List configured formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.loadSettings()
			if err != nil {
				return err
			}
			reg, err := buildRegistry(st.merged)
			if err != nil {
				return err
			}
			specs := reg.Specs()
			w := cmd.OutOrStdout()

			if asJSON {
				type view struct {
					Extension     string `json:"extension"`
					Prefix        string `json:"prefix"`
					Suffix        string `json:"suffix"`
					BlockPattern  string `json:"block_pattern"`
					Replacement   string `json:"replacement"`
					MaxBlockBytes int    `json:"max_block_bytes"`
					Processor     string `json:"processor"`
				}
				out := make([]view, 0, len(specs))
				for _, s := range specs {
					out = append(out, view{
						Extension:     s.Extension,
						Prefix:        string(s.Prefix),
						Suffix:        string(s.Suffix),
						BlockPattern:  s.BlockPattern,
						Replacement:   string(s.Replacement),
						MaxBlockBytes: s.MaxBlockBytes,
						Processor:     string(s.Processor),
					})
				}
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			table := tablewriter.NewWriter(w)
			table.Header("Extension", "Prefix", "Suffix", "Block pattern", "Replacement", "Max", "Processor")
			for _, s := range specs {
				_ = table.Append([]string{
					s.Extension,
					quoteBytes(s.Prefix),
					quoteBytes(s.Suffix),
					s.BlockPattern,
					quoteBytes(s.Replacement),
					strconv.Itoa(s.MaxBlockBytes),
					string(s.Processor),
				})
			}
			if err := table.Render(); err != nil {
				return err
			}
			if st.path != "" {
				fmt.Fprintf(w, "\nfrom %s\n", st.path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

// quoteBytes renders a byte field the way it is written in the config.
func quoteBytes(b []byte) string {
	if len(b) == 0 {
		return "-"
	}
	q := strconv.Quote(string(b))
	return q[1 : len(q)-1]
}
