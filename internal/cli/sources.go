package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// sourcesCmd represents the sources command
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources",
	Long:  `List the upstream sources from the configuration (built-in defaults: leilex, animals).`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "NAME\tKIND\tLABEL\tNAME PATH\tURL")
		for _, s := range cfg.Sources {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.Name, s.Kind, s.Label, s.NamePath, s.URL)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("write sources: %w", err)
		}

		if verbose {
			for _, s := range cfg.Sources {
				if len(s.Params) == 0 && len(s.Vars) == 0 {
					continue
				}
				fmt.Fprintf(os.Stderr, "\n%s:\n", s.Name)
				for k, v := range s.Params {
					fmt.Fprintf(os.Stderr, "  param %s=%s\n", k, v)
				}
				for k, v := range s.Vars {
					fmt.Fprintf(os.Stderr, "  var   %s=%v\n", k, v)
				}
				if s.QueryFile != "" {
					fmt.Fprintf(os.Stderr, "  query %s\n", s.QueryFile)
				} else if s.Query != "" {
					fmt.Fprintf(os.Stderr, "  query %s\n", strings.Join(strings.Fields(s.Query), " "))
				}
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
