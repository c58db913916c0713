package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/lexruler/internal/where"
)

var (
	whereFilters []string
	whereFile    string
)

// whereCmd represents the where command
var whereCmd = &cobra.Command{
	Use:   "where",
	Short: "Render a WHERE clause from key/value filters",
	Long: `Where renders "WHERE k1 = v1 AND k2 = v2" from filters given as flags or
read from a YAML file (a list of {key, value}). Strings are quoted; numbers
and booleans are not. File filters come first.

Example:
  lexruler where --filter country=NL --filter active=true
  lexruler where --file filters.yaml`,
	Args: cobra.NoArgs,
	RunE: runWhere,
}

func init() {
	rootCmd.AddCommand(whereCmd)

	whereCmd.Flags().StringArrayVar(&whereFilters, "filter", nil, "filter key=value (repeatable)")
	whereCmd.Flags().StringVarP(&whereFile, "file", "f", "", "YAML file with a list of {key, value} filters")
}

func runWhere(cmd *cobra.Command, args []string) error {
	var filters []where.Filter

	if whereFile != "" {
		loaded, err := where.LoadFilters(whereFile)
		if err != nil {
			return err
		}
		filters = append(filters, loaded...)
	}

	for _, s := range whereFilters {
		f, err := where.ParseFilter(s)
		if err != nil {
			return err
		}
		filters = append(filters, f)
	}

	clause, err := where.Render(filters)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), clause)
	return nil
}
