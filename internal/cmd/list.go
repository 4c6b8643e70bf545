package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/stateful/blocks/internal/config"
)

func listCmd() *cobra.Command {
	var fFilters []string

	cmd := cobra.Command{
		Use:     "list POOL",
		Aliases: []string{"ls"},
		Short:   "List the blocks of a pool file.",
		Long: `List the blocks of a pool file.

Blocks are selected by the filters of the configuration and by --filter
conditions, written in https://expr-lang.org/docs/language-definition and
evaluated against id, type, standalone, virtual, focused, slots, data and
children.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readPoolFile(args[0])
			if err != nil {
				return err
			}

			b, err := newBuilder()
			if err != nil {
				return err
			}

			return b.Invoke(func(cfg *config.Config) error {
				filters := append([]*config.Filter(nil), cfg.Filters...)
				for _, condition := range fFilters {
					filters = append(filters, &config.Filter{Type: config.FilterTypeBlock, Condition: condition})
				}

				blocks, err := config.Select(filters, f.all())
				if err != nil {
					return err
				}

				table := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(table, strings.Join([]string{"ID", "TYPE", "SLOTS", "STANDALONE"}, "\t"))
				for _, b := range blocks {
					_, _ = fmt.Fprintf(
						table,
						"%s\t%s\t%s\t%t\n",
						b.ID,
						b.Type,
						strings.Join(b.Content.Names(), ","),
						b.Standalone,
					)
				}
				return errors.Wrap(table.Flush(), "failed to render")
			})
		},
	}

	cmd.Flags().StringArrayVar(&fFilters, "filter", nil, "Condition blocks must satisfy. Can be repeated.")

	return &cmd
}
