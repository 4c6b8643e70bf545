package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stateful/blocks/pkg/block"
	"github.com/stateful/blocks/pkg/dom"
	"github.com/stateful/blocks/pkg/identity"
)

func idsCmd() *cobra.Command {
	var (
		fPool   string
		fOutput string
	)

	cmd := cobra.Command{
		Use:   "ids FILE",
		Short: "Assign missing ids and re-key duplicates in an HTML document.",
		Long: `Assign missing ids and re-key duplicates in an HTML document.

Block nodes without an id get a fresh one, copies of a block get their own
id and inplace blocks carry their data instead of an id. Blocks referenced
by the document are read from --pool. A summary is printed to stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			n, err := dom.ParseFragment(string(data))
			if err != nil {
				return err
			}

			var known []*block.Block
			if fPool != "" {
				f, err := readPoolFile(fPool)
				if err != nil {
					return err
				}
				known = f.all()
			}

			b, err := newBuilder()
			if err != nil {
				return err
			}

			return b.Invoke(func(m *identity.Maintainer, store *block.Store) error {
				for _, b := range known {
					if b.ID != "" {
						store.Set(b.Clone())
					}
				}

				report, err := m.Settle(n)
				if err != nil {
					return err
				}

				_, _ = fmt.Fprintf(
					cmd.ErrOrStderr(),
					"assigned %d, re-keyed %d, stripped %d\n",
					len(report.Assigned), len(report.Rekeyed), len(report.Stripped),
				)
				for _, r := range report.Rekeyed {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "  %s -> %s\n", r.From, r.To)
				}

				out, err := dom.Render(n)
				if err != nil {
					return err
				}
				return writeOutput(cmd, fOutput, []byte(out+"\n"))
			})
		},
	}

	cmd.Flags().StringVar(&fPool, "pool", "", "Pool file with the blocks referenced by the document.")
	cmd.Flags().StringVarP(&fOutput, "output", "o", "", "Output file. Defaults to stdout.")

	return &cmd
}
