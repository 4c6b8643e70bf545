package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/dig"

	"github.com/stateful/blocks/internal/config/autoconfig"
	"github.com/stateful/blocks/pkg/dom"
	"github.com/stateful/blocks/pkg/editor"
)

func renderCmd() *cobra.Command {
	var (
		fRoot     string
		fOutput   string
		fPrefetch bool
	)

	cmd := cobra.Command{
		Use:   "render POOL",
		Short: "Render a block and the blocks it references to HTML.",
		Long: `Render a block and the blocks it references to HTML.

POOL is a JSON (comments allowed) or YAML file holding a "root" block and
the "blocks" it references. Unknown references are rendered as placeholders.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readPoolFile(args[0])
			if err != nil {
				return err
			}
			root, err := f.root(fRoot)
			if err != nil {
				return err
			}

			b, err := newBuilder()
			if err != nil {
				return err
			}

			pool := f.pool()
			if fPrefetch {
				err := b.Provide(func() editor.Resolver { return editor.PoolResolver(pool) }, dig.Group(autoconfig.ResolverGroup))
				if err != nil {
					return err
				}
			}

			return b.Invoke(func(e *editor.Editor) error {
				if fPrefetch {
					if err := e.Prefetch(cmd.Context(), pool.IDs()...); err != nil {
						return errors.Wrap(err, "failed to prefetch")
					}
					// Nested blocks are now found in the store.
					pool = nil
				}

				n, err := e.From(cmd.Context(), root.Clone(), pool)
				if err != nil {
					return err
				}
				out, err := dom.Render(n)
				if err != nil {
					return err
				}
				return writeOutput(cmd, fOutput, []byte(out+"\n"))
			})
		},
	}

	cmd.Flags().StringVar(&fRoot, "root", "", "ID of the block to render. Defaults to the root of the pool file.")
	cmd.Flags().StringVarP(&fOutput, "output", "o", "", "Output file. Defaults to stdout.")
	cmd.Flags().BoolVar(&fPrefetch, "prefetch", false, "Resolve the pool blocks into the store before rendering, instead of rendering from the pool.")

	return &cmd
}
