package cmd

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/net/html"

	"github.com/stateful/blocks/pkg/block"
	"github.com/stateful/blocks/pkg/dom"
	"github.com/stateful/blocks/pkg/editor"
)

func extractCmd() *cobra.Command {
	var (
		fPool   string
		fOutput string
	)

	cmd := cobra.Command{
		Use:   "extract FILE",
		Short: "Extract the blocks of an HTML document.",
		Long: `Extract the blocks of an HTML document into a pool file.

Nodes referencing a block by id need the block in the store; load them with
--pool. Nodes carrying only a block type become new blocks. Use "-" to read
the document from stdin.`,
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

			return b.Invoke(func(e *editor.Editor) error {
				out, err := extract(cmd.Context(), e, n, known)
				if err != nil {
					return err
				}
				data, err := encodePoolFile(fOutput, out)
				if err != nil {
					return err
				}
				return writeOutput(cmd, fOutput, data)
			})
		},
	}

	cmd.Flags().StringVar(&fPool, "pool", "", "Pool file with the blocks referenced by the document.")
	cmd.Flags().StringVarP(&fOutput, "output", "o", "", "Output file; YAML when it ends with .yaml. Defaults to JSON on stdout.")

	return &cmd
}

// extract serializes n into a pool file. Known blocks are stored first.
func extract(ctx context.Context, e *editor.Editor, n *html.Node, known []*block.Block) (*poolFile, error) {
	for _, b := range known {
		if b.ID != "" {
			e.Store().Set(b.Clone())
		}
	}

	res, err := e.Serialize(ctx, n)
	if err != nil {
		return nil, err
	}
	if res.Root == nil {
		return nil, errors.New("document has no content")
	}

	out := &poolFile{Blocks: []*block.Block{}}
	for _, b := range res.Blocks {
		flat := b.Clone()
		flat.Children = nil
		if b == res.Root {
			out.Root = flat
			continue
		}
		out.Blocks = append(out.Blocks, flat)
	}
	return out, nil
}
