package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/stateful/blocks/pkg/dom"
	"github.com/stateful/blocks/pkg/editor"
)

func importCmd() *cobra.Command {
	var (
		fFormat string
		fOutput string
	)

	cmd := cobra.Command{
		Use:   "import FILE",
		Short: "Import a markdown document.",
		Long: `Import a markdown document.

Raw HTML in the markdown may reference blocks with block-type attributes.
The result is written as HTML or, with --format=json, as a pool file.
Use "-" to read the document from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch fFormat {
			case "html", "json", "yaml":
			default:
				return errors.Errorf("unknown format %q", fFormat)
			}

			source, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			b, err := newBuilder()
			if err != nil {
				return err
			}

			return b.Invoke(func(e *editor.Editor) error {
				n, err := e.FromMarkdown(cmd.Context(), source, nil)
				if err != nil {
					return err
				}

				if fFormat == "html" {
					out, err := dom.Render(n)
					if err != nil {
						return err
					}
					return writeOutput(cmd, fOutput, []byte(out+"\n"))
				}

				f, err := extract(cmd.Context(), e, n, nil)
				if err != nil {
					return err
				}
				data, err := encodePoolFile("."+fFormat, f)
				if err != nil {
					return err
				}
				return writeOutput(cmd, fOutput, data)
			})
		},
	}

	cmd.Flags().StringVar(&fFormat, "format", "html", "Output format: html, json or yaml.")
	cmd.Flags().StringVarP(&fOutput, "output", "o", "", "Output file. Defaults to stdout.")

	return &cmd
}
