package cmd

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/stateful/blocks/pkg/schema"
)

func schemaCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "schema [ELEMENT...]",
		Short: "Print the structural rules synthesized for elements.",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := newBuilder()
			if err != nil {
				return err
			}

			return b.Invoke(func(set *schema.Set) error {
				if len(args) == 0 {
					_, err := cmd.OutOrStdout().Write([]byte(set.String()))
					return errors.WithStack(err)
				}

				var sb strings.Builder
				for _, name := range args {
					s, ok := set.Get(name)
					if !ok {
						return errors.Errorf("unknown element %q", name)
					}
					sb.WriteString("# " + name + "\n")
					sb.WriteString(s.String())
				}
				_, err := cmd.OutOrStdout().Write([]byte(sb.String()))
				return errors.WithStack(err)
			})
		},
	}
	return &cmd
}
