package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/l7mp/windowfields/pkg/plan"
	"github.com/l7mp/windowfields/pkg/visualize"
)

func newExplainCommand(log func() logr.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Print the optimized plan of a window stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			p, err := compile(c, log())
			if err != nil {
				return err
			}

			if c.Format == "" || c.Format == "json" {
				b, err := plan.Explain(p).JSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return nil
			}

			gen, err := visualize.NewGenerator(c.Format)
			if err != nil {
				return err
			}
			name := strings.TrimSuffix(filepath.Base(c.Stage), filepath.Ext(c.Stage))
			fmt.Fprint(cmd.OutOrStdout(), gen.Generate(visualize.BuildGraph(name, p)))
			return nil
		},
	}

	addStageFlags(cmd)
	cmd.Flags().StringP("format", "o", "json", "Output format: json, dot or mermaid")

	return cmd
}
