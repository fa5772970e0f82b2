// Package cli implements the windowfields command line tool.
package cli

import (
	"flag"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/l7mp/windowfields/internal/buildinfo"
)

// NewRootCommand creates the windowfields command.
func NewRootCommand() *cobra.Command {
	opts := zap.Options{
		Development:     true,
		StacktraceLevel: zapcore.Level(3),
		TimeEncoder:     zapcore.RFC3339NanoTimeEncoder,
	}
	zapFlags := flag.NewFlagSet("zap", flag.ContinueOnError)
	opts.BindFlags(zapFlags)

	var logger logr.Logger

	root := &cobra.Command{
		Use:           "windowfields",
		Short:         "Evaluate window functions over sorted document streams",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.DestWriter = cmd.ErrOrStderr()
			logger = zap.New(zap.UseFlagOptions(&opts)).WithName("windowfields")
			logger.V(1).Info(fmt.Sprintf("starting windowfields %s", buildinfo.Get().String()))
		},
	}
	root.PersistentFlags().AddGoFlagSet(zapFlags)

	log := func() logr.Logger { return logger }
	root.AddCommand(newRunCommand(log), newExplainCommand(log), newVersionCommand())

	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Get().String())
		},
	}
}

func addStageFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("stage", "f", "", "Stage declaration file (JSON or YAML)")
	cmd.Flags().Bool("sort", false, "Sort the input by partition key and sortBy before the window stage")
	cmd.Flags().Bool("inhibit-optimization", false, "Run the stage as declared, without the optimizer")
}
