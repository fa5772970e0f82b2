package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/json"

	"github.com/l7mp/windowfields/pkg/api/v1alpha1"
	"github.com/l7mp/windowfields/pkg/metrics"
	"github.com/l7mp/windowfields/pkg/pipeline"
	"github.com/l7mp/windowfields/pkg/plan"
)

func newRunCommand(log func() logr.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a window stage over JSON lines read from a file or the standard input",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if c.Input != "" && c.Input != "-" {
				f, err := os.Open(c.Input)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			return run(cmd.Context(), c, in, cmd.OutOrStdout(), log())
		},
	}

	addStageFlags(cmd)
	cmd.Flags().StringP("input", "i", "-", "Input file in JSON lines format, - for the standard input")
	cmd.Flags().Int("max-buffered-documents", 0, "Maximum number of buffered documents, 0 for no limit")
	cmd.Flags().String("metrics-bind-address", "", "The address the metric endpoint binds to, disabled if empty")

	return cmd
}

// compile loads and compiles the stage declaration of the configuration.
func compile(c *Config, log logr.Logger) (*plan.Plan, error) {
	spec, err := v1alpha1.ParseFile(c.Stage)
	if err != nil {
		return nil, pipeline.NewInvalidSpecError(err)
	}

	p, err := pipeline.Compile(spec, pipeline.Options{Log: log, DisableOptimizer: c.InhibitOptimization})
	if err != nil {
		return nil, err
	}
	p.Sort = c.Sort

	return p, nil
}

func run(ctx context.Context, c *Config, in io.Reader, out io.Writer, log logr.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := compile(c, log)
	if err != nil {
		return err
	}

	var src pipeline.Source = pipeline.NewJSONLinesSource(in)
	if p.Sort {
		if src, err = pipeline.NewSortedSource(ctx, src, p, log.WithName("sort")); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if c.MetricsBindAddress != "" {
		stop := serveMetrics(c.MetricsBindAddress, reg, log)
		defer stop()
	}

	e, err := pipeline.NewEngineFromPlan(p, src, pipeline.Options{
		Log:                  log,
		Metrics:              m,
		MaxBufferedDocuments: c.MaxBufferedDocuments,
	})
	if err != nil {
		return err
	}

	// nothing is written unless the whole input is processed
	docs, err := e.Collect(ctx)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		b, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode output document: %w", err)
		}
		if _, err := out.Write(append(b, '\n')); err != nil {
			return err
		}
	}

	return nil
}

// serveMetrics exposes the registry on the given address until the returned function is called.
func serveMetrics(addr string, reg *prometheus.Registry, log logr.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.V(1).Info("serving metrics", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
