package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/coolbeans/dcatgraph/pkg/align"
	"github.com/coolbeans/dcatgraph/pkg/catalog"
)

func (a *app) watchCmd() *cobra.Command {
	var (
		f           modelFlags
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep a catalog loaded and hot-reload alignment files",
		Long: `Load a catalog, then watch the alignment directory. Every change to an
alignment file is applied to the alignment graph and the inferred view is
rebuilt. Prometheus metrics are served on /metrics until interrupted.

Example:
  dcatgraph watch --catalog catalog.ttl --align-dir alignments --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.catalog == "" {
				return fmt.Errorf("--catalog is required")
			}
			ctx := cmd.Context()
			m, report, alignments, err := a.model(ctx, &f)
			if err != nil {
				return err
			}
			fmt.Print(report)

			if err := a.rebuild(ctx, m); err != nil {
				return err
			}

			alignments.SetOnChange(func(event string, file *align.File) {
				name := ""
				if file != nil {
					name = file.Name
				}
				a.logger.Info("alignment changed", "event", event, "alignment", name)
				if err := a.rebuild(ctx, m); err != nil {
					a.logger.Warn("inference rebuild failed", "error", err)
				}
			})
			if err := alignments.Watch(); err != nil {
				return err
			}
			defer alignments.StopWatch()

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
			mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("OK"))
			})
			server := &http.Server{
				Addr:              metricsAddr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			serveErr := make(chan error, 1)
			go func() {
				a.logger.Info("serving metrics", "addr", metricsAddr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case <-ctx.Done():
			case err := <-serveErr:
				if err != nil {
					return fmt.Errorf("serve metrics: %w", err)
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	f.register(cmd, true)
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address for the metrics endpoint")
	return cmd
}

// rebuild refreshes the inferred view and logs its size.
func (a *app) rebuild(ctx context.Context, m *catalog.Model) error {
	if _, err := m.PrepInferredQuery(ctx, "SELECT * WHERE { ?s ?p ?o } LIMIT 1"); err != nil {
		return err
	}
	view, err := m.Binder().View()
	if err != nil {
		return err
	}
	a.logger.Info("inferred view rebuilt", "triples", view.Len(), "rebuilds", view.Rebuilds())
	return nil
}
