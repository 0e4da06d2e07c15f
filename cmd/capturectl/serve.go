package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/fieldcapture/internal/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the saved sessions over gRPC and HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root)
			if err != nil {
				return err
			}
			defer a.close()

			grpcServer, healthServer := server.NewGRPCServer(server.NewSessionsServer(a.repo, a.logger))
			lis, err := net.Listen("tcp", a.cfg.Server.GRPCAddr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", a.cfg.Server.GRPCAddr, err)
			}

			health := func(ctx context.Context) error { return a.kv.HealthCheck(ctx, 2*time.Second) }
			httpServer := &http.Server{
				Addr:              a.cfg.Server.HTTPAddr,
				Handler:           server.NewHTTPHandler(a.repo, a.exporter, health, a.logger),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.logger.Info("gRPC server listening", "address", a.cfg.Server.GRPCAddr)
				return grpcServer.Serve(lis)
			})
			g.Go(func() error {
				a.logger.Info("HTTP server listening", "address", a.cfg.Server.HTTPAddr)
				if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				a.logger.Info("shutting down servers")
				healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				err := httpServer.Shutdown(shutdownCtx)
				grpcServer.GracefulStop()
				return err
			})

			if err := g.Wait(); err != nil {
				return err
			}
			a.logger.Info("servers stopped")
			return nil
		},
	}
}
