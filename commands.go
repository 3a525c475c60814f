package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/ai-detect/internal/bootstrap"
	"github.com/example/ai-detect/internal/config"
	"github.com/example/ai-detect/internal/detection"
	"github.com/example/ai-detect/internal/features"
	"github.com/example/ai-detect/internal/grpcapi"
	"github.com/example/ai-detect/internal/imageprocessor"
	"github.com/example/ai-detect/internal/logging"
)

const startupTimeout = 15 * time.Second

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "aidetect",
		Short:         "Classify images as AI-generated or real photographs",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCommand(), newClassifyCommand(), newFeaturesCommand())
	return root
}

func loadRuntime(strategy string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	if strategy != "" {
		cfg.Strategy = strategy
		if err := cfg.Validate(); err != nil {
			return config.Config{}, nil, err
		}
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC classification service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime("")
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			initCtx, cancel := context.WithTimeout(cmd.Context(), startupTimeout)
			defer cancel()
			app, err := bootstrap.New(initCtx, cfg, logger)
			if err != nil {
				logger.Error("startup failed", zap.Error(err))
				return err
			}
			defer app.Close()

			app.StartWarmup(context.Background())

			var hooks []func(context.Context)
			if cfg.GRPCAddr != "" {
				listener, err := net.Listen("tcp", cfg.GRPCAddr)
				if err != nil {
					return fmt.Errorf("listen grpc: %w", err)
				}
				grpcServer, healthServer := app.GRPCServer()
				go func() {
					logger.Info("gRPC API listening", zap.String("addr", cfg.GRPCAddr))
					if err := grpcServer.Serve(listener); err != nil {
						logger.Error("grpc server stopped", zap.Error(err))
					}
				}()
				hooks = append(hooks, func(ctx context.Context) {
					healthServer.Shutdown()
					stopped := make(chan struct{})
					go func() {
						grpcServer.GracefulStop()
						close(stopped)
					}()
					select {
					case <-stopped:
					case <-ctx.Done():
						grpcServer.Stop()
					}
				})
			}

			server := app.HTTPServer()
			logger.Info("HTTP API listening", zap.String("addr", cfg.HTTPAddr), zap.String("strategy", cfg.Strategy))
			return serveHTTP(server, cfg.ShutdownTimeout, logger, serveOptions{onShutdown: hooks})
		},
	}
}

type classifyOutput struct {
	RequestID string `json:"request_id"`
	detection.Result
}

func newClassifyCommand() *cobra.Command {
	var strategy, grpcAddr string
	cmd := &cobra.Command{
		Use:   "classify <image-url>",
		Short: "Classify a single image and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime(strategy)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if grpcAddr != "" {
				client, err := grpcapi.Dial(cmd.Context(), grpcAddr, logger)
				if err != nil {
					return err
				}
				defer client.Close()
				requestID, result, classifyErr := client.Classify(cmd.Context(), args[0])
				if err := writeJSON(cmd, classifyOutput{RequestID: requestID, Result: result}); err != nil {
					return err
				}
				return classifyErr
			}

			app, err := bootstrap.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			requestID, result, classifyErr := app.UseCase.Classify(cmd.Context(), args[0])
			if err := writeJSON(cmd, classifyOutput{RequestID: requestID, Result: result}); err != nil {
				return err
			}
			return classifyErr
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "", "override AIDETECT_STRATEGY (local or remote)")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "classify through a running server's gRPC API instead of in-process")
	return cmd
}

func newFeaturesCommand() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "features <image-url>",
		Short: "Print the statistical feature vector of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime("")
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if size <= 0 {
				size = cfg.Local.InputSize
			}
			loader := imageprocessor.NewLoader(
				imageprocessor.NewFetcher(cfg.Local.FetchTimeout),
				logger,
				imageprocessor.WithMaxPixels(cfg.MaxImagePixels),
			)
			tensor, err := loader.Load(cmd.Context(), args[0], size, size)
			if err != nil {
				return err
			}
			return writeJSON(cmd, features.NewExtractor().Extract(tensor).Named())
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "square resolution to resample to (defaults to the model input size)")
	return cmd
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
