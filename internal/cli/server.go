package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/colthorp/nutrisync-cli-go/internal/fakebackend"
	"github.com/colthorp/nutrisync-cli-go/internal/logging"
)

func newMockServerCmd(g *globals) *cobra.Command {
	var (
		addr, token string
		latency     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Serve the nutrisync API from memory for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ms := g.cfg.MockServer
			if cmd.Flags().Changed("addr") {
				ms.Addr = addr
			}
			if cmd.Flags().Changed("token") {
				ms.Token = token
			}

			srv := fakebackend.New(
				fakebackend.WithToken(ms.Token),
				fakebackend.WithCORSOrigins(ms.CORSOrigins...),
				fakebackend.WithWeightKg(g.cfg.Profile.WeightKg),
				fakebackend.WithLogger(logging.Component("fakebackend")),
			)
			srv.SetLatency(latency)

			httpServer := &http.Server{
				Addr:         ms.Addr,
				Handler:      srv.Handler(),
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 60 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				g.log.Info().Msg("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				httpServer.Shutdown(shutdownCtx)
			}()

			g.log.Info().Str("addr", ms.Addr).Bool("auth", ms.Token != "").Dur("latency", latency).Msg("mock server listening")
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: mockServer.addr)")
	cmd.Flags().StringVar(&token, "token", "", "Require this bearer token (default: mockServer.token)")
	cmd.Flags().DurationVar(&latency, "latency", 0, "Delay every API response")
	return cmd
}
