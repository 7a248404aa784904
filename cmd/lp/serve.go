package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"launchpad/internal/app"
	"launchpad/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				cfg := a.Config
				if cmd.Flags().Changed("addr") || cfg.Server.Addr == "" {
					cfg.Server.Addr = addr
				}
				if cmd.Flags().Changed("base-path") || cfg.Server.BasePath == "" {
					cfg.Server.BasePath = basePath
				}
				if cfg.Auth.JWTSecret == "" && !cfg.Auth.AllowActorHeader {
					return fmt.Errorf("auth.jwt_secret (or LAUNCHPAD_JWT_SECRET) is required unless auth.allow_actor_header is set")
				}
				if devLogin && cfg.Log.Environment == "production" {
					return fmt.Errorf("--dev-login is not available in production")
				}
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					BasePath: cfg.Server.BasePath,
					Auth: server.AuthConfig{
						JWTSecret:              cfg.Auth.JWTSecret,
						AllowLegacyActorHeader: cfg.Auth.AllowActorHeader,
						Logger:                 a.Log.With(zap.String("component", "auth")),
					},
					AllowedOrigins: cfg.Server.AllowedOrigins,
					RateLimit:      cfg.Server.RateLimit,
					DevLogin:       devLogin,
					Log:            a.Log,
				})
				if err != nil {
					return err
				}
				hooks := server.NewWebhookDispatcher(a.Engine.Repo, cfg.Webhooks, a.Log)
				go hooks.Run(ctx)

				srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.Log.Info("serving launchpad API",
					zap.String("addr", cfg.Server.Addr),
					zap.String("base_path", cfg.Server.BasePath),
					zap.Int("webhooks", len(cfg.Webhooks)))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				a.Log.Info("server stopped")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login (development only)")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}
