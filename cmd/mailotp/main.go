package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/mailotp/internal/authflow"
	"github.com/dropDatabas3/mailotp/internal/cache"
	"github.com/dropDatabas3/mailotp/internal/config"
	"github.com/dropDatabas3/mailotp/internal/email"
	httpserver "github.com/dropDatabas3/mailotp/internal/http"
	jwtx "github.com/dropDatabas3/mailotp/internal/jwt"
	"github.com/dropDatabas3/mailotp/internal/observability/logger"
	"github.com/dropDatabas3/mailotp/internal/otp"
	"github.com/dropDatabas3/mailotp/internal/rate"
	"github.com/dropDatabas3/mailotp/internal/security/devicetoken"
	"github.com/dropDatabas3/mailotp/internal/session"
	"github.com/dropDatabas3/mailotp/internal/store"
	"github.com/dropDatabas3/mailotp/internal/store/pg"
	"github.com/dropDatabas3/mailotp/internal/trust"
	migrations "github.com/dropDatabas3/mailotp/migrations/postgres"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "mailotp",
		Short: "Step-up de OTP por email con bypass por IP/device de confianza",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env es opcional; pisa nada si no existe
			_ = godotenv.Load()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path al YAML de configuración")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(cleanupCmd(&configPath))
	root.AddCommand(rotateKeyCmd(&configPath))
	root.AddCommand(migrateCmd(&configPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: "mailotp",
	})
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Repositories, error) {
	return store.New(ctx, store.Config{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
		Path:   cfg.Storage.BoltPath,
		PG: pg.Config{
			MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
		},
	})
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levantar el servicio HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			log := logger.Named("serve")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			repos, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = repos.Close() }()

			cacheClient, err := cache.New(cache.Config{
				Driver:   cfg.Cache.Driver,
				Addr:     cfg.Cache.Redis.Addr,
				Password: cfg.Cache.Redis.Password,
				DB:       cfg.Cache.Redis.DB,
				Prefix:   cfg.Cache.Redis.Prefix,
			})
			if err != nil {
				return err
			}
			defer func() { _ = cacheClient.Close() }()

			keystore := jwtx.NewKeystore(repos.Keys)
			if err := keystore.EnsureBootstrap(ctx); err != nil {
				return fmt.Errorf("keystore bootstrap: %w", err)
			}

			issuer := jwtx.NewIssuer(cfg.JWT.Issuer, keystore)
			if d, err := time.ParseDuration(cfg.JWT.AccessTTL); err == nil && d > 0 {
				issuer.AccessTTL = d
			}

			attemptTTL, _ := time.ParseDuration(cfg.AttemptTTL)
			sessions := session.NewStore(cacheClient, attemptTTL)

			trustSvc := trust.NewService(repos.Trust)
			signer := devicetoken.NewSigner(keystore)
			mailer := email.NewOTPMailer(email.NewSMTPSender(cfg.SMTP))

			directory := authflow.NewStaticDirectory(staticPrincipals(cfg))
			codes := otp.NewManager(
				cfg.Authenticator.CodeAlphabet,
				cfg.Authenticator.CodeLength,
				time.Duration(cfg.Authenticator.CodeLifetimeSeconds)*time.Second,
			)

			auth := authflow.NewAuthenticator(
				cfg.Authenticator, codes, trustSvc, signer, mailer, issuer, directory, directory,
			)

			srv := httpserver.NewServer(cfg.Server.Addr, auth, sessions, directory, buildLimiter(cfg))

			cleanupInterval, _ := time.ParseDuration(cfg.Cleanup.Interval)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(gctx) })
			g.Go(func() error {
				trustSvc.RunCleanup(gctx, cleanupInterval)
				return nil
			})

			log.Info("service started", logger.String("addr", cfg.Server.Addr),
				logger.String("storage", cfg.Storage.Driver))
			return g.Wait()
		},
	}
}

// buildLimiter arma el rate limiter según el backend de cache: Redis
// cuando hay Redis (ventanas compartidas entre réplicas), memoria si no.
func buildLimiter(cfg *config.Config) rate.Limiter {
	if !cfg.Rate.Enabled {
		return nil
	}
	window, err := time.ParseDuration(cfg.Rate.Window)
	if err != nil || window <= 0 {
		window = time.Minute
	}
	if cfg.Cache.Driver == "redis" {
		client := rdb.NewClient(&rdb.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		return rate.NewRedisLimiter(client, cfg.Cache.Redis.Prefix+":rl:", cfg.Rate.Max, window)
	}
	return rate.NewMemoryLimiter(cfg.Rate.Max, window)
}

func staticPrincipals(cfg *config.Config) []authflow.StaticPrincipal {
	out := make([]authflow.StaticPrincipal, 0, len(cfg.Directory.Principals))
	for _, p := range cfg.Directory.Principals {
		out = append(out, authflow.StaticPrincipal{
			TenantID:      p.TenantID,
			ID:            p.ID,
			Email:         p.Email,
			EmailVerified: p.EmailVerified,
			Enabled:       p.Enabled,
			Roles:         p.Roles,
		})
	}
	return out
}

func cleanupCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Borrar registros de confianza vencidos (one-shot)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := context.Background()
			repos, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = repos.Close() }()

			removed, err := trust.NewService(repos.Trust).CleanupExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d expired trust entries\n", removed)
			return nil
		},
	}
}

func rotateKeyCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-key",
		Short: "Rotar la clave de firma activa (la anterior pasa a retiring)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := context.Background()
			repos, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = repos.Close() }()

			kid, err := jwtx.NewKeystore(repos.Keys).Rotate(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("new active key: %s\n", kid)
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [up|down]",
		Short: "Aplicar las migraciones de postgres embebidas",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			action := "up"
			if len(args) == 1 {
				action = strings.ToLower(args[0])
			}
			if action != "up" && action != "down" {
				return fmt.Errorf("acción desconocida %q, usar: up | down", action)
			}
			if cfg.Storage.Driver != "postgres" && cfg.Storage.Driver != "pg" {
				return fmt.Errorf("migrate requiere storage.driver=postgres (actual: %q)", cfg.Storage.Driver)
			}

			ctx := context.Background()
			s, err := pg.New(ctx, cfg.Storage.DSN, pg.Config{})
			if err != nil {
				return err
			}
			defer s.Close()

			files, err := listMigrations("_" + action + ".sql")
			if err != nil {
				return err
			}
			if action == "down" {
				reverseInPlace(files)
			}

			for _, f := range files {
				sql, err := migrations.FS.ReadFile(f)
				if err != nil {
					return err
				}
				if _, err := s.Pool().Exec(ctx, string(sql)); err != nil {
					return fmt.Errorf("exec %s: %w", f, err)
				}
				fmt.Printf("applied %s\n", f)
			}
			return nil
		},
	}
}

func listMigrations(suffix string) ([]string, error) {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func reverseInPlace(ss []string) {
	for i, j := 0, len(ss)-1; i < j; i, j = i+1, j-1 {
		ss[i], ss[j] = ss[j], ss[i]
	}
}
