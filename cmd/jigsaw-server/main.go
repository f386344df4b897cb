package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Big-debs/jigsawverse-sub000/internal/config"
	"github.com/Big-debs/jigsawverse-sub000/internal/persist"
	"github.com/Big-debs/jigsawverse-sub000/internal/web"
)

func main() {
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jigsaw-server",
		Short: "Competitive jigsaw game server",
		Long: `Game server for two-player competitive jigsaw puzzles.

Hosts game sessions over a REST API with WebSocket state fanout, saves
games to disk, and optionally replicates sessions to a peer server so a
game can be played across two deployments.

CONFIGURATION:
    Settings come from config.yaml in the current directory (or ./config),
    JIGSAW_* environment variables, and the flags below.

    Example config.yaml:
        server:
          host: localhost
          port: 8080

        game:
          rows: 5
          cols: 5
          mode: classic

        replication:
          enabled: true
          peer_url: http://peer.example.com:8080

        storage:
          dir: ./data/games

API ENDPOINTS:
    GET  /api/health                   - Service health check
    GET  /api/modes                    - List selectable game modes
    POST /api/games                    - Create a new game session
    GET  /api/games                    - List live sessions for spectating
    GET  /api/games/{code}             - Fetch a session's state
    POST /api/games/{code}/join        - Claim the open seat
    POST /api/games/{code}/place       - Place a piece from your rack
    POST /api/games/{code}/decide      - Check or pass a pending placement
    POST /api/games/{code}/hint        - Buy a hint
    POST /api/games/{code}/forfeit     - Concede the game
    GET  /api/games/{code}/qr          - Join URL as a QR code
    GET  /api/saved                    - List saved games
    POST /api/saved/{code}/resume      - Resume a saved game
    GET  /ws/{code}                    - WebSocket state stream`,
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	fs := cmd.Flags()
	fs.String("host", "localhost", "address to bind to (env: JIGSAW_SERVER_HOST)")
	fs.IntP("port", "p", 8080, "port to listen on (env: JIGSAW_SERVER_PORT)")
	fs.String("peer", "", "peer server URL for session replication (env: JIGSAW_REPLICATION_PEER_URL)")
	fs.String("storage", "./data/games", "directory for saved games (env: JIGSAW_STORAGE_DIR)")
	fs.Bool("debug", false, "enable debug logging (env: JIGSAW_DEVELOPMENT_DEBUG)")
	fs.Bool("profile", false, "register net/http/pprof handlers (env: JIGSAW_DEVELOPMENT_PROFILE)")

	cobra.CheckErr(viper.BindPFlag("server.host", fs.Lookup("host")))
	cobra.CheckErr(viper.BindPFlag("server.port", fs.Lookup("port")))
	cobra.CheckErr(viper.BindPFlag("replication.peer_url", fs.Lookup("peer")))
	cobra.CheckErr(viper.BindPFlag("storage.dir", fs.Lookup("storage")))
	cobra.CheckErr(viper.BindPFlag("development.debug", fs.Lookup("debug")))
	cobra.CheckErr(viper.BindPFlag("development.profile", fs.Lookup("profile")))

	return cmd
}

func run() error {
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.Development.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.Development.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	store, err := persist.NewFS(cfg.Storage.Dir)
	if err != nil {
		return fmt.Errorf("failed to open game storage: %w", err)
	}

	hub := web.NewHub()
	go hub.Run()

	peerBase := ""
	if cfg.Replication.Enabled {
		peerBase = cfg.Replication.PeerURL
		if peerBase == "" {
			log.Warn().Msg("Replication enabled without a peer URL, running standalone")
		}
	}

	idleTimeout := time.Duration(cfg.Game.IdleTimeoutMinutes) * time.Minute
	sessions := web.NewManager(store, peerBase, idleTimeout)
	service := web.NewService(sessions, store, hub, cfg)

	router := service.Routes()
	if cfg.Development.Profile {
		router.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		router.HandleFunc("/debug/pprof/profile", pprof.Profile)
		router.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		router.HandleFunc("/debug/pprof/trace", pprof.Trace)
		router.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Bool("replication", peerBase != "").Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server exited")
	return nil
}
