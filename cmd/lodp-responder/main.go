package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lodpnet/lodp/internal/api"
	"github.com/lodpnet/lodp/internal/config"
	"github.com/lodpnet/lodp/internal/identity"
	"github.com/lodpnet/lodp/internal/node"
	"github.com/lodpnet/lodp/internal/registry"
	"github.com/lodpnet/lodp/internal/transport"
)

var version = "dev"

func main() {
	var (
		configPath   = flag.String("config", "", "path to YAML config file")
		identityPath = flag.String("identity", "", "override identity key file path")
		listenPort   = flag.Int("port", 0, "override UDP listen port")
		logLevel     = flag.String("log-level", "", "log level: debug, info, warn, error")
		showVersion  = flag.Bool("version", false, "show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("lodp-responder %s\n", version)
		os.Exit(0)
	}

	cfg := config.DefaultResponderConfig()
	if *configPath != "" {
		loaded, err := config.LoadResponderConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *identityPath != "" {
		cfg.IdentityPath = *identityPath
	}
	if *listenPort != 0 {
		cfg.ListenPort = *listenPort
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	log := newLogger(cfg.LogLevel)

	id, err := identity.LoadOrGenerate(cfg.IdentityPath)
	if err != nil {
		log.Error("load identity", "err", err)
		os.Exit(1)
	}
	log.Info("identity loaded", "fingerprint", id.Fingerprint, "pubkey", id.PublicKeyHex())

	db, err := registry.InitDB(cfg.Database)
	if err != nil {
		log.Error("init database", "err", err)
		os.Exit(1)
	}

	n, err := node.New(node.Options{
		Identity:  id,
		Responder: true,
		Port:      cfg.ListenPort,
		DB:        db,
		Logger:    log,
	})
	if err != nil {
		log.Error("create node", "err", err)
		os.Exit(1)
	}

	var apiSrv *api.Server
	if cfg.API.Enabled {
		apiSrv, err = api.New(cfg.API, db, n, log)
		if err != nil {
			log.Error("create API server", "err", err)
			os.Exit(1)
		}
		n.SetPublish(apiSrv.Hub().Publish)
	}

	if err := n.Start(); err != nil {
		log.Error("start node", "err", err)
		os.Exit(1)
	}

	if apiSrv != nil {
		go func() {
			if err := apiSrv.Run(); err != nil {
				log.Error("API server", "err", err)
			}
		}()
	}

	if len(cfg.STUNServers) > 0 {
		if pub, err := transport.DiscoverPublicAddr(cfg.STUNServers, log); err == nil {
			log.Info("reachable at", "addr", pub)
		}
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	n.Stop()
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
