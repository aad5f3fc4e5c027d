package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lodpnet/lodp/internal/config"
	"github.com/lodpnet/lodp/internal/identity"
	"github.com/lodpnet/lodp/internal/lodp"
	"github.com/lodpnet/lodp/internal/node"
)

var version = "dev"

func main() {
	var (
		configPath   = flag.String("config", "", "path to YAML config file")
		identityPath = flag.String("identity", "", "override identity key file path")
		peerSpec     = flag.String("peer", "", "responder to dial: pubkey@host:port")
		message      = flag.String("send", "", "payload to send once established (repeats each interval)")
		interval     = flag.Int("interval", 10, "send interval in seconds")
		logLevel     = flag.String("log-level", "", "log level: debug, info, warn, error")
		showVersion  = flag.Bool("version", false, "show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("lodp-initiator %s\n", version)
		os.Exit(0)
	}

	cfg := config.DefaultInitiatorConfig()
	if *configPath != "" {
		loaded, err := config.LoadInitiatorConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *identityPath != "" {
		cfg.IdentityPath = *identityPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *peerSpec != "" {
		pubHex, endpoint, ok := strings.Cut(*peerSpec, "@")
		if !ok {
			fmt.Fprintln(os.Stderr, "invalid -peer, expected pubkey@host:port")
			os.Exit(1)
		}
		cfg.Peers = append(cfg.Peers, config.PeerRef{PublicKey: pubHex, Endpoint: endpoint})
	}
	if len(cfg.Peers) == 0 {
		fmt.Fprintln(os.Stderr, "no peers configured; use -peer or a config file")
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	id, err := identity.LoadOrGenerate(cfg.IdentityPath)
	if err != nil {
		log.Error("load identity", "err", err)
		os.Exit(1)
	}

	n, err := node.New(node.Options{
		Identity:        id,
		Port:            cfg.ListenPort,
		HeartbeatEvery:  time.Duration(cfg.HeartbeatSeconds) * time.Second,
		RetransmitEvery: time.Duration(cfg.RetransmitSeconds) * time.Second,
		OnData: func(s *lodp.Session, payload []byte) {
			log.Info("data received", "peer", s.PeerAddr(), "payload", string(payload))
		},
		Logger: log,
	})
	if err != nil {
		log.Error("create node", "err", err)
		os.Exit(1)
	}
	if err := n.Start(); err != nil {
		log.Error("start node", "err", err)
		os.Exit(1)
	}

	var keys []string
	for _, p := range cfg.Peers {
		pub, err := identity.PublicKeyFromHex(p.PublicKey)
		if err != nil {
			log.Error("decode responder public key", "peer", p.Endpoint, "err", err)
			continue
		}
		key, err := n.Dial(p.Endpoint, pub)
		if err != nil {
			log.Error("dial responder", "peer", p.Endpoint, "err", err)
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		log.Error("no responder reachable")
		n.Stop()
		os.Exit(1)
	}

	if *message != "" {
		go sendLoop(n, keys, *message, time.Duration(*interval)*time.Second, log)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	n.Stop()
}

func sendLoop(n *node.Node, keys []string, message string, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		for _, key := range keys {
			if !n.Established(key) {
				continue
			}
			if err := n.Send(key, []byte(message)); err != nil {
				log.Warn("send failed", "peer", key, "err", err)
			}
		}
	}
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
