// SPDX-License-Identifier: LGPL-3.0-or-later

// Command agentrpc-server runs a demo Session Manager over WebSocket,
// serving a single "echo" service so rpcclient/cmd/agentrpc-client has
// something to call end to end. Grounded on the teacher's cmd/sage-crypto
// root-command shape (rootCmd with a single "serve" subcommand) and the
// gorilla/websocket upgrade pattern used by transport.NewWSServerConn.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/sage-x-project/agentrpc/config"
	"github.com/sage-x-project/agentrpc/dispatch"
	"github.com/sage-x-project/agentrpc/internal/logger"
	"github.com/sage-x-project/agentrpc/internal/metrics"
	"github.com/sage-x-project/agentrpc/server"
	"github.com/sage-x-project/agentrpc/transport"
)

// echoService is the demo service registered under the name "echo".
type echoService struct{}

func (echoService) Echo(message string) (string, error) {
	return message, nil
}

func (echoService) Ping() (string, error) {
	return "pong", nil
}

var (
	listenAddr   string
	metricsAddr  string
	encryptMsgs  bool
	configDir    string
	environment  string
)

var rootCmd = &cobra.Command{
	Use:   "agentrpc-server",
	Short: "agentrpc demo session server",
	Long:  "agentrpc-server runs a demo Session Manager accepting WebSocket connections and dispatching calls to an echo service.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start the server",
	RunE:  runServe,
}

func main() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "override the configured listen address")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "override the configured metrics address")
	serveCmd.Flags().BoolVar(&encryptMsgs, "encrypt", false, "override: require message encryption")
	serveCmd.Flags().StringVar(&configDir, "config-dir", "config", "directory to load <env>.yaml/default.yaml from")
	serveCmd.Flags().StringVar(&environment, "env", "", "environment name (defaults to AGENTRPC_ENV)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.LoaderOptions{ConfigDir: configDir, Environment: environment})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8765"
	}
	if encryptMsgs {
		cfg.Server.MessageEncryption = true
	}

	log := logger.GetDefaultLogger()

	registry := dispatch.NewMapRegistry()
	registry.Register("echo", echoService{})

	srv, err := server.New(server.Config{
		MessageEncryption:      cfg.Server.MessageEncryption,
		AuthenticationRequired: cfg.Server.AuthenticationRequired,
		InactivityTimeout:      cfg.Server.InactivityTimeout,
		ReapInterval:           cfg.Server.ReapInterval,
		HandshakeTimeout:       cfg.Server.HandshakeTimeout,
		AuthenticationTimeout:  cfg.Server.AuthenticationTimeout,
	}, registry)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}
	defer srv.Close()

	if cfg.Metrics.Enabled {
		go func() {
			addr := cfg.Metrics.Addr
			if addr == "" {
				addr = ":9090"
			}
			log.Info("starting metrics server", logger.String("addr", addr))
			if err := metrics.StartServer(addr); err != nil {
				log.Error("metrics server stopped", logger.Error(err))
			}
		}()
	}

	upgrader := websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      func(r *http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", logger.Error(err))
			return
		}
		t := transport.NewWSServerConn(conn)
		go func() {
			if err := srv.HandleConnection(context.Background(), t); err != nil {
				log.Warn("connection handler exited", logger.Error(err))
			}
		}()
	})

	log.Info("listening", logger.String("addr", cfg.Server.ListenAddr))
	return http.ListenAndServe(cfg.Server.ListenAddr, mux)
}
