// Command robotsim runs the robot simulator.
//
// It supports three modes:
//  1. "server" (default) – runs the HTTP server exposing REST API, WebSocket, and an /mcp HTTP endpoint
//  2. "stdio-mcp" – runs an MCP stdio server and spins up an internal HTTP API if none is available
//  3. "run" – runs a scenario file or a command string once and prints the trace
//
// Flags control host/port, the preset, session and record directories,
// debug logging, and optional ngrok tunneling for easy external access
// during development. Every flag can also be set from the environment or a
// .env file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inconshreveable/log15/v3"
	"github.com/joho/godotenv"
	"github.com/jpillora/backoff"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/robot-simulator/api"
	"github.com/wricardo/robot-simulator/sim/config"
	"github.com/wricardo/robot-simulator/sim/logging"
	"github.com/wricardo/robot-simulator/sim/records"
	"github.com/wricardo/robot-simulator/sim/service"
	"github.com/wricardo/robot-simulator/sim/session"
	"github.com/wricardo/robot-simulator/transport/mcp"
	"github.com/wricardo/robot-simulator/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Robot Simulator Server"
)

const (
	sessionMaxAge   = 24 * time.Hour
	cleanupInterval = time.Hour
	syncInterval    = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

var log = logging.New("main")

// options holds the global flags shared by every command.
type options struct {
	host          string
	port          int
	configDir     string
	defaultPreset string
	sessionsDir   string
	recordsDir    string
	debug         bool
}

func (o options) addr() string {
	return fmt.Sprintf("%s:%d", o.host, o.port)
}

func optionsFrom(cmd *cli.Command) options {
	return options{
		host:          cmd.String("host"),
		port:          cmd.Int("port"),
		configDir:     cmd.String("config-dir"),
		defaultPreset: cmd.String("default-preset"),
		sessionsDir:   cmd.String("sessions-dir"),
		recordsDir:    cmd.String("records-dir"),
		debug:         cmd.Bool("debug"),
	}
}

// main loads .env, builds the command tree and runs it.
func main() {
	// Load .env file if it exists (ignore error if not found)
	envErr := godotenv.Load()

	app := newApp()
	app.Before = func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
		logging.Setup(os.Stderr, cmd.Bool("debug"))
		if envErr == nil {
			log.Debug("loaded environment variables from .env file")
		} else if !os.IsNotExist(envErr) {
			log.Warn("error loading .env file", "err", envErr)
		}
		return ctx, nil
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Crit("command failed", "err", err)
		os.Exit(1)
	}
}

// newApp returns the command tree. Flags are inherited by the subcommands.
func newApp() *cli.Command {
	return &cli.Command{
		Name:    "robotsim",
		Usage:   AppName,
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: "localhost", Usage: "HTTP server host", Sources: cli.EnvVars("HOST")},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "HTTP server port", Sources: cli.EnvVars("PORT")},
			&cli.StringFlag{Name: "config-dir", Value: "configs", Usage: "Directory containing obstacle presets", Sources: cli.EnvVars("CONFIG_DIR")},
			&cli.StringFlag{Name: "default-preset", Usage: "Preset for sessions created without one (default classic)", Sources: cli.EnvVars("DEFAULT_PRESET")},
			&cli.StringFlag{Name: "sessions-dir", Value: "sessions", Usage: "Directory for persisted sessions", Sources: cli.EnvVars("SESSIONS_DIR")},
			&cli.StringFlag{Name: "records-dir", Value: "records", Usage: "Directory for saved simulations (empty keeps them in memory)", Sources: cli.EnvVars("RECORDS_DIR")},
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging", Sources: cli.EnvVars("DEBUG")},
			&cli.BoolFlag{Name: "ngrok", Usage: "Enable ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "Ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "Custom ngrok domain (optional)", Sources: cli.EnvVars("NGROK_DOMAIN")},
		},
		Action: serverAction,
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "Run HTTP server with API, WebSocket, and MCP endpoint (default)",
				Action:  serverAction,
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp", "mcp-stdio"},
				Usage:   "Run MCP stdio server, with an internal HTTP server when none is running",
				Action:  stdioMCPAction,
			},
			runCommand(),
			{
				Name:  "version",
				Usage: "Show version information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Fprintf(cmd.Root().Writer, "%s v%s\n", AppName, Version)
					return nil
				},
			},
		},
	}
}

// services bundles what the server modes need.
type services struct {
	simulator   service.SimulatorService
	sessions    *session.Manager
	persistence session.SessionPersistence
}

// initializeServices wires preset, session and record stores into the
// simulator service.
func initializeServices(opts options) (*services, error) {
	// Create preset manager first (needed for persistence)
	presetManager, err := config.NewManager(opts.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create preset manager: %w", err)
	}
	if opts.defaultPreset != "" {
		if err := presetManager.SetDefault(opts.defaultPreset); err != nil {
			return nil, fmt.Errorf("failed to set default preset: %w", err)
		}
	}

	persistence, err := session.NewFilePersistence(opts.sessionsDir, presetManager)
	if err != nil {
		return nil, fmt.Errorf("failed to create session persistence: %w", err)
	}

	sessionManager := session.NewManagerWithPersistence(persistence)
	if err := sessionManager.LoadPersistedSessions(); err != nil {
		log.Warn("failed to load persisted sessions", "err", err)
	}

	var store records.Store = records.NewMemoryStore()
	if opts.recordsDir != "" {
		fileStore, err := records.NewFileStore(opts.recordsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create record store: %w", err)
		}
		store = fileStore
	}

	return &services{
		simulator:   service.NewSimulatorService(sessionManager, presetManager, store, nil),
		sessions:    sessionManager,
		persistence: persistence,
	}, nil
}

// newHandler combines the REST API with the /mcp endpoint.
func newHandler(apiServer http.Handler, mcpClient *mcp.Client) http.Handler {
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)

	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})

	return mainRouter
}

// serverAction runs the HTTP server with REST API, WebSocket hub and the
// /mcp endpoint until SIGINT or SIGTERM. With --ngrok it also serves
// through a public tunnel.
func serverAction(ctx context.Context, cmd *cli.Command) error {
	opts := optionsFrom(cmd)
	log.Info("starting", "app", AppName, "version", Version, "mode", "server")

	svcs, err := initializeServices(opts)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := websocket.NewHub()
	addr := opts.addr()
	handler := newHandler(api.NewServer(svcs.simulator, hub), mcp.NewClient("http://"+addr))

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(ctx)
	})

	g.Go(func() error {
		log.Info("HTTP server listening", "addr", addr,
			"api", "http://"+addr+"/api",
			"ws", "ws://"+addr+"/ws?session=<session_id>",
			"mcp", "http://"+addr+"/mcp")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		sessionCleanupRoutine(ctx, svcs.sessions)
		return nil
	})

	g.Go(func() error {
		filesystemSyncRoutine(ctx, svcs.sessions, svcs.persistence)
		return nil
	})

	if cmd.Bool("ngrok") {
		g.Go(func() error {
			return serveNgrok(ctx, cmd, handler)
		})
	}

	err = g.Wait()

	if saveErr := svcs.sessions.SaveAllSessions(); saveErr != nil {
		log.Error("failed to save sessions on shutdown", "err", saveErr)
	}
	log.Info("server stopped")
	return err
}

// serveNgrok serves handler through an ngrok tunnel until ctx is done. A
// missing auth token only disables the tunnel.
func serveNgrok(ctx context.Context, cmd *cli.Command, handler http.Handler) error {
	ngrokLogger := logging.New("ngrok")

	authToken := cmd.String("ngrok-auth")
	if authToken == "" {
		ngrokLogger.Warn("ngrok enabled but no auth token provided (use --ngrok-auth or NGROK_AUTHTOKEN)")
		return nil
	}

	// Configure ngrok endpoint
	var tunnel ngrokConfig.Tunnel
	if domain := cmd.String("ngrok-domain"); domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
		ngrokLogger.Info("using custom ngrok domain", "domain", domain)
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx,
		tunnel,
		ngrok.WithAuthtoken(authToken),
		ngrok.WithLogger(logging.Ngrok(ngrokLogger)),
	)
	if err != nil {
		// The local server keeps running without the tunnel
		ngrokLogger.Error("failed to start ngrok tunnel", "err", err)
		return nil
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			ngrokLogger.Warn("failed to close ngrok tunnel", "err", err)
		}
	}()

	ngrokURL := tun.URL()
	ngrokLogger.Info("ngrok tunnel established", "url", ngrokURL,
		"api", ngrokURL+"/api", "mcp", ngrokURL+"/mcp")

	if err := http.Serve(tun, handler); err != nil && ctx.Err() == nil {
		ngrokLogger.Error("ngrok server error", "err", err)
	}
	ngrokLogger.Info("ngrok tunnel closed")
	return nil
}

// sessionCleanupRoutine periodically removes sessions that have not been
// accessed within sessionMaxAge from memory.
func sessionCleanupRoutine(ctx context.Context, manager *session.Manager) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			manager.CleanupExpiredSessions(sessionMaxAge)
		}
	}
}

// filesystemSyncRoutine periodically removes sessions from memory when
// their files were deleted.
func filesystemSyncRoutine(ctx context.Context, manager *session.Manager, persistence session.SessionPersistence) {
	if persistence == nil {
		return
	}

	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruneOrphanedSessions(manager, persistence, log)
		}
	}
}

// pruneOrphanedSessions drops in-memory sessions whose file is gone and
// returns how many were dropped.
func pruneOrphanedSessions(manager *session.Manager, persistence session.SessionPersistence, logger log15.Logger) int {
	pruned := 0
	for _, sess := range manager.List() {
		if persistence.Exists(sess.ID) {
			continue
		}
		if err := manager.DeleteFromMemory(sess.ID); err == nil {
			pruned++
			logger.Debug("pruned session from memory (file deleted)", "session", sess.ID)
		}
	}

	if pruned > 0 {
		logger.Info("filesystem sync pruned orphaned sessions", "count", pruned)
	}
	return pruned
}

// stdioMCPAction runs an MCP stdio server. It reuses an API server already
// listening on --host/--port; otherwise it starts an internal one on a
// random loopback port.
func stdioMCPAction(ctx context.Context, cmd *cli.Command) error {
	opts := optionsFrom(cmd)
	log.Info("starting", "app", AppName, "version", Version, "mode", "stdio-mcp")

	externalURL := "http://" + opts.addr()
	baseURL := externalURL

	if !apiReachable(externalURL, 2*time.Second) {
		log.Info("no external API server found, starting internal HTTP server", "checked", externalURL)

		svcs, err := initializeServices(opts)
		if err != nil {
			return fmt.Errorf("failed to initialize services: %w", err)
		}

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}

		internalURL := "http://" + listener.Addr().String()

		hubCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		hub := websocket.NewHub()
		go hub.Run(hubCtx)

		httpServer := &http.Server{Handler: api.NewServer(svcs.simulator, hub)}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("internal HTTP server error", "err", err)
			}
		}()
		defer func() {
			httpServer.Close()
			if err := svcs.sessions.SaveAllSessions(); err != nil {
				log.Error("failed to save sessions on shutdown", "err", err)
			}
		}()

		if err := waitForAPI(hubCtx, internalURL, 10); err != nil {
			return err
		}
		baseURL = internalURL
	} else {
		log.Info("external API server found, using it for MCP", "url", externalURL)
	}

	mcpClient := mcp.NewClient(baseURL)
	log.Info("MCP stdio server ready", "api", baseURL)

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

// apiReachable reports whether the health endpoint at baseURL answers.
func apiReachable(baseURL string, timeout time.Duration) bool {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(baseURL + "/api/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

// waitForAPI polls the health endpoint with exponential backoff.
func waitForAPI(ctx context.Context, baseURL string, attempts int) error {
	b := &backoff.Backoff{
		Min:    20 * time.Millisecond,
		Max:    time.Second,
		Factor: 2,
	}

	for b.Attempt() < float64(attempts) {
		if apiReachable(baseURL, time.Second) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Duration()):
		}
	}

	return fmt.Errorf("API server at %s not ready after %d attempts", baseURL, attempts)
}
