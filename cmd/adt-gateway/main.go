// ABOUTME: Entry point for the adt-gateway MCP server
// ABOUTME: Dispatches the serve, init, health, sessions, stats, token, and probe commands

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jessevdk/go-flags"

	"github.com/2389/adt-gateway/internal/auth"
	"github.com/2389/adt-gateway/internal/config"
	"github.com/2389/adt-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
           _ _                     _
  __ _  __| | |_ ___ _ __ ___ ___| |_ ___ _ __ ___
 / _' |/ _' | __|___| '_ ' _ \/ __| __/ _ \ '__/ __|
| (_| | (_| | |_    | | | | | \__ \ ||  __/ | | (__
 \__,_|\__,_|\__|   |_| |_| |_|___/\__\___|_|  \___|
`

// adminTokenTTL is the lifetime of the token written by init.
const adminTokenTTL = 30 * 24 * time.Hour

func usage() {
	fmt.Println("Usage: adt-gateway <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                      Start the gateway server")
	fmt.Println("  init                       Write a config file with a fresh JWT secret")
	fmt.Println("  health [--ready]           Check gateway health")
	fmt.Println("  sessions                   List active sessions")
	fmt.Println("  stats [--since 24h]        Show call ledger statistics")
	fmt.Println("  token --subject NAME       Mint an access token")
	fmt.Println("  probe [--url URL]          Run a connectivity probe against the backend")
	fmt.Println()
	fmt.Println("Run 'adt-gateway <command> --help' for command flags.")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, args)
	case "init":
		err = runInit(args)
	case "health":
		err = runHealth(ctx, args)
	case "sessions":
		err = runSessions(ctx, args)
	case "stats":
		err = runStats(ctx, args)
	case "token":
		err = runToken(args)
	case "probe":
		err = runProbe(ctx, args)
	case "help", "-h", "--help":
		usage()
	case "version", "--version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, errHelpShown) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// errHelpShown stops a command after its flag help was printed.
var errHelpShown = errors.New("help shown")

// parseFlags parses a command's flags into opts. Positional arguments are rejected.
func parseFlags(command string, opts any, args []string) error {
	p := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	p.Name = "adt-gateway " + command
	rest, err := p.ParseArgs(args)
	if err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Println(ferr.Message)
			return errHelpShown
		}
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return nil
}

// ConfigOptions is embedded by every command that reads the config file.
type ConfigOptions struct {
	Config string `short:"c" long:"config" description:"Config file (default $ADT_GATEWAY_CONFIG or ~/.config/adt-gateway/gateway.yaml)"`
}

func (o ConfigOptions) path() string {
	if o.Config != "" {
		return o.Config
	}
	return config.Path()
}

// load reads the config, falling back to defaults when the file is missing.
func (o ConfigOptions) load() (*config.Config, string, bool, error) {
	path := o.path()
	cfg, found, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, path, false, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, found, nil
}

type serveOptions struct {
	ConfigOptions
	Addr string `short:"a" long:"addr" description:"Override server.http_addr"`
}

func runServe(ctx context.Context, args []string) error {
	var opts serveOptions
	if err := parseFlags("serve", &opts, args); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, found, err := opts.load()
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Server.HTTPAddr = opts.Addr
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s", configPath)
	if !found {
		gray.Print(" (not found, using defaults)")
	}
	fmt.Println()
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      http://%s/sse\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	if cfg.Database.Path != "" {
		fmt.Printf("Ledger:    %s\n", cfg.Database.Path)
	} else {
		fmt.Print("Ledger:    ")
		yellow.Println("disabled")
	}
	green.Print("    ▶ ")
	fmt.Print("Auth:      ")
	if cfg.Auth.JWTSecret != "" {
		fmt.Println("jwt")
	} else {
		yellow.Println("disabled")
	}
	fmt.Println()

	logger.Info("starting adt-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"version", version,
	)

	gw, err := gateway.New(cfg, logger, gateway.WithVersion(version))
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

type initOptions struct {
	ConfigOptions
	Force   bool   `short:"f" long:"force" description:"Overwrite an existing config file"`
	Subject string `short:"s" long:"subject" default:"admin" description:"Subject of the admin token"`
}

// runInit writes a config file with a random JWT secret and saves an admin
// token next to it for the CLI's remote commands.
func runInit(args []string) error {
	var opts initOptions
	if err := parseFlags("init", &opts, args); err != nil {
		return err
	}

	configPath := opts.path()
	if _, err := os.Stat(configPath); err == nil && !opts.Force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath)
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

	cfg := config.Default()
	content := renderConfig(cfg, jwtSecret)

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	green.Printf("  ✓ Created config: %s\n", configPath)

	verifier, err := auth.NewJWTVerifier([]byte(jwtSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	token, err := verifier.Generate(opts.Subject, []string{auth.RoleAdmin}, adminTokenTTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	tokenPath := tokenFilePath(configPath)
	if err := os.WriteFile(tokenPath, []byte(token), 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	green.Printf("  ✓ Saved admin token: %s (expires %s)\n", tokenPath, time.Now().Add(adminTokenTTL).Format("Jan 02, 2006"))

	fmt.Println()
	cyan.Println("  Backend credentials are read from the environment:")
	fmt.Println("    SAP_URL, SAP_USER, SAP_PASSWORD, SAP_CLIENT, SAP_LANGUAGE")
	fmt.Println()
	yellow.Println("  Ready to go:")
	fmt.Println("    adt-gateway serve                       # start the gateway")
	fmt.Println("    adt-gateway token --subject my-editor   # mint a client token")
	fmt.Println()
	return nil
}

// renderConfig produces the YAML written by init.
func renderConfig(cfg *config.Config, jwtSecret string) string {
	return fmt.Sprintf(`# adt-gateway configuration
# Generated by adt-gateway init

server:
  http_addr: %q
  shutdown_timeout: %q
  keepalive_interval: %q

logging:
  level: %q
  format: %q

metrics:
  enabled: %t
  path: %q

database:
  path: %q
  retention: "720h"

auth:
  jwt_secret: %q

probe:
  enabled: %t
  attempt_timeout: %q

backend:
  request_timeout: %q

sessions:
  queue_size: %d
  event_buffer: %d
`,
		cfg.Server.HTTPAddr, cfg.Server.ShutdownTimeout, cfg.Server.KeepAliveInterval,
		cfg.Logging.Level, cfg.Logging.Format,
		cfg.Metrics.Enabled, cfg.Metrics.Path,
		cfg.Database.Path,
		jwtSecret,
		cfg.Probe.Enabled, cfg.Probe.AttemptTimeout,
		cfg.Backend.RequestTimeout,
		cfg.Sessions.QueueSize, cfg.Sessions.EventBuffer,
	)
}

// tokenFilePath is where init saves the admin token.
func tokenFilePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "token")
}
