package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/techidiots/webaibridge/internal/bridge"
	"github.com/techidiots/webaibridge/internal/config"
	"github.com/techidiots/webaibridge/internal/errors"
	"github.com/techidiots/webaibridge/internal/policy"
	"github.com/techidiots/webaibridge/internal/protocol"
	"github.com/techidiots/webaibridge/internal/store"
	"github.com/techidiots/webaibridge/internal/token"
	"github.com/techidiots/webaibridge/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(st *store.Store, cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "webaibridge",
		Usage:   "Editor/browser AI context bridge",
		Version: Version,
		Commands: []*cli.Command{
			hostCmd(st, cfg),
			discoverCmd(st, cfg),
			estimateCmd(cfg),
			chipsCmd(st, cfg),
			fetchCmd(st, cfg),
			filesCmd(st, cfg),
			sendCmd(st, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// hostCmd creates the host command.
func hostCmd(st *store.Store, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "host",
		Usage: "Run a bridge host for a workspace until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "workspace", Aliases: []string{"w"}, Value: ".", Usage: "Workspace root directory"},
			&cli.BoolFlag{Name: "web", Usage: "Serve the status UI"},
			&cli.StringFlag{Name: "web-bind", Value: "127.0.0.1", Usage: "Status UI bind address"},
			&cli.IntFlag{Name: "web-port", Value: 8930, Usage: "Status UI port"},
		},
		Action: func(c *cli.Context) error {
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

			srv := newHostServer(st, cfg, c.String("workspace"), logger)
			port, err := srv.Listen()
			if err != nil {
				return outputError(err)
			}
			fmt.Fprintf(os.Stderr, "bridge host listening on ws://127.0.0.1:%d\n", port)

			var webSrv *http.Server
			if c.Bool("web") {
				webSrv = web.NewServer(srv, newEstimator(cfg), Version, c.String("web-bind"), c.Int("web-port"))
				go func() {
					if err := webSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Error("status UI failed", "error", err)
					}
				}()
				fmt.Fprintf(os.Stderr, "status UI at http://%s\n", webSrv.Addr)
				if bind := c.String("web-bind"); bind == "0.0.0.0" || bind == "::" {
					logger.Warn("status UI is binding to all interfaces and may be accessible from the network")
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = srv.Serve(ctx)

			if webSrv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = webSrv.Shutdown(shutdownCtx)
			}
			if err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// discoverCmd creates the discover command.
func discoverCmd(st *store.Store, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "discover",
		Usage: "Sweep the port range for live bridge hosts",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "timeout", Aliases: []string{"t"}, Usage: "Per-port probe timeout in ms (default: configured)"},
		},
		Action: func(c *cli.Context) error {
			timeout := probeTimeout(cfg)
			if ms := c.Int("timeout"); ms > 0 {
				timeout = time.Duration(ms) * time.Millisecond
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
			defer cancel()

			dir := bridge.NewDirectory(quietLogger())
			instances := dir.Discover(ctx, cfg.PortRangeStart, cfg.PortRangeEnd, timeout)

			remembered, _ := st.SelectedPort()
			out := map[string]any{"instances": instances}
			if selected, ok := bridge.Select(instances, remembered); ok {
				out["selected"] = selected.Port
			}
			return outputJSON(out)
		},
	}
}

// estimateCmd creates the estimate command.
func estimateCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "estimate",
		Usage: "Estimate tokens for text from stdin or a file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "Target model (default: configured)"},
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Read text from a file instead of stdin"},
		},
		Action: func(c *cli.Context) error {
			var text string
			if path := c.String("file"); path != "" {
				data, err := os.ReadFile(path)
				if err != nil {
					return outputError(err)
				}
				text = string(data)
			} else {
				if !stdinHasData() {
					return outputError(errors.NewInvalidRequest("text must be piped via stdin or given with --file"))
				}
				var err error
				text, err = readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
			}

			model := c.String("model")
			if model == "" {
				model = cfg.Model
			}

			est := newEstimator(cfg)
			tokens := est.Estimate(text)
			return outputJSON(map[string]any{
				"tokens":    tokens,
				"formatted": token.FormatCount(tokens),
				"model":     model,
				"limit":     est.GetLimit(model),
				"exceeds":   est.ExceedsLimit(tokens, model),
				"warning":   est.IsWarningLevel(tokens, model),
			})
		},
	}
}

// chipsCmd creates the chips command group.
func chipsCmd(st *store.Store, cfg *config.Config) *cli.Command {
	portFlag := &cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Host port (default: remembered or discovered)"}

	return &cli.Command{
		Name:  "chips",
		Usage: "Inspect or mutate the staged chip set on a running host",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List staged chips",
				Flags: []cli.Flag{portFlag},
				Action: func(c *cli.Context) error {
					lists := make(chan []protocol.Chip, 4)
					conn, err := connectToHost(st, cfg, c.Int("port"), lists)
					if err != nil {
						return outputError(err)
					}
					defer conn.Close()

					chips, err := awaitChips(lists)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"chips": chips})
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove one chip by id",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{portFlag},
				Action: func(c *cli.Context) error {
					if c.NArg() < 1 {
						return outputError(errors.NewInvalidRequest("chip id is required"))
					}
					id := c.Args().First()

					lists := make(chan []protocol.Chip, 4)
					conn, err := connectToHost(st, cfg, c.Int("port"), lists)
					if err != nil {
						return outputError(err)
					}
					defer conn.Close()

					if _, err := awaitChips(lists); err != nil {
						return outputError(err)
					}
					if err := conn.Push(&protocol.Message{Type: protocol.TypeRemoveChip, ChipID: id}); err != nil {
						return outputError(err)
					}

					// The host rebroadcasts the chip set only when the id
					// matched something.
					chips, err := awaitChips(lists)
					if err != nil {
						return outputError(errors.NewNotFound(id))
					}
					return outputJSON(map[string]any{"removed": id, "remaining": len(chips)})
				},
			},
			{
				Name:  "clear",
				Usage: "Remove every staged chip",
				Flags: []cli.Flag{portFlag},
				Action: func(c *cli.Context) error {
					lists := make(chan []protocol.Chip, 4)
					conn, err := connectToHost(st, cfg, c.Int("port"), lists)
					if err != nil {
						return outputError(err)
					}
					defer conn.Close()

					if _, err := awaitChips(lists); err != nil {
						return outputError(err)
					}
					if err := conn.Push(&protocol.Message{Type: protocol.TypeClearChips}); err != nil {
						return outputError(err)
					}
					if _, err := awaitChips(lists); err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"cleared": true})
				},
			},
		},
	}
}

// fetchCmd creates the fetch command. Fetched content passes through the
// configured limit policy before it is printed, the same path staged
// chips take.
func fetchCmd(st *store.Store, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Fetch context from a running host, applying the limit policy",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Value: "file", Usage: "Context type (file, file-tree, ...)"},
			&cli.StringFlag{Name: "path", Usage: "Workspace-relative file path (for type=file)"},
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "Target model for the limit (default: configured)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Host port (default: remembered or discovered)"},
			&cli.IntFlag{Name: "timeout", Value: 10, Usage: "Request timeout in seconds"},
		},
		Action: func(c *cli.Context) error {
			conn, err := connectToHost(st, cfg, c.Int("port"), nil)
			if err != nil {
				return outputError(err)
			}
			defer conn.Close()

			resp, err := conn.Send(&protocol.Message{
				Type:        protocol.TypeGetContext,
				ContextType: c.String("type"),
				FilePath:    c.String("path"),
			}, time.Duration(c.Int("timeout"))*time.Second)
			if err != nil {
				return outputError(err)
			}
			if resp.Error != "" {
				return outputError(errors.NewInvalidRequest(resp.Error))
			}

			model := c.String("model")
			if model == "" {
				model = cfg.Model
			}
			decision := policy.Apply(resp.Text, cfg.MessageLimit, policy.Mode(cfg.LimitMode), model, newEstimator(cfg))

			out := map[string]any{
				"action": string(decision.Action),
				"tokens": decision.Tokens,
				"limit":  decision.Limit,
			}
			switch decision.Action {
			case policy.ActionChunk:
				chunks := make([]map[string]any, len(decision.Chunks))
				for i, part := range decision.Chunks {
					chunks[i] = map[string]any{
						"part":   part.PartNumber,
						"of":     part.TotalParts,
						"tokens": part.Tokens,
						"text":   part.Text,
					}
				}
				out["chunks"] = chunks
			default:
				out["text"] = decision.Text
				if decision.WasTruncated {
					out["truncated"] = true
					out["originalTokens"] = decision.OriginalTokens
				}
			}
			return outputJSON(out)
		},
	}
}

// filesCmd creates the files command.
func filesCmd(st *store.Store, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "files",
		Usage: "List workspace files from a running host",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Host port (default: remembered or discovered)"},
		},
		Action: func(c *cli.Context) error {
			conn, err := connectToHost(st, cfg, c.Int("port"), nil)
			if err != nil {
				return outputError(err)
			}
			defer conn.Close()

			resp, err := conn.Send(&protocol.Message{Type: protocol.TypeGetFileList}, 10*time.Second)
			if err != nil {
				return outputError(err)
			}
			if resp.Error != "" {
				return outputError(errors.NewInvalidRequest(resp.Error))
			}
			return outputJSON(map[string]any{"files": resp.Files})
		},
	}
}

// sendCmd creates the send command.
func sendCmd(st *store.Store, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Deliver text from stdin to a host as a captured AI response",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "site", Value: "cli", Usage: "Response origin label"},
			&cli.BoolFlag{Name: "code", Usage: "Mark the response as a code block"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Host port (default: remembered or discovered)"},
		},
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("response text must be piped via stdin"))
			}
			text, err := readStdin()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if text == "" {
				return outputError(errors.NewInvalidRequest("response text is empty"))
			}

			conn, err := connectToHost(st, cfg, c.Int("port"), nil)
			if err != nil {
				return outputError(err)
			}
			defer conn.Close()

			if err := conn.Push(&protocol.Message{
				Type:   protocol.TypeAIResponse,
				Text:   text,
				Site:   c.String("site"),
				IsCode: c.Bool("code"),
			}); err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"delivered": true, "chars": len(text)})
		},
	}
}

// Helper functions

// connectToHost resolves a host port and opens a connection to it. A zero
// port falls back to discovery, preferring the remembered port.
func connectToHost(st *store.Store, cfg *config.Config, port int, lists chan<- []protocol.Chip) (*bridge.Conn, error) {
	logger := quietLogger()

	if port == 0 {
		remembered, _ := st.SelectedPort()

		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout(cfg)+5*time.Second)
		defer cancel()

		dir := bridge.NewDirectory(logger)
		instances := dir.Discover(ctx, cfg.PortRangeStart, cfg.PortRangeEnd, probeTimeout(cfg))
		selected, ok := bridge.Select(instances, remembered)
		if !ok {
			return nil, errors.NewTransportUnavailable()
		}
		port = selected.Port
	}

	opts := bridge.Options{Store: st, Logger: logger}
	if lists != nil {
		opts.OnChips = func(_ bool, chips []protocol.Chip) {
			select {
			case lists <- chips:
			default:
			}
		}
	}

	conn := bridge.NewConn(opts)
	if err := conn.Connect(port); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// awaitChips waits for the next chip set broadcast.
func awaitChips(lists <-chan []protocol.Chip) ([]protocol.Chip, error) {
	select {
	case chips := <-lists:
		return chips, nil
	case <-time.After(5 * time.Second):
		return nil, errors.NewRequestTimeout("chips", 5000)
	}
}

// quietLogger keeps one-shot commands from spamming stderr.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// probeTimeout returns the configured per-port discovery timeout.
func probeTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.ProbeTimeoutMs) * time.Millisecond
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var bErr *errors.BridgeError
	if stderrors.As(err, &bErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", bErr.Code, bErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
