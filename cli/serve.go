package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"whatschat/server"
)

type ServeOptions struct {
	*RootOptions
	WSAddress string
	Control   string
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the realtime relay",
		Long: `Run the relay that carries update and typing events between contexts.

Contexts connect over TCP (or a unix socket) with the line protocol, or over
websocket with JSON frames. The relay stores nothing.

Example:
  whatschat serve --relay 127.0.0.1:3215 --ws-address :8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.WSAddress, "ws-address", "", "websocket listen address (overrides config)")
	cmd.Flags().StringVar(&opts.Control, "control", "", "control socket path (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.WSAddress != "" {
		cfg.WSAddress = opts.WSAddress
	}
	if opts.Control != "" {
		cfg.ControlSocket = opts.Control
	}

	logger, err := opts.logger(cfg, true)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create logger", err)
	}
	defer logger.Sync()

	srv := server.New(&server.ServerConfig{
		Network:      cfg.Network,
		Address:      cfg.Address,
		WSAddress:    cfg.WSAddress,
		WSPath:       cfg.WSPath,
		ReadTimeout:  cfg.ReadTimeoutDuration(),
		WriteTimeout: cfg.WriteTimeoutDuration(),
	}, logger)

	if cfg.ControlSocket != "" {
		go func() {
			if err := srv.ServeControl(cfg.ControlSocket, nil); err != nil {
				logger.Warn("control socket failed", zap.Error(err))
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
			srv.Shutdown("maintenance", time.Time{})
		case <-cmd.Context().Done():
			srv.Shutdown("maintenance", time.Time{})
		}
	}()

	if err := srv.Start(); err != nil {
		return WrapExitError(ExitCommandError, "relay failed", err)
	}
	return nil
}

func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Show relay statistics",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			out := rootOpts.formatter(cmd)

			reply, err := server.ControlCommand(cfg.ControlSocket, "stats")
			if err != nil {
				out.Error("CONTROL", err.Error())
				return WrapExitError(ExitCommandError, "stats failed", err)
			}
			return out.Success(parseStats(reply), reply)
		},
	}
}

// parseStats splits "connections=2,users=a;b" into its fields.
func parseStats(reply string) map[string]string {
	stats := make(map[string]string)
	for _, part := range strings.Split(reply, ",") {
		if k, v, ok := strings.Cut(part, "="); ok {
			stats[k] = v
		}
	}
	return stats
}

type ShutdownOptions struct {
	*RootOptions
	Reason string
	At     string
}

func NewShutdownCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShutdownOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Stop the relay, telling every context why",
		Long: `Stop the relay. Every connected context receives a bye with the reason
and, if given, the time the relay is expected back.

Example:
  whatschat shutdown --reason restart --at 2025-01-01T10:00:00Z`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			out := opts.formatter(cmd)

			if opts.At != "" {
				if _, err := time.Parse(time.RFC3339, opts.At); err != nil {
					return WrapExitError(ExitCommandError, "invalid --at (want RFC 3339)", err)
				}
			}

			command := fmt.Sprintf("shutdown|%s|%s", opts.Reason, opts.At)
			reply, err := server.ControlCommand(cfg.ControlSocket, command)
			if err != nil {
				out.Error("CONTROL", err.Error())
				return WrapExitError(ExitCommandError, "shutdown failed", err)
			}
			return out.Success(map[string]string{"reply": reply}, reply)
		},
	}

	cmd.Flags().StringVar(&opts.Reason, "reason", "maintenance", "reason sent to contexts (maintenance|restart)")
	cmd.Flags().StringVar(&opts.At, "at", "", "expected completion time, RFC 3339")

	return cmd
}
