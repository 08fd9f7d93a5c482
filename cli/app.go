package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"whatschat/bus"
	"whatschat/chat"
	"whatschat/config"
	"whatschat/db"
	"whatschat/models"
	"whatschat/server"
)

// dialTimeout bounds how long a one-shot command waits for the relay.
const dialTimeout = 2 * time.Second

// app is an opened context: config, store, optional relay link and engine.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *db.SQLiteStore
	client *bus.Client
	engine *chat.Engine
	out    *OutputFormatter
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.DBPath != "" {
		cfg.DBPath = o.DBPath
	}
	if o.Relay != "" {
		cfg.Address = o.Relay
	}
	return cfg, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// logger returns a debug logger in verbose mode. Short-lived commands are
// otherwise silent; long-running ones log at the configured level.
func (o *RootOptions) logger(cfg *config.Config, longRunning bool) (*zap.Logger, error) {
	switch {
	case o.Verbose:
		return config.NewLogger("debug")
	case longRunning:
		return cfg.NewLogger()
	default:
		return zap.NewNop(), nil
	}
}

// open prepares a context without a relay link.
func (o *RootOptions) open(cmd *cobra.Command, longRunning bool) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := o.logger(cfg, longRunning)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create logger", err)
	}

	store, err := db.New(cfg.DBPath, cfg.StorageKey)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}

	a := &app{cfg: cfg, logger: logger, store: store, out: o.formatter(cmd)}
	a.engine = a.newEngine(nil)
	return a, nil
}

// openLinked prepares a context that tells the others about its writes.
func (o *RootOptions) openLinked(cmd *cobra.Command) (*app, error) {
	a, err := o.open(cmd, false)
	if err != nil {
		return nil, err
	}
	if err := a.connect(cmd, "", false); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// connect joins the relay as userID. Unless required, a relay that cannot
// be reached only costs realtime delivery.
func (a *app) connect(cmd *cobra.Command, userID string, required bool) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), dialTimeout)
	client, err := bus.Dial(ctx, a.cfg.Network, a.cfg.Address, userID, bus.WithLogger(a.logger))
	cancel()
	if err != nil {
		if required {
			a.out.Error("RELAY", err.Error())
			return WrapExitError(ExitCommandError, "relay "+a.cfg.Address+" unavailable", err)
		}
		a.logger.Debug("relay unavailable", zap.String("addr", a.cfg.Address), zap.Error(err))
		a.out.VerboseLog("relay %s unavailable: %v", a.cfg.Address, err)
		return nil
	}

	a.client = client
	a.engine = a.newEngine(client)
	return nil
}

func (a *app) newEngine(b bus.Bus) *chat.Engine {
	opts := []chat.Option{
		chat.WithLogger(a.logger),
		chat.WithBcryptCost(a.cfg.BcryptCost),
	}
	if a.cfg.ControlSocket != "" {
		opts = append(opts, chat.WithPresence(controlPresence(a.cfg.ControlSocket)))
	}
	return chat.New(a.store, b, opts...)
}

// controlPresence asks the relay's control socket who is connected.
func controlPresence(path string) chat.PresenceFunc {
	return func(ctx context.Context) ([]string, error) {
		reply, err := server.ControlCommand(path, "online")
		if err != nil {
			return nil, err
		}
		if reply == "" {
			return nil, nil
		}
		return strings.Split(reply, ";"), nil
	}
}

func (a *app) Close() {
	if a.client != nil {
		a.client.Close()
	}
	a.store.Close()
	a.logger.Sync()
}

// actingUser resolves the --user flag.
func (a *app) actingUser(ctx context.Context, identifier string) (*models.User, error) {
	if identifier == "" {
		return nil, NewExitError(ExitCommandError, "--user is required")
	}
	u, err := a.engine.ResolveUser(ctx, identifier)
	if err != nil {
		return nil, a.fail(err)
	}
	return u, nil
}

// fail reports err in the configured format and converts it into an
// ExitError. Chat errors are shown as is; a corrupt store is never repaired.
func (a *app) fail(err error) error {
	var chatErr *chat.Error
	switch {
	case errors.As(err, &chatErr):
		a.out.Error(string(chatErr.Code), chatErr.Message)
		return WrapExitError(ExitFailure, chatErr.Message, nil)
	case errors.Is(err, db.ErrCorrupt):
		msg := fmt.Sprintf("store %s is corrupt; refusing to continue (data left untouched)", a.cfg.DBPath)
		a.out.Error("CORRUPT", msg)
		return WrapExitError(ExitCommandError, msg, err)
	default:
		a.out.Error("INTERNAL", err.Error())
		return WrapExitError(ExitCommandError, "command failed", err)
	}
}
