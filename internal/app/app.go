package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/airwatch-iot/gasmon/internal/api"
	"github.com/airwatch-iot/gasmon/internal/auth"
	"github.com/airwatch-iot/gasmon/internal/cache"
	"github.com/airwatch-iot/gasmon/internal/config"
	"github.com/airwatch-iot/gasmon/internal/live"
	"github.com/airwatch-iot/gasmon/internal/logging"
	"github.com/airwatch-iot/gasmon/internal/poll"
	"github.com/airwatch-iot/gasmon/internal/prefs"
	"github.com/airwatch-iot/gasmon/internal/session"
	"github.com/airwatch-iot/gasmon/internal/state"
	"github.com/airwatch-iot/gasmon/internal/ui"
)

// ErrNotLoggedIn is returned when no token is stored and no credentials were
// given.
var ErrNotLoggedIn = errors.New("not logged in: run once with -email and -password")

// Options configure the gasmon application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/gasmon/prefs.toml
	// Email and Password log in before the UI starts. Email falls back to
	// the last account saved in prefs.
	Email    string
	Password string
}

// Run boots the gasmon TUI until the user quits or the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("gasmon starting",
		zap.String("api_url", cfg.APIURL),
		zap.String("ws_url", cfg.WSURL),
	)

	userPrefs := prefs.Load(opts.PrefsPath)

	tokens := auth.NewFileStore(cfg.TokenFile)
	client, err := api.NewClient(api.Options{
		BaseURL: cfg.APIURL,
		Timeout: cfg.RequestTimeout,
		Tokens:  tokens,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("init api client: %w", err)
	}

	if err := ensureLoggedIn(ctx, client, tokens, opts, userPrefs.Email, logger); err != nil {
		return err
	}

	// The cache only speeds up the detail screen; run without it if the
	// directory is locked by another instance.
	var snapshots session.SnapshotCache
	if devCache, err := cache.Open(cfg.CacheDir); err != nil {
		logger.Warn("device cache unavailable", zap.Error(err))
	} else {
		defer func() { _ = devCache.Close() }()
		snapshots = devCache
	}

	store := &state.Store{}

	ws := live.NewWSChannel(live.WSOptions{
		URL:    cfg.WSURL,
		Header: bearerHeader(tokens),
		Logger: logger,
	})
	hub := live.NewHub(ws, logger)
	defer func() { _ = hub.Close() }()
	startLive(ctx, ws, store, logger)

	guard := poll.NewGuard()
	devices := session.NewDeviceList(client, store, guard, cfg.DevicesPoll, logger)
	notifications := session.NewNotifications(client, store, guard, cfg.NotificationsPoll, logger)
	openDetail := func(id int64) ui.DetailSession {
		return session.NewDetail(id, session.DetailOptions{
			Backend:  client,
			Sink:     store,
			Hub:      hub,
			Guard:    guard,
			Cache:    snapshots,
			Interval: cfg.DetailPoll,
			Logger:   logger,
		})
	}

	err = ui.Run(ui.Options{
		Context:       ctx,
		Store:         store,
		Devices:       devices,
		Notifications: notifications,
		OpenDetail:    openDetail,
		LogFile:       cfg.LogFile,
		ThemeName:     userPrefs.Theme,
		LogFilter:     userPrefs.LogFilter,
		PrefsPath:     opts.PrefsPath,
		Logger:        logger,
	})
	logger.Info("gasmon stopped", zap.Error(err))
	return err
}

// Logout forgets the stored token pair. The next start needs -password.
func Logout(opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	tokens := auth.NewFileStore(cfg.TokenFile)
	if err := tokens.Clear(); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	logger.Info("logged out", zap.String("token_file", tokens.Path()))
	return nil
}

// ensureLoggedIn logs in when a password is given, otherwise requires a
// stored token. A successful login remembers the email.
func ensureLoggedIn(ctx context.Context, client *api.Client, tokens *auth.FileStore, opts Options, savedEmail string, logger *zap.Logger) error {
	if opts.Password == "" {
		if !tokens.LoggedIn() {
			return ErrNotLoggedIn
		}
		return nil
	}

	email := opts.Email
	if email == "" {
		email = savedEmail
	}
	resp, err := client.Login(ctx, email, opts.Password)
	if err != nil {
		if api.IsValidation(err) || api.IsUnauthorized(err) {
			return fmt.Errorf("login rejected: %w", err)
		}
		return fmt.Errorf("login: %w", err)
	}
	if resp.User != nil {
		logger.Info("logged in", zap.Int64("user_id", resp.User.ID))
	}
	if err := prefs.Update(opts.PrefsPath, func(p *prefs.Prefs) { p.Email = email }); err != nil {
		logger.Warn("save prefs failed", zap.Error(err))
	}
	return nil
}
