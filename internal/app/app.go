package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/streamchat/internal/config"
	"github.com/vovakirdan/streamchat/internal/core"
	applog "github.com/vovakirdan/streamchat/internal/log"
	"github.com/vovakirdan/streamchat/internal/store/fsstore"
	"github.com/vovakirdan/streamchat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/streamchat/internal/transport/http"
	"github.com/vovakirdan/streamchat/internal/transport/tcp"
)

// App wires together core, storage and transport layers.
type App struct {
	hub             *core.Hub
	tcp             *tcp.Server
	http            *stdhttp.Server
	httpListener    net.Listener
	store           *sqlite.SQLiteStore
	fileSink        *applog.FileSink
	shutdownTimeout time.Duration
	log             *zerolog.Logger
}

// New constructs the application and binds its listeners, so addresses are
// known before Run.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{shutdownTimeout: cfg.ShutdownTimeout, log: logger}
	if err := a.init(cfg); err != nil {
		a.cleanup()
		return nil, err
	}
	return a, nil
}

func (a *App) init(cfg config.Config) error {
	var sinks []core.Sink
	if cfg.LogFile != "" {
		a.fileSink = applog.NewFileSink(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		sinks = append(sinks, a.fileSink)
		a.log.Info().Str("path", cfg.LogFile).Msg("journal file sink enabled")
	}

	var index core.ArtifactIndex
	if cfg.DatabasePath != "" {
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("init store: %w", err)
		}
		a.store = st
		index = st
		sinks = append(sinks, core.SinkFunc(func(ctx context.Context, e core.Entry) error {
			return st.AppendEntry(ctx, e.At, e.Text)
		}))
		a.log.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")
	}

	disk, err := fsstore.New(cfg.StorageDir)
	if err != nil {
		return fmt.Errorf("init storage dir: %w", err)
	}

	journal := core.NewJournal(a.log, sinks...)
	a.hub = core.NewHub(core.HubConfig{
		QueueSize:         cfg.OutboundQueue,
		MessagesPerMinute: cfg.MessagesPerMin,
		MaxUploadBytes:    cfg.MaxUploadBytes,
	}, journal, disk, index, a.log)

	if cfg.Addr != "" {
		a.tcp = tcp.NewServer(cfg.Addr, a.hub, a.log)
		if err := a.tcp.Listen(); err != nil {
			return err
		}
	}

	if cfg.HTTPAddr != "" {
		deps := transporthttp.Deps{Hub: a.hub, Files: disk}
		if a.store != nil {
			deps.Journal = a.store
			deps.Artifacts = a.store
		}
		a.http = transporthttp.NewServer(deps, cfg, a.log)

		ln, err := net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
		}
		a.httpListener = ln
	}
	return nil
}

// TCPAddr returns the bound chat address, or nil when disabled.
func (a *App) TCPAddr() net.Addr {
	if a.tcp == nil {
		return nil
	}
	return a.tcp.Addr()
}

// HTTPAddr returns the bound admin address, or nil when disabled.
func (a *App) HTTPAddr() net.Addr {
	if a.httpListener == nil {
		return nil
	}
	return a.httpListener.Addr()
}

// Run serves until ctx is cancelled or a listener fails, then shuts everything
// down and releases resources.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.tcp != nil {
		g.Go(func() error {
			return a.tcp.Serve(gctx)
		})
	}
	if a.http != nil {
		g.Go(func() error {
			a.log.Info().Str("addr", a.httpListener.Addr().String()).Msg("http server listening")
			if err := a.http.Serve(a.httpListener); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	err := g.Wait()
	a.cleanup()
	return err
}

// shutdown stops accepting, closes every session and waits for the
// connection handlers within the shutdown timeout.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var errs []error
	if a.tcp != nil {
		errs = append(errs, a.tcp.Close())
	}
	if a.http != nil {
		a.log.Info().Msg("shutting down http server")
		errs = append(errs, a.http.Shutdown(ctx))
	}

	a.log.Info().Msg("closing chat sessions")
	errs = append(errs, a.hub.Shutdown(ctx))

	if a.tcp != nil {
		done := make(chan struct{})
		go func() {
			a.tcp.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("waiting for connections: %w", ctx.Err()))
		}
	}
	return errors.Join(errs...)
}

// cleanup closes the database and the journal file.
func (a *App) cleanup() {
	if a.tcp != nil {
		_ = a.tcp.Close()
	}
	if a.httpListener != nil {
		_ = a.httpListener.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
	if a.fileSink != nil {
		if err := a.fileSink.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close journal file")
		}
	}
}
