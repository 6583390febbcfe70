package main

import (
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/linux"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"github.com/wailsapp/wails/v2/pkg/options/windows"
	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"github.com/yzhelezko/confedit/internal/catalog"
	"github.com/yzhelezko/confedit/internal/history"
	"github.com/yzhelezko/confedit/internal/localfs"
	"github.com/yzhelezko/confedit/internal/logging"
	"github.com/yzhelezko/confedit/internal/orchestrator"
	"github.com/yzhelezko/confedit/internal/privexec"
	"github.com/yzhelezko/confedit/internal/remote"
	"github.com/yzhelezko/confedit/internal/settings"
	"github.com/yzhelezko/confedit/internal/status"
	"github.com/yzhelezko/confedit/internal/watch"
)

// linuxGpuPolicy returns the appropriate GPU policy for the current display server.
// On XWayland (Wayland session forced to X11), GPU compositing causes GBM buffer failures,
// so software rendering is used. On native X11, GPU acceleration is allowed.
func linuxGpuPolicy() linux.WebviewGpuPolicy {
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		return linux.WebviewGpuPolicyNever
	}
	return linux.WebviewGpuPolicyOnDemand
}

// startup is called when the app starts. The context is saved
// so we can call the runtime methods
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	if err := a.boot(); err != nil {
		a.logger.Error("startup incomplete", zap.Error(err))
	}

	// Set initial window size and state using loaded/default config
	cfg := a.config.config
	wailsRuntime.WindowSetSize(a.ctx, cfg.WindowWidth, cfg.WindowHeight)
	if cfg.WindowMaximized {
		wailsRuntime.WindowMaximise(a.ctx)
	}

	// Listen for frontend resize events
	wailsRuntime.EventsOn(a.ctx, "frontend:window:resized", a.handleFrontendResizeEvent)
}

// boot loads the config, rebuilds the services from it and opens the
// stores. It does not touch the window, so tests can call it directly.
func (a *App) boot() error {
	a.logger = logging.MustNew(DefaultLogLevel, "")
	if err := a.loadConfig(); err != nil {
		a.logger.Warn("error loading config", zap.Error(err))
	}

	cfg := a.config.config
	a.logger = logging.MustNew(cfg.LogLevel, a.expandPath(cfg.LogFile))
	a.initServices()

	if err := a.openStores(); err != nil {
		return err
	}
	if err := a.loadCatalog(); err != nil {
		a.logger.Warn("failed to load managed files", zap.Error(err))
	}
	if cfg.WatchLocalFiles {
		if err := a.startWatcher(); err != nil {
			a.logger.Warn("local file watching disabled", zap.Error(err))
		}
	}

	a.logger.Info("confedit started",
		zap.String("version", Version),
		zap.Int("managedFiles", len(a.managedFiles().List())))
	return nil
}

func (a *App) expandPath(p string) string {
	if p == "" {
		return p
	}
	if a.local == nil {
		return localfs.NewGateway(nil, nil).ExpandHome(p)
	}
	return a.local.ExpandHome(p)
}

// transportConfig is the SSH configuration with paths expanded.
func (a *App) transportConfig() remote.SSHConfig {
	cfg := a.config.config.sshConfig()
	cfg.KnownHostsPath = a.expandPath(cfg.KnownHostsPath)
	return cfg
}

// initServices builds the engine stack from the current configuration.
func (a *App) initServices() {
	cfg := a.config.config

	connector := remote.NewSSHConnector(a.transportConfig(), a.logger)
	a.engine = remote.NewEngine(connector, a.logger, remote.WithChunkSize(cfg.SFTP.ReadChunkSize))
	a.priv = privexec.New(a.logger,
		privexec.WithProgram(cfg.Privilege.Program),
		privexec.WithConnector(connector))
	a.local = localfs.NewGateway(a.priv, a.logger)

	a.editor = orchestrator.New(
		&orchestrator.Services{Local: a.local, Remote: a.engine, Priv: a.priv},
		orchestrator.WithHistory(historyRecorder{a}),
		orchestrator.WithWriteHook(a.ignoreOwnWrite),
		orchestrator.WithLogger(a.logger),
	)
}

// openStores opens the history and settings tables in the data directory.
func (a *App) openStores() error {
	dir, err := a.dataDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, ConfigDirMode); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	dbPath := filepath.Join(dir, DatabaseName)

	hist, err := history.Open(dbPath, history.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	a.resourceManager.Register(hist)

	store, err := settings.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open settings: %w", err)
	}
	a.resourceManager.Register(store)

	a.mutex.Lock()
	a.history = hist
	a.store = store
	a.mutex.Unlock()
	return nil
}

// loadCatalog restores the managed file list.
func (a *App) loadCatalog() error {
	var items []catalog.FileDescriptor
	if _, err := a.store.Load(settings.KeyConfigFiles, &items); err != nil {
		return err
	}
	a.mutex.Lock()
	a.files = catalog.NewSet(items)
	a.mutex.Unlock()
	return nil
}

func (a *App) startWatcher() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.watcher != nil {
		return nil
	}
	w, err := watch.New(a.onLocalFileChanged, watch.WithLogger(a.logger))
	if err != nil {
		return err
	}
	for expanded := range a.watched {
		if err := w.Add(expanded); err != nil {
			a.logger.Debug("cannot watch file", zap.String("path", expanded), zap.Error(err))
		}
	}
	a.watcher = w
	return nil
}

func (a *App) stopWatcher() {
	a.mutex.Lock()
	w := a.watcher
	a.watcher = nil
	a.mutex.Unlock()
	if w != nil {
		if err := w.Close(); err != nil {
			a.logger.Warn("error closing file watcher", zap.Error(err))
		}
	}
}

// ignoreOwnWrite keeps our own save from being reported as an outside change.
func (a *App) ignoreOwnWrite(filePath string) {
	a.mutex.RLock()
	w := a.watcher
	a.mutex.RUnlock()
	if w != nil {
		w.Ignore(a.watchKey(filePath), watch.DefaultIgnoreWindow)
	}
}

// shutdown is called during application shutdown
func (a *App) shutdown(ctx context.Context) {
	a.logger.Info("shutdown initiated")

	a.mutex.Lock()
	if a.config.debounceTimer != nil {
		a.config.debounceTimer.Stop()
	}
	a.mutex.Unlock()

	func() {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Warn("recovered from panic during window state update", zap.Any("panic", r))
			}
		}()
		if a.updateWindowState() {
			a.mutex.Lock()
			a.config.configDirty = true
			a.mutex.Unlock()
		}
	}()

	// Force save any pending config changes
	a.saveConfigIfDirty()

	a.stopWatcher()
	if err := a.Close(); err != nil {
		a.logger.Warn("error closing resources", zap.Error(err))
	}

	a.logger.Info("shutdown completed")
	_ = a.logger.Sync()
}

// emitToFrontend sends an event through the Wails runtime once it is up.
func (a *App) emitToFrontend(event string, data interface{}) {
	if a.ctx == nil {
		return
	}
	wailsRuntime.EventsEmit(a.ctx, event, data)
}

// opContext is the parent context of every bound operation.
func (a *App) opContext() context.Context {
	if a.ctx != nil {
		return a.ctx
	}
	return context.Background()
}

// recoverResult turns a panic inside a bound operation into a failure result.
func (a *App) recoverResult(op string, res *status.Result) {
	if r := recover(); r != nil {
		a.logger.Error("operation panicked", zap.String("op", op), zap.Any("panic", r))
		*res = status.Fail(status.KindUnknown, fmt.Sprintf("%s failed unexpectedly", op))
	}
}

// ShowMessageDialog shows a message dialog to the user
func (a *App) ShowMessageDialog(title, message string) {
	wailsRuntime.MessageDialog(a.ctx, wailsRuntime.MessageDialogOptions{
		Type:    wailsRuntime.InfoDialog,
		Title:   title,
		Message: message,
	})
}

// createAppOptions creates the Wails application options with platform-specific frameless setting
func createAppOptions(app *App, assets embed.FS, isFrameless bool) *options.App {
	return &options.App{
		Title:     "Confedit",
		Width:     DefaultWindowWidth,
		Height:    DefaultWindowHeight,
		MinWidth:  MinWindowWidth,
		MinHeight: MinWindowHeight,
		Frameless: isFrameless,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 12, G: 12, B: 12, A: 1},
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		Bind: []interface{}{
			app,
		},
		Mac: &mac.Options{
			WebviewIsTransparent: false,
			WindowIsTranslucent:  false,
			TitleBar: &mac.TitleBar{
				TitlebarAppearsTransparent: true,
				HideTitle:                  true,
				HideTitleBar:               false,
				FullSizeContent:            true,
				UseToolbar:                 false,
				HideToolbarSeparator:       true,
			},
			About: &mac.AboutInfo{
				Title:   "Confedit",
				Message: "Local and remote configuration file editor",
			},
		},
		Windows: &windows.Options{
			WebviewIsTransparent: false,
			WindowIsTranslucent:  false,
			DisableWindowIcon:    false,
		},
		Linux: &linux.Options{
			ProgramName:      "Confedit",
			WebviewGpuPolicy: linuxGpuPolicy(),
		},
	}
}
