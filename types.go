package main

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yzhelezko/confedit/internal/catalog"
	"github.com/yzhelezko/confedit/internal/history"
	"github.com/yzhelezko/confedit/internal/localfs"
	"github.com/yzhelezko/confedit/internal/orchestrator"
	"github.com/yzhelezko/confedit/internal/privexec"
	"github.com/yzhelezko/confedit/internal/remote"
	"github.com/yzhelezko/confedit/internal/settings"
	"github.com/yzhelezko/confedit/internal/watch"
)

// Cleanup defines the interface for resources that need cleanup
type Cleanup interface {
	Close() error
}

// ConfigManager handles application configuration
type ConfigManager struct {
	config        *AppConfig
	path          string // overrides the default location when set
	configDirty   bool
	debounceTimer *time.Timer
}

// App struct represents the main application with focused managers
type App struct {
	ctx    context.Context
	logger *zap.Logger
	config *ConfigManager

	local   *localfs.Gateway
	engine  *remote.Engine
	priv    *privexec.Executor
	editor  *orchestrator.Orchestrator
	files   *catalog.Set
	history *history.Store
	store   *settings.Store
	watcher *watch.Watcher
	watched map[string]string // expanded path -> managed file path

	// emit delivers an event to the frontend. Replaced in tests.
	emit func(event string, data interface{})

	resourceManager *ResourceManager
	mutex           sync.RWMutex
}

// Close implements the Cleanup interface for App
func (a *App) Close() error {
	if a.resourceManager != nil {
		return a.resourceManager.Cleanup()
	}
	return nil
}

// Config constants
const (
	ConfigFileName = "config.yaml"
	ConfigDirName  = "confedit"
	DatabaseName   = "confedit.db"
	DebounceDelay  = 1 * time.Second
	ConfigFileMode = 0600
	ConfigDirMode  = 0750
)

// Event names delivered to the frontend
const (
	EventRemoteProgress    = "remote-progress"
	EventRemoteLog         = "remote-log"
	EventConfigFileChanged = "config-file-changed"
)

// NewApp creates a new App application struct with default configuration.
// Stores and the file watcher are opened in startup.
func NewApp() *App {
	app := &App{
		logger: zap.NewNop(),
		config: &ConfigManager{
			config: DefaultConfig(),
		},
		files:           catalog.NewSet(nil),
		watched:         map[string]string{},
		resourceManager: NewResourceManager(),
	}
	app.emit = app.emitToFrontend
	app.initServices()
	return app
}

// ResourceManager manages cleanup of resources
type ResourceManager struct {
	resources []Cleanup
	mutex     sync.Mutex
}

// NewResourceManager creates a new resource manager
func NewResourceManager() *ResourceManager {
	return &ResourceManager{
		resources: make([]Cleanup, 0),
	}
}

// Register adds a resource for cleanup
func (rm *ResourceManager) Register(resource Cleanup) {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()
	rm.resources = append(rm.resources, resource)
}

// Cleanup closes all registered resources, newest first
func (rm *ResourceManager) Cleanup() error {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	var lastError error
	for i := len(rm.resources) - 1; i >= 0; i-- {
		if err := rm.resources[i].Close(); err != nil {
			lastError = err
		}
	}
	rm.resources = rm.resources[:0]
	return lastError
}

// Close implements the Cleanup interface for ResourceManager
func (rm *ResourceManager) Close() error {
	return rm.Cleanup()
}
