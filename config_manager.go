package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// getConfigPath returns the full path to the config file
func (a *App) getConfigPath() (string, error) {
	if a.config.path != "" {
		return a.config.path, nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, ConfigDirName, ConfigFileName), nil
}

// ensureConfigDir creates the config directory if it doesn't exist
func (a *App) ensureConfigDir() error {
	configPath, err := a.getConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, ConfigDirMode); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}
	return nil
}

// dataDir returns where the database lives. Defaults to the config directory.
func (a *App) dataDir() (string, error) {
	if dir := a.config.config.DataDir; dir != "" {
		return a.local.ExpandHome(dir), nil
	}
	configPath, err := a.getConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Dir(configPath), nil
}

// loadConfig loads configuration from file or creates default
func (a *App) loadConfig() error {
	configPath, err := a.getConfigPath()
	if err != nil {
		a.logger.Warn("using default config", zap.Error(err))
		return nil // Continue with default config
	}

	// Ensure config directory exists
	if err := a.ensureConfigDir(); err != nil {
		a.logger.Warn("using default config", zap.Error(err))
		return nil
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		a.logger.Info("config file not found, creating with default values", zap.String("path", configPath))
		return a.saveConfig() // Create default config file
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		a.logger.Warn("failed to read config file, using default config", zap.String("path", configPath), zap.Error(err))
		return nil
	}

	loaded := DefaultConfig()
	if err := yaml.Unmarshal(data, loaded); err != nil {
		a.logger.Warn("failed to parse config file, using default config", zap.String("path", configPath), zap.Error(err))
		a.config.config = DefaultConfig() // Reset to default on parse error
		return nil
	}
	if err := loaded.Validate(); err != nil {
		a.logger.Warn("invalid config file, using default config", zap.String("path", configPath), zap.Error(err))
		a.config.config = DefaultConfig()
		return nil
	}

	a.config.config = loaded
	a.logger.Info("config loaded", zap.String("path", configPath))
	return nil
}

// saveConfig saves the current application configuration to a file
func (a *App) saveConfig() error {
	if a.config.config == nil {
		return fmt.Errorf("config is nil, cannot save")
	}

	configPath, err := a.getConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	if err := a.ensureConfigDir(); err != nil {
		return fmt.Errorf("failed to ensure config directory: %w", err)
	}

	data, err := yaml.Marshal(a.config.config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, ConfigFileMode); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configPath, err)
	}

	return nil
}

// markConfigDirty flags the configuration as needing a save and resets the debounce timer.
func (a *App) markConfigDirty() {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.config.configDirty = true
	if a.config.debounceTimer != nil {
		a.config.debounceTimer.Stop()
	}

	a.config.debounceTimer = time.AfterFunc(DebounceDelay, func() {
		if a.ctx != nil { // Check if app is still running
			a.saveConfigIfDirty()
		}
	})
}

// saveConfigIfDirty checks the dirty flag and saves the configuration if it's set.
func (a *App) saveConfigIfDirty() {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if !a.config.configDirty {
		return // Nothing to save
	}

	if err := a.saveConfig(); err != nil {
		a.logger.Error("error saving config", zap.Error(err))
		// Keep config dirty so it will be retried later
		return
	}

	a.logger.Debug("config saved")
	a.config.configDirty = false
}

// updateWindowState updates the config with current window state and marks dirty if changed
func (a *App) updateWindowState() bool {
	if a.ctx == nil || a.config.config == nil {
		return false
	}

	width, height := wailsRuntime.WindowGetSize(a.ctx)
	isMaximized := wailsRuntime.WindowIsMaximised(a.ctx)

	configChanged := false

	if a.config.config.WindowWidth != width || a.config.config.WindowHeight != height {
		a.config.config.WindowWidth = width
		a.config.config.WindowHeight = height
		configChanged = true
	}

	if a.config.config.WindowMaximized != isMaximized {
		a.config.config.WindowMaximized = isMaximized
		configChanged = true
	}

	return configChanged
}

// handleFrontendResizeEvent is called when the frontend signals that window resizing has finished.
func (a *App) handleFrontendResizeEvent(optionalData ...interface{}) {
	if a.ctx == nil || a.config.config == nil {
		return
	}

	if a.updateWindowState() {
		a.markConfigDirty()
	}
}

// GetAppConfig returns a copy of the current configuration for the settings pane.
func (a *App) GetAppConfig() AppConfig {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return *a.config.config
}

// GetWatchLocalFiles reports whether open local files are watched for outside changes.
func (a *App) GetWatchLocalFiles() bool {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.config.config.WatchLocalFiles
}

// SetWatchLocalFiles toggles change notifications for open local files.
func (a *App) SetWatchLocalFiles(enabled bool) error {
	a.mutex.Lock()
	if a.config.config.WatchLocalFiles == enabled {
		a.mutex.Unlock()
		return nil
	}
	a.config.config.WatchLocalFiles = enabled
	a.mutex.Unlock()

	if enabled {
		if err := a.startWatcher(); err != nil {
			return err
		}
	} else {
		a.stopWatcher()
	}
	a.logger.Info("local file watching updated", zap.Bool("enabled", enabled))
	a.markConfigDirty()
	return nil
}
