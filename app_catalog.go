package main

import (
	"errors"

	"go.uber.org/zap"

	"github.com/yzhelezko/confedit/internal/catalog"
	"github.com/yzhelezko/confedit/internal/settings"
)

var errSettingsUnavailable = errors.New("settings store is not open")

func (a *App) settingsStore() (*settings.Store, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	if a.store == nil {
		return nil, errSettingsUnavailable
	}
	return a.store, nil
}

func (a *App) managedFiles() *catalog.Set {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.files
}

// persistCatalog writes the managed list under its fixed key.
func (a *App) persistCatalog() error {
	store, err := a.settingsStore()
	if err != nil {
		return err
	}
	return store.Save(settings.KeyConfigFiles, a.managedFiles().List())
}

// ListConfigFiles returns the managed files in user order.
func (a *App) ListConfigFiles() []catalog.FileDescriptor {
	return a.managedFiles().List()
}

// AddConfigFile appends a file to the managed list. An empty refresh command
// is derived from the path.
func (a *App) AddConfigFile(file catalog.FileDescriptor) (catalog.FileDescriptor, error) {
	added, err := a.managedFiles().Add(file)
	if err != nil {
		return added, err
	}
	if err := a.persistCatalog(); err != nil {
		_ = a.managedFiles().Remove(added.FilePath)
		return added, err
	}
	a.logger.Info("config file added", zap.String("file", added.FilePath), zap.Bool("remote", added.IsRemote()))
	return added, nil
}

// UpdateConfigFile replaces the descriptor stored under filePath.
func (a *App) UpdateConfigFile(filePath string, file catalog.FileDescriptor) (catalog.FileDescriptor, error) {
	previous, _ := a.managedFiles().Get(filePath)
	updated, err := a.managedFiles().Update(filePath, file)
	if err != nil {
		return updated, err
	}
	if err := a.persistCatalog(); err != nil {
		_, _ = a.managedFiles().Update(updated.FilePath, previous)
		return updated, err
	}

	// An open editor follows the new descriptor. A moved path starts over.
	if id, open := a.editor.SessionFor(filePath); open {
		if updated.FilePath == filePath {
			_, _ = a.editor.Open(updated)
		} else if err := a.CloseEditor(id); err != nil {
			a.logger.Warn("failed to close editor of moved file", zap.String("file", filePath), zap.Error(err))
		}
	}
	return updated, nil
}

// RemoveConfigFile drops a file from the managed list and closes its editor.
func (a *App) RemoveConfigFile(filePath string) error {
	if err := a.managedFiles().Remove(filePath); err != nil {
		return err
	}
	if id, open := a.editor.SessionFor(filePath); open {
		if err := a.CloseEditor(id); err != nil {
			a.logger.Warn("failed to close editor of removed file", zap.String("file", filePath), zap.Error(err))
		}
	}
	a.logger.Info("config file removed", zap.String("file", filePath))
	return a.persistCatalog()
}

// ReorderConfigFiles applies a drag-and-drop order.
func (a *App) ReorderConfigFiles(filePaths []string) error {
	if err := a.managedFiles().Reorder(filePaths); err != nil {
		return err
	}
	return a.persistCatalog()
}

// ScanCommonConfigFiles suggests readable well-known files that are not managed yet.
func (a *App) ScanCommonConfigFiles() []catalog.FileDescriptor {
	found := catalog.ScanCommon(a.local.HomeDir(), catalog.CommonCandidates, a.local.CanRead, a.managedFiles())
	a.logger.Debug("common config scan finished", zap.Int("found", len(found)))
	return found
}

// DefaultRefreshCommand returns the refresh command guessed for filePath.
func (a *App) DefaultRefreshCommand(filePath string) string {
	return catalog.DefaultRefreshCmd(filePath)
}

// LoadAppSettings returns the UI preferences, defaults filled in.
func (a *App) LoadAppSettings() (settings.AppSettings, error) {
	store, err := a.settingsStore()
	if err != nil {
		return settings.DefaultAppSettings(), err
	}
	return store.LoadAppSettings()
}

// SaveAppSettings stores the UI preferences.
func (a *App) SaveAppSettings(prefs settings.AppSettings) error {
	store, err := a.settingsStore()
	if err != nil {
		return err
	}
	return store.SaveAppSettings(prefs)
}
