package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/yzhelezko/confedit/internal/history"
	"github.com/yzhelezko/confedit/internal/orchestrator"
)

var errHistoryUnavailable = errors.New("history store is not open")

// historyRecorder routes snapshots to the store opened at startup.
type historyRecorder struct{ app *App }

func (h historyRecorder) SaveHistory(filePath, fileName, content string) (history.Record, error) {
	store, err := h.app.historyStore()
	if err != nil {
		return history.Record{}, err
	}
	return store.SaveHistory(filePath, fileName, content)
}

func (a *App) historyStore() (*history.Store, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	if a.history == nil {
		return nil, errHistoryUnavailable
	}
	return a.history, nil
}

func (a *App) recordLocalSave(filePath, content string) {
	if _, err := (historyRecorder{a}).SaveHistory(filePath, filepath.Base(filePath), content); err != nil {
		a.logger.Warn("history snapshot failed", zap.String("file", filePath), zap.Error(err))
	}
}

// GetFileHistory returns the snapshots of a file, newest first.
func (a *App) GetFileHistory(filePath string) ([]history.Record, error) {
	store, err := a.historyStore()
	if err != nil {
		return nil, err
	}
	return store.GetFileHistory(filePath)
}

// DeleteFileHistory drops every snapshot of a file.
func (a *App) DeleteFileHistory(filePath string) (int64, error) {
	store, err := a.historyStore()
	if err != nil {
		return 0, err
	}
	n, err := store.DeleteFileHistory(filePath)
	if err == nil {
		a.logger.Info("file history deleted", zap.String("file", filePath), zap.Int64("records", n))
	}
	return n, err
}

// ClearAllHistory drops every snapshot.
func (a *App) ClearAllHistory() (int64, error) {
	store, err := a.historyStore()
	if err != nil {
		return 0, err
	}
	n, err := store.ClearAllHistory()
	if err == nil {
		a.logger.Info("history cleared", zap.Int64("records", n))
	}
	return n, err
}

// GetHistoryUsage reports how much of the retention budget is used.
func (a *App) GetHistoryUsage() (history.Usage, error) {
	store, err := a.historyStore()
	if err != nil {
		return history.Usage{}, err
	}
	return store.Usage()
}

// RestoreHistoryRecord loads a snapshot into the working buffer of an open
// editor. Nothing is written until the editor saves.
func (a *App) RestoreHistoryRecord(sessionID, recordID string) (orchestrator.EditorState, error) {
	store, err := a.historyStore()
	if err != nil {
		return orchestrator.EditorState{}, err
	}
	state, err := a.editor.State(sessionID)
	if err != nil {
		return orchestrator.EditorState{}, err
	}
	rec, err := store.Get(recordID)
	if err != nil {
		return orchestrator.EditorState{}, err
	}
	if rec.FilePath != state.FilePath {
		return orchestrator.EditorState{}, fmt.Errorf("history record %s belongs to %s, not %s", recordID, rec.FilePath, state.FilePath)
	}
	return a.editor.SetWorking(sessionID, rec.Content)
}
