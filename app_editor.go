package main

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/yzhelezko/confedit/internal/catalog"
	"github.com/yzhelezko/confedit/internal/orchestrator"
	"github.com/yzhelezko/confedit/internal/status"
)

// EditorResponse pairs what an editor action did with the editor afterwards.
type EditorResponse struct {
	Outcome orchestrator.Outcome     `json:"outcome"`
	State   orchestrator.EditorState `json:"state"`
}

func (a *App) respond(sessionID string, out orchestrator.Outcome) EditorResponse {
	state, err := a.editor.State(sessionID)
	if err != nil {
		// closed while the action ran
		state = orchestrator.EditorState{SessionID: sessionID}
	}
	return EditorResponse{Outcome: out, State: state}
}

func (a *App) recoverOutcome(op orchestrator.Action, sessionID string, resp *EditorResponse) {
	if r := recover(); r != nil {
		a.logger.Error("editor action panicked", zap.String("action", string(op)), zap.Any("panic", r))
		*resp = a.respond(sessionID, orchestrator.Outcome{
			Action: op,
			Phase:  orchestrator.PhaseDone,
			Result: status.Fail(status.KindUnknown, fmt.Sprintf("%s failed unexpectedly", op)),
		})
	}
}

// OpenEditor opens (or returns) the editor of a managed file and loads its
// content the first time.
func (a *App) OpenEditor(filePath string) (resp EditorResponse, err error) {
	file, ok := a.managedFiles().Get(filePath)
	if !ok {
		return EditorResponse{}, fmt.Errorf("%w: %s", catalog.ErrNotFound, filePath)
	}

	state, err := a.editor.Open(file)
	if err != nil {
		return EditorResponse{}, err
	}
	if !file.IsRemote() {
		a.watchFile(file.FilePath)
	}
	if state.Loaded {
		return EditorResponse{Outcome: orchestrator.Outcome{Phase: orchestrator.PhaseIdle}, State: state}, nil
	}
	return a.ReloadFile(state.SessionID), nil
}

// SetWorkingContent replaces the editor buffer.
func (a *App) SetWorkingContent(sessionID, content string) (orchestrator.EditorState, error) {
	return a.editor.SetWorking(sessionID, content)
}

// GetEditorState returns a snapshot of an open editor.
func (a *App) GetEditorState(sessionID string) (orchestrator.EditorState, error) {
	return a.editor.State(sessionID)
}

// CloseEditor drops an editor and its unsaved edits.
func (a *App) CloseEditor(sessionID string) error {
	state, err := a.editor.State(sessionID)
	if err != nil {
		return err
	}
	if err := a.editor.Close(sessionID); err != nil {
		return err
	}
	if !state.Remote {
		a.unwatchFile(state.FilePath)
	}
	return nil
}

// SaveFile writes the editor buffer. A permission failure opens the password prompt.
func (a *App) SaveFile(sessionID string) (resp EditorResponse) {
	defer a.recoverOutcome(orchestrator.ActionSave, sessionID, &resp)
	out := a.editor.Save(a.opContext(), sessionID, a.sessionObserver(sessionID))
	return a.respond(sessionID, out)
}

// RefreshFile runs the refresh command, saving unsaved edits first.
func (a *App) RefreshFile(sessionID string) (resp EditorResponse) {
	defer a.recoverOutcome(orchestrator.ActionRefresh, sessionID, &resp)
	out := a.editor.Refresh(a.opContext(), sessionID, a.sessionObserver(sessionID))
	return a.respond(sessionID, out)
}

// ReloadFile rereads the file, dropping unsaved edits.
func (a *App) ReloadFile(sessionID string) (resp EditorResponse) {
	defer a.recoverOutcome(orchestrator.ActionReload, sessionID, &resp)
	out := a.editor.Reload(a.opContext(), sessionID, a.sessionObserver(sessionID))
	return a.respond(sessionID, out)
}

// SubmitSecret makes one privileged attempt for the pending action.
func (a *App) SubmitSecret(sessionID, secret string) (resp EditorResponse) {
	defer a.recoverOutcome("", sessionID, &resp)
	out := a.editor.SubmitSecret(a.opContext(), sessionID, secret, a.sessionObserver(sessionID))
	return a.respond(sessionID, out)
}

// CancelSecret closes the password prompt.
func (a *App) CancelSecret(sessionID string) EditorResponse {
	return a.respond(sessionID, a.editor.Cancel(sessionID))
}

func (a *App) sessionObserver(sessionID string) frontendObserver {
	filePath := ""
	if state, err := a.editor.State(sessionID); err == nil {
		filePath = state.FilePath
	}
	return frontendObserver{app: a, filePath: filePath}
}

// watchKey is the form the watcher reports paths in.
func (a *App) watchKey(filePath string) string {
	expanded := a.local.ExpandHome(filePath)
	if abs, err := filepath.Abs(expanded); err == nil {
		return abs
	}
	return filepath.Clean(expanded)
}

func (a *App) watchFile(filePath string) {
	expanded := a.watchKey(filePath)
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.watched[expanded] = filePath
	if a.watcher == nil {
		return
	}
	if err := a.watcher.Add(expanded); err != nil {
		a.logger.Debug("cannot watch file", zap.String("path", expanded), zap.Error(err))
	}
}

func (a *App) unwatchFile(filePath string) {
	expanded := a.watchKey(filePath)
	a.mutex.Lock()
	defer a.mutex.Unlock()
	delete(a.watched, expanded)
	if a.watcher != nil {
		a.watcher.Remove(expanded)
	}
}
