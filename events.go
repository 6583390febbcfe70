package main

import (
	"go.uber.org/zap"

	"github.com/yzhelezko/confedit/internal/remote"
)

// ProgressPayload is the remote-progress event body.
type ProgressPayload struct {
	remote.ProgressEvent
	FilePath string `json:"filePath"`
}

// LogPayload is the remote-log event body.
type LogPayload struct {
	remote.LogEvent
	FilePath string `json:"filePath"`
}

// FileChangedPayload is the config-file-changed event body.
type FileChangedPayload struct {
	FilePath  string `json:"filePath"`
	SessionID string `json:"sessionId,omitempty"`
}

// frontendObserver forwards one operation's side channel to the frontend,
// tagged with the file it concerns.
type frontendObserver struct {
	app      *App
	filePath string
}

func (a *App) observer(filePath string) remote.Observer {
	return frontendObserver{app: a, filePath: filePath}
}

func (o frontendObserver) OnProgress(ev remote.ProgressEvent) {
	o.app.emit(EventRemoteProgress, ProgressPayload{ProgressEvent: ev, FilePath: o.filePath})
}

func (o frontendObserver) OnLog(ev remote.LogEvent) {
	o.app.emit(EventRemoteLog, LogPayload{LogEvent: ev, FilePath: o.filePath})
}

// onLocalFileChanged runs on the watcher goroutine.
func (a *App) onLocalFileChanged(expanded string) {
	a.mutex.RLock()
	filePath, ok := a.watched[expanded]
	a.mutex.RUnlock()
	if !ok {
		return
	}

	payload := FileChangedPayload{FilePath: filePath}
	if id, open := a.editor.SessionFor(filePath); open {
		payload.SessionID = id
	}
	a.logger.Info("config file changed outside the editor", zap.String("file", filePath))
	a.emit(EventConfigFileChanged, payload)
}
