// Package orchestrator routes save, refresh and reload requests for open
// files to the local or remote backends, and escalates to the privileged
// paths when a request fails for lack of permission.
//
// Each action on a file is guarded by a busy flag. A second request while
// the first is in flight is answered with a skipped outcome, never queued.
package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yzhelezko/confedit/internal/catalog"
	"github.com/yzhelezko/confedit/internal/history"
	"github.com/yzhelezko/confedit/internal/remote"
	"github.com/yzhelezko/confedit/internal/status"
)

// ErrUnknownSession is returned for a closed or never opened session id.
var ErrUnknownSession = errors.New("unknown editor session")

// HistoryRecorder stores snapshots of successful local saves.
type HistoryRecorder interface {
	SaveHistory(filePath, fileName, content string) (history.Record, error)
}

type busyKey struct {
	path   string
	action Action
}

// Orchestrator owns the open editor sessions.
type Orchestrator struct {
	backend          Backend
	history          HistoryRecorder
	beforeLocalWrite func(path string)
	logger           *zap.Logger
	newID            func() string

	mu       sync.Mutex
	sessions map[string]*EditorSession
	byPath   map[string]string
	busy     map[busyKey]bool
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithHistory records every successful local save.
func WithHistory(h HistoryRecorder) Option {
	return func(o *Orchestrator) { o.history = h }
}

// WithWriteHook runs right before a local file is written.
func WithWriteHook(hook func(path string)) Option {
	return func(o *Orchestrator) { o.beforeLocalWrite = hook }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an Orchestrator over backend.
func New(backend Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:  backend,
		logger:   zap.NewNop(),
		newID:    uuid.NewString,
		sessions: map[string]*EditorSession{},
		byPath:   map[string]string{},
		busy:     map[busyKey]bool{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open returns the session of file, creating it when needed. Opening an
// already open path refreshes its descriptor and keeps the buffers.
func (o *Orchestrator) Open(file catalog.FileDescriptor) (EditorState, error) {
	if strings.TrimSpace(file.FilePath) == "" {
		return EditorState{}, errors.New("file path is required")
	}
	if file.RefreshCmd == "" {
		file.RefreshCmd = catalog.DefaultRefreshCmd(file.FilePath)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if id, ok := o.byPath[file.FilePath]; ok {
		sess := o.sessions[id]
		sess.file = file
		return sess.state(o.busyFor(file.FilePath)), nil
	}

	sess := &EditorSession{id: o.newID(), file: file}
	o.sessions[sess.id] = sess
	o.byPath[file.FilePath] = sess.id
	o.logger.Info("editor opened", zap.String("session", sess.id), zap.String("file", file.FilePath))
	return sess.state(nil), nil
}

// Close forgets a session. Unsaved edits are dropped.
func (o *Orchestrator) Close(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	sess, ok := o.sessions[id]
	if !ok {
		return ErrUnknownSession
	}
	delete(o.sessions, id)
	delete(o.byPath, sess.file.FilePath)
	return nil
}

// SessionFor returns the id of the open session of filePath.
func (o *Orchestrator) SessionFor(filePath string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id, ok := o.byPath[filePath]
	return id, ok
}

// State returns a snapshot of a session.
func (o *Orchestrator) State(id string) (EditorState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sess, ok := o.sessions[id]
	if !ok {
		return EditorState{}, ErrUnknownSession
	}
	return sess.state(o.busyFor(sess.file.FilePath)), nil
}

// SetWorking replaces the working buffer.
func (o *Orchestrator) SetWorking(id, content string) (EditorState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sess, ok := o.sessions[id]
	if !ok {
		return EditorState{}, ErrUnknownSession
	}
	sess.working = content
	return sess.state(o.busyFor(sess.file.FilePath)), nil
}

func (o *Orchestrator) busyFor(filePath string) []Action {
	busy := []Action{}
	for _, a := range []Action{ActionSave, ActionRefresh, ActionReload} {
		if o.busy[busyKey{filePath, a}] {
			busy = append(busy, a)
		}
	}
	return busy
}

// tryAcquire marks every action busy, or none. Caller holds o.mu.
func (o *Orchestrator) tryAcquire(filePath string, actions ...Action) bool {
	for _, a := range actions {
		if o.busy[busyKey{filePath, a}] {
			return false
		}
	}
	for _, a := range actions {
		o.busy[busyKey{filePath, a}] = true
	}
	return true
}

func (o *Orchestrator) release(filePath string, actions ...Action) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, a := range actions {
		delete(o.busy, busyKey{filePath, a})
	}
}

func unknown(action Action) Outcome {
	return done(action, status.Fail(status.KindOperator, ErrUnknownSession.Error()))
}

func endpoint(file catalog.FileDescriptor) remote.Endpoint {
	return *file.RemoteInfo
}

// Save writes the working buffer through the unprivileged path.
func (o *Orchestrator) Save(ctx context.Context, id string, obs remote.Observer) Outcome {
	o.mu.Lock()
	sess, ok := o.sessions[id]
	if !ok {
		o.mu.Unlock()
		return unknown(ActionSave)
	}
	file, content := sess.file, sess.working
	if !o.tryAcquire(file.FilePath, ActionSave) {
		o.mu.Unlock()
		return skipped(ActionSave)
	}
	o.mu.Unlock()
	defer o.release(file.FilePath, ActionSave)

	return o.save(ctx, id, file, content, obs, false)
}

func (o *Orchestrator) save(ctx context.Context, id string, file catalog.FileDescriptor, content string, obs remote.Observer, thenRefresh bool) Outcome {
	res := o.write(ctx, file, content, obs)
	if res.OK() {
		o.markSaved(id, file, content)
		return done(ActionSave, res)
	}
	if status.IsPermission(res) {
		sc := Scenario{Purpose: PurposeFile, TargetKind: TargetUser}
		o.setPending(id, &pending{
			action:      ActionSave,
			scenario:    sc,
			content:     content,
			thenRefresh: thenRefresh,
			lastError:   res.Msg,
		})
		o.logger.Info("save needs privileges", zap.String("file", file.FilePath), zap.String("reason", res.Msg))
		return awaiting(ActionSave, res, sc)
	}
	o.logger.Warn("save failed", zap.String("file", file.FilePath), zap.String("reason", res.Msg))
	return done(ActionSave, res)
}

func (o *Orchestrator) write(ctx context.Context, file catalog.FileDescriptor, content string, obs remote.Observer) status.Result {
	if file.IsRemote() {
		return o.backend.WriteRemote(ctx, endpoint(file), file.FilePath, content, obs)
	}
	if probe := o.backend.ProbeLocalWritable(file.FilePath); !probe.OK() {
		return probe
	}
	o.hook(file.FilePath)
	return o.backend.WriteLocal(file.FilePath, content)
}

func (o *Orchestrator) hook(filePath string) {
	if o.beforeLocalWrite != nil {
		o.beforeLocalWrite(filePath)
	}
}

func (o *Orchestrator) markSaved(id string, file catalog.FileDescriptor, content string) {
	o.mu.Lock()
	if sess, ok := o.sessions[id]; ok {
		sess.saved = content
		sess.loaded = true
		if sess.pending != nil && sess.pending.action == ActionSave {
			sess.pending = nil
		}
	}
	o.mu.Unlock()

	if file.IsRemote() || o.history == nil {
		return
	}
	if _, err := o.history.SaveHistory(file.FilePath, filepath.Base(file.FilePath), content); err != nil {
		o.logger.Warn("history snapshot failed", zap.String("file", file.FilePath), zap.Error(err))
	}
}

func (o *Orchestrator) setPending(id string, p *pending) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if sess, ok := o.sessions[id]; ok {
		sess.pending = p
	}
}

func (o *Orchestrator) clearPending(id string, action Action) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if sess, ok := o.sessions[id]; ok && sess.pending != nil && sess.pending.action == action {
		sess.pending = nil
	}
}

func (o *Orchestrator) failAttempt(id string, res status.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if sess, ok := o.sessions[id]; ok && sess.pending != nil {
		sess.pending.attempts++
		sess.pending.lastError = res.Msg
	}
}

// Refresh runs the file's refresh command. Unsaved edits are saved first and
// the command never runs if that save does not succeed.
func (o *Orchestrator) Refresh(ctx context.Context, id string, obs remote.Observer) Outcome {
	o.mu.Lock()
	sess, ok := o.sessions[id]
	if !ok {
		o.mu.Unlock()
		return unknown(ActionRefresh)
	}
	file, content, editing := sess.file, sess.working, sess.IsEditing()
	actions := []Action{ActionRefresh}
	if editing {
		actions = append(actions, ActionSave)
	}
	if !o.tryAcquire(file.FilePath, actions...) {
		o.mu.Unlock()
		return skipped(ActionRefresh)
	}
	o.mu.Unlock()
	defer o.release(file.FilePath, actions...)

	if editing {
		out := o.save(ctx, id, file, content, obs, true)
		if out.Phase == PhaseAwaitingSecret {
			return out
		}
		if !out.Result.OK() {
			res := out.Result
			res.Msg = "save before refresh failed: " + res.Msg
			return done(ActionRefresh, res)
		}
	}
	return o.refresh(ctx, id, file, obs)
}

func (o *Orchestrator) refresh(ctx context.Context, id string, file catalog.FileDescriptor, obs remote.Observer) Outcome {
	command := file.RefreshCmd
	var res status.Result
	if file.IsRemote() {
		res = o.backend.ExecRemote(ctx, endpoint(file), command, obs)
	} else {
		res = o.backend.ExecLocal(ctx, command)
	}

	if res.OK() {
		o.clearPending(id, ActionRefresh)
		return done(ActionRefresh, res)
	}
	if status.IsPermission(res) {
		sc := CommandScenario(command)
		o.setPending(id, &pending{
			action:    ActionRefresh,
			scenario:  sc,
			command:   command,
			lastError: res.Msg,
		})
		o.logger.Info("refresh needs privileges", zap.String("command", command), zap.String("target", string(sc.TargetKind)))
		return awaiting(ActionRefresh, res, sc)
	}
	return done(ActionRefresh, res)
}

// Reload replaces both buffers with the content on disk, dropping edits.
func (o *Orchestrator) Reload(ctx context.Context, id string, obs remote.Observer) Outcome {
	o.mu.Lock()
	sess, ok := o.sessions[id]
	if !ok {
		o.mu.Unlock()
		return unknown(ActionReload)
	}
	file := sess.file
	if !o.tryAcquire(file.FilePath, ActionReload) {
		o.mu.Unlock()
		return skipped(ActionReload)
	}
	o.mu.Unlock()
	defer o.release(file.FilePath, ActionReload)

	var res status.Result
	if file.IsRemote() {
		res = o.backend.ReadRemote(ctx, endpoint(file), file.FilePath, obs)
	} else {
		res = o.backend.ReadLocal(file.FilePath)
	}
	if !res.OK() {
		return done(ActionReload, res)
	}

	o.mu.Lock()
	if sess, ok := o.sessions[id]; ok {
		sess.saved = res.Content
		sess.working = res.Content
		sess.loaded = true
		sess.pending = nil
	}
	o.mu.Unlock()
	return done(ActionReload, res)
}

// SubmitSecret performs exactly one privileged attempt for the pending
// action. A failed attempt leaves the prompt open until it is cancelled or
// another secret is submitted.
func (o *Orchestrator) SubmitSecret(ctx context.Context, id, secret string, obs remote.Observer) Outcome {
	o.mu.Lock()
	sess, ok := o.sessions[id]
	if !ok {
		o.mu.Unlock()
		return unknown("")
	}
	if sess.pending == nil {
		o.mu.Unlock()
		return done("", status.Fail(status.KindOperator, "nothing is waiting for a password"))
	}
	p := *sess.pending
	if secret == "" {
		o.mu.Unlock()
		return awaiting(p.action, status.Fail(status.KindOperator, "password is required"), p.scenario)
	}
	file := sess.file
	if !o.tryAcquire(file.FilePath, p.action) {
		o.mu.Unlock()
		return skipped(p.action)
	}
	o.mu.Unlock()
	defer o.release(file.FilePath, p.action)

	switch p.action {
	case ActionSave:
		var res status.Result
		if file.IsRemote() {
			res = o.backend.WriteRemotePrivileged(ctx, endpoint(file), file.FilePath, p.content, secret, obs)
		} else {
			o.hook(file.FilePath)
			res = o.backend.WriteLocalPrivileged(ctx, file.FilePath, p.content, secret)
		}
		if !res.OK() {
			o.failAttempt(id, res)
			return awaiting(ActionSave, res, p.scenario)
		}
		o.markSaved(id, file, p.content)
		if p.thenRefresh {
			return o.refreshAfterSave(ctx, id, file, obs)
		}
		return done(ActionSave, res)

	case ActionRefresh:
		var res status.Result
		if file.IsRemote() {
			res = o.backend.ExecRemotePrivileged(ctx, endpoint(file), p.command, secret, obs)
		} else {
			res = o.backend.ExecLocalPrivileged(ctx, p.command, secret)
		}
		if !res.OK() {
			o.failAttempt(id, res)
			return awaiting(ActionRefresh, res, p.scenario)
		}
		o.clearPending(id, ActionRefresh)
		return done(ActionRefresh, res)
	}
	return done(p.action, status.Fail(status.KindUnknown, "unsupported pending action"))
}

func (o *Orchestrator) refreshAfterSave(ctx context.Context, id string, file catalog.FileDescriptor, obs remote.Observer) Outcome {
	o.mu.Lock()
	if !o.tryAcquire(file.FilePath, ActionRefresh) {
		o.mu.Unlock()
		return skipped(ActionRefresh)
	}
	o.mu.Unlock()
	defer o.release(file.FilePath, ActionRefresh)
	return o.refresh(ctx, id, file, obs)
}

// Cancel closes the secret prompt without any retry.
func (o *Orchestrator) Cancel(id string) Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	sess, ok := o.sessions[id]
	if !ok {
		return unknown("")
	}
	if sess.pending == nil {
		return done("", status.Fail(status.KindOperator, "nothing is waiting for a password"))
	}
	action := sess.pending.action
	sess.pending = nil
	o.logger.Info("privileged retry cancelled", zap.String("file", sess.file.FilePath), zap.String("action", string(action)))
	return Outcome{
		Action:    action,
		Phase:     PhaseDone,
		Result:    status.Fail(status.KindOperator, "cancelled"),
		Cancelled: true,
	}
}
