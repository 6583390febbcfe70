package orchestrator

import (
	"regexp"

	"github.com/yzhelezko/confedit/internal/catalog"
	"github.com/yzhelezko/confedit/internal/status"
)

// Action is a user intent on an open file.
type Action string

const (
	ActionSave    Action = "save"
	ActionRefresh Action = "refresh"
	ActionReload  Action = "reload"
)

// Phase is where an action ended up once a call returns.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseInFlight       Phase = "inFlight"
	PhaseAwaitingSecret Phase = "awaitingSecret"
	PhaseDone           Phase = "done"
)

// Purpose says what the secret will unlock.
type Purpose string

const (
	PurposeFile    Purpose = "file"
	PurposeCommand Purpose = "command"
)

// TargetKind only changes the prompt wording; the privileged path is the same.
type TargetKind string

const (
	TargetUser TargetKind = "user"
	TargetRoot TargetKind = "root"
)

// Scenario describes why a secret is being asked for.
type Scenario struct {
	Purpose    Purpose    `json:"purpose"`
	TargetKind TargetKind `json:"targetKind"`
}

var serviceManager = regexp.MustCompile(`\b(systemctl|service|launchctl|rc-service|init\.d)\b`)

// CommandScenario classifies a refresh command for the secret prompt.
func CommandScenario(command string) Scenario {
	kind := TargetUser
	if serviceManager.MatchString(command) {
		kind = TargetRoot
	}
	return Scenario{Purpose: PurposeCommand, TargetKind: kind}
}

// pending is a privileged retry waiting for its secret.
type pending struct {
	action      Action
	scenario    Scenario
	content     string
	command     string
	thenRefresh bool
	attempts    int
	lastError   string
}

// EditorSession is one open file with its saved and working buffers.
type EditorSession struct {
	id      string
	file    catalog.FileDescriptor
	saved   string
	working string
	loaded  bool
	pending *pending
}

// IsEditing reports unsaved edits.
func (s *EditorSession) IsEditing() bool {
	return s.working != s.saved
}

// Prompt is the secret dialog as the UI renders it.
type Prompt struct {
	Action    Action   `json:"action"`
	Scenario  Scenario `json:"scenario"`
	Command   string   `json:"command,omitempty"`
	Attempts  int      `json:"attempts"`
	LastError string   `json:"lastError,omitempty"`
}

// EditorState is a read-only snapshot of a session.
type EditorState struct {
	SessionID   string   `json:"sessionId"`
	FilePath    string   `json:"filePath"`
	Description string   `json:"description"`
	RefreshCmd  string   `json:"refreshCmd"`
	Remote      bool     `json:"remote"`
	Saved       string   `json:"saved"`
	Working     string   `json:"working"`
	IsEditing   bool     `json:"isEditing"`
	Loaded      bool     `json:"loaded"`
	Prompt      *Prompt  `json:"prompt,omitempty"`
	Busy        []Action `json:"busy"`
}

func (s *EditorSession) state(busy []Action) EditorState {
	st := EditorState{
		SessionID:   s.id,
		FilePath:    s.file.FilePath,
		Description: s.file.Description,
		RefreshCmd:  s.file.RefreshCmd,
		Remote:      s.file.IsRemote(),
		Saved:       s.saved,
		Working:     s.working,
		IsEditing:   s.IsEditing(),
		Loaded:      s.loaded,
		Busy:        busy,
	}
	if p := s.pending; p != nil {
		st.Prompt = &Prompt{
			Action:    p.action,
			Scenario:  p.scenario,
			Command:   p.command,
			Attempts:  p.attempts,
			LastError: p.lastError,
		}
	}
	return st
}

// Outcome is what one orchestrator call did.
type Outcome struct {
	Action    Action        `json:"action"`
	Phase     Phase         `json:"phase"`
	Result    status.Result `json:"result"`
	Scenario  *Scenario     `json:"scenario,omitempty"`
	Skipped   bool          `json:"skipped,omitempty"`
	Cancelled bool          `json:"cancelled,omitempty"`
}

func done(action Action, res status.Result) Outcome {
	return Outcome{Action: action, Phase: PhaseDone, Result: res}
}

func awaiting(action Action, res status.Result, sc Scenario) Outcome {
	return Outcome{Action: action, Phase: PhaseAwaitingSecret, Result: res, Scenario: &sc}
}

func skipped(action Action) Outcome {
	return Outcome{
		Action:  action,
		Phase:   PhaseInFlight,
		Result:  status.Fail(status.KindOperator, string(action)+" already in progress"),
		Skipped: true,
	}
}
