// Package remote opens one authenticated SSH session per operation and moves
// configuration file content over its SFTP subchannel.
package remote

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/yzhelezko/confedit/internal/status"
)

// Endpoint is the remote half of a file descriptor. It is supplied fresh for
// every operation and never cached here.
type Endpoint struct {
	Host     string `json:"host" yaml:"host" validate:"required"`
	Port     int    `json:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
	Username string `json:"username" yaml:"username" validate:"required"`
	Password string `json:"password" yaml:"password"`
}

var validate = validator.New()

// Validate checks the required fields before any connection is attempted.
func (e Endpoint) Validate() error {
	return validate.Struct(e)
}

// Address returns host:port, defaulting the port to 22.
func (e Endpoint) Address() string {
	port := e.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(port))
}

// String never includes the password.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s@%s", e.Username, e.Address())
}

// LogType tags an operator-facing log line.
type LogType string

const (
	LogInfo    LogType = "info"
	LogSuccess LogType = "success"
	LogWarning LogType = "warning"
	LogError   LogType = "error"
)

// ProgressEvent is one step of a transfer as the UI renders it.
type ProgressEvent struct {
	Progress int    `json:"progress"`
	Status   string `json:"status"`
	Speed    string `json:"speed"`
}

// LogEvent is one line of the debug console side channel.
type LogEvent struct {
	Message string  `json:"message"`
	Type    LogType `json:"type"`
}

// Observer receives progress and log events in emission order.
type Observer interface {
	OnProgress(ProgressEvent)
	OnLog(LogEvent)
}

// ObserverFuncs adapts two plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Progress func(ProgressEvent)
	Log      func(LogEvent)
}

func (o ObserverFuncs) OnProgress(ev ProgressEvent) {
	if o.Progress != nil {
		o.Progress(ev)
	}
}

func (o ObserverFuncs) OnLog(ev LogEvent) {
	if o.Log != nil {
		o.Log(ev)
	}
}

// Discard is an Observer that drops everything.
var Discard Observer = ObserverFuncs{}

// ConnectError is any transport-level failure while opening a session.
// Auth failures, unreachable hosts and timeouts are not told apart here.
type ConnectError struct {
	Message string
}

func (e *ConnectError) Error() string {
	return e.Message
}

// Kind implements the classification hook used by status.KindOf.
func (e *ConnectError) Kind() status.Kind {
	return status.KindConnectivity
}

// ExecOutput is what a finished remote command left behind. A non-zero exit
// is not an error; transport failures are.
type ExecOutput struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// FileChannel is the file-transfer subchannel of a session.
type FileChannel interface {
	Stat(path string) (fs.FileInfo, error)
	Open(path string) (io.ReadCloser, error)
	WriteFile(path string, data []byte) error
	Remove(path string) error
	Close() error
}

// Session is one authenticated connection, owned by exactly one operation.
type Session interface {
	Files() (FileChannel, error)
	// Exec runs command, writes stdin (if any) as soon as the command has
	// started and closes the input stream.
	Exec(ctx context.Context, command string, stdin []byte) (ExecOutput, error)
	Close() error
}

// Connector opens sessions. Connect returns only once the transport reports
// the session ready, or a *ConnectError.
type Connector interface {
	Connect(ctx context.Context, ep Endpoint, obs Observer) (Session, error)
}
