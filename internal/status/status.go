// Package status holds the result value shared by every local and remote
// operation, and the classification of why an operation failed.
package status

import (
	"errors"
	"io/fs"
	"strings"
)

// Code is the 3-valued outcome of an operation. Anything below Success is a
// failure of some kind.
type Code int

const (
	Unset   Code = 0
	Failure Code = 2
	Success Code = 3
)

// String representation for logging
func (c Code) String() string {
	switch c {
	case Unset:
		return "unset"
	case Failure:
		return "failure"
	case Success:
		return "success"
	default:
		return "unknown"
	}
}

// Kind classifies a failure so callers can branch without reading prose.
type Kind int

const (
	KindNone Kind = iota
	KindPermission
	KindConnectivity
	KindProtocol
	KindOperator
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindPermission:
		return "permission"
	case KindConnectivity:
		return "connectivity"
	case KindProtocol:
		return "protocol"
	case KindOperator:
		return "operator"
	default:
		return "unknown"
	}
}

// MarshalText lets Kind travel to the frontend as a readable string.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Result is the boundary shape of every gateway, engine and executor call.
type Result struct {
	Code    Code   `json:"code"`
	Msg     string `json:"msg"`
	Content string `json:"content"`
	Output  string `json:"output,omitempty"`
	Kind    Kind   `json:"kind"`
}

// OK reports whether the described effect happened.
func (r Result) OK() bool {
	return r.Code == Success
}

// Ok builds a success result.
func Ok(msg string) Result {
	return Result{Code: Success, Msg: msg, Kind: KindNone}
}

// WithContent builds a success result carrying file content.
func WithContent(content string) Result {
	return Result{Code: Success, Msg: "ok", Content: content, Kind: KindNone}
}

// WithOutput builds a success result carrying command output.
func WithOutput(output string) Result {
	return Result{Code: Success, Msg: output, Output: output, Kind: KindNone}
}

// Fail builds a failure result of the given kind.
func Fail(kind Kind, msg string) Result {
	if kind == KindNone {
		kind = KindUnknown
	}
	return Result{Code: Failure, Msg: msg, Kind: kind}
}

// FromError builds a failure result, classifying err.
func FromError(prefix string, err error) Result {
	msg := err.Error()
	if prefix != "" {
		msg = prefix + ": " + msg
	}
	return Fail(KindOf(err), msg)
}

// KindOf classifies a Go error. Typed permission errors win over the phrase
// table, which only covers errors that arrive as text.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, fs.ErrPermission) {
		return KindPermission
	}
	var classified interface{ Kind() Kind }
	if errors.As(err, &classified) {
		return classified.Kind()
	}
	return Classify(err.Error())
}

// permissionPhrases is the canonical set of texts that mean "retry with
// privileges". Lower-cased before matching.
var permissionPhrases = []string{
	"permission denied",
	"operation not permitted",
	"access denied",
	"access is denied",
	"not writable",
	"not readable",
	"eacces",
	"eperm",
	"a terminal is required",
	"a password is required",
	"no tty present",
	"must be run as root",
	"must be root",
	"authentication is required",
	"interactive authentication required",
	"不可写",
	"不可读",
	"权限不够",
	"权限不足",
	"拒绝访问",
}

var connectivityPhrases = []string{
	"connection refused",
	"no route to host",
	"i/o timeout",
	"timed out",
	"unable to authenticate",
	"handshake failed",
	"no such host",
	"network is unreachable",
	"connection reset",
}

// Classify inspects free-form error or command output text.
func Classify(text string) Kind {
	if text == "" {
		return KindUnknown
	}
	lower := strings.ToLower(text)
	for _, phrase := range permissionPhrases {
		if strings.Contains(lower, phrase) {
			return KindPermission
		}
	}
	for _, phrase := range connectivityPhrases {
		if strings.Contains(lower, phrase) {
			return KindConnectivity
		}
	}
	return KindUnknown
}

// IsPermission reports whether a result should open the secret prompt.
func IsPermission(r Result) bool {
	return r.Code != Success && r.Kind == KindPermission
}
