package remote

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Progress layout of one read: 0-60 connecting and stat, 60-90 streaming,
// 90-100 completion.
const (
	streamStartPercent = 60
	streamSpanPercent  = 30
	streamCapPercent   = 90
	wholeReadPercent   = 70
	donePercent        = 100
)

// streamPercent maps bytes received to the 60-90 streaming band.
func streamPercent(received, total int64) int {
	if total <= 0 {
		return streamCapPercent
	}
	p := streamStartPercent + int(float64(received)/float64(total)*streamSpanPercent)
	if p > streamCapPercent {
		p = streamCapPercent
	}
	return p
}

// speedLabel renders bytes over elapsed as KB/s with one decimal.
func speedLabel(bytes int64, elapsed time.Duration) string {
	secs := elapsed.Seconds()
	if secs < 0.001 {
		secs = 0.001
	}
	return fmt.Sprintf("%.1f KB/s", float64(bytes)/1024/secs)
}

// formatSize renders a byte count for status text.
func formatSize(n int64) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	case n >= 1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// operation fans events out to the observer and mirrors log lines into zap.
// It keeps progress non-decreasing within one transfer.
type operation struct {
	obs     Observer
	logger  *zap.Logger
	percent int
}

func newOperation(obs Observer, logger *zap.Logger) *operation {
	if obs == nil {
		obs = Discard
	}
	return &operation{obs: obs, logger: logger}
}

func (op *operation) progress(percent int, statusText, speed string) {
	if percent < op.percent {
		percent = op.percent
	}
	op.percent = percent
	op.obs.OnProgress(ProgressEvent{Progress: percent, Status: statusText, Speed: speed})
}

func (op *operation) OnProgress(ev ProgressEvent) {
	op.progress(ev.Progress, ev.Status, ev.Speed)
}

func (op *operation) OnLog(ev LogEvent) {
	op.log(ev.Type, ev.Message)
}

func (op *operation) log(t LogType, msg string) {
	switch t {
	case LogError:
		op.logger.Error(msg)
	case LogWarning:
		op.logger.Warn(msg)
	default:
		op.logger.Info(msg, zap.String("type", string(t)))
	}
	op.obs.OnLog(LogEvent{Message: msg, Type: t})
}

func (op *operation) info(msg string)    { op.log(LogInfo, msg) }
func (op *operation) success(msg string) { op.log(LogSuccess, msg) }
func (op *operation) warning(msg string) { op.log(LogWarning, msg) }
func (op *operation) failure(msg string) { op.log(LogError, msg) }
