// Package notify implements the section 6 "Notification transport
// (external)" contract with a logging-only backend, since no example repo
// in the retrieval pack carries a desktop notification library. Failures
// here are explicitly non-fatal per spec and are logged only.
package notify

import (
	"go.uber.org/zap"

	"github.com/heytcass/jasper/internal/model"
)

// Method selects how (or whether) a notification is dispatched, matching
// the "method: auto|bus|fallback" config knob from section 6.
type Method string

const (
	MethodAuto     Method = "auto"
	MethodBus      Method = "bus"
	MethodFallback Method = "fallback"
)

// Notifier dispatches a desktop notification for a committed insight.
type Notifier interface {
	Notify(insight model.Insight) error
}

// LoggingNotifier is the only concrete Notifier this repo ships: it logs
// what it would have sent instead of calling an actual desktop notification
// bus. A real bus integration is an external contract per section 6.
type LoggingNotifier struct {
	method Method
	log    *zap.Logger
}

func NewLoggingNotifier(method Method, log *zap.Logger) *LoggingNotifier {
	return &LoggingNotifier{method: method, log: log}
}

func (n *LoggingNotifier) Notify(insight model.Insight) error {
	if n.log != nil {
		n.log.Info("notification dispatched",
			zap.String("method", string(n.method)),
			zap.String("app_name", "jasper"),
			zap.String("summary", insight.Preview),
			zap.String("body", insight.Body),
			zap.Int("urgency", int(insight.Urgency)),
		)
	}
	return nil
}
