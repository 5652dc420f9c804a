package observability

import (
	"go.uber.org/zap"
)

// Severity classifies a telemetry event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Category groups telemetry events by subsystem.
type Category string

const (
	CategoryAuth   Category = "auth"
	CategoryTicket Category = "ticket"
	CategoryCache  Category = "cache"
	CategoryNotify Category = "notification"
)

// Telemetry is the sink use cases report to. Implementations never panic and never block
// the caller on delivery.
type Telemetry interface {
	Log(message string, category Category, severity Severity, cause error, fields ...zap.Field)
}

// ZapTelemetry writes events to a zap logger and counts them.
type ZapTelemetry struct {
	logger  *zap.Logger
	metrics *Metrics
}

// NewTelemetry builds a Telemetry backed by logger. metrics may be nil.
func NewTelemetry(logger *zap.Logger, metrics *Metrics) *ZapTelemetry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapTelemetry{logger: logger, metrics: metrics}
}

// Log records one event.
func (t *ZapTelemetry) Log(message string, category Category, severity Severity, cause error, fields ...zap.Field) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("telemetry sink panicked", zap.Any("panic", r))
		}
	}()

	all := make([]zap.Field, 0, len(fields)+2)
	all = append(all, zap.String("category", string(category)))
	if cause != nil {
		all = append(all, zap.Error(cause))
	}
	all = append(all, fields...)

	switch severity {
	case SeverityError:
		t.logger.Error(message, all...)
	case SeverityWarning:
		t.logger.Warn(message, all...)
	default:
		t.logger.Info(message, all...)
	}
	t.metrics.RecordEvent(category, severity)
}

// Nop returns a Telemetry that discards everything.
func Nop() Telemetry {
	return NewTelemetry(zap.NewNop(), nil)
}
