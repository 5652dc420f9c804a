package service

import (
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// outcome turns the error of a use case into its Result and logs it once. Expected
// rejections keep their own message; faults are reported with fallback.
type outcome struct {
	telemetry observability.Telemetry
	category  observability.Category
	fallback  string
}

func (o outcome) succeed(message string, fields ...zap.Field) domain.Result {
	o.telemetry.Log(message, o.category, observability.SeverityInfo, nil, fields...)
	return domain.Succeeded(message)
}

func (o outcome) fail(err error, fields ...zap.Field) domain.Result {
	derr := errorutil.ToDomainError(err)
	if derr.Expected() {
		o.telemetry.Log(derr.Message, o.category, observability.SeverityWarning, nil, fields...)
		return domain.Failed(derr.Code, derr.Message)
	}

	cause := derr.Err
	if cause == nil {
		cause = derr
	}
	o.telemetry.Log(o.fallback, o.category, observability.SeverityError, cause, fields...)
	return domain.Failed(derr.Code, o.fallback)
}
