package registration

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/regledger/regledger/pkg/driver"
	"github.com/regledger/regledger/pkg/ledger"
	"github.com/regledger/regledger/pkg/telemetry"
)

// Outcome is the business result of a workflow run.
type Outcome string

const (
	// OutcomeSuccess means the workflow applied its change.
	OutcomeSuccess Outcome = "success"

	// OutcomeAlreadyExists means the change was already in place and
	// nothing was written.
	OutcomeAlreadyExists Outcome = "already_exists"

	// OutcomeValidationFailed means a business precondition did not hold
	// and nothing was written.
	OutcomeValidationFailed Outcome = "validation_failed"

	// OutcomeNotFound means a referenced document does not exist.
	OutcomeNotFound Outcome = "not_found"
)

// Changed reports whether the outcome wrote anything.
func (o Outcome) Changed() bool {
	return o == OutcomeSuccess
}

// OutcomeFromError maps a workflow error to an outcome for callers that
// report rather than fail. The second return is false when err is not a
// business outcome and should be handled as a failure.
func OutcomeFromError(err error) (Outcome, bool) {
	switch {
	case err == nil:
		return OutcomeSuccess, true
	case ledger.IsNotFound(err):
		return OutcomeNotFound, true
	case ledger.IsValidation(err):
		return OutcomeValidationFailed, true
	default:
		return "", false
	}
}

var nopTelemetry = sync.OnceValue(telemetry.Nop)

func telemetryFrom(ctx context.Context) *telemetry.Telemetry {
	if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
		return tel
	}
	return nopTelemetry()
}

// workflowRun instruments one workflow invocation.
type workflowRun struct {
	ctx    context.Context
	name   string
	tel    *telemetry.Telemetry
	span   trace.Span
	logger *telemetry.Logger
}

func startWorkflow(ctx context.Context, name, vin string) (context.Context, *workflowRun) {
	tel := telemetryFrom(ctx)
	ctx, span := tel.Tracer.StartWorkflowSpan(ctx, name, vin)
	return ctx, &workflowRun{
		ctx:    ctx,
		name:   name,
		tel:    tel,
		span:   span,
		logger: telemetry.FromContext(ctx).NewComponentLogger("registration").WithWorkflow(name, vin),
	}
}

// finish ends the span and reports the outcome. A successful run is
// reported once its transaction commits, so attempts discarded by a
// conflict are not counted. Failed runs are never retried and are
// reported right away.
func (r *workflowRun) finish(outcome Outcome, err error) {
	defer r.span.End()

	if err != nil {
		if o, ok := OutcomeFromError(err); ok {
			outcome = o
		} else {
			outcome = "error"
		}
		telemetry.RecordError(r.span, err)
	} else {
		telemetry.RecordSuccess(r.span)
	}
	telemetry.SetAttributes(r.span, telemetry.AttrOutcome.String(string(outcome)))

	if err != nil {
		r.report(outcome, err)
		return
	}
	driver.AfterCommit(r.ctx, func() { r.report(outcome, nil) })
}

func (r *workflowRun) report(outcome Outcome, err error) {
	r.tel.Metrics.RecordWorkflowOutcome(r.name, string(outcome))

	entry := r.logger.WithField("outcome", string(outcome))
	if err != nil {
		entry.WithError(err).Debug("Workflow failed")
		return
	}
	entry.Info("Workflow finished")
}
