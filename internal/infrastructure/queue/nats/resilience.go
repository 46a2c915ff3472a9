package nats

import (
	"context"
	"errors"

	"github.com/crowdprices/evidence/internal/core/domain"
	"github.com/crowdprices/evidence/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
)

// classifyDispatchError sorts publish failures for the executor:
// connectivity loss retries and counts against the breaker, everything else
// is a hard failure not worth repeating.
func classifyDispatchError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err), isConnectivityError(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

func isConnectivityError(err error) bool {
	return errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrConnectionDraining) ||
		errors.Is(err, nats.ErrDisconnected)
}

// wrapTemporaryIfNeeded tags retryable dispatch failures as temporary so
// the upload path can log-and-continue instead of failing the request.
func wrapTemporaryIfNeeded(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyDispatchError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "dispatch proof", err)
	}
	return err
}
