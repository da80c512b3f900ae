package pipeline

import (
	"chorus/internal/config"
	"chorus/internal/services"
)

// Outcome is how a job run ended. It is the single input to the
// acknowledgment decision, so every error path must collapse into exactly
// one of these.
type Outcome int

const (
	// OutcomeCompleted means the stream was published; the message is
	// consumed.
	OutcomeCompleted Outcome = iota
	// OutcomeFailedRetryable means a transient fault stopped the run;
	// redelivery may succeed.
	OutcomeFailedRetryable
	// OutcomeFailedPermanent means the input itself can never succeed;
	// the message is consumed to stop a poison loop.
	OutcomeFailedPermanent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailedRetryable:
		return "failed_retryable"
	case OutcomeFailedPermanent:
		return "failed_permanent"
	default:
		return "unknown"
	}
}

// OutcomeForError classifies a run error. Rejected inputs and admission
// failures are permanent. Everything else, including errors nothing
// tagged, is treated as transient and left to queue redelivery.
func OutcomeForError(err error) Outcome {
	if err == nil {
		return OutcomeCompleted
	}
	switch services.Kind(err) {
	case "input_rejected", "admission_rejected":
		return OutcomeFailedPermanent
	default:
		return OutcomeFailedRetryable
	}
}

// AckAction is what the poll loop does with the delivery after a run.
type AckAction int

const (
	// AckDelete consumes the message.
	AckDelete AckAction = iota
	// AckNone leaves the message for natural redelivery after the
	// visibility window.
	AckNone
	// AckRequeue sends a delayed copy and deletes the original.
	AckRequeue
)

// AckFor maps a run outcome to the delivery action. earlyAcked reports
// that the message was already deleted mid-run, in which case there is
// nothing left to act on.
func AckFor(outcome Outcome, retryPolicy string, earlyAcked bool) AckAction {
	if earlyAcked {
		return AckNone
	}
	switch outcome {
	case OutcomeCompleted, OutcomeFailedPermanent:
		return AckDelete
	default:
		if retryPolicy == config.RetryPolicyRequeue {
			return AckRequeue
		}
		return AckNone
	}
}
