package frame

// StartInterruptionFrame signals that new user speech arrived while the
// assistant is still responding. It is delivered out-of-band; every
// downstream stage must immediately abandon partially produced output for
// the current turn (flush buffers, stop in-flight synthesis) while leaving
// the task running for the next turn.
type StartInterruptionFrame struct {
	systemMarker
}

func (StartInterruptionFrame) Kind() string { return "StartInterruptionFrame" }

// StopInterruptionFrame marks resumption of normal flow after an
// interruption.
type StopInterruptionFrame struct {
	systemMarker
}

func (StopInterruptionFrame) Kind() string { return "StopInterruptionFrame" }

// CancelFrame aborts the whole task. Unlike [EndFrame] it does not wait for
// queued data to flush; stages drop pending work and release resources.
type CancelFrame struct {
	systemMarker
}

func (CancelFrame) Kind() string { return "CancelFrame" }

// ErrorFrame reports an unrecoverable error inside a stage. It is pushed
// downstream so the transport can notify the external peer instead of
// crashing the session. A fatal error additionally terminates the task.
type ErrorFrame struct {
	systemMarker

	Err   error
	Fatal bool
}

func (ErrorFrame) Kind() string { return "ErrorFrame" }

func (f ErrorFrame) Error() string {
	if f.Err == nil {
		return "unknown pipeline error"
	}
	return f.Err.Error()
}
