package chatws

import "context"

// EnvelopeSource tells the message processor which socket an envelope
// arrived on, since unidentified delivers the same PUT /api/v1/message
// shape but for sealed-sender traffic (spec section 9's open question).
type EnvelopeSource int

const (
	EnvelopeSourceWebsocketIdentified EnvelopeSource = iota
	EnvelopeSourceWebsocketUnidentified
)

// ProcessResult tells the controller whether to ACK the envelope.
type ProcessResult struct {
	ShouldAck bool
	Err       error
}

// MessageProcessor is the external encrypted-envelope processing pipeline
// (out of scope per spec section 1). The controller hands it every
// PUT /api/v1/message body plus the server-delivered timestamp. Each call
// runs on its own goroutine, so envelopes are not processed one at a time
// or in arrival order, and the ACK is sent from that goroutine rather than
// from the controller's queue.
type MessageProcessor interface {
	Process(ctx context.Context, source EnvelopeSource, serverTimestamp uint64, envelope []byte) ProcessResult
}

// RegistrationManager is the external account/registration subsystem (out
// of scope per spec section 1). The controller calls it to check whether
// the app is registered and to report deregistration after an HTTP 403 on
// the identified socket (spec section 4.E).
type RegistrationManager interface {
	IsRegistered() bool
	SetIsDeregistered(v bool)
}

// OutageDetector is told about connection successes and failures, but never
// about individual request errors (spec section 7's propagation policy).
type OutageDetector interface {
	ReportConnectionSuccess(kind ConnectionKind)
	ReportConnectionFailure(kind ConnectionKind, err error)
}
