// Package processor is the boundary stub for the encrypted-envelope
// processing pipeline the chatws controller's PUT /api/v1/message handling
// calls into (spec.md section 4.E). The real pipeline — decryption,
// session-ratchet bookkeeping, delivery to application logic — is out of
// scope per spec.md section 1; this implementation logs the envelope and
// always acks, which is enough to exercise the controller's server-request
// handling end to end.
package processor

import (
	"context"

	"chatconn/internal/applog"
	"chatconn/internal/chatws"
)

// Processor is a minimal concrete chatws.MessageProcessor.
type Processor struct {
	logger *applog.Logger
}

func New(logger *applog.Logger) *Processor {
	return &Processor{logger: logger}
}

func (p *Processor) Process(ctx context.Context, source chatws.EnvelopeSource, serverTimestamp uint64, envelope []byte) chatws.ProcessResult {
	if p.logger != nil {
		p.logger.Infof("message", "received %d-byte envelope (source=%d)", len(envelope), source)
	}
	return chatws.ProcessResult{ShouldAck: true}
}
