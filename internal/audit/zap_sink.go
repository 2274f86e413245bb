package audit

import "go.uber.org/zap"

// ZapSink renders every PaymentEvent as a structured log line.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink builds a log-backed Sink. log may be nil, in which case events
// are discarded (useful in tests that only care about the metrics sink).
func NewZapSink(log *zap.Logger) *ZapSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapSink{log: log}
}

func (s *ZapSink) Record(e PaymentEvent) {
	fields := []zap.Field{
		zap.String("event", string(e.Type)),
		zap.String("request_id", e.RequestID),
		zap.String("network", e.Network),
		zap.String("scheme", e.Scheme),
		zap.String("payer", e.Payer),
		zap.Duration("duration", e.Duration),
	}
	if e.Hook != "" {
		fields = append(fields, zap.String("hook", e.Hook))
	}
	if e.State != "" {
		fields = append(fields, zap.String("state", e.State))
	}
	if e.Transaction != "" {
		fields = append(fields, zap.String("transaction", e.Transaction))
	}
	for k, v := range e.Metadata {
		fields = append(fields, zap.Any(k, v))
	}

	switch e.Type {
	case EventVerifyFailure, EventSettleFailure:
		s.log.Warn("payment event", append(fields, zap.String("reason", e.Reason))...)
	default:
		s.log.Info("payment event", fields...)
	}
}
