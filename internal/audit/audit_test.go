package audit

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestZapSink_RecordDoesNotPanic(t *testing.T) {
	sink := NewZapSink(nil)
	sink.Record(PaymentEvent{Type: EventVerifyFailure, Network: "base-sepolia", Reason: "invalid_signature", Duration: time.Millisecond})
	sink.Record(PaymentEvent{Type: EventSettleSuccess, Network: "base-sepolia", Transaction: "0xabc", Duration: time.Second})
}

func TestMetricsSink_CountsErrorsByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewMetricsSink(reg)

	sink.Record(PaymentEvent{Type: EventSettleFailure, Network: "base-sepolia", Reason: "invalid_commitment", Duration: time.Millisecond})
	sink.Record(PaymentEvent{Type: EventSettleFailure, Network: "base-sepolia", Reason: "invalid_commitment", Duration: time.Millisecond})

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	var found *dto.Metric
	for _, mf := range metrics {
		if mf.GetName() != "x402f_errors_total" {
			continue
		}
		for _, m := range mf.Metric {
			found = m
		}
	}
	if found == nil {
		t.Fatal("expected x402f_errors_total to have been recorded")
	}
	if found.Counter.GetValue() != 2 {
		t.Errorf("expected counter value 2, got %v", found.Counter.GetValue())
	}
}

func TestMultiSink_FansOutToAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsSink(reg)
	multi := MultiSink{NewZapSink(nil), m}

	multi.Record(PaymentEvent{Type: EventVerifySuccess, Network: "base-sepolia", Duration: time.Millisecond})

	metrics, _ := reg.Gather()
	found := false
	for _, mf := range metrics {
		if mf.GetName() == "x402f_verify_duration_seconds" {
			found = true
		}
	}
	if !found {
		t.Error("expected the metrics sink in the fan-out to have recorded the event")
	}
}
