package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestInitNone(t *testing.T) {
	tp, shutdown, err := Init(context.Background(), "test", "none", nil)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	_, span := tp.Tracer("t").Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Fatal("noop provider produced a recording span")
	}
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitStdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	tp, shutdown, err := Init(context.Background(), "taskschedd-test", "stdout", &buf)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	_, span := tp.Tracer("t").Start(context.Background(), "exported-span")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "exported-span") || !strings.Contains(out, "taskschedd-test") {
		t.Fatalf("exporter output missing span or service: %s", out)
	}
}

func TestInitUnknownExporter(t *testing.T) {
	if _, _, err := Init(context.Background(), "test", "zipkin", nil); err == nil {
		t.Fatal("expected error")
	}
}
