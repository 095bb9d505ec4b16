package tracing

import (
	"context"
	"testing"
)

func TestDisabledProviderUsesNoopTracer(t *testing.T) {
	if err := Init(context.Background(), Config{Enabled: false}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if Enabled() {
		t.Fatal("expected disabled config to leave tracing disabled")
	}

	ctx, span := StartSpan(context.Background(), "test.span", AttrCommand.String("evaluate"))
	SetSpanOK(span)
	span.End()
	_ = ctx
}
