package tracer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/config"
)

func TestSetupDisabledInstallsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{})
	require.NoError(t, err)
	defer shutdown(context.Background())

	_, span := StartSpan(context.Background(), "router.attempt")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
}

func TestSetupRejectsUnknownExporter(t *testing.T) {
	_, err := Setup(context.Background(), config.TracingConfig{Enabled: true, Exporter: "zipkin"})
	assert.Error(t, err)
}

func TestSetupNoopExporter(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{Enabled: true, Exporter: "noop"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSpanHelpers(t *testing.T) {
	_, span := StartSpan(context.Background(), "test")
	defer span.End()

	span.SetAttributes(StringAttr("provider", "openai"), IntAttr("deltas", 3))
	RecordError(span, errors.New("boom"))
	SetOK(span)

	assert.Equal(t, "provider", string(StringAttr("provider", "openai").Key))
	assert.Equal(t, int64(3), IntAttr("deltas", 3).Value.AsInt64())
}
