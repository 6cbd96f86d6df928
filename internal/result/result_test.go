package result

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeAndFields(t *testing.T) {
	tests := []struct {
		name                             string
		code                             Code
		level, summary, module, describe uint32
		failed                           bool
	}{
		{"success", Success, 0, 0, 0, 0, false},
		{"service not registered", ServiceNotRegistered, LevelTemporary, SummaryWouldBlock, ModuleSRV, 1, true},
		{"timeout", Timeout, LevelInfo, SummaryCanceled, ModuleOS, 0x3FE, false},
		{"invalid command", InvalidCommand, LevelPermanent, SummaryWrongArg, ModuleOS, 0x2F, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.level, tt.code.Level())
			assert.Equal(t, tt.summary, tt.code.Summary())
			assert.Equal(t, tt.module, tt.code.Module())
			assert.Equal(t, tt.describe, tt.code.Description())
			assert.Equal(t, tt.failed, tt.code.Failed())
			assert.Equal(t, !tt.failed, tt.code.Succeeded())
		})
	}
}

func TestKnownCodeValues(t *testing.T) {
	assert.Equal(t, Code(0xD0406401), ServiceNotRegistered)
	assert.Equal(t, Code(0xD88007FA), NotFound)
	assert.Equal(t, "0xD0406401", ServiceNotRegistered.String())
}

func TestTransportKeepsKernelCode(t *testing.T) {
	err := Transport("GetServiceHandle", fmt.Errorf("send: %w", SessionClosed))
	assert.Equal(t, KindTransport, err.Kind)
	assert.Equal(t, SessionClosed, err.Code)
	assert.True(t, errors.Is(err, SessionClosed))

	plain := Transport("GetServiceHandle", errors.New("connection reset"))
	assert.Equal(t, Unavailable, plain.Code)
	assert.Contains(t, plain.Error(), "connection reset")
}

func TestInitTakesInnerCode(t *testing.T) {
	tests := []struct {
		name  string
		inner error
		want  Code
	}{
		{"protocol", Protocol("RegisterClient", AccessDenied), AccessDenied},
		{"kernel code", NotFound, NotFound},
		{"opaque", errors.New("boom"), Unavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Init("Init", tt.inner)
			assert.Equal(t, tt.want, CodeOf(err))
			assert.True(t, IsKind(err, KindInit))
			assert.ErrorIs(t, err, tt.inner)
		})
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Success, CodeOf(nil))
	assert.Equal(t, AccessDenied, CodeOf(Protocol("op", AccessDenied)))
	assert.Equal(t, Timeout, CodeOf(fmt.Errorf("wait: %w", Timeout)))
	assert.Equal(t, Unavailable, CodeOf(errors.New("unknown")))
}

func TestIsKindLooksAtOutermostError(t *testing.T) {
	inner := Protocol("RegisterClient", AccessDenied)
	err := Init("Init", inner)

	assert.True(t, IsKind(err, KindInit))
	assert.False(t, IsKind(err, KindProtocol))
	assert.False(t, IsKind(errors.New("plain"), KindTransport))
}

func TestErrorMessage(t *testing.T) {
	err := Protocol("UnregisterService", AccessDenied)
	assert.Equal(t, "UnregisterService: protocol failure 0xD9006407", err.Error())

	wrapped := Transport("SendSyncRequest", fmt.Errorf("dial: %w", io.EOF))
	assert.Equal(t, "SendSyncRequest: transport failure "+Unavailable.String()+": dial: EOF", wrapped.Error())
	assert.Equal(t, "init", KindInit.String())
	assert.Equal(t, "unknown", Kind(9).String())
}
