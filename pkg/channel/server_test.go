package channel_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/MatthiasKunnen/applock/pkg/applock"
	"github.com/MatthiasKunnen/applock/pkg/channel"
	"github.com/MatthiasKunnen/applock/pkg/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/mobile/event/lifecycle"
)

type inlineExecutor struct {
	err error
}

func (e inlineExecutor) Do(_ context.Context, f func()) error {
	if e.err != nil {
		return e.err
	}
	f()
	return nil
}

type call struct {
	method string
	args   command.Args
}

type fakeHandler struct {
	calls  []call
	result any
	err    error
}

func (h *fakeHandler) Handle(method string, args command.Args) (any, error) {
	h.calls = append(h.calls, call{method: method, args: args})
	return h.result, h.err
}

type stageLog []lifecycle.Stage

func (l *stageLog) SetStage(stage lifecycle.Stage) {
	*l = append(*l, stage)
}

func serve(t *testing.T, input string, exec channel.Executor, handler channel.Handler, stages channel.StageSetter) []string {
	t.Helper()
	var out bytes.Buffer
	s := channel.NewServer(strings.NewReader(input), channel.NewWriter(&out), exec, handler, stages, nil)
	require.NoError(t, s.Serve(context.Background()))

	output := strings.TrimSpace(out.String())
	if output == "" {
		return nil
	}
	return strings.Split(output, "\n")
}

func TestServerCommand(t *testing.T) {
	handler := &fakeHandler{}
	lines := serve(t,
		`{"id":1,"method":"setBackgroundTimeout","args":{"timeout":5}}`+"\n",
		inlineExecutor{}, handler, nil,
	)

	require.Len(t, handler.calls, 1)
	assert.Equal(t, "setBackgroundTimeout", handler.calls[0].method)
	assert.Equal(t, command.Args{"timeout": 5.0}, handler.calls[0].args)
	assert.Equal(t, []string{`{"id":1,"result":null}`}, lines)
}

func TestServerResults(t *testing.T) {
	tests := []struct {
		name    string
		handler *fakeHandler
		want    string
	}{
		{
			name:    "value",
			handler: &fakeHandler{result: "linux amd64"},
			want:    `{"id":"a","result":"linux amd64"}`,
		},
		{
			name:    "not implemented",
			handler: &fakeHandler{result: command.NotImplemented},
			want:    `{"id":"a","notImplemented":true}`,
		},
		{
			name:    "invalid argument",
			handler: &fakeHandler{err: command.ErrInvalidArgument.WithMessagef("enabled is required")},
			want:    `{"id":"a","error":{"code":"INVALID_ARGUMENT","message":"enabled is required"}}`,
		},
		{
			name:    "uncoded error",
			handler: &fakeHandler{err: errors.New("boom")},
			want:    `{"id":"a","error":{"code":"INTERNAL","message":"boom"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := serve(t, `{"id":"a","method":"x"}`, inlineExecutor{}, tt.handler, nil)
			assert.Equal(t, []string{tt.want}, lines)
		})
	}
}

func TestServerWithoutIDDoesNotRespond(t *testing.T) {
	handler := &fakeHandler{err: errors.New("boom")}
	lines := serve(t, `{"method":"onUserInteraction"}`, inlineExecutor{}, handler, nil)

	assert.Len(t, handler.calls, 1)
	assert.Empty(t, lines)
}

func TestServerLifecycle(t *testing.T) {
	var stages stageLog
	lines := serve(t,
		`{"lifecycle":"visible"}`+"\n"+`{"id":2,"lifecycle":"alive"}`+"\n"+`{"id":3,"lifecycle":"paused"}`,
		inlineExecutor{}, &fakeHandler{}, &stages,
	)

	assert.Equal(t, stageLog{lifecycle.StageVisible, lifecycle.StageAlive}, stages)
	require.Len(t, lines, 2)
	assert.Equal(t, `{"id":2,"result":null}`, lines[0])
	assert.Contains(t, lines[1], `"code":"INVALID_REQUEST"`)
}

func TestServerInvalidRequests(t *testing.T) {
	lines := serve(t, "not json\n\n{\"id\":4}\n", inlineExecutor{}, &fakeHandler{}, nil)

	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], `{"id":null,"error":{"code":"INVALID_REQUEST"`), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], `{"id":4,"error":{"code":"INVALID_REQUEST"`), lines[1])
}

func TestServerStoppedExecutor(t *testing.T) {
	lines := serve(t, `{"id":5,"method":"x"}`, inlineExecutor{err: errors.New("loop stopped")}, &fakeHandler{}, nil)
	assert.Equal(t, []string{`{"id":5,"error":{"code":"UNAVAILABLE","message":"loop stopped"}}`}, lines)
}

func TestEmitter(t *testing.T) {
	var out bytes.Buffer
	w := channel.NewWriter(&out)
	e := channel.NewEmitter(w)

	require.NoError(t, e.Emit(applock.Event{Name: applock.EventAppLocked, Reason: applock.ReasonTouchTimeout}))
	require.NoError(t, e.Emit(applock.Event{Name: applock.EventEnterForeground}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var locked, foreground map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &locked))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &foreground))

	assert.Equal(t, "onAppLocked", locked["event"])
	assert.Equal(t, map[string]any{"reason": "touchTimeout"}, locked["args"])
	assert.Equal(t, "onEnterForeground", foreground["event"])
	assert.NotContains(t, foreground, "args")
	assert.NotEmpty(t, locked["id"])
	assert.NotEqual(t, locked["id"], foreground["id"])

	w.Close()
	assert.ErrorIs(t, e.Emit(applock.Event{Name: applock.EventAppUnlocked}), channel.ErrWriterClosed)
}
