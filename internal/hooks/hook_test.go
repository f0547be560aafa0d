package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/GriffinCanCode/AgentOS/apphost/internal/infrastructure/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSyncHookCallsInRegistrationOrder(t *testing.T) {
	hook := NewSyncHook[string]("afterMount")
	var calls []string

	hook.Tap("first", func(s string) { calls = append(calls, "first:"+s) })
	hook.Tap("second", func(s string) { calls = append(calls, "second:"+s) })
	hook.Tap("third", func(s string) { calls = append(calls, "third:"+s) })

	hook.Call("app")

	assert.Equal(t, []string{"first:app", "second:app", "third:app"}, calls)
	assert.Equal(t, "afterMount", hook.Name())
	assert.Equal(t, []string{"first", "second", "third"}, hook.Plugins())
}

func TestSyncHookUntap(t *testing.T) {
	hook := NewSyncHook[int]("h")
	count := 0
	hook.Tap("a", func(int) { count++ })
	hook.Tap("b", func(int) { count += 10 })
	hook.Tap("a", func(int) { count++ })

	assert.Equal(t, 2, hook.Untap("a"))
	hook.Call(0)
	assert.Equal(t, 10, count)
	assert.Equal(t, 1, hook.Len())
}

func TestAsyncHookStopSkipsRemaining(t *testing.T) {
	hook := NewAsyncHook[string]("beforeLoad")
	var calls []string

	hook.Tap("a", func(_ context.Context, name string) (Outcome, error) {
		calls = append(calls, "a")
		return Continue, nil
	})
	hook.Tap("b", func(_ context.Context, name string) (Outcome, error) {
		calls = append(calls, "b")
		if name == "X" {
			return Stop, nil
		}
		return Continue, nil
	})
	hook.Tap("c", func(_ context.Context, name string) (Outcome, error) {
		calls = append(calls, "c")
		return Continue, nil
	})

	outcome, err := hook.Promise(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, Stop, outcome)
	assert.Equal(t, []string{"a", "b"}, calls)

	calls = nil
	outcome, err = hook.Promise(context.Background(), "Y")
	require.NoError(t, err)
	assert.Equal(t, Continue, outcome)
	assert.Equal(t, []string{"a", "b", "c"}, calls)
}

func TestAsyncHookErrorHalts(t *testing.T) {
	hook := NewAsyncHook[int]("h")
	boom := errors.New("boom")
	reached := false

	hook.Tap("fail", func(context.Context, int) (Outcome, error) { return Continue, boom })
	hook.Tap("after", func(context.Context, int) (Outcome, error) {
		reached = true
		return Continue, nil
	})

	outcome, err := hook.Promise(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Stop, outcome)
	assert.False(t, reached)
}

func TestAsyncHookCanceledContext(t *testing.T) {
	hook := NewAsyncHook[int]("h")
	hook.Tap("a", func(context.Context, int) (Outcome, error) { return Continue, nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := hook.Promise(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Stop, outcome)
}

func TestWaterfallHookThreadsValue(t *testing.T) {
	hook := NewWaterfallHook[int]("loaded")
	hook.Tap("double", func(_ context.Context, v int) (int, error) { return v * 2, nil })
	hook.Tap("inc", func(_ context.Context, v int) (int, error) { return v + 1, nil })

	out, err := hook.Emit(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 11, out)

	boom := errors.New("boom")
	hook.Tap("fail", func(_ context.Context, v int) (int, error) { return 0, boom })
	out, err = hook.Emit(context.Background(), 5)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 11, out)
}

type testPlugin struct{ name string }

func TestRegistryRejectsSamePluginTwice(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	reg := NewRegistry[testPlugin](logging.FromZap(zap.New(core), true))

	p1 := &testPlugin{name: "vm"}
	p2 := &testPlugin{name: "vm"}

	assert.True(t, reg.Add("vm", p1))
	assert.False(t, reg.Add("vm", p1))
	assert.True(t, reg.Add("vm", p2), "a distinct object with the same name is a different plugin")
	assert.False(t, reg.Add("nil", nil))

	assert.Equal(t, []*testPlugin{p1, p2}, reg.List())
	assert.Equal(t, []string{"vm", "vm"}, reg.Names())
	assert.True(t, reg.Has(p1))

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).FilterMessage("plugin already installed").All()
	assert.Len(t, warnings, 1)
}
