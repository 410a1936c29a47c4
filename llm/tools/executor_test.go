package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/pptagent/types"
)

func echoTool(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}
	return Message("echo: " + in.Text), nil
}

func newRegistry(t *testing.T) *DefaultRegistry {
	t.Helper()
	r := NewDefaultRegistry(zap.NewNop())
	require.NoError(t, r.Register("echo", echoTool, Metadata{
		Schema: types.ToolSchema{
			Description: "Echo text",
			Parameters:  ObjectSchema(map[string]Param{"text": {Type: "string"}}, "text"),
		},
	}))
	return r
}

func TestRegistry_RegisterAndList(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.Register("alpha", echoTool, Metadata{}))

	assert.True(t, r.Has("echo"))
	schemas := r.List()
	require.Len(t, schemas, 2)
	assert.Equal(t, "alpha", schemas[0].Name)
	assert.Equal(t, "echo", schemas[1].Name)

	_, meta, err := r.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, meta.Timeout)

	assert.Error(t, r.Register("echo", echoTool, Metadata{}))
	assert.Error(t, r.Register("x", echoTool, Metadata{Schema: types.ToolSchema{Name: "y"}}))
	assert.Error(t, r.Register("nil", nil, Metadata{}))
	assert.Error(t, r.Register("bad", echoTool, Metadata{Schema: types.ToolSchema{Parameters: json.RawMessage(`{`)}}))

	require.NoError(t, r.Unregister("alpha"))
	assert.False(t, r.Has("alpha"))
	assert.Error(t, r.Unregister("alpha"))
}

func TestObjectSchema(t *testing.T) {
	raw := ObjectSchema(map[string]Param{
		"slide_number": {Type: "integer", Description: "1-indexed", Minimum: IntMin(1)},
	}, "slide_number")

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "object", got["type"])
	assert.Equal(t, []any{"slide_number"}, got["required"])
	props := got["properties"].(map[string]any)["slide_number"].(map[string]any)
	assert.Equal(t, "integer", props["type"])
	assert.EqualValues(t, 1, props["minimum"])

	empty := ObjectSchema(nil)
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(empty))
}

func TestExecutor_ExecuteOne(t *testing.T) {
	exec := NewDefaultExecutor(newRegistry(t), nil)

	res := exec.ExecuteOne(context.Background(), types.ToolCall{
		ID: "call_1", Name: "echo", Arguments: json.RawMessage(`{"text":"hi"}`),
	})
	require.False(t, res.IsError(), res.Error)
	assert.Equal(t, "call_1", res.ToolCallID)
	assert.Equal(t, "echo: hi", res.Output())

	res = exec.ExecuteOne(context.Background(), types.ToolCall{Name: "missing"})
	assert.Contains(t, res.Error, "tool not found")

	res = exec.ExecuteOne(context.Background(), types.ToolCall{Name: "echo", Arguments: json.RawMessage(`{bad`)})
	assert.Contains(t, res.Error, "invalid arguments")
}

func TestExecutor_ToolError(t *testing.T) {
	r := NewDefaultRegistry(nil)
	require.NoError(t, r.Register("fail", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("publish failed")
	}, Metadata{}))

	res := NewDefaultExecutor(r, nil).ExecuteOne(context.Background(), types.ToolCall{Name: "fail"})
	assert.Equal(t, "publish failed", res.Error)
	assert.Equal(t, "Error: publish failed", res.Output())
}

func TestExecutor_Timeout(t *testing.T) {
	r := NewDefaultRegistry(nil)
	require.NoError(t, r.Register("slow", func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return Message("late"), nil
	}, Metadata{Timeout: 20 * time.Millisecond}))

	res := NewDefaultExecutor(r, nil).ExecuteOne(context.Background(), types.ToolCall{Name: "slow"})
	assert.Contains(t, res.Error, "execution timeout")
}

func TestExecutor_RateLimit(t *testing.T) {
	r := NewDefaultRegistry(nil)
	require.NoError(t, r.Register("limited", echoTool, Metadata{
		RateLimit: &RateLimit{MaxCalls: 2, Window: time.Hour},
	}))
	exec := NewDefaultExecutor(r, nil)
	call := types.ToolCall{Name: "limited", Arguments: json.RawMessage(`{"text":"x"}`)}

	assert.False(t, exec.ExecuteOne(context.Background(), call).IsError())
	assert.False(t, exec.ExecuteOne(context.Background(), call).IsError())
	assert.Equal(t, "rate limit exceeded", exec.ExecuteOne(context.Background(), call).Error)
}

func TestExecutor_ExecutePreservesOrder(t *testing.T) {
	exec := NewDefaultExecutor(newRegistry(t), nil)
	calls := []types.ToolCall{
		{ID: "a", Name: "echo", Arguments: json.RawMessage(`{"text":"1"}`)},
		{ID: "b", Name: "missing"},
		{ID: "c", Name: "echo", Arguments: json.RawMessage(`{"text":"3"}`)},
	}
	results := exec.Execute(context.Background(), calls)
	require.Len(t, results, 3)
	assert.Equal(t, "echo: 1", results[0].Output())
	assert.True(t, results[1].IsError())
	assert.Equal(t, "c", results[2].ToolCallID)
}
