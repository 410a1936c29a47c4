package types

import (
	"encoding/json"
	"testing"
)

func TestToolResult_Output(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   ToolResult
		want string
	}{
		{"wrapped", ToolResult{Result: json.RawMessage(`{"result":"Now on slide 2 of 5."}`)}, "Now on slide 2 of 5."},
		{"raw object", ToolResult{Result: json.RawMessage(`{"ok":true}`)}, `{"ok":true}`},
		{"error", ToolResult{Error: "timeout"}, "Error: timeout"},
	}
	for _, tc := range cases {
		if got := tc.in.Output(); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
	if !(ToolResult{Error: "x"}).IsError() {
		t.Fatalf("expected IsError")
	}
}
