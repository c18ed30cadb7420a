package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/wilhg/scout/pkg/errmodel"
)

type echoTool struct{ fail bool }

func (t echoTool) Describe() Descriptor {
	return Descriptor{
		Name:         "echo",
		Description:  "Echoes the subject back",
		InputSchema:  []byte(`{"type":"object","properties":{"subject":{"type":"string","minLength":1}},"required":["subject"],"additionalProperties":false}`),
		OutputSchema: []byte(`{"type":"object","properties":{"subject":{"type":"string"}},"required":["subject"],"additionalProperties":false}`),
		Cacheable:    true,
	}
}

func (t echoTool) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	if t.fail {
		return nil, errors.New("echo exploded")
	}
	return map[string]any{"subject": args["subject"]}, nil
}

type badOutputTool struct{}

func (badOutputTool) Describe() Descriptor {
	return Descriptor{
		Name:         "bad_output",
		InputSchema:  []byte(`{"type":"object"}`),
		OutputSchema: []byte(`{"type":"object","properties":{"n":{"type":"number"}},"required":["n"],"additionalProperties":false}`),
	}
}

func (badOutputTool) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	return map[string]any{"wrong": true}, nil
}

func TestRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoTool{}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(echoTool{}); err == nil {
		t.Fatal("duplicate registration should fail")
	}
	if _, ok := r.Resolve("echo"); !ok {
		t.Fatal("echo not resolved")
	}
	if _, ok := r.Resolve("missing"); ok {
		t.Fatal("missing tool resolved")
	}
	names := r.Names()
	if len(names) != 1 || names[0] != "echo" {
		t.Fatalf("names=%v", names)
	}
}

func TestRegisterRejectsBadSchema(t *testing.T) {
	r := NewRegistry()
	bad := descriptorTool{d: Descriptor{Name: "broken", InputSchema: []byte(`{"type":`)}}
	if err := r.Register(bad); err == nil {
		t.Fatal("malformed schema should fail registration")
	}
}

type descriptorTool struct{ d Descriptor }

func (t descriptorTool) Describe() Descriptor { return t.d }
func (t descriptorTool) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	return map[string]any{}, nil
}

func TestSafeInvoke(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	if err := r.Register(echoTool{}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(badOutputTool{}); err != nil {
		t.Fatal(err)
	}
	all := map[string]bool{"echo": true, "bad_output": true}

	out, err := r.SafeInvoke(ctx, "echo", map[string]any{"subject": "widget x"}, all, "full", nil)
	if err != nil {
		t.Fatal(err)
	}
	if out["subject"] != "widget x" {
		t.Fatalf("out=%v", out)
	}

	// scope violation wins over argument problems
	_, err = r.SafeInvoke(ctx, "echo", map[string]any{}, map[string]bool{}, "sentiment_only", nil)
	if !errmodel.IsCategory(err, errmodel.CategoryScope) {
		t.Fatalf("want scope violation, got %v", err)
	}

	// invalid input
	_, err = r.SafeInvoke(ctx, "echo", map[string]any{"subject": ""}, all, "full", nil)
	if !errmodel.IsCode(err, errmodel.CodeInvalidInput) {
		t.Fatalf("want invalid_input, got %v", err)
	}

	// invalid output
	_, err = r.SafeInvoke(ctx, "bad_output", map[string]any{}, all, "full", nil)
	if !errmodel.IsCode(err, errmodel.CodeInvalidOutput) {
		t.Fatalf("want invalid_output, got %v", err)
	}

	// unknown tool
	_, err = r.SafeInvoke(ctx, "nope", nil, all, "full", nil)
	if !errmodel.IsCode(err, errmodel.CodeUnknownTool) {
		t.Fatalf("want unknown_tool, got %v", err)
	}
}

func TestSafeInvokeWrapsExecutionError(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(echoFailTool{}); err != nil {
		t.Fatal(err)
	}
	_, err := reg.SafeInvoke(context.Background(), "echo_fail", map[string]any{"subject": "x"},
		map[string]bool{"echo_fail": true}, "full", nil)
	if !errmodel.IsCode(err, errmodel.CodeToolFailed) {
		t.Fatalf("want tool_failed, got %v", err)
	}
}

type echoFailTool struct{}

func (echoFailTool) Describe() Descriptor {
	return Descriptor{
		Name:         "echo_fail",
		InputSchema:  []byte(`{"type":"object","properties":{"subject":{"type":"string"}},"required":["subject"]}`),
		OutputSchema: []byte(`{"type":"object"}`),
	}
}

func (echoFailTool) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	return nil, errors.New("upstream unavailable")
}
