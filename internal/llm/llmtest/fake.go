// Package llmtest provides a scripted llm.Invoker for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/pavelanni/quizen/internal/llm"
	"github.com/pavelanni/quizen/internal/model"
)

// Reply is one scripted answer: raw JSON content or an error.
type Reply struct {
	JSON string
	Err  error
}

// Fake answers prompts from per-prompt queues, then from Handler.
type Fake struct {
	mu      sync.Mutex
	queues  map[string][]Reply
	calls   []llm.PromptSpec
	Handler func(spec llm.PromptSpec) (string, error)
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{queues: make(map[string][]Reply)}
}

// Queue appends replies for prompts named name.
func (f *Fake) Queue(name string, replies ...Reply) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[name] = append(f.queues[name], replies...)
	return f
}

// Invoke implements llm.Invoker.
func (f *Fake) Invoke(ctx context.Context, spec llm.PromptSpec, out any) error {
	if err := ctx.Err(); err != nil {
		return model.Wrap(model.ErrLLMTransport, "", spec.Name, "context done", err)
	}

	f.mu.Lock()
	f.calls = append(f.calls, spec)
	var reply Reply
	queued := false
	if q := f.queues[spec.Name]; len(q) > 0 {
		reply, f.queues[spec.Name] = q[0], q[1:]
		queued = true
	}
	handler := f.Handler
	f.mu.Unlock()

	if !queued {
		if handler == nil {
			return model.Wrap(model.ErrLLMTransport, "", spec.Name, "no scripted reply", nil)
		}
		reply.JSON, reply.Err = handler(spec)
	}
	if reply.Err != nil {
		return reply.Err
	}
	if err := llm.DecodeJSON(reply.JSON, out); err != nil {
		return model.Wrap(model.ErrSchemaValidation, "", spec.Name, "parse LLM response", err)
	}
	return nil
}

// Calls returns the prompts received so far.
func (f *Fake) Calls() []llm.PromptSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.PromptSpec(nil), f.calls...)
}

// CallCount returns how many prompts named name were received.
func (f *Fake) CallCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Name == name {
			n++
		}
	}
	return n
}

// TransportError is a ready-made transport failure.
func TransportError(name string) Reply {
	return Reply{Err: model.Wrap(model.ErrLLMTransport, "", name, "connection reset", nil)}
}

// SchemaError is a reply whose content does not decode.
func SchemaError() Reply {
	return Reply{JSON: "not json at all"}
}
