package hooks

import (
	"context"
	"fmt"
	"sync"

	"github.com/stewones/borda-sub001/pkg/logger"
	"github.com/stewones/borda-sub001/pkg/model"
)

// Event names the lifecycle points the pipeline invokes.
type Event string

const (
	BeforeSave   Event = "beforeSave"
	AfterSave    Event = "afterSave"
	BeforeDelete Event = "beforeDelete"
	AfterDelete  Event = "afterDelete"
	BeforeSignUp Event = "beforeSignUp"
)

// Payload carries the mutation context into a handler. Before and After
// hold the pre- and post-images where the event has both; Session carries
// the caller identity when the request was authenticated.
type Payload struct {
	Doc     model.Document
	Before  model.Document
	After   model.Document
	Session model.Document
}

// Handler is invoked with the mutation payload. A before* handler may
// return a replacement document, which the pipeline substitutes before
// proceeding. Returning an error vetoes the mutation.
type Handler func(ctx context.Context, p Payload) (model.Document, error)

// FunctionOpts configures a named cloud function.
type FunctionOpts struct {
	// Public functions may be called without authentication.
	Public bool
}

// FunctionHandler is a named server function callable over HTTP.
type FunctionHandler func(ctx context.Context, args model.Document, session model.Document) (any, error)

// Function pairs a handler with its options.
type Function struct {
	Opts    FunctionOpts
	Handler FunctionHandler
}

type hookKey struct {
	event      Event
	collection string
}

// Pipeline holds registered hooks and functions. Zero or one handler
// exists per (event, collection) pair; re-registration replaces.
type Pipeline struct {
	mu    sync.RWMutex
	hooks map[hookKey]Handler
	fns   map[string]Function
}

// NewPipeline returns an empty hook pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		hooks: make(map[hookKey]Handler),
		fns:   make(map[string]Function),
	}
}

// AddHook registers a handler for an (event, collection) pair, replacing
// any previous registration.
func (p *Pipeline) AddHook(event Event, collection string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks[hookKey{event: event, collection: collection}] = h
}

// AddFunction registers a named function, replacing any previous one.
func (p *Pipeline) AddFunction(name string, opts FunctionOpts, h FunctionHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fns[name] = Function{Opts: opts, Handler: h}
}

// Function looks up a registered function by name.
func (p *Pipeline) Function(name string) (Function, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	fn, ok := p.fns[name]
	return fn, ok
}

func (p *Pipeline) handler(event Event, collection string) (Handler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.hooks[hookKey{event: event, collection: collection}]
	return h, ok
}

// RunBefore invokes the before* handler for the pair, if any. When the
// handler returns a replacement document that document is returned;
// otherwise the input document passes through unchanged. A handler error
// vetoes the mutation.
func (p *Pipeline) RunBefore(ctx context.Context, event Event, collection string, payload Payload) (model.Document, error) {
	h, ok := p.handler(event, collection)
	if !ok {
		return payload.Doc, nil
	}
	out, err := h(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", event, collection, err)
	}
	if out != nil {
		return out, nil
	}
	return payload.Doc, nil
}

// RunSignUp invokes the beforeSignUp handler for the collection. A nil
// return from the handler aborts the signup with no side effect.
func (p *Pipeline) RunSignUp(ctx context.Context, collection string, payload Payload) (model.Document, bool, error) {
	h, ok := p.handler(BeforeSignUp, collection)
	if !ok {
		return payload.Doc, true, nil
	}
	out, err := h(ctx, payload)
	if err != nil {
		return nil, false, fmt.Errorf("%s %s: %w", BeforeSignUp, collection, err)
	}
	if out == nil {
		return nil, false, nil
	}
	return out, true, nil
}

// RunAfter invokes the after* handler for the pair asynchronously with
// the committed state. After hooks cannot block or fail the response;
// errors are only logged.
func (p *Pipeline) RunAfter(event Event, collection string, payload Payload) {
	h, ok := p.handler(event, collection)
	if !ok {
		return
	}
	go func() {
		if _, err := h(context.Background(), payload); err != nil {
			logger.Error("hook_after_failed", "event", string(event), "collection", collection, "error", err.Error())
		}
	}()
}
