// Package braintest provides a scripted provider for tests.
package braintest

import (
	"context"
	"errors"
	"sync"

	"github.com/ent0n29/horizon/internal/brain"
)

// ErrUnscripted is returned for tasks with no scripted reply.
var ErrUnscripted = errors.New("braintest: no reply scripted for task")

// Reply is one scripted outcome.
type Reply struct {
	Text  string
	Err   error
	Panic any
}

// Provider replies per task and records every request it saw.
type Provider struct {
	mu      sync.Mutex
	replies map[brain.Task][]Reply
	calls   []brain.Request
}

func New() *Provider {
	return &Provider{replies: make(map[brain.Task][]Reply)}
}

// On queues replies for task. The last reply repeats once the queue drains.
func (p *Provider) On(task brain.Task, replies ...Reply) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies[task] = append(p.replies[task], replies...)
	return p
}

// Text is shorthand for On(task, Reply{Text: text}).
func (p *Provider) Text(task brain.Task, text string) *Provider {
	return p.On(task, Reply{Text: text})
}

// Fail is shorthand for On(task, Reply{Err: err}).
func (p *Provider) Fail(task brain.Task, err error) *Provider {
	return p.On(task, Reply{Err: err})
}

func (p *Provider) Name() string { return "scripted" }

func (p *Provider) Respond(ctx context.Context, req brain.Request) (brain.Response, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	queue := p.replies[req.Task]
	var r Reply
	ok := len(queue) > 0
	if ok {
		r = queue[0]
		if len(queue) > 1 {
			p.replies[req.Task] = queue[1:]
		}
	}
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return brain.Response{}, err
	}
	if !ok {
		return brain.Response{}, ErrUnscripted
	}
	if r.Panic != nil {
		panic(r.Panic)
	}
	if r.Err != nil {
		return brain.Response{}, r.Err
	}
	return brain.Response{Text: r.Text, Provider: p.Name()}, nil
}

// Calls returns the requests seen for task, or all requests when task is "".
func (p *Provider) Calls(task brain.Task) []brain.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []brain.Request
	for _, c := range p.calls {
		if task == "" || c.Task == task {
			out = append(out, c)
		}
	}
	return out
}
