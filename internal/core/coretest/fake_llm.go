package coretest

import (
	"context"
	"sync"

	"github.com/markdave123-py/memora/internal/core"
)

// Result scripts one Generate outcome.
type Result struct {
	Text string
	Err  error
}

// FakeLLM scripts the language model. Each call pops the next Result;
// when the script is exhausted the call succeeds with empty text. Block
// makes Generate wait for context cancellation instead, for
// cancellation-propagation tests.
type FakeLLM struct {
	mu     sync.Mutex
	Script []Result
	Block  bool
	Calls  []Call
}

type Call struct {
	SystemPrompt string
	UserPrompt   string
}

var _ core.LLMProvider = (*FakeLLM)(nil)

// Respond appends successful responses to the script.
func (f *FakeLLM) Respond(texts ...string) *FakeLLM {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range texts {
		f.Script = append(f.Script, Result{Text: t})
	}
	return f
}

// Fail appends failing responses to the script.
func (f *FakeLLM) Fail(errs ...error) *FakeLLM {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range errs {
		f.Script = append(f.Script, Result{Err: e})
	}
	return f
}

func (f *FakeLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, Call{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	blocked := f.Block
	var res Result
	if !blocked && len(f.Script) > 0 {
		res = f.Script[0]
		f.Script = f.Script[1:]
	}
	f.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return res.Text, res.Err
}

// CallCount returns how many times Generate ran.
func (f *FakeLLM) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// LastCall returns the most recent Generate call, or a zero Call.
func (f *FakeLLM) LastCall() Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Calls) == 0 {
		return Call{}
	}
	return f.Calls[len(f.Calls)-1]
}
