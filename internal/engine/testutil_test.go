package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"chatd/pkg/types"
)

// fakeRuntime is a scripted backend for tests. It counts constructions and
// closes so lifecycle invariants are observable.
type fakeRuntime struct {
	mu         sync.Mutex
	constructs int
	closes     int

	newErr error
	tokens []string
	genErr error
	delay  time.Duration
}

func (r *fakeRuntime) New(cfg types.ModelConfig) (Generator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.newErr != nil {
		return nil, r.newErr
	}
	r.constructs++
	return &fakeEngine{
		rt:     r,
		tokens: append([]string(nil), r.tokens...),
		genErr: r.genErr,
		delay:  r.delay,
	}, nil
}

func (r *fakeRuntime) counts() (constructs, closes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.constructs, r.closes
}

type fakeEngine struct {
	rt     *fakeRuntime
	tokens []string
	genErr error
	delay  time.Duration
}

func (e *fakeEngine) Generate(ctx context.Context, prompt string, history []types.ChatMessage, onToken func(string) error) (string, error) {
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	toks := e.tokens
	if len(toks) == 0 {
		toks = []string{"Echo: " + prompt}
	}
	var b strings.Builder
	for _, tok := range toks {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		if onToken != nil {
			if err := onToken(tok); err != nil {
				return "", err
			}
		}
		b.WriteString(tok)
	}
	if e.genErr != nil {
		return "", e.genErr
	}
	return b.String(), nil
}

func (e *fakeEngine) Close() error {
	e.rt.mu.Lock()
	e.rt.closes++
	e.rt.mu.Unlock()
	return nil
}
