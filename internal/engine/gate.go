package engine

import (
	"context"
	"sync"
)

// dirGate holds one completion signal per directory action. The
// dispatcher registers a directory before dispatching any of its
// children; workers wait on the parent's signal before touching a child.
type dirGate struct {
	mu   sync.Mutex
	dirs map[string]*dirSignal
}

type dirSignal struct {
	done chan struct{}
	err  error
}

func newDirGate() *dirGate {
	return &dirGate{dirs: make(map[string]*dirSignal)}
}

// register creates the signal for rel. Must happen before any child of
// rel is dispatched.
func (g *dirGate) register(rel string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dirs[rel] = &dirSignal{done: make(chan struct{})}
}

// resolve completes rel with err (nil on success).
func (g *dirGate) resolve(rel string, err error) {
	g.mu.Lock()
	sig, ok := g.dirs[rel]
	g.mu.Unlock()
	if !ok {
		return
	}
	sig.err = err
	close(sig.done)
}

// wait blocks until rel resolves. The staging root ("") and directories
// that were never registered are treated as present.
func (g *dirGate) wait(ctx context.Context, rel string) error {
	if rel == "" {
		return nil
	}
	g.mu.Lock()
	sig, ok := g.dirs[rel]
	g.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-sig.done:
		return sig.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
