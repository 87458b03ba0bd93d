package pipeline

import (
	"fmt"
	"sync"
)

// Context accumulates stage results in completion order. It only grows: a result is added
// at most once per stage and never changes afterwards. Readers receive copies.
type Context struct {
	mu      sync.RWMutex
	results []Result
	index   map[string]int
}

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{index: make(map[string]int)}
}

// Add appends the result of a stage. Adding a second result for the same stage fails.
func (c *Context) Add(res Result) error {
	if res.StageID == "" {
		return fmt.Errorf("result has no stage ID")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.index[res.StageID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateResult, res.StageID)
	}
	c.index[res.StageID] = len(c.results)
	c.results = append(c.results, res.clone())
	return nil
}

// Get returns a copy of a stage's result.
func (c *Context) Get(stageID string) (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.index[stageID]
	if !ok {
		return Result{}, false
	}
	return c.results[i].clone(), true
}

// Has reports whether a stage has completed.
func (c *Context) Has(stageID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[stageID]
	return ok
}

// Len returns the number of completed stages.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}

// Results returns copies of every result in completion order.
func (c *Context) Results() []Result {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Result, len(c.results))
	for i := range c.results {
		out[i] = c.results[i].clone()
	}
	return out
}

// Artifacts returns every artifact of kind in completion order. An empty kind returns all.
func (c *Context) Artifacts(kind ArtifactKind) []Artifact {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Artifact
	for i := range c.results {
		for _, a := range c.results[i].Artifacts {
			if kind == "" || a.Kind == kind {
				out = append(out, a)
			}
		}
	}
	return out
}
