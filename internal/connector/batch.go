package connector

import (
	"sync"

	"github.com/google/uuid"
)

type parentKey struct {
	kind Kind
	host int64
}

// Batch is the per-request context handed to push and delete calls. It remembers parents created
// earlier in the same request and collects soft resolution failures. A Batch belongs to one
// request.
type Batch struct {
	id       string
	mu       sync.Mutex
	parents  map[parentKey]int64
	failures []SoftResolutionFailure
}

// NewBatch returns an empty batch with a UUIDv7 id.
func NewBatch() (*Batch, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	return &Batch{id: value.String(), parents: make(map[parentKey]int64)}, nil
}

// ID returns the batch id.
func (b *Batch) ID() string {
	if b == nil {
		return ""
	}
	return b.id
}

// RememberParent stores the endpoint id of a parent created or updated in this batch.
func (b *Batch) RememberParent(kind Kind, host, endpoint int64) {
	if b == nil || host <= 0 || endpoint <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parents[parentKey{kind: kind, host: host}] = endpoint
}

// Parent returns the endpoint id remembered for host.
func (b *Batch) Parent(kind Kind, host int64) (int64, bool) {
	if b == nil || host <= 0 {
		return 0, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	endpoint, ok := b.parents[parentKey{kind: kind, host: host}]
	return endpoint, ok
}

// ForgetParent drops a remembered parent.
func (b *Batch) ForgetParent(kind Kind, host int64) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.parents, parentKey{kind: kind, host: host})
}

// RecordFailure appends a soft resolution failure.
func (b *Batch) RecordFailure(failure SoftResolutionFailure) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, failure)
}

// Failures returns a copy of the recorded soft failures.
func (b *Batch) Failures() []SoftResolutionFailure {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]SoftResolutionFailure, len(b.failures))
	copy(out, b.failures)
	return out
}
