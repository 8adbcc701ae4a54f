// Package resource tracks exclusive claims on external entities.
//
// A claim is keyed by the entity's stable identifier and held by exactly one
// reaction. The registry hooks the owner's end so a claim cannot outlive its
// holder.
package resource

import (
	"sort"
	"sync"

	"acolyte/internal/logging"
)

// Key identifies a claimable external entity.
type Key string

// SituationKey is the claim key for a situation.
func SituationKey(id string) Key {
	return Key("situation:" + id)
}

// Owner is anything that can hold a claim. reaction.Reaction satisfies it.
type Owner interface {
	ID() string
	Name() string
	OnEnd(fn func(aborted bool))
}

// Claim is a held constraint.
type Claim struct {
	Key     Key
	OwnerID string
	Owner   string
}

// Registry is the single source of truth for who owns what.
type Registry struct {
	mu     sync.Mutex
	claims map[Key]Owner
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{claims: make(map[Key]Owner)}
}

// TryAddConstraint claims key for owner. It returns false without side effects
// if key is already held, by anyone, including owner itself. On success the
// claim is released when owner ends.
func (r *Registry) TryAddConstraint(owner Owner, key Key) bool {
	r.mu.Lock()
	if holder, held := r.claims[key]; held {
		r.mu.Unlock()
		logging.ResourceDebug("claim %s by %s rejected: held by %s", key, owner.Name(), holder.Name())
		return false
	}
	r.claims[key] = owner
	r.mu.Unlock()

	logging.ResourceDebug("claim %s by %s", key, owner.Name())
	owner.OnEnd(func(bool) { r.release(owner, key) })
	return true
}

// release drops the claim on key if owner still holds it.
func (r *Registry) release(owner Owner, key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if holder, held := r.claims[key]; held && holder.ID() == owner.ID() {
		delete(r.claims, key)
		logging.ResourceDebug("release %s by %s", key, owner.Name())
	}
}

// Holder returns the owner of key.
func (r *Registry) Holder(key Key) (Owner, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.claims[key]
	return o, ok
}

// IsClaimed reports whether key is held.
func (r *Registry) IsClaimed(key Key) bool {
	_, ok := r.Holder(key)
	return ok
}

// Constraints lists current claims ordered by key.
func (r *Registry) Constraints() []Claim {
	r.mu.Lock()
	out := make([]Claim, 0, len(r.claims))
	for k, o := range r.claims {
		out = append(out, Claim{Key: k, OwnerID: o.ID(), Owner: o.Name()})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of held claims.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.claims)
}

// ReleaseAll drops every claim without touching the owners. Used on reset,
// after the owners have been aborted, to guarantee a clean slate.
func (r *Registry) ReleaseAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.claims)
	if n > 0 {
		logging.ResourceWarn("force-releasing %d claims", n)
	}
	r.claims = make(map[Key]Owner)
	return n
}
