package conversation

import "sync"

// registry holds the actors of running conversations. Insertion order is
// kept so lookups by user scan conversations oldest first.
type registry struct {
	mu    sync.RWMutex
	byID  map[string]*actor
	order []string
}

func newRegistry() *registry {
	return &registry{byID: make(map[string]*actor)}
}

func (r *registry) insert(a *actor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[a.id] = a
	r.order = append(r.order, a.id)
}

func (r *registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *registry) get(id string) (*actor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	return a, ok
}

func (r *registry) ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *registry) actors() []*actor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*actor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
