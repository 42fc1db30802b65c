package pipeline

import "sync"

// inflight tracks domains with a discovery currently running in this
// process. It is a best-effort guard against double launches from rapid
// duplicate requests; the partial unique index on brands is the real
// constraint.
type inflight struct {
	mu      sync.Mutex
	domains map[string]struct{}
}

func newInflight() *inflight {
	return &inflight{domains: make(map[string]struct{})}
}

// acquire claims the domain, reporting false when another discovery holds it.
func (f *inflight) acquire(domain string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.domains[domain]; busy {
		return false
	}
	f.domains[domain] = struct{}{}
	return true
}

func (f *inflight) release(domain string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.domains, domain)
}
