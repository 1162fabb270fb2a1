package service

import "sync"

// proposalLocks serializes evaluation per proposal. Webhook deliveries and
// sweep ticks for the same proposal must not interleave between reconcile
// and push; different proposals stay parallel.
type proposalLocks struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func newProposalLocks() *proposalLocks {
	return &proposalLocks{locks: map[int]*sync.Mutex{}}
}

// Lock acquires the lock for a proposal and returns its unlock func.
func (p *proposalLocks) Lock(proposal int) func() {
	p.mu.Lock()
	l, ok := p.locks[proposal]
	if !ok {
		l = &sync.Mutex{}
		p.locks[proposal] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}
