package regioncache

import "context"

// Begin switches the region into buffered mode: Set and Delete queue
// into a single atomic batch instead of issuing individually, so a
// reader never observes only part of a multi-key update. Only one batch
// is open per region at a time; nested Begins reuse it and only the
// outermost Commit sends the round trip.
func (r *Region) Begin() {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	if r.depth == 0 {
		r.batch = r.c.st.Batch()
		r.batchRefresh = false
	}
	r.depth++
}

// Commit closes the current batch scope. When the outermost scope
// closes, all queued operations are applied in one all-or-nothing round
// trip; if any queued write warranted a lease refresh, the refresh is
// issued as a follow-up after the successful commit. Commits attempted
// while the store is unreachable are dropped silently like any other
// write.
func (r *Region) Commit(ctx context.Context) error {
	r.batchMu.Lock()
	if r.batch == nil {
		// already discarded by an inner scope
		if r.depth > 0 {
			r.depth--
		}
		r.batchMu.Unlock()
		return nil
	}
	r.depth--
	if r.depth > 0 {
		r.batchMu.Unlock()
		return nil
	}
	b := r.batch
	refresh := r.batchRefresh
	r.batch = nil
	r.batchRefresh = false
	r.batchMu.Unlock()

	if err := b.Commit(ctx); err != nil {
		return r.dropWrite("batch", "", err)
	}
	if refresh {
		if err := r.c.st.Expire(ctx, r.name, r.timeout); err != nil {
			return r.dropWrite("batch_expire", "", err)
		}
	}
	return nil
}

// Discard drops the open batch entirely: none of its queued operations
// take effect, including those queued by outer scopes.
func (r *Region) Discard() {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	if r.batch != nil {
		r.batch.Discard()
		r.batch = nil
	}
	r.depth = 0
	r.batchRefresh = false
}

// InBatch runs fn inside a batch scope and guarantees the batch is
// discarded on any non-committed exit path: an error return or a panic
// leaves the store untouched.
func (r *Region) InBatch(ctx context.Context, fn func() error) error {
	r.Begin()
	committed := false
	defer func() {
		if !committed {
			r.Discard()
		}
	}()
	if err := fn(); err != nil {
		return err
	}
	committed = true
	return r.Commit(ctx)
}

// BatchLen reports how many operations the open batch has queued; zero
// when no batch is open.
func (r *Region) BatchLen() int {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	if r.batch == nil {
		return 0
	}
	return r.batch.Len()
}
