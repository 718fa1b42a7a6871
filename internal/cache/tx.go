package cache

// Tx is a write transaction handed to Cache.Update. It is only valid inside
// the callback.
type Tx struct {
	c       *Cache
	touched map[string]*entry
	order   []*entry
	refetch []Key
}

type notification struct {
	key     Key
	value   any
	present bool
	subs    []Listener
}

func (n notification) deliver() {
	for _, fn := range n.subs {
		fn(n.key, n.value, n.present)
	}
}

// Get reads the value as of this transaction.
func (tx *Tx) Get(key Key) (any, bool) {
	e := tx.c.entries[key.Hash()]
	if e == nil || !e.present {
		return nil, false
	}
	return e.value, true
}

// Peek reads the full state as of this transaction.
func (tx *Tx) Peek(key Key) State {
	return tx.c.stateLocked(tx.c.entries[key.Hash()])
}

// Version is the write counter of key; zero if it was never written.
func (tx *Tx) Version(key Key) uint64 {
	if e := tx.c.entries[key.Hash()]; e != nil {
		return e.version
	}
	return 0
}

// Set stores v and clears any invalidation.
func (tx *Tx) Set(key Key, v any) {
	e := tx.c.entryLocked(key)
	e.value = v
	e.present = true
	e.invalidated = false
	e.updatedAt = tx.c.now()
	tx.written(e)
}

// Patch applies fn to a present value and reports whether it did.
func (tx *Tx) Patch(key Key, fn func(any) any) bool {
	e := tx.c.entries[key.Hash()]
	if e == nil || !e.present {
		return false
	}
	e.value = fn(e.value)
	tx.written(e)
	return true
}

// Remove drops the value of key.
func (tx *Tx) Remove(key Key) {
	e := tx.c.entries[key.Hash()]
	if e == nil || !e.present {
		return
	}
	e.value = nil
	e.present = false
	e.invalidated = false
	tx.written(e)
}

// Restore puts key back into a previously captured state. The restored entry
// gets a new version. An invalidation since the capture survives.
func (tx *Tx) Restore(key Key, st State) {
	e := tx.c.entryLocked(key)
	e.value = st.Value
	e.present = st.Present
	e.updatedAt = st.UpdatedAt
	e.invalidated = e.invalidated || st.Invalidated
	tx.written(e)
}

// Invalidate marks key stale. Observed keys are refetched after the
// transaction; pinned ones once unpinned.
func (tx *Tx) Invalidate(key Key) {
	e := tx.c.entryLocked(key)
	e.invalidated = true
	tx.c.invalidations.Add(1)
	if len(e.subs) == 0 {
		return
	}
	if e.pins > 0 {
		e.deferred = true
		return
	}
	tx.refetch = append(tx.refetch, key)
}

// Pin protects key from loader results until a matching Unpin.
func (tx *Tx) Pin(key Key) {
	tx.c.entryLocked(key).pins++
}

// Unpin releases one pin. When the last pin goes, a deferred refetch runs.
func (tx *Tx) Unpin(key Key) {
	e := tx.c.entries[key.Hash()]
	if e == nil || e.pins == 0 {
		return
	}
	e.pins--
	if e.pins > 0 || !e.deferred {
		return
	}
	e.deferred = false
	if e.invalidated || len(e.subs) > 0 {
		tx.refetch = append(tx.refetch, key)
	}
}

func (tx *Tx) written(e *entry) {
	tx.c.seq++
	e.version = tx.c.seq
	if _, ok := tx.touched[e.key.Hash()]; !ok {
		tx.touched[e.key.Hash()] = e
		tx.order = append(tx.order, e)
	}
}

// notifications snapshots final values and listeners in first-write order.
func (tx *Tx) notifications() []notification {
	out := make([]notification, 0, len(tx.order))
	for _, e := range tx.order {
		if len(e.subs) == 0 {
			continue
		}
		n := notification{key: e.key, value: e.value, present: e.present}
		for _, fn := range e.subs {
			n.subs = append(n.subs, fn)
		}
		out = append(out, n)
	}
	return out
}
