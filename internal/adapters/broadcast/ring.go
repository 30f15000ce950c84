package broadcast

// ring keeps the last size events of one topic. Versions within a topic are
// consecutive, so gap coverage is plain version arithmetic.
type ring struct {
	buf  []Event
	size int
}

func newRing(size int) *ring {
	if size < 1 {
		size = 1
	}
	return &ring{size: size}
}

func (r *ring) push(e Event) {
	r.buf = append(r.buf, e)
	if len(r.buf) > r.size {
		r.buf = r.buf[1:]
	}
}

// after returns the buffered events with version greater than lastSeen. The
// second return is false when the ring no longer reaches back far enough to
// bridge the gap, i.e. events after lastSeen have already been evicted.
func (r *ring) after(lastSeen int64) ([]Event, bool) {
	if len(r.buf) == 0 {
		return nil, false
	}
	oldest := r.buf[0].Version
	latest := r.buf[len(r.buf)-1].Version
	if lastSeen >= latest {
		return nil, true
	}
	if lastSeen+1 < oldest {
		return nil, false
	}
	out := make([]Event, 0, latest-lastSeen)
	for _, e := range r.buf {
		if e.Version > lastSeen {
			out = append(out, e)
		}
	}
	return out, true
}
