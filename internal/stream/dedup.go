package stream

// dedupWindow remembers the last size event keys. Mastodon may replay
// recent events to a re-established subscription.
type dedupWindow struct {
	size int
	ring []string
	next int
	keys map[string]struct{}
}

func newDedupWindow(size int) *dedupWindow {
	if size <= 0 {
		return nil
	}

	return &dedupWindow{
		size: size,
		ring: make([]string, 0, size),
		keys: make(map[string]struct{}, size),
	}
}

// seen records key and reports whether it was already in the window. A nil
// window or an empty key is never a duplicate.
func (w *dedupWindow) seen(key string) bool {
	if w == nil || key == "" {
		return false
	}

	if _, ok := w.keys[key]; ok {
		return true
	}

	if len(w.ring) < w.size {
		w.ring = append(w.ring, key)
	} else {
		delete(w.keys, w.ring[w.next])
		w.ring[w.next] = key
		w.next = (w.next + 1) % w.size
	}

	w.keys[key] = struct{}{}

	return false
}
