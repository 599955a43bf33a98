package bus

// Filter derives a subscription that only emits values matching pred.
//
// The predicate must be side-effect free. A predicate that panics counts as a
// non-match: filtering degrades a subscription's recall, never its
// availability. Filters stack; each layer owns its own bounded queue.
//
// Closing the derived subscription closes the source. When the source ends,
// the derived subscription ends too.
func Filter[T any](src *Subscription[T], pred func(T) bool) *Subscription[T] {
	out := &Subscription[T]{
		ch:     make(chan T, cap(src.ch)),
		done:   make(chan struct{}),
		detach: src.Close,
	}

	go func() {
		for {
			select {
			case <-out.done:
				return
			case <-src.Done():
				out.close()
				return
			case v := <-src.C():
				if !safeMatch(pred, v) {
					continue
				}
				out.offer(v)
			}
		}
	}()

	return out
}

// safeMatch evaluates pred, treating a panic as a non-match.
func safeMatch[T any](pred func(T) bool, v T) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	if pred == nil {
		return true
	}
	return pred(v)
}
