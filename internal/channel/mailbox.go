package channel

import "sync"

// Mailbox keeps the latest value per key. Writers never block; a reader
// drains everything posted since its last drain.
type Mailbox[K comparable, V any] struct {
	mu    sync.Mutex
	slots map[K]V
	order []K
}

// NewMailbox creates an empty mailbox.
func NewMailbox[K comparable, V any]() *Mailbox[K, V] {
	return &Mailbox[K, V]{slots: make(map[K]V)}
}

// Put stores v under k, replacing any undrained value.
func (m *Mailbox[K, V]) Put(k K, v V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[k]; !ok {
		m.order = append(m.order, k)
	}
	m.slots[k] = v
}

// Drain calls fn for every pending key in first-posted order and empties
// the mailbox. fn runs without the lock held.
func (m *Mailbox[K, V]) Drain(fn func(K, V)) int {
	m.mu.Lock()
	slots, order := m.slots, m.order
	m.slots = make(map[K]V, len(slots))
	m.order = nil
	m.mu.Unlock()

	for _, k := range order {
		fn(k, slots[k])
	}
	return len(order)
}

// Len returns the number of keys waiting.
func (m *Mailbox[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}
