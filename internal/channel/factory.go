//go:build !debug

package channel

// New returns a queue holding up to size values, so senders using TrySend
// only lose data once size values are pending.
func New[T any](size int) Channel[T] {
	return NewBuffered[T](size)
}
