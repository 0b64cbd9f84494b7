//go:build debug

package channel

// New ignores size in debug builds: every TrySend without a waiting
// receiver fails, which surfaces writers that fall behind.
func New[T any](size int) Channel[T] {
	return NewUnbuffered[T]()
}
