// Package channel holds the queues network goroutines use to hand data to
// the goroutine that owns it: bounded FIFO channels for frames and a
// keyed last-value-wins Mailbox for replicated state.
package channel

type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

type Sender[T any] interface {
	Send(T)
	// TrySend reports whether v was queued without blocking.
	TrySend(T) bool
}

// Channel is a FIFO queue of values.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Close()
}
