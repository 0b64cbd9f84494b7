package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stamped struct {
	At   float64
	Name string
}

func TestQueue_PushKeepsOrder(t *testing.T) {
	q := New[stamped]()
	assert.True(t, q.Empty())

	q.Push(stamped{At: 1, Name: "a"})
	q.Push(stamped{At: 2, Name: "b"}, stamped{At: 3, Name: "c"})

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, []stamped{{1, "a"}, {2, "b"}, {3, "c"}}, q.Items())
}

func TestQueue_DropWhile(t *testing.T) {
	q := New[stamped]()
	q.Push(stamped{At: 1}, stamped{At: 2}, stamped{At: 3}, stamped{At: 4})

	n := q.DropWhile(func(s stamped) bool { return s.At <= 2 })

	assert.Equal(t, 2, n)
	assert.Equal(t, []stamped{{At: 3}, {At: 4}}, q.Items())
}

func TestQueue_DropWhile_StopsAtFirstMiss(t *testing.T) {
	q := New[stamped]()
	q.Push(stamped{At: 5}, stamped{At: 1})

	n := q.DropWhile(func(s stamped) bool { return s.At <= 2 })

	assert.Equal(t, 0, n)
	assert.Equal(t, 2, q.Len())
}

func TestQueue_DropWhile_All(t *testing.T) {
	q := New[stamped]()
	q.Push(stamped{At: 1}, stamped{At: 2})

	assert.Equal(t, 2, q.DropWhile(func(stamped) bool { return true }))
	assert.True(t, q.Empty())
	assert.Equal(t, 0, q.DropWhile(func(stamped) bool { return true }))
}

func TestQueue_ItemsIsACopy(t *testing.T) {
	q := New[stamped]()
	q.Push(stamped{Name: "orig"})

	items := q.Items()
	items[0].Name = "changed"

	assert.Equal(t, "orig", q.Items()[0].Name)
}

func TestQueue_GetAndEmpty(t *testing.T) {
	q := New[int]()
	q.Push(1, 2, 3)

	assert.Equal(t, []int{1, 2, 3}, q.GetAndEmpty())
	assert.True(t, q.Empty())

	q.Push(4)
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, []int{4}, q.GetAndEmpty())
}

func TestQueue_Concurrent(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			q.Push(v)
		}(i)
	}
	wg.Wait()
	require.Equal(t, 100, q.Len())

	results := make(chan []int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- q.GetAndEmpty()
		}()
	}
	wg.Wait()
	close(results)

	total := 0
	for r := range results {
		total += len(r)
	}
	assert.Equal(t, 100, total)
}
