package agentstate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBagGetSetRoundTrip(t *testing.T) {
	t.Parallel()

	b := New()
	_, ok := b.Get(KeyDataContext)
	require.False(t, ok)

	b.Set(KeyDataContext, "orders")
	v, ok := b.Get(KeyDataContext)
	require.True(t, ok)
	require.Equal(t, "orders", v)
}

func TestBagZeroValueIsUsable(t *testing.T) {
	t.Parallel()

	var b Bag
	b.Set(KeyReviewNeeded, true)
	require.True(t, b.Bool(KeyReviewNeeded))
}

func TestBagBoolDefaultsFalseWhenAbsentOrWrongType(t *testing.T) {
	t.Parallel()

	b := New()
	require.False(t, b.Bool(KeyReviewNeeded))

	b.Set(KeyReviewNeeded, "not a bool")
	require.False(t, b.Bool(KeyReviewNeeded))
}

func TestBagStringDefaultsEmptyWhenAbsentOrWrongType(t *testing.T) {
	t.Parallel()

	b := New()
	require.Equal(t, "", b.String(KeyDataSourceSyntax))

	b.Set(KeyDataSourceSyntax, 42)
	require.Equal(t, "", b.String(KeyDataSourceSyntax))

	b.Set(KeyDataSourceSyntax, "postgres")
	require.Equal(t, "postgres", b.String(KeyDataSourceSyntax))
}

func TestBagKeysReturnsSnapshot(t *testing.T) {
	t.Parallel()

	b := New()
	b.Set(KeyPlanAvailable, true)
	b.Set(KeyMetricsAvailable, true)
	require.ElementsMatch(t, []string{KeyPlanAvailable, KeyMetricsAvailable}, b.Keys())
}

func TestBagAllTodosCompleted(t *testing.T) {
	t.Parallel()

	b := New()
	require.False(t, b.AllTodosCompleted(), "empty todo list is never complete")

	b.Set(KeyTodos, []Todo{{Todo: "a", Completed: true}, {Todo: "b", Completed: false}})
	require.False(t, b.AllTodosCompleted())

	b.Set(KeyTodos, []Todo{{Todo: "a", Completed: true}, {Todo: "b", Completed: true}})
	require.True(t, b.AllTodosCompleted())
	require.Len(t, b.Todos(), 2)
}

func TestBagConcurrentAccess(t *testing.T) {
	t.Parallel()

	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			b.Set(KeyDataContext, i)
		}(i)
		go func() {
			defer wg.Done()
			b.Get(KeyDataContext)
		}()
	}
	wg.Wait()
}
