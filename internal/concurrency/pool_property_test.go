package concurrency

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestRunOrdersResultsRegardlessOfCompletionOrder is a property test,
// grounded on the generator/property shape the teacher uses against its
// Mongo store: instead of one fixed set of sleep durations, it throws random
// pool sizes and random per-item delays at Run and checks the order
// invariant holds every time.
func TestRunOrdersResultsRegardlessOfCompletionOrder(t *testing.T) {
	t.Parallel()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("results come back in call order, not completion order", prop.ForAll(
		func(delaysMs []uint8, poolSize uint8) bool {
			items := make([]int, len(delaysMs))
			for i := range items {
				items[i] = i
			}

			p := NewPool(int(poolSize))
			results := Run(context.Background(), p, items, func(_ context.Context, i int, item int) int {
				time.Sleep(time.Duration(delaysMs[i]) * time.Microsecond)
				return item
			})

			for i, r := range results {
				if r != i {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(8, gen.UInt8Range(0, 20)),
		gen.UInt8Range(1, 8),
	))

	properties.TestingRun(t)
}
