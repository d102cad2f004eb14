package engage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHourlyBudgetSpendAndReset(t *testing.T) {
	var b HourlyBudget
	assert.False(t, b.Exhausted(2))
	b.Spend()
	assert.False(t, b.Exhausted(2))
	b.Spend()
	assert.True(t, b.Exhausted(2))
	assert.Equal(t, 2, b.Reset())
	assert.Equal(t, 0, b.Used())
	assert.False(t, b.Exhausted(2))
}

func TestHourlyBudgetZeroMaxAllowsNothing(t *testing.T) {
	var b HourlyBudget
	assert.True(t, b.Exhausted(0))
}

func TestHourlyBudgetConcurrentSpend(t *testing.T) {
	var b HourlyBudget
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Spend()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, b.Used())
}
