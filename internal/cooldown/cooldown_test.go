package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPick_WithinRange(t *testing.T) {
	t.Parallel()

	r := Seconds(45, 100)
	for i := 0; i < 200; i++ {
		d := r.Pick()
		assert.GreaterOrEqual(t, d, 45*time.Second)
		assert.LessOrEqual(t, d, 100*time.Second)
	}
}

func TestPick_Degenerate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5*time.Second, Seconds(5, 5).Pick())
	assert.Equal(t, 5*time.Second, Seconds(5, 1).Pick())
	assert.Equal(t, time.Duration(0), Range{}.Pick())
	assert.Equal(t, time.Duration(0), Range{Min: -time.Second}.Pick())
}

func TestHours(t *testing.T) {
	t.Parallel()

	r := Hours(14, 26)
	assert.Equal(t, 14*time.Hour, r.Min)
	assert.Equal(t, 26*time.Hour, r.Max)
	assert.False(t, r.Zero())
	assert.True(t, Range{}.Zero())
}
