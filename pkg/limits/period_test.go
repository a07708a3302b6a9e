package limits_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbanhq/demandkit/pkg/limits"
)

func TestPeriodAt(t *testing.T) {
	t.Parallel()

	t.Run("spans the calendar month", func(t *testing.T) {
		t.Parallel()

		p := limits.PeriodAt(time.Date(2024, 2, 14, 15, 30, 0, 0, time.UTC))
		assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), p.Start)
		assert.Equal(t, time.Date(2024, 2, 29, 23, 59, 59, int(999*time.Millisecond), time.UTC), p.End)
	})

	t.Run("uses the instant's location", func(t *testing.T) {
		t.Parallel()

		loc, err := time.LoadLocation("America/Sao_Paulo")
		require.NoError(t, err)

		// 2024-03-01 01:00 UTC is still February in Sao Paulo
		p := limits.PeriodAt(time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC).In(loc))
		assert.Equal(t, time.February, p.Start.Month())
		assert.Equal(t, loc, p.Start.Location())
	})

	t.Run("contains and next", func(t *testing.T) {
		t.Parallel()

		p := limits.PeriodAt(time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC))
		assert.True(t, p.Contains(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)))
		assert.True(t, p.Contains(time.Date(2024, 12, 31, 23, 59, 59, 999_999_999, time.UTC)))
		assert.False(t, p.Contains(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
		assert.False(t, p.Contains(time.Date(2024, 11, 30, 23, 59, 59, 0, time.UTC)))

		next := p.Next()
		assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), next.Start)
	})
}
