package cronparser_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kubebridge/kubebridge/internal/infra/cronparser"
)

func TestParser_NextAfter(t *testing.T) {
	t.Parallel()

	p := cronparser.New()

	t.Run("standard spec returns next occurrence", func(t *testing.T) {
		t.Parallel()

		after := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)
		next, err := p.NextAfter("15 4 * * *", "", after)
		require.NoError(t, err)
		require.True(t, next.After(after))
		require.Equal(t, 4, next.Hour())
		require.Equal(t, 15, next.Minute())
	})

	t.Run("every five minutes", func(t *testing.T) {
		t.Parallel()

		after := time.Date(2026, 3, 10, 4, 2, 0, 0, time.UTC)
		next, err := p.NextAfter("*/5 * * * *", "", after)
		require.NoError(t, err)
		require.Equal(t, time.Date(2026, 3, 10, 4, 5, 0, 0, time.UTC), next)
	})

	t.Run("with tz uses timezone", func(t *testing.T) {
		t.Parallel()

		after := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		next, err := p.NextAfter("0 8 * * *", "Europe/Berlin", after)
		require.NoError(t, err)
		require.True(t, next.After(after))
	})

	t.Run("inline CRON_TZ ignores tz param", func(t *testing.T) {
		t.Parallel()

		after := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		next, err := p.NextAfter("CRON_TZ=UTC 0 14 * * *", "Europe/Berlin", after)
		require.NoError(t, err)
		require.Equal(t, 14, next.Hour())
	})

	t.Run("malformed spec returns error", func(t *testing.T) {
		t.Parallel()

		_, err := p.NextAfter("not-a-spec", "", time.Now())
		require.Error(t, err)
	})
}
