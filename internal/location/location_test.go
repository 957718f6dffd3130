package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balkashynov/dtr/internal/apperr"
)

func TestStatic(t *testing.T) {
	v, err := Static("14.599500,120.984200").Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "14.599500,120.984200", v)

	_, err = Static("").Current(context.Background())
	assert.ErrorIs(t, err, apperr.ErrLocationUnavailable)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "14.599500,120.984200", Format(14.5995, 120.9842))
}

func TestWithTimeout(t *testing.T) {
	t.Run("passes through a fast answer", func(t *testing.T) {
		p := WithTimeout(Static("1.000000,2.000000"), time.Second, nil)
		v, err := p.Current(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "1.000000,2.000000", v)
	})

	t.Run("abandons a provider that ignores its context", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)

		slow := Func(func(context.Context) (string, error) {
			<-release
			return "late", nil
		})

		start := time.Now()
		_, err := WithTimeout(slow, 20*time.Millisecond, nil).Current(context.Background())
		assert.ErrorIs(t, err, apperr.ErrLocationUnavailable)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("wraps provider errors", func(t *testing.T) {
		failing := Func(func(context.Context) (string, error) {
			return "", errors.New("permission denied")
		})
		_, err := WithTimeout(failing, time.Second, nil).Current(context.Background())
		assert.ErrorIs(t, err, apperr.ErrLocationUnavailable)
	})

	t.Run("nil provider", func(t *testing.T) {
		_, err := WithTimeout(nil, time.Second, nil).Current(context.Background())
		assert.ErrorIs(t, err, apperr.ErrLocationUnavailable)
	})
}
