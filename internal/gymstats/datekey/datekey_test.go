package datekey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfAndIn(t *testing.T) {
	ts := time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-01", Of(ts))

	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", In(ts, berlin))
}

func TestAddDays(t *testing.T) {
	got, err := AddDays("2024-03-01", -1)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", got)

	got, err = AddDays("2023-12-31", 1)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", got)

	_, err = AddDays("not-a-date", 1)
	assert.Error(t, err)
}

func TestWindow(t *testing.T) {
	from, to, err := Window("2024-01-09", 9)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", from)
	assert.Equal(t, "2024-01-09", to)

	from, to, err = Window("2024-01-09", 1)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-09", from)
	assert.Equal(t, "2024-01-09", to)

	_, _, err = Window("2024-01-09", 0)
	assert.Error(t, err)

	assert.True(t, Within("2024-01-05", "2024-01-01", "2024-01-09"))
	assert.False(t, Within("2023-12-31", "2024-01-01", "2024-01-09"))
	assert.True(t, Valid("2024-02-29"))
	assert.False(t, Valid("2023-02-29"))
}
