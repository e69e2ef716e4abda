package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2026-03-04")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), got)

	got, err = ParseDate("2026-03-04T10:30:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 4, 8, 30, 0, 0, time.UTC), got)

	got, err = ParseDate("2026-03-04T10:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC), got)

	_, err = ParseDate("next tuesday")
	assert.Error(t, err)

	_, err = ParseDate("  ")
	assert.Error(t, err)
}

func TestParseOptionalDate(t *testing.T) {
	got, err := ParseOptionalDate(nil)
	assert.NoError(t, err)
	assert.Nil(t, got)

	blank := ""
	got, err = ParseOptionalDate(&blank)
	assert.NoError(t, err)
	assert.Nil(t, got)

	bad := "31/12/2026"
	_, err = ParseOptionalDate(&bad)
	assert.Error(t, err)
}
