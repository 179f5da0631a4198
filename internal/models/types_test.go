package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringListScanValue(t *testing.T) {
	v, err := StringList{"wheat", "rice"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["wheat","rice"]`, v)

	var l StringList
	require.NoError(t, l.Scan([]byte(`["cotton"]`)))
	assert.Equal(t, StringList{"cotton"}, l)
	assert.True(t, l.Contains("cotton"))
	assert.False(t, l.Contains("wheat"))

	require.NoError(t, l.Scan(nil))
	assert.Nil(t, l)

	empty, err := StringList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", empty)
}

func TestScoreMapScan(t *testing.T) {
	var m ScoreMap
	require.NoError(t, m.Scan(`{"wheat":2.5}`))
	assert.Equal(t, 2.5, m["wheat"])

	require.NoError(t, m.Scan(nil))
	assert.NotNil(t, m)
	assert.Empty(t, m)

	assert.Error(t, m.Scan(42))
}
