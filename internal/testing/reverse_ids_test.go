package testing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReverseIDs(t *testing.T) {
	ids := []int64{1, 2, 3, 4, 5}
	require.Equal(t, []int64{5, 4, 3, 2, 1}, ReverseIDs(ids))
	require.Equal(t, []int64{1, 2, 3, 4, 5}, ids)
}

func TestReverseIDsEmpty(t *testing.T) {
	require.Equal(t, []int64{}, ReverseIDs(nil))
}
