package utils_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/turfbook/turf-client/internal/utils"
)

func TestNonEmpty(t *testing.T) {
	require.Nil(t, utils.NonEmpty("   "))
	require.Equal(t, "0123", utils.Value(utils.NonEmpty(" 0123 ")))
}

func TestClonePtr(t *testing.T) {
	original := utils.Ptr("Main St")
	clone := utils.ClonePtr(original)
	require.Equal(t, *original, *clone)

	*clone = "Side St"
	require.Equal(t, "Main St", *original)
	require.Nil(t, utils.ClonePtr[string](nil))
}
