package comm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetThemeReturnsAKnownTheme(t *testing.T) {
	th := GetTheme()
	require.NotNil(t, th)
	require.NotEmpty(t, th.OpSign)
}

func TestStartProgressNoopsWhenNoProgress(t *testing.T) {
	Configure(Options{NoProgress: true})
	defer Configure(Options{})

	StartProgress(100)
	require.Nil(t, bar)
	SetHunkCount(5) // must not panic with no active bar
	EndProgress()
}

func TestStartProgressWithZeroEstimate(t *testing.T) {
	Configure(Options{})
	StartProgress(0)
	require.NotNil(t, bar)
	SetHunkCount(3)
	EndProgress()
	require.Nil(t, bar)
}

func TestSetThemeOverridesAutodetect(t *testing.T) {
	original := GetTheme()
	defer func() { theme = original }()

	require.NoError(t, SetTheme("ascii"))
	require.Equal(t, themes["ascii"], GetTheme())
}

func TestSetThemeEmptyNameKeepsAutodetect(t *testing.T) {
	original := GetTheme()
	defer func() { theme = original }()

	require.NoError(t, SetTheme(""))
	require.Equal(t, original, GetTheme())
}

func TestSetThemeUnknownNameReturnsErrorAndKeepsPrevious(t *testing.T) {
	original := GetTheme()
	defer func() { theme = original }()

	err := SetTheme("nonexistent")
	require.Error(t, err)
	require.Equal(t, original, GetTheme())
}
