package filtergraph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuild_VideoLabelPresentOnlyWhenVideoInputs(t *testing.T) {
	_, videoLabel, _ := Build(0, 2, 1280, 720)
	require.Empty(t, videoLabel)

	_, videoLabel, _ = Build(1, 0, 1280, 720)
	require.NotEmpty(t, videoLabel)
}

func TestBuild_AudioLabelEmptyWithNoAudioInputs(t *testing.T) {
	_, _, audioLabel := Build(2, 0, 1280, 720)
	require.Empty(t, audioLabel)
}

func TestBuild_SingleAudioInputUsesResampleNotMix(t *testing.T) {
	expr, _, audioLabel := Build(1, 1, 1280, 720)
	require.Contains(t, expr, "aresample")
	require.NotContains(t, expr, "amix")
	require.NotEmpty(t, audioLabel)
}

func TestBuild_MultipleAudioInputsUseAmix(t *testing.T) {
	expr, _, audioLabel := Build(2, 3, 1280, 720)
	require.Contains(t, expr, "amix=inputs=3")
	require.Equal(t, "amix", audioLabel)
}

func TestBuild_FiveVideoInputsCapAtFour(t *testing.T) {
	expr5, _, _ := Build(5, 0, 1280, 720)
	expr4, _, _ := Build(4, 0, 1280, 720)
	require.Equal(t, expr4, expr5, "more than MaxVideoInputs producers must be capped, not rejected")
}

func TestGrid_CellDimensionsPerInputCount(t *testing.T) {
	cases := []struct {
		v          int
		wantCW     int
		wantCH     int
		wantCells  int
	}{
		{1, 1280, 720, 1},
		{2, 640, 720, 2},
		{3, 640, 360, 3},
		{4, 640, 360, 4},
	}
	for _, tc := range cases {
		cw, ch, cells := grid(tc.v, 1280, 720)
		require.Equal(t, tc.wantCW, cw, "V=%d cell width", tc.v)
		require.Equal(t, tc.wantCH, ch, "V=%d cell height", tc.v)
		require.Len(t, cells, tc.wantCells, "V=%d cell count", tc.v)
	}
}

func TestGrid_V3LeavesFourthCellEmpty(t *testing.T) {
	_, _, cells := grid(3, 1280, 720)
	require.Len(t, cells, 3, "V=3 must only place three overlays, leaving one cell black")
}

func TestBuild_ZeroInputsProducesEmptyLabelsNoCrash(t *testing.T) {
	expr, videoLabel, audioLabel := Build(0, 0, 1280, 720)
	require.Empty(t, expr)
	require.Empty(t, videoLabel)
	require.Empty(t, audioLabel)
}
