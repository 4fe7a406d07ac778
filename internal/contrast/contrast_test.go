package contrast

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mittoalb/pystream-sub000/internal/types"
)

func monoFrame(pix types.Payload, w, h int) types.DecodedFrame {
	return types.DecodedFrame{Width: w, Height: h, Channels: 1, Pix: pix}
}

func TestEstimateEmpty(t *testing.T) {
	require.Equal(t, Window{}, Estimate(types.DecodedFrame{}))
}

func TestEstimateFlatFrame(t *testing.T) {
	pix := make(types.Buf[uint16], 64)
	for i := range pix {
		pix[i] = 5
	}
	win := Estimate(monoFrame(pix, 8, 8))
	// Percentiles collapse; fall back to the sample min/max.
	require.Equal(t, 5.0, win.Low)
	require.Equal(t, 5.0, win.High)
	require.True(t, win.Degenerate())
}

func TestEstimateRamp(t *testing.T) {
	pix := make(types.Buf[uint16], 1000)
	for i := range pix {
		pix[i] = uint16(i)
	}
	win := Estimate(monoFrame(pix, 1000, 1))
	require.False(t, win.Degenerate())
	require.GreaterOrEqual(t, win.Low, 0.0)
	require.LessOrEqual(t, win.Low, 10.0)
	require.GreaterOrEqual(t, win.High, 990.0)
	require.LessOrEqual(t, win.High, 999.0)
}

func TestEstimateIgnoresRareOutliers(t *testing.T) {
	// A handful of hot pixels must not blow the window open.
	pix := make(types.Buf[float64], 1000)
	for i := 0; i < 997; i++ {
		pix[i] = float64(i)
	}
	pix[997], pix[998], pix[999] = 1e9, 1e9, 1e9
	win := Estimate(monoFrame(pix, 1000, 1))
	require.False(t, win.Degenerate())
	require.Less(t, win.High, 1e6)
}

func TestEstimateSamplesAllChannels(t *testing.T) {
	frame := types.DecodedFrame{Width: 1, Height: 1, Channels: 3, Pix: types.Buf[uint8]{0, 100, 200}}
	win := Estimate(frame)
	require.Equal(t, 0.0, win.Low)
	require.Equal(t, 200.0, win.High)
}

func TestStride(t *testing.T) {
	require.Equal(t, 1, stride(1))
	require.Equal(t, 1, stride(512))
	require.Equal(t, 2, stride(1024))
	require.Equal(t, 9, stride(5000))
}
