package colorname

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClosest(t *testing.T) {
	tests := []struct {
		r, g, b uint8
		want    string
	}{
		{255, 255, 255, "white"},
		{0, 0, 0, "black"},
		{200, 30, 30, "red"},
		{30, 65, 175, "blue"},
		{130, 130, 130, "gray"},
		{35, 145, 65, "green"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Closest(tt.r, tt.g, tt.b))
	}
}

func TestMatch(t *testing.T) {
	require.True(t, Match("White", "white"))
	require.True(t, Match("BLUE", "Blue"))
	require.False(t, Match("white", "black"))
	require.False(t, Match("", "white"))
	require.False(t, Match("white", ""))
	require.False(t, Match("", ""))
}

func TestMajorityFraudNoData(t *testing.T) {
	res := MajorityFraud("white", nil, 0.65)
	require.False(t, res.Fraud)
	require.Equal(t, "no_colors", res.Reason)

	res = MajorityFraud("", []string{"white"}, 0.65)
	require.False(t, res.Fraud)
	require.Equal(t, "no_registered", res.Reason)

	res = MajorityFraud("white", []string{"", "  "}, 0.65)
	require.False(t, res.Fraud)
	require.Equal(t, "no_valid_colors", res.Reason)
}

func TestMajorityFraudRatio(t *testing.T) {
	// 2 of 3 mismatch: ratio 0.667 crosses 0.65.
	res := MajorityFraud("white", []string{"red", "red", "white"}, 0.65)
	require.True(t, res.Fraud)
	require.Equal(t, "color_mismatch", res.Reason)
	require.InDelta(t, 2.0/3.0, res.MismatchRatio, 1e-9)
	require.Equal(t, 3, res.Samples)

	// 1 of 3 mismatch stays below the threshold.
	res = MajorityFraud("white", []string{"red", "white", "white"}, 0.65)
	require.False(t, res.Fraud)
	require.Equal(t, "ok", res.Reason)

	// Case-insensitive.
	res = MajorityFraud("White", []string{"WHITE", "white"}, 0.65)
	require.False(t, res.Fraud)
	require.Zero(t, res.MismatchRatio)
}

func TestConsensus(t *testing.T) {
	require.Equal(t, "white", Consensus([]string{"white", "red", "White"}))
	require.Equal(t, "red", Consensus([]string{"red", "white"}))
	require.Equal(t, "", Consensus(nil))
	require.Equal(t, "", Consensus([]string{"", " "}))
}
