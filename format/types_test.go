package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		name string
		want Strategy
	}{
		{name: "1se", want: Strategy1SE},
		{name: "AIC", want: StrategyAIC},
		{name: "aic", want: StrategyAIC},
		{name: "BIC", want: StrategyBIC},
		{name: "bic", want: StrategyBIC},
		{name: "cv", want: Strategy(0)},
		{name: "", want: Strategy(0)},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, ParseStrategy(tt.name), "ParseStrategy(%q)", tt.name)
	}
}

func TestStrategy_StringRoundTrip(t *testing.T) {
	for _, s := range []Strategy{Strategy1SE, StrategyAIC, StrategyBIC} {
		require.Equal(t, s, ParseStrategy(s.String()))
	}
	require.Equal(t, "unknown", Strategy(0).String())
}

func TestVariableKind_String(t *testing.T) {
	require.Equal(t, "categorical", KindCategorical.String())
	require.Equal(t, "numeric", KindNumeric.String())
	require.Equal(t, "unknown", VariableKind(0xFF).String())
}

func TestCompressionType_String(t *testing.T) {
	require.Equal(t, "None", CompressionNone.String())
	require.Equal(t, "Zstd", CompressionZstd.String())
	require.Equal(t, "S2", CompressionS2.String())
	require.Equal(t, "LZ4", CompressionLZ4.String())
}

func TestTransformKind_String(t *testing.T) {
	require.Equal(t, "identity", TransformIdentity.String())
	require.Equal(t, "onehot", TransformOneHot.String())
	require.Equal(t, "spline", TransformSpline.String())
	require.Equal(t, "interaction", TransformInteraction.String())
}
