package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuote(t *testing.T) {
	quote, err := parseQuote([]byte(`{"symbol":"NG2609","bid":"2.415","ask":"2.417","ts":1756500000000}`))
	require.NoError(t, err)
	assert.Equal(t, "NG2609", quote.Symbol)
	assert.Equal(t, "2.415", quote.Bid.String())
	assert.Equal(t, "2.417", quote.Ask.String())
	assert.True(t, quote.Valid)
	assert.Equal(t, int64(1756500000000), quote.At.UnixMilli())
}

func TestParseQuoteRejections(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{bid:`},
		{"missing symbol", `{"bid":"1","ask":"2"}`},
		{"bad bid", `{"symbol":"NG","bid":"x","ask":"2"}`},
		{"bad ask", `{"symbol":"NG","bid":"1","ask":""}`},
		{"crossed", `{"symbol":"NG","bid":"2.5","ask":"2.4"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseQuote([]byte(tc.raw))
			assert.Error(t, err)
		})
	}
}

func TestParseQuoteDefaultsTimestamp(t *testing.T) {
	quote, err := parseQuote([]byte(`{"symbol":"NG","bid":"1","ask":"1"}`))
	require.NoError(t, err)
	assert.False(t, quote.At.IsZero())
}
