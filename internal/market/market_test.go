package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const klineFrame = `{"stream":"btcusdt@kline_1m","data":{"e":"kline","E":1700000000000,"s":"BTCUSDT",` +
	`"k":{"t":1700000000000,"s":"BTCUSDT","i":"1m","o":"37000.10","c":"37012.55","x":false}}}`

func TestDecode(t *testing.T) {
	at := time.Unix(1700000000, 0)
	msg, err := Decode([]byte(klineFrame), 7, at)
	require.NoError(t, err)

	assert.Equal(t, uint64(7), msg.Seq)
	assert.Equal(t, at, msg.ReceivedAt)
	assert.Equal(t, "btcusdt@kline_1m", msg.Stream())
	assert.Equal(t, klineFrame, string(msg.Raw))
}

func TestDecodeRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{``, `null`, `[1,2]`, `{"a":`, `"text"`} {
		_, err := Decode([]byte(raw), 1, time.Now())
		assert.ErrorIs(t, err, ErrDecode, raw)
	}
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	for _, raw := range []string{`{"a":1} garbage`, `{"a":1}{"b":2}`, `{"a":1} 5`} {
		_, err := Decode([]byte(raw), 1, time.Now())
		assert.ErrorIs(t, err, ErrDecode, raw)
	}

	_, err := Decode([]byte("  {\"a\":1}\n"), 1, time.Now())
	assert.NoError(t, err, "surrounding whitespace is not trailing data")
}

func TestKlineExtractor(t *testing.T) {
	msg, err := Decode([]byte(klineFrame), 1, time.Now())
	require.NoError(t, err)

	q, err := KlineExtractor().Extract(msg)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", q.Symbol)
	assert.True(t, decimal.RequireFromString("37012.55").Equal(q.Price), q.Price.String())
	assert.Equal(t, uint64(1), q.Seq)
}

func TestExtractorPartial(t *testing.T) {
	ext, err := NewExtractor("key", "value")
	require.NoError(t, err)

	tests := []struct {
		name  string
		frame string
		want  string
		err   error
	}{
		{name: "string price", frame: `{"key":"BTC","value":"100.5"}`, want: "100.5"},
		{name: "numeric price", frame: `{"key":"BTC","value":101.25}`, want: "101.25"},
		{name: "missing value", frame: `{"key":"ETH"}`, err: ErrMissingField},
		{name: "null value", frame: `{"key":"ETH","value":null}`, err: ErrMissingField},
		{name: "missing key", frame: `{"value":"1"}`, err: ErrMissingField},
		{name: "empty key", frame: `{"key":"","value":"1"}`, err: ErrMissingField},
		{name: "numeric key", frame: `{"key":5,"value":"1"}`, err: ErrMissingField},
		{name: "garbage price", frame: `{"key":"BTC","value":"abc"}`, err: ErrBadPrice},
		{name: "object price", frame: `{"key":"BTC","value":{"x":1}}`, err: ErrBadPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.frame), 1, time.Now())
			require.NoError(t, err)

			q, err := ext.Extract(msg)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(q.Price), q.Price.String())
		})
	}
}

func TestNestedPathThroughScalar(t *testing.T) {
	msg, err := Decode([]byte(`{"data":"not-an-object"}`), 1, time.Now())
	require.NoError(t, err)

	_, err = KlineExtractor().Extract(msg)
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestParsePath(t *testing.T) {
	p, err := ParsePath(" data.k.s ")
	require.NoError(t, err)
	assert.Equal(t, FieldPath{"data", "k", "s"}, p)
	assert.Equal(t, "data.k.s", p.String())

	for _, bad := range []string{"", "  ", "data..s", ".data", "data."} {
		_, err := ParsePath(bad)
		assert.Error(t, err, bad)
	}
	assert.Panics(t, func() { MustParsePath("") })

	_, err = NewExtractor("data.k.s", "")
	assert.Error(t, err)
}
