package nats

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/dipscope/pkg/model"
)

func TestSplitBatches(t *testing.T) {
	bars := make([]model.Bar, 5)
	for i := range bars {
		bars[i].Close = float64(i)
	}

	batches := SplitBatches("a.csv.gz", bars, 2)
	require.Len(t, batches, 3)
	assert.Equal(t, []float64{0, 1}, model.Closes(batches[0].Bars))
	assert.Equal(t, []float64{4}, model.Closes(batches[2].Bars))
	assert.Equal(t, 4, batches[2].Offset)
	assert.Equal(t, 5, batches[2].Total)
	assert.True(t, strings.HasPrefix(batches[2].MsgID(), "a.csv.gz@4/5#"), batches[2].MsgID())

	assert.Len(t, SplitBatches("x", bars, 0), 1)
	assert.Empty(t, SplitBatches("x", nil, 10))
}

func TestBarBatchRoundTrip(t *testing.T) {
	msg := BarBatchMsg{
		Source: "a.csv.gz",
		Offset: 3,
		Total:  9,
		Bars: []model.Bar{{
			Symbol:    "BTCUSDT",
			Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Close:     42,
		}},
	}

	data, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := DecodeBarBatch(data)
	require.NoError(t, err)
	assert.Equal(t, msg.Source, decoded.Source)
	assert.Equal(t, msg.Offset, decoded.Offset)
	assert.Equal(t, msg.Total, decoded.Total)
	assert.Equal(t, msg.MsgID(), decoded.MsgID())
	assert.True(t, msg.Bars[0].Timestamp.Equal(decoded.Bars[0].Timestamp))
	assert.Equal(t, 42.0, decoded.Bars[0].Close)

	_, err = DecodeBarBatch([]byte("{"))
	assert.Error(t, err)
}

func TestMsgID_TracksContent(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := []model.Bar{
		{Symbol: "BTCUSDT", Timeframe: "1m", Timestamp: start, Close: 100},
		{Symbol: "BTCUSDT", Timeframe: "1m", Timestamp: start.Add(time.Minute), Close: 98},
	}
	base := SplitBatches("a.csv.gz", bars, 10)[0]

	same := SplitBatches("a.csv.gz", append([]model.Bar(nil), bars...), 10)[0]
	assert.Equal(t, base.MsgID(), same.MsgID())

	edited := append([]model.Bar(nil), bars...)
	edited[1].Close = 97
	assert.NotEqual(t, base.MsgID(), SplitBatches("a.csv.gz", edited, 10)[0].MsgID())

	moved := append([]model.Bar(nil), bars...)
	moved[1].Timestamp = start.Add(2 * time.Minute)
	assert.NotEqual(t, base.MsgID(), SplitBatches("a.csv.gz", moved, 10)[0].MsgID())

	assert.NotEqual(t, base.MsgID(), SplitBatches("b.csv.gz", bars, 10)[0].MsgID())
}
