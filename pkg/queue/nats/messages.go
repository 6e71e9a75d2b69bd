package nats

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/tunogya/dipscope/pkg/model"
)

// SubjectBarWrite carries BarBatchMsg payloads for the store writer
const SubjectBarWrite = "dipscope.bars.write"

// BarBatchMsg is a run of consecutive bars from one source file.
// Offset is the row of the first bar in the file and Total is the
// file's row count, so the writer can place every bar at its row no
// matter how batches are split.
type BarBatchMsg struct {
	Source string      `json:"source"`
	Offset int         `json:"offset"`
	Total  int         `json:"total"`
	Bars   []model.Bar `json:"bars"`
}

// MsgID identifies the batch for JetStream de-duplication. It covers the
// bar content as well as the position, so a re-exported file with changed
// rows is not mistaken for a duplicate.
func (m BarBatchMsg) MsgID() string {
	return fmt.Sprintf("%s@%d/%d#%016x", m.Source, m.Offset, m.Total, m.contentHash())
}

func (m BarBatchMsg) contentHash() uint64 {
	d := xxhash.New()
	var buf [8]byte
	putUint := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		d.Write(buf[:])
	}
	for _, b := range m.Bars {
		d.WriteString(b.Symbol)
		d.Write([]byte{0})
		d.WriteString(b.Timeframe)
		d.Write([]byte{0})
		putUint(uint64(b.Timestamp.UnixNano()))
		for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
			putUint(math.Float64bits(v))
		}
	}
	return d.Sum64()
}

// Encode serializes a message to JSON bytes
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeBarBatch deserializes a BarBatchMsg from JSON bytes
func DecodeBarBatch(data []byte) (*BarBatchMsg, error) {
	var msg BarBatchMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode bar batch: %w", err)
	}
	return &msg, nil
}

// SplitBatches chunks the bars of one source file into messages of at
// most size bars each
func SplitBatches(source string, bars []model.Bar, size int) []BarBatchMsg {
	if size <= 0 {
		size = len(bars)
	}

	var batches []BarBatchMsg
	for i := 0; i < len(bars); i += size {
		end := min(i+size, len(bars))
		batches = append(batches, BarBatchMsg{
			Source: source,
			Offset: i,
			Total:  len(bars),
			Bars:   bars[i:end],
		})
	}
	return batches
}
