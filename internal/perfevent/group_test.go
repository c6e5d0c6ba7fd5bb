package perfevent

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeGroupFormat(timeEnabled, timeRunning uint64, counters []groupCounter) []byte {
	buf := make([]byte, 24+len(counters)*16)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(len(counters)))
	binary.LittleEndian.PutUint64(buf[8:16], timeEnabled)
	binary.LittleEndian.PutUint64(buf[16:24], timeRunning)
	off := 24
	for _, c := range counters {
		binary.LittleEndian.PutUint64(buf[off:off+8], c.value)
		binary.LittleEndian.PutUint64(buf[off+8:off+16], c.id)
		off += 16
	}
	return buf
}

func TestParseGroupFormat(t *testing.T) {
	buf := encodeGroupFormat(1_000_000, 900_000, []groupCounter{
		{value: 42, id: 7},
		{value: 99, id: 8},
	})

	parsed, err := parseGroupFormat(buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), parsed.timeEnabled)
	assert.Equal(t, uint64(900_000), parsed.timeRunning)
	require.Len(t, parsed.counters, 2)
	assert.Equal(t, groupCounter{value: 42, id: 7}, parsed.counters[0])
	assert.Equal(t, groupCounter{value: 99, id: 8}, parsed.counters[1])
}

func TestParseGroupFormatTruncated(t *testing.T) {
	buf := encodeGroupFormat(0, 0, []groupCounter{{value: 1, id: 1}})
	_, err := parseGroupFormat(buf[:len(buf)-4])
	assert.Error(t, err)
}

func TestParseGroupFormatEmpty(t *testing.T) {
	buf := encodeGroupFormat(0, 0, nil)
	parsed, err := parseGroupFormat(buf)
	require.NoError(t, err)
	assert.Empty(t, parsed.counters)
}
