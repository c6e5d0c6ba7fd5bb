package fdinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNsValue(t *testing.T) {
	assert.Equal(t, uint64(123456), parseNsValue("123456 ns"))
	assert.Equal(t, uint64(0), parseNsValue(""))
}

func TestParseByteValue(t *testing.T) {
	assert.Equal(t, uint64(2048), parseByteValue("2 KiB"))
	assert.Equal(t, uint64(5), parseByteValue("5"))
}

func TestMergeClientSumsEngineTime(t *testing.T) {
	dst := &Client{RenderNs: 10, MemoryBytes: 100}
	mergeClient(dst, Client{RenderNs: 5, VideoNs: 7, MemoryBytes: 50})
	assert.Equal(t, uint64(15), dst.RenderNs)
	assert.Equal(t, uint64(7), dst.VideoNs)
	assert.Equal(t, uint64(100), dst.MemoryBytes) // max, not sum, across fds
}

func TestListOnThisHostDoesNotError(t *testing.T) {
	_, err := List()
	assert.NoError(t, err)
}
