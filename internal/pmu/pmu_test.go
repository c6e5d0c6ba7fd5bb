package pmu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseHexOrDec(t *testing.T) {
	v, ok := parseHexOrDec("0x1a")
	assert.True(t, ok)
	assert.Equal(t, uint64(0x1a), v)

	v, ok = parseHexOrDec("26")
	assert.True(t, ok)
	assert.Equal(t, uint64(26), v)

	v, ok = parseHexOrDec("0X1A")
	assert.True(t, ok)
	assert.Equal(t, uint64(0x1a), v)

	_, ok = parseHexOrDec("not-a-number")
	assert.False(t, ok)
}

func TestParseEventConfig(t *testing.T) {
	v, ok := parseEventConfig("config=0x1\n")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), v)

	v, ok = parseEventConfig("config=10")
	assert.True(t, ok)
	assert.Equal(t, uint64(10), v)

	v, ok = parseEventConfig("config=0x1,gt=0")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), v)
}

func TestEngineConfig(t *testing.T) {
	assert.Equal(t, uint64(0), EngineConfig(EngineRender, 0, SampleBusy))
	assert.Equal(t, uint64(1), EngineConfig(EngineRender, 0, SampleWait))
	assert.Equal(t, uint64(2), EngineConfig(EngineRender, 0, SampleSema))
	assert.Equal(t, uint64(0x020000), EngineConfig(EngineVideo, 0, SampleBusy))
	assert.Equal(t, uint64(0x020100), EngineConfig(EngineVideo, 1, SampleBusy))
	assert.Equal(t, uint64(0x040000), EngineConfig(EngineCompute, 0, SampleBusy))
}

func TestParseI915BusyName(t *testing.T) {
	class, instance, ok := parseI915BusyName("rcs0-busy")
	assert.True(t, ok)
	assert.Equal(t, EngineRender, class)
	assert.Equal(t, uint16(0), instance)

	class, instance, ok = parseI915BusyName("vcs1-busy")
	assert.True(t, ok)
	assert.Equal(t, EngineVideo, class)
	assert.Equal(t, uint16(1), instance)

	class, instance, ok = parseI915BusyName("ccs2-busy")
	assert.True(t, ok)
	assert.Equal(t, EngineCompute, class)
	assert.Equal(t, uint16(2), instance)

	_, _, ok = parseI915BusyName("not-relevant")
	assert.False(t, ok)
}

func TestParseXeGroupBusyName(t *testing.T) {
	classes, instance, ok := parseXeGroupBusyName("media-group-busy")
	assert.True(t, ok)
	assert.ElementsMatch(t, []EngineClass{EngineVideo, EngineVideoEnhance}, classes)
	assert.Equal(t, uint16(0), instance)

	classes, instance, ok = parseXeGroupBusyName("render-group-busy")
	assert.True(t, ok)
	assert.Equal(t, []EngineClass{EngineRender}, classes)
	assert.Equal(t, uint16(0), instance)
}

func TestInfoEventConfigAndEventDesc(t *testing.T) {
	info := Info{Events: map[string]EventDesc{
		"actual-frequency": {Config: 0x1a, Unit: "Hz", Scale: 1e-6},
	}}

	config, ok := info.EventConfig("actual-frequency")
	assert.True(t, ok)
	assert.Equal(t, uint64(0x1a), config)

	desc, ok := info.EventDesc("actual-frequency")
	assert.True(t, ok)
	assert.Equal(t, "Hz", desc.Unit)
	assert.InDelta(t, 1e-6, desc.Scale, 1e-12)

	_, ok = info.EventConfig("missing")
	assert.False(t, ok)
}

func TestGetEngineInstancesFallsBackToDefault(t *testing.T) {
	info := Info{Events: map[string]EventDesc{}}
	instances := GetEngineInstances(info)
	assert.Contains(t, instances, EngineRender)
	assert.Contains(t, instances, EngineCopy)
	assert.Contains(t, instances, EngineVideo)
	assert.Contains(t, instances, EngineVideoEnhance)
}
