package acq

import (
	"testing"

	"github.com/itohio/goacq/pkg/adc"
	"github.com/itohio/goacq/pkg/config"
	"github.com/itohio/goacq/pkg/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type update struct {
	index int
	raw   uint16
	ts    uint32
}

// recordingGroup captures every UpdateAt call.
type recordingGroup struct {
	updates []update
}

func (g *recordingGroup) UpdateAt(index int, raw uint16, ts uint32) {
	g.updates = append(g.updates, update{index, raw, ts})
}

func (g *recordingGroup) timestamps(stride int) []uint32 {
	var out []uint32
	for i := 0; i < len(g.updates); i += stride {
		out = append(out, g.updates[i].ts)
	}
	return out
}

func newSensorGroup(t *testing.T) ([]*sensor.Sensor, *sensor.Group) {
	t.Helper()
	reg, err := sensor.NewRegistry(config.Default().Sensors.IDs)
	require.NoError(t, err)
	sensors := reg.Sensors()
	g, err := sensor.NewGroup(sensors, nil)
	require.NoError(t, err)
	return sensors, g
}

func TestApplySequence_ADC1(t *testing.T) {
	s, g := newSensorGroup(t)
	values := []uint16{101, 103, 105, 107, 109, 111, 112}

	ApplySequence(values, RankMap(config.Default().Sensors.ADC1Rank), g, 123)

	for _, id := range []int{1, 3, 5, 7, 9, 11, 12} {
		assert.Equal(t, uint16(100+id), s[id-1].LastRaw(), "sensor %d", id)
		assert.Equal(t, uint32(123), s[id-1].LastTimestamp(), "sensor %d", id)
	}
	for _, id := range []int{2, 4, 6, 8, 10, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22} {
		assert.Equal(t, uint16(0), s[id-1].LastRaw(), "sensor %d", id)
		assert.Equal(t, uint32(0), s[id-1].LastTimestamp(), "sensor %d", id)
	}
}

func TestApplySequence_ADC3(t *testing.T) {
	s, g := newSensorGroup(t)
	values := []uint16{213, 214, 217, 218, 219, 220, 221, 222}

	ApplySequence(values, RankMap(config.Default().Sensors.ADC3Rank), g, 987)

	assert.Equal(t, uint16(213), s[12].LastRaw())
	assert.Equal(t, uint16(214), s[13].LastRaw())
	assert.Equal(t, uint16(222), s[21].LastRaw())
	assert.Equal(t, uint32(987), s[21].LastTimestamp())
	assert.Equal(t, uint16(0), s[14].LastRaw())
}

func TestApplySequence_EdgeCases(t *testing.T) {
	g := &recordingGroup{}

	ApplySequence([]uint16{1, 2}, RankMap{1, 2, 3}, g, 5)
	assert.Empty(t, g.updates)

	ApplySequence([]uint16{1, 2, 3}, RankMap{4, 0, 200}, g, 5)
	assert.Equal(t, []update{{3, 1, 5}, {199, 3, 5}}, g.updates)
}

func TestTicksPerSequenceEstimate(t *testing.T) {
	assert.Equal(t, uint32(667), TicksPerSequenceEstimate(1500, 1_000_000))
	assert.Equal(t, uint32(1000), TicksPerSequenceEstimate(1000, 1_000_000))
	assert.Equal(t, uint32(0), TicksPerSequenceEstimate(0, 1_000_000))
	assert.Equal(t,
		config.Default().Acquisition.TicksPerSequenceEstimate(),
		TicksPerSequenceEstimate(1500, 1_000_000))
}

func TestTimestampStepper(t *testing.T) {
	s := NewTimestampStepper(667)

	assert.Equal(t, uint32(667), s.Step(1000, 4))
	assert.Equal(t, uint32(100), s.Step(1400, 4))
	assert.Equal(t, uint32(150), s.Step(2000, 4))

	s.Reset()
	assert.Equal(t, uint32(667), s.Step(5000, 4))
}

func frame(g adc.Group, seqID, ts uint32, sequences int) adc.FrameDescriptor {
	n := sequences * g.Ranks()
	data := make([]uint16, n)
	for i := range data {
		data[i] = uint16(i + 1)
	}
	return adc.FrameDescriptor{
		Group:          g,
		SequenceID:     seqID,
		TimestampTicks: ts,
		Data:           data,
		ElementCount:   uint16(n),
		ElementSize:    2,
	}
}

func TestFrameDecoder_InterpolatesTimestamps(t *testing.T) {
	g := &recordingGroup{}
	d, err := NewFrameDecoder(RankMap(config.Default().Sensors.ADC1Rank), g, 667)
	require.NoError(t, err)

	require.Equal(t, 4, d.Decode(frame(adc.ADC1, 1, 3000, 4)))
	assert.Equal(t, []uint32{999, 1666, 2333, 3000}, g.timestamps(7))

	g.updates = nil
	require.Equal(t, 4, d.Decode(frame(adc.ADC1, 2, 3400, 4)))
	assert.Equal(t, []uint32{3100, 3200, 3300, 3400}, g.timestamps(7))

	// rank 0 of sequence 2 is the 15th element
	assert.Equal(t, update{index: 0, raw: 15, ts: 3300}, g.updates[14])
	assert.Equal(t, update{index: 11, raw: 28, ts: 3400}, g.updates[27])
}

func TestFrameDecoder_Wraparound(t *testing.T) {
	g := &recordingGroup{}
	d, err := NewFrameDecoder(RankMap(config.Default().Sensors.ADC3Rank), g, 667)
	require.NoError(t, err)

	d.Decode(frame(adc.ADC3, 1, 0xFFFF_FF00, 4))
	g.updates = nil
	d.Decode(frame(adc.ADC3, 2, 0x0000_0100, 4))

	// 0x200 ticks over 4 sequences
	assert.Equal(t, []uint32{0xFFFF_FF80, 0x0000_0000, 0x0000_0080, 0x0000_0100}, g.timestamps(8))
}

func TestFrameDecoder_FirstFrameWrapsBackward(t *testing.T) {
	g := &recordingGroup{}
	d, err := NewFrameDecoder(RankMap{1}, g, 100)
	require.NoError(t, err)

	d.Decode(adc.FrameDescriptor{SequenceID: 1, TimestampTicks: 50, Data: []uint16{1, 2, 3}, ElementCount: 3})
	assert.Equal(t, []uint32{0xFFFF_FF6A, 0xFFFF_FFCE, 50}, g.timestamps(1))
}

func TestFrameDecoder_IgnoresShortFrames(t *testing.T) {
	g := &recordingGroup{}
	d, err := NewFrameDecoder(RankMap(config.Default().Sensors.ADC3Rank), g, 667)
	require.NoError(t, err)

	desc := frame(adc.ADC3, 1, 1000, 1)
	desc.ElementCount = 7
	assert.Equal(t, 0, d.Decode(desc))
	assert.Empty(t, g.updates)

	// a skipped frame does not record a timestamp
	d.Decode(frame(adc.ADC3, 2, 2000, 1))
	assert.Equal(t, []uint32{2000}, g.timestamps(8))
}

func TestFrameDecoder_PartialTrailingSequence(t *testing.T) {
	g := &recordingGroup{}
	d, err := NewFrameDecoder(RankMap{1, 2}, g, 10)
	require.NoError(t, err)

	desc := adc.FrameDescriptor{SequenceID: 1, TimestampTicks: 100, Data: []uint16{1, 2, 3, 4, 5}, ElementCount: 5}
	assert.Equal(t, 2, d.Decode(desc))
	assert.Len(t, g.updates, 4)
}

func TestFrameDecoder_SequenceGap(t *testing.T) {
	g := &recordingGroup{}
	d, err := NewFrameDecoder(RankMap(config.Default().Sensors.ADC2Rank), g, 667)
	require.NoError(t, err)

	d.Decode(frame(adc.ADC2, 1, 1000, 4))
	g.updates = nil
	d.Decode(frame(adc.ADC2, 3, 1800, 4))

	assert.Equal(t, []uint32{1500, 1600, 1700, 1800}, g.timestamps(7))
	assert.Equal(t, uint64(1), d.Missed())
}

func TestFrameDecoder_LargeGapUsesEstimate(t *testing.T) {
	tests := []struct {
		name  string
		first uint32
		next  uint32
	}{
		{name: "gap past limit", first: 1, next: 200},
		{name: "id went backwards", first: 50, next: 3},
		{name: "just past limit", first: 1, next: 2 + maxSequenceGap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &recordingGroup{}
			d, err := NewFrameDecoder(RankMap(config.Default().Sensors.ADC2Rank), g, 667)
			require.NoError(t, err)

			d.Decode(frame(adc.ADC2, tt.first, 1000, 4))
			g.updates = nil
			d.Decode(frame(adc.ADC2, tt.next, 1000+199*2668, 4))

			assert.Equal(t, []uint32{529931, 530598, 531265, 531932}, g.timestamps(7))
			assert.Zero(t, d.Missed())
		})
	}
}

func TestFrameDecoder_GapAtLimitIsCorrected(t *testing.T) {
	g := &recordingGroup{}
	d, err := NewFrameDecoder(RankMap{1}, g, 10)
	require.NoError(t, err)

	d.Decode(adc.FrameDescriptor{SequenceID: 1, TimestampTicks: 1000, Data: []uint16{1, 2}, ElementCount: 2})
	g.updates = nil
	d.Decode(adc.FrameDescriptor{SequenceID: 1 + maxSequenceGap, TimestampTicks: 1000 + 2*maxSequenceGap*5, Data: []uint16{1, 2}, ElementCount: 2})

	assert.Equal(t, []uint32{1635, 1640}, g.timestamps(1))
	assert.Equal(t, uint64(maxSequenceGap-1), d.Missed())
}

func TestFrameDecoder_Reset(t *testing.T) {
	g := &recordingGroup{}
	d, err := NewFrameDecoder(RankMap{1}, g, 10)
	require.NoError(t, err)

	d.Decode(adc.FrameDescriptor{SequenceID: 1, TimestampTicks: 1000, Data: []uint16{1, 2}, ElementCount: 2})
	d.Reset()
	g.updates = nil
	d.Decode(adc.FrameDescriptor{SequenceID: 9, TimestampTicks: 5000, Data: []uint16{1, 2}, ElementCount: 2})

	assert.Equal(t, []uint32{4990, 5000}, g.timestamps(1))
	assert.Equal(t, uint64(0), d.Missed())
}

func TestNewFrameDecoder_Invalid(t *testing.T) {
	_, err := NewFrameDecoder(nil, &recordingGroup{}, 1)
	assert.Error(t, err)
	_, err = NewFrameDecoder(RankMap{1}, nil, 1)
	assert.Error(t, err)
}
