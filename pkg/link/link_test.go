package link

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/itohio/goacq/pkg/config"
	"github.com/itohio/goacq/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = time.Millisecond
)

func drain(ch <-chan Sample) []uint32 {
	var values []uint32
	for {
		select {
		case s := <-ch:
			values = append(values, s.Value)
		default:
			return values
		}
	}
}

func TestDecoder_Decode(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    []uint32
		wantErr bool
	}{
		{
			name:  "empty stream",
			input: nil,
		},
		{
			name:  "single value",
			input: []byte{0x2A, 0x00, 0x00, 0x00},
			want:  []uint32{42},
		},
		{
			name:  "little endian",
			input: []byte{0x78, 0x56, 0x34, 0x12, 0xFF, 0xFF, 0xFF, 0xFF},
			want:  []uint32{0x12345678, 0xFFFFFFFF},
		},
		{
			name:    "truncated frame",
			input:   []byte{0x01, 0x00, 0x00, 0x00, 0x02, 0x00},
			want:    []uint32{1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := make(chan Sample, 8)
			d := NewDecoder(out)
			err := d.Decode(context.Background(), bytes.NewReader(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, drain(out))
			assert.Zero(t, d.Dropped())
		})
	}
}

func TestDecoder_DropsWhenFull(t *testing.T) {
	out := make(chan Sample, 2)
	d := NewDecoder(out)
	input := make([]byte, 5*telemetry.FrameSize)

	require.NoError(t, d.Decode(context.Background(), bytes.NewReader(input)))
	assert.Len(t, drain(out), 2)
	assert.Equal(t, uint64(3), d.Dropped())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("device gone") }

func TestDecoder_ReadError(t *testing.T) {
	d := NewDecoder(make(chan Sample, 1))
	assert.ErrorContains(t, d.Decode(context.Background(), failingReader{}), "device gone")
}

func TestDecoder_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan Sample, 1)
	d := NewDecoder(out)

	assert.NoError(t, d.Decode(ctx, bytes.NewReader(make([]byte, 8))))
	assert.Empty(t, drain(out))
}

func TestDecoder_RoundTripsStreamSender(t *testing.T) {
	var buf bytes.Buffer
	s := telemetry.NewStreamSender(&buf)
	for _, v := range []uint32{0, 1, 1234, 0xDEADBEEF} {
		s.Send(v)
	}

	out := make(chan Sample, 8)
	require.NoError(t, NewDecoder(out).Decode(context.Background(), &buf))
	assert.Equal(t, []uint32{0, 1, 1234, 0xDEADBEEF}, drain(out))
}

func TestMilli(t *testing.T) {
	assert.InDelta(t, 0.8, Milli(800), 1e-9)
	assert.Zero(t, Milli(0))
}

func TestSerial_ConnectMissingPort(t *testing.T) {
	s := NewSerial("/dev/does-not-exist", 0, 0)
	assert.Error(t, s.Connect())
	assert.False(t, s.IsConnected())
	assert.NoError(t, s.Close())
}

func TestWebsocket_ReceivesHubValues(t *testing.T) {
	hub := telemetry.NewHub(16)
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	src := NewWebsocket("ws"+strings.TrimPrefix(server.URL, "http"), 16)
	require.NoError(t, src.Connect())
	assert.True(t, src.IsConnected())
	assert.Error(t, src.Connect())
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, waitFor, tick)

	hub.Send(7)
	hub.Send(0x01020304)

	var got []uint32
	deadline := time.After(waitFor)
	for len(got) < 2 {
		select {
		case s := <-src.Samples():
			got = append(got, s.Value)
			assert.False(t, s.Timestamp.IsZero())
		case <-deadline:
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.Equal(t, []uint32{7, 0x01020304}, got)

	require.NoError(t, src.Close())
	assert.False(t, src.IsConnected())
	assert.Error(t, src.Connect())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, waitFor, tick)
}

func TestWebsocket_ConnectFails(t *testing.T) {
	src := NewWebsocket("ws://127.0.0.1:1/telemetry", 0)
	assert.Error(t, src.Connect())
	assert.NoError(t, src.Close())
}

func TestMock_StreamsSensor(t *testing.T) {
	m := NewMock(nil, 5, telemetry.Processed)
	require.NoError(t, m.Connect())

	got := 0
	deadline := time.After(waitFor)
	for got < 5 {
		select {
		case <-m.Samples():
			got++
		case <-deadline:
			t.Fatalf("timed out after %d samples", got)
		}
	}

	reply, err := m.Execute("sensor_rtt status")
	require.NoError(t, err)
	assert.Equal(t, "on id=5 mode=processed period_ms=1\r\n", reply)

	require.NoError(t, m.Close())
	_, err = m.Execute("adc status")
	assert.Error(t, err)

	// drained and closed
	for range m.Samples() {
	}
}

func TestMock_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Acquisition.ChannelRateHz = 0
	m := NewMock(cfg, 1, telemetry.Raw)

	assert.Error(t, m.Connect())
	assert.False(t, m.IsConnected())
}
