package signal

import (
	"testing"

	"github.com/itohio/goacq/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterStage is a two-phase stage returning input+1 that counts its calls.
type counterStage struct {
	pushes   int
	computes int
	last     float32
	has      bool
}

func (c *counterStage) Reset() { c.has = false }

func (c *counterStage) Push(x float32) {
	c.pushes++
	c.last = x
	c.has = true
}

func (c *counterStage) ComputeOrRaw(raw float32) float32 {
	c.computes++
	if !c.has {
		return raw
	}
	return c.last + 1
}

func (c *counterStage) Process(x float32) float32 {
	c.Push(x)
	return c.ComputeOrRaw(x)
}

func TestNewPipeline_Errors(t *testing.T) {
	_, err := NewPipeline()
	assert.ErrorIs(t, err, ErrNoStages)

	_, err = NewPipeline(Identity{}, nil)
	assert.Error(t, err)

	_, err = NewDecimated(0, Identity{})
	assert.Error(t, err)
}

func TestPipeline_AppliesStagesInOrder(t *testing.T) {
	p, err := NewPipeline(plusOne{}, plusOne{})
	require.NoError(t, err)
	assert.Equal(t, float32(12), p.Process(10))
	assert.Equal(t, 2, p.Len())
}

func TestPipeline_MatchesManualChaining(t *testing.T) {
	ema, err := NewEMA(1, 2)
	require.NoError(t, err)
	p, err := NewPipeline(ema, NewSG5())
	require.NoError(t, err)

	emaRef, err := NewEMA(1, 2)
	require.NoError(t, err)
	sgRef := NewSG5()

	for _, raw := range []float32{10, 20, 30, 40, 50, 60, 70, 80, 90} {
		p.Push(raw)
		got := p.ComputeOrRaw(raw)

		emaRef.Push(raw)
		emaOut := emaRef.ComputeOrRaw(raw)
		sgRef.Push(emaOut)
		want := sgRef.ComputeOrRaw(emaOut)

		assert.InDelta(t, want, got, 1e-3, "raw %v", raw)
	}
}

func TestPipeline_ComposesForArbitraryLengths(t *testing.T) {
	inputs := []float32{5, 900, 12, 44000, 3, 3, 3, 61000, 128, 7, 1, 0, 65535}

	for n := 0; n <= len(inputs); n++ {
		a, _ := NewEMA(3, 8)
		p, err := NewPipeline(a, NewSG5())
		require.NoError(t, err)
		b, _ := NewEMA(3, 8)
		sg := NewSG5()

		for _, x := range inputs[:n] {
			got := p.Process(x)
			want := sg.Process(b.Process(x))
			assert.InDelta(t, want, got, 1e-3)
		}
	}
}

func TestPipeline_ResetRestoresFallback(t *testing.T) {
	ema, err := NewEMA(1, 2)
	require.NoError(t, err)
	p, err := NewPipeline(ema, NewSG5())
	require.NoError(t, err)

	assert.Equal(t, float32(77), p.ComputeOrRaw(77))

	p.Push(1234)
	_ = p.ComputeOrRaw(1234)
	p.Reset()

	p.Push(2222)
	assert.InDelta(t, 2222, p.ComputeOrRaw(2222), 1e-3)
}

func TestDecimated_HoldsBetweenComputations(t *testing.T) {
	stage := &counterStage{}
	d, err := NewDecimated(3, stage)
	require.NoError(t, err)

	assert.Equal(t, float32(5), d.ComputeOrRaw(5))

	inputs := []float32{10, 20, 30, 40}
	want := []float32{11, 11, 11, 41}
	for i, x := range inputs {
		d.Push(x)
		assert.InDelta(t, want[i], d.ComputeOrRaw(x), 1e-3, "push %d", i)
	}
}

func TestDecimated_ComputesEveryKth(t *testing.T) {
	stage := &counterStage{}
	d, err := NewDecimated(3, stage)
	require.NoError(t, err)

	tests := []struct {
		pushes, computes int
	}{
		{1, 1},
		{2, 1},
		{3, 1},
		{4, 2},
		{5, 2},
		{6, 2},
		{7, 3},
	}

	for i, tt := range tests {
		x := float32(i + 1)
		d.Push(x)
		_ = d.ComputeOrRaw(x)
		assert.Equal(t, tt.pushes, stage.pushes)
		assert.Equal(t, tt.computes, stage.computes)
	}
}

func TestDecimated_ChangesOnlyOnPhaseZero(t *testing.T) {
	const k = 4
	ema, err := NewEMA(1, 2)
	require.NoError(t, err)
	d, err := NewDecimated(k, ema)
	require.NoError(t, err)

	var prev float32
	for i := range 20 {
		x := float32(100 * (i + 1))
		out := d.Process(x)
		if i%k != 0 {
			assert.Equal(t, prev, out, "push %d", i)
		}
		prev = out
	}
}

func TestDecimated_FactorOneIsContinuous(t *testing.T) {
	a, _ := NewEMA(1, 4)
	d, err := NewDecimated(1, a, NewSG5())
	require.NoError(t, err)
	b, _ := NewEMA(1, 4)
	p, err := NewPipeline(b, NewSG5())
	require.NoError(t, err)

	for _, x := range []float32{10, 400, 30, 9000, 50, 60, 7} {
		assert.Equal(t, p.Process(x), d.Process(x))
	}
	assert.Equal(t, 1, d.Factor())
}

func TestDecimated_ChainedIngest(t *testing.T) {
	// first stage output feeds the second stage's ingest on every push
	d, err := NewDecimated(2, plusOne{}, plusOne{})
	require.NoError(t, err)

	assert.Equal(t, float32(12), d.Process(10))
	assert.Equal(t, float32(12), d.Process(20))
	assert.Equal(t, float32(32), d.Process(30))
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.SignalConfig)
		input   []float32
		want    float32
		wantErr bool
		check   func(t *testing.T, p TwoPhase)
	}{
		{
			name:   "filtering disabled passes through",
			mutate: func(c *config.SignalConfig) { c.FilteringEnabled = false },
			input:  []float32{10, 1000, 5},
			want:   5,
		},
		{
			name:  "default stages",
			input: []float32{800, 800, 800, 800, 800, 800},
			want:  800,
			check: func(t *testing.T, p TwoPhase) {
				assert.IsType(t, &Pipeline{}, p)
			},
		},
		{
			name:   "tia only",
			mutate: func(c *config.SignalConfig) { c.Stages = []string{"tia"} },
			input:  []float32{0},
			want:   float32(2048) / 1800,
		},
		{
			name:   "decimated",
			mutate: func(c *config.SignalConfig) { c.Decimation = 4 },
			check: func(t *testing.T, p TwoPhase) {
				require.IsType(t, &Decimated{}, p)
				assert.Equal(t, 4, p.(*Decimated).Factor())
			},
		},
		{
			name:    "unknown stage",
			mutate:  func(c *config.SignalConfig) { c.Stages = []string{"ema", "fir"} },
			wantErr: true,
		},
		{
			name:    "invalid ema",
			mutate:  func(c *config.SignalConfig) { c.EMA.Denominator = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default().Signal
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}

			p, err := New(cfg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)

			var out float32
			for _, x := range tt.input {
				out = p.Process(x)
			}
			if len(tt.input) > 0 {
				assert.InDelta(t, tt.want, out, 1e-3)
			}
			if tt.check != nil {
				tt.check(t, p)
			}
		})
	}
}

func TestNew_FreshInstances(t *testing.T) {
	cfg := config.Default().Signal
	a, err := New(cfg)
	require.NoError(t, err)
	b, err := New(cfg)
	require.NoError(t, err)

	a.Process(100)
	a.Process(5000)
	assert.Equal(t, float32(42), b.Process(42))
}
