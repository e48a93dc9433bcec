package fm

import (
	"math"

	"github.com/cbegin/fmsynth-go/internal/envelope"
	"github.com/cbegin/fmsynth-go/internal/params"
	"github.com/cbegin/fmsynth-go/internal/tables"
)

// feedbackScale converts feedback 0..1 times the previous output into
// cycles of phase offset (half a cycle at full feedback).
const feedbackScale = 0.5

// VoiceOperator is the per-voice state of one operator.
type VoiceOperator struct {
	phase      float64
	lastOutput float64
	env        envelope.Envelope
}

func newVoiceOperator() VoiceOperator {
	return VoiceOperator{env: envelope.New()}
}

// operatorIDs caches the catalog IDs read for one operator every sample.
type operatorIDs struct {
	volume, active, mixOut, panning, waveType, feedback params.ID
	ratio, free, fine                                   params.ID
	attack, decay, sustain, release                     params.ID
	modOut, modTargets                                  params.ID // -1 on operator 1
}

func resolveOperatorIDs(op int) operatorIDs {
	id := func(p params.OperatorParam) params.ID { return params.Operator(op, p) }
	return operatorIDs{
		volume:     id(params.OpVolume),
		active:     id(params.OpActive),
		mixOut:     id(params.OpMixOut),
		panning:    id(params.OpPanning),
		waveType:   id(params.OpWaveType),
		feedback:   id(params.OpFeedback),
		ratio:      id(params.OpFrequencyRatio),
		free:       id(params.OpFrequencyFree),
		fine:       id(params.OpFrequencyFine),
		attack:     id(params.OpAttack),
		decay:      id(params.OpDecay),
		sustain:    id(params.OpSustain),
		release:    id(params.OpRelease),
		modOut:     id(params.OpModOut),
		modTargets: id(params.OpModTargets),
	}
}

// waveSample evaluates one operator waveform at phase (in cycles).
func waveSample(wave int, phase float64, noise *uint64) float64 {
	switch wave {
	case params.WaveSquare:
		if frac(phase) < 0.5 {
			return 1
		}
		return -1
	case params.WaveTriangle:
		return 1 - 4*math.Abs(frac(phase+0.25)-0.5)
	case params.WaveSaw:
		return 2*frac(phase+0.5) - 1
	case params.WaveNoise:
		return whiteNoise(noise)
	default:
		return tables.Sine(phase)
	}
}

// whiteNoise advances a xorshift64 state and maps it to [-1, 1).
func whiteNoise(state *uint64) float64 {
	x := *state
	if x == 0 {
		x = 0x9e3779b97f4a7c15
	}
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	*state = x
	return float64(x>>11)/(1<<52) - 1
}

// panGains returns constant-power left and right gains for pan in 0..1.
func panGains(pan float64) (float64, float64) {
	pan = clamp(pan, 0, 1)
	return tables.Sine(pan/4 + 0.25), tables.Sine(pan / 4)
}

func frac(x float64) float64 {
	return x - math.Floor(x)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
