package avatar

import (
	"encoding/binary"
	"math"
)

// Resample 对 PCM16 小端单声道音频做线性插值重采样
func Resample(pcm []byte, from, to int) []byte {
	n := len(pcm) / 2
	if from == to || n == 0 || from <= 0 || to <= 0 {
		return pcm
	}
	outLen := n * to / from
	out := make([]byte, outLen*2)
	sample := func(i int) float64 {
		if i >= n {
			i = n - 1
		}
		return float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	for j := 0; j < outLen; j++ {
		pos := float64(j) * float64(from) / float64(to)
		i := int(pos)
		frac := pos - float64(i)
		v := sample(i)*(1-frac) + sample(i+1)*frac
		binary.LittleEndian.PutUint16(out[j*2:], uint16(int16(clamp16(math.Round(v)))))
	}
	return out
}

func clamp16(v float64) float64 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return v
	}
}
