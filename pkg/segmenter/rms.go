package segmenter

import "math"

// rmsEnergy computes the root-mean-square of signed little-endian PCM
// samples in chunk, generalized from the teacher's RMSVAD.calculateRMS
// (which only handled 16-bit) to the full {1, 2, 4}-byte width enum
// named in the design notes. The sum of squares accumulates in float64,
// not an integer type: a few near-full-scale 32-bit samples already
// overflow int64 and wrap negative, and math.Sqrt of a negative
// mean-square silently yields NaN (which then never compares greater
// than any threshold). float64 only loses precision at the margins,
// never wraps.
func rmsEnergy(chunk []byte, sampleWidth int) float64 {
	n := len(chunk) / sampleWidth
	if n == 0 {
		return 0
	}

	var sumSquares float64
	switch sampleWidth {
	case 1:
		for i := 0; i < n; i++ {
			// 8-bit PCM is conventionally unsigned with a 128 bias.
			s := float64(chunk[i]) - 128
			sumSquares += s * s
		}
	case 2:
		for i := 0; i < n; i++ {
			s := float64(int16(uint16(chunk[2*i]) | uint16(chunk[2*i+1])<<8))
			sumSquares += s * s
		}
	case 4:
		for i := 0; i < n; i++ {
			s := float64(int32(uint32(chunk[4*i]) | uint32(chunk[4*i+1])<<8 | uint32(chunk[4*i+2])<<16 | uint32(chunk[4*i+3])<<24))
			sumSquares += s * s
		}
	default:
		return 0
	}

	meanSquare := sumSquares / float64(n)
	return math.Sqrt(meanSquare)
}
