package audio

// G.711 mu-law transcoding. Carrier media streams deliver 8-bit mu-law
// samples; the VAD and the recognizer both work on linear PCM16.

const (
	mulawBias = 0x84  // 132
	mulawClip = 32635 // encoder input clamp before bias
)

// decodeTable maps every mu-law byte to its linear PCM16 value.
var decodeTable [256]int16

func init() {
	for i := range decodeTable {
		decodeTable[i] = decodeSample(byte(i))
	}
}

func decodeSample(u byte) int16 {
	u = ^u
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F
	sample := (int32(mantissa)<<3 + mulawBias) << exponent
	sample -= mulawBias
	if u&0x80 != 0 {
		return int16(-sample)
	}
	return int16(sample)
}

func encodeSample(s int16) byte {
	var sign byte
	x := int32(s)
	if x < 0 {
		x = -x
		sign = 0x80
	}
	if x > mulawClip {
		x = mulawClip
	}
	x += mulawBias

	exponent := byte(7)
	for mask := int32(0x4000); mask != 0 && x&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((x >> (exponent + 3)) & 0x0F)
	return ^(sign | exponent<<4 | mantissa)
}

// DecodeMulaw expands 8-bit mu-law samples to linear PCM16.
func DecodeMulaw(mulaw []byte) []int16 {
	out := make([]int16, len(mulaw))
	for i, u := range mulaw {
		out[i] = decodeTable[u]
	}
	return out
}

// EncodeMulaw compresses linear PCM16 samples to 8-bit mu-law.
func EncodeMulaw(pcm []int16) []byte {
	out := make([]byte, len(pcm))
	for i, s := range pcm {
		out[i] = encodeSample(s)
	}
	return out
}

// PCM16ToBytes serialises samples as little-endian bytes, the layout
// expected by streaming recognizer endpoints.
func PCM16ToBytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// BytesToPCM16 parses little-endian 16-bit PCM. A trailing odd byte is
// dropped.
func BytesToPCM16(data []byte) []int16 {
	n := len(data) / 2
	out := make([]int16, n)
	for i := range n {
		out[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return out
}

// ClampPCM16 clamps a wider sample into the int16 range. Synthesised
// audio occasionally overshoots after gain adjustment.
func ClampPCM16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
