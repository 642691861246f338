package ttsbridge

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// parseWAV extracts the PCM payload and sample rate from a 16-bit mono
// RIFF/WAVE byte stream.
func parseWAV(b []byte) (pcm []byte, sampleRate int, err error) {
	if len(b) < 12 || !bytes.Equal(b[:4], []byte("RIFF")) || !bytes.Equal(b[8:12], []byte("WAVE")) {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE stream")
	}

	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		off += 8
		switch id {
		case "fmt ":
			if size < 16 || off+16 > len(b) {
				return nil, 0, fmt.Errorf("truncated fmt chunk")
			}
			sampleRate = int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		case "data":
			if off+size > len(b) {
				size = len(b) - off
			}
			pcm = b[off : off+size]
		}
		off += size
		if size%2 == 1 {
			off++
		}
	}
	if sampleRate == 0 || pcm == nil {
		return nil, 0, fmt.Errorf("missing fmt or data chunk")
	}
	return pcm, sampleRate, nil
}
