package synthesis

import (
	"bytes"
	"encoding/binary"
	"time"
)

// silentWAV builds a mono 8 kHz 16-bit PCM WAV of silence. Used as the
// last-resort artifact when TTS and both transcoders fail.
func silentWAV(d time.Duration) []byte {
	samples := int(d.Seconds() * float64(telephonySampleRate))
	if samples <= 0 {
		samples = telephonySampleRate
	}
	dataSize := samples * 2 // 16-bit mono

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))                    // chunk size
	binary.Write(&buf, binary.LittleEndian, uint16(1))                     // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1))                     // mono
	binary.Write(&buf, binary.LittleEndian, uint32(telephonySampleRate))   // sample rate
	binary.Write(&buf, binary.LittleEndian, uint32(telephonySampleRate*2)) // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(2))                     // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))                    // bits per sample

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(make([]byte, dataSize))

	return buf.Bytes()
}
