// Package wav encodes [audio.SampleBuffer] values into canonical 16-bit PCM
// WAV containers and decodes such containers back into sample buffers.
//
// [Encode] always writes the canonical 44-byte header. Two decoders are
// provided: [Decode] skips a fixed 44-byte header and assumes 44100 Hz mono,
// while [Parse] walks the RIFF chunks and honours the declared format.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/MrWong99/parley/pkg/audio"
)

// HeaderSize is the length of the canonical header written by [Encode].
const HeaderSize = 44

// Format assumed by [Decode], which does not read the header.
const (
	FixedSampleRate = 44100
	FixedChannels   = 1
)

const (
	formatPCM     = 1
	bitsPerSample = 16
)

// ErrMalformedAudio is returned when a container cannot be decoded.
var ErrMalformedAudio = errors.New("wav: malformed audio")

// Info holds the format metadata of a WAV container.
type Info struct {
	Format        int // format tag; 1 is PCM
	Channels      int
	SampleRate    int
	BitsPerSample int
	DataOffset    int // byte offset of the first sample
	DataSize      int // bytes of sample data present in the container
}

// Encode serialises b as a canonical PCM16 WAV container. Each sample is
// written as round(s*32767) clamped to the int16 range.
func Encode(b audio.SampleBuffer) []byte {
	channels := b.Channels
	if channels <= 0 {
		channels = 1
	}
	dataSize := len(b.Samples) * 2
	blockAlign := channels * bitsPerSample / 8
	byteRate := b.SampleRate * blockAlign

	buf := make([]byte, HeaderSize+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], formatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(b.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i, s := range audio.Quantize(b.Samples) {
		binary.LittleEndian.PutUint16(buf[HeaderSize+i*2:], uint16(s))
	}
	return buf
}

// Decode reads c as a fixed 44-byte header followed by little-endian int16
// samples. The header is skipped without inspection and the result is
// always reported as 44100 Hz mono.
//
// It fails with [ErrMalformedAudio] if c is shorter than the header or the
// sample data has an odd number of bytes.
func Decode(c []byte) (audio.SampleBuffer, error) {
	if len(c) < HeaderSize {
		return audio.SampleBuffer{}, fmt.Errorf("%w: %d bytes is shorter than the %d-byte header", ErrMalformedAudio, len(c), HeaderSize)
	}
	data := c[HeaderSize:]
	if len(data)%2 != 0 {
		return audio.SampleBuffer{}, fmt.Errorf("%w: odd sample data length %d", ErrMalformedAudio, len(data))
	}
	return audio.SampleBuffer{
		Samples:    pcmToFloat32(data),
		SampleRate: FixedSampleRate,
		Channels:   FixedChannels,
	}, nil
}

// Parse decodes c using the format declared in its header. The container
// must be RIFF/WAVE with a 16-bit PCM fmt chunk of one or two channels
// followed by a data chunk. A data chunk whose declared length runs past the
// end of c (as written by streaming encoders) is clipped to the bytes
// present.
func Parse(c []byte) (audio.SampleBuffer, error) {
	info, err := ReadInfo(c)
	if err != nil {
		return audio.SampleBuffer{}, err
	}
	if info.Format != formatPCM || info.BitsPerSample != bitsPerSample {
		return audio.SampleBuffer{}, fmt.Errorf("%w: unsupported encoding (format %d, %d bits)", ErrMalformedAudio, info.Format, info.BitsPerSample)
	}
	if info.Channels != 1 && info.Channels != 2 {
		return audio.SampleBuffer{}, fmt.Errorf("%w: unsupported channel count %d", ErrMalformedAudio, info.Channels)
	}
	if info.SampleRate <= 0 {
		return audio.SampleBuffer{}, fmt.Errorf("%w: sample rate %d", ErrMalformedAudio, info.SampleRate)
	}
	if info.DataSize%(2*info.Channels) != 0 {
		return audio.SampleBuffer{}, fmt.Errorf("%w: sample data length %d is not a whole number of frames", ErrMalformedAudio, info.DataSize)
	}
	data := c[info.DataOffset : info.DataOffset+info.DataSize]
	return audio.SampleBuffer{
		Samples:    pcmToFloat32(data),
		SampleRate: info.SampleRate,
		Channels:   info.Channels,
	}, nil
}

// ReadInfo walks the RIFF chunks of c and returns the format of the first
// fmt chunk and the location of the data chunk.
func ReadInfo(c []byte) (Info, error) {
	if len(c) < 12 {
		return Info{}, fmt.Errorf("%w: too short to be a RIFF file", ErrMalformedAudio)
	}
	if string(c[0:4]) != "RIFF" {
		return Info{}, fmt.Errorf("%w: missing RIFF header", ErrMalformedAudio)
	}
	if string(c[8:12]) != "WAVE" {
		return Info{}, fmt.Errorf("%w: missing WAVE identifier", ErrMalformedAudio)
	}

	var info Info
	foundFmt := false

	// Walk RIFF chunks starting immediately after the 12-byte RIFF/WAVE header.
	offset := 12
	for offset+8 <= len(c) {
		chunkID := string(c[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(c[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || offset+8+16 > len(c) {
				return Info{}, fmt.Errorf("%w: truncated fmt chunk", ErrMalformedAudio)
			}
			f := c[offset+8:]
			info.Format = int(binary.LittleEndian.Uint16(f[0:2]))
			info.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(f[14:16]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return Info{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrMalformedAudio)
			}
			info.DataOffset = offset + 8
			info.DataSize = min(chunkSize, len(c)-info.DataOffset)
			return info, nil
		}

		// Chunks are word-aligned: pad by 1 if odd size.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return Info{}, fmt.Errorf("%w: missing data chunk", ErrMalformedAudio)
}

// pcmToFloat32 converts little-endian int16 PCM to normalized float32 by
// dividing each sample by 32768.
func pcmToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(s) / 32768.0
	}
	return out
}
