package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form, e.g. "44100Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// FormatConverter converts SampleBuffers to a target format. It logs a
// warning on the first format mismatch. Create one per sink; not designed
// for shared use across goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
}

// Convert converts b to the target format. If the source format already
// matches the target, b is returned unchanged (zero allocation).
// Conversion order: resample first, then channel convert.
func (c *FormatConverter) Convert(b SampleBuffer) SampleBuffer {
	if b.SampleRate == c.Target.SampleRate && b.Channels == c.Target.Channels {
		return b
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", formatString(b.SampleRate, b.Channels),
			"to", c.Target.String(),
		)
	})

	// Step 1: Resample first (avoids resampling stereo when target is mono).
	if c.Target.SampleRate > 0 && b.SampleRate != c.Target.SampleRate {
		b = Resample(b, c.Target.SampleRate)
	}

	// Step 2: Channel conversion.
	switch {
	case b.Channels == 1 && c.Target.Channels == 2:
		b = ToStereo(b)
	case b.Channels == 2 && c.Target.Channels == 1:
		b = ToMono(b)
	}
	return b
}

// ToStereo duplicates each mono sample into an L+R pair. Stereo input is
// returned unchanged.
func ToStereo(b SampleBuffer) SampleBuffer {
	if b.Channels != 1 {
		return b
	}
	out := make([]float32, len(b.Samples)*2)
	for i, s := range b.Samples {
		out[i*2] = s
		out[i*2+1] = s
	}
	return SampleBuffer{Samples: out, SampleRate: b.SampleRate, Channels: 2}
}

// ToMono averages L+R per stereo frame. Mono input is returned unchanged.
func ToMono(b SampleBuffer) SampleBuffer {
	if b.Channels != 2 {
		return b
	}
	frames := len(b.Samples) / 2
	out := make([]float32, frames)
	for i := range frames {
		out[i] = clamp((b.Samples[i*2] + b.Samples[i*2+1]) / 2)
	}
	return SampleBuffer{Samples: out, SampleRate: b.SampleRate, Channels: 1}
}

// Resample converts b to dstRate using linear interpolation per channel.
// If the rates already match or either rate is not positive, b is returned
// unchanged.
func Resample(b SampleBuffer, dstRate int) SampleBuffer {
	if b.SampleRate <= 0 || dstRate <= 0 || b.SampleRate == dstRate || b.Channels <= 0 {
		return b
	}
	ch := b.Channels
	srcFrames := len(b.Samples) / ch
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(b.SampleRate))
	out := make([]float32, dstFrames*ch)
	ratio := float64(b.SampleRate) / float64(dstRate)

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))
		next := srcIdx + 1
		if next >= srcFrames {
			next = srcIdx
		}
		for c := range ch {
			s0 := b.Samples[srcIdx*ch+c]
			s1 := b.Samples[next*ch+c]
			out[i*ch+c] = s0*(1-frac) + s1*frac
		}
	}
	return SampleBuffer{Samples: out, SampleRate: dstRate, Channels: ch}
}

func clamp(s float32) float32 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
