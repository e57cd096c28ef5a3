package audio

// Sink plays a [SampleBuffer]. Play takes ownership of the buffer and must
// not block until playback completes.
type Sink interface {
	Play(b SampleBuffer)
}

// SinkFunc adapts a plain function to [Sink].
type SinkFunc func(b SampleBuffer)

// Play calls f(b).
func (f SinkFunc) Play(b SampleBuffer) { f(b) }

// ConvertingSink converts every buffer to a fixed device format before
// forwarding it to the wrapped sink.
type ConvertingSink struct {
	next Sink
	conv *FormatConverter
}

var _ Sink = (*ConvertingSink)(nil)

// NewConvertingSink returns a sink that forwards buffers in target format.
func NewConvertingSink(next Sink, target Format) *ConvertingSink {
	return &ConvertingSink{next: next, conv: &FormatConverter{Target: target}}
}

// Play converts b and forwards it.
func (s *ConvertingSink) Play(b SampleBuffer) {
	s.next.Play(s.conv.Convert(b))
}

// MultiSink fans a buffer out to several sinks. Each sink receives its own
// copy of the samples.
type MultiSink []Sink

// Play forwards a copy of b to every sink.
func (m MultiSink) Play(b SampleBuffer) {
	for i, s := range m {
		if i == len(m)-1 {
			s.Play(b)
			return
		}
		cp := b
		cp.Samples = append([]float32(nil), b.Samples...)
		s.Play(cp)
	}
}
