// Package pipeline sequences one push-to-talk round trip: capture an
// utterance, transcribe it, ask a language model for a reply, synthesize
// the reply and hand the decoded audio to a playback sink.
//
// The [Orchestrator] runs at most one session at a time. Stages run in
// order on the session's goroutine; every stage failure ends the session
// with exactly one Failed event carrying a [Failure], after which the
// orchestrator is Idle again. There is no retry: the caller starts a new
// session. State changes are published to subscribers without blocking.
//
//	orch, err := pipeline.New(src, sttP, llmP, ttsP, sink)
//	events, unsubscribe := orch.Subscribe(16)
//	defer unsubscribe()
//	sess, err := orch.Start(ctx)
//	// ... user releases the button
//	_ = orch.Stop()
//	<-sess.Done()
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/textcodec"
	"github.com/MrWong99/parley/pkg/audio/wav"
	"github.com/MrWong99/parley/pkg/memory"
	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/provider/stt"
	"github.com/MrWong99/parley/pkg/provider/tts"
	"github.com/MrWong99/parley/pkg/reply"
)

// DefaultPlaceholder replaces a generation reply that carried no text.
const DefaultPlaceholder = "No response from the language model."

// DefaultNoSpeechPlaceholder is spoken instead of a reply when transcription
// returned no text. The language model is not consulted.
const DefaultNoSpeechPlaceholder = "No speech recognized."

// journalTimeout bounds a single journal write.
const journalTimeout = 5 * time.Second

// Decoder turns a WAV container into samples. [wav.Parse] and [wav.Decode]
// both satisfy it.
type Decoder func(container []byte) (audio.SampleBuffer, error)

// Option is a functional option for [New].
type Option func(*Orchestrator)

// WithMaxDuration sets the capture ceiling in whole seconds. Default 5.
func WithMaxDuration(seconds int) Option {
	return func(o *Orchestrator) { o.maxSeconds = seconds }
}

// WithSampleRate sets the capture sample rate. Default 44100.
func WithSampleRate(rate int) Option {
	return func(o *Orchestrator) { o.sampleRate = rate }
}

// WithDeviceID selects the capture device. Empty means the source default.
func WithDeviceID(id string) Option {
	return func(o *Orchestrator) { o.deviceID = id }
}

// WithTick sets the capture polling interval. Default 20ms.
func WithTick(d time.Duration) Option {
	return func(o *Orchestrator) { o.tick = d }
}

// WithDecoder replaces the reply decoder. Default [wav.Parse].
func WithDecoder(d Decoder) Option {
	return func(o *Orchestrator) { o.decode = d }
}

// WithPlaceholder replaces [DefaultPlaceholder].
func WithPlaceholder(text string) Option {
	return func(o *Orchestrator) { o.placeholder = text }
}

// WithNoSpeechPlaceholder replaces [DefaultNoSpeechPlaceholder].
func WithNoSpeechPlaceholder(text string) Option {
	return func(o *Orchestrator) { o.noSpeech = text }
}

// WithMetrics records stage and session metrics on m. Default
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithJournal appends a [memory.Record] for every finished session.
func WithJournal(j memory.Store) Option {
	return func(o *Orchestrator) { o.journal = j }
}

// WithProviderNames labels provider metrics. Defaults are "stt", "llm" and "tts".
func WithProviderNames(sttName, llmName, ttsName string) Option {
	return func(o *Orchestrator) {
		o.names = providerNames{stt: sttName, llm: llmName, tts: ttsName}
	}
}

type providerNames struct {
	stt, llm, tts string
}

// Orchestrator runs push-to-talk sessions. It is safe for concurrent use.
type Orchestrator struct {
	src  audio.CaptureSource
	stt  stt.Provider
	llm  llm.Provider
	tts  tts.Provider
	sink audio.Sink

	maxSeconds  int
	sampleRate  int
	deviceID    string
	tick        time.Duration
	decode      Decoder
	placeholder string
	noSpeech    string
	metrics     *observe.Metrics
	journal     memory.Store
	names       providerNames

	mu      sync.Mutex
	state   State
	current *Session
	cancel  context.CancelFunc
	stop    chan struct{}
	closed  bool

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int

	// wg tracks session goroutines, playback and journal writes.
	wg sync.WaitGroup
}

// New creates an Orchestrator. Every collaborator is required; pass
// [tts.Silent] for a pipeline without speech synthesis.
func New(src audio.CaptureSource, sttP stt.Provider, llmP llm.Provider, ttsP tts.Provider, sink audio.Sink, opts ...Option) (*Orchestrator, error) {
	var errs []error
	if src == nil {
		errs = append(errs, errors.New("pipeline: capture source must not be nil"))
	}
	if sttP == nil {
		errs = append(errs, errors.New("pipeline: stt provider must not be nil"))
	}
	if llmP == nil {
		errs = append(errs, errors.New("pipeline: llm provider must not be nil"))
	}
	if ttsP == nil {
		errs = append(errs, errors.New("pipeline: tts provider must not be nil"))
	}
	if sink == nil {
		errs = append(errs, errors.New("pipeline: playback sink must not be nil"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		src:         src,
		stt:         sttP,
		llm:         llmP,
		tts:         ttsP,
		sink:        sink,
		maxSeconds:  audio.DefaultMaxSeconds,
		sampleRate:  audio.DefaultSampleRate,
		tick:        audio.DefaultTick,
		decode:      wav.Parse,
		placeholder: DefaultPlaceholder,
		noSpeech:    DefaultNoSpeechPlaceholder,
		names:       providerNames{stt: "stt", llm: "llm", tts: "tts"},
		subs:        make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.maxSeconds <= 0 {
		return nil, fmt.Errorf("pipeline: max duration must be positive, got %d", o.maxSeconds)
	}
	if o.sampleRate <= 0 {
		return nil, fmt.Errorf("pipeline: sample rate must be positive, got %d", o.sampleRate)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o, nil
}

// ─── Control ──────────────────────────────────────────────────────────────────

// Start begins a new session and returns immediately; the session runs on
// its own goroutine. ctx bounds the whole session, not just this call.
// Start returns [ErrBusy] unless the orchestrator is Idle.
func (o *Orchestrator) Start(ctx context.Context) (*Session, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	if o.state.Busy() {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	sess := newSession(time.Now())
	sctx, cancel := context.WithCancel(ctx)
	o.state = Recording
	o.current = sess
	o.cancel = cancel
	o.stop = make(chan struct{})
	stop := o.stop
	o.wg.Add(1)
	o.mu.Unlock()

	o.metrics.ActiveSessions.Add(ctx, 1)
	o.publish(Event{Session: sess.ID, State: Recording, At: sess.StartedAt})

	go func() {
		defer o.wg.Done()
		defer cancel()
		o.run(sctx, sess, stop)
	}()
	return sess, nil
}

// Stop ends the recording early. The captured audio continues through the
// pipeline as if the ceiling had been reached. Returns [ErrNotRecording]
// outside the Recording state.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != Recording || o.stop == nil {
		return ErrNotRecording
	}
	close(o.stop)
	o.stop = nil
	return nil
}

// Cancel aborts the live session. The awaited stage sees its context
// cancelled and the session ends Failed with [KindCancelled]. Returns
// [ErrIdle] when nothing is running.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.Busy() || o.cancel == nil {
		return ErrIdle
	}
	o.cancel()
	return nil
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Current returns the live session, or nil when Idle.
func (o *Orchestrator) Current() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Wait blocks until no session, playback or journal write is in progress.
// It must not be called concurrently with Start.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels the live session, waits for background work and closes all
// subscriber channels. Subsequent Start calls return [ErrClosed].
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Unlock()

	o.wg.Wait()

	o.subMu.Lock()
	defer o.subMu.Unlock()
	for id, ch := range o.subs {
		close(ch)
		delete(o.subs, id)
	}
	return nil
}

// ─── Events ───────────────────────────────────────────────────────────────────

// Subscribe registers a listener for state changes. Events are dropped for
// a subscriber whose buffer is full. The returned function unsubscribes and
// closes the channel; it is safe to call more than once.
func (o *Orchestrator) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, max(buffer, 0))

	o.subMu.Lock()
	if o.isClosed() {
		o.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	o.subMu.Unlock()
	o.metrics.EventSubscribers.Add(context.Background(), 1)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.subMu.Lock()
			defer o.subMu.Unlock()
			if _, ok := o.subs[id]; ok {
				delete(o.subs, id)
				close(ch)
			}
			o.metrics.EventSubscribers.Add(context.Background(), -1)
		})
	}
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *Orchestrator) publish(ev Event) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for id, ch := range o.subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("dropping event for slow subscriber", "subscriber", id, "state", ev.State)
		}
	}
}

// ─── Session ──────────────────────────────────────────────────────────────────

// enter moves the live session to state and publishes the change.
func (o *Orchestrator) enter(sess *Session, state State, fill func(*Event)) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()

	snap := sess.update(func(s *Snapshot) { s.State = state })
	ev := Event{
		Session:    sess.ID,
		State:      state,
		At:         time.Now(),
		Transcript: snap.Transcript,
		Reply:      snap.Reply,
	}
	if fill != nil {
		fill(&ev)
	}
	o.publish(ev)
}

// run executes every stage of sess in order and always leaves the
// orchestrator Idle.
func (o *Orchestrator) run(ctx context.Context, sess *Session, stop <-chan struct{}) {
	ctx, span := observe.StartSession(ctx, sess.ID)
	defer span.End()
	log := observe.Logger(ctx)

	buf, err := o.stages(ctx, sess, stop, log)

	var f *Failure
	if err != nil {
		f = classify(ctx, o.State(), err)
		observe.Fail(span, err, f.Kind.String())
	}
	o.finish(ctx, sess, buf, f, log)
}

// stages runs Recording through Decoding and returns the buffer to play.
func (o *Orchestrator) stages(ctx context.Context, sess *Session, stop <-chan struct{}, log *slog.Logger) (audio.SampleBuffer, error) {
	// Recording.
	var (
		captured audio.SampleBuffer
		end      audio.CaptureEnd
	)
	err := o.stage(ctx, Recording, func(ctx context.Context) error {
		var err error
		captured, end, err = audio.Capture(ctx, o.src, audio.CaptureOptions{
			DeviceID:   o.deviceID,
			MaxSeconds: o.maxSeconds,
			SampleRate: o.sampleRate,
			Tick:       o.tick,
			Stop:       stop,
		})
		return err
	})
	if err != nil {
		return audio.SampleBuffer{}, err
	}
	sess.update(func(s *Snapshot) { s.CaptureEnd = end.String() })
	log.Debug("capture finished", "end", end, "frames", captured.Frames())

	// Encoding.
	o.enter(sess, Encoding, nil)
	var container []byte
	_ = o.stage(ctx, Encoding, func(context.Context) error {
		container = wav.Encode(captured)
		return nil
	})
	captured = audio.SampleBuffer{}

	// Transcribing.
	o.enter(sess, Transcribing, nil)
	var (
		transcript string
		noSpeech   bool
	)
	err = o.stage(ctx, Transcribing, func(ctx context.Context) error {
		r, err := o.stt.Transcribe(ctx, container)
		o.recordProvider(ctx, o.names.stt, "stt", err)
		if err != nil {
			return fmt.Errorf("pipeline: transcribe: %w", err)
		}
		transcript, err = r.Text()
		if errors.Is(err, reply.ErrMissingField) {
			log.Info("transcription returned no text, using placeholder", "error", err)
			noSpeech = true
			return nil
		}
		if err != nil {
			return fmt.Errorf("pipeline: transcript: %w", err)
		}
		return nil
	})
	if err != nil {
		return audio.SampleBuffer{}, err
	}
	sess.update(func(s *Snapshot) { s.Transcript = transcript })
	log.Debug("transcribed", "transcript", transcript)

	// Generating.
	o.enter(sess, Generating, nil)
	var replyText string
	err = o.stage(ctx, Generating, func(ctx context.Context) error {
		if noSpeech {
			replyText = o.noSpeech
			return nil
		}
		r, err := o.llm.Generate(ctx, transcript)
		o.recordProvider(ctx, o.names.llm, "llm", err)
		if err != nil {
			return fmt.Errorf("pipeline: generate: %w", err)
		}
		replyText, err = r.Text()
		if errors.Is(err, reply.ErrMissingField) {
			log.Info("language model returned no text, using placeholder", "error", err)
			replyText = o.placeholder
			return nil
		}
		if err != nil {
			return fmt.Errorf("pipeline: reply: %w", err)
		}
		return nil
	})
	if err != nil {
		return audio.SampleBuffer{}, err
	}
	sess.update(func(s *Snapshot) { s.Reply = replyText })

	// Decoding.
	o.enter(sess, Decoding, nil)
	var out audio.SampleBuffer
	err = o.stage(ctx, Decoding, func(ctx context.Context) error {
		speech, err := o.tts.Synthesize(ctx, replyText)
		o.recordProvider(ctx, o.names.tts, "tts", err)
		if err != nil {
			return fmt.Errorf("pipeline: synthesize: %w", err)
		}
		out, err = o.decodeSpeech(speech)
		return err
	})
	return out, err
}

// decodeSpeech turns a synthesis result into playable samples.
func (o *Orchestrator) decodeSpeech(speech tts.Speech) (audio.SampleBuffer, error) {
	container := speech.Container
	if speech.Encoded != "" {
		var err error
		container, err = textcodec.FromText(speech.Encoded)
		if err != nil {
			return audio.SampleBuffer{}, fmt.Errorf("pipeline: %w", err)
		}
	}
	if len(container) == 0 {
		return audio.SampleBuffer{}, ErrEmptyAudio
	}
	buf, err := o.decode(container)
	if err != nil {
		return audio.SampleBuffer{}, fmt.Errorf("pipeline: decode reply: %w", err)
	}
	if buf.Empty() {
		return audio.SampleBuffer{}, ErrEmptyAudio
	}
	return buf, nil
}

// stage runs fn under a span and records its latency.
func (o *Orchestrator) stage(ctx context.Context, state State, fn func(context.Context) error) error {
	ctx, span := observe.StartStage(ctx, state.String())
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	o.metrics.RecordStage(ctx, state.String(), time.Since(start))
	if err != nil {
		observe.Fail(span, err, err.Error())
	}
	return err
}

func (o *Orchestrator) recordProvider(ctx context.Context, name, kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		o.metrics.RecordProviderError(ctx, name, kind)
	}
	o.metrics.RecordProviderRequest(ctx, name, kind, status)
}

// finish publishes the outcome of sess, hands buf to the sink on success and
// returns the orchestrator to Idle.
func (o *Orchestrator) finish(ctx context.Context, sess *Session, buf audio.SampleBuffer, f *Failure, log *slog.Logger) {
	// The session ctx may already be cancelled; bookkeeping must still run.
	bg := context.WithoutCancel(ctx)
	now := time.Now()

	if f != nil {
		snap := sess.update(func(s *Snapshot) {
			s.Failure = f
			s.EndedAt = now
		})
		o.enter(sess, Failed, func(ev *Event) { ev.Failure = f })
		log.Warn("session failed",
			"stage", f.Stage, "kind", f.Kind, "reason", f.Reason(), "error", f.Err)
		o.metrics.RecordFailure(bg, f.Stage.String(), f.Kind.String())
		o.metrics.RecordSession(bg, memory.OutcomeFailed, now.Sub(sess.StartedAt))
		o.writeJournal(bg, snap, log)
	} else {
		snap := sess.update(func(s *Snapshot) {
			s.Samples = len(buf.Samples)
			s.SampleRate = buf.SampleRate
			s.EndedAt = now
		})
		o.enter(sess, Playing, func(ev *Event) {
			// Subscribers get their own samples; buf goes to the sink.
			pub := buf
			pub.Samples = slices.Clone(buf.Samples)
			ev.Audio = &pub
		})
		log.Info("session played",
			"transcript", snap.Transcript,
			"reply", snap.Reply,
			"samples", snap.Samples,
			"duration", now.Sub(sess.StartedAt))
		o.metrics.RecordSession(bg, memory.OutcomePlayed, now.Sub(sess.StartedAt))
		o.metrics.PlayedSamples.Add(bg, int64(len(buf.Samples)))
		o.play(buf)
		o.writeJournal(bg, snap, log)
	}

	o.metrics.ActiveSessions.Add(bg, -1)

	o.mu.Lock()
	o.state = Idle
	o.current = nil
	o.cancel = nil
	o.stop = nil
	o.mu.Unlock()
	o.publish(Event{Session: sess.ID, State: Idle, At: time.Now()})
	close(sess.done)
}

// play hands buf to the sink on its own goroutine.
func (o *Orchestrator) play(buf audio.SampleBuffer) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.sink.Play(buf)
	}()
}

func (o *Orchestrator) writeJournal(ctx context.Context, snap Snapshot, log *slog.Logger) {
	if o.journal == nil {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, journalTimeout)
		defer cancel()
		if err := o.journal.Append(ctx, snap.Record()); err != nil {
			log.Warn("journal write failed", "error", err)
		}
	}()
}
