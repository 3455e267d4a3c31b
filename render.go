package modrender

import (
	"context"
	"iter"
	"time"

	"github.com/chriskillpack/modrender/internal/comb"
)

// BlockWriter consumes rendered audio, see the wav package for a WAVE file
// implementation.
type BlockWriter interface {
	AppendBlock(Block) error
}

// Progress describes the position of a render after a tick has been written.
type Progress struct {
	Order   int // order index of the tick
	Orders  int // number of orders in the song
	Pattern int
	Row     int
	Elapsed time.Duration // song time rendered so far
}

// Renderer drives a Sequencer and a Mixer to turn a Song into PCM audio, one
// tick per Block. A Renderer plays the song once, it cannot be restarted.
type Renderer struct {
	song   *Song
	cfg    Config
	seq    *Sequencer
	mixer  *Mixer
	reverb comb.Reverber

	last Position
}

// NewRenderer prepares a render of song. The song is only read, any number of
// Renderers may share it.
func NewRenderer(song *Song, cfg Config) (*Renderer, error) {
	seq, err := NewSequencer(song, cfg)
	if err != nil {
		return nil, err
	}
	mixer, err := NewMixer(song, cfg)
	if err != nil {
		return nil, err
	}
	reverb, err := comb.Preset(cfg.Reverb, cfg.SampleRate, cfg.BitDepth)
	if err != nil {
		return nil, err
	}

	return &Renderer{
		song:   song,
		cfg:    cfg,
		seq:    seq,
		mixer:  mixer,
		reverb: reverb,
	}, nil
}

// Next renders the next tick. It returns false once the song has finished.
// The returned Block is only valid until the following call to Next.
func (r *Renderer) Next() (Block, bool) {
	tick, ok := r.seq.AdvanceTick()
	if !ok {
		return Block{}, false
	}
	r.last = tick.Position

	b := r.mixer.RenderTick(tick)
	if r.reverb != nil {
		r.reverb.Process(b.Data)
	}
	return b, true
}

// Blocks returns the rendered song as a lazy sequence of blocks, one per tick.
// The sequence is finite and can only be iterated once, later iterations
// continue from wherever the previous one stopped.
func (r *Renderer) Blocks() iter.Seq[Block] {
	return func(yield func(Block) bool) {
		for {
			b, ok := r.Next()
			if !ok || !yield(b) {
				return
			}
		}
	}
}

// Progress returns the position of the most recently rendered tick.
func (r *Renderer) Progress() Progress {
	return Progress{
		Order:   r.last.Order,
		Orders:  len(r.song.Orders),
		Pattern: r.last.Pattern,
		Row:     r.last.Row,
		Elapsed: time.Duration(r.seq.Elapsed()) * time.Second / time.Duration(r.cfg.SampleRate),
	}
}

// Finished reports if every tick of the song has been rendered.
func (r *Renderer) Finished() bool {
	return r.seq.Finished()
}

// Render writes every remaining block to w, calling progress (if not nil)
// after each one. Cancelling ctx stops the render between ticks and returns
// the context's error, blocks already written are left in w.
func (r *Renderer) Render(ctx context.Context, w BlockWriter, progress func(Progress)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, ok := r.Next()
		if !ok {
			return nil
		}
		if err := w.AppendBlock(b); err != nil {
			return err
		}
		if progress != nil {
			progress(r.Progress())
		}
	}
}
