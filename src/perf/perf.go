package perf

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// OperationPerf records timing blocks for one core operation (grading a post,
// reviewing a post, ...). SQL queries add their own blocks through the db tracer.
type OperationPerf struct {
	Name  string
	Start time.Time
	End   time.Time

	mu     sync.Mutex
	blocks []PerfBlock
}

type PerfBlock struct {
	Start       time.Time
	End         time.Time
	Category    string
	Description string
}

func (pb *PerfBlock) Duration() time.Duration {
	return pb.End.Sub(pb.Start)
}

func (pb *PerfBlock) DurationMs() float64 {
	return float64(pb.Duration().Nanoseconds()) / 1000 / 1000
}

func MakeNewOperationPerf(name string) *OperationPerf {
	return &OperationPerf{
		Name:  name,
		Start: time.Now(),
	}
}

// BlockHandle ends exactly the block it was returned for, which matters when
// blocks from concurrent queries interleave.
type BlockHandle struct {
	p   *OperationPerf
	idx int
}

func (h *BlockHandle) End() {
	if h == nil || h.p == nil {
		return
	}
	h.p.mu.Lock()
	defer h.p.mu.Unlock()
	if h.p.blocks[h.idx].End.IsZero() {
		h.p.blocks[h.idx].End = time.Now()
	}
}

func (p *OperationPerf) StartBlock(category, description string) *BlockHandle {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blocks = append(p.blocks, PerfBlock{
		Start:       time.Now(),
		Category:    category,
		Description: description,
	})
	return &BlockHandle{p: p, idx: len(p.blocks) - 1}
}

// EndOperation closes any open blocks and stamps the end time.
func (p *OperationPerf) EndOperation() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	for i := range p.blocks {
		if p.blocks[i].End.IsZero() {
			p.blocks[i].End = now
		}
	}
	p.End = now
}

func (p *OperationPerf) Blocks() []PerfBlock {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	res := make([]PerfBlock, len(p.blocks))
	copy(res, p.blocks)
	return res
}

func (p *OperationPerf) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// MarshalZerologObject lets an operation's timings ride along on a log line.
func (p *OperationPerf) MarshalZerologObject(e *zerolog.Event) {
	e.Str("operation", p.Name).Dur("total", p.Duration())
	var sqlTime time.Duration
	var sqlCount int
	for _, b := range p.Blocks() {
		if b.Category == "SQL" {
			sqlTime += b.Duration()
			sqlCount++
		}
	}
	e.Int("queries", sqlCount).Dur("sql", sqlTime)
}

type perfContextKey struct{}

func AttachPerf(ctx context.Context, p *OperationPerf) context.Context {
	return context.WithValue(ctx, perfContextKey{}, p)
}

// ExtractPerf returns the OperationPerf attached to ctx. The result may be nil;
// all methods are safe to call on a nil *OperationPerf.
func ExtractPerf(ctx context.Context) *OperationPerf {
	p, _ := ctx.Value(perfContextKey{}).(*OperationPerf)
	return p
}
