package materialize

import (
	"qexec-go/metrics"
	"qexec-go/storage"

	"github.com/go-kit/log"
	"go.uber.org/atomic"
)

// Sequence hands out temp table ids. Ids are unique for the lifetime of the generator.
type Sequence interface {
	Next() int64
}

type AtomicSequence struct {
	n atomic.Int64
}

func NewAtomicSequence() *AtomicSequence {
	return &AtomicSequence{}
}

func (s *AtomicSequence) Next() int64 {
	return s.n.Inc()
}

// Context is threaded through every plan that needs scratch storage.
type Context struct {
	Store   *storage.Store
	Seq     Sequence
	Logger  log.Logger
	Metrics *metrics.Metrics
}

// NewContext fills unset collaborators with a fresh sequence, a nop logger and nop metrics.
func NewContext(st *storage.Store, seq Sequence, logger log.Logger) *Context {
	if seq == nil {
		seq = NewAtomicSequence()
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Context{
		Store:   st,
		Seq:     seq,
		Logger:  logger,
		Metrics: st.Metrics(),
	}
}
