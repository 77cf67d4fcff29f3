package storage

import (
	"errors"
	"fmt"
	"sync"

	"qexec-go/metrics"
	"qexec-go/operators"

	"github.com/klauspost/compress/zstd"
)

var (
	ErrNoSuchBlock = func(file string, blk int) error {
		return fmt.Errorf("block %d of %q does not exist", blk, file)
	}
	ErrScanNotPositioned = errors.New("scan is not positioned on a record")
)

type Options struct {
	BlockSize      int
	AvailableBuffs int
	// SpillDir switches from the in-memory device to compressed block files.
	SpillDir         string
	CompressionLevel zstd.EncoderLevel
	Metrics          *metrics.Metrics
}

func DefaultOptions() Options {
	return Options{
		BlockSize:        512,
		AvailableBuffs:   8,
		CompressionLevel: zstd.SpeedDefault,
	}
}

// Store stands in for the buffer and file managers. It only knows blocks:
// how many a file has, how to read one, and how to write one back.
type Store struct {
	mu        sync.Mutex
	dev       blockDevice
	blockSize int
	buffs     int
	m         *metrics.Metrics
}

func NewStore(opts Options) (*Store, error) {
	if opts.BlockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", opts.BlockSize)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	var dev blockDevice = newMemDevice()
	if opts.SpillDir != "" {
		sd, err := newSpillDevice(opts.SpillDir, opts.CompressionLevel)
		if err != nil {
			return nil, err
		}
		dev = sd
	}
	return &Store{
		dev:       dev,
		blockSize: opts.BlockSize,
		buffs:     opts.AvailableBuffs,
		m:         opts.Metrics,
	}, nil
}

func (st *Store) BlockSize() int { return st.blockSize }

// AvailableBuffs is the number of buffers an operator may claim for itself.
func (st *Store) AvailableBuffs() int { return st.buffs }

// SetAvailableBuffs changes the budget for plans built afterwards.
func (st *Store) SetAvailableBuffs(n int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.buffs = n
}

// Size returns the number of blocks in file. Unknown files have zero blocks.
func (st *Store) Size(file string) (int, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.dev.numBlocks(file), nil
}

func (st *Store) Drop(file string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.dev.drop(file)
}

func (st *Store) Close() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.dev.close()
}

func (st *Store) Metrics() *metrics.Metrics { return st.m }

func (st *Store) readBlock(file string, blk int, layout *operators.Layout) (*block, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if blk < 0 || blk >= st.dev.numBlocks(file) {
		return nil, ErrNoSuchBlock(file, blk)
	}
	b, err := st.dev.read(file, blk, layout)
	if err != nil {
		return nil, fmt.Errorf("read block %d of %q: %w", blk, file, err)
	}
	st.m.BlocksRead.WithLabelValues(st.dev.name()).Inc()
	return b, nil
}

func (st *Store) writeBlock(file string, blk int, b *block, layout *operators.Layout) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.dev.write(file, blk, b, layout); err != nil {
		return fmt.Errorf("write block %d of %q: %w", blk, file, err)
	}
	st.m.BlocksWritten.WithLabelValues(st.dev.name()).Inc()
	return nil
}

// appendBlock adds an empty block at the end of file and returns its number.
func (st *Store) appendBlock(file string, layout *operators.Layout) (int, *block, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	blk := st.dev.numBlocks(file)
	b := &block{}
	if err := st.dev.write(file, blk, b, layout); err != nil {
		return 0, nil, fmt.Errorf("append block to %q: %w", file, err)
	}
	st.m.BlocksWritten.WithLabelValues(st.dev.name()).Inc()
	return blk, b, nil
}
