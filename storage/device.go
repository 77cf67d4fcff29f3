package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"qexec-go/operators"

	"github.com/klauspost/compress/zstd"
)

// block holds the rows of one page, each row in layout field order.
type block struct {
	rows [][]operators.Constant
}

func (b *block) clone() *block {
	rows := make([][]operators.Constant, len(b.rows))
	for i, r := range b.rows {
		rows[i] = append([]operators.Constant(nil), r...)
	}
	return &block{rows: rows}
}

type blockDevice interface {
	name() string
	numBlocks(file string) int
	read(file string, blk int, layout *operators.Layout) (*block, error)
	// write replaces block blk, or appends it when blk == numBlocks(file).
	write(file string, blk int, b *block, layout *operators.Layout) error
	drop(file string) error
	close() error
}

var (
	_ = (blockDevice)(&memDevice{})
	_ = (blockDevice)(&spillDevice{})
)

type memDevice struct {
	files map[string][]*block
}

func newMemDevice() *memDevice {
	return &memDevice{files: make(map[string][]*block)}
}

func (md *memDevice) name() string { return "memory" }

func (md *memDevice) numBlocks(file string) int { return len(md.files[file]) }

// read hands out a private copy; writes become visible only through write.
func (md *memDevice) read(file string, blk int, _ *operators.Layout) (*block, error) {
	return md.files[file][blk].clone(), nil
}

func (md *memDevice) write(file string, blk int, b *block, _ *operators.Layout) error {
	blocks := md.files[file]
	switch {
	case blk == len(blocks):
		md.files[file] = append(blocks, b.clone())
	case blk >= 0 && blk < len(blocks):
		blocks[blk] = b.clone()
	default:
		return ErrNoSuchBlock(file, blk)
	}
	return nil
}

func (md *memDevice) drop(file string) error {
	delete(md.files, file)
	return nil
}

func (md *memDevice) close() error {
	md.files = make(map[string][]*block)
	return nil
}

type extent struct {
	off    int64
	length int64
}

type spillFile struct {
	f       *os.File
	end     int64
	extents []extent
	codec   interface {
		EncodeBlock([][]operators.Constant) ([]byte, error)
		DecodeBlock([]byte) ([][]operators.Constant, error)
		Close() error
	}
}

// spillDevice appends every block version to one file per table and keeps
// the latest extent of each block in memory. Stale versions are never compacted.
type spillDevice struct {
	dir   string
	level zstd.EncoderLevel
	files map[string]*spillFile
}

func newSpillDevice(dir string, level zstd.EncoderLevel) (*spillDevice, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spill dir: %w", err)
	}
	return &spillDevice{dir: dir, level: level, files: make(map[string]*spillFile)}, nil
}

func (sd *spillDevice) name() string { return "spill" }

func (sd *spillDevice) numBlocks(file string) int {
	if f, ok := sd.files[file]; ok {
		return len(f.extents)
	}
	return 0
}

func (sd *spillDevice) open(file string, layout *operators.Layout) (*spillFile, error) {
	if f, ok := sd.files[file]; ok {
		return f, nil
	}
	if strings.ContainsAny(file, `/\`) {
		return nil, fmt.Errorf("invalid table file name %q", file)
	}
	codec, err := operators.NewSerializer(layout.Schema(), sd.level)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(sd.dir, file+".tbl"), os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		codec.Close()
		return nil, err
	}
	sf := &spillFile{f: f, codec: codec}
	sd.files[file] = sf
	return sf, nil
}

func (sd *spillDevice) read(file string, blk int, layout *operators.Layout) (*block, error) {
	sf, err := sd.open(file, layout)
	if err != nil {
		return nil, err
	}
	ext := sf.extents[blk]
	if ext.length == 0 {
		return &block{}, nil
	}
	buf := make([]byte, ext.length)
	if _, err := sf.f.ReadAt(buf, ext.off); err != nil {
		return nil, err
	}
	rows, err := sf.codec.DecodeBlock(buf)
	if err != nil {
		return nil, err
	}
	return &block{rows: rows}, nil
}

func (sd *spillDevice) write(file string, blk int, b *block, layout *operators.Layout) error {
	sf, err := sd.open(file, layout)
	if err != nil {
		return err
	}
	if blk < 0 || blk > len(sf.extents) {
		return ErrNoSuchBlock(file, blk)
	}
	ext := extent{off: sf.end}
	if len(b.rows) > 0 {
		data, err := sf.codec.EncodeBlock(b.rows)
		if err != nil {
			return err
		}
		if _, err := sf.f.WriteAt(data, sf.end); err != nil {
			return err
		}
		ext.length = int64(len(data))
		sf.end += ext.length
	}
	if blk == len(sf.extents) {
		sf.extents = append(sf.extents, ext)
	} else {
		sf.extents[blk] = ext
	}
	return nil
}

func (sd *spillDevice) drop(file string) error {
	sf, ok := sd.files[file]
	if !ok {
		return nil
	}
	delete(sd.files, file)
	return errors.Join(sf.codec.Close(), sf.f.Close(), os.Remove(sf.f.Name()))
}

func (sd *spillDevice) close() error {
	var errs []error
	for name := range sd.files {
		errs = append(errs, sd.drop(name))
	}
	return errors.Join(errs...)
}
