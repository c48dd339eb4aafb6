// Package chunker splits a byte stream into fixed-size blocks for the
// node engine to hash and store. It wraps boxo/chunker's size splitter
// the same way internal/chunker does, parametrized by the caller's
// block size instead of a fixed default.
package chunker

import (
	"io"

	boxochunker "github.com/ipfs/boxo/chunker"

	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

// Chunker yields fixed-size chunks from a byte stream. Every chunk is
// exactly blockSize bytes except the final one, which may be shorter
// and is never padded; padding, if a Merkle construction needs it, is
// applied at the hashing layer instead.
type Chunker struct {
	splitter boxochunker.Splitter
	offset   uint64
	done     bool
}

// New wraps r with a splitter that emits chunks of exactly blockSize
// bytes. blockSize must be positive.
func New(r io.Reader, blockSize uint32) (*Chunker, error) {
	if blockSize == 0 {
		return nil, storageerr.Newf(storageerr.InvalidArgument, "chunker.New", "blockSize must be positive")
	}
	return &Chunker{splitter: boxochunker.NewSizeSplitter(r, int64(blockSize))}, nil
}

// Next returns the next chunk, or io.EOF once the stream is exhausted.
// After io.EOF, Offset() equals the total bytes read (the dataset
// size).
func (c *Chunker) Next() ([]byte, error) {
	if c.done {
		return nil, io.EOF
	}
	chunk, err := c.splitter.NextBytes()
	if err == io.EOF {
		c.done = true
		return nil, io.EOF
	}
	if err != nil {
		return nil, storageerr.Wrap(storageerr.IoFailure, "chunker.Next", err)
	}
	c.offset += uint64(len(chunk))
	return chunk, nil
}

// Offset reports the cumulative number of bytes yielded so far.
func (c *Chunker) Offset() uint64 {
	return c.offset
}
