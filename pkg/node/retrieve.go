package node

import (
	"context"
	"io"

	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
	"github.com/nipsysdev/logos-storage-go/pkg/manifest"
)

// Retrieve returns a stream over cid's bytes. A non-manifest CID
// yields that single block. A manifest CID yields the concatenation
// of its dataset's blocks in index order, truncated to datasetSize. If
// local is false, retrieval also kicks off a best-effort background
// FetchBatched to warm the local store from peers.
func (e *Engine) Retrieve(ctx context.Context, cid hashcodec.CID, local bool) (io.ReadCloser, error) {
	if !cid.IsManifest() {
		data, err := e.getBlock(ctx, cid)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(newByteReader(data)), nil
	}

	m, err := e.FetchManifest(ctx, cid)
	if err != nil {
		return nil, err
	}

	if !local {
		go func() {
			_, _ = e.FetchBatched(context.Background(), FetchBatchedRequest{
				Manifest:   &m,
				BatchSize:  1024,
				FetchLocal: false,
			})
		}()
	}

	return &datasetReader{ctx: ctx, engine: e, manifest: m}, nil
}

// datasetReader sequentially reads a manifest's blocks in index order,
// truncating the final block so total bytes read equals DatasetSize.
type datasetReader struct {
	ctx      context.Context
	engine   *Engine
	manifest manifest.Manifest

	index     uint64
	delivered uint64
	current   []byte
}

func (d *datasetReader) Read(p []byte) (int, error) {
	if len(d.current) == 0 {
		if d.delivered >= d.manifest.DatasetSize {
			return 0, io.EOF
		}
		if d.index >= d.manifest.BlocksCount() {
			return 0, io.EOF
		}

		data, err := d.engine.getBlockByIndex(d.ctx, d.manifest.TreeCid, int(d.index))
		if err != nil {
			return 0, err
		}
		d.index++

		remaining := d.manifest.DatasetSize - d.delivered
		if uint64(len(data)) > remaining {
			data = data[:remaining]
		}
		d.current = data
	}

	n := copy(p, d.current)
	d.current = d.current[n:]
	d.delivered += uint64(n)
	return n, nil
}

func (d *datasetReader) Close() error {
	return nil
}

type byteReader struct {
	data []byte
	pos  int
}

func newByteReader(data []byte) *byteReader {
	return &byteReader{data: data}
}

func (b *byteReader) Read(p []byte) (int, error) {
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += n
	return n, nil
}
