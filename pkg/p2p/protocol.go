package p2p

import (
	"context"
	"encoding/binary"
	"io"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

// Wire protocol: one request per stream, one response, then the
// stream closes. Every length-prefixed field uses a big-endian uint32
// byte count ahead of its payload.
type opcode byte

const (
	opFetchByCid   opcode = 0
	opFetchByIndex opcode = 1
)

type status byte

const (
	statusOK       status = 0
	statusNotFound status = 1
	statusErr      status = 2
)

func writeFrame(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	_, err := w.Write(b)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// FetchBlock implements node.Network by opening a stream to any
// currently connected peer and asking for cid directly. The first
// peer to answer OK wins; peers reporting NotFound are skipped.
func (t *Transport) FetchBlock(ctx context.Context, cid hashcodec.CID) ([]byte, error) {
	res, err := t.fetch(ctx, func(conn *quic.Conn) (any, error) {
		stream, err := conn.OpenStreamSync(ctx)
		if err != nil {
			return nil, err
		}
		defer stream.Close()

		if err := stream.SetDeadline(deadlineFromContext(ctx)); err != nil {
			return nil, err
		}
		if _, err := stream.Write([]byte{byte(opFetchByCid)}); err != nil {
			return nil, err
		}
		if err := writeFrame(stream, cid.Bytes()); err != nil {
			return nil, err
		}

		st, data, err := readResponse(stream)
		if err != nil {
			return nil, err
		}
		if st == statusNotFound {
			return nil, storageerr.Newf(storageerr.NotFound, "p2p.FetchBlock", "peer does not have %s", cid.String())
		}
		if st != statusOK {
			return nil, storageerr.Newf(storageerr.NetworkFailure, "p2p.FetchBlock", "peer reported error for %s", cid.String())
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return res.([]byte), nil
}

// FetchBlockByIndex is the same request/response exchange, but keyed
// by (treeCid, index) rather than a CID the caller doesn't have yet;
// the response carries the leaf's own CID alongside its bytes.
func (t *Transport) FetchBlockByIndex(ctx context.Context, treeCid hashcodec.CID, index int) (hashcodec.CID, []byte, error) {
	type result struct {
		cid  hashcodec.CID
		data []byte
	}
	res, err := t.fetch(ctx, func(conn *quic.Conn) (any, error) {
		stream, err := conn.OpenStreamSync(ctx)
		if err != nil {
			return nil, err
		}
		defer stream.Close()

		if err := stream.SetDeadline(deadlineFromContext(ctx)); err != nil {
			return nil, err
		}
		if _, err := stream.Write([]byte{byte(opFetchByIndex)}); err != nil {
			return nil, err
		}
		if err := writeFrame(stream, treeCid.Bytes()); err != nil {
			return nil, err
		}
		var idxBuf [8]byte
		binary.BigEndian.PutUint64(idxBuf[:], uint64(index))
		if _, err := stream.Write(idxBuf[:]); err != nil {
			return nil, err
		}

		st, cidBytes, err := readResponseFrame(stream)
		if err != nil {
			return nil, err
		}
		if st == statusNotFound {
			return nil, storageerr.Newf(storageerr.NotFound, "p2p.FetchBlockByIndex", "peer does not have index %d of %s", index, treeCid.String())
		}
		if st != statusOK {
			return nil, storageerr.Newf(storageerr.NetworkFailure, "p2p.FetchBlockByIndex", "peer reported error for index %d of %s", index, treeCid.String())
		}
		cid, err := hashcodec.DecodeCIDBytes(cidBytes)
		if err != nil {
			return nil, storageerr.Wrap(storageerr.InvalidCid, "p2p.FetchBlockByIndex", err)
		}
		data, err := readFrame(stream)
		if err != nil {
			return nil, err
		}
		return result{cid: cid, data: data}, nil
	})
	if err != nil {
		return hashcodec.CID{}, nil, err
	}
	r := res.(result)
	return r.cid, r.data, nil
}

// fetch tries every currently connected peer in turn (map iteration
// order, which Go randomizes) until one succeeds; it fails only once
// every peer has failed or there are none.
func (t *Transport) fetch(ctx context.Context, attempt func(*quic.Conn) (any, error)) (any, error) {
	t.mu.RLock()
	conns := make([]*quic.Conn, 0, len(t.connections))
	for _, c := range t.connections {
		conns = append(conns, c)
	}
	t.mu.RUnlock()

	if len(conns) == 0 {
		return nil, storageerr.Newf(storageerr.NetworkFailure, "p2p.fetch", "no connected peers")
	}

	var lastErr error
	for _, conn := range conns {
		result, err := attempt(conn)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func readResponse(stream io.Reader) (status, []byte, error) {
	var stBuf [1]byte
	if _, err := io.ReadFull(stream, stBuf[:]); err != nil {
		return 0, nil, err
	}
	st := status(stBuf[0])
	if st != statusOK {
		return st, nil, nil
	}
	data, err := readFrame(stream)
	return st, data, err
}

func readResponseFrame(stream io.Reader) (status, []byte, error) {
	var stBuf [1]byte
	if _, err := io.ReadFull(stream, stBuf[:]); err != nil {
		return 0, nil, err
	}
	st := status(stBuf[0])
	if st != statusOK {
		return st, nil, nil
	}
	cidBytes, err := readFrame(stream)
	return st, cidBytes, err
}

// serveStream reads a single request, answers it from the local
// store, and closes the stream.
func (t *Transport) serveStream(stream *quic.Stream) {
	defer stream.Close()

	var opBuf [1]byte
	if _, err := io.ReadFull(stream, opBuf[:]); err != nil {
		return
	}

	switch opcode(opBuf[0]) {
	case opFetchByCid:
		t.serveFetchByCid(stream)
	case opFetchByIndex:
		t.serveFetchByIndex(stream)
	default:
		writeStatus(stream, statusErr)
	}
}

func (t *Transport) serveFetchByCid(stream *quic.Stream) {
	cidBytes, err := readFrame(stream)
	if err != nil {
		return
	}
	cid, err := hashcodec.DecodeCIDBytes(cidBytes)
	if err != nil {
		writeStatus(stream, statusErr)
		return
	}
	data, err := t.store.Get(t.ctx, cid)
	if err != nil {
		if storageerr.KindOf(err) == storageerr.NotFound {
			writeStatus(stream, statusNotFound)
			return
		}
		writeStatus(stream, statusErr)
		return
	}
	writeStatus(stream, statusOK)
	_ = writeFrame(stream, data)
}

func (t *Transport) serveFetchByIndex(stream *quic.Stream) {
	treeCidBytes, err := readFrame(stream)
	if err != nil {
		return
	}
	treeCid, err := hashcodec.DecodeCIDBytes(treeCidBytes)
	if err != nil {
		writeStatus(stream, statusErr)
		return
	}
	var idxBuf [8]byte
	if _, err := io.ReadFull(stream, idxBuf[:]); err != nil {
		return
	}
	index := int(binary.BigEndian.Uint64(idxBuf[:]))

	data, err := t.store.GetByIndex(t.ctx, treeCid, index)
	if err != nil {
		if storageerr.KindOf(err) == storageerr.NotFound {
			writeStatus(stream, statusNotFound)
			return
		}
		writeStatus(stream, statusErr)
		return
	}

	leafHash, err := hashcodec.ComputeHash(hashcodec.SHA2_256, data)
	if err != nil {
		writeStatus(stream, statusErr)
		return
	}
	leafCid, err := hashcodec.NewCID(hashcodec.CidVersion, hashcodec.BlockCodec, leafHash)
	if err != nil {
		writeStatus(stream, statusErr)
		return
	}

	writeStatus(stream, statusOK)
	if err := writeFrame(stream, leafCid.Bytes()); err != nil {
		return
	}
	_ = writeFrame(stream, data)
}

func writeStatus(w io.Writer, st status) {
	_, _ = w.Write([]byte{byte(st)})
}

// deadlineFromContext returns ctx's deadline, or the zero time.Time
// (meaning "no deadline") when it has none.
func deadlineFromContext(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Time{}
}
