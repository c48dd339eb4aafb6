package node

import (
	"context"

	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
)

// Network is the narrow interface the engine needs from the
// peer-to-peer transport: fetch a block by CID, or by its position in
// a dataset when the caller doesn't yet know the leaf's own CID.
// Discovery, connection management, and replication policy live
// entirely on the other side of this boundary.
type Network interface {
	FetchBlock(ctx context.Context, cid hashcodec.CID) ([]byte, error)
	FetchBlockByIndex(ctx context.Context, treeCid hashcodec.CID, index int) (hashcodec.CID, []byte, error)
}

// noNetwork is used when an engine is constructed without a network
// collaborator (e.g. purely local test setups); every fetch reports
// NotFound immediately rather than the engine special-casing a nil
// interface throughout.
type noNetwork struct{}

func (noNetwork) FetchBlock(ctx context.Context, cid hashcodec.CID) ([]byte, error) {
	return nil, errBlockUnavailable(cid)
}

func (noNetwork) FetchBlockByIndex(ctx context.Context, treeCid hashcodec.CID, index int) (hashcodec.CID, []byte, error) {
	return hashcodec.CID{}, nil, errBlockUnavailable(treeCid)
}
