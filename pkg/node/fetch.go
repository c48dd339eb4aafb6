package node

import (
	"context"
	"sync"

	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
	"github.com/nipsysdev/logos-storage-go/pkg/manifest"
	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

// maxOnBatchBlocks bounds how many completed blocks accumulate before
// a forced flush to onBatch, independent of batchSize.
const maxOnBatchBlocks = 128

// FetchedBlock is one block delivered to an onBatch callback.
type FetchedBlock struct {
	Index int
	Data  []byte
}

// FetchBatchedRequest describes a sliding-window prefetch. Exactly one
// of Manifest or (TreeCid, Indices) should be set; Manifest takes
// precedence when both are present.
type FetchBatchedRequest struct {
	Manifest *manifest.Manifest

	TreeCid hashcodec.CID
	Indices []int

	// BatchSize bounds requests in flight at once; defaults to 1024.
	BatchSize int
	// OnBatch, if set, receives completed blocks in batches of up to
	// min(BatchSize, 128). Returning an error stops further delivery
	// and fails the whole operation.
	OnBatch func([]FetchedBlock) error
	// FetchLocal, when false, skips indices already present locally
	// (used for background warming). The zero value is false, so a
	// request that leaves it unset skips local indices; only true
	// issues every index.
	FetchLocal bool
}

// FetchBatchedResult reports the outcome of a FetchBatched call.
type FetchBatchedResult struct {
	Succeeded     int
	FailedIndices []int
}

type indexResult struct {
	index int
	data  []byte
	err   error
}

// FetchBatched issues up to BatchSize concurrent block fetches against
// the store (with network fallback), refilling the window as
// completions accumulate rather than waiting for the whole window to
// drain. It never retries an individual failed block.
func (e *Engine) FetchBatched(ctx context.Context, req FetchBatchedRequest) (FetchBatchedResult, error) {
	treeCid := req.TreeCid
	var indices []int
	if req.Manifest != nil {
		treeCid = req.Manifest.TreeCid
		n := req.Manifest.BlocksCount()
		indices = make([]int, n)
		for i := range indices {
			indices[i] = i
		}
	} else {
		indices = req.Indices
	}

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = 1024
	}
	fetchLocal := req.FetchLocal
	if len(indices) == 0 {
		return FetchBatchedResult{}, nil
	}

	refillThreshold := (batchSize*3 + 3) / 4 // ceil(batchSize * 0.75)
	refillSize := refillThreshold
	if refillSize < 1 {
		refillSize = 1
	}

	results := make(chan indexResult)
	var wg sync.WaitGroup
	issue := func(idx int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := e.getBlockByIndex(ctx, treeCid, idx)
			select {
			case results <- indexResult{index: idx, data: data, err: err}:
			case <-ctx.Done():
			}
		}()
	}

	next := 0
	issueNext := func(n int) int {
		issued := 0
		for issued < n && next < len(indices) {
			idx := indices[next]
			next++
			if !fetchLocal {
				present, err := e.hasLocalBlockForIndex(ctx, treeCid, idx)
				if err == nil && present {
					continue
				}
			}
			issue(idx)
			issued++
		}
		return issued
	}

	issueNext(batchSize)

	go func() {
		wg.Wait()
		close(results)
	}()

	var (
		result           FetchBatchedResult
		completedInBatch int
		buffer           []FetchedBlock
		onBatchErr       error
	)

	flush := func() error {
		if len(buffer) == 0 || req.OnBatch == nil {
			buffer = nil
			return nil
		}
		err := req.OnBatch(buffer)
		buffer = nil
		return err
	}

	for res := range results {
		if res.err != nil {
			result.FailedIndices = append(result.FailedIndices, res.index)
		} else {
			result.Succeeded++
			if req.OnBatch != nil && onBatchErr == nil {
				buffer = append(buffer, FetchedBlock{Index: res.index, Data: res.data})
				if len(buffer) >= min(batchSize, maxOnBatchBlocks) {
					if err := flush(); err != nil {
						onBatchErr = err
					}
				}
			}
		}

		completedInBatch++
		if completedInBatch >= refillThreshold && onBatchErr == nil {
			issueNext(refillSize)
			completedInBatch = 0
		}
	}

	if onBatchErr == nil {
		if err := flush(); err != nil {
			onBatchErr = err
		}
	}

	if onBatchErr != nil {
		return result, onBatchErr
	}

	if len(result.FailedIndices) > 0 {
		return result, storageerr.Newf(storageerr.NetworkFailure, "node.FetchBatched", "%d block(s) failed to fetch", len(result.FailedIndices))
	}

	return result, nil
}

func (e *Engine) hasLocalBlockForIndex(ctx context.Context, treeCid hashcodec.CID, index int) (bool, error) {
	_, err := e.store.GetByIndex(ctx, treeCid, index)
	if err == nil {
		return true, nil
	}
	if storageerr.KindOf(err) == storageerr.NotFound {
		return false, nil
	}
	return false, err
}
