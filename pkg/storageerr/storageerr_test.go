package storageerr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapNilIsNil(t *testing.T) {
	require.NoError(t, Wrap(NotFound, "op", nil))
}

func TestKindOf(t *testing.T) {
	err := Wrap(NotFound, "blockstore.Get", fmt.Errorf("boom"))
	assert.Equal(t, NotFound, KindOf(err))
	assert.True(t, Matches(err, NotFound))
	assert.False(t, Matches(err, IoFailure))
}

func TestErrorIsByKind(t *testing.T) {
	a := Wrap(QuotaExceeded, "blockstore.Put", fmt.Errorf("full"))
	b := &Error{Kind: QuotaExceeded}
	assert.True(t, Is(a, b))
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(IoFailure, "blockstore.Put", cause)
	assert.Equal(t, cause, Unwrap(err))
}
