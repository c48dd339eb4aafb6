package merkle

// Key selects among the four domain-separation tags the compression
// function is called with, per spec section 3.
type Key int

const (
	KeyNone Key = iota
	KeyBottomLayer
	KeyOdd
	KeyOddAndBottomLayer
)

func keyFor(level int, oddChild bool) Key {
	switch {
	case level == 0 && oddChild:
		return KeyOddAndBottomLayer
	case level == 0:
		return KeyBottomLayer
	case oddChild:
		return KeyOdd
	default:
		return KeyNone
	}
}
