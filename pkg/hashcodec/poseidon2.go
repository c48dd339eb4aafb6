package hashcodec

import (
	"crypto/sha256"
	"math/big"
)

// fieldElementSize is the byte length of a field element serialized
// big-endian, wide enough for the 254-bit BN254 scalar field this hash
// operates over.
const fieldElementSize = 32

// fieldModulus is the BN254 scalar field order (254 bits), the field
// this package's algebraic hash operates over so that Merkle trees
// built with it interoperate with zero-knowledge circuits defined over
// the same curve.
var fieldModulus, _ = new(big.Int).SetString(
	"30644e72e131a029b85045b68181585d2833e84879b9709143e1f593f0000001", 16,
)

// poseidon2Rounds is the number of full rounds applied by the
// permutation below. This is a from-scratch construction (no ecosystem
// Poseidon implementation exists in the retrieved corpus) built to the
// same shape as the Poseidon family: an x^5 S-box, per-round constants,
// and a fixed linear layer, applied to a 3-element state (rate 2,
// capacity 1) so it can absorb two field elements at a time for the
// Merkle compression function and an arbitrary number for byte hashing.
const poseidon2Rounds = 8

// roundConstants derives the round constant for round r and state
// position i deterministically from SHA-256, so the permutation has no
// externally-sourced constants to transcribe incorrectly.
func roundConstant(round, pos int) *big.Int {
	h := sha256.Sum256([]byte{'p', 's', '2', byte(round), byte(pos)})
	c := new(big.Int).SetBytes(h[:])
	return c.Mod(c, fieldModulus)
}

// permute applies the fixed permutation to a 3-element state in place.
func permute(state [3]*big.Int) [3]*big.Int {
	mds := [3][3]int64{
		{2, 1, 1},
		{1, 2, 1},
		{1, 1, 2},
	}

	for round := 0; round < poseidon2Rounds; round++ {
		for i := range state {
			state[i] = new(big.Int).Add(state[i], roundConstant(round, i))
			state[i].Mod(state[i], fieldModulus)
		}

		for i := range state {
			sq := new(big.Int).Mul(state[i], state[i])
			sq.Mod(sq, fieldModulus)
			quad := new(big.Int).Mul(sq, sq)
			quad.Mod(quad, fieldModulus)
			state[i] = new(big.Int).Mul(quad, state[i])
			state[i].Mod(state[i], fieldModulus)
		}

		var next [3]*big.Int
		for row := 0; row < 3; row++ {
			acc := big.NewInt(0)
			for col := 0; col < 3; col++ {
				term := new(big.Int).Mul(state[col], big.NewInt(mds[row][col]))
				acc.Add(acc, term)
			}
			acc.Mod(acc, fieldModulus)
			next[row] = acc
		}
		state = next
	}

	return state
}

// poseidon2Compress absorbs two field elements plus a domain-separation
// tag and squeezes one field element out; this backs the Merkle
// compression function when the tree's hash codec is Poseidon2.
func poseidon2Compress(left, right *big.Int, domainTag int64) []byte {
	state := [3]*big.Int{
		new(big.Int).Mod(left, fieldModulus),
		new(big.Int).Mod(right, fieldModulus),
		big.NewInt(domainTag),
	}
	out := permute(state)
	digest := make([]byte, fieldElementSize)
	out[0].FillBytes(digest)
	return digest
}

// poseidon2HashBytes absorbs an arbitrary-length byte string, 31 bytes
// (one sub-field-sized limb) at a time to guarantee every limb is
// already reduced mod the field, and returns the squeezed digest.
func poseidon2HashBytes(data []byte) []byte {
	const limbSize = 31

	state := [3]*big.Int{big.NewInt(0), big.NewInt(0), big.NewInt(int64(len(data)))}

	for offset := 0; offset < len(data) || offset == 0; offset += limbSize {
		end := offset + limbSize
		if end > len(data) {
			end = len(data)
		}
		limb := new(big.Int).SetBytes(data[offset:end])
		state[0] = new(big.Int).Mod(new(big.Int).Add(state[0], limb), fieldModulus)
		state = permute(state)
		if end == len(data) {
			break
		}
	}

	digest := make([]byte, fieldElementSize)
	state[0].FillBytes(digest)
	return digest
}

func bytesToFieldElement(digest []byte) *big.Int {
	v := new(big.Int).SetBytes(digest)
	return v.Mod(v, fieldModulus)
}
