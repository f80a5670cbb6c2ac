// Package merkle implements the airdrop Merkle construction: packed
// (index, account, amount) leaves hashed with keccak256 and combined with
// sorted-pair hashing at every level, so proofs carry no left/right flags.
package merkle

import (
	"bytes"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"

	dErrors "proofdrop/pkg/domain-errors"
	"proofdrop/pkg/domain"
)

// LeafSize is len(encodePacked(uint256, address, uint256)).
const LeafSize = 32 + 20 + 32

var hasherPool = sync.Pool{
	New: func() any { return crypto.NewKeccakState() },
}

func keccak(parts ...[]byte) domain.Hash {
	h := hasherPool.Get().(crypto.KeccakState)
	defer hasherPool.Put(h)
	h.Reset()
	for _, p := range parts {
		h.Write(p)
	}
	var out domain.Hash
	h.Read(out[:])
	return out
}

// Keccak256 hashes the concatenation of parts.
func Keccak256(parts ...[]byte) domain.Hash {
	return keccak(parts...)
}

// PackLeaf returns encodePacked(uint256 index, address account, uint256 amount).
func PackLeaf(index domain.Amount, account domain.Address, amount domain.Amount) []byte {
	buf := make([]byte, 0, LeafSize)
	idx := index.Bytes32()
	amt := amount.Bytes32()
	buf = append(buf, idx[:]...)
	buf = append(buf, account.Bytes()...)
	buf = append(buf, amt[:]...)
	return buf
}

// Leaf is keccak256(encodePacked(index, account, amount)).
func Leaf(index domain.Amount, account domain.Address, amount domain.Amount) domain.Hash {
	return keccak(PackLeaf(index, account, amount))
}

// HashPair hashes the two nodes in ascending byte order.
func HashPair(a, b domain.Hash) domain.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return keccak(a[:], b[:])
}

// Verify folds proof into leaf and compares against root. Pure; an empty
// proof verifies only a single-leaf tree.
func Verify(proof []domain.Hash, root, leaf domain.Hash) bool {
	computed := leaf
	for _, sibling := range proof {
		computed = HashPair(computed, sibling)
	}
	return computed == root
}

// Tree keeps every level so proofs can be produced for any leaf.
// levels[0] are the leaves, the last level holds the root.
type Tree struct {
	levels [][]domain.Hash
}

// Build hashes leaves pairwise upwards. A trailing odd node is promoted
// unchanged to the next level.
func Build(leaves []domain.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "merkle tree needs at least one leaf")
	}
	level := make([]domain.Hash, len(leaves))
	copy(level, leaves)
	levels := [][]domain.Hash{level}

	for len(level) > 1 {
		next := make([]domain.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, HashPair(level[i], level[i+1]))
		}
		levels = append(levels, next)
		level = next
	}
	return &Tree{levels: levels}, nil
}

func (t *Tree) Root() domain.Hash {
	return t.levels[len(t.levels)-1][0]
}

func (t *Tree) Len() int { return len(t.levels[0]) }

// Proof returns the sibling path for leaf i, bottom-up.
func (t *Tree) Proof(i int) ([]domain.Hash, error) {
	if i < 0 || i >= t.Len() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "leaf index out of range")
	}
	var proof []domain.Hash
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := i ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		i /= 2
	}
	return proof, nil
}
