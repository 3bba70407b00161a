package merkletree

import (
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/shadowatlas/commitment/pkg/atlaserrors"
	"github.com/shadowatlas/commitment/pkg/poseidon"
)

// zeroLeafTag is the value whose arity-1 HashN is the padding-leaf hash
// for an empty leaf position. A real leaf hash is an arity-4 HashN over
// (tag, idHash, geomHash, authority), so the two never share a domain tag.
const zeroLeafTag = 999999

// Tree is a fixed-depth sparse Merkle tree over an ordered Leaf set. Only
// real leaves are stored; missing positions fold in precomputed
// zero-subtree hashes, exactly as the teacher's SparseMerkleTree does for
// file chunks.
type Tree struct {
	Root       fr.Element
	Depth      int
	NumLeaves  int
	levels     []map[int]fr.Element // levels[0] = leaves, levels[Depth] = {0: root}
	zeroHashes []fr.Element         // zeroHashes[i] = hash of an all-padding subtree at level i
}

// zeroHashChain builds zeroHashes[0..depth] the same way the teacher's
// PrecomputeZeroHashes does: zeroHashes[0] is the padding-leaf hash,
// zeroHashes[i] = HashPair(zeroHashes[i-1], zeroHashes[i-1]).
func zeroHashChain(h poseidon.Hasher, depth int) []fr.Element {
	zh := make([]fr.Element, depth+1)
	var tag fr.Element
	tag.SetInt64(zeroLeafTag)
	zh[0] = h.HashN([]fr.Element{tag})
	for i := 1; i <= depth; i++ {
		zh[i] = h.HashPair(zh[i-1], zh[i-1])
	}
	return zh
}

// capacity returns 2^depth.
func capacity(depth int) int {
	return 1 << uint(depth)
}

// Build constructs a fixed-depth sparse Merkle tree over leaves, which
// must already be in the canonical order BuildLeaves/Order produce.
// Returns ErrUnsupportedDepth if depth cannot hold len(leaves) leaves.
func Build(h poseidon.Hasher, leaves []Leaf, depth int) (*Tree, error) {
	if depth < 1 {
		return nil, fmt.Errorf("%w: depth %d < 1", atlaserrors.ErrUnsupportedDepth, depth)
	}
	if len(leaves) > capacity(depth) {
		return nil, fmt.Errorf("%w: %d leaves exceed capacity %d at depth %d", atlaserrors.ErrUnsupportedDepth, len(leaves), capacity(depth), depth)
	}

	zeroHashes := zeroHashChain(h, depth)

	levels := make([]map[int]fr.Element, depth+1)
	for i := range levels {
		levels[i] = make(map[int]fr.Element)
	}

	leafHashes := make([]fr.Element, len(leaves))
	numWorkers := runtime.NumCPU()
	if numWorkers > len(leaves) {
		numWorkers = len(leaves)
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	var wg sync.WaitGroup
	work := make(chan int, len(leaves))
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				leafHashes[i] = leaves[i].Hash
			}
		}()
	}
	for i := range leaves {
		work <- i
	}
	close(work)
	wg.Wait()

	for i, lh := range leafHashes {
		levels[0][i] = lh
	}

	for lvl := 0; lvl < depth; lvl++ {
		parentIdx := make(map[int]bool)
		for idx := range levels[lvl] {
			parentIdx[idx/2] = true
		}
		for p := range parentIdx {
			leftIdx, rightIdx := p*2, p*2+1
			left, ok := levels[lvl][leftIdx]
			if !ok {
				left = zeroHashes[lvl]
			}
			right, ok := levels[lvl][rightIdx]
			if !ok {
				right = zeroHashes[lvl]
			}
			levels[lvl+1][p] = h.HashPair(left, right)
		}
	}

	root, ok := levels[depth][0]
	if !ok {
		root = zeroHashes[depth]
	}

	return &Tree{
		Root:       root,
		Depth:      depth,
		NumLeaves:  len(leaves),
		levels:     levels,
		zeroHashes: zeroHashes,
	}, nil
}

// Proof is a fixed-size inclusion path: len(Siblings) == len(Directions)
// == Depth, Directions[i] == 0 means the leaf-side node at level i is the
// left child (sibling on the right); 1 means the reverse (spec §4.5).
type Proof struct {
	LeafIndex  int
	Siblings   []fr.Element
	Directions []int
}

// ProofFor returns the fixed-depth inclusion proof for the leaf at index.
func (t *Tree) ProofFor(index int) (Proof, error) {
	if index < 0 || index >= capacity(t.Depth) {
		return Proof{}, fmt.Errorf("%w: index %d out of range", atlaserrors.ErrBoundaryNotInTree, index)
	}
	siblings := make([]fr.Element, t.Depth)
	directions := make([]int, t.Depth)

	idx := index
	for lvl := 0; lvl < t.Depth; lvl++ {
		var siblingIdx int
		if idx%2 == 0 {
			siblingIdx = idx + 1
			directions[lvl] = 0
		} else {
			siblingIdx = idx - 1
			directions[lvl] = 1
		}
		sib, ok := t.levels[lvl][siblingIdx]
		if !ok {
			sib = t.zeroHashes[lvl]
		}
		siblings[lvl] = sib
		idx /= 2
	}

	return Proof{LeafIndex: index, Siblings: siblings, Directions: directions}, nil
}

// LeafHashAt returns the hash stored at index, or the level-0 zero hash if
// index is an unoccupied padding position.
func (t *Tree) LeafHashAt(index int) fr.Element {
	if h, ok := t.levels[0][index]; ok {
		return h
	}
	return t.zeroHashes[0]
}

// IndexOf performs a binary search for the leaf matching boundaryType and
// id within the canonically-ordered leaves used to build t (Order's key:
// (boundaryType, id), not jurisdiction — see Order), returning its index.
// ordered must be the same slice (in the same order) passed to Build.
// jurisdiction is accepted and checked against the match purely as a
// caller-side sanity check; it plays no role in the search itself.
func IndexOf(ordered []Leaf, jurisdiction string, boundaryType string, id string) (int, error) {
	i := sort.Search(len(ordered), func(i int) bool {
		l := ordered[i]
		if string(l.BoundaryType) != boundaryType {
			return string(l.BoundaryType) >= boundaryType
		}
		return l.ID >= id
	})
	if i >= len(ordered) {
		return 0, atlaserrors.ErrBoundaryNotInTree
	}
	l := ordered[i]
	if l.Jurisdiction != jurisdiction || string(l.BoundaryType) != boundaryType || l.ID != id {
		return 0, atlaserrors.ErrBoundaryNotInTree
	}
	return i, nil
}

// VerifyProof recomputes the root from leafHash and proof, reporting
// whether it equals root. Refuses malformed proofs (OQ3: a proof whose
// sibling count does not equal the tree depth is never considered valid,
// even if the caller supplies the "right" depth separately).
func VerifyProof(h poseidon.Hasher, leafHash fr.Element, proof Proof, depth int, root fr.Element) bool {
	if len(proof.Siblings) != depth || len(proof.Directions) != depth {
		return false
	}
	current := leafHash
	for i := 0; i < depth; i++ {
		sib := proof.Siblings[i]
		if proof.Directions[i] == 0 {
			current = h.HashPair(current, sib)
		} else {
			current = h.HashPair(sib, current)
		}
	}
	return current.Equal(&root)
}
