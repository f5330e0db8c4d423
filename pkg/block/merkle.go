package block

import (
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// ComputeMerkleRoot folds leaves pairwise until one hash remains.
// No leaves give the zero hash and a single leaf is its own root. An odd
// level pairs its last node with itself.
func ComputeMerkleRoot(leaves []types.Hash) types.Hash {
	switch len(leaves) {
	case 0:
		return types.Hash{}
	case 1:
		return leaves[0]
	}

	level := append([]types.Hash(nil), leaves...)
	for n := len(level); n > 1; n = (n + 1) / 2 {
		for i := 0; i < n; i += 2 {
			right := level[i]
			if i+1 < n {
				right = level[i+1]
			}
			level[i/2] = crypto.HashConcat(level[i], right)
		}
	}
	return level[0]
}
