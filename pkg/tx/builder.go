package tx

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Builder constructs transactions incrementally.
type Builder struct {
	tx *Transaction
}

// NewBuilder creates a new transaction builder.
func NewBuilder() *Builder {
	return &Builder{tx: &Transaction{}}
}

// AddInput spends coin id, claiming owner as its signer.
func (b *Builder) AddInput(id types.CoinID, owner types.Address) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, Input{
		CoinID:    id,
		Signature: Signature{Owner: owner},
	})
	return b
}

// AddOutput adds an output paying value to owner.
func (b *Builder) AddOutput(value uint64, owner types.Address) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, Coin{Value: value, Owner: owner})
	return b
}

// Sign fills Sig and PubKey on every input whose claimed owner has a
// signer. Inputs without a signer keep the bare owner claim.
func (b *Builder) Sign(signers map[types.Address]crypto.Signer) error {
	if len(signers) == 0 {
		return nil
	}
	hash := b.tx.Hash()

	// Same key and same hash give the same signature.
	type sigPub struct {
		sig    []byte
		pubKey []byte
	}
	cache := make(map[types.Address]*sigPub)

	for i := range b.tx.Inputs {
		owner := b.tx.Inputs[i].Signature.Owner
		key, ok := signers[owner]
		if !ok {
			continue
		}
		sp, cached := cache[owner]
		if !cached {
			sig, err := key.Sign(hash[:])
			if err != nil {
				return fmt.Errorf("sign input %d: %w", i, err)
			}
			sp = &sigPub{sig: sig, pubKey: key.PublicKey()}
			cache[owner] = sp
		}
		b.tx.Inputs[i].Signature.Sig = sp.sig
		b.tx.Inputs[i].Signature.PubKey = sp.pubKey
	}
	return nil
}

// Build returns the constructed transaction.
func (b *Builder) Build() *Transaction {
	return b.tx
}
