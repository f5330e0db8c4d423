package wallet

import (
	"errors"

	"github.com/Klingon-tech/klingnet-wallet/internal/utxo"
)

// Wallet errors.
var (
	ErrForeignAddress   = errors.New("address not owned by this wallet")
	ErrZeroCoinValue    = errors.New("coin value must be positive")
	ErrZeroInputs       = errors.New("transaction needs at least one input")
	ErrNoOwnedAddresses = errors.New("wallet owns no addresses")
	ErrForeignKey       = errors.New("signing key for an address the wallet does not own")

	// ErrUnknownCoin is returned for coin ids that are not in the wallet's
	// unspent set, or that appear twice in one input list.
	ErrUnknownCoin = utxo.ErrUnknownCoin

	// ErrOwnedChanged is returned by New when WithDB holds wallet records
	// built for a different owned address set.
	ErrOwnedChanged = utxo.ErrOwnedChanged
)
