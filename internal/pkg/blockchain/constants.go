// Package blockchain provides chain-level constants and helpers shared by
// the analysis services.
package blockchain

import "github.com/ethereum/go-ethereum/common"

// EIP1967ImplementationSlot is the storage slot where EIP-1967 proxies
// record their implementation address:
// keccak256("eip1967.proxy.implementation") - 1.
var EIP1967ImplementationSlot = common.HexToHash(
	"0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")

// OldOpenZeppelinImplementationSlot is the pre-EIP-1967 slot used by early
// OpenZeppelin proxies (keccak256("org.zeppelinos.proxy.implementation")).
var OldOpenZeppelinImplementationSlot = common.HexToHash(
	"0x7050c9e0f4ca769c69bd3a8ef740bc37934f8e2c036e5a723fd8ee048ed3f8c3")
