package nft

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Primary ERC-721 signature table. Transfer carries the token id as the third
// indexed topic; ApprovalForAll is a blanket operator grant.
const erc721ABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "from", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "to", "type": "address"},
      {"indexed": true, "internalType": "uint256", "name": "tokenId", "type": "uint256"}
    ],
    "name": "Transfer",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "operator", "type": "address"},
      {"indexed": false, "internalType": "bool", "name": "approved", "type": "bool"}
    ],
    "name": "ApprovalForAll",
    "type": "event"
  }
]`

// Fallback table for the known non-standard Transfer variant where tokenId is
// not indexed (emitted by some early contracts, e.g. CryptoKitties-era). The
// signature hash is identical to the standard one, so both interpretations
// live under the same topic0 and differ only structurally.
const erc721LegacyABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "from", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "to", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "tokenId", "type": "uint256"}
    ],
    "name": "Transfer",
    "type": "event"
  }
]`

func parseABI(raw string) (abi.ABI, error) {
	return abi.JSON(strings.NewReader(raw))
}
