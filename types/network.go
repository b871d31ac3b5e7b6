package types

// Network represents supported EVM networks a wallet session can be on.
type Network string

const (
	NetworkEthereum Network = "ethereum"
	NetworkSepolia  Network = "sepolia" // testnet
	NetworkPolygon  Network = "polygon"
	NetworkBase     Network = "base"
)

var networkChainIDs = map[Network]int64{
	NetworkEthereum: 1,
	NetworkSepolia:  11155111,
	NetworkPolygon:  137,
	NetworkBase:     8453,
}

// ChainID returns the EIP-155 chain id of the network, or 0 if unknown.
func (n Network) ChainID() int64 {
	return networkChainIDs[n]
}

func (n Network) IsTestnet() bool {
	return n == NetworkSepolia
}

func (n Network) IsSupported() bool {
	_, ok := networkChainIDs[n]
	return ok
}

func (n Network) String() string {
	return string(n)
}

// NetworkFromChainID maps a chain id reported by a wallet back to a Network.
func NetworkFromChainID(id int64) (Network, bool) {
	for n, cid := range networkChainIDs {
		if cid == id {
			return n, true
		}
	}
	return "", false
}
