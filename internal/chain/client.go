// Package chain connects to the blockchain node named by a network
// definition and checks that it is the node the definition expects.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/iotsdd/attendchain/internal/config"
)

var (
	// ErrNetworkMismatch is returned when the node reports a network id
	// the definition does not accept.
	ErrNetworkMismatch = errors.New("network id mismatch")

	// ErrNoAccounts is returned when no sender account is configured and
	// the node exposes none.
	ErrNoAccounts = errors.New("node has no unlocked accounts")
)

// NodeInfo is what a node reports about itself.
type NodeInfo struct {
	Network       string           `json:"network"`
	Endpoint      string           `json:"endpoint"`
	NetworkID     uint64           `json:"network_id"`
	ChainID       uint64           `json:"chain_id"`
	ClientVersion string           `json:"client_version,omitempty"`
	BlockNumber   uint64           `json:"block_number"`
	Accounts      []common.Address `json:"accounts,omitempty"`
}

// Client talks JSON-RPC to the node of one network definition.
type Client struct {
	name    string
	network config.NetworkConfig
	rpc     *rpc.Client
	eth     *ethclient.Client
	logger  *slog.Logger
}

// Dial connects to the node described by network.
func Dial(ctx context.Context, name string, network config.NetworkConfig, logger *slog.Logger) (*Client, error) {
	endpoint := network.Endpoint()
	rc, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to network %s at %s: %w", name, endpoint, err)
	}
	return NewClient(name, network, rc, logger), nil
}

// NewClient wraps an existing RPC connection.
func NewClient(name string, network config.NetworkConfig, rc *rpc.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		name:    name,
		network: network,
		rpc:     rc,
		eth:     ethclient.NewClient(rc),
		logger:  logger.With("network", name),
	}
}

// Close closes the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// Name returns the network name.
func (c *Client) Name() string {
	return c.name
}

// Network returns the network definition the client was created from.
func (c *Client) Network() config.NetworkConfig {
	return c.network
}

// Caller returns the contract caller backing read-only contract bindings.
func (c *Client) Caller() bind.ContractCaller {
	return c.eth
}

// RPC returns the raw JSON-RPC connection.
func (c *Client) RPC() *rpc.Client {
	return c.rpc
}

// Probe asks the node for its identity and head block.
func (c *Client) Probe(ctx context.Context) (*NodeInfo, error) {
	info := &NodeInfo{Network: c.name, Endpoint: c.network.Endpoint()}

	netID, err := c.eth.NetworkID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query net_version from %s: %w", info.Endpoint, err)
	}
	info.NetworkID = netID.Uint64()

	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query eth_chainId from %s: %w", info.Endpoint, err)
	}
	info.ChainID = chainID.Uint64()

	head, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query eth_blockNumber from %s: %w", info.Endpoint, err)
	}
	info.BlockNumber = head

	if err := c.rpc.CallContext(ctx, &info.ClientVersion, "web3_clientVersion"); err != nil {
		c.logger.Debug("web3_clientVersion unavailable", "error", err)
	}
	if err := c.rpc.CallContext(ctx, &info.Accounts, "eth_accounts"); err != nil {
		c.logger.Debug("eth_accounts unavailable", "error", err)
	}

	c.logger.Debug("probed node", "network_id", info.NetworkID, "chain_id", info.ChainID, "block", info.BlockNumber)
	return info, nil
}

// Verify probes the node and checks its network id against the definition.
func (c *Client) Verify(ctx context.Context) (*NodeInfo, error) {
	info, err := c.Probe(ctx)
	if err != nil {
		return nil, err
	}
	if !c.network.NetworkID.Matches(info.NetworkID) {
		return info, fmt.Errorf("%w: network %s expects network_id %s but node at %s reports %d",
			ErrNetworkMismatch, c.name, c.network.NetworkID, info.Endpoint, info.NetworkID)
	}
	return info, nil
}

// DeployNetworkID returns the key under which build artifacts record the
// deployment for this network: the literal network_id, or the id the
// node reported when the definition uses the wildcard.
func DeployNetworkID(network config.NetworkConfig, info *NodeInfo) string {
	if !network.NetworkID.IsWildcard() {
		return network.NetworkID.String()
	}
	if info == nil {
		return ""
	}
	return strconv.FormatUint(info.NetworkID, 10)
}

// DefaultAccount returns the configured sender, or the node's first account.
func (c *Client) DefaultAccount(ctx context.Context) (common.Address, error) {
	if c.network.From != "" {
		return common.HexToAddress(c.network.From), nil
	}
	var accounts []common.Address
	if err := c.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return common.Address{}, fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) == 0 {
		return common.Address{}, ErrNoAccounts
	}
	return accounts[0], nil
}

// CallContract executes a read-only contract call.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, blockNumber)
}

// TxRequest is a transaction for the node to sign with an unlocked account.
type TxRequest struct {
	From common.Address
	To   common.Address
	Gas  uint64
	Data []byte
}

// SendTransaction submits tx through eth_sendTransaction. Development
// nodes sign with their unlocked accounts, so no key material is needed.
func (c *Client) SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error) {
	args := map[string]interface{}{
		"from": tx.From,
		"to":   tx.To,
		"data": hexutil.Bytes(tx.Data),
	}
	if tx.Gas > 0 {
		args["gas"] = hexutil.Uint64(tx.Gas)
	}

	var hash common.Hash
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendTransaction failed: %w", err)
	}
	c.logger.Debug("sent transaction", "hash", hash.Hex(), "from", tx.From.Hex())
	return hash, nil
}

// WaitMined polls for the receipt of hash until it is available or ctx ends.
func (c *Client) WaitMined(ctx context.Context, hash common.Hash, interval time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("transaction %s reverted", hash.Hex())
			}
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to fetch receipt for %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
