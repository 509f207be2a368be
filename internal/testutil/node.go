package testutil

import (
	"errors"
	"math/big"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// SentTx records one eth_sendTransaction request received by a FakeNode.
type SentTx struct {
	From common.Address
	To   common.Address
	Gas  uint64
	Data []byte
	Hash common.Hash
}

// FakeNode is an in-process JSON-RPC server answering the subset of the
// node API the tool uses. Fields may be changed between calls.
type FakeNode struct {
	NetVersion    string
	ChainID       uint64
	Block         uint64
	ClientVersion string
	Accounts      []common.Address

	// CallHandler answers eth_call. Nil means every call fails.
	CallHandler func(to common.Address, data []byte) ([]byte, error)

	// PendingPolls is how many receipt lookups return null before a sent
	// transaction is reported mined.
	PendingPolls int

	mu     sync.Mutex
	sent   []SentTx
	polls  map[common.Hash]int
	server *rpc.Server
}

// NewFakeNode starts a node that looks like a fresh Ganache instance:
// network id 5777, chain id 1337, two unlocked accounts.
func NewFakeNode(t testing.TB) *FakeNode {
	t.Helper()
	n := &FakeNode{
		NetVersion:    "5777",
		ChainID:       1337,
		Block:         42,
		ClientVersion: "Ganache/v7.9.1/EthereumJS TestRPC/v7.9.1/ethereum-js",
		Accounts: []common.Address{
			common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1"),
			common.HexToAddress("0xFFcf8FDEE72ac11b5c542428B35EEF5769C409f0"),
		},
		polls:  make(map[common.Hash]int),
		server: rpc.NewServer(),
	}

	services := map[string]interface{}{
		"net":  &netAPI{n},
		"web3": &web3API{n},
		"eth":  &ethAPI{n},
	}
	for name, svc := range services {
		if err := n.server.RegisterName(name, svc); err != nil {
			t.Fatalf("failed to register %s service: %v", name, err)
		}
	}
	t.Cleanup(n.server.Stop)
	return n
}

// Dial returns a client connected to the node in-process.
func (n *FakeNode) Dial(t testing.TB) *rpc.Client {
	t.Helper()
	c := rpc.DialInProc(n.server)
	t.Cleanup(c.Close)
	return c
}

// ListenHTTP exposes the node over HTTP and returns its host and port,
// for code that dials an endpoint built from a network definition.
func (n *FakeNode) ListenHTTP(t testing.TB) (host string, port int) {
	t.Helper()
	ts := httptest.NewServer(n.server)
	t.Cleanup(ts.Close)

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("failed to parse test server url: %v", err)
	}
	port, err = strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("failed to parse test server port: %v", err)
	}
	return u.Hostname(), port
}

// Sent returns the transactions received so far.
func (n *FakeNode) Sent() []SentTx {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]SentTx, len(n.sent))
	copy(out, n.sent)
	return out
}

type netAPI struct{ n *FakeNode }

func (a *netAPI) Version() string { return a.n.NetVersion }

type web3API struct{ n *FakeNode }

func (a *web3API) ClientVersion() string { return a.n.ClientVersion }

type ethAPI struct{ n *FakeNode }

// CallArgs is the eth_call / eth_sendTransaction argument object.
type CallArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Gas   *hexutil.Uint64 `json:"gas"`
	Data  *hexutil.Bytes  `json:"data"`
	Input *hexutil.Bytes  `json:"input"`
}

func (a CallArgs) payload() []byte {
	if a.Input != nil {
		return *a.Input
	}
	if a.Data != nil {
		return *a.Data
	}
	return nil
}

func (e *ethAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(new(big.Int).SetUint64(e.n.ChainID))
}

func (e *ethAPI) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(e.n.Block)
}

func (e *ethAPI) Accounts() []common.Address {
	return e.n.Accounts
}

// GetCode reports non-empty code for any address so bindings accept
// empty call results.
func (e *ethAPI) GetCode(_ common.Address, _ string) hexutil.Bytes {
	return hexutil.Bytes{0x60, 0x80, 0x60, 0x40}
}

func (e *ethAPI) Call(args CallArgs, _ string) (hexutil.Bytes, error) {
	if e.n.CallHandler == nil {
		return nil, errors.New("execution reverted")
	}
	if args.To == nil {
		return nil, errors.New("missing call target")
	}
	return e.n.CallHandler(*args.To, args.payload())
}

func (e *ethAPI) SendTransaction(args CallArgs) (common.Hash, error) {
	if args.From == nil || args.To == nil {
		return common.Hash{}, errors.New("from and to are required")
	}
	known := false
	for _, acc := range e.n.Accounts {
		if acc == *args.From {
			known = true
			break
		}
	}
	if !known {
		return common.Hash{}, errors.New("sender account not recognized")
	}

	e.n.mu.Lock()
	defer e.n.mu.Unlock()

	tx := SentTx{From: *args.From, To: *args.To, Data: args.payload()}
	if args.Gas != nil {
		tx.Gas = uint64(*args.Gas)
	}
	tx.Hash = common.BigToHash(big.NewInt(int64(len(e.n.sent) + 1)))
	e.n.sent = append(e.n.sent, tx)
	return tx.Hash, nil
}

func (e *ethAPI) GetTransactionReceipt(hash common.Hash) (map[string]interface{}, error) {
	e.n.mu.Lock()
	defer e.n.mu.Unlock()

	found := false
	for _, tx := range e.n.sent {
		if tx.Hash == hash {
			found = true
			break
		}
	}
	if !found {
		return nil, nil
	}
	if e.n.polls[hash] < e.n.PendingPolls {
		e.n.polls[hash]++
		return nil, nil
	}

	return map[string]interface{}{
		"type":              "0x0",
		"status":            "0x1",
		"cumulativeGasUsed": "0x5208",
		"gasUsed":           "0x5208",
		"logsBloom":         "0x" + strings.Repeat("00", 256),
		"logs":              []interface{}{},
		"transactionHash":   hash,
		"transactionIndex":  "0x0",
		"blockHash":         common.BigToHash(big.NewInt(int64(e.n.Block))),
		"blockNumber":       hexutil.Uint64(e.n.Block),
	}, nil
}
