package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/iotsdd/attendchain/internal/chain"
)

// DefaultPollInterval is how often WaitMined polls for a receipt.
const DefaultPollInterval = 500 * time.Millisecond

// Sender submits transactions through a node that holds unlocked accounts.
type Sender interface {
	DefaultAccount(ctx context.Context) (common.Address, error)
	SendTransaction(ctx context.Context, tx chain.TxRequest) (common.Hash, error)
	WaitMined(ctx context.Context, hash common.Hash, interval time.Duration) (*types.Receipt, error)
}

// Recorder appends records to a deployed AttendanceTracker.
type Recorder struct {
	address common.Address
	abi     abi.ABI
	sender  Sender
	logger  *slog.Logger
}

// NewRecorder binds the contract at address for writing.
func NewRecorder(address common.Address, contractABI abi.ABI, sender Sender, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{
		address: address,
		abi:     contractABI,
		sender:  sender,
		logger:  logger.With("contract", address.Hex()),
	}
}

// AddRecord submits addRecord(rec) from the given account, or from the
// node's default account when from is the zero address, and returns the
// transaction hash without waiting for it to be mined.
func (r *Recorder) AddRecord(ctx context.Context, from common.Address, gas uint64, rec Record) (common.Hash, error) {
	if rec.OperationType == "" || rec.CourseName == "" || rec.EncryptedId == "" {
		return common.Hash{}, fmt.Errorf("record needs an operation, a course and an encrypted id")
	}
	data, err := r.abi.Pack("addRecord", rec.OperationType, rec.CourseName, rec.AdditionalInfo, rec.EncryptedId)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode addRecord: %w", err)
	}
	if from == (common.Address{}) {
		from, err = r.sender.DefaultAccount(ctx)
		if err != nil {
			return common.Hash{}, err
		}
	}

	hash, err := r.sender.SendTransaction(ctx, chain.TxRequest{From: from, To: r.address, Gas: gas, Data: data})
	if err != nil {
		return common.Hash{}, err
	}
	r.logger.Info("record submitted", "operation", rec.OperationType, "course", rec.CourseName, "tx", hash.Hex())
	return hash, nil
}

// Wait blocks until hash is mined and returns the records its
// RecordCreated events carry.
func (r *Recorder) Wait(ctx context.Context, hash common.Hash) (*types.Receipt, []Record, error) {
	receipt, err := r.sender.WaitMined(ctx, hash, DefaultPollInterval)
	if err != nil {
		return receipt, nil, err
	}
	var created []Record
	for _, l := range receipt.Logs {
		if l == nil || l.Address != r.address {
			continue
		}
		rec, err := ParseRecordCreated(r.abi, *l)
		if err != nil {
			r.logger.Debug("skipping log", "index", l.Index, "error", err)
			continue
		}
		created = append(created, *rec)
	}
	return receipt, created, nil
}
