// Package attendance binds the AttendanceTracker contract: counting and
// listing attendance records, submitting new ones, and the cipher that
// protects the student ids they carry.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ContractName is the name of the contract and of its build artifact.
const ContractName = "AttendanceTracker"

// TrackerABI is the ABI of the AttendanceTracker contract, used when no
// build artifact is at hand.
const TrackerABI = `[{"anonymous":false,"inputs":[{"indexed":false,"internalType":"string","name":"operationType","type":"string"},{"indexed":false,"internalType":"string","name":"courseName","type":"string"},{"indexed":false,"internalType":"string","name":"additionalInfo","type":"string"},{"indexed":false,"internalType":"string","name":"encryptedId","type":"string"}],"name":"RecordCreated","type":"event"},{"inputs":[{"internalType":"string","name":"operationType","type":"string"},{"internalType":"string","name":"courseName","type":"string"},{"internalType":"string","name":"additionalInfo","type":"string"},{"internalType":"string","name":"encryptedId","type":"string"}],"name":"addRecord","outputs":[],"stateMutability":"nonpayable","type":"function"},{"inputs":[{"internalType":"string","name":"courseName","type":"string"}],"name":"countRegistrations","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},{"inputs":[{"internalType":"string","name":"courseName","type":"string"},{"internalType":"string","name":"lessonName","type":"string"}],"name":"countLessonAttendances","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},{"inputs":[{"internalType":"string","name":"courseName","type":"string"},{"internalType":"string","name":"examDate","type":"string"}],"name":"countExamParticipations","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},{"inputs":[{"internalType":"string","name":"operationType","type":"string"},{"internalType":"string","name":"courseName","type":"string"},{"internalType":"string","name":"additionalInfo","type":"string"}],"name":"getRecordsByOperation","outputs":[{"components":[{"internalType":"string","name":"operationType","type":"string"},{"internalType":"string","name":"courseName","type":"string"},{"internalType":"string","name":"additionalInfo","type":"string"},{"internalType":"string","name":"encryptedId","type":"string"}],"internalType":"struct AttendanceTracker.Record[]","name":"","type":"tuple[]"}],"stateMutability":"view","type":"function"}]`

// Record is one attendance record as stored on chain. Field names follow
// the contract's struct so the ABI codec can map them.
type Record struct {
	OperationType  string `json:"operationType"`
	CourseName     string `json:"courseName"`
	AdditionalInfo string `json:"additionalInfo"`
	EncryptedId    string `json:"encryptedId"` //nolint:revive // must match the ABI component name
}

// ParseABI parses TrackerABI.
func ParseABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(TrackerABI))
}

// Tracker performs read-only calls against a deployed AttendanceTracker.
type Tracker struct {
	address  common.Address
	contract *bind.BoundContract
	logger   *slog.Logger
}

// NewTracker binds the contract at address. contractABI usually comes from
// the build artifact.
func NewTracker(address common.Address, contractABI abi.ABI, caller bind.ContractCaller, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tracker{
		address:  address,
		contract: bind.NewBoundContract(address, contractABI, caller, nil, nil),
		logger:   logger.With("contract", address.Hex()),
	}
}

// Address returns the bound contract address.
func (t *Tracker) Address() common.Address {
	return t.address
}

// CountRegistrations returns how many registrations a course has.
func (t *Tracker) CountRegistrations(ctx context.Context, course string) (uint64, error) {
	return t.count(ctx, "countRegistrations", course)
}

// CountLessonAttendances returns how many students attended a lesson.
func (t *Tracker) CountLessonAttendances(ctx context.Context, course, lesson string) (uint64, error) {
	return t.count(ctx, "countLessonAttendances", course, lesson)
}

// CountExamParticipations returns how many students sat the exam held on
// date (dd/mm/yyyy).
func (t *Tracker) CountExamParticipations(ctx context.Context, course, date string) (uint64, error) {
	return t.count(ctx, "countExamParticipations", course, date)
}

// RecordsByOperation returns the records of op for course whose additional
// info equals info. Student ids are returned encrypted.
func (t *Tracker) RecordsByOperation(ctx context.Context, op Operation, course, info string) ([]Record, error) {
	var out []interface{}
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getRecordsByOperation", string(op), course, info); err != nil {
		return nil, fmt.Errorf("getRecordsByOperation failed: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("getRecordsByOperation returned %d values", len(out))
	}
	records := *abi.ConvertType(out[0], new([]Record)).(*[]Record)
	t.logger.Debug("fetched records", "operation", op, "course", course, "info", info, "count", len(records))
	return records, nil
}

func (t *Tracker) count(ctx context.Context, method string, args ...interface{}) (uint64, error) {
	var out []interface{}
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return 0, fmt.Errorf("%s failed: %w", method, err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("%s returned %d values", method, len(out))
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("%s returned %T, want uint256", method, out[0])
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("%s returned %s, out of range", method, n)
	}
	t.logger.Debug("counted", "method", method, "args", args, "count", n.Uint64())
	return n.Uint64(), nil
}

// ParseRecordCreated decodes a RecordCreated event log.
func ParseRecordCreated(contractABI abi.ABI, log types.Log) (*Record, error) {
	event, ok := contractABI.Events["RecordCreated"]
	if !ok {
		return nil, errors.New("abi has no RecordCreated event")
	}
	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return nil, errors.New("log is not a RecordCreated event")
	}
	rec := new(Record)
	if err := contractABI.UnpackIntoInterface(rec, "RecordCreated", log.Data); err != nil {
		return nil, fmt.Errorf("failed to decode RecordCreated: %w", err)
	}
	return rec, nil
}
