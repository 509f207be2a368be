package attendance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotsdd/attendchain/internal/chain"
	"github.com/iotsdd/attendchain/internal/config"
	"github.com/iotsdd/attendchain/internal/testutil"
)

var trackerAddress = common.HexToAddress("0x8F510086386477235FC73e11Bc585Bfdfd748a91")

// fakeTracker answers contract calls from in-memory state.
type fakeTracker struct {
	abi     abi.ABI
	counts  map[string]int64
	records []Record
}

func (f *fakeTracker) handle(to common.Address, data []byte) ([]byte, error) {
	if to != trackerAddress {
		return nil, errors.New("no contract at address")
	}
	if len(data) < 4 {
		return nil, errors.New("short call data")
	}
	method, err := f.abi.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.(string)
	}

	switch method.Name {
	case "getRecordsByOperation":
		matched := []Record{}
		for _, r := range f.records {
			if r.OperationType == parts[0] && r.CourseName == parts[1] && r.AdditionalInfo == parts[2] {
				matched = append(matched, r)
			}
		}
		return method.Outputs.Pack(matched)
	default:
		key := method.Name + ":" + strings.Join(parts, "|")
		return method.Outputs.Pack(big.NewInt(f.counts[key]))
	}
}

func newTracker(t *testing.T) (*Tracker, *fakeTracker) {
	t.Helper()
	parsed, err := ParseABI()
	require.NoError(t, err)

	fake := &fakeTracker{abi: parsed, counts: map[string]int64{}}
	node := testutil.NewFakeNode(t)
	node.CallHandler = fake.handle
	client := chain.NewClient("development", config.DefaultNetworkConfig(), node.Dial(t), testutil.NewTestLogger(t))
	return NewTracker(trackerAddress, parsed, client.Caller(), testutil.NewTestLogger(t)), fake
}

func TestTracker_Counts(t *testing.T) {
	tr, fake := newTracker(t)
	fake.counts["countRegistrations:Reti"] = 12
	fake.counts["countLessonAttendances:Reti|Lezione 3"] = 9
	fake.counts["countExamParticipations:Reti|21/06/2024"] = 4
	ctx := context.Background()

	n, err := tr.CountRegistrations(ctx, "Reti")
	require.NoError(t, err)
	assert.Equal(t, uint64(12), n)

	n, err = tr.CountLessonAttendances(ctx, "Reti", "Lezione 3")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), n)

	date, err := ExamDate("21", "06", "2024")
	require.NoError(t, err)
	n, err = tr.CountExamParticipations(ctx, "Reti", date)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)

	n, err = tr.CountRegistrations(ctx, "Basi di dati")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTracker_RecordsByOperation(t *testing.T) {
	tr, fake := newTracker(t)
	fake.records = []Record{
		{OperationType: "Lezione", CourseName: "Reti", AdditionalInfo: "Lezione 1", EncryptedId: "0x01"},
		{OperationType: "Lezione", CourseName: "Reti", AdditionalInfo: "Lezione 2", EncryptedId: "0x02"},
		{OperationType: "Lezione", CourseName: "Reti", AdditionalInfo: "Lezione 1", EncryptedId: "0x03"},
	}

	got, err := tr.RecordsByOperation(context.Background(), OpLesson, "Reti", "Lezione 1")
	require.NoError(t, err)
	assert.Equal(t, []Record{fake.records[0], fake.records[2]}, got)

	got, err = tr.RecordsByOperation(context.Background(), OpExam, "Reti", "01/01/2024")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTracker_CallFailure(t *testing.T) {
	parsed, err := ParseABI()
	require.NoError(t, err)
	node := testutil.NewFakeNode(t)
	node.CallHandler = func(common.Address, []byte) ([]byte, error) {
		return nil, fmt.Errorf("execution reverted")
	}
	client := chain.NewClient("development", config.DefaultNetworkConfig(), node.Dial(t), nil)
	tr := NewTracker(trackerAddress, parsed, client.Caller(), nil)

	_, err = tr.CountRegistrations(context.Background(), "Reti")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "countRegistrations")
}

func TestRecorder_AddRecord(t *testing.T) {
	parsed, err := ParseABI()
	require.NoError(t, err)
	node := testutil.NewFakeNode(t)
	client := chain.NewClient("development", config.DefaultNetworkConfig(), node.Dial(t), testutil.NewTestLogger(t))
	rec := NewRecorder(trackerAddress, parsed, client, testutil.NewTestLogger(t))

	record := Record{OperationType: "Esame", CourseName: "Reti", AdditionalInfo: "21/06/2024", EncryptedId: "0xabcd"}
	hash, err := rec.AddRecord(context.Background(), common.Address{}, 500000, record)
	require.NoError(t, err)

	sent := node.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, hash, sent[0].Hash)
	assert.Equal(t, node.Accounts[0], sent[0].From)
	assert.Equal(t, trackerAddress, sent[0].To)
	assert.Equal(t, uint64(500000), sent[0].Gas)

	method, err := parsed.MethodById(sent[0].Data[:4])
	require.NoError(t, err)
	assert.Equal(t, "addRecord", method.Name)
	args, err := method.Inputs.Unpack(sent[0].Data[4:])
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"Esame", "Reti", "21/06/2024", "0xabcd"}, args)

	receipt, created, err := rec.Wait(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, hash, receipt.TxHash)
	assert.Empty(t, created)
}

func TestRecorder_AddRecord_Incomplete(t *testing.T) {
	parsed, err := ParseABI()
	require.NoError(t, err)
	node := testutil.NewFakeNode(t)
	client := chain.NewClient("development", config.DefaultNetworkConfig(), node.Dial(t), nil)
	rec := NewRecorder(trackerAddress, parsed, client, nil)

	_, err = rec.AddRecord(context.Background(), common.Address{}, 0, Record{OperationType: "Lezione"})
	assert.Error(t, err)
	assert.Empty(t, node.Sent())
}

func TestParseRecordCreated(t *testing.T) {
	parsed, err := ParseABI()
	require.NoError(t, err)
	event := parsed.Events["RecordCreated"]
	data, err := event.Inputs.Pack("Lezione", "Reti", "Lezione 1", "0xab")
	require.NoError(t, err)

	rec, err := ParseRecordCreated(parsed, types.Log{Topics: []common.Hash{event.ID}, Data: data})
	require.NoError(t, err)
	assert.Equal(t, &Record{OperationType: "Lezione", CourseName: "Reti", AdditionalInfo: "Lezione 1", EncryptedId: "0xab"}, rec)

	_, err = ParseRecordCreated(parsed, types.Log{Topics: []common.Hash{{0x01}}, Data: data})
	assert.Error(t, err)
}
