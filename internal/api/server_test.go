package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iotsdd/attendchain/internal/attendance"
	"github.com/iotsdd/attendchain/internal/state"
	"github.com/iotsdd/attendchain/internal/testutil"
)

type fakeContract struct {
	address common.Address
	counts  map[string]uint64
	records []attendance.Record
	err     error
	block   bool
}

func (f *fakeContract) Address() common.Address { return f.address }

func (f *fakeContract) wait(ctx context.Context) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f *fakeContract) CountRegistrations(ctx context.Context, course string) (uint64, error) {
	if err := f.wait(ctx); err != nil {
		return 0, err
	}
	return f.counts["reg:"+course], nil
}

func (f *fakeContract) CountLessonAttendances(ctx context.Context, course, lesson string) (uint64, error) {
	if err := f.wait(ctx); err != nil {
		return 0, err
	}
	return f.counts["lesson:"+course+"|"+lesson], nil
}

func (f *fakeContract) CountExamParticipations(ctx context.Context, course, date string) (uint64, error) {
	if err := f.wait(ctx); err != nil {
		return 0, err
	}
	return f.counts["exam:"+course+"|"+date], nil
}

func (f *fakeContract) RecordsByOperation(ctx context.Context, op attendance.Operation, course, info string) ([]attendance.Record, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	var out []attendance.Record
	for _, r := range f.records {
		if r.OperationType == string(op) && r.CourseName == course && r.AdditionalInfo == info {
			out = append(out, r)
		}
	}
	return out, nil
}

type testEnv struct {
	server   *Server
	http     *httptest.Server
	client   *http.Client
	store    *state.SQLiteStore
	contract *fakeContract
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	store := state.NewSQLiteStore()
	store.SetBcryptCost(bcrypt.MinCost)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })

	contract := &fakeContract{
		address: common.HexToAddress("0x8F510086386477235FC73e11Bc585Bfdfd748a91"),
		counts:  map[string]uint64{},
	}
	cfg := Config{
		Store:         store,
		Contract:      contract,
		SessionSecret: "test-secret-test-secret-test-sec",
		AdminUser:     "admin",
		AdminPassword: "pass",
		Logger:        testutil.NewTestLogger(t),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Bootstrap(context.Background()))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testEnv{
		server:   srv,
		http:     ts,
		client:   &http.Client{Jar: jar},
		store:    store,
		contract: contract,
	}
}

func (e *testEnv) get(t *testing.T, path string) (int, []byte) {
	t.Helper()
	resp, err := e.client.Get(e.http.URL + path)
	require.NoError(t, err)
	return readResponse(t, resp)
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) (int, []byte) {
	t.Helper()
	resp, err := e.client.PostForm(e.http.URL+path, form)
	require.NoError(t, err)
	return readResponse(t, resp)
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	status, body := e.postForm(t, "/login", url.Values{"username": {"admin"}, "password": {"pass"}})
	require.Equal(t, http.StatusOK, status, string(body))
}

func readResponse(t *testing.T, resp *http.Response) (int, []byte) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	return resp.StatusCode, []byte(buf.String())
}

func decodeMap(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &m), string(body))
	return m
}

func TestServer_RequiresLogin(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/users", "/count_registrations/Reti", "/get_records_by_operation/Lezione/Reti/Lezione%201"} {
		status, body := env.get(t, path)
		assert.Equal(t, http.StatusUnauthorized, status, path)
		assert.Equal(t, "Unauthorized access.", decodeMap(t, body)["error"])
	}
}

func TestServer_LoginLogout(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.postForm(t, "/login", url.Values{"username": {"admin"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid username or password", decodeMap(t, body)["error"])

	env.login(t)
	status, _ = env.get(t, "/users")
	assert.Equal(t, http.StatusOK, status)

	status, _ = env.postForm(t, "/logout", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = env.get(t, "/users")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestServer_LoginJSON(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := env.client.Post(env.http.URL+"/login", "application/json",
		strings.NewReader(`{"username":"admin","password":"pass"}`))
	require.NoError(t, err)
	status, _ := readResponse(t, resp)
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_NoAdminPassword(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.AdminPassword = "" })

	users, err := env.store.ListUsers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestServer_UserManagement(t *testing.T) {
	env := newTestEnv(t, nil)
	env.login(t)

	status, body := env.postForm(t, "/register", url.Values{"username": {"bob"}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Missing username or password", decodeMap(t, body)["error"])

	status, body = env.postForm(t, "/register", url.Values{"username": {"bob"}, "password": {"pw"}})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = env.postForm(t, "/register", url.Values{"username": {"bob"}, "password": {"pw"}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Username already exists", decodeMap(t, body)["error"])

	status, body = env.get(t, "/users")
	require.Equal(t, http.StatusOK, status)
	var users []state.User
	require.NoError(t, json.Unmarshal(body, &users))
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[1].Username)
	assert.NotContains(t, string(body), "password")

	bobPath := "/remove_user/" + jsonNumber(users[1].ID)
	status, _ = env.postForm(t, bobPath, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = env.postForm(t, bobPath, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = env.postForm(t, "/remove_user/abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestServer_Counts(t *testing.T) {
	env := newTestEnv(t, nil)
	env.contract.counts["reg:Reti"] = 12
	env.contract.counts["lesson:Reti|Lezione 3"] = 9
	env.contract.counts["exam:Reti|21/06/2024"] = 4
	env.login(t)

	tests := []struct {
		path string
		want map[string]interface{}
	}{
		{
			path: "/count_registrations/Reti",
			want: map[string]interface{}{"course_name": "Reti", "registrations": float64(12)},
		},
		{
			path: "/count_attendances/Reti/Lezione%203",
			want: map[string]interface{}{"course_name": "Reti", "lesson_name": "Lezione 3", "attendances": float64(9)},
		},
		{
			path: "/count_exam_participations/Reti/21/06/2024",
			want: map[string]interface{}{"course_name": "Reti", "exam_date": "21/06/2024", "participations": float64(4)},
		},
		{
			path: "/count_registrations/Fisica",
			want: map[string]interface{}{"course_name": "Fisica", "registrations": float64(0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, body := env.get(t, tt.path)
			require.Equal(t, http.StatusOK, status, string(body))
			assert.Equal(t, tt.want, decodeMap(t, body))
		})
	}
}

func TestServer_Records(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	lessonKey, err := attendance.GenerateKey()
	require.NoError(t, err)
	examKey, err := attendance.GenerateKey()
	require.NoError(t, err)
	_, _, err = env.store.PutKey(ctx, "Reti", "Lezione 1", lessonKey.Key, lessonKey.IV)
	require.NoError(t, err)
	_, _, err = env.store.PutKey(ctx, "Reti", "21/06/2024", examKey.Key, examKey.IV)
	require.NoError(t, err)

	encrypt := func(id string, k attendance.Key) string {
		enc, err := attendance.EncryptID(id, k)
		require.NoError(t, err)
		return enc
	}
	env.contract.records = []attendance.Record{
		{OperationType: "Lezione", CourseName: "Reti", AdditionalInfo: "Lezione 1", EncryptedId: encrypt("S1", lessonKey)},
		{OperationType: "Lezione", CourseName: "Reti", AdditionalInfo: "Lezione 1", EncryptedId: encrypt("S2", lessonKey)},
		{OperationType: "Esame", CourseName: "Reti", AdditionalInfo: "21/06/2024", EncryptedId: encrypt("S1", examKey)},
		{OperationType: "Lezione", CourseName: "Reti", AdditionalInfo: "Lezione 9", EncryptedId: "0xdeadbeef"},
	}
	env.login(t)

	t.Run("lesson", func(t *testing.T) {
		status, body := env.get(t, "/get_records_by_operation/Lezione/Reti/Lezione%201")
		require.Equal(t, http.StatusOK, status, string(body))
		var got []attendance.Record
		require.NoError(t, json.Unmarshal(body, &got))
		require.Len(t, got, 2)
		assert.Equal(t, "S1", got[0].EncryptedId)
		assert.Equal(t, "S2", got[1].EncryptedId)
	})

	t.Run("exam with date parts", func(t *testing.T) {
		status, body := env.get(t, "/get_records_by_operation/Esame/Reti/21/06/2024")
		require.Equal(t, http.StatusOK, status, string(body))
		var got []attendance.Record
		require.NoError(t, json.Unmarshal(body, &got))
		require.Len(t, got, 1)
		assert.Equal(t, "S1", got[0].EncryptedId)
		assert.Equal(t, "21/06/2024", got[0].AdditionalInfo)
	})

	errorCases := []struct {
		name   string
		path   string
		status int
		msg    string
	}{
		{name: "exam without date parts", path: "/get_records_by_operation/Esame/Reti/21-06-2024", status: http.StatusBadRequest, msg: "Missing date parts for exam."},
		{name: "date parts for lesson", path: "/get_records_by_operation/Lezione/Reti/21/06/2024", status: http.StatusBadRequest, msg: "Date parts are only accepted for exams."},
		{name: "unknown operation", path: "/get_records_by_operation/Laurea/Reti/x", status: http.StatusBadRequest},
		{name: "missing key", path: "/get_records_by_operation/Lezione/Reti/Lezione%202", status: http.StatusInternalServerError, msg: "key and IV not found"},
		{name: "undecryptable record", path: "/get_records_by_operation/Lezione/Reti/Lezione%209", status: http.StatusInternalServerError},
	}
	_, _, err = env.store.PutKey(ctx, "Reti", "Lezione 9", lessonKey.Key, lessonKey.IV)
	require.NoError(t, err)

	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := env.get(t, tc.path)
			assert.Equal(t, tc.status, status, string(body))
			if tc.msg != "" {
				assert.Equal(t, tc.msg, decodeMap(t, body)["error"])
			}
		})
	}
}

func TestServer_ContractFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.contract.err = errors.New("connection refused")
	env.login(t)

	status, body := env.get(t, "/get_records_by_operation/Lezione/Reti/Lezione%201")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Error retrieving records from blockchain.", decodeMap(t, body)["error"])
}

func TestServer_RequestTimeout(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.RequestTimeout = 20 * time.Millisecond })
	env.contract.block = true
	env.login(t)

	status, body := env.get(t, "/count_registrations/Reti")
	assert.Equal(t, http.StatusRequestTimeout, status)
	assert.Equal(t, "Request timeout.", decodeMap(t, body)["error"])
}

func TestServer_NoContract(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Contract = nil })

	status, body := env.get(t, "/healthz")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "degraded", decodeMap(t, body)["status"])

	env.login(t)
	status, _ = env.get(t, "/count_registrations/Reti")
	assert.Equal(t, http.StatusServiceUnavailable, status)

	env.server.SetContract(env.contract)
	status, body = env.get(t, "/healthz")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", decodeMap(t, body)["status"])
	assert.Equal(t, env.contract.address.Hex(), decodeMap(t, body)["contract"])
}

func TestServer_NotFoundAndMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.get(t, "/nope")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, decodeMap(t, body)["error"], "/nope")

	status, _ = env.get(t, "/login")
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestNewServer_RequiresStore(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestServer_ServeShutdownAndReload(t *testing.T) {
	artifactPath := filepath.Join(t.TempDir(), "AttendanceTracker.json")
	require.NoError(t, os.WriteFile(artifactPath, []byte("{}"), 0o600))

	redeployed := &fakeContract{address: common.HexToAddress("0x1111111111111111111111111111111111111111")}
	var reloads atomic.Int32
	env := newTestEnv(t, func(c *Config) {
		c.ArtifactPath = artifactPath
		c.Reload = func(context.Context) (Contract, error) {
			reloads.Add(1)
			return redeployed, nil
		}
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.serveListener(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_ = os.WriteFile(artifactPath, []byte(`{"contractName":"AttendanceTracker"}`), 0o600)
		return env.server.currentContract().Address() == redeployed.address
	}, 5*time.Second, 300*time.Millisecond)
	assert.GreaterOrEqual(t, reloads.Load(), int32(1))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
