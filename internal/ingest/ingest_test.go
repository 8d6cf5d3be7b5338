package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"safewatch/internal/config"
	"safewatch/internal/model"
)

func testManager(t *testing.T) *config.Manager {
	t.Helper()
	m, err := config.NewManager("")
	require.NoError(t, err)
	return m
}

func TestParseJSONPayloadSingleAndArray(t *testing.T) {
	one, err := ParseJSONPayload([]byte(`{"ID": 3, "heartRate": 80, "timestamp": 1714550400123}`))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "3", one[0].Values["id"])
	assert.Equal(t, "1714550400123", one[0].Values["timestamp"])

	many, err := ParseJSONPayload([]byte(` [{"ID":1},{"ID":2,"sosStatus":null}] `))
	require.NoError(t, err)
	require.Len(t, many, 2)
	_, ok := many[1].Values["sosstatus"]
	assert.False(t, ok)

	_, err = ParseJSONPayload([]byte("  "))
	assert.Error(t, err)
}

func TestParserKeyValueLine(t *testing.T) {
	p := NewParser()
	f, err := p.ParseLine(`ID=5 heartRate=101 spo2=94 sosStatus="SOS Alert" mpuStatus=none`)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "5", f.Values["id"])
	assert.Equal(t, "SOS Alert", f.Values["sosstatus"])

	f, err = p.ParseLine(`{"ID": 6}`)
	require.NoError(t, err)
	assert.Equal(t, "6", f.Values["id"])

	f, err = p.ParseLine("   ")
	assert.NoError(t, err)
	assert.Nil(t, f)
}

func TestDecodeAndSend(t *testing.T) {
	out := make(chan model.Reading, 4)
	cfg := config.DefaultConfig()
	accepted, failed := decodeAndSend(context.Background(),
		[]byte(`[{"ID":1,"heartRate":70},{"heartRate":70},{"ID":2,"sosStatus":"SOS Alert"}]`),
		"kafka", cfg, out, zap.NewNop())
	assert.Equal(t, 2, accepted)
	assert.Equal(t, 1, failed)

	first := <-out
	assert.Equal(t, int64(1), first.WorkerID)
	assert.Equal(t, "kafka", first.Source)
	second := <-out
	assert.True(t, second.IsSOS())

	accepted, _ = decodeAndSend(context.Background(), []byte(`ID=3 heartRate=66`), "mqtt", cfg, out, zap.NewNop())
	assert.Equal(t, 1, accepted)
}

func TestSendNonBlockingDropsWhenFull(t *testing.T) {
	out := make(chan model.Reading, 1)
	assert.True(t, SendNonBlocking(context.Background(), out, model.Reading{WorkerID: 1}, zap.NewNop()))
	assert.False(t, SendNonBlocking(context.Background(), out, model.Reading{WorkerID: 2}, zap.NewNop()))
}

func TestRESTHandler(t *testing.T) {
	out := make(chan model.Reading, 4)
	h := NewRESTHandler(testManager(t), out, zap.NewNop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/readings", strings.NewReader(`{"ID": 4, "heartRate": 88, "prediction": "0"}`)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body["accepted"])
	r := <-out
	assert.Equal(t, "rest", r.Source)
	assert.Equal(t, "0", r.Prediction)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/readings", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/readings", strings.NewReader(`{"heartRate": 88}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestMQTTHandler(t *testing.T) {
	out := make(chan model.Reading, 1)
	handler := MQTTHandler(context.Background(), testManager(t), out, zap.NewNop())
	handler(nil, fakeMessage{topic: "safewatch/readings", payload: []byte(`{"ID": 8, "mpuStatus": "Impact detected"}`)})

	r := <-out
	assert.Equal(t, int64(8), r.WorkerID)
	assert.True(t, r.IsImpact())
	assert.Equal(t, "mqtt", r.Source)
}

func TestStartMQTTDisabled(t *testing.T) {
	err := StartMQTT(context.Background(), testManager(t), make(chan model.Reading), zap.NewNop())
	assert.NoError(t, err)
}

func TestTCPStream(t *testing.T) {
	m := testManager(t)
	m.Get().Ingest.TCP = config.TCPConfig{Enabled: true, Addr: "127.0.0.1:0"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan model.Reading, 4)
	ln, err := StartTCPStream(ctx, m, out, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	w := bufio.NewWriter(conn)
	_, _ = w.WriteString("{\"ID\": 11, \"heartRate\": 72}\n")
	_, _ = w.WriteString("garbage\n")
	_, _ = w.WriteString("ID=12 spo2=91\n")
	require.NoError(t, w.Flush())

	var got []int64
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case r := <-out:
			assert.Equal(t, "tcp", r.Source)
			got = append(got, r.WorkerID)
		case <-timeout:
			t.Fatalf("received %v", got)
		}
	}
	assert.Equal(t, []int64{11, 12}, got)
}

func TestTCPStreamReleasesClosedConnections(t *testing.T) {
	m := testManager(t)
	m.Get().Ingest.TCP = config.TCPConfig{Enabled: true, Addr: "127.0.0.1:0"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan model.Reading, 256)
	ln, err := StartTCPStream(ctx, m, out, zap.NewNop())
	require.NoError(t, err)

	before := runtime.NumGoroutine()
	for i := 0; i < 100; i++ {
		conn, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		_, err = conn.Write([]byte("ID=3 heartRate=70\n"))
		require.NoError(t, err)
		require.NoError(t, conn.Close())
	}

	assert.Eventually(t, func() bool {
		return len(out) == 100
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+5
	}, 2*time.Second, 10*time.Millisecond, "connection goroutines still running")
}
