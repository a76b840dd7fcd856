package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliver_SignsBody(t *testing.T) {
	var gotSig string
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		assert.Equal(t, Sign("s3cret", body), gotSig)
		_ = json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	ev := &Event{Type: EventArchiveCompleted, JobID: "j1", Timestamp: 1, Data: map[string]int{"succeeded": 7}}
	require.NoError(t, NewSender().Deliver(context.Background(), srv.URL, "s3cret", ev))
	assert.Equal(t, "j1", got.JobID)
	assert.Equal(t, EventArchiveCompleted, got.Type)
	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, gotSig)
}

func TestDeliver_NoSecretNoSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(SignatureHeader))
	}))
	defer srv.Close()
	require.NoError(t, NewSender().Deliver(context.Background(), srv.URL, "", &Event{Type: EventArchiveFailed}))
}

func TestDeliverAsync_Retries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	s := NewSender()
	s.delays = []time.Duration{0, time.Millisecond, time.Millisecond, time.Millisecond}

	select {
	case <-s.DeliverAsync(srv.URL, "", &Event{Type: EventArchiveCompleted}):
	case <-time.After(5 * time.Second):
		t.Fatal("delivery did not finish")
	}
	assert.EqualValues(t, 3, calls.Load())
}
