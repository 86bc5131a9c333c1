package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/hotel-booking/internal/model"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// countingHandler answers with status and counts calls.
func countingHandler(calls *atomic.Int32, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		writeJSON(w, status, model.BookingIDResponse{BookingID: int(n)})
	})
}

func idempotentRequest(method, key, body string, userID int) *http.Request {
	req := httptest.NewRequest(method, "/booking", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req.WithContext(WithUserID(req.Context(), userID))
}

func TestIdempotency_ReplaysCompletedResponse(t *testing.T) {
	_, rdb := newRedis(t)
	var calls atomic.Int32
	h := Idempotency(IdempotencyConfig{Redis: rdb}, zaptest.NewLogger(t))(countingHandler(&calls, http.StatusOK))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, idempotentRequest(http.MethodPost, "k1", `{"roomId":1}`, 1))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, idempotentRequest(http.MethodPost, "k1", `{"roomId":1}`, 1))

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get(IdempotencyReplayedHeader))
	assert.Empty(t, first.Header().Get(IdempotencyReplayedHeader))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestIdempotency_ReplaysClientErrors(t *testing.T) {
	_, rdb := newRedis(t)
	var calls atomic.Int32
	h := Idempotency(IdempotencyConfig{Redis: rdb}, zaptest.NewLogger(t))(countingHandler(&calls, http.StatusForbidden))

	for range 2 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, idempotentRequest(http.MethodPost, "k1", `{"roomId":1}`, 1))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestIdempotency_KeyReuseWithDifferentRequest(t *testing.T) {
	_, rdb := newRedis(t)
	var calls atomic.Int32
	h := Idempotency(IdempotencyConfig{Redis: rdb}, zaptest.NewLogger(t))(countingHandler(&calls, http.StatusOK))

	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(http.MethodPost, "k1", `{"roomId":1}`, 1))

	tests := []struct {
		name string
		req  *http.Request
	}{
		{name: "different body", req: idempotentRequest(http.MethodPost, "k1", `{"roomId":2}`, 1)},
		{name: "different user", req: idempotentRequest(http.MethodPost, "k1", `{"roomId":1}`, 2)},
		{name: "different method", req: idempotentRequest(http.MethodPut, "k1", `{"roomId":1}`, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		})
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestIdempotency_ConflictWhileProcessing(t *testing.T) {
	_, rdb := newRedis(t)
	started := make(chan struct{})
	release := make(chan struct{})
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		writeJSON(w, http.StatusOK, model.BookingIDResponse{BookingID: 1})
	})
	h := Idempotency(IdempotencyConfig{Redis: rdb}, zaptest.NewLogger(t))(slow)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(http.MethodPost, "k1", `{"roomId":1}`, 1))
	}()
	<-started

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentRequest(http.MethodPost, "k1", `{"roomId":1}`, 1))
	close(release)
	<-done

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestIdempotency_ServerErrorsAreNotStored(t *testing.T) {
	mr, rdb := newRedis(t)
	var calls atomic.Int32
	h := Idempotency(IdempotencyConfig{Redis: rdb}, zaptest.NewLogger(t))(countingHandler(&calls, http.StatusInternalServerError))

	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(http.MethodPost, "k1", `{"roomId":1}`, 1))
	assert.False(t, mr.Exists(idempotencyKeyPrefix+"k1"))

	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(http.MethodPost, "k1", `{"roomId":1}`, 1))
	assert.Equal(t, int32(2), calls.Load())
}

func TestIdempotency_RecordExpires(t *testing.T) {
	mr, rdb := newRedis(t)
	var calls atomic.Int32
	cfg := IdempotencyConfig{Redis: rdb, TTL: time.Minute}
	h := Idempotency(cfg, zaptest.NewLogger(t))(countingHandler(&calls, http.StatusOK))

	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(http.MethodPost, "k1", `{"roomId":1}`, 1))
	assert.Equal(t, time.Minute, mr.TTL(idempotencyKeyPrefix+"k1"))

	mr.FastForward(2 * time.Minute)
	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(http.MethodPost, "k1", `{"roomId":1}`, 1))
	assert.Equal(t, int32(2), calls.Load())
}

func TestIdempotency_PassThrough(t *testing.T) {
	_, rdb := newRedis(t)
	var calls atomic.Int32
	h := Idempotency(IdempotencyConfig{Redis: rdb}, zaptest.NewLogger(t))(countingHandler(&calls, http.StatusOK))

	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(http.MethodPost, "", `{"roomId":1}`, 1))
	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(http.MethodPost, "", `{"roomId":1}`, 1))
	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(http.MethodGet, "k1", ``, 1))
	h.ServeHTTP(httptest.NewRecorder(), idempotentRequest(http.MethodGet, "k1", ``, 1))

	assert.Equal(t, int32(4), calls.Load())
}

func TestIdempotency_FailsOpenWithoutRedis(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()
	var calls atomic.Int32
	h := Idempotency(IdempotencyConfig{Redis: rdb}, zaptest.NewLogger(t))(countingHandler(&calls, http.StatusOK))

	for range 2 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, idempotentRequest(http.MethodPost, "k1", `{"roomId":1}`, 1))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestIdempotency_ThroughRouter(t *testing.T) {
	_, rdb := newRedis(t)
	s := newTestServer(t, &IdempotencyConfig{Redis: rdb})
	token := s.login(t, 1)
	s.eligibleUser(1)
	room := s.room(t, 3)
	body := `{"roomId":` + itoa(room.ID) + `}`

	first := s.do(t, http.MethodPost, "/booking", token, body, IdempotencyKeyHeader, "create-1")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second := s.do(t, http.MethodPost, "/booking", token, body, IdempotencyKeyHeader, "create-1")

	assert.Equal(t, "true", second.Header().Get(IdempotencyReplayedHeader))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	r, err := s.store.FindRoom(t.Context(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Occupancy())
}
