package handler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Shivanand-hulikatti/hotel-booking/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// IdempotencyKeyHeader is the header name for idempotency key
	IdempotencyKeyHeader = "X-Idempotency-Key"
	// IdempotencyReplayedHeader marks a response served from a stored record
	IdempotencyReplayedHeader = "X-Idempotency-Replayed"

	DefaultIdempotencyTTL = 5 * time.Minute
	DefaultProcessingTTL  = 60 * time.Second

	idempotencyKeyPrefix = "idempotency:"
)

type idempotencyStatus string

const (
	statusProcessing idempotencyStatus = "processing"
	statusCompleted  idempotencyStatus = "completed"
)

// idempotencyRecord is the state stored per key.
type idempotencyRecord struct {
	Status       idempotencyStatus `json:"status"`
	RequestHash  string            `json:"request_hash"`
	ResponseCode int               `json:"response_code,omitempty"`
	ResponseBody string            `json:"response_body,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// RedisClient is the subset of go-redis the idempotency middleware uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// IdempotencyConfig configures Idempotency.
type IdempotencyConfig struct {
	Redis RedisClient
	// TTL applies to completed records.
	TTL time.Duration
	// ProcessingTTL bounds how long an in-flight record blocks retries.
	ProcessingTTL time.Duration
}

// Idempotency replays the stored response for a repeated POST or PUT that
// carries the same X-Idempotency-Key, method, path, user and body. A key
// reused with a different request gets 422; a repeat while the first is
// still running gets 409. Requests without the header pass through, and a
// Redis failure lets the request through unprotected.
//
// It must run after authentication so the user id is part of the hash.
func Idempotency(cfg IdempotencyConfig, log *zap.Logger) func(http.Handler) http.Handler {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultIdempotencyTTL
	}
	if cfg.ProcessingTTL == 0 {
		cfg.ProcessingTTL = DefaultProcessingTTL
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" || (r.Method != http.MethodPost && r.Method != http.MethodPut) {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, 1<<20))
			if err != nil {
				writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "invalid request body"})
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			ctx := r.Context()
			redisKey := idempotencyKeyPrefix + key
			hash := requestHash(r, body)

			existing, err := getRecord(ctx, cfg.Redis, redisKey)
			if err != nil && !errors.Is(err, redis.Nil) {
				log.Warn("idempotency lookup failed, continuing without it", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if existing != nil {
				replay(w, existing, hash)
				return
			}

			record := &idempotencyRecord{Status: statusProcessing, RequestHash: hash, CreatedAt: time.Now().UTC()}
			acquired, err := setRecordNX(ctx, cfg.Redis, redisKey, record, cfg.ProcessingTTL)
			if err != nil {
				log.Warn("idempotency reserve failed, continuing without it", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !acquired {
				// Another request claimed the key between GET and SETNX.
				existing, err = getRecord(ctx, cfg.Redis, redisKey)
				if err == nil && existing != nil {
					replay(w, existing, hash)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			rw := &capturingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			// Server errors are not stored so the client can retry.
			if rw.status >= http.StatusInternalServerError {
				if err := cfg.Redis.Del(context.WithoutCancel(ctx), redisKey).Err(); err != nil {
					log.Warn("idempotency release failed", zap.Error(err))
				}
				return
			}

			record.Status = statusCompleted
			record.ResponseCode = rw.status
			record.ResponseBody = rw.body.String()
			if err := saveRecord(context.WithoutCancel(ctx), cfg.Redis, redisKey, record, cfg.TTL); err != nil {
				log.Warn("idempotency save failed", zap.Error(err))
			}
		})
	}
}

func replay(w http.ResponseWriter, rec *idempotencyRecord, hash string) {
	switch {
	case rec.RequestHash != hash:
		writeJSON(w, http.StatusUnprocessableEntity, model.ErrorResponse{Error: "idempotency key already used with a different request"})
	case rec.Status == statusProcessing:
		writeJSON(w, http.StatusConflict, model.ErrorResponse{Error: "a request with this idempotency key is already being processed"})
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(IdempotencyReplayedHeader, "true")
		w.WriteHeader(rec.ResponseCode)
		_, _ = io.WriteString(w, rec.ResponseBody)
	}
}

func requestHash(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte(r.URL.Path))
	if userID, ok := UserIDFromContext(r.Context()); ok {
		h.Write([]byte(strconv.Itoa(userID)))
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func getRecord(ctx context.Context, rdb RedisClient, key string) (*idempotencyRecord, error) {
	raw, err := rdb.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	var rec idempotencyRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func setRecordNX(ctx context.Context, rdb RedisClient, key string, rec *idempotencyRecord, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	return rdb.SetNX(ctx, key, data, ttl).Result()
}

func saveRecord(ctx context.Context, rdb RedisClient, key string, rec *idempotencyRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, data, ttl).Err()
}

// capturingWriter records the response for storage while passing it on.
type capturingWriter struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (w *capturingWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}
