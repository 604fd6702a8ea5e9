// Package session resolves an Express-style signed session cookie to a
// username, backed by Redis the way this codebase wires its cache/session
// client elsewhere (go-redis/v8, context-scoped calls, Ping on startup).
package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Service resolves a session id (already stripped of its signing prefix)
// to the username it belongs to, and creates new sessions at login.
type Service interface {
	UsernameFromSessionID(ctx context.Context, sessionID string) (string, error)
	CreateSession(ctx context.Context, username string, ttl time.Duration) (sessionID string, err error)
}

// RedisService looks sessions up in Redis, where the HTTP layer's session
// middleware is assumed to store them under "sess:<id>" with the
// username as the value.
type RedisService struct {
	client *redis.Client
	prefix string
}

// NewRedisService wraps an existing Redis client.
func NewRedisService(client *redis.Client) *RedisService {
	return &RedisService{client: client, prefix: "sess:"}
}

// Ping verifies connectivity, matching this codebase's startup health
// check for Redis-backed services.
func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// UsernameFromSessionID fetches the session record and extracts its
// username. A missing key is reported as an error; the admitter treats
// any error here as admission denial.
func (s *RedisService) UsernameFromSessionID(ctx context.Context, sessionID string) (string, error) {
	username, err := s.client.Get(ctx, s.prefix+sessionID).Result()
	if err != nil {
		if err == redis.Nil {
			return "", fmt.Errorf("session: unknown session id")
		}
		return "", fmt.Errorf("session: redis lookup failed: %w", err)
	}
	return username, nil
}

// CreateSession mints a fresh session id, stores its username in Redis
// under a ttl, and returns the id for the caller to sign into a cookie
// via SignCookie.
func (s *RedisService) CreateSession(ctx context.Context, username string, ttl time.Duration) (string, error) {
	sessionID, err := newSessionID()
	if err != nil {
		return "", fmt.Errorf("session: generating id: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+sessionID, username, ttl).Err(); err != nil {
		return "", fmt.Errorf("session: storing session: %w", err)
	}
	return sessionID, nil
}

func newSessionID() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// SignCookie builds the Express-style "s:<sessionId>.<signature>" cookie
// value for a freshly created session id.
func SignCookie(sessionID, secret string) string {
	return "s:" + sessionID + "." + sign(sessionID, secret)
}

// ParseCookie extracts the session id from an Express-style signed cookie
// value of the form "s:<sessionId>.<signature>", and verifies the
// signature against secret using the same HMAC-SHA256 construction
// express's cookie-signature package uses (base64, padding stripped).
//
// Verifying the signature is not optional: an unverified session id
// would let a client claim any session.
func ParseCookie(value, secret string) (sessionID string, err error) {
	if !strings.HasPrefix(value, "s:") {
		return "", fmt.Errorf("session: cookie missing signed prefix")
	}
	body := value[2:]

	dot := strings.LastIndex(body, ".")
	if dot < 0 {
		return "", fmt.Errorf("session: cookie missing signature separator")
	}
	sessionID = body[:dot]
	signature := body[dot+1:]

	if !hmac.Equal([]byte(signature), []byte(sign(sessionID, secret))) {
		return "", fmt.Errorf("session: signature mismatch")
	}
	return sessionID, nil
}

func sign(sessionID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sessionID))
	sum := mac.Sum(nil)
	return strings.TrimRight(base64.StdEncoding.EncodeToString(sum), "=")
}
