package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// gcraScript keeps one value per key: the theoretical arrival time (tat) of
// the next request, in milliseconds of redis server time. A request is
// admitted while tat stays within burst*emission of now.
const gcraScript = `
local emission = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])

local clock = redis.call("TIME")
local now = clock[1] * 1000 + math.floor(clock[2] / 1000)

local tat = tonumber(redis.call("GET", KEYS[1]) or "")
if tat == nil or tat < now then
  tat = now
end

local nextTat = tat + emission
local allowAt = nextTat - emission * burst
if allowAt > now then
  return {0, tostring(tat - now), tostring(allowAt - now)}
end

redis.call("SET", KEYS[1], tostring(nextTat), "PX", math.ceil(nextTat - now))
return {1, tostring(nextTat - now), "0"}
`

var (
	errLimiterNotConfigured = errors.New("rate limiter not configured")
	errLimiterKeyEmpty      = errors.New("rate limiter key is empty")
	errLimiterParams        = errors.New("rate limiter rate and burst must be positive")
	errLimiterReply         = errors.New("invalid rate limit script reply")
)

// Limiter is a Redis-backed generic cell rate limiter shared by every API
// replica.
type Limiter struct {
	client *redis.Client
	script *redis.Script
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func NewLimiter(client *redis.Client) *Limiter {
	if client == nil {
		return nil
	}
	return &Limiter{client: client, script: redis.NewScript(gcraScript)}
}

// Allow admits one request for key. perSecond is the sustained rate and burst
// the number of requests that may arrive back to back.
func (l *Limiter) Allow(ctx context.Context, key string, perSecond float64, burst int) (*RateLimitResult, error) {
	switch {
	case l == nil || l.client == nil:
		return nil, errLimiterNotConfigured
	case key == "":
		return nil, errLimiterKeyEmpty
	case perSecond <= 0 || burst <= 0:
		return nil, errLimiterParams
	}

	emission := 1000 / perSecond
	reply, err := l.script.Run(ctx, l.client, []string{key}, emission, burst).Slice()
	if err != nil {
		return nil, err
	}
	if len(reply) != 3 {
		return nil, errLimiterReply
	}
	allowed, ok := reply[0].(int64)
	if !ok {
		return nil, errLimiterReply
	}
	backlog, err := parseMillis(reply[1])
	if err != nil {
		return nil, err
	}
	wait, err := parseMillis(reply[2])
	if err != nil {
		return nil, err
	}
	return gcraResult(allowed == 1, backlog, wait, emission, burst), nil
}

// gcraResult converts the script reply into header values. backlog is how far
// tat runs ahead of now; wait is the delay until the next admission.
func gcraResult(allowed bool, backlog, wait, emission float64, burst int) *RateLimitResult {
	res := &RateLimitResult{Allowed: allowed, Limit: burst}
	if allowed {
		remaining := math.Floor((emission*float64(burst) - backlog) / emission)
		res.Remaining = int(math.Max(0, remaining))
		return res
	}
	res.RetryAfter = time.Duration(math.Ceil(wait)) * time.Millisecond
	return res
}

func parseMillis(v any) (float64, error) {
	switch val := v.(type) {
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, errLimiterReply
		}
		return f, nil
	case int64:
		return float64(val), nil
	default:
		return 0, errLimiterReply
	}
}
