package hook

import (
	"sync"
	"time"
)

const (
	// _defaultExpiryWindowMultiplier defines how many window periods to wait before cleaning up inactive rate limiters.
	_defaultExpiryWindowMultiplier = 3
	// _defaultCleanupInterval is the number of windows between cleanup runs; startCleanup raises the result to at least one minute.
	_defaultCleanupInterval = 2
)

type rateLimiter struct {
	count       int
	windowStart time.Time
	lastAccess  time.Time
}

// RateLimitHook throttles outbound publishes for the whole client to maxRate
// operations per window.
type RateLimitHook struct {
	*Base
	mu           sync.Mutex
	limiter      *rateLimiter
	maxRate      int
	window       time.Duration
	cleanupTimer *time.Timer
}

// NewRateLimitHook creates a rate-limiting hook.
// maxRate: maximum number of publishes allowed per window.
// window: time window for rate limiting (e.g., 1 minute).
func NewRateLimitHook(maxRate int, window time.Duration) *RateLimitHook {
	h := &RateLimitHook{
		Base:    &Base{id: "rate-limit"},
		limiter: &rateLimiter{windowStart: time.Now()},
		maxRate: maxRate,
		window:  window,
	}
	h.startCleanup()
	return h
}

func (h *RateLimitHook) ID() string {
	return h.id
}

func (h *RateLimitHook) Provides(event Event) bool {
	return event == OnPublish
}

func (h *RateLimitHook) Stop() error {
	if h.cleanupTimer != nil {
		h.cleanupTimer.Stop()
	}
	return nil
}

// OnPublish checks whether the client has exceeded the rate limit.
func (h *RateLimitHook) OnPublish(msg *PublishMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	if now.Sub(h.limiter.windowStart) > h.window {
		h.limiter.count = 1
		h.limiter.windowStart = now
		h.limiter.lastAccess = now
		if h.maxRate < 1 {
			return ErrRateLimitExceeded
		}
		return nil
	}

	h.limiter.lastAccess = now
	h.limiter.count++

	if h.limiter.count > h.maxRate {
		return ErrRateLimitExceeded
	}

	return nil
}

func (h *RateLimitHook) SetMaxRate(maxRate int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.maxRate = maxRate
}

func (h *RateLimitHook) SetWindow(window time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.window = window
}

func (h *RateLimitHook) GetMaxRate() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maxRate
}

func (h *RateLimitHook) GetWindow() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.window
}

func (h *RateLimitHook) GetCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.limiter.count
}

func (h *RateLimitHook) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.limiter = &rateLimiter{windowStart: time.Now()}
}

func (h *RateLimitHook) startCleanup() {
	cleanupInterval := h.window * _defaultCleanupInterval
	if cleanupInterval < time.Minute {
		cleanupInterval = time.Minute
	}

	h.cleanupTimer = time.AfterFunc(cleanupInterval, func() {
		h.startCleanup()
	})
}

// MultiLevelRateLimitHook throttles outbound publishes per topic as well as
// globally across the client.
type MultiLevelRateLimitHook struct {
	*Base
	mu            sync.Mutex
	perTopicLimit int
	globalLimit   int
	window        time.Duration
	topicLimiters map[string]*rateLimiter
	globalLimiter *rateLimiter
	cleanupTimer  *time.Timer
}

func NewMultiLevelRateLimitHook(perTopicLimit, globalLimit int, window time.Duration) *MultiLevelRateLimitHook {
	h := &MultiLevelRateLimitHook{
		Base:          &Base{id: "multi-level-rate-limit"},
		perTopicLimit: perTopicLimit,
		globalLimit:   globalLimit,
		window:        window,
		topicLimiters: make(map[string]*rateLimiter),
		globalLimiter: &rateLimiter{windowStart: time.Now()},
	}
	h.startCleanup()
	return h
}

func (h *MultiLevelRateLimitHook) ID() string {
	return h.id
}

func (h *MultiLevelRateLimitHook) Provides(event Event) bool {
	return event == OnPublish
}

func (h *MultiLevelRateLimitHook) Stop() error {
	if h.cleanupTimer != nil {
		h.cleanupTimer.Stop()
	}
	return nil
}

func (h *MultiLevelRateLimitHook) OnPublish(msg *PublishMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()

	if h.globalLimit > 0 {
		if now.Sub(h.globalLimiter.windowStart) > h.window {
			h.globalLimiter.count = 1
			h.globalLimiter.windowStart = now
		} else {
			h.globalLimiter.count++
			if h.globalLimiter.count > h.globalLimit {
				return ErrGlobalRateLimitExceeded
			}
		}
	}

	if h.perTopicLimit > 0 {
		if err := h.checkLimit(msg.Topic, h.perTopicLimit, now, h.topicLimiters, ErrTopicRateLimitExceeded); err != nil {
			return err
		}
	}

	return nil
}

func (h *MultiLevelRateLimitHook) checkLimit(key string, maxRate int, now time.Time, limiters map[string]*rateLimiter, errType error) error {
	limiter, exists := limiters[key]

	if !exists || now.Sub(limiter.windowStart) > h.window {
		limiters[key] = &rateLimiter{
			count:       1,
			windowStart: now,
			lastAccess:  now,
		}
		return nil
	}

	limiter.lastAccess = now
	limiter.count++

	if limiter.count > maxRate {
		return errType
	}

	return nil
}

func (h *MultiLevelRateLimitHook) GetTopicCount(topic string) (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	limiter, exists := h.topicLimiters[topic]
	if !exists {
		return 0, false
	}
	return limiter.count, true
}

func (h *MultiLevelRateLimitHook) GetGlobalCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.globalLimiter.count
}

func (h *MultiLevelRateLimitHook) ResetAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.topicLimiters = make(map[string]*rateLimiter)
	h.globalLimiter = &rateLimiter{windowStart: time.Now()}
}

func (h *MultiLevelRateLimitHook) startCleanup() {
	cleanupInterval := h.window * _defaultCleanupInterval
	if cleanupInterval < time.Minute {
		cleanupInterval = time.Minute
	}

	h.cleanupTimer = time.AfterFunc(cleanupInterval, func() {
		h.cleanup()
		h.startCleanup()
	})
}

func (h *MultiLevelRateLimitHook) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	expiry := h.window * _defaultExpiryWindowMultiplier

	for key, limiter := range h.topicLimiters {
		if now.Sub(limiter.lastAccess) > expiry {
			delete(h.topicLimiters, key)
		}
	}
}
