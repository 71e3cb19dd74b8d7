package http

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter ограничивает запросы по ключу клиента (IP):
// не больше max запросов за window с равномерным пополнением.
type clientLimiter struct {
	mu        sync.Mutex
	clients   map[string]*visitor
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastPrune time.Time
	now       func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(max int, window time.Duration) *clientLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &clientLimiter{
		clients: make(map[string]*visitor),
		limit:   rate.Limit(float64(max) / window.Seconds()),
		burst:   max,
		idleTTL: window,
		now:     time.Now,
	}
}

// Allow расходует один токен клиента key. Возвращает false и время до
// появления следующего токена, если лимит исчерпан.
func (l *clientLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	v, ok := l.clients[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = v
	}
	v.lastSeen = now

	reservation := v.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, l.idleTTL
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// pruneLocked удаляет клиентов, не появлявшихся дольше окна: их бакет
// к этому моменту всё равно полон.
func (l *clientLimiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < l.idleTTL {
		return
	}
	for key, v := range l.clients {
		if now.Sub(v.lastSeen) >= l.idleTTL {
			delete(l.clients, key)
		}
	}
	l.lastPrune = now
}

func (l *clientLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
