package network

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// rateWindow counts messages in a fixed one second window.
type rateWindow struct {
	start time.Time
	count int
}

func (w *rateWindow) allow(now time.Time, limit int) bool {
	if now.Sub(w.start) >= time.Second {
		w.start = now
		w.count = 0
	}
	w.count++
	return w.count <= limit
}

// pruneAbove is how many idle peers the HTTP limiter keeps before it drops stale windows.
const pruneAbove = 1024

// peerLimiter applies the per-client budget to plain HTTP requests, keyed by remote host.
type peerLimiter struct {
	mu    sync.Mutex
	limit func() int
	peers map[string]*rateWindow
}

func newPeerLimiter(limit func() int) *peerLimiter {
	return &peerLimiter{limit: limit, peers: make(map[string]*rateWindow)}
}

func (l *peerLimiter) allow(peer string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.peers) > pruneAbove {
		for k, w := range l.peers {
			if now.Sub(w.start) >= time.Second {
				delete(l.peers, k)
			}
		}
	}
	w, ok := l.peers[peer]
	if !ok {
		w = &rateWindow{}
		l.peers[peer] = w
	}
	return w.allow(now, l.limit())
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
