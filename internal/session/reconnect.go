package session

import (
	"sync"
	"time"

	"github.com/unixthat/beer/internal/metrics"
	"github.com/unixthat/beer/internal/transport"
	"github.com/unixthat/beer/internal/wire"
)

// TokenRegistry is the process-wide map from reconnect token to the
// controller managing the match it belongs to, mirroring the reference
// server's module-level PID_REGISTRY dict.
type TokenRegistry struct {
	mu  sync.Mutex
	byToken map[string]*ReconnectController
}

// NewTokenRegistry constructs an empty registry.
func NewTokenRegistry() *TokenRegistry {
	return &TokenRegistry{byToken: make(map[string]*ReconnectController)}
}

func (r *TokenRegistry) register(token string, c *ReconnectController) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byToken[token] = c
}

// Lookup returns the controller registered for token, if any.
func (r *TokenRegistry) Lookup(token string) (*ReconnectController, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byToken[token]
	return c, ok
}

// Deregister removes token, called once its match concludes.
func (r *TokenRegistry) Deregister(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byToken, token)
}

// ReconnectController manages the reconnect wait window and token-based
// reattachment for the two slots of a single match, grounded on
// reconnect_controller.py's ReconnectController.
type ReconnectController struct {
	timeout  time.Duration
	notify   func(slot int, text string)
	token1   string
	token2   string
	registry *TokenRegistry

	mu      sync.Mutex
	pending map[int]*transport.Endpoint
	signal  map[int]chan struct{}
}

// NewReconnectController registers token1/token2 into registry and returns
// a controller for this match's two player slots.
func NewReconnectController(timeout time.Duration, notify func(slot int, text string), token1, token2 string, registry *TokenRegistry) *ReconnectController {
	c := &ReconnectController{
		timeout:  timeout,
		notify:   notify,
		token1:   token1,
		token2:   token2,
		registry: registry,
		pending:  make(map[int]*transport.Endpoint),
		signal:   make(map[int]chan struct{}),
	}
	registry.register(token1, c)
	registry.register(token2, c)
	return c
}

func (c *ReconnectController) slotForToken(token string) (int, bool) {
	switch token {
	case c.token1:
		return 1, true
	case c.token2:
		return 2, true
	default:
		return 0, false
	}
}

// TryRebind pops a socket waiting for slot without blocking.
func (c *ReconnectController) TryRebind(slot int) (*transport.Endpoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ep, ok := c.pending[slot]
	if ok {
		delete(c.pending, slot)
	}
	return ep, ok
}

// Wait notifies the surviving player that their opponent's slot is being
// held, then blocks until a reattachment arrives or timeout elapses.
func (c *ReconnectController) Wait(slot int) bool {
	other := otherSlot(slot)
	c.notify(other, "INFO Opponent disconnected - holding slot for reconnect")

	c.mu.Lock()
	if _, ok := c.pending[slot]; ok {
		c.mu.Unlock()
		return true
	}
	ch := make(chan struct{})
	c.signal[slot] = ch
	c.mu.Unlock()

	select {
	case <-ch:
		c.notify(other, "INFO Opponent has reconnected - resuming match")
		c.notify(slot, "INFO You have reconnected - resuming match")
		metrics.ReconnectAttempts.WithLabelValues("success").Inc()
		return true
	case <-time.After(c.timeout):
		c.mu.Lock()
		delete(c.signal, slot)
		c.mu.Unlock()
		metrics.ReconnectAttempts.WithLabelValues("timeout").Inc()
		return false
	}
}

// AttachPlayer binds a reconnecting endpoint to whichever slot owns token.
// A second reattachment attempt on a slot that already has a pending
// endpoint is rejected with an ERR frame and the new connection is closed,
// matching the reference's duplicate-attach handling.
func (c *ReconnectController) AttachPlayer(token string, ep *transport.Endpoint) bool {
	slot, ok := c.slotForToken(token)
	if !ok {
		return false
	}

	c.mu.Lock()
	if _, exists := c.pending[slot]; exists {
		c.mu.Unlock()
		_ = ep.Send(wire.PacketError, map[string]string{"msg": "ERR token-in-use"})
		_ = ep.Close()
		metrics.ReconnectAttempts.WithLabelValues("duplicate").Inc()
		return false
	}
	c.pending[slot] = ep
	ch, waiting := c.signal[slot]
	delete(c.signal, slot)
	c.mu.Unlock()

	if waiting {
		close(ch)
	}
	return true
}

// TakeNewSocket retrieves and removes the reattached endpoint for slot.
func (c *ReconnectController) TakeNewSocket(slot int) (*transport.Endpoint, bool) {
	return c.TryRebind(slot)
}

// Deregister removes both of this match's tokens from the registry.
func (c *ReconnectController) Deregister() {
	c.registry.Deregister(c.token1)
	c.registry.Deregister(c.token2)
}

func otherSlot(slot int) int {
	if slot == 1 {
		return 2
	}
	return 1
}
