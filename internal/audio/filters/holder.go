// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package filters

import (
	"sync"

	"github.com/rapidaai/wavelink/internal/protocol"
)

// Holder shares one chain between the control surface (rebuilds) and the
// mix tick (processing). Rebuild swaps the whole chain atomically; the
// mutex is held only for the duration of one frame or one swap.
type Holder struct {
	mu    sync.Mutex
	chain *Chain
}

func NewHolder() *Holder {
	return &Holder{chain: NewChain(nil)}
}

// Rebuild replaces the chain from a fresh config.
func (h *Holder) Rebuild(cfg *protocol.Filters) {
	next := NewChain(cfg)
	h.mu.Lock()
	h.chain = next
	h.mu.Unlock()
}

// WithChain runs fn with exclusive access to the live chain.
func (h *Holder) WithChain(fn func(*Chain)) {
	h.mu.Lock()
	fn(h.chain)
	h.mu.Unlock()
}

// IsActive reports whether the live chain has any enabled stage.
func (h *Holder) IsActive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.chain.IsActive()
}

// Reset clears all per-filter state on the live chain (seek).
func (h *Holder) Reset() {
	h.mu.Lock()
	h.chain.Reset()
	h.mu.Unlock()
}
