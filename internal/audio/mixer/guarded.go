// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package mixer

import "sync"

// Guarded wraps a Mixer with the per-player mutex. Only the speak loop
// and track-control code contend; control holds it just long enough to
// add or remove tracks.
type Guarded struct {
	mu sync.Mutex
	m  *Mixer
}

func NewGuarded(m *Mixer) *Guarded {
	return &Guarded{m: m}
}

// With runs fn with exclusive access to the mixer.
func (g *Guarded) With(fn func(*Mixer)) {
	g.mu.Lock()
	fn(g.m)
	g.mu.Unlock()
}
