/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"sync"
	"time"
)

// idGenerator hands out millisecond wall-clock ids, bumped past the previous
// id whenever two calls land in the same millisecond or the clock steps back.
type idGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func newIDGenerator() *idGenerator {
	return &idGenerator{now: time.Now}
}

func (g *idGenerator) next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.now().UnixMilli()
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id

	return id
}
