package vip

import (
	"sync"
	"sync/atomic"
)

const (
	unlocked int32 = iota
	locked
)

// Mutex is a mutual exclusion lock built on a single atomic cell.
// Lock spins on a compare-and-swap and parks on a condition variable when
// the lock is held; Unlock wakes every parked goroutine.
//
// The zero value is an unlocked Mutex.
type Mutex struct {
	state atomic.Int32

	once sync.Once
	mu   sync.Mutex
	cond sync.Cond
}

func (m *Mutex) init() {
	m.once.Do(func() { m.cond.L = &m.mu })
}

func (m *Mutex) Lock() {
	for !m.state.CompareAndSwap(unlocked, locked) {
		m.init()
		m.mu.Lock()
		for m.state.Load() == locked {
			m.cond.Wait()
		}
		m.mu.Unlock()
	}
}

// TryLock acquires the lock if it is free and reports whether it did.
func (m *Mutex) TryLock() bool {
	return m.state.CompareAndSwap(unlocked, locked)
}

func (m *Mutex) Unlock() {
	if !m.state.CompareAndSwap(locked, unlocked) {
		panic("vip: unlock of unlocked Mutex")
	}
	m.init()
	m.mu.Lock()
	m.cond.Broadcast()
	m.mu.Unlock()
}

const (
	running int32 = iota
	paused
)

// PauseSignal tells the interpreter goroutine to stop at the next
// instruction boundary. The zero value is running.
type PauseSignal struct {
	state atomic.Int32
}

func (p *PauseSignal) Pause() { p.state.Store(paused) }
func (p *PauseSignal) Resume() { p.state.Store(running) }
func (p *PauseSignal) Paused() bool { return p.state.Load() == paused }
