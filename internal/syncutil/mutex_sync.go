//go:build !deadlock

// Package syncutil provides the mutex guarding the driver's exclusive bus
// ownership. By default it is a plain sync.Mutex with zero overhead; build
// with -tags=deadlock to swap in github.com/sasha-s/go-deadlock and catch
// interleaved command sequences during development.
package syncutil

import "sync"

// Mutex wraps sync.Mutex. Build with -tags=deadlock for deadlock detection.
//
//nolint:gocritic // Intentionally embedding sync.Mutex to expose its interface
type Mutex struct {
	sync.Mutex
}
