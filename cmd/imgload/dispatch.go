package main

import (
	"context"
	"errors"
	"sync"
)

var errLoopClosed = errors.New("main loop closed")

// mainLoop serialises callbacks onto one goroutine, the way a UI thread would.
type mainLoop struct {
	fns       chan func()
	done      chan struct{}
	closeOnce sync.Once
}

func newMainLoop() *mainLoop {
	l := &mainLoop{fns: make(chan func()), done: make(chan struct{})}
	go l.run()
	return l
}

func (l *mainLoop) run() {
	for {
		select {
		case fn := <-l.fns:
			fn()
		case <-l.done:
			return
		}
	}
}

func (l *mainLoop) Post(ctx context.Context, fn func()) error {
	select {
	case <-l.done:
		return errLoopClosed
	default:
	}
	ran := make(chan struct{})
	wrapped := func() {
		defer close(ran)
		fn()
	}
	select {
	case l.fns <- wrapped:
	case <-l.done:
		return errLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-ran
	return nil
}

func (l *mainLoop) Close() { l.closeOnce.Do(func() { close(l.done) }) }
