package fit

import (
	"fmt"
	"time"

	"github.com/gomlx/exceptions"
)

// nTimes is used to implement NTimesDuringLoop.
type nTimes struct {
	n, nUsed int
	fn       OnFrameFn
}

func (nT *nTimes) onFrame(loop *Loop, frame *Frame) error {
	framesDone := loop.FramesProcessed // Current frame is already counted.
	maxFrames := loop.Config.MaxFrames()
	if framesDone < maxFrames { // Last possible frame is always included.
		framesPerCall := float64(maxFrames) / float64(nT.n)
		if framesPerCall > 1 && float64(nT.nUsed) > float64(framesDone)/framesPerCall {
			return nil
		}
	}

	// Call hook at this frame.
	nT.nUsed++
	return nT.fn(loop, frame)
}

// NTimesDuringLoop registers a OnFrame hook on the loop that is called at most N times, split evenly
// across all the frames the loop may process (Config.MaxFrames).
//
// It always calls `fn` at the very last possible frame. If the loop converges earlier, the last frame
// may not be included: use an OnEnd hook for that.
func NTimesDuringLoop(loop *Loop, n int, name string, priority Priority, fn OnFrameFn) {
	if n <= 0 {
		exceptions.Panicf("NTimesDuringLoop(n=%d): n must be > 0", n)
	}
	nT := &nTimes{
		n:  n,
		fn: fn,
	}
	name = fmt.Sprintf("NTimesDuringLoop(%d): %s", n, name)
	loop.OnFrame(name, priority, nT.onFrame)
}

type everyNFrames struct {
	n, count int
	fn       OnFrameFn
}

func (eN *everyNFrames) onFrame(loop *Loop, frame *Frame) error {
	eN.count++
	if eN.count%eN.n != 0 {
		return nil
	}
	return eN.fn(loop, frame)
}

// EveryNFrames registers a OnFrame hook on the loop that is called every N frames.
//
// Notice that it does not call `fn` at the last frame (except by coincidence).
func EveryNFrames(loop *Loop, n int, name string, priority Priority, fn OnFrameFn) {
	if n <= 0 {
		exceptions.Panicf("EveryNFrames(n=%d): n must be > 0", n)
	}
	eN := &everyNFrames{n: n, fn: fn}
	fullName := fmt.Sprintf("EveryNFrames(%d): %s", n, name)
	loop.OnFrame(fullName, priority, eN.onFrame)
}

type periodicCallback struct {
	last    time.Time
	period  time.Duration
	started bool
	fn      OnFrameFn
}

func (p *periodicCallback) onFrame(loop *Loop, frame *Frame) error {
	if !p.started {
		// Start the clock.
		p.started = true
		p.last = time.Now()
		return nil
	}
	elapsed := time.Since(p.last)
	if elapsed < p.period {
		return nil
	}

	err := p.fn(loop, frame)
	p.last = time.Now()
	return err
}

// PeriodicCallback registers an `OnFrame` hook on the loop that is called every period of time.
// The period counts after the execution of `fn`: this discounts the time to run `fn` (in case it is expensive).
// By other hand, `fn` is not executed exactly at every `period` time.
func PeriodicCallback(loop *Loop, period time.Duration, name string, priority Priority, fn OnFrameFn) {
	p := &periodicCallback{
		period: period,
		fn:     fn,
	}
	fullName := fmt.Sprintf("PeriodicCallback(%s): %s", period, name)
	loop.OnFrame(fullName, priority, p.onFrame)
}
