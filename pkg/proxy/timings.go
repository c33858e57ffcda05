package proxy

import (
	"time"

	"github.com/quietloop/airgate/pkg/capture"
)

// computeTimings implements the §4.7 step 10 formulas. tRequestSent or
// tFirstByte may be zero (e.g. the upstream call failed before any
// response bytes arrived); the fallbacks mirror the spec's `||`
// substitution rules exactly.
func computeTimings(t0, tRequestSent, tFirstByte, tEnd time.Time) capture.Timings {
	sentOrFirstByte := tRequestSent
	if sentOrFirstByte.IsZero() {
		sentOrFirstByte = tFirstByte
	}
	sentOrT0 := tRequestSent
	if sentOrT0.IsZero() {
		sentOrT0 = t0
	}

	var sendMS, waitMS, receiveMS int64
	if !sentOrFirstByte.IsZero() {
		sendMS = nonNegativeMillis(sentOrFirstByte.Sub(t0))
	}
	if !tFirstByte.IsZero() {
		waitMS = nonNegativeMillis(tFirstByte.Sub(sentOrT0))
		receiveMS = nonNegativeMillis(tEnd.Sub(tFirstByte))
	}
	totalMS := nonNegativeMillis(tEnd.Sub(t0))

	return capture.Timings{
		SendMS:    sendMS,
		WaitMS:    waitMS,
		ReceiveMS: receiveMS,
		TotalMS:   totalMS,
	}
}

func nonNegativeMillis(d time.Duration) int64 {
	ms := d.Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}
