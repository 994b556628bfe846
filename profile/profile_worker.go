package profile

import (
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/google/pprof/profile"
)

// since we are assuming usage of this package from a single go routine, this channel only has
// one "producer", and one "consumer". it's purpose is to guarantee the order of execution of
// adding / removing a profiling session and sampling events, while enabling the caller
// (the op queue go routine) to sample the events asynchronously.
var chCommands = make(chan command, 100)
var onceInit sync.Once

type command struct {
	p      *Profile
	pc     []uintptr
	remove bool
}

func worker() {
	for c := range chCommands {
		if c.p != nil {
			if c.remove {
				for i := 0; i < len(sessions); i++ {
					if sessions[i] == c.p {
						sessions[i] = sessions[len(sessions)-1]
						sessions = sessions[:len(sessions)-1]
						break
					}
				}
				close(c.p.chDone)

				// decrement active sessions
				atomic.AddUint32(&activeSessions, ^uint32(0))
			} else {
				sessions = append(sessions, c.p)
			}
			continue
		}

		// it's a sampling of event (ecc op)
		collectSample(c.pc)
	}

}

// collectSample must be called from the worker go routine
func collectSample(pc []uintptr) {
	// for each session we may have a distinct sample, since ids of functions and locations may mismatch
	samples := make([]*profile.Sample, len(sessions))
	for i := range samples {
		samples[i] = &profile.Sample{Value: []int64{1}} // for now, we just collect new ops count
	}

	var entry string

	frames := runtime.CallersFrames(pc)
	// Loop to get frames.
	// A fixed number of pcs can expand to an indefinite number of Frames.
	for {
		frame, more := frames.Next()

		if strings.HasPrefix(frame.Function, "runtime.") || strings.HasPrefix(frame.Function, "testing.") {
			// we stop; previous frame was the entry point driving the op queue
			break
		}

		if strings.HasSuffix(frame.Function, ".func1") {
			// anonymous functions pollute the trace
			continue
		}

		// filter op queue private functions
		if filterQueuePrivateFunc(frame.Function) {
			continue
		}

		// generics display poorly in pprof
		// https://github.com/golang/go/issues/54105
		frame.Function = strings.ReplaceAll(frame.Function, "[...]", "[T]")

		entry = frame.Function
		for i := range samples {
			samples[i].Location = append(samples[i].Location, sessions[i].getLocation(&frame))
		}

		if !more {
			break
		}
	}

	if entry != "" {
		for i := range sessions {
			sessions[i].onceSetName.Do(func() {
				// once per profile session, we set the "name of the binary" to the
				// outermost function driving the op queue.
				fe := strings.Split(entry, "/")
				sessions[i].pprof.Mapping = []*profile.Mapping{
					{ID: 1, File: fe[len(fe)-1]},
				}
			})
		}
	}

	for i := range sessions {
		sessions[i].pprof.Sample = append(sessions[i].pprof.Sample, samples[i])
	}
}

func filterQueuePrivateFunc(f string) bool {
	const queuePrefix = "github.com/consensys/goblin/opqueue.(*Queue)."
	if strings.HasPrefix(f, queuePrefix) && len(f) > len(queuePrefix) {
		// filter op queue private APIs from the trace.
		c := []rune(f)[len(queuePrefix)]
		if unicode.IsLower(c) {
			return true
		}
	}
	return false
}
