// Package profile provides a simple way to generate pprof compatible profiles of
// the elliptic curve operations recorded through an op queue.
//
// Since an op queue is not thread safe and operates in a single go-routine, this
// package is also NOT thread safe and is meant to be called in the same go-routine.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/consensys/goblin/logger"
	"github.com/google/pprof/profile"
)

var (
	sessions       []*Profile // active sessions
	activeSessions uint32
)

// Profile represents an active op queue profiling session.
type Profile struct {
	// defaults to ./goblin.pprof
	// if blank, profile is not written to disk
	filePath string

	// actual pprof profile struct
	// details on pprof format: https://github.com/google/pprof/blob/main/proto/README.md
	pprof profile.Profile

	functions map[string]*profile.Function
	locations map[uint64]*profile.Location

	onceSetName sync.Once

	chDone chan struct{}
}

// Option defines configuration Options for Profile.
type Option func(*Profile)

// WithPath controls the profile destination file. If blank, profile is not written.
//
// Defaults to ./goblin.pprof.
func WithPath(path string) Option {
	return func(p *Profile) {
		p.filePath = path
	}
}

// WithNoOutput indicates that the profile is not going to be written to disk.
//
// This is equivalent to WithPath("")
func WithNoOutput() Option {
	return func(p *Profile) {
		p.filePath = ""
	}
}

// Start creates a new active profiling session. When Stop() is called, this session
// is removed from active profiling sessions and may be serialized to disk as a
// pprof compatible file (see WithPath option).
//
// All calls to profile.Start() and Stop() are meant to be executed in the same go
// routine that drives the op queue.
//
// It is allowed to create multiple overlapping profiling sessions.
func Start(options ...Option) *Profile {

	// start the worker first time a profiling session starts.
	onceInit.Do(func() {
		go worker()
	})

	p := Profile{
		functions: make(map[string]*profile.Function),
		locations: make(map[uint64]*profile.Location),
		filePath:  filepath.Join(".", "goblin.pprof"),
		chDone:    make(chan struct{}),
	}
	p.pprof.SampleType = []*profile.ValueType{{
		Type: "ecc-ops",
		Unit: "count",
	}}

	for _, option := range options {
		option(&p)
	}

	log := logger.Logger()
	if p.filePath == "" {
		log.Warn().Msg("goblin profiling enabled [not writing to disk]")
	} else {
		log.Info().Str("path", p.filePath).Msg("goblin profiling enabled")
	}

	// add the session to active sessions
	chCommands <- command{p: &p}
	atomic.AddUint32(&activeSessions, 1)

	return &p
}

// Stop removes the profile from active session and may write the pprof file to disk. See WithPath option.
func (p *Profile) Stop() {
	log := logger.Logger()

	if p.chDone == nil {
		log.Fatal().Msg("goblin profile stopped multiple times")
	}

	// ask worker routine to remove ourselves from the active sessions
	chCommands <- command{p: p, remove: true}

	// wait for worker routine to remove us.
	<-p.chDone
	p.chDone = nil

	// if filePath is set, serialize profile to disk in pprof format
	if p.filePath != "" {
		f, err := os.Create(p.filePath)
		if err != nil {
			log.Fatal().Err(err).Msg("could not create goblin profile")
		}
		if err := p.pprof.Write(f); err != nil {
			log.Error().Err(err).Msg("writing profile")
		}
		f.Close()
		log.Info().Str("path", p.filePath).Msg("goblin profiling disabled")
	} else {
		log.Warn().Msg("goblin profiling disabled [not writing to disk]")
	}

}

// NbOps return number of collected samples (ecc ops) by the profile session
func (p *Profile) NbOps() int {
	return len(p.pprof.Sample)
}

// Top return a similar output than pprof top command
func (p *Profile) Top() string {
	flat := make(map[string]int64)
	cum := make(map[string]int64)
	var total int64

	for _, s := range p.pprof.Sample {
		if len(s.Location) == 0 {
			continue
		}
		v := s.Value[0]
		total += v
		flat[functionName(s.Location[0])] += v

		seen := make(map[string]struct{})
		for _, loc := range s.Location {
			name := functionName(loc)
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			cum[name] += v
		}
	}

	names := make([]string, 0, len(cum))
	for name := range cum {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if flat[names[i]] != flat[names[j]] {
			return flat[names[i]] > flat[names[j]]
		}
		if cum[names[i]] != cum[names[j]] {
			return cum[names[i]] > cum[names[j]]
		}
		return names[i] < names[j]
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Showing nodes accounting for %d %s\n", total, p.pprof.SampleType[0].Type)
	fmt.Fprintf(&sb, "%10s %8s %10s   %s\n", "flat", "flat%", "cum", "name")
	for _, name := range names {
		var flatPct float64
		if total != 0 {
			flatPct = 100 * float64(flat[name]) / float64(total)
		}
		fmt.Fprintf(&sb, "%10d %7.2f%% %10d   %s\n", flat[name], flatPct, cum[name], name)
	}
	return sb.String()
}

func functionName(loc *profile.Location) string {
	if len(loc.Line) == 0 {
		return "unknown"
	}
	return loc.Line[0].Function.Name
}

// RecordOp add a sample (with count == 1) to all the active profiling sessions.
func RecordOp() {
	if n := atomic.LoadUint32(&activeSessions); n == 0 {
		return // do nothing, no active session.
	}

	// collect the stack and send it async to the worker
	pc := make([]uintptr, 20)
	n := runtime.Callers(3, pc)
	if n == 0 {
		return
	}
	pc = pc[:n]
	chCommands <- command{pc: pc}
}

func (p *Profile) getLocation(frame *runtime.Frame) *profile.Location {
	l, ok := p.locations[uint64(frame.PC)]
	if !ok {
		// first let's see if we have the function.
		f, ok := p.functions[frame.File+frame.Function]
		if !ok {
			fe := strings.Split(frame.Function, "/")
			fName := fe[len(fe)-1]
			f = &profile.Function{
				ID:         uint64(len(p.functions) + 1),
				Name:       fName,
				SystemName: frame.Function,
				Filename:   frame.File,
			}

			p.functions[frame.File+frame.Function] = f
			p.pprof.Function = append(p.pprof.Function, f)
		}

		l = &profile.Location{
			ID:   uint64(len(p.locations) + 1),
			Line: []profile.Line{{Function: f, Line: int64(frame.Line)}},
		}
		p.locations[uint64(frame.PC)] = l
		p.pprof.Location = append(p.pprof.Location, l)
	}

	return l
}
