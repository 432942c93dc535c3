package esexec

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultKillTimeoutTicks is the number of scan ticks a WAITING app is
// given to honor a control request before the scanner times it out.
const DefaultKillTimeoutTicks = 5

// Scanner drives the control-request state machine on a fixed cadence,
// backed by robfig/cron's ConstantDelaySchedule so the tick period is
// configured the same way any other cron-scheduled job in this package
// would be.
type Scanner struct {
	creator    *Creator
	reg        *Registry
	scanRate   time.Duration
	killTicks  uint32
	commandCtr func() uint32

	mu    sync.Mutex
	state ScannerState

	cronSched *cron.Cron
	entryID   cron.EntryID
	lastTick  time.Time
}

// NewScanner builds a Scanner over creator/reg, ticking every scanRate
// with a kill timeout of killTicks ticks. commandCtr reports the
// current monotonic command counter maintained by the control-request
// ingress (see spec.md section 5's command-counter wake property); pass
// nil to run without command-counter wake, in which case the fast-skip
// shortcut depends only on pending changes and the background timer.
func NewScanner(creator *Creator, reg *Registry, scanRate time.Duration, killTicks uint32, commandCtr func() uint32) *Scanner {
	if killTicks == 0 {
		killTicks = DefaultKillTimeoutTicks
	}
	return &Scanner{
		creator:    creator,
		reg:        reg,
		scanRate:   scanRate,
		killTicks:  killTicks,
		commandCtr: commandCtr,
		state:      ScannerState{BackgroundTimer: scanRate},
	}
}

// scannerCronJob adapts Scanner.Tick to cron.Job, measuring wall-clock
// elapsed time between invocations the way the original background
// task receives ElapsedTime as an argument.
type scannerCronJob struct {
	s   *Scanner
	ctx context.Context
}

func (j scannerCronJob) Run() {
	j.s.mu.Lock()
	now := time.Now()
	var elapsed time.Duration
	if !j.s.lastTick.IsZero() {
		elapsed = now.Sub(j.s.lastTick)
	} else {
		elapsed = j.s.scanRate
	}
	j.s.lastTick = now
	j.s.mu.Unlock()

	j.s.Tick(j.ctx, elapsed)
}

// Start begins ticking the scanner on its configured cadence using a
// dedicated cron.Cron instance with a ConstantDelaySchedule. Stop tears
// it down.
func (s *Scanner) Start(ctx context.Context) {
	s.cronSched = cron.New()
	schedule := cron.ConstantDelaySchedule{Delay: s.scanRate}
	s.entryID = s.cronSched.Schedule(schedule, scannerCronJob{s: s, ctx: ctx})
	s.cronSched.Start()
}

// Stop halts the scanner's cron-driven ticking and waits for any
// in-flight tick to finish.
func (s *Scanner) Stop() {
	if s.cronSched == nil {
		return
	}
	<-s.cronSched.Stop().Done()
}

// Tick runs one scan pass. elapsed is the wall-clock time since the
// previous tick. It returns true when at least one app had a pending
// state change this pass, matching the original scanner's return value
// used to shorten the caller's next wait.
func (s *Scanner) Tick(ctx context.Context, elapsed time.Duration) bool {
	s.mu.Lock()
	currentCount := uint32(0)
	if s.commandCtr != nil {
		currentCount = s.commandCtr()
	}
	noCommandChange := s.commandCtr == nil || currentCount == s.state.LastScanCommandCount
	if s.state.PendingAppStateChanges == 0 && noCommandChange && s.state.BackgroundTimer > elapsed {
		s.state.BackgroundTimer -= elapsed
		s.mu.Unlock()
		return false
	}

	s.state.BackgroundTimer = s.scanRate
	s.state.LastScanCommandCount = currentCount
	s.state.PendingAppStateChanges = 0
	s.mu.Unlock()

	pending := s.scanPass(ctx, elapsed)

	s.mu.Lock()
	s.state.PendingAppStateChanges = pending
	s.mu.Unlock()

	return pending != 0
}

// scanPass visits every EXTERNAL app slot in index order, advancing
// WAITING timers and dispatching expired ones. The registry lock is
// dropped around ProcessControlRequest because that call recurses into
// AppCreate; no slot state read before the drop is reused after it, and
// each slot is read afresh under the lock at the start of its visit.
func (s *Scanner) scanPass(ctx context.Context, elapsed time.Duration) uint32 {
	var pending uint32
	elapsedMillis := uint32(elapsed / time.Millisecond)

	s.reg.mu.Lock()
	n := len(s.reg.apps)
	s.reg.mu.Unlock()

	for slot := 0; slot < n; slot++ {
		s.reg.mu.Lock()
		rec := s.reg.apps[slot]
		if rec.Type != AppTypeExternal || rec.State == AppStateUndefined {
			s.reg.mu.Unlock()
			continue
		}

		if rec.State > AppStateRunning {
			pending++
			expired := rec.ControlReq.TimerMillis <= elapsedMillis
			if expired {
				s.reg.apps[slot].ControlReq.TimerMillis = 0
			} else {
				s.reg.apps[slot].ControlReq.TimerMillis -= elapsedMillis
			}
			s.reg.mu.Unlock()

			if expired {
				if err := s.creator.ProcessControlRequest(ctx, slot); err != nil {
					s.creator.logger.Warn("control request processing reported an error", "slot", slot, "error", err)
				}
			}
			continue
		}

		if rec.State == AppStateRunning && rec.ControlReq.Request > ControlRequestAppRun {
			s.reg.apps[slot].State = AppStateWaiting
			s.reg.apps[slot].ControlReq.TimerMillis = s.killTicks * uint32(s.scanRate/time.Millisecond)
		}
		s.reg.mu.Unlock()
	}

	return pending
}
