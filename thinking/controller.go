package thinking

import (
	"time"

	"thinkchat/config"
	"thinkchat/model"
)

type Phase int

const (
	Idle Phase = iota
	Thinking
	Draining
)

func (p Phase) String() string {
	switch p {
	case Thinking:
		return "thinking"
	case Draining:
		return "draining"
	default:
		return "idle"
	}
}

// Tick asks the caller to call OnTick(Gen) once After has elapsed.
type Tick struct {
	Gen   uint64
	After time.Duration
}

// State is a read-only snapshot for rendering.
type State struct {
	Phase         Phase
	Visible       bool
	Current       model.Step
	HasCurrent    bool
	Seq           uint64 // increments each time a step becomes current
	Queued        int
	StopRequested bool
}

// Draining reports whether the controller is flushing steps after Stop.
func (s State) Draining() bool {
	return s.Phase == Draining
}

// Controller shows queued steps one per interval. Each assistant message
// owns its own Controller; instances are never shared between turns.
//
// After a step becomes current exactly one hold timer is armed. When it
// fires the next queued step is shown and the timer re-armed; if the queue
// is empty the controller waits without a timer and the next Enqueue shows
// its step immediately. Consecutive steps are therefore never closer than
// the interval and none is skipped.
type Controller struct {
	interval time.Duration
	settle   time.Duration

	queue Queue
	phase Phase

	visible       bool
	current       model.Step
	hasCurrent    bool
	stopRequested bool

	armed    bool // hold timer for the current step pending
	settling bool // hidden, waiting out the settle delay before clearing
	gen      uint64
	seq      uint64
}

// NewController creates an idle controller. settle is how long the last
// step is kept (hidden) after draining completes; zero clears immediately.
func NewController(interval, settle time.Duration) *Controller {
	return &Controller{interval: interval, settle: settle}
}

// Start begins pacing. It is a no-op while Thinking or Draining and after
// Stop or Cancel. Steps enqueued before Start are kept.
func (c *Controller) Start() *Tick {
	if c.phase != Idle || c.stopRequested {
		return nil
	}
	return c.begin()
}

// Restart discards queued steps and display state and begins pacing again.
// It has no effect once Stop or Cancel has been called.
func (c *Controller) Restart() *Tick {
	if c.stopRequested {
		return nil
	}
	c.queue.Reset()
	return c.begin()
}

func (c *Controller) begin() *Tick {
	c.gen++
	c.current = model.Step{}
	c.hasCurrent = false
	c.armed = false
	c.settling = false
	c.phase = Thinking
	c.visible = true
	return c.drain()
}

// Enqueue adds a step. If pacing is active and no hold timer is armed the
// step is shown right away.
func (c *Controller) Enqueue(step model.Step) *Tick {
	c.queue.Enqueue(step)
	if c.phase == Idle || c.armed {
		return nil
	}
	if c.settling {
		// A late step revives the display; the pending settle tick is stale.
		c.settling = false
		c.gen++
		c.visible = true
	}
	return c.drain()
}

// OnTick handles an elapsed timer. Ticks from an earlier generation are
// ignored.
func (c *Controller) OnTick(gen uint64) *Tick {
	if gen != c.gen || c.phase == Idle {
		return nil
	}
	if c.settling {
		c.settling = false
		c.clear()
		return nil
	}
	c.armed = false
	return c.drain()
}

// Stop requests a graceful finish: every queued step is still shown for a
// full interval before the controller goes idle and hides.
func (c *Controller) Stop() *Tick {
	if c.stopRequested {
		return nil
	}
	c.stopRequested = true
	if c.phase != Thinking {
		return nil
	}
	c.phase = Draining
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Thinking] stop requested with %d step(s) queued", c.queue.Len())
	}
	if c.armed {
		return nil
	}
	return c.drain()
}

// Cancel tears the controller down immediately without draining.
func (c *Controller) Cancel() {
	c.stopRequested = true
	c.gen++
	c.queue.Reset()
	c.settling = false
	c.clear()
}

func (c *Controller) drain() *Tick {
	step, ok := c.queue.DequeueNext()
	if !ok {
		if c.phase == Draining {
			return c.finish()
		}
		return nil
	}
	c.current = step
	c.hasCurrent = true
	c.seq++
	c.armed = true
	return &Tick{Gen: c.gen, After: c.interval}
}

func (c *Controller) finish() *Tick {
	c.visible = false
	if c.settle > 0 {
		c.settling = true
		return &Tick{Gen: c.gen, After: c.settle}
	}
	c.clear()
	return nil
}

func (c *Controller) clear() {
	c.phase = Idle
	c.visible = false
	c.current = model.Step{}
	c.hasCurrent = false
	c.armed = false
}

func (c *Controller) State() State {
	return State{
		Phase:         c.phase,
		Visible:       c.visible,
		Current:       c.current,
		HasCurrent:    c.hasCurrent,
		Seq:           c.seq,
		Queued:        c.queue.Len(),
		StopRequested: c.stopRequested,
	}
}
