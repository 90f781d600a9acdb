package thinking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thinkchat/model"
)

// fakeClock drives a Controller in virtual time by firing the ticks it
// requests in deadline order.
type fakeClock struct {
	now    time.Duration
	timers []fakeTimer
}

type fakeTimer struct {
	at  time.Duration
	gen uint64
}

func (f *fakeClock) arm(t *Tick) {
	if t != nil {
		f.timers = append(f.timers, fakeTimer{at: f.now + t.After, gen: t.Gen})
	}
}

// advance moves time forward by d, firing every due timer. observe is
// called after each fired timer with the time it fired at.
func (f *fakeClock) advance(c *Controller, d time.Duration, observe func(at time.Duration)) {
	target := f.now + d
	for {
		idx := -1
		for i, tm := range f.timers {
			if tm.at <= target && (idx < 0 || tm.at < f.timers[idx].at) {
				idx = i
			}
		}
		if idx < 0 {
			break
		}
		tm := f.timers[idx]
		f.timers = append(f.timers[:idx], f.timers[idx+1:]...)
		f.now = tm.at
		f.arm(c.OnTick(tm.gen))
		if observe != nil {
			observe(f.now)
		}
	}
	f.now = target
}

// shown records every step that became current, with the time it appeared.
type shown struct {
	c     *Controller
	seq   uint64
	steps []string
	times []time.Duration
}

func (s *shown) observe(at time.Duration) {
	st := s.c.State()
	if st.Seq != s.seq {
		s.seq = st.Seq
		s.steps = append(s.steps, st.Current.Text)
		s.times = append(s.times, at)
	}
}

func step(text string) model.Step {
	return model.Step{Text: text, Explanation: "because " + text}
}

func TestQueueIsFIFO(t *testing.T) {
	var q Queue
	in := []string{"a", "b", "a", "c", "c"}
	for _, s := range in {
		q.Enqueue(step(s))
	}
	require.Equal(t, len(in), q.Len())

	var out []string
	for range in {
		s, ok := q.DequeueNext()
		require.True(t, ok)
		out = append(out, s.Text)
	}
	assert.Equal(t, in, out)

	_, ok := q.DequeueNext()
	assert.False(t, ok)
}

func TestScenarioTwoStepsThenStop(t *testing.T) {
	c := NewController(500*time.Millisecond, 0)
	clk := &fakeClock{}

	c.Enqueue(model.Step{Text: "Analyze", Explanation: "..."})
	c.Enqueue(model.Step{Text: "Plan", Explanation: "..."})
	clk.arm(c.Start())

	st := c.State()
	assert.Equal(t, "Analyze", st.Current.Text)
	assert.True(t, st.Visible)

	clk.arm(c.Stop())

	clk.advance(c, 500*time.Millisecond, nil)
	assert.Equal(t, "Plan", c.State().Current.Text)
	assert.Equal(t, Draining, c.State().Phase)

	clk.advance(c, 500*time.Millisecond, nil)
	st = c.State()
	assert.Equal(t, Idle, st.Phase)
	assert.False(t, st.Visible)
	assert.False(t, st.HasCurrent)
	assert.Empty(t, st.Current.Text)
}

func TestPacingNeverFasterThanInterval(t *testing.T) {
	const interval = time.Second
	c := NewController(interval, 0)
	clk := &fakeClock{}
	rec := &shown{c: c}

	for _, s := range []string{"s1", "s2", "s3"} {
		c.Enqueue(step(s))
	}
	clk.arm(c.Start())
	rec.observe(clk.now)

	// Arrivals at irregular offsets, some while a step is held and some
	// while the controller is idle-waiting.
	arrivals := []struct {
		after time.Duration
		text  string
	}{
		{300 * time.Millisecond, "s4"},
		{4 * time.Second, "s5"},
		{100 * time.Millisecond, "s6"},
		{2500 * time.Millisecond, "s7"},
	}
	for _, a := range arrivals {
		clk.advance(c, a.after, rec.observe)
		clk.arm(c.Enqueue(step(a.text)))
		rec.observe(clk.now)
	}
	clk.arm(c.Stop())
	clk.advance(c, 10*time.Second, rec.observe)

	assert.Equal(t, []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7"}, rec.steps)
	for i := 1; i < len(rec.times); i++ {
		assert.GreaterOrEqual(t, rec.times[i]-rec.times[i-1], interval,
			"step %d shown %v after step %d", i, rec.times[i]-rec.times[i-1], i-1)
	}
	assert.Equal(t, Idle, c.State().Phase)
}

func TestStopFlushesEveryQueuedStep(t *testing.T) {
	c := NewController(200*time.Millisecond, 0)
	clk := &fakeClock{}
	rec := &shown{c: c}

	clk.arm(c.Start())
	for _, s := range []string{"a", "b", "c", "d"} {
		clk.arm(c.Enqueue(step(s)))
		rec.observe(clk.now)
	}
	clk.arm(c.Stop())
	assert.True(t, c.State().StopRequested)

	clk.advance(c, 5*time.Second, rec.observe)

	assert.Equal(t, []string{"a", "b", "c", "d"}, rec.steps)
	assert.Equal(t, 600*time.Millisecond, rec.times[3])
	st := c.State()
	assert.Equal(t, Idle, st.Phase)
	assert.False(t, st.Visible)
	assert.Zero(t, st.Queued)
}

func TestStopWhileIdleWaitingFinishesImmediately(t *testing.T) {
	c := NewController(time.Second, 0)
	clk := &fakeClock{}

	clk.arm(c.Start())
	clk.arm(c.Enqueue(step("only")))
	clk.advance(c, 3*time.Second, nil)

	// The hold timer already elapsed, so there is nothing left to drain.
	assert.Equal(t, "only", c.State().Current.Text)
	assert.Nil(t, c.Stop())
	assert.Equal(t, Idle, c.State().Phase)
	assert.False(t, c.State().Visible)
}

func TestEnqueueWakesIdleController(t *testing.T) {
	c := NewController(time.Second, 0)
	clk := &fakeClock{}

	clk.arm(c.Start())
	assert.True(t, c.State().Visible)
	assert.False(t, c.State().HasCurrent)
	assert.Empty(t, clk.timers, "no timer while nothing is queued")

	clk.advance(c, 5*time.Second, nil)
	tick := c.Enqueue(step("late"))
	require.NotNil(t, tick)
	assert.Equal(t, time.Second, tick.After)
	assert.Equal(t, "late", c.State().Current.Text)
}

func TestStartIsNoOpWhileThinking(t *testing.T) {
	c := NewController(time.Second, 0)
	c.Start()
	c.Enqueue(step("first"))
	c.Enqueue(step("second"))

	assert.Nil(t, c.Start())
	st := c.State()
	assert.Equal(t, "first", st.Current.Text)
	assert.Equal(t, 1, st.Queued)
}

func TestRestartDiscardsQueueAndStaleTicks(t *testing.T) {
	c := NewController(time.Second, 0)
	first := c.Start()
	assert.Nil(t, first)
	tick := c.Enqueue(step("old"))
	c.Enqueue(step("old-queued"))

	assert.Nil(t, c.Restart())
	st := c.State()
	assert.False(t, st.HasCurrent)
	assert.Zero(t, st.Queued)
	assert.Equal(t, Thinking, st.Phase)

	// The hold timer armed before the restart must not advance anything.
	assert.Nil(t, c.OnTick(tick.Gen))
	assert.False(t, c.State().HasCurrent)
}

func TestCancelIsImmediate(t *testing.T) {
	c := NewController(time.Second, 0)
	c.Start()
	tick := c.Enqueue(step("a"))
	c.Enqueue(step("b"))
	c.Enqueue(step("c"))

	c.Cancel()
	st := c.State()
	assert.Equal(t, Idle, st.Phase)
	assert.False(t, st.Visible)
	assert.False(t, st.HasCurrent)
	assert.Zero(t, st.Queued)
	assert.True(t, st.StopRequested)

	assert.Nil(t, c.OnTick(tick.Gen))
	assert.Nil(t, c.Start(), "a cancelled controller stays down")
	assert.Nil(t, c.Stop())
}

func TestStopIsTerminal(t *testing.T) {
	c := NewController(time.Second, 0)
	c.Start()
	c.Enqueue(step("a"))
	c.Stop()
	assert.Nil(t, c.Stop())
	assert.Nil(t, c.Restart())
	assert.True(t, c.State().StopRequested)
}

func TestSettleDelayHidesBeforeClearing(t *testing.T) {
	c := NewController(500*time.Millisecond, time.Second)
	clk := &fakeClock{}

	clk.arm(c.Start())
	clk.arm(c.Enqueue(step("last")))
	clk.arm(c.Stop())

	clk.advance(c, 500*time.Millisecond, nil)
	st := c.State()
	assert.False(t, st.Visible)
	assert.Equal(t, "last", st.Current.Text, "kept during the settle delay")

	clk.advance(c, time.Second, nil)
	st = c.State()
	assert.Equal(t, Idle, st.Phase)
	assert.False(t, st.HasCurrent)
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{Idle, "idle"},
		{Thinking, "thinking"},
		{Draining, "draining"},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
}
