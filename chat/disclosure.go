package chat

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type explanationKey struct {
	messageID string
	index     int
}

// Disclosure tracks which step lists and step explanations the user has
// expanded. Expanding a list reveals its steps one at a time, stagger
// apart. Collapsing forgets everything recorded for that message.
type Disclosure struct {
	stagger time.Duration

	expanded     map[string]bool
	explanations map[explanationKey]bool
	revealed     map[string]int
	total        map[string]int
	complete     map[string]bool
	gens         map[string]uint64
}

func NewDisclosure(stagger time.Duration) *Disclosure {
	d := &Disclosure{stagger: stagger}
	d.Reset()
	return d
}

// Reset collapses everything.
func (d *Disclosure) Reset() {
	d.expanded = make(map[string]bool)
	d.explanations = make(map[explanationKey]bool)
	d.revealed = make(map[string]int)
	d.total = make(map[string]int)
	d.complete = make(map[string]bool)
	if d.gens == nil {
		d.gens = make(map[string]uint64)
	}
	// Generations survive a reset so reveal ticks already in flight are stale.
	for id := range d.gens {
		d.gens[id]++
	}
}

func (d *Disclosure) SetStagger(stagger time.Duration) {
	d.stagger = stagger
}

// ToggleSteps expands or collapses the step list of a message holding
// steps steps. Expanding returns the command driving the reveal.
func (d *Disclosure) ToggleSteps(id string, steps int) tea.Cmd {
	d.gens[id]++

	if d.expanded[id] {
		delete(d.expanded, id)
		delete(d.revealed, id)
		delete(d.total, id)
		delete(d.complete, id)
		for k := range d.explanations {
			if k.messageID == id {
				delete(d.explanations, k)
			}
		}
		return nil
	}

	d.expanded[id] = true
	d.total[id] = steps
	d.revealed[id] = 0
	return d.revealNext(id)
}

// ToggleExplanation flips the explanation of one step. It has no effect
// while the step list is collapsed.
func (d *Disclosure) ToggleExplanation(id string, index int) {
	if !d.expanded[id] || index < 0 {
		return
	}
	k := explanationKey{id, index}
	if d.explanations[k] {
		delete(d.explanations, k)
		return
	}
	d.explanations[k] = true
}

// OnReveal advances a reveal. Ticks from a collapsed or re-expanded list
// are ignored.
func (d *Disclosure) OnReveal(msg RevealTickMsg) tea.Cmd {
	if msg.Gen != d.gens[msg.MessageID] || !d.expanded[msg.MessageID] {
		return nil
	}
	return d.revealNext(msg.MessageID)
}

func (d *Disclosure) revealNext(id string) tea.Cmd {
	if d.revealed[id] < d.total[id] {
		d.revealed[id]++
	}
	if d.revealed[id] >= d.total[id] {
		d.complete[id] = true
		return nil
	}

	gen := d.gens[id]
	return tea.Tick(d.stagger, func(time.Time) tea.Msg {
		return RevealTickMsg{MessageID: id, Gen: gen}
	})
}

func (d *Disclosure) Expanded(id string) bool {
	return d.expanded[id]
}

func (d *Disclosure) ExplanationOpen(id string, index int) bool {
	return d.explanations[explanationKey{id, index}]
}

// RevealComplete reports whether the initial reveal of an expanded list
// has finished.
func (d *Disclosure) RevealComplete(id string) bool {
	return d.complete[id]
}

// Visible returns how many of steps steps should be drawn for id. Steps
// appended after the reveal completed are shown at once.
func (d *Disclosure) Visible(id string, steps int) int {
	if !d.expanded[id] {
		return 0
	}
	if d.complete[id] {
		return steps
	}
	return min(d.revealed[id], steps)
}
