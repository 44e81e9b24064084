package scheduler

import (
	"slices"

	"github.com/spicaengine/fnscheduler/internal/models"
)

// pendingEvents keeps not-yet-dispatched events in arrival order.
type pendingEvents struct {
	order  []string
	events map[string]models.Event
}

func newPendingEvents() *pendingEvents {
	return &pendingEvents{events: make(map[string]models.Event)}
}

func (p *pendingEvents) Push(e models.Event) {
	p.order = append(p.order, e.ID)
	p.events[e.ID] = e
}

// Requeue puts an event back at its arrival position.
func (p *pendingEvents) Requeue(e models.Event) {
	i := slices.IndexFunc(p.order, func(id string) bool {
		return p.events[id].EnqueuedAt.After(e.EnqueuedAt)
	})
	if i < 0 {
		i = len(p.order)
	}
	p.order = slices.Insert(p.order, i, e.ID)
	p.events[e.ID] = e
}

func (p *pendingEvents) Has(id string) bool {
	_, ok := p.events[id]
	return ok
}

func (p *pendingEvents) Remove(id string) bool {
	if _, ok := p.events[id]; !ok {
		return false
	}
	delete(p.events, id)
	p.order = slices.DeleteFunc(p.order, func(o string) bool { return o == id })
	return true
}

func (p *pendingEvents) Len() int {
	return len(p.order)
}

// List returns a copy so callers may remove while iterating.
func (p *pendingEvents) List() []models.Event {
	out := make([]models.Event, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.events[id])
	}
	return out
}

// Drain empties the set, grouping events by type.
func (p *pendingEvents) Drain() map[models.EventType][]models.Event {
	grouped := make(map[models.EventType][]models.Event)
	for _, e := range p.List() {
		grouped[e.Type] = append(grouped[e.Type], e)
	}
	p.order = nil
	p.events = make(map[string]models.Event)
	return grouped
}
