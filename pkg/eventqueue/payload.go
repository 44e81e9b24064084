package eventqueue

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/spicaengine/fnscheduler/internal/models"
)

// PayloadQueue keeps an opaque payload per event that the worker fetches with
// GET /queues/<type>/events/:id/payload after receiving the event.
type PayloadQueue struct {
	eventType models.EventType
	mu        sync.Mutex
	payloads  map[string]json.RawMessage
}

func NewPayloadQueue(t models.EventType) *PayloadQueue {
	return &PayloadQueue{
		eventType: t,
		payloads:  make(map[string]json.RawMessage),
	}
}

func (p *PayloadQueue) Type() models.EventType {
	return p.eventType
}

// Put stores the payload of an event about to be enqueued.
func (p *PayloadQueue) Put(eventID string, payload json.RawMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads[eventID] = payload
}

func (p *PayloadQueue) Enqueue(e models.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.payloads[e.ID]; !ok {
		p.payloads[e.ID] = nil
	}
}

func (p *PayloadQueue) Dequeue(eventID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.payloads, eventID)
}

func (p *PayloadQueue) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payloads)
}

func (p *PayloadQueue) Register(r gin.IRoutes) {
	r.GET("/events/:id/payload", p.getPayload)
}

func (p *PayloadQueue) getPayload(c *gin.Context) {
	p.mu.Lock()
	payload, ok := p.payloads[c.Param("id")]
	p.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	if payload == nil {
		payload = json.RawMessage("null")
	}
	c.Data(http.StatusOK, "application/json", payload)
}
