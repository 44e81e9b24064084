package enqueuers_test

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/spicaengine/fnscheduler/internal/enqueuers"
	"github.com/spicaengine/fnscheduler/internal/models"
	"github.com/spicaengine/fnscheduler/pkg/eventqueue"
)

type fakeIngress struct {
	events    []models.Event
	cancelled []string
	err       error
}

func (f *fakeIngress) Enqueue(e models.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeIngress) Cancel(id string) error {
	f.cancelled = append(f.cancelled, id)
	return nil
}

var _ = Describe("System", func() {
	var (
		ingress  *fakeIngress
		payloads *eventqueue.PayloadQueue
		system   *enqueuers.System
		target   = models.Target{ID: "fn-1", Handler: "index.handler"}
	)

	BeforeEach(func() {
		ingress = &fakeIngress{}
		payloads = eventqueue.NewPayloadQueue(models.EventTypeSystem)
		system = enqueuers.NewSystem(ingress, payloads)
	})

	It("should be the system enqueuer", func() {
		Expect(system.Type()).To(Equal(models.EventTypeSystem))
	})

	It("should enqueue a system event with its payload", func() {
		id, err := system.Submit(target, json.RawMessage(`{"a":1}`))

		Expect(err).NotTo(HaveOccurred())
		Expect(id).NotTo(BeEmpty())
		Expect(ingress.events).To(HaveLen(1))
		Expect(ingress.events[0].ID).To(Equal(id))
		Expect(ingress.events[0].Type).To(Equal(models.EventTypeSystem))
		Expect(ingress.events[0].Target).To(Equal(target))
		Expect(payloads.Len()).To(Equal(1))
	})

	It("should drop the payload when the ingress refuses the event", func() {
		ingress.err = errors.New("closed")

		_, err := system.Submit(target, json.RawMessage(`{}`))

		Expect(err).To(MatchError("closed"))
		Expect(payloads.Len()).To(BeZero())
	})

	It("should forward cancellations", func() {
		Expect(system.Cancel("ev-1")).To(Succeed())
		Expect(ingress.cancelled).To(ConsistOf("ev-1"))
	})

	It("should release payloads of drained events", func() {
		id, err := system.Submit(target, nil)
		Expect(err).NotTo(HaveOccurred())

		err = system.OnEventsAreDrained(context.TODO(), []models.Event{{ID: id, Type: models.EventTypeSystem}})
		Expect(err).NotTo(HaveOccurred())
		Expect(payloads.Len()).To(BeZero())
	})
})
