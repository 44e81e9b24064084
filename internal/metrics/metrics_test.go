package metrics_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/spicaengine/fnscheduler/internal/metrics"
	"github.com/spicaengine/fnscheduler/internal/models"
)

type staticSource models.Status

func (s staticSource) GetStatus() models.Status { return models.Status(s) }

type failingRecorder struct{ calls int }

func (f *failingRecorder) Record(context.Context, models.ScaleAction) error {
	f.calls++
	return errors.New("disk full")
}

var _ = Describe("StatusCollector", func() {
	source := staticSource{
		Total:               4,
		Activated:           3,
		Fresh:               1,
		Busy:                1,
		Targeted:            1,
		QueueSize:           7,
		AverageResponseTime: 250,
		Unit:                models.StatusUnit,
	}

	It("should export the pool snapshot", func() {
		c := metrics.NewStatusCollector(source)

		expected := `
# HELP fnscheduler_queue_size Events waiting for a worker.
# TYPE fnscheduler_queue_size gauge
fnscheduler_queue_size 7
# HELP fnscheduler_response_time_seconds Rolling average time from enqueue to dispatch.
# TYPE fnscheduler_response_time_seconds gauge
fnscheduler_response_time_seconds 0.25
# HELP fnscheduler_workers Live workers by state.
# TYPE fnscheduler_workers gauge
fnscheduler_workers{state="busy"} 1
fnscheduler_workers{state="fresh"} 1
fnscheduler_workers{state="targeted"} 1
# HELP fnscheduler_workers_total All workers known to the scheduler, including starting and dying ones.
# TYPE fnscheduler_workers_total gauge
fnscheduler_workers_total 4
`
		err := testutil.CollectAndCompare(c, strings.NewReader(expected),
			"fnscheduler_queue_size", "fnscheduler_response_time_seconds",
			"fnscheduler_workers", "fnscheduler_workers_total")
		Expect(err).NotTo(HaveOccurred())
	})

	It("should be served by the registry handler", func() {
		reg := metrics.NewRegistry(metrics.NewStatusCollector(source))

		rec := httptest.NewRecorder()
		metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("fnscheduler_workers_activated 3"))
		Expect(rec.Body.String()).To(ContainSubstring("go_goroutines"))
	})
})

var _ = Describe("CountingRecorder", func() {
	up := models.ScaleAction{Direction: models.ScaleUp, Reason: models.ScaleReasonUtilization}

	It("should count actions without a backing recorder", func() {
		r := metrics.NewCountingRecorder(nil)

		Expect(r.Record(context.TODO(), up)).To(Succeed())
		Expect(r.Record(context.TODO(), up)).To(Succeed())

		Expect(testutil.CollectAndCount(r.Collector(), "fnscheduler_scale_actions_total")).To(Equal(1))
		Expect(testutil.ToFloat64(r.Collector())).To(BeEquivalentTo(2))
	})

	It("should forward to the backing recorder and return its error", func() {
		next := &failingRecorder{}
		r := metrics.NewCountingRecorder(next)

		Expect(r.Record(context.TODO(), up)).To(MatchError("disk full"))
		Expect(next.calls).To(Equal(1))
		Expect(testutil.ToFloat64(r.Collector())).To(BeEquivalentTo(1))
	})
})
