package store_test

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/spicaengine/fnscheduler/internal/models"
	"github.com/spicaengine/fnscheduler/internal/store"
	"github.com/spicaengine/fnscheduler/internal/store/migrations"
	srvErrors "github.com/spicaengine/fnscheduler/pkg/errors"
)

var _ = Describe("ScalingStore", func() {
	var (
		ctx  context.Context
		s    *store.Store
		db   *sql.DB
		base time.Time
	)

	action := func(i int, dir models.ScaleDirection, reason models.ScaleReason) models.ScaleAction {
		return models.ScaleAction{
			Direction:   dir,
			Reason:      reason,
			WorkerID:    fmt.Sprintf("w-%d", i),
			WorkerCount: i,
			Utilization: 0.5,
			At:          base.Add(time.Duration(i) * time.Minute),
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

		var err error
		db, err = store.NewDB(":memory:")
		Expect(err).NotTo(HaveOccurred())

		err = migrations.Run(ctx, db)
		Expect(err).NotTo(HaveOccurred())

		s = store.NewStore(db)
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Context("Latest", func() {
		// Given an empty history
		// When we ask for the latest action
		// Then it should return a not found error
		It("should return ScaleHistoryNotFoundError when nothing was recorded", func() {
			_, err := s.Scaling().Latest(ctx)

			Expect(err).To(HaveOccurred())
			Expect(srvErrors.IsResourceNotFoundError(err)).To(BeTrue())
		})

		It("should return the most recent action", func() {
			Expect(s.Scaling().Record(ctx, action(1, models.ScaleUp, models.ScaleReasonUtilization))).To(Succeed())
			Expect(s.Scaling().Record(ctx, action(2, models.ScaleDown, models.ScaleReasonIdle))).To(Succeed())

			latest, err := s.Scaling().Latest(ctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(latest.WorkerID).To(Equal("w-2"))
			Expect(latest.Direction).To(Equal(models.ScaleDown))
			Expect(latest.Reason).To(Equal(models.ScaleReasonIdle))
			Expect(latest.At).To(BeTemporally("==", base.Add(2*time.Minute)))
		})
	})

	Context("List", func() {
		BeforeEach(func() {
			Expect(s.Scaling().Record(ctx, action(1, models.ScaleUp, models.ScaleReasonUtilization))).To(Succeed())
			Expect(s.Scaling().Record(ctx, action(2, models.ScaleUp, models.ScaleReasonNoWorker))).To(Succeed())
			Expect(s.Scaling().Record(ctx, action(3, models.ScaleDown, models.ScaleReasonIdle))).To(Succeed())
			Expect(s.Scaling().Record(ctx, action(4, models.ScaleDown, models.ScaleReasonExcessIdle))).To(Succeed())
		})

		It("should list newest first", func() {
			actions, err := s.Scaling().List(ctx, store.WithDefaultSort())

			Expect(err).NotTo(HaveOccurred())
			Expect(actions).To(HaveLen(4))
			Expect(actions[0].WorkerID).To(Equal("w-4"))
			Expect(actions[3].WorkerID).To(Equal("w-1"))
		})

		It("should filter by direction", func() {
			actions, err := s.Scaling().List(ctx, store.ByDirection(models.ScaleUp), store.WithDefaultSort())

			Expect(err).NotTo(HaveOccurred())
			Expect(actions).To(HaveLen(2))
			for _, a := range actions {
				Expect(a.Direction).To(Equal(models.ScaleUp))
			}
		})

		It("should filter by reasons", func() {
			actions, err := s.Scaling().List(ctx, store.ByReasons(models.ScaleReasonIdle, models.ScaleReasonExcessIdle))

			Expect(err).NotTo(HaveOccurred())
			Expect(actions).To(HaveLen(2))
		})

		It("should filter by time", func() {
			count, err := s.Scaling().Count(ctx, store.Since(base.Add(3*time.Minute)))

			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(2))
		})

		It("should paginate", func() {
			actions, err := s.Scaling().List(ctx, store.WithDefaultSort(), store.WithLimit(2), store.WithOffset(1))

			Expect(err).NotTo(HaveOccurred())
			Expect(actions).To(HaveLen(2))
			Expect(actions[0].WorkerID).To(Equal("w-3"))
			Expect(actions[1].WorkerID).To(Equal("w-2"))
		})

		It("should return an empty slice when nothing matches", func() {
			actions, err := s.Scaling().List(ctx, store.ByReasons(models.ScaleReasonResponseTime))

			Expect(err).NotTo(HaveOccurred())
			Expect(actions).NotTo(BeNil())
			Expect(actions).To(BeEmpty())
		})
	})

	Context("Prune", func() {
		It("should keep only the newest rows", func() {
			for i := range 5 {
				Expect(s.Scaling().Record(ctx, action(i, models.ScaleUp, models.ScaleReasonUtilization))).To(Succeed())
			}

			removed, err := s.Scaling().Prune(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeEquivalentTo(3))

			actions, err := s.Scaling().List(ctx, store.WithDefaultSort())
			Expect(err).NotTo(HaveOccurred())
			Expect(actions).To(HaveLen(2))
			Expect(actions[0].WorkerID).To(Equal("w-4"))
		})
	})

	Context("Retention", func() {
		It("should cap the history once enough actions were recorded", func() {
			retention := store.NewRetention(s.Scaling(), 3)

			for i := range 7 {
				Expect(retention.Record(ctx, action(i, models.ScaleUp, models.ScaleReasonUtilization))).To(Succeed())
			}

			// pruned after the 3rd and 6th record, the 7th is still pending
			count, err := s.Scaling().Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(4))

			removed, err := retention.Trim(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeEquivalentTo(1))

			actions, err := s.Scaling().List(ctx, store.WithDefaultSort())
			Expect(err).NotTo(HaveOccurred())
			Expect(actions).To(HaveLen(3))
			Expect(actions[0].WorkerID).To(Equal("w-6"))
			Expect(actions[2].WorkerID).To(Equal("w-4"))
		})

		It("should keep everything below the limit", func() {
			retention := store.NewRetention(s.Scaling(), 500)

			for i := range 5 {
				Expect(retention.Record(ctx, action(i, models.ScaleDown, models.ScaleReasonIdle))).To(Succeed())
			}
			removed, err := retention.Trim(ctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeZero())
			Expect(s.Scaling().Count(ctx)).To(Equal(5))
		})
	})

	Context("Concurrency", func() {
		It("should handle concurrent records", func() {
			done := make(chan struct{})
			for i := range 10 {
				go func(i int) {
					defer GinkgoRecover()
					defer func() { done <- struct{}{} }()
					Expect(s.Scaling().Record(ctx, action(i, models.ScaleUp, models.ScaleReasonUtilization))).To(Succeed())
				}(i)
			}
			for range 10 {
				Eventually(done).Should(Receive())
			}

			count, err := s.Scaling().Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(10))
		})
	})
})
