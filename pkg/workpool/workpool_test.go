package workpool_test

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/spicaengine/fnscheduler/pkg/workpool"
)

var _ = Describe("Pool", func() {
	var p *workpool.Pool

	AfterEach(func() {
		if p != nil {
			p.Close()
		}
	})

	Describe("Go", func() {
		It("should run every job", func() {
			p = workpool.New("test", 2)

			var ran atomic.Int32
			for i := range 5 {
				Expect(p.Go(fmt.Sprintf("k%d", i), func(ctx context.Context) {
					time.Sleep(10 * time.Millisecond)
					ran.Add(1)
				})).To(BeTrue())
			}

			Eventually(ran.Load, 2*time.Second, 10*time.Millisecond).Should(BeEquivalentTo(5))
		})

		It("should run jobs of one key in submission order, one at a time", func() {
			p = workpool.New("test", 4)

			var (
				mu      sync.Mutex
				order   []int
				running atomic.Int32
				overlap atomic.Bool
			)
			for i := range 20 {
				p.Go("worker-1", func(ctx context.Context) {
					if running.Add(1) > 1 {
						overlap.Store(true)
					}
					time.Sleep(time.Millisecond)
					mu.Lock()
					order = append(order, i)
					mu.Unlock()
					running.Add(-1)
				})
			}

			Eventually(func() int {
				mu.Lock()
				defer mu.Unlock()
				return len(order)
			}, 2*time.Second).Should(Equal(20))
			Expect(overlap.Load()).To(BeFalse())
			for i, v := range order {
				Expect(v).To(Equal(i))
			}
		})

		It("should run different keys concurrently up to the pool size", func() {
			p = workpool.New("test", 2)

			var (
				current atomic.Int32
				peak    atomic.Int32
				ran     atomic.Int32
			)
			release := make(chan struct{})
			for i := range 4 {
				p.Go(fmt.Sprintf("k%d", i), func(ctx context.Context) {
					n := current.Add(1)
					for {
						old := peak.Load()
						if n <= old || peak.CompareAndSwap(old, n) {
							break
						}
					}
					<-release
					current.Add(-1)
					ran.Add(1)
				})
			}

			Eventually(current.Load, time.Second).Should(BeEquivalentTo(2))
			Consistently(current.Load, 100*time.Millisecond).Should(BeEquivalentTo(2))
			close(release)
			Eventually(ran.Load, time.Second).Should(BeEquivalentTo(4))
			Expect(peak.Load()).To(BeEquivalentTo(2))
		})

		It("should not let a busy key hold back other keys", func() {
			p = workpool.New("test", 2)

			block := make(chan struct{})
			defer close(block)
			p.Go("slow", func(ctx context.Context) { <-block })
			p.Go("slow", func(ctx context.Context) {})

			done := make(chan struct{})
			p.Go("fast", func(ctx context.Context) { close(done) })
			Eventually(done, time.Second).Should(BeClosed())
		})

		It("should survive a panicking job", func() {
			p = workpool.New("test", 1)

			p.Go("k", func(ctx context.Context) { panic("kaboom") })
			done := make(chan struct{})
			p.Go("k", func(ctx context.Context) { close(done) })

			Eventually(done, time.Second).Should(BeClosed())
		})
	})

	Describe("Close", func() {
		It("should refuse jobs after Close", func() {
			p = workpool.New("test", 1)
			p.Close()

			ran := false
			Expect(p.Go("k", func(ctx context.Context) { ran = true })).To(BeFalse())
			Expect(ran).To(BeFalse())
		})

		It("should cancel the context of running jobs and wait for them", func() {
			p = workpool.New("test", 1)

			started := make(chan struct{})
			cancelled := make(chan struct{})
			p.Go("k", func(ctx context.Context) {
				close(started)
				<-ctx.Done()
				time.Sleep(50 * time.Millisecond)
				close(cancelled)
			})
			Eventually(started, time.Second).Should(BeClosed())

			p.Close()
			p = nil
			Expect(cancelled).To(BeClosed())
		})

		It("should drop queued jobs that never started", func() {
			p = workpool.New("test", 1)

			unblock := make(chan struct{})
			p.Go("k", func(ctx context.Context) { <-unblock })
			var late atomic.Bool
			p.Go("k", func(ctx context.Context) { late.Store(true) })

			go func() {
				time.Sleep(50 * time.Millisecond)
				close(unblock)
			}()
			p.Close()
			p = nil

			Consistently(late.Load, 100*time.Millisecond).Should(BeFalse())
		})

		It("should not leak goroutines", func() {
			base := runtime.NumGoroutine()
			p = workpool.New("test", 4)

			for i := range 100 {
				p.Go(fmt.Sprintf("k%d", i%10), func(ctx context.Context) { <-ctx.Done() })
			}

			time.Sleep(50 * time.Millisecond)
			p.Close()
			p = nil

			Eventually(runtime.NumGoroutine, 5*time.Second, 100*time.Millisecond).Should(BeNumerically("<=", base+10))
		})
	})
})
