package config_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/spicaengine/fnscheduler/internal/config"
	srvErrors "github.com/spicaengine/fnscheduler/pkg/errors"
)

var _ = Describe("Configuration", func() {
	var cfg *config.Configuration

	BeforeEach(func() {
		var err error
		cfg, err = config.NewConfigurationWithDefaults()
		Expect(err).NotTo(HaveOccurred())
	})

	It("applies defaults", func() {
		Expect(cfg.Scheduler.MaxConcurrency).To(Equal(1))
		Expect(cfg.Scheduler.Timeout).To(Equal(60))
		Expect(cfg.Scheduler.ScaleInterval).To(Equal(30 * time.Second))
		Expect(cfg.Scheduler.AutoScaling.Enabled).To(BeFalse())
		Expect(cfg.Scheduler.AutoScaling.MaxWorkers).To(Equal(10))
		Expect(cfg.Transport.Address).To(Equal("127.0.0.1:5678"))
		Expect(cfg.Store.HistoryLimit).To(Equal(10000))
		Expect(cfg.Validate()).To(Succeed())
	})

	DescribeTable("rejects invalid values",
		func(mutate func(c *config.Configuration)) {
			mutate(cfg)
			err := cfg.Validate()
			Expect(err).To(HaveOccurred())
			Expect(srvErrors.IsInvalidConfigurationError(err)).To(BeTrue())
		},
		Entry("zero concurrency", func(c *config.Configuration) { c.Scheduler.MaxConcurrency = 0 }),
		Entry("zero timeout", func(c *config.Configuration) { c.Scheduler.Timeout = 0 }),
		Entry("empty transport", func(c *config.Configuration) { c.Transport.Address = "" }),
		Entry("unknown server mode", func(c *config.Configuration) { c.Server.ServerMode = "staging" }),
		Entry("auth without secret", func(c *config.Configuration) { c.Auth.Enabled = true }),
		Entry("negative history limit", func(c *config.Configuration) { c.Store.HistoryLimit = -1 }),
		Entry("min above max", func(c *config.Configuration) {
			c.Scheduler.AutoScaling.Enabled = true
			c.Scheduler.AutoScaling.MinWorkers = 5
			c.Scheduler.AutoScaling.MaxWorkers = 2
		}),
		Entry("inverted thresholds", func(c *config.Configuration) {
			c.Scheduler.AutoScaling.Enabled = true
			c.Scheduler.AutoScaling.ScaleDownThreshold = 0.9
		}),
	)

	It("ignores auto-scaling bounds while auto-scaling is off", func() {
		cfg.Scheduler.AutoScaling.MinWorkers = 5
		cfg.Scheduler.AutoScaling.MaxWorkers = 2
		Expect(cfg.Validate()).To(Succeed())
	})

	It("never exposes the JWT secret in the debug map", func() {
		cfg.Auth.JWTSecretFile = "/etc/fnscheduler/secret"
		m := cfg.DebugMap()
		Expect(m).To(HaveKeyWithValue("auth.jwtSecretFile", "/etc/fnscheduler/secret"))
		Expect(m).To(HaveKeyWithValue("scheduler.maxConcurrency", 1))
	})
})
