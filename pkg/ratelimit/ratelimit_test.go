package ratelimit_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/config"
	"github.com/sightlinelabs/vizbench/pkg/ratelimit"
)

var _ = Describe("Registry", func() {
	newRegistry := func(models ...config.ModelConfig) *ratelimit.Registry {
		reg, err := ratelimit.NewRegistry(models, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		return reg
	}

	It("rejects zero requests_per_minute", func() {
		_, err := ratelimit.NewRegistry([]config.ModelConfig{
			{Name: "m", RequestsPerMinute: 0},
		}, zap.NewNop())
		Expect(err).To(HaveOccurred())
	})

	It("rejects duplicate model names", func() {
		_, err := ratelimit.NewRegistry([]config.ModelConfig{
			{Name: "m", RequestsPerMinute: 60},
			{Name: "m", RequestsPerMinute: 30},
		}, zap.NewNop())
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("duplicate model name"))
	})

	It("errors on unregistered models", func() {
		reg := newRegistry(config.ModelConfig{Name: "m", RequestsPerMinute: 60})

		err := reg.Acquire(context.Background(), "other")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("no rate limiter"))
	})

	It("reports the sustained rate", func() {
		reg := newRegistry(config.ModelConfig{Name: "m", RequestsPerMinute: 120})
		Expect(reg.Limit("m")).To(BeNumerically("~", 2.0, 1e-9))
		Expect(reg.Limit("other")).To(BeZero())
	})

	It("grants the first token immediately", func() {
		reg := newRegistry(config.ModelConfig{Name: "m", RequestsPerMinute: 60})

		start := time.Now()
		Expect(reg.Acquire(context.Background(), "m")).To(Succeed())
		Expect(time.Since(start)).To(BeNumerically("<", 100*time.Millisecond))
	})

	It("spaces subsequent acquisitions at the configured rate", func() {
		// 1200 rpm = 20 requests/sec, so 5 acquisitions after the first
		// should take at least 4 inter-token gaps of 50ms.
		reg := newRegistry(config.ModelConfig{Name: "fast", RequestsPerMinute: 1200})

		ctx := context.Background()
		Expect(reg.Acquire(ctx, "fast")).To(Succeed())

		start := time.Now()
		for i := 0; i < 4; i++ {
			Expect(reg.Acquire(ctx, "fast")).To(Succeed())
		}
		elapsed := time.Since(start)

		Expect(elapsed).To(BeNumerically(">=", 150*time.Millisecond))
	})

	It("unblocks with an error when the context is canceled", func() {
		// 1 rpm means the second token is a minute away.
		reg := newRegistry(config.ModelConfig{Name: "slow", RequestsPerMinute: 1})

		Expect(reg.Acquire(context.Background(), "slow")).To(Succeed())

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := reg.Acquire(ctx, "slow")
		Expect(err).To(HaveOccurred())
	})

	It("throttles models independently", func() {
		reg := newRegistry(
			config.ModelConfig{Name: "slow", RequestsPerMinute: 1},
			config.ModelConfig{Name: "fast", RequestsPerMinute: 6000},
		)

		ctx := context.Background()
		Expect(reg.Acquire(ctx, "slow")).To(Succeed())

		// Consuming slow's budget must not delay fast.
		start := time.Now()
		for i := 0; i < 5; i++ {
			Expect(reg.Acquire(ctx, "fast")).To(Succeed())
		}
		Expect(time.Since(start)).To(BeNumerically("<", time.Second))
	})
})
