package lock_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"tasklink.app/bridge/internal/lock"
)

var _ = Describe("MemoryLocker", func() {
	var (
		locker *lock.MemoryLocker
		ctx    context.Context
	)

	BeforeEach(func() {
		locker = lock.NewMemoryLocker()
		ctx = context.Background()
	})

	It("grants the lease to the first claimant and contends the second", func() {
		guard, err := locker.Acquire(ctx, "pull:acme/widgets:1", "sync", time.Minute)
		Expect(err).NotTo(HaveOccurred())
		defer guard.Release(ctx)

		_, err = locker.Acquire(ctx, "pull:acme/widgets:1", "sync", time.Minute)
		Expect(errors.Is(err, lock.ErrContended)).To(BeTrue())
	})

	It("retries within the acquire window and wins once the holder releases", func() {
		guard, err := locker.Acquire(ctx, "pull:acme/widgets:1", "sync", time.Minute)
		Expect(err).NotTo(HaveOccurred())

		go func() {
			defer GinkgoRecover()
			time.Sleep(10 * time.Millisecond)
			Expect(guard.Release(context.Background())).To(Succeed())
		}()

		again, err := locker.Acquire(ctx, "pull:acme/widgets:1", "sync", time.Minute)
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Release(ctx)).To(Succeed())
	})

	It("allows re-acquisition after release", func() {
		guard, err := locker.Acquire(ctx, "pull:acme/widgets:1", "sync", time.Minute)
		Expect(err).NotTo(HaveOccurred())
		Expect(guard.Release(ctx)).To(Succeed())

		again, err := locker.Acquire(ctx, "pull:acme/widgets:1", "sync", time.Minute)
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Release(ctx)).To(Succeed())
	})

	It("does not contend across different keys", func() {
		a, err := locker.Acquire(ctx, "pull:acme/widgets:1", "sync", time.Minute)
		Expect(err).NotTo(HaveOccurred())
		defer a.Release(ctx)

		b, err := locker.Acquire(ctx, "pull:acme/widgets:2", "sync", time.Minute)
		Expect(err).NotTo(HaveOccurred())
		defer b.Release(ctx)
	})

	It("does not contend across sort keys under the same entity", func() {
		a, err := locker.Acquire(ctx, "pull:acme/widgets:1", "sync", time.Minute)
		Expect(err).NotTo(HaveOccurred())
		defer a.Release(ctx)

		b, err := locker.Acquire(ctx, "pull:acme/widgets:1", "archive", time.Minute)
		Expect(err).NotTo(HaveOccurred())
		defer b.Release(ctx)
	})

	It("grants an expired lease to a new claimant", func() {
		_, err := locker.Acquire(ctx, "pull:acme/widgets:1", "sync", time.Millisecond)
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() error {
			guard, err := locker.Acquire(ctx, "pull:acme/widgets:1", "sync", time.Minute)
			if err != nil {
				return err
			}
			return guard.Release(ctx)
		}).WithTimeout(time.Second).WithPolling(5 * time.Millisecond).Should(Succeed())
	})

	It("tolerates releasing after expiry", func() {
		guard, err := locker.Acquire(ctx, "pull:acme/widgets:1", "sync", time.Millisecond)
		Expect(err).NotTo(HaveOccurred())
		time.Sleep(5 * time.Millisecond)
		Expect(guard.Release(ctx)).To(Succeed())
	})
})
