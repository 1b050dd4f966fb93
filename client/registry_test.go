package client_test

import (
	"errors"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/sockrpc/client"
	"github.com/luma/sockrpc/protocol"
)

func parse(frame string) *protocol.Message {
	msg, err := protocol.ParseMessage([]byte(frame))
	Expect(err).To(Succeed())
	return msg
}

var _ = Describe("client / Registry", func() {
	var (
		registry *client.Registry
		id       uuid.UUID
	)

	BeforeEach(func() {
		registry = client.NewRegistry(nil)
		id = uuid.New()
	})

	resolve := func(frame string) client.Result {
		waiter := registry.Register(id, 1)
		Expect(registry.Resolve(id, parse(frame))).To(BeTrue())

		var result client.Result
		Eventually(waiter.Done()).Should(Receive(&result))
		return result
	}

	It("returns the same waiter for the same id", func() {
		first := registry.Register(id, 1)
		Expect(registry.Register(id, 2)).To(BeIdenticalTo(first))
		Expect(first.Generation()).To(Equal(uint64(1)))
		Expect(registry.Len()).To(Equal(1))
	})

	It("resolves successful responses with their type and data", func() {
		result := resolve(`{"id":"x","type":"pong","data":{"n":1}}`)
		Expect(result.Err).To(BeNil())
		Expect(result.Type).To(Equal("pong"))
		Expect(result.Data).To(MatchJSON(`{"n":1}`))
		Expect(registry.Len()).To(BeZero())
	})

	It("discards responses nobody is waiting for", func() {
		Expect(registry.Resolve(id, parse(`{"id":"x","type":"pong"}`))).To(BeFalse())
	})

	It("turns unexpected_error responses into UnexpectedError", func() {
		result := resolve(`{"id":"x","type":"unexpected_error","data":{"message":"disk on fire"}}`)

		var unexpected *client.UnexpectedError
		Expect(errors.As(result.Err, &unexpected)).To(BeTrue())
		Expect(unexpected.Message).To(Equal("disk on fire"))
	})

	It("uses a default message for unexpected_error without one", func() {
		result := resolve(`{"id":"x","type":"unexpected_error"}`)
		Expect(result.Err).To(MatchError(ContainSubstring("Unexpected error with no message")))
	})

	It("fails responses carrying a string error, even with data", func() {
		result := resolve(`{"id":"x","type":"send","data":{"ok":true},"error":"rate limited"}`)

		var respErr *client.ResponseError
		Expect(errors.As(result.Err, &respErr)).To(BeTrue())
		Expect(respErr.Response).To(Equal("send"))
		Expect(respErr.Message).To(Equal("rate limited"))
		Expect(result.Data).To(BeNil())
	})

	It("reads message and type from object errors", func() {
		result := resolve(`{"id":"x","type":"send","error":{"type":"NotFoundError","message":"no chat"}}`)

		var respErr *client.ResponseError
		Expect(errors.As(result.Err, &respErr)).To(BeTrue())
		Expect(respErr.Type).To(Equal("NotFoundError"))
		Expect(respErr.Message).To(Equal("no chat"))
		Expect(respErr.Raw).To(MatchJSON(`{"type":"NotFoundError","message":"no chat"}`))
	})

	It("prefers a top-level error_type", func() {
		result := resolve(`{"id":"x","type":"send","error":{"type":"A","message":"m"},"error_type":"B"}`)

		var respErr *client.ResponseError
		Expect(errors.As(result.Err, &respErr)).To(BeTrue())
		Expect(respErr.Type).To(Equal("B"))
	})

	It("ignores null and non-string scalar errors", func() {
		Expect(resolve(`{"id":"x","type":"send","error":null}`).Err).To(BeNil())

		id = uuid.New()
		Expect(resolve(`{"id":"x","type":"send","error":false}`).Err).To(BeNil())
	})

	It("does not treat data.error as a failure", func() {
		result := resolve(`{"id":"x","type":"send","data":{"error":"inner"}}`)
		Expect(result.Err).To(BeNil())
		Expect(result.Data).To(MatchJSON(`{"error":"inner"}`))
	})

	It("drops waiters without resolving them", func() {
		waiter := registry.Register(id, 1)
		Expect(registry.Drop(id)).To(BeTrue())
		Expect(registry.Drop(id)).To(BeFalse())
		Consistently(waiter.Done(), "20ms").ShouldNot(Receive())
	})

	Describe("AbandonAll", func() {
		It("fails every waiter exactly once with NotConnected", func() {
			waiters := []*client.Waiter{
				registry.Register(uuid.New(), 1),
				registry.Register(uuid.New(), 1),
			}

			Expect(registry.AbandonAll("gone")).To(Equal(2))
			Expect(registry.Len()).To(BeZero())
			Expect(registry.AbandonAll("again")).To(BeZero())

			for _, w := range waiters {
				var result client.Result
				Expect(w.Done()).To(Receive(&result))
				Expect(errors.Is(result.Err, client.ErrNotConnected)).To(BeTrue())
				Expect(result.Err).To(MatchError("gone"))
				Expect(w.Done()).NotTo(Receive())
			}
		})

		It("leaves waiters registered afterwards alone", func() {
			registry.Register(uuid.New(), 1)
			registry.AbandonAll("gone")

			later := registry.Register(id, 2)
			Expect(registry.Len()).To(Equal(1))
			Expect(later.Done()).NotTo(Receive())
		})

		It("ignores late responses for abandoned requests", func() {
			registry.Register(id, 1)
			registry.AbandonAll("gone")

			Expect(registry.Resolve(id, parse(`{"id":"x","type":"pong"}`))).To(BeFalse())
		})
	})
})
