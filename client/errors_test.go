package client_test

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/sockrpc/client"
)

var _ = Describe("client / KindOf", func() {
	It("classifies client errors, wrapped or not", func() {
		notConnected := &client.NotConnectedError{Reason: "Not connected to daemon"}

		Expect(client.KindOf(notConnected)).To(Equal(client.KindNotConnected))
		Expect(client.KindOf(fmt.Errorf("calling: %w", notConnected))).To(Equal(client.KindNotConnected))
		Expect(client.KindOf(&client.UnexpectedResponseError{Type: "pong"})).To(Equal(client.KindUnexpectedResponse))
		Expect(client.KindOf(&client.UnexpectedError{Message: "x"})).To(Equal(client.KindUnexpectedError))
		Expect(client.KindOf(&client.ResponseError{Message: "x"})).To(Equal(client.KindResponseError))
	})

	It("returns KindUnknown for everything else", func() {
		Expect(client.KindOf(nil)).To(Equal(client.KindUnknown))
		Expect(client.KindOf(context.Canceled)).To(Equal(client.KindUnknown))
		Expect(client.KindOf(errors.New("x"))).To(Equal(client.KindUnknown))
	})

	It("has stable names", func() {
		Expect(client.KindNotConnected.String()).To(Equal("not_connected"))
		Expect(client.KindResponseError.String()).To(Equal("response_error"))
		Expect(client.KindUnknown.String()).To(Equal("unknown"))
	})
})

var _ = Describe("client / NotConnectedError", func() {
	It("matches ErrNotConnected and unwraps its cause", func() {
		cause := errors.New("broken pipe")
		err := &client.NotConnectedError{Reason: "Failed to send request to daemon", Err: cause}

		Expect(errors.Is(err, client.ErrNotConnected)).To(BeTrue())
		Expect(errors.Is(err, cause)).To(BeTrue())
		Expect(err).To(MatchError("Failed to send request to daemon: broken pipe"))
	})
})

var _ = Describe("client / ResponseError", func() {
	It("includes the error type when there is one", func() {
		err := &client.ResponseError{Response: "send", Type: "NotFoundError", Message: "no chat"}
		Expect(err).To(MatchError("NotFoundError error in send response: no chat"))

		err.Type = ""
		Expect(err).To(MatchError("error in send response: no chat"))
	})
})
