package transport_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/diibridge/transport"
)

var _ = Describe("MemConn", func() {
	var c *transport.MemConn

	BeforeEach(func() {
		c = transport.NewMemConn()
	})

	It("should only receive complete buffers", func() {
		c.Feed([]byte{1, 2, 3})
		buf := make([]byte, 4)

		Expect(c.TryReceive(buf)).To(BeFalse())
		Expect(c.Pending()).To(Equal(3))

		c.Feed([]byte{4, 5})
		Expect(c.TryReceive(buf)).To(BeTrue())
		Expect(buf).To(Equal([]byte{1, 2, 3, 4}))
		Expect(c.Pending()).To(Equal(1))
	})

	It("should refuse sends on request", func() {
		c.RefuseSends(2)

		Expect(c.Send([]byte{1})).To(BeFalse())
		Expect(c.Send([]byte{1})).To(BeFalse())
		Expect(c.Send([]byte{1})).To(BeTrue())
		Expect(c.Sent()).To(Equal([]byte{1}))
		Expect(c.Sends()).To(Equal(1))
	})

	It("should report closure", func() {
		Expect(c.Close()).To(Succeed())

		Expect(c.Err()).To(MatchError(transport.ErrClosed))
		Expect(c.Send([]byte{1})).To(BeFalse())
	})

	It("should report an injected failure", func() {
		boom := errors.New("boom")
		c.Fail(boom)

		Expect(c.Err()).To(MatchError(boom))
	})
})
