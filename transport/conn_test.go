package transport_test

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/sockrpc/transport"
)

var _ = Describe("transport / Conn", func() {
	var (
		local  *transport.Conn
		remote net.Conn
	)

	BeforeEach(func() {
		var c net.Conn
		c, remote = net.Pipe()
		local = transport.NewConn(c, transport.Options{})
	})

	AfterEach(func() {
		local.Close()
		remote.Close()
	})

	writeRemote := func(data string) {
		go func() {
			defer GinkgoRecover()
			remote.Write([]byte(data))
		}()
	}

	Describe("ReadFrame()", func() {
		It("reads newline delimited frames", func() {
			writeRemote("{\"type\":\"a\"}\n{\"type\":\"b\"}\n")

			frame, err := local.ReadFrame()
			Expect(err).To(Succeed())
			Expect(string(frame)).To(Equal(`{"type":"a"}`))

			frame, err = local.ReadFrame()
			Expect(err).To(Succeed())
			Expect(string(frame)).To(Equal(`{"type":"b"}`))
		})

		It("removes the optional trailing CR", func() {
			writeRemote("{}\r\n")

			frame, err := local.ReadFrame()
			Expect(err).To(Succeed())
			Expect(string(frame)).To(Equal(`{}`))
		})

		It("returns EOF when the stream ends between frames", func() {
			go func() {
				remote.Write([]byte("{}\n"))
				remote.Close()
			}()

			_, err := local.ReadFrame()
			Expect(err).To(Succeed())

			_, err = local.ReadFrame()
			Expect(err).To(MatchError(io.EOF))
		})

		It("returns ErrUnexpectedEOF when the stream ends partway through a frame", func() {
			go func() {
				remote.Write([]byte(`{"type":`))
				remote.Close()
			}()

			_, err := local.ReadFrame()
			Expect(err).To(MatchError(io.ErrUnexpectedEOF))
		})

		It("reads frames larger than the read buffer", func() {
			big := strings.Repeat("x", 200*1024)
			writeRemote(big + "\n")

			frame, err := local.ReadFrame()
			Expect(err).To(Succeed())
			Expect(frame).To(HaveLen(len(big)))
		})

		It("accepts a frame of exactly the maximum size", func() {
			exact := bytes.Repeat([]byte("x"), transport.MaxFrameSize)
			writeRemote(string(exact) + "\n")

			frame, err := local.ReadFrame()
			Expect(err).To(Succeed())
			Expect(frame).To(HaveLen(transport.MaxFrameSize))
		})

		It("rejects frames over the maximum size", func() {
			// The writer blocks once we stop reading, closing the pipe in
			// AfterEach releases it.
			go remote.Write(bytes.Repeat([]byte("x"), 2*transport.MaxFrameSize))

			_, err := local.ReadFrame()
			Expect(err).To(MatchError(transport.ErrFrameTooLarge))
		})
	})

	Describe("WriteFrame()", func() {
		It("appends the delimiter", func() {
			go func() {
				defer GinkgoRecover()
				Expect(local.WriteFrame([]byte(`{"type":"ping"}`))).To(Succeed())
			}()

			buf := make([]byte, 16)
			_, err := io.ReadFull(remote, buf)
			Expect(err).To(Succeed())
			Expect(string(buf)).To(Equal("{\"type\":\"ping\"}\n"))
		})

		It("rejects frames over the maximum size", func() {
			err := local.WriteFrame(bytes.Repeat([]byte("x"), transport.MaxFrameSize+1))
			Expect(err).To(MatchError(transport.ErrFrameTooLarge))
		})

		It("never interleaves concurrent frames", func() {
			peer := transport.NewConn(remote, transport.Options{})

			const writers = 20
			var wg sync.WaitGroup
			wg.Add(writers)

			for i := 0; i < writers; i++ {
				frame := bytes.Repeat([]byte{byte('a' + i)}, 5000)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					Expect(local.WriteFrame(frame)).To(Succeed())
				}()
			}

			for i := 0; i < writers; i++ {
				frame, err := peer.ReadFrame()
				Expect(err).To(Succeed())
				Expect(frame).To(HaveLen(5000))
				Expect(bytes.Count(frame, frame[:1])).To(Equal(5000))
			}

			wg.Wait()
		})
	})

	Describe("Write()", func() {
		It("sends bytes as-is, past the frame size bound", func() {
			peer := transport.NewConn(remote, transport.Options{})
			oversized := bytes.Repeat([]byte("x"), 2*transport.MaxFrameSize)

			go func() {
				defer GinkgoRecover()
				local.Write(append(oversized, '\n'))
			}()

			_, err := peer.ReadFrame()
			Expect(err).To(MatchError(transport.ErrFrameTooLarge))
		})
	})

	Describe("Close()", func() {
		It("can be called more than once", func() {
			Expect(local.Close()).To(Succeed())
			Expect(func() { local.Close() }).NotTo(Panic())
		})

		It("causes reads to fail with a closed error", func() {
			Expect(local.Close()).To(Succeed())

			_, err := local.ReadFrame()
			Expect(transport.IsClosedError(err)).To(BeTrue())
		})
	})
})

var _ = Describe("transport / Dial and Listen", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "sockrpc")
		Expect(err).To(Succeed())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("exchanges frames over a unix socket", func() {
		path := filepath.Join(dir, "d.sock")

		listener, err := transport.Listen(transport.Options{Address: path})
		Expect(err).To(Succeed())
		defer listener.Close()

		Expect(transport.ListenerAddress(listener)).To(Equal("unix://" + path))

		go func() {
			defer GinkgoRecover()

			accepted, err := listener.Accept()
			Expect(err).To(Succeed())

			server := transport.NewConn(accepted, transport.Options{})
			defer server.Close()

			frame, err := server.ReadFrame()
			Expect(err).To(Succeed())
			Expect(server.WriteFrame(frame)).To(Succeed())
		}()

		conn, err := transport.Dial(context.Background(), transport.Options{Address: path})
		Expect(err).To(Succeed())
		defer conn.Close()

		Expect(conn.WriteFrame([]byte(`{"type":"echo"}`))).To(Succeed())

		frame, err := conn.ReadFrame()
		Expect(err).To(Succeed())
		Expect(string(frame)).To(Equal(`{"type":"echo"}`))
	})

	It("replaces a stale socket file", func() {
		path := filepath.Join(dir, "stale.sock")

		first, err := transport.Listen(transport.Options{Address: path})
		Expect(err).To(Succeed())

		// Simulate a crashed process leaving its socket file behind
		first.(*net.UnixListener).SetUnlinkOnClose(false)
		Expect(first.Close()).To(Succeed())

		second, err := transport.Listen(transport.Options{Address: path})
		Expect(err).To(Succeed())
		Expect(second.Close()).To(Succeed())
	})

	It("refuses to replace a regular file", func() {
		path := filepath.Join(dir, "not-a-socket")
		Expect(os.WriteFile(path, []byte("hi"), 0o600)).To(Succeed())

		_, err := transport.Listen(transport.Options{Address: path})
		Expect(err).To(HaveOccurred())
	})

	It("fails to dial a missing socket", func() {
		_, err := transport.Dial(context.Background(), transport.Options{Address: filepath.Join(dir, "missing.sock")})
		Expect(err).To(HaveOccurred())
	})

	It("listens on tcp with reuseport", func() {
		listener, err := transport.Listen(transport.Options{Address: "tcp://127.0.0.1:0", Reuseport: true})
		Expect(err).To(Succeed())
		defer listener.Close()

		Expect(transport.ListenerAddress(listener)).To(HavePrefix("tcp://127.0.0.1:"))
	})
})
