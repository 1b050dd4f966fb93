package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
)

const (
	// MaxFrameSize bounds a single frame, not counting its delimiter
	MaxFrameSize = 1024 * 1024

	readBufferSize  = 64 * 1024
	writeBufferSize = 16 * 1024
)

var ErrFrameTooLarge = errors.New("Frame exceeds the maximum frame size")

// Conn frames a stream socket into newline delimited frames.
//
// Any number of goroutines may call WriteFrame concurrently, frames are never
// interleaved on the wire. ReadFrame must only be called from one goroutine.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader

	writeMu sync.Mutex
	w       *bufio.Writer

	closeOnce sync.Once
	closeErr  error

	log   *zap.Logger
	trace bool
}

// NewConn wraps an established socket.
func NewConn(conn net.Conn, options Options) *Conn {
	return &Conn{
		conn:  conn,
		r:     bufio.NewReaderSize(conn, readBufferSize),
		w:     bufio.NewWriterSize(conn, writeBufferSize),
		log:   options.logger(),
		trace: options.Trace,
	}
}

// Dial opens a connection to options.Address.
func Dial(ctx context.Context, options Options) (*Conn, error) {
	addr, err := ParseAddress(options.Address)
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: options.DialTimeout}

	conn, err := dialer.DialContext(ctx, addr.Network, addr.Address)
	if err != nil {
		return nil, fmt.Errorf("Failed to connect to %s: %w", addr, err)
	}

	return NewConn(conn, options), nil
}

// ReadFrame returns the next frame without its delimiter or optional trailing
// CR. It returns io.EOF when the stream ends cleanly between frames and
// io.ErrUnexpectedEOF when it ends partway through one.
//
// ErrFrameTooLarge leaves the stream at an unknown position, callers should
// treat it as fatal for the connection.
func (c *Conn) ReadFrame() ([]byte, error) {
	var frame []byte

	for {
		chunk, err := c.r.ReadSlice('\n')

		// chunk is only valid until the next read, so it always gets copied
		frame = append(frame, chunk...)

		switch {
		case err == nil:
			if len(frame)-1 > MaxFrameSize {
				return nil, ErrFrameTooLarge
			}

			frame = RemoveTrailingCR(frame[:len(frame)-1])

			if c.trace {
				c.log.Debug("Read frame", zap.ByteString("frame", frame))
			}

			return frame, nil

		case errors.Is(err, bufio.ErrBufferFull):
			if len(frame) > MaxFrameSize {
				return nil, ErrFrameTooLarge
			}

		case errors.Is(err, io.EOF):
			if len(frame) == 0 {
				return nil, io.EOF
			}
			return nil, io.ErrUnexpectedEOF

		default:
			return nil, err
		}
	}
}

// WriteFrame writes frame followed by the delimiter and flushes it.
func (c *Conn) WriteFrame(frame []byte) error {
	if len(frame) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.w.Write(frame); err != nil {
		return err
	}

	if err := c.w.WriteByte('\n'); err != nil {
		return err
	}

	if err := c.w.Flush(); err != nil {
		return err
	}

	if c.trace {
		c.log.Debug("Wrote frame", zap.ByteString("frame", frame))
	}

	return nil
}

// Write sends p as-is and flushes it, without a delimiter or the frame size
// bound. Frames written with WriteFrame are never split by it.
func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	n, err := c.w.Write(p)
	if err != nil {
		return n, err
	}

	return n, c.w.Flush()
}

// CloseWrite flushes anything buffered and shuts down the writing side of
// the socket, letting the peer see EOF while we can still read.
func (c *Conn) CloseWrite() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.w.Flush(); err != nil {
		return err
	}

	if hc, ok := c.conn.(interface{ CloseWrite() error }); ok {
		return hc.CloseWrite()
	}

	return nil
}

// Close closes the socket. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})

	return c.closeErr
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// IsClosedError reports errors caused by using a connection after Close.
func IsClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

func RemoveTrailingCR(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\r' {
		// Remove the optional trailing \r
		return data[:len(data)-1]
	}

	return data
}
