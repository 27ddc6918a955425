package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

const ioBufferSize = 32 * 1024

// cursor reads the input forward only. Bytes handed back with unread are
// replayed, oldest first, before any new byte is taken from the source.
type cursor struct {
	done    <-chan struct{}
	ctx     context.Context
	src     *bufio.Reader
	pending []byte
	pos     int64 // offset of the next byte next will return
	read    int64 // bytes consumed from src
}

func newCursor(ctx context.Context, r io.Reader) *cursor {
	return &cursor{
		done: ctx.Done(),
		ctx:  ctx,
		src:  bufio.NewReaderSize(r, ioBufferSize),
	}
}

func (c *cursor) canceled() error {
	select {
	case <-c.done:
		return c.ctx.Err()
	default:
		return nil
	}
}

// next returns the next input byte. ok is false at end of input.
func (c *cursor) next() (b byte, ok bool, err error) {
	if err := c.canceled(); err != nil {
		return 0, false, err
	}
	if len(c.pending) > 0 {
		b = c.pending[0]
		c.pending = c.pending[1:]
		c.pos++
		return b, true, nil
	}
	b, err = c.src.ReadByte()
	if err == io.EOF {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read input: %w", err)
	}
	c.pos++
	c.read++
	return b, true, nil
}

// unread pushes bs back in front of any bytes already pending.
func (c *cursor) unread(bs ...byte) {
	if len(bs) == 0 {
		return
	}
	q := make([]byte, 0, len(bs)+len(c.pending))
	q = append(q, bs...)
	c.pending = append(q, c.pending...)
	c.pos -= int64(len(bs))
}

// offset is the input offset of the byte most recently returned by next.
func (c *cursor) offset() int64 { return c.pos - 1 }

type emitter struct {
	done <-chan struct{}
	ctx  context.Context
	dst  *bufio.Writer
	n    int64
}

func newEmitter(ctx context.Context, w io.Writer) *emitter {
	return &emitter{
		done: ctx.Done(),
		ctx:  ctx,
		dst:  bufio.NewWriterSize(w, ioBufferSize),
	}
}

func (e *emitter) canceled() error {
	select {
	case <-e.done:
		return e.ctx.Err()
	default:
		return nil
	}
}

func (e *emitter) write(p []byte) error {
	if err := e.canceled(); err != nil {
		return err
	}
	n, err := e.dst.Write(p)
	e.n += int64(n)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func (e *emitter) writeByte(b byte) error {
	if err := e.canceled(); err != nil {
		return err
	}
	if err := e.dst.WriteByte(b); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	e.n++
	return nil
}

func (e *emitter) flush() error {
	if err := e.dst.Flush(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
