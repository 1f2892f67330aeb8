package atmodem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTimeout         = errors.New("modem did not answer in time")
	ErrCommandRejected = errors.New("modem rejected command")
)

const ctrlZ = "\x1a"

// conn speaks the line oriented AT dialogue over a serial port. It is not
// safe for concurrent use; Modem serializes access.
type conn struct {
	rw   io.ReadWriter
	buf  []byte
	idle time.Duration
}

func newConn(rw io.ReadWriter, idle time.Duration) *conn {
	if idle <= 0 {
		idle = 50 * time.Millisecond
	}
	return &conn{rw: rw, idle: idle}
}

// command sends cmd and collects the information lines up to the final
// result code.
func (c *conn) command(ctx context.Context, cmd string, timeout time.Duration) ([]string, error) {
	c.buf = c.buf[:0]
	if _, err := c.rw.Write([]byte(cmd + "\r")); err != nil {
		return nil, fmt.Errorf("write %s: %w", cmd, err)
	}

	deadline := time.Now().Add(timeout)
	var lines []string
	for {
		line, err := c.readLine(ctx, deadline)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cmd, err)
		}
		if strings.HasPrefix(line, "AT") {
			continue
		}
		if done, err := finalResult(line); done {
			if err != nil {
				return lines, fmt.Errorf("%s: %w", cmd, err)
			}
			return lines, nil
		}
		lines = append(lines, line)
	}
}

// sendText runs the text mode AT+CMGS exchange and returns the message
// reference the network assigned.
func (c *conn) sendText(ctx context.Context, destination, text string, timeout time.Duration) (int, error) {
	c.buf = c.buf[:0]
	deadline := time.Now().Add(timeout)

	if _, err := c.rw.Write([]byte(fmt.Sprintf("AT+CMGS=%q\r", destination))); err != nil {
		return 0, fmt.Errorf("write CMGS: %w", err)
	}
	if err := c.waitPrompt(ctx, deadline); err != nil {
		return 0, err
	}
	if _, err := c.rw.Write([]byte(text + ctrlZ)); err != nil {
		return 0, fmt.Errorf("write text: %w", err)
	}

	ref := -1
	for {
		line, err := c.readLine(ctx, deadline)
		if err != nil {
			return ref, err
		}
		if strings.HasPrefix(line, "+CMGS:") {
			ref, _ = strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "+CMGS:")))
			continue
		}
		if done, err := finalResult(line); done {
			return ref, err
		}
	}
}

func (c *conn) waitPrompt(ctx context.Context, deadline time.Time) error {
	for {
		for {
			i := bytes.IndexByte(c.buf, '\n')
			if i < 0 {
				break
			}
			line := strings.TrimSpace(string(c.buf[:i]))
			c.buf = c.buf[i+1:]
			if strings.HasPrefix(line, ">") {
				return nil
			}
			if done, err := finalResult(line); done && err != nil {
				return err
			}
		}
		if i := bytes.IndexByte(c.buf, '>'); i >= 0 {
			c.buf = c.buf[i+1:]
			return nil
		}
		if err := c.fill(ctx, deadline); err != nil {
			return err
		}
	}
}

func (c *conn) readLine(ctx context.Context, deadline time.Time) (string, error) {
	for {
		if i := bytes.IndexByte(c.buf, '\n'); i >= 0 {
			line := strings.TrimSpace(string(c.buf[:i]))
			c.buf = c.buf[i+1:]
			if line == "" {
				continue
			}
			return line, nil
		}
		if err := c.fill(ctx, deadline); err != nil {
			return "", err
		}
	}
}

func (c *conn) fill(ctx context.Context, deadline time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if time.Now().After(deadline) {
		return ErrTimeout
	}

	tmp := make([]byte, 256)
	n, err := c.rw.Read(tmp)
	if n > 0 {
		c.buf = append(c.buf, tmp[:n]...)
		return nil
	}
	if err != nil && !idleRead(err) {
		return err
	}
	time.Sleep(c.idle)
	return nil
}

// idleRead reports whether a read error only means the port had no data
// before its read timeout.
func idleRead(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// finalResult recognizes the result codes that end a command.
func finalResult(line string) (bool, error) {
	switch {
	case line == "OK":
		return true, nil
	case line == "ERROR":
		return true, ErrCommandRejected
	case strings.HasPrefix(line, "+CMS ERROR:"):
		return true, parseCMSError(strings.TrimPrefix(line, "+CMS ERROR:"))
	case strings.HasPrefix(line, "+CME ERROR:"):
		return true, fmt.Errorf("%w: %s", ErrCommandRejected, line)
	}
	return false, nil
}
