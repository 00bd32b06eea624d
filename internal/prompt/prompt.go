// Package prompt provides the "how many pixels" question asked before a
// paint override.
package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Request describes the override the answer is for.
type Request struct {
	Row       string `json:"row"`
	Col       string `json:"col"`
	Available int    `json:"available"`
}

func (r Request) Message() string {
	return fmt.Sprintf("Override enabled.\nHow many pixels do you have? (server says: %d)", r.Available)
}

// Prompter returns the raw user answer. Interpreting it is up to the caller,
// see ParseCount.
type Prompter interface {
	PixelCount(ctx context.Context, req Request) (string, error)
}

type Func func(ctx context.Context, req Request) (string, error)

func (f Func) PixelCount(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Fixed always answers n.
type Fixed int

func (n Fixed) PixelCount(ctx context.Context, req Request) (string, error) {
	return strconv.Itoa(int(n)), nil
}

// Terminal asks on out and reads one line from in. A single goroutine owns
// in, so a prompt abandoned by its context never swallows the next answer.
type Terminal struct {
	mu    sync.Mutex
	in    *bufio.Reader
	out   io.Writer
	start sync.Once
	lines chan line
}

type line struct {
	text string
	err  error
}

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		in:    bufio.NewReader(in),
		out:   out,
		lines: make(chan line),
	}
}

// readLoop hands every input line to whichever prompt is waiting. It stops
// after the first read error, which is delivered once; later prompts get
// io.EOF.
func (t *Terminal) readLoop() {
	defer close(t.lines)
	for {
		s, err := t.in.ReadString('\n')
		if err == io.EOF && s != "" {
			err = nil
		}
		t.lines <- line{strings.TrimRight(s, "\r\n"), err}
		if err != nil {
			return
		}
	}
}

func (t *Terminal) PixelCount(ctx context.Context, req Request) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.start.Do(func() { go t.readLoop() })

	if _, err := fmt.Fprintf(t.out, "%s (tile %s/%s): ", req.Message(), req.Row, req.Col); err != nil {
		return "", err
	}

	select {
	case l, ok := <-t.lines:
		if !ok {
			return "", io.EOF
		}
		return l.text, l.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ParseCount reads a leading integer the way a browser's parseInt does with
// no radix: leading whitespace and a sign are accepted, a 0x or 0X prefix
// selects hexadecimal, trailing garbage is ignored. Anything without leading
// digits counts as 0, and so does a negative number.
func ParseCount(s string) int {
	s = strings.TrimLeft(s, " \t\r\n\v\f")
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	base := 10
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base = 16
		s = s[2:]
	}
	n := 0
	for i := 0; i < len(s); i++ {
		d := digit(s[i])
		if d < 0 || d >= base {
			break
		}
		if n > (1<<31)/base {
			n = 1 << 31
			break
		}
		n = n*base + d
	}
	if neg {
		return 0
	}
	return n
}

func digit(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}
