package operator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

const ctrlC = 0x03

// Keyboard presses a latch on space or enter read from a terminal in raw
// mode. Raw mode disables the terminal's interrupt key, so Ctrl-C is
// forwarded to the interrupt callback.
type Keyboard struct {
	latch       *Latch
	logger      *slog.Logger
	onInterrupt func()

	fd    int
	state *term.State
	done  chan struct{}
}

// OpenKeyboard puts stdin into raw mode and starts reading keys.
func OpenKeyboard(ctx context.Context, latch *Latch, onInterrupt func(), logger *slog.Logger) (*Keyboard, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("raw terminal: %w", err)
	}

	k := newKeyboard(latch, onInterrupt, logger)
	k.fd = fd
	k.state = state
	go k.read(ctx, os.Stdin)

	k.logger.Info("keyboard input ready", "keys", "space, enter")
	return k, nil
}

func newKeyboard(latch *Latch, onInterrupt func(), logger *slog.Logger) *Keyboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Keyboard{
		latch:       latch,
		logger:      logger,
		onInterrupt: onInterrupt,
		done:        make(chan struct{}),
	}
}

// read consumes r until EOF, an error or cancellation.
func (k *Keyboard) read(ctx context.Context, r io.Reader) {
	defer close(k.done)

	br := bufio.NewReader(r)
	for ctx.Err() == nil {
		b, err := br.ReadByte()
		if err != nil {
			if err != io.EOF {
				k.logger.Debug("keyboard read stopped", "error", err)
			}
			return
		}
		switch b {
		case ' ', '\r', '\n':
			k.logger.Debug("keyboard press")
			k.latch.Press()
		case ctrlC:
			if k.onInterrupt != nil {
				k.onInterrupt()
			}
		}
	}
}

// Close restores the terminal. The reader goroutine exits on the next key
// or when stdin closes.
func (k *Keyboard) Close() error {
	if k.state == nil {
		return nil
	}
	err := term.Restore(k.fd, k.state)
	k.state = nil
	return err
}
