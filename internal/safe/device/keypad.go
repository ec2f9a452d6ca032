package device

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"sync"

	"digisafe/internal/safe/models"
)

const keypadBuffer = 64

// LineKeypad turns text read from r into key presses. Every keypad legend on
// a line is one press; other characters are ignored. Reading happens on its
// own goroutine so Poll never blocks.
type LineKeypad struct {
	keys   chan models.Key
	logger *slog.Logger

	mu  sync.Mutex
	err error
}

// NewLineKeypad starts reading r. Once r is exhausted and every buffered key
// has been polled, Poll returns io.EOF or the read error.
func NewLineKeypad(r io.Reader, logger *slog.Logger) *LineKeypad {
	if logger == nil {
		logger = slog.Default()
	}
	k := &LineKeypad{
		keys:   make(chan models.Key, keypadBuffer),
		logger: logger,
	}
	go k.read(r)
	return k
}

func (k *LineKeypad) read(r io.Reader) {
	defer close(k.keys)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		for _, c := range scanner.Text() {
			key, ok := ParseKey(c)
			if !ok {
				if c != ' ' && c != '\t' {
					k.logger.Debug("ignoring non-key input", "char", string(c))
				}
				continue
			}
			k.keys <- key
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.err = scanner.Err()
	if k.err == nil {
		k.err = io.EOF
	}
}

func (k *LineKeypad) Poll(ctx context.Context) (models.Key, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	select {
	case key, ok := <-k.keys:
		if !ok {
			k.mu.Lock()
			defer k.mu.Unlock()
			return 0, false, k.err
		}
		return key, true, nil
	default:
		return 0, false, nil
	}
}

// ScriptedKeys replays a fixed sequence of presses, one per Poll.
type ScriptedKeys struct {
	mu   sync.Mutex
	keys []models.Key
}

func NewScriptedKeys(keys ...models.Key) *ScriptedKeys {
	return &ScriptedKeys{keys: keys}
}

// Push appends presses to the end of the script.
func (s *ScriptedKeys) Push(keys ...models.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, keys...)
}

func (s *ScriptedKeys) Poll(_ context.Context) (models.Key, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.keys) == 0 {
		return 0, false, nil
	}
	key := s.keys[0]
	s.keys = s.keys[1:]
	return key, true, nil
}

func (s *ScriptedKeys) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
