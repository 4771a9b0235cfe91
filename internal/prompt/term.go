package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Term prompts on a plain terminal with echo disabled. When In is not a
// terminal it reads one line per prompt, which lets scripts pipe passwords
// in. A Term must not be copied after first use.
type Term struct {
	In  *os.File
	Out io.Writer

	mu     sync.Mutex
	reader *bufio.Reader
}

type readResult struct {
	value string
	err   error
}

func (t *Term) Password(ctx context.Context, message string) (string, bool, error) {
	if t.Out != nil {
		fmt.Fprintf(t.Out, "%s: ", message)
	}

	ch := make(chan readResult, 1)
	go func() {
		ch <- t.read()
	}()

	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case res := <-ch:
		if t.Out != nil {
			fmt.Fprintln(t.Out)
		}
		if res.err != nil {
			if res.err == io.EOF {
				return "", false, nil
			}
			return "", false, res.err
		}
		if res.value == "" {
			return "", false, nil
		}
		return res.value, true, nil
	}
}

func (t *Term) read() readResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	fd := int(t.In.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		return readResult{value: string(b), err: err}
	}

	// Shared across prompts so lines buffered past the first aren't lost.
	if t.reader == nil {
		t.reader = bufio.NewReader(t.In)
	}
	line, err := t.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return readResult{err: err}
	}
	return readResult{value: strings.TrimRight(line, "\r\n")}
}
