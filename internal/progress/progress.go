// Package progress shows how far a run has got.
package progress

import (
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Display advances once per finished test item.
type Display interface {
	Advance()
	Close()
}

// New returns a progress bar on stderr for total items. It returns a
// no-op display when disabled or when stderr is not a terminal.
func New(total int, description string, enabled bool) Display {
	if !enabled || !term.IsTerminal(int(os.Stderr.Fd())) {
		return Nop{}
	}
	return newBar(os.Stderr, total, description)
}

func newBar(w io.Writer, total int, description string) *Bar {
	return &Bar{bar: progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
	)}
}

// Bar is a terminal progress bar. It is safe for concurrent use.
type Bar struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func (b *Bar) Advance() {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.bar.Add(1)
}

func (b *Bar) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.bar.Finish()
}

// Nop displays nothing.
type Nop struct{}

func (Nop) Advance() {}
func (Nop) Close()   {}
