package output

import (
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

// Console writes one colored line per significant event. Informational
// lines go to stdout; warnings and errors go to stderr. A single mutex
// keeps lines from concurrent pipelines whole.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	err io.Writer

	info *color.Color
	ok   *color.Color
	warn *color.Color
	fail *color.Color
	skip *color.Color
}

func NewConsole(out, errOut io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &Console{
		out:  out,
		err:  errOut,
		info: color.New(color.FgBlue),
		ok:   color.New(color.FgGreen),
		warn: color.New(color.FgYellow),
		fail: color.New(color.FgRed),
		skip: color.New(color.FgMagenta),
	}
}

func (c *Console) Infof(format string, args ...any) {
	c.line(c.out, c.info, "ℹ️  ", format, args...)
}

func (c *Console) Okf(format string, args ...any) {
	c.line(c.out, c.ok, "✅  ", format, args...)
}

func (c *Console) Warnf(format string, args ...any) {
	c.line(c.err, c.warn, "⚠️  ", format, args...)
}

func (c *Console) Errorf(format string, args ...any) {
	c.line(c.err, c.fail, "❌  ", format, args...)
}

func (c *Console) Skipf(format string, args ...any) {
	c.line(c.out, c.skip, "⏭️  ", format, args...)
}

func (c *Console) line(w io.Writer, col *color.Color, prefix, format string, args ...any) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = col.Fprintf(w, prefix+format+"\n", args...)
}
