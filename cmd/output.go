package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"m4a-extractor/domain/media"
)

// OutputWriter allows capturing output in tests
type OutputWriter interface {
	Write(p []byte) (n int, err error)
}

// DefaultOutput is the default output writer for commands
var DefaultOutput OutputWriter = os.Stdout

// isTerminal reports whether w is an interactive terminal
func isTerminal(w any) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// statusPrinter prints extraction status lines, colored on a terminal
type statusPrinter struct {
	out      io.Writer
	colorize bool
}

func newStatusPrinter(out io.Writer) *statusPrinter {
	return &statusPrinter{out: out, colorize: isTerminal(out) && !color.NoColor}
}

// OnStatus implements media.Observer
func (p *statusPrinter) OnStatus(msg string) {
	line := "      " + msg
	if p.colorize {
		switch {
		case strings.HasPrefix(msg, "Done."):
			line = color.New(color.FgGreen).Sprint(line)
		case strings.HasPrefix(msg, "Extraction failed"), strings.HasPrefix(msg, "No audio track"):
			line = color.New(color.FgRed).Sprint(line)
		case strings.HasPrefix(msg, "Processed samples"):
			line = color.New(color.Faint).Sprint(line)
		default:
			line = color.New(color.FgCyan).Sprint(line)
		}
	}
	fmt.Fprintln(p.out, line)
}

var _ media.Observer = (*statusPrinter)(nil)
