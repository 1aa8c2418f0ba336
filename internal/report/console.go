// Package report renders crawl progress for a terminal.
package report

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/JakeFAU/linkcheck/internal/crawler"
)

const (
	maxSourceChars = 30
	maxTargetChars = 60
)

// ConsoleOptions configures a Console. Nil writers default to stdout/stderr.
type ConsoleOptions struct {
	Out     io.Writer
	Err     io.Writer
	Verbose bool
	NoColor bool
}

// Console prints one line per result. Healthy lines overwrite each other in
// place unless verbose; unhealthy lines always go to Err and stay.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	verbose bool
	lastLen int

	green  *color.Color
	red    *color.Color
	yellow *color.Color
}

var _ crawler.Renderer = (*Console)(nil)

// NewConsole builds a Console.
func NewConsole(opts ConsoleOptions) *Console {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	c := &Console{
		out:     opts.Out,
		errOut:  opts.Err,
		verbose: opts.Verbose,
		green:   color.New(color.FgGreen),
		red:     color.New(color.FgRed),
		yellow:  color.New(color.FgYellow),
	}
	if opts.NoColor {
		for _, col := range []*color.Color{c.green, c.red, c.yellow} {
			col.DisableColor()
		}
	}
	return c
}

// Starting announces the crawl.
func (c *Console) Starting(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, ">>> starting %s\n", host)
}

// Fetching is only called in verbose mode.
func (c *Console) Fetching(target string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "> fetching %s\n", target)
}

// Excluded reports a URL dropped by the exclusion pattern.
func (c *Console) Excluded(target string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "> exclude: %s\n", target)
}

// Render prints one result line plus the verbose extras.
func (c *Console) Render(line crawler.Line) {
	c.mu.Lock()
	defer c.mu.Unlock()

	plain, colored := c.format(line)
	pad := c.padding(len(plain))
	if line.IsError() {
		fmt.Fprintln(c.errOut, colored+pad)
	} else {
		if c.verbose {
			fmt.Fprintln(c.out, colored)
		} else {
			fmt.Fprint(c.out, colored+pad+"\r")
		}
		c.lastLen = len(plain)
	}

	if !c.verbose {
		return
	}
	if msg := line.Result.Message; msg != "" {
		fmt.Fprintf(c.out, "> %s\n", msg)
	}
	if e := line.Result.Err; e != "" {
		fmt.Fprintf(c.out, "! %s\n", c.red.Sprint(e))
	}
}

// Finished prints the summary line, clearing any overwritten line beneath it.
func (c *Console) Finished(s crawler.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	head := fmt.Sprintf("<<< finished %s, time elapsed: %.1fs, total pages: %d, ", s.Host, s.Elapsed.Seconds(), s.Total)
	tailPlain := "no errors"
	tail := c.green.Sprint(tailPlain)
	if s.Errors > 0 {
		tailPlain = "errors: " + strconv.Itoa(s.Errors)
		tail = c.red.Sprint(tailPlain)
	}
	if s.Interrupted {
		tailPlain += " (interrupted)"
		tail += c.yellow.Sprint(" (interrupted)")
	}
	fmt.Fprintln(c.out, head+tail+c.padding(len(head)+len(tailPlain)))
}

// format returns the line without and with color codes.
func (c *Console) format(line crawler.Line) (string, string) {
	res := line.Result
	counter := fmt.Sprintf("%-10s", fmt.Sprintf("[%d/%d]", line.Seq, line.Outstanding))

	status := fmt.Sprintf("%-13s", StatusText(res.Status))
	statusColored := c.green.Sprint(status)
	if line.StatusError {
		statusColored = c.red.Sprint(status)
	}

	size := "?"
	if res.SizeKnown {
		size = strconv.Itoa(res.Size / 1000)
	}
	size = fmt.Sprintf("%5s", size)
	var sizeColored string
	switch {
	case !res.SizeKnown:
		sizeColored = c.yellow.Sprint(size)
	case line.SizeError:
		sizeColored = c.red.Sprint(size)
	default:
		sizeColored = c.green.Sprint(size)
	}

	tail := fmt.Sprintf(" KB] %s -> %s", Truncate(res.Source, maxSourceChars), Truncate(res.Target, maxTargetChars))
	plain := " " + counter + " " + status + " [" + size + tail
	colored := " " + counter + " " + statusColored + " [" + sizeColored + tail
	return plain, colored
}

func (c *Console) padding(n int) string {
	if c.lastLen <= n {
		return ""
	}
	return strings.Repeat(" ", c.lastLen-n)
}

// StatusText renders a status code the way it is shown on the console,
// e.g. "404 Not Found", or "ERROR" when no response was received.
func StatusText(code int) string {
	if code == 0 {
		return "ERROR"
	}
	if text := http.StatusText(code); text != "" {
		return strconv.Itoa(code) + " " + text
	}
	return strconv.Itoa(code)
}

// Truncate shortens s to max runes, marking the cut with "...".
func Truncate(s string, maxRunes int) string {
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
