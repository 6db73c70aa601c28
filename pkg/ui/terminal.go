package ui

import (
	"fmt"
	"io"
	"os"
)

// Banner is printed at the top of interactive commands
const Banner = `
  ┌─┐┌─┐┌─┐┌┬┐┬ ┬┌─┐┬─┐┬  ┬┌─┐┌─┐┌┬┐
  ├─┘│ │└─┐ │ ├─┤├─┤├┬┘└┐┌┘├┤ └─┐ │
  ┴  └─┘└─┘ ┴ ┴ ┴┴ ┴┴└─ └┘ └─┘└─┘ ┴
`

// Printer writes styled one-line messages
type Printer struct {
	out io.Writer
}

// NewPrinter returns a Printer for w; nil means stdout
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{out: w}
}

// Logo prints the banner and a version line
func (p *Printer) Logo(version string) {
	fmt.Fprint(p.out, titleStyle.Render(Banner))
	fmt.Fprintln(p.out, dimStyle.Render("  keyword post collection "+version))
	fmt.Fprintln(p.out)
}

// Error prints an error message, with err appended when given
func (p *Printer) Error(msg string, err error) {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	fmt.Fprintln(p.out, errorStyle.Render("✗ "+msg))
}

// Success prints a success message
func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.out, successStyle.Render("✓ "+msg))
}

// Info prints a label and value pair
func (p *Printer) Info(label, value string) {
	fmt.Fprintf(p.out, "%s %s\n", labelStyle.Render(label+":"), valueStyle.Render(value))
}

// Warning prints a warning message
func (p *Printer) Warning(msg string) {
	fmt.Fprintln(p.out, warningStyle.Render("⚠ "+msg))
}

// Dim prints secondary text
func (p *Printer) Dim(msg string) {
	fmt.Fprintln(p.out, dimStyle.Render(msg))
}

// Println prints a pre-rendered block
func (p *Printer) Println(s string) {
	fmt.Fprintln(p.out, s)
}
