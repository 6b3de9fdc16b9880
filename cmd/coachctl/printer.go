package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/vovakirdan/coachstream/coach"
)

// printer renders dispatched events as plain text.
type printer struct {
	out     io.Writer
	midLine bool
}

func attachPrinter(d *coach.Dispatcher, out io.Writer) *printer {
	p := &printer{out: out}
	d.OnEvent(coach.ListenerFunc(p.print))
	d.On(coach.KindUnhandled, coach.ListenerFunc(p.print))
	return p
}

func (p *printer) print(ev coach.Event) {
	switch e := ev.(type) {
	case coach.ContentEvent:
		fmt.Fprint(p.out, e.Data)
		p.midLine = !strings.HasSuffix(e.Data, "\n")
	case coach.DoneEvent:
		p.endLine()
	case coach.SignalEvent:
		p.endLine()
		fmt.Fprintf(p.out, "[%s] %s\n", e.Type, strings.TrimSpace(string(e.Data)))
	case coach.ErrorEvent:
		p.endLine()
		fmt.Fprintf(p.out, "error: %v\n", e.Err)
	case coach.UnhandledEvent:
		p.endLine()
		fmt.Fprintf(p.out, "[skipped %s]\n", e.Type)
	}
}

func (p *printer) endLine() {
	if p.midLine {
		fmt.Fprintln(p.out)
		p.midLine = false
	}
}
