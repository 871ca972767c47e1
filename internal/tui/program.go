package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/handiism/cloudlibrary-downloader/internal/app"
	events "github.com/handiism/cloudlibrary-downloader/internal/progress"
)

// Program runs work under the progress view.
//
// Example:
//
//	p := tui.NewProgram(ctx, "cloudLibrary Downloader", verbose)
//	a, _ := app.New(settings, p.Handle)
//	report, err := p.Run(a, func(ctx context.Context) (*app.Report, error) {
//	    return a.Run(ctx, opts)
//	})
type Program struct {
	ctx     context.Context
	cancel  context.CancelFunc
	header  string
	verbose bool
	program *tea.Program
}

// NewProgram creates a Program. The context handed to the work function
// is derived from ctx and cancelled when the user interrupts.
func NewProgram(ctx context.Context, header string, verbose bool) *Program {
	ctx, cancel := context.WithCancel(ctx)
	return &Program{ctx: ctx, cancel: cancel, header: header, verbose: verbose}
}

// Handle implements progress.Func. Events sent before Run are dropped.
func (p *Program) Handle(event events.Event) {
	if p.program != nil {
		p.program.Send(ProgressMsg{Event: event})
	}
}

// Run shows the view until work returns and then returns its result.
func (p *Program) Run(source ProgressSource, work func(ctx context.Context) (*app.Report, error)) (*app.Report, error) {
	defer p.cancel()

	p.program = tea.NewProgram(NewModel(p.header, source, p.cancel, p.verbose), tea.WithContext(p.ctx))

	type result struct {
		report *app.Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := work(p.ctx)
		done <- result{report, err}
		p.program.Send(DoneMsg{Report: report, Err: err})
	}()

	if _, err := p.program.Run(); err != nil && p.ctx.Err() == nil {
		p.cancel()
		res := <-done
		if res.err == nil {
			res.err = err
		}
		return res.report, res.err
	}

	res := <-done
	return res.report, res.err
}
