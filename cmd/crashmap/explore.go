package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/rewired-gh/crashmap/internal/analysis"
	"github.com/rewired-gh/crashmap/internal/models"
	"github.com/rewired-gh/crashmap/internal/report"
)

const shellHelp = `Parameters:
  hour <0-23>          hour of day for the hexagon and minute views
  injured <n>          minimum injured persons for the map
  class <name>         pedestrians, cyclists or motorists
Views:
  map | minutes | hexbins | streets | raw | report
Other:
  params | help | quit
`

// shell is the interactive explorer. Every parameter change recomputes the
// dashboard summary from the snapshot; repeated parameter sets hit the cache.
type shell struct {
	in         io.Reader
	out        io.Writer
	a          *analysis.Analyzer
	params     report.Params
	maxInjured int
	asJSON     bool

	// readerDone is closed once the input reader goroutine has exited.
	readerDone chan struct{}
}

func newShell(in io.Reader, out io.Writer, a *analysis.Analyzer, p report.Params, maxInjured int) *shell {
	return &shell{in: in, out: out, a: a, params: p, maxInjured: maxInjured}
}

// run reads commands until quit, end of input or ctx is cancelled.
// A reader blocked inside Scan exits once its next line arrives or the input closes.
func (s *shell) run(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	readerDone := make(chan struct{})
	s.readerDone = readerDone
	go func() {
		defer close(readerDone)
		defer close(lines)
		sc := bufio.NewScanner(s.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	fmt.Fprintf(s.out, "Exploring %s collisions. Type help for commands.\n", humanize.Comma(int64(s.a.Store().Len())))
	if err := s.summary(ctx); err != nil {
		return err
	}

	for {
		s.prompt()
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			quit, err := s.handle(ctx, line)
			if err != nil {
				if !errors.Is(err, analysis.ErrInvalidArgument) && !errors.Is(err, errUsage) {
					return err
				}
				fmt.Fprintf(s.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

var errUsage = errors.New("usage")

func (s *shell) prompt() {
	fmt.Fprintf(s.out, "crashmap [hour=%d injured>=%d class=%s]> ", s.params.Hour, s.params.MinInjured, s.params.Class)
}

// handle executes one command line.
func (s *shell) handle(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		fmt.Fprint(s.out, shellHelp)
		return false, nil
	case "params":
		fmt.Fprintf(s.out, "hour=%d injured>=%d class=%s\n", s.params.Hour, s.params.MinInjured, s.params.Class)
		return false, nil
	case "hour", "injured", "class":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: %s <value>", errUsage, cmd)
		}
		next, err := s.set(cmd, args[0])
		if err != nil {
			return false, err
		}
		s.params = next
		return false, s.summary(ctx)
	case "map", "minutes", "hexbins", "streets", "raw":
		return false, s.view(cmd)
	case "report":
		r, err := report.Build(ctx, s.a, s.params)
		if err != nil {
			return false, err
		}
		if s.asJSON {
			return false, report.WriteJSON(s.out, r)
		}
		return false, report.WriteText(s.out, r)
	}
	return false, fmt.Errorf("%w: unknown command %q, type help", errUsage, cmd)
}

// set returns the parameters with one value replaced. Out of range values
// are rejected, never clamped.
func (s *shell) set(name, value string) (report.Params, error) {
	p := s.params
	switch name {
	case "class":
		class, err := models.ParseInjuryClass(value)
		if err != nil {
			return p, fmt.Errorf("%w: %v", analysis.ErrInvalidArgument, err)
		}
		p.Class = class
		return p, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return p, fmt.Errorf("%w: %s must be an integer", analysis.ErrInvalidArgument, name)
	}
	switch name {
	case "hour":
		if n < 0 || n > 23 {
			return p, fmt.Errorf("%w: hour %d outside [0,23]", analysis.ErrInvalidArgument, n)
		}
		p.Hour = n
	case "injured":
		if n < 0 || n > s.maxInjured {
			return p, fmt.Errorf("%w: injured %d outside [0,%d]", analysis.ErrInvalidArgument, n, s.maxInjured)
		}
		p.MinInjured = n
	}
	return p, nil
}

// summary recomputes every view for the current parameters and prints one line per view.
func (s *shell) summary(ctx context.Context) error {
	r, err := report.Build(ctx, s.a, s.params)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.out, "  map:     %s collisions with at least %d injured\n", humanize.Comma(int64(len(r.MapPoints))), r.MinInjured)
	fmt.Fprintf(s.out, "  hexbins: %s collisions %s in %d cells, centre %.4f,%.4f (%s)\n",
		humanize.Comma(int64(r.Hexagons.Collisions)), r.Window, len(r.Hexagons.Bins),
		r.Hexagons.Center.Lat, r.Hexagons.Center.Lon, r.Hexagons.CenterSource)
	if len(r.Streets) > 0 {
		fmt.Fprintf(s.out, "  streets: %s leads for %s with %d injured\n", r.Streets[0].Street, r.Class, r.Streets[0].Count)
	} else {
		fmt.Fprintf(s.out, "  streets: no qualifying collisions for %s\n", r.Class)
	}
	return nil
}

func (s *shell) view(name string) error {
	var (
		v   any
		err error
	)
	switch name {
	case "map":
		v, err = s.a.MapPoints(s.params.MinInjured)
	case "minutes":
		v, err = s.a.Minutes(s.params.Hour)
	case "hexbins":
		v, err = s.a.Hexagons(s.params.Hour)
	case "streets":
		v, err = s.a.TopStreets(s.params.Class)
	case "raw":
		v, err = s.a.Raw(s.params.Hour)
	}
	if err != nil {
		return err
	}
	if s.asJSON {
		return report.WriteJSON(s.out, v)
	}

	switch v := v.(type) {
	case []models.MapPoint:
		return report.WriteMapPoints(s.out, v)
	case []models.MinuteCount:
		return report.WriteMinutes(s.out, v)
	case models.HexView:
		return report.WriteHexagons(s.out, v)
	case []models.StreetCount:
		return report.WriteStreets(s.out, v)
	case []models.CollisionRecord:
		return report.WriteRecords(s.out, v)
	}
	return nil
}
