package analytics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Command identifies an analytics query. The numeric values are the
// interactive menu choices.
type Command int

const (
	CmdExit Command = iota
	CmdAverageClose
	CmdFilterSymbol
	CmdCorrelation
	CmdVolumeSince
	CmdVolumePerBucket
	CmdGapFilled
	CmdMovingAverage
	CmdVolatility
	CmdSelectAll
)

// ErrUnknownCommand is returned for commands without a handler.
var ErrUnknownCommand = errors.New("unknown command")

var commandInfo = map[Command]struct {
	name, title string
}{
	CmdExit:            {"exit", "Exit"},
	CmdAverageClose:    {"average-close", "Average closing price for each symbol"},
	CmdFilterSymbol:    {"filter-symbol", "Filter data based on a symbol"},
	CmdCorrelation:     {"correlation", "Correlation of the numeric columns"},
	CmdVolumeSince:     {"volume-since", "Average trading volume of the last quarter"},
	CmdVolumePerBucket: {"volume-per-bucket", "Average volume per hour"},
	CmdGapFilled:       {"gapfill", "Close per day with gaps filled"},
	CmdMovingAverage:   {"moving-average", "Moving average of a symbol's close"},
	CmdVolatility:      {"volatility", "Volatility for each symbol"},
	CmdSelectAll:       {"select-all", "All observations"},
}

func (c Command) String() string {
	if info, ok := commandInfo[c]; ok {
		return info.name
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// Title returns the menu label of the command.
func (c Command) Title() string {
	if info, ok := commandInfo[c]; ok {
		return info.title
	}
	return c.String()
}

// NeedsSymbol reports whether the command reads Args.Symbol.
func (c Command) NeedsSymbol() bool {
	return c == CmdFilterSymbol || c == CmdMovingAverage
}

// Commands returns every runnable command in menu order.
func Commands() []Command {
	cmds := make([]Command, 0, len(Dispatch))
	for c := CmdAverageClose; c <= CmdSelectAll; c++ {
		if _, ok := Dispatch[c]; ok {
			cmds = append(cmds, c)
		}
	}
	return cmds
}

// ParseCommand accepts a command name or its menu number.
func ParseCommand(s string) (Command, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		c := Command(n)
		if _, ok := commandInfo[c]; ok {
			return c, nil
		}
		return 0, fmt.Errorf("%w: %d", ErrUnknownCommand, n)
	}
	for c, info := range commandInfo {
		if info.name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// Args carries optional command parameters. Zero values select defaults.
type Args struct {
	Symbol   string
	Window   int
	Interval string // Trailing range for CmdVolumeSince
	Bucket   string // Bucket width for CmdVolumePerBucket and CmdGapFilled
}

// Handler runs one command.
type Handler func(ctx context.Context, r *Reader, args Args) (*Table, error)

// Dispatch maps commands to their handlers.
var Dispatch = map[Command]Handler{
	CmdAverageClose: func(ctx context.Context, r *Reader, _ Args) (*Table, error) {
		return r.AverageClose(ctx)
	},
	CmdFilterSymbol: func(ctx context.Context, r *Reader, a Args) (*Table, error) {
		return r.FilterSymbol(ctx, a.Symbol)
	},
	CmdCorrelation: func(ctx context.Context, r *Reader, _ Args) (*Table, error) {
		return r.Correlation(ctx)
	},
	CmdVolumeSince: func(ctx context.Context, r *Reader, a Args) (*Table, error) {
		return r.AverageVolumeSince(ctx, a.Interval)
	},
	CmdVolumePerBucket: func(ctx context.Context, r *Reader, a Args) (*Table, error) {
		return r.AverageVolumePerBucket(ctx, a.Bucket)
	},
	CmdGapFilled: func(ctx context.Context, r *Reader, a Args) (*Table, error) {
		return r.GapFilled(ctx, a.Bucket)
	},
	CmdMovingAverage: func(ctx context.Context, r *Reader, a Args) (*Table, error) {
		return r.MovingAverage(ctx, a.Symbol, a.Window)
	},
	CmdVolatility: func(ctx context.Context, r *Reader, a Args) (*Table, error) {
		return r.Volatility(ctx, a.Window)
	},
	CmdSelectAll: func(ctx context.Context, r *Reader, _ Args) (*Table, error) {
		return r.SelectAll(ctx)
	},
}

// Run executes cmd through the dispatch table.
func (r *Reader) Run(ctx context.Context, cmd Command, args Args) (*Table, error) {
	h, ok := Dispatch[cmd]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
	t, err := h(ctx, r, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}
	return t, nil
}
