package filter

import (
	"fmt"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/chathaven/haven-client/config"
	"github.com/chathaven/haven-client/globals"
	"github.com/chathaven/haven-client/types"
)

const (
	ActionSuppress  = "suppress"
	ActionHighlight = "highlight"
)

// A MessageFilter is one compiled filter rule from the configuration.
// Suppress rules drop an inbound message before it reaches the log,
// highlight rules tag it for the renderer.
type MessageFilter struct {
	Action  string
	program *vm.Program
}

// Compile compiles the configured filter rules. A rule that does not compile
// or names an unknown action is a configuration error.
func Compile(cfgs []config.FilterConfig) ([]*MessageFilter, error) {
	filters := make([]*MessageFilter, 0, len(cfgs))
	for _, fc := range cfgs {
		switch fc.Action {
		case ActionSuppress, ActionHighlight:
		default:
			return nil, fmt.Errorf("unknown filter action %q", fc.Action)
		}
		program, err := expr.Compile(fc.Expression, expr.Env(Env{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("could not compile filter %q: %w", fc.Expression, err)
		}
		filters = append(filters, &MessageFilter{Action: fc.Action, program: program})
	}
	return filters, nil
}

// Apply runs all filters over one inbound message and reports whether the
// message should be kept. Highlight matches mutate the message in place.
// Evaluation errors only skip the rule, they never drop the message.
func Apply(filters []*MessageFilter, msg *types.ChatMessage, room, self string) bool {
	if len(filters) == 0 {
		return true
	}
	env := Env{
		Room:     room,
		Username: msg.Username,
		Message:  msg.Message,
		Time:     msg.Time,
		Self:     msg.Username == self,
		Bot:      msg.FromBot(),
	}
	for _, f := range filters {
		res, err := expr.Run(f.program, env)
		if err != nil {
			globals.AppLogger.Error("filter evaluation failed", "error", err)
			continue
		}
		match, _ := res.(bool)
		if !match {
			continue
		}
		switch f.Action {
		case ActionSuppress:
			return false
		case ActionHighlight:
			msg.Highlight = true
		}
	}
	return true
}
