package disruptions

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/travigo/railcontrol/pkg/ctdf"
)

// PriorityScorer evaluates the configured priority expression against a
// disruption. Variables available to the expression are listed in scoreEnv.
type PriorityScorer struct {
	program *vm.Program
}

func NewPriorityScorer(expression string) (*PriorityScorer, error) {
	program, err := expr.Compile(expression, expr.Env(scoreEnv(&ctdf.Disruption{})))
	if err != nil {
		return nil, fmt.Errorf("compiling priority score expression: %w", err)
	}

	return &PriorityScorer{program: program}, nil
}

func scoreEnv(d *ctdf.Disruption) map[string]any {
	durationMinutes := 0.0
	if end := d.End(); !end.IsZero() {
		durationMinutes = end.Sub(d.StartTime).Minutes()
	}

	return map[string]any{
		"severity":                string(d.Severity),
		"severity_rank":           d.Severity.Rank(),
		"type":                    string(d.Type),
		"sections":                d.Sections,
		"duration_minutes":        durationMinutes,
		"open_ended":              d.End().IsZero(),
		"delayed_trains":          d.Impact.DelayedTrains,
		"cancelled_trains":        d.Impact.CancelledTrains,
		"estimated_delay_minutes": d.Impact.EstimatedDelayMinutes,
		"affected_passengers":     d.Impact.AffectedPassengers,
	}
}

func (p *PriorityScorer) Score(d *ctdf.Disruption) (float64, error) {
	output, err := expr.Run(p.program, scoreEnv(d))
	if err != nil {
		return 0, err
	}

	switch value := output.(type) {
	case int:
		return float64(value), nil
	case float64:
		return value, nil
	case bool:
		if value {
			return 1, nil
		}
		return 0, nil
	}

	return 0, fmt.Errorf("priority score expression returned %T", output)
}
