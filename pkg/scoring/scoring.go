// Package scoring turns one turn's transcript into proposed attribute
// updates. Every (rule, entity) pair is judged independently against the
// same start-of-turn snapshot; nothing here mutates world state.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jwebster45206/laissez-faire/pkg/formula"
	"github.com/jwebster45206/laissez-faire/pkg/judgment"
	"github.com/jwebster45206/laissez-faire/pkg/prompts"
	"github.com/jwebster45206/laissez-faire/pkg/scenario"
	"github.com/jwebster45206/laissez-faire/pkg/state"
)

// DefaultConcurrency bounds in-flight judgment requests.
const DefaultConcurrency = 4

// Judge requests a single judgment. *judgment.Client implements it.
type Judge interface {
	RequestJudgment(ctx context.Context, req judgment.Request) (judgment.Result, error)
}

type Config struct {
	Provider    string // scorer provider; empty uses the judge's default
	Concurrency int
}

// Scorer scores turns.
type Scorer struct {
	judge       Judge
	provider    string
	concurrency int
	logger      *slog.Logger
}

func New(judge Judge, cfg Config, logger *slog.Logger) *Scorer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{
		judge:       judge,
		provider:    cfg.Provider,
		concurrency: cfg.Concurrency,
		logger:      logger,
	}
}

// Input is everything needed to score one turn.
type Input struct {
	Scenario   *scenario.Scenario
	Entities   scenario.Entities // start-of-turn state; copied before use
	Transcript []state.Move
	Turn       int
}

type unit struct {
	rule   scenario.ScoringRule
	expr   *formula.Expr
	entity string
	score  *EntityScore
}

// ScoreTurn judges every rule against every entity and returns once all
// units have resolved. The only error is a context error, in which case
// the partial result must be discarded.
func (s *Scorer) ScoreTurn(ctx context.Context, in Input) (*Result, error) {
	snap := in.Entities.Clone()
	rules := in.Scenario.Rules()
	entities := snap.Keys()
	res := newResult(rules, entities)

	if len(rules) == 0 || len(entities) == 0 {
		return res, nil
	}

	units := make([]unit, 0, len(rules)*len(entities))
	for _, rule := range rules {
		var (
			expr       *formula.Expr
			compileErr error
		)
		if rule.Type == scenario.RuleCalculated {
			expr, compileErr = formula.Compile(rule.Calculation)
		}
		out := res.Outcomes[rule.Name]
		for i, key := range entities {
			sc := &out.Scores[i]
			if prev, ok := snap[key][rule.Name]; ok {
				p := prev
				sc.Previous = &p
			}
			if compileErr != nil {
				sc.Err = compileErr
				continue
			}
			units = append(units, unit{rule: rule, expr: expr, entity: key, score: sc})
		}
	}

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, u := range units {
		g.Go(func() error {
			if ctx.Err() != nil {
				u.score.Err = ctx.Err()
				return nil
			}
			s.scoreUnit(ctx, in, snap, u)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger.Info("turn scored",
		"turn", in.Turn,
		"units", len(units),
		"failed", res.FailedCount(),
		"duration", time.Since(start))
	return res, nil
}

func (s *Scorer) scoreUnit(ctx context.Context, in Input, snap scenario.Entities, u unit) {
	p := prompts.ScoringPrompt(u.rule, u.entity, snap[u.entity], in.Transcript, in.Turn)
	schema := u.rule.Schema()

	s.logger.Debug("scoring request",
		"turn", in.Turn,
		"rule", u.rule.Name,
		"entity", u.entity,
		"prompt", p.User)

	jr, err := s.judge.RequestJudgment(ctx, judgment.Request{
		Provider: s.provider,
		System:   p.System,
		Prompt:   p.User,
		Schema:   &schema,
	})
	if err != nil {
		u.score.Err = err
		s.logger.Warn("scoring judgment failed",
			"turn", in.Turn,
			"rule", u.rule.Name,
			"entity", u.entity,
			"error", err)
		return
	}
	j := jr.Value
	u.score.Judgment = &j

	committed, err := apply(u.rule, u.expr, u.score.Previous, j)
	if err != nil {
		u.score.Err = err
		s.logger.Warn("scoring calculation failed",
			"turn", in.Turn,
			"rule", u.rule.Name,
			"entity", u.entity,
			"error", err)
		return
	}
	u.score.Committed = &committed
}

// apply computes the committed value for one judgment.
func apply(rule scenario.ScoringRule, expr *formula.Expr, prev *scenario.Value, j scenario.Value) (scenario.Value, error) {
	if rule.Type != scenario.RuleCalculated {
		return j, nil
	}

	var current float64
	if prev != nil {
		n, ok := prev.Number()
		if !ok {
			return scenario.Value{}, &formula.FormulaError{
				Formula: rule.Calculation,
				Pos:     -1,
				Msg:     fmt.Sprintf("current_value is a %s, not a number", prev.Kind()),
			}
		}
		current = n
	}
	judged, ok := j.Number()
	if !ok {
		return scenario.Value{}, &formula.FormulaError{
			Formula: rule.Calculation,
			Pos:     -1,
			Msg:     fmt.Sprintf("llm_judgement is a %s, not a number", j.Kind()),
		}
	}

	v, err := expr.Eval(formula.Bindings{CurrentValue: current, LLMJudgement: judged})
	if err != nil {
		return scenario.Value{}, err
	}
	return scenario.NewNumber(v), nil
}
