package harness

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/pathql/internal/compiler"
	"github.com/roach88/pathql/internal/diag"
	"github.com/roach88/pathql/internal/explain"
	"github.com/roach88/pathql/internal/ir"
	"github.com/roach88/pathql/internal/qlast"
	"github.com/roach88/pathql/internal/sdl"
)

// Harness runs scenarios. Schemas are loaded once per path.
type Harness struct {
	logger  *slog.Logger
	schemas map[string]*sdl.Result
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger routes harness and compiler logs to l. By default they are
// discarded.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{
		logger:  slog.New(slog.DiscardHandler),
		schemas: make(map[string]*sdl.Result),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a fresh Harness.
func Run(scenario *Scenario) (*Result, error) {
	return New().Run(scenario)
}

// Run compiles the scenario's query and checks the outcome.
//
// The returned error covers failures to run the scenario at all: an
// unreadable schema, a malformed query, or an error that is not a
// structured compile error. A compilation that fails or succeeds against
// expectations is reported through Result.Pass.
func (h *Harness) Run(scenario *Scenario) (*Result, error) {
	loaded, err := h.schema(scenario.Schema)
	if err != nil {
		return nil, err
	}

	q, err := qlast.DecodeStatement([]byte(scenario.Query))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: decode query: %w", scenario.Name, err)
	}

	module := scenario.Options.Module
	if module == "" {
		module = loaded.Module
	}
	stmt, err := compiler.Compile(loaded.Schema, q,
		compiler.WithModule(module),
		compiler.WithImplicitIDInShapes(scenario.Options.ImplicitID),
		compiler.WithImplicitTidInShapes(scenario.Options.ImplicitTid),
		compiler.WithAllowGenericTypeOutput(scenario.Options.AllowGenericOutput),
		compiler.WithLogger(h.logger),
		compiler.WithIDGenerator(ir.NewFixedGenerator(scenario.Name)),
	)

	result := NewResult()
	if err != nil {
		var de *diag.Error
		if !errors.As(err, &de) {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
		result.CompileError = de
		checkError(result, scenario.Expect, de)
		h.logger.Debug("scenario compiled with error",
			"scenario", scenario.Name,
			"code", de.Code,
			"pass", result.Pass)
		return result, nil
	}

	plan, err := explain.Explain(stmt)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	result.Statement = stmt
	result.ResultType = plan.ResultType
	result.Cardinality = plan.Cardinality.String()
	result.Refs = plan.Refs
	result.Plan = plan.Text()

	checkStatement(result, scenario.Expect)
	for _, a := range scenario.Assertions {
		checkAssertion(result, a)
	}

	h.logger.Debug("scenario compiled",
		"scenario", scenario.Name,
		"result_type", result.ResultType,
		"cardinality", result.Cardinality,
		"pass", result.Pass)
	return result, nil
}

func (h *Harness) schema(path string) (*sdl.Result, error) {
	if res, ok := h.schemas[path]; ok {
		return res, nil
	}
	res, err := sdl.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", path, err)
	}
	h.schemas[path] = res
	return res, nil
}
