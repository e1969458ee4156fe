package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"rigz/pkg/parser"
	"rigz/pkg/value"
)

// Result maps each program name to the last result it produced.
type Result struct {
	Values map[string]value.Value
}

// Run evaluates every program of rt. Each program threads a prior result
// through its statements, starting from None. Programs are independent of
// each other; up to WithParallelUnits of them run at once.
func Run(ctx context.Context, rt *Runtime, ra RunArgs) (Result, error) {
	res := Result{Values: make(map[string]value.Value, len(rt.programs))}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
		sem      = make(chan struct{}, rt.parallelUnits)
	)

	for _, prog := range rt.programs {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(prog parser.Program) {
			defer wg.Done()
			defer func() { <-sem }()

			v, err := rt.RunProgram(ctx, prog, ra)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				return
			}
			if _, dup := res.Values[prog.Name]; dup {
				rt.log.Warn("Duplicate program name, keeping the last result", "program", prog.Name)
			}
			res.Values[prog.Name] = v
		}(prog)
	}
	wg.Wait()

	if firstErr != nil {
		return res, firstErr
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// RunProgram evaluates one program and returns its final prior result.
// Under AllErrorsFatal the first failure is returned; otherwise a failed
// statement yields an Error value that becomes the prior result.
func (r *Runtime) RunProgram(ctx context.Context, prog parser.Program, ra RunArgs) (value.Value, error) {
	r.log.Info("Running", "program", prog.Name, "statements", len(prog.Statements))

	prior := value.None()
	for _, stmt := range prog.Statements {
		if err := ctx.Err(); err != nil {
			return prior, err
		}

		next, err := r.callFunction(ctx, stmt, prior, ra, 0)
		if err != nil {
			err = inProgram(err, prog.Name)
			if ra.AllErrorsFatal || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return prior, err
			}
			r.log.Warn("Statement failed", "program", prog.Name, "symbol", stmt.Name, "error", err)
			next = value.Error(err.Error())
		}
		prior = next
	}
	return prior, nil
}

// callFunction dispatches fc and applies the result to prior: None keeps
// the prior (unless PreferNoneOverPriorResult) and a FunctionCall result
// is dispatched in turn with the same prior.
func (r *Runtime) callFunction(ctx context.Context, fc value.FunctionCall, prior value.Value, ra RunArgs, depth int) (value.Value, error) {
	if depth > r.maxForwardDepth {
		return value.None(), &Diagnostic{
			Err:     ErrForwardDepth,
			Symbol:  fc.Name,
			Message: fmt.Sprintf("more than %d forwarded calls", r.maxForwardDepth),
		}
	}

	result, err := r.InvokeSymbol(ctx, fc.Name, fc.Args, fc.Definition, prior, ra)
	if err != nil {
		return value.None(), err
	}

	if result.IsNone() {
		if ra.PreferNoneOverPriorResult {
			return value.None(), nil
		}
		return prior, nil
	}
	if next, ok := result.AsFunctionCall(); ok {
		r.metrics.Forwarded()
		return r.callFunction(ctx, next, prior, ra, depth+1)
	}
	return result, nil
}
