package resolver

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"go.uber.org/multierr"

	"github.com/cradleio/cradle/internal/descriptor"
	"github.com/cradleio/cradle/internal/introspect"
	"github.com/cradleio/cradle/internal/merge"
)

// Resolve selects the best-matching executable for the request and builds
// its argument arrays. With no explicit arguments a previously cached plan
// is replayed; otherwise candidates are probed in greedy order and scored
// by type distance.
func (r *Resolver) Resolve(req *Request) (*Plan, error) {
	if len(req.ExplicitArgs) == 0 {
		plan, ok, err := r.replayCached(req.Ctx, req.Flattened)
		if err != nil {
			return nil, err
		}
		if ok {
			return plan, nil
		}
	}

	if len(req.Candidates) == 0 {
		return nil, &NoCandidateError{Name: req.Name}
	}

	declared := req.Declared
	if declared == nil {
		declared = req.Flattened.Args
	}
	if declared == nil {
		declared = descriptor.NewArgumentValues()
	}

	// Common case: one zero-parameter candidate and nothing declared.
	if len(req.Candidates) == 1 && len(req.ExplicitArgs) == 0 &&
		declared.IsEmpty() && req.Candidates[0].ParamCount() == 0 {
		plan := &Plan{Executable: req.Candidates[0], Args: []any{}, RawArgs: []any{}}
		r.cachePlan(req, plan, nil)
		return plan, nil
	}

	minArgs := len(req.ExplicitArgs)
	if minArgs == 0 {
		minArgs = declared.MinParams()
	}

	// Greedy-first ordering: more parameters before fewer, exported before
	// unexported on equal count.
	candidates := append([]*introspect.Executable(nil), req.Candidates...)
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].ParamCount() != candidates[j].ParamCount() {
			return candidates[i].ParamCount() > candidates[j].ParamCount()
		}
		return candidates[i].Exported && !candidates[j].Exported
	})

	lastResort := len(candidates) == 1

	var (
		winner    *boundCandidate
		minWeight = maxPenalty
		ambiguous []*introspect.Executable

		bestFailure      *candidateError
		bestFailureDepth = -1
		suppressed       error
	)

	for _, cand := range candidates {
		// Once a satisfying match exists with more parameters than any
		// remaining candidate accepts, the search is over.
		if winner != nil && cand.ParamCount() < winner.exec.ParamCount() {
			break
		}
		if cand.ParamCount() < minArgs {
			continue
		}

		outcome := r.probe(req, cand, declared, lastResort)
		if !outcome.bound {
			ce := &candidateError{executable: cand, cause: outcome.reason}
			if outcome.boundParams > bestFailureDepth {
				if bestFailure != nil {
					suppressed = multierr.Append(suppressed, bestFailure)
				}
				bestFailure = ce
				bestFailureDepth = outcome.boundParams
			} else {
				suppressed = multierr.Append(suppressed, ce)
			}
			continue
		}

		weight := r.score(cand, outcome)
		switch {
		case weight < minWeight:
			winner = outcome
			minWeight = weight
			ambiguous = nil
		case winner != nil && weight == minWeight && weight < maxPenalty:
			ambiguous = append(ambiguous, cand)
		}
	}

	if winner == nil {
		var cause error
		if bestFailure != nil {
			cause = bestFailure.cause
		}
		return nil, &BindingError{Name: req.Name, Cause: cause, Suppressed: suppressed}
	}

	if r.options.Strict && len(ambiguous) > 0 {
		all := append([]*introspect.Executable{winner.exec}, ambiguous...)
		return nil, &AmbiguityError{Name: req.Name, Candidates: all}
	}

	plan := &Plan{
		Executable: winner.exec,
		Args:       winner.converted,
		RawArgs:    winner.raw,
	}

	if len(req.ExplicitArgs) == 0 {
		r.cachePlan(req, plan, winner.template)
	}
	return plan, nil
}

// boundCandidate is the outcome of a successful probe.
type boundCandidate struct {
	bound     bool
	exec      *introspect.Executable
	raw       []any
	converted []any

	// template mirrors raw but keeps *DynamicSlot markers at positions
	// resolved dynamically; nil when every value is literal.
	template []any

	// probe failure details
	reason      error
	boundParams int
}

// probe attempts to bind every parameter of one candidate, returning a
// tagged outcome instead of driving control flow through errors.
func (r *Resolver) probe(req *Request, cand *introspect.Executable, declared *descriptor.ArgumentValues, lastResort bool) *boundCandidate {
	out := &boundCandidate{exec: cand}

	if len(req.ExplicitArgs) > 0 {
		return r.probeExplicit(req, cand, out)
	}

	n := cand.ParamCount()
	out.raw = make([]any, n)
	out.converted = make([]any, n)

	usedGeneric := make([]bool, len(declared.Generic))
	dynamic := false
	template := make([]any, n)

	for i := 0; i < n; i++ {
		paramType := cand.ParamTypes[i]
		paramName := ""
		if i < len(cand.ParamNames) {
			paramName = cand.ParamNames[i]
		}

		av := matchDeclared(declared, usedGeneric, i, paramName, paramType)
		if av != nil {
			raw := av.Value
			converted, err := r.convertDeclared(av, paramType)
			if err != nil {
				out.reason = fmt.Errorf("parameter %d (%s): %w", i, paramType, err)
				out.boundParams = i
				return out
			}
			out.raw[i] = raw
			out.converted[i] = converted
			if av.Dynamic {
				dynamic = true
				template[i] = &DynamicSlot{Site: ParameterSite{
					Executable: cand, Index: i, Type: paramType, Name: paramName,
				}}
			} else {
				template[i] = raw
			}
			continue
		}

		if req.Autowire && r.deps != nil {
			site := ParameterSite{Executable: cand, Index: i, Type: paramType, Name: paramName}
			value, err := r.deps.ResolveDependency(req.Ctx, site, req.Name)
			if err != nil {
				if lastResort && errors.Is(err, ErrDependencyNotFound) {
					if empty, ok := emptyCollection(paramType); ok {
						out.raw[i] = empty
						out.converted[i] = empty
						template[i] = empty
						continue
					}
				}
				out.reason = fmt.Errorf("parameter %d (%s): %w", i, paramType, err)
				out.boundParams = i
				return out
			}
			converted, err := r.converter.Convert(value, paramType)
			if err != nil {
				out.reason = fmt.Errorf("parameter %d (%s): %w", i, paramType, err)
				out.boundParams = i
				return out
			}
			out.raw[i] = value
			out.converted[i] = converted
			dynamic = true
			template[i] = &DynamicSlot{Site: site}
			continue
		}

		out.reason = fmt.Errorf("no declared value for parameter %d (%s)", i, paramType)
		out.boundParams = i
		return out
	}

	out.bound = true
	if dynamic {
		out.template = template
	}
	return out
}

// probeExplicit binds caller-supplied arguments. Explicit arguments fix the
// required parameter count exactly.
func (r *Resolver) probeExplicit(req *Request, cand *introspect.Executable, out *boundCandidate) *boundCandidate {
	if cand.ParamCount() != len(req.ExplicitArgs) {
		out.reason = fmt.Errorf("takes %d parameters, %d explicit arguments supplied",
			cand.ParamCount(), len(req.ExplicitArgs))
		return out
	}

	out.raw = append([]any(nil), req.ExplicitArgs...)
	out.converted = make([]any, len(req.ExplicitArgs))
	for i, raw := range req.ExplicitArgs {
		converted, err := r.converter.Convert(raw, cand.ParamTypes[i])
		if err != nil {
			out.reason = fmt.Errorf("parameter %d (%s): %w", i, cand.ParamTypes[i], err)
			out.boundParams = i
			return out
		}
		out.converted[i] = converted
	}
	out.bound = true
	return out
}

// matchDeclared finds the declared value for a parameter position: index
// match first, then name match, then generic untyped fallback.
func matchDeclared(declared *descriptor.ArgumentValues, usedGeneric []bool, index int, paramName string, paramType reflect.Type) *descriptor.ArgumentValue {
	if declared == nil {
		return nil
	}

	if av, ok := declared.Indexed[index]; ok {
		if typeNameMatches(av, paramType) {
			return av
		}
	}

	if paramName != "" {
		for gi, av := range declared.Generic {
			if !usedGeneric[gi] && av.Name == paramName && typeNameMatches(av, paramType) {
				usedGeneric[gi] = true
				return av
			}
		}
	}

	for gi, av := range declared.Generic {
		if !usedGeneric[gi] && av.Name == "" && typeNameMatches(av, paramType) {
			usedGeneric[gi] = true
			return av
		}
	}

	return nil
}

// typeNameMatches checks an argument value's optional declared type-name
// constraint against the parameter type.
func typeNameMatches(av *descriptor.ArgumentValue, paramType reflect.Type) bool {
	if av.TypeName == "" {
		return true
	}
	return av.TypeName == paramType.String() || av.TypeName == paramType.Name()
}

// convertDeclared converts a declared value, reusing its per-value
// conversion cache.
func (r *Resolver) convertDeclared(av *descriptor.ArgumentValue, target reflect.Type) (any, error) {
	if cached, ok := av.Converted(); ok {
		if cached == nil || reflect.TypeOf(cached).AssignableTo(target) {
			return cached, nil
		}
	}
	converted, err := r.converter.Convert(av.Value, target)
	if err != nil {
		return nil, err
	}
	if !av.Dynamic {
		av.SetConverted(converted)
	}
	return converted, nil
}

// score computes the candidate's type-distance weight. Lenient mode takes
// the minimum of the converted-value distance and the raw-value distance
// minus a fixed bias, so raw exact matches win ties. Strict mode requires
// full assignability of both arrays or disqualifies the candidate.
func (r *Resolver) score(cand *introspect.Executable, outcome *boundCandidate) int {
	params := cand.ParamTypes

	if r.options.Strict {
		if !assignableAll(params, outcome.converted) || !assignableAll(params, outcome.raw) {
			return maxPenalty
		}
		return typeDistance(params, outcome.converted)
	}

	wConverted := typeDistance(params, outcome.converted)
	wRaw := typeDistance(params, outcome.raw)
	if wRaw != maxPenalty {
		wRaw -= rawBias
	}
	if wRaw < wConverted {
		return wRaw
	}
	return wConverted
}

// replayCached serves the fast path from the descriptor's cached plan. A
// prepared template re-derives only its dynamic positions; literal plans
// replay directly.
func (r *Resolver) replayCached(ctx context.Context, flt *merge.Flattened) (*Plan, bool, error) {
	flt.CacheMu.Lock()
	exec := flt.ResolvedExecutable
	state := flt.ArgState
	resolved := append([]any(nil), flt.ResolvedArgs...)
	template := append([]any(nil), flt.RawArgs...)
	flt.CacheMu.Unlock()

	if exec == nil || state == merge.ArgsUnresolved {
		return nil, false, nil
	}

	if state == merge.ArgsResolved {
		return &Plan{
			Executable: exec,
			Args:       resolved,
			RawArgs:    template,
			Replayed:   true,
		}, true, nil
	}

	// ArgsPrepared: dynamic dependencies are fetched fresh on every reuse.
	args := make([]any, len(template))
	raw := make([]any, len(template))
	for i, slot := range template {
		ds, dynamic := slot.(*DynamicSlot)
		if !dynamic {
			raw[i] = slot
			converted, err := r.converter.Convert(slot, exec.ParamTypes[i])
			if err != nil {
				return nil, false, err
			}
			args[i] = converted
			continue
		}
		if r.deps == nil {
			return nil, false, fmt.Errorf("cached plan for %q needs dependency resolution but no resolver is configured", flt.Name)
		}
		value, err := r.deps.ResolveDependency(ctx, ds.Site, flt.Name)
		if err != nil {
			return nil, false, err
		}
		converted, err := r.converter.Convert(value, exec.ParamTypes[i])
		if err != nil {
			return nil, false, err
		}
		raw[i] = value
		args[i] = converted
	}

	return &Plan{Executable: exec, Args: args, RawArgs: raw, Replayed: true}, true, nil
}

// cachePlan stores the winning plan on the flattened descriptor. Plans with
// dynamic values store the pre-conversion template and the prepared marker
// instead of frozen literals.
func (r *Resolver) cachePlan(req *Request, plan *Plan, template []any) {
	if !req.CachePlan {
		return
	}

	flt := req.Flattened
	flt.CacheMu.Lock()
	defer flt.CacheMu.Unlock()

	flt.ResolvedExecutable = plan.Executable
	if template != nil {
		flt.ArgState = merge.ArgsPrepared
		flt.ResolvedArgs = nil
		flt.RawArgs = template
		return
	}
	flt.ArgState = merge.ArgsResolved
	flt.ResolvedArgs = append([]any(nil), plan.Args...)
	flt.RawArgs = append([]any(nil), plan.RawArgs...)
}
