package trigger

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/PaesslerAG/jsonpath"
	"github.com/bmatcuk/doublestar/v4"
)

// jsonPathToken finds payload references such as $.pull_request.draft or
// $.commits[0].id inside an expression.
var jsonPathToken = regexp.MustCompile(`\$(?:\.[A-Za-z_][A-Za-z0-9_\-]*|\[[0-9]+\]|\[\*\])+`)

const jsonPathParam = "payload_path_"

// Expression is a compiled boolean "when" clause.
//
// Canonical fields are plain parameters (branch, ref, ref_kind, actor,
// revision, repository, provider, event_type, commit_message, commit_count,
// changed_paths, action, source_branch, target_branch, title). Payload
// fields are reachable as JSONPath ($.pull_request.draft) or as escaped
// flattened keys ([pull_request.draft]). Functions: contains(list|string,
// value), glob(value, pattern), startsWith(value, prefix).
type Expression struct {
	source string
	expr   *govaluate.EvaluableExpression
	paths  map[string]string
}

var expressionFunctions = map[string]govaluate.ExpressionFunction{
	"contains": func(args ...interface{}) (interface{}, error) {
		// govaluate splices a leading []interface{} argument into args, so a
		// payload list arrives as its elements followed by the needle.
		switch len(args) {
		case 0:
			return nil, errors.New("contains expects 2 arguments")
		case 1:
			return false, nil
		case 2:
			return containsValue(args[0], args[1]), nil
		}
		return containsValue(args[:len(args)-1], args[len(args)-1]), nil
	},
	"glob": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, errors.New("glob expects 2 arguments")
		}
		value, _ := args[0].(string)
		pattern, _ := args[1].(string)
		ok, err := doublestar.Match(pattern, value)
		if err != nil {
			return nil, err
		}
		return ok, nil
	},
	"startsWith": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, errors.New("startsWith expects 2 arguments")
		}
		value, _ := args[0].(string)
		prefix, _ := args[1].(string)
		return strings.HasPrefix(value, prefix), nil
	},
}

// CompileExpression parses a when clause.
func CompileExpression(source string) (*Expression, error) {
	paths := make(map[string]string)
	index := 0
	rewritten := jsonPathToken.ReplaceAllStringFunc(source, func(token string) string {
		name := fmt.Sprintf("%s%d", jsonPathParam, index)
		index++
		paths[name] = token
		return name
	})
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(rewritten, expressionFunctions)
	if err != nil {
		return nil, err
	}
	return &Expression{source: source, expr: expr, paths: paths}, nil
}

// String returns the clause as written.
func (x *Expression) String() string { return x.source }

// Eval evaluates the clause against evt. Non-boolean results are an error.
func (x *Expression) Eval(evt *CanonicalEvent) (bool, error) {
	result, err := x.expr.Eval(&eventParameters{evt: evt, paths: x.paths})
	if err != nil {
		return false, err
	}
	ok, isBool := result.(bool)
	if !isBool {
		return false, fmt.Errorf("expression returned %T, want bool", result)
	}
	return ok, nil
}

// eventParameters resolves expression variables lazily so payload documents
// are only walked when a clause references them.
type eventParameters struct {
	evt   *CanonicalEvent
	paths map[string]string
}

func (p *eventParameters) Get(name string) (interface{}, error) {
	if path, ok := p.paths[name]; ok {
		doc := p.evt.Document()
		if doc == nil {
			return nil, nil
		}
		value, err := jsonpath.Get(path, doc)
		if err != nil {
			return nil, nil
		}
		return value, nil
	}
	if value, ok := canonicalParameter(p.evt, name); ok {
		return value, nil
	}
	if value, ok := p.evt.flatDocument()[name]; ok {
		return value, nil
	}
	return nil, fmt.Errorf("no parameter %q", name)
}

func canonicalParameter(evt *CanonicalEvent, name string) (interface{}, bool) {
	switch name {
	case "provider":
		return string(evt.Provider), true
	case "event_type":
		return string(evt.EventType), true
	case "repository":
		return evt.Repository, true
	case "branch":
		return evt.BranchOrTag, true
	case "ref":
		return evt.RefName, true
	case "ref_kind":
		return string(evt.RefKind), true
	case "actor":
		return evt.Actor, true
	case "revision":
		return evt.Revision, true
	case "commit_message":
		return evt.CommitMessage, true
	case "commit_count":
		return float64(evt.CommitCount), true
	case "changed_paths":
		// A []interface{} argument would be spliced into the argument list
		// of a function call, so lists are passed as []string.
		return append([]string(nil), evt.ChangedPaths...), true
	case "action":
		return evt.Action, true
	case "source_branch":
		return evt.SourceBranch, true
	case "target_branch":
		return evt.TargetBranch, true
	case "title":
		return evt.Title, true
	}
	return nil, false
}

func containsValue(haystack, needle interface{}) bool {
	switch typed := haystack.(type) {
	case string:
		s, ok := needle.(string)
		return ok && strings.Contains(typed, s)
	case []interface{}:
		for _, item := range typed {
			if scalarEqual(item, needle) {
				return true
			}
		}
	case []string:
		s, ok := needle.(string)
		if !ok {
			return false
		}
		for _, item := range typed {
			if item == s {
				return true
			}
		}
	}
	return false
}

// ExpressionFilter passes when its clause evaluates to true. Evaluation
// errors reject with the error as the reason.
type ExpressionFilter struct {
	expr *Expression
}

func NewExpressionFilter(expr *Expression) *ExpressionFilter {
	return &ExpressionFilter{expr: expr}
}

func (f *ExpressionFilter) Name() string { return FilterExpression }

func (f *ExpressionFilter) Evaluate(evt *CanonicalEvent) Verdict {
	ok, err := f.expr.Eval(evt)
	if err != nil {
		return Reject(fmt.Sprintf("expression %q failed: %v", f.expr, err))
	}
	if !ok {
		return Reject(fmt.Sprintf("expression %q is false", f.expr))
	}
	return Pass(fmt.Sprintf("expression %q is true", f.expr))
}

func scalarEqual(a, b interface{}) bool {
	switch a.(type) {
	case string, float64, bool, nil:
		return a == b
	}
	return false
}
