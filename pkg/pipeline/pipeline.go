// Package pipeline threads a payload through an ordered list of interceptors
// that end in a terminal callback.
//
// Each interceptor receives the payload and a next function for the rest of
// the chain. An interceptor may pass through by returning next(payload),
// override the result by calling next and returning something else, alter
// the payload seen downstream by calling next with a modified value, or
// short-circuit the chain by never calling next at all.
package pipeline

// Interceptor is one stage of a pipeline.
type Interceptor[P, R any] func(payload P, next func(P) R) R

// Run sends payload through interceptors, in order, and finally to terminal.
// With no interceptors, terminal is called directly with payload.
func Run[P, R any](payload P, interceptors []Interceptor[P, R], terminal func(P) R) R {
	return compose(interceptors, terminal)(payload)
}

// compose folds the interceptors from the terminal outward so that the
// first interceptor becomes the outermost continuation.
func compose[P, R any](interceptors []Interceptor[P, R], terminal func(P) R) func(P) R {
	next := terminal
	for i := len(interceptors) - 1; i >= 0; i-- {
		interceptor, rest := interceptors[i], next
		next = func(payload P) R {
			return interceptor(payload, rest)
		}
	}
	return next
}

// Pipeline is a fluent builder around Run.
//
//	ok := pipeline.New[Props, bool]().
//		Send(props).
//		Through(hooks...).
//		Then(decide)
type Pipeline[P, R any] struct {
	payload      P
	interceptors []Interceptor[P, R]
}

// New returns an empty pipeline.
func New[P, R any]() *Pipeline[P, R] {
	return &Pipeline[P, R]{}
}

// Send sets the payload the pipeline starts with.
func (p *Pipeline[P, R]) Send(payload P) *Pipeline[P, R] {
	p.payload = payload
	return p
}

// Through appends interceptors to the pipeline.
func (p *Pipeline[P, R]) Through(interceptors ...Interceptor[P, R]) *Pipeline[P, R] {
	p.interceptors = append(p.interceptors, interceptors...)
	return p
}

// Then runs the pipeline with terminal as the innermost stage.
func (p *Pipeline[P, R]) Then(terminal func(P) R) R {
	return Run(p.payload, p.interceptors, terminal)
}
