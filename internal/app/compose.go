package app

// Pipeline processes a CallContext. It mutates the context's status and
// body and returns an error to abort.
type Pipeline func(c *CallContext) error

// Middleware is one stage of a pipeline. It runs the rest of the pipeline
// by calling next, at most once.
type Middleware func(c *CallContext, next func() error) error

// Compose chains middleware into a Pipeline. Each middleware wraps every
// middleware after it; calling next twice fails with ErrNextCalledTwice.
func Compose(mw ...Middleware) Pipeline {
	stack := make([]Middleware, len(mw))
	copy(stack, mw)

	return func(c *CallContext) error {
		index := -1
		var dispatch func(i int) error
		dispatch = func(i int) error {
			if i <= index {
				return ErrNextCalledTwice
			}
			index = i
			if i == len(stack) {
				return nil
			}
			return stack[i](c, func() error { return dispatch(i + 1) })
		}
		return dispatch(0)
	}
}
