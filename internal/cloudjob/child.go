package cloudjob

import "context"

// runChild builds a child job from the parent's options and runs it to
// completion. A child failure, cancellation included, is returned unchanged;
// the parent never tries an alternative.
func runChild[C any](ctx context.Context, parent *core, build func(Options) *Job[C]) (C, error) {
	var zero C
	if err := parent.checkSignal(ctx); err != nil {
		return zero, err
	}

	child := build(parent.childOptions())
	result, err := child.Run(ctx)
	if err != nil {
		return zero, err
	}

	if err := parent.checkSignal(ctx); err != nil {
		return zero, err
	}
	return result, nil
}
