package retry

import "context"

// DoWithResult is a type-safe helper around Retryer.Do.
//
//	text, err := retry.DoWithResult(ctx, r, func() (string, error) {
//	    return complete(ctx, prompt)
//	})
func DoWithResult[T any](ctx context.Context, r Retryer, fn func() (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
