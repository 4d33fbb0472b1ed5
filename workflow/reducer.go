package workflow

// Reducer defines how a field of the state merges an update into its current value.
type Reducer[T any] func(current T, update T) T

// Built-in reducers

// LastValueReducer returns the most recent value (default).
func LastValueReducer[T any]() Reducer[T] {
	return func(_, update T) T {
		return update
	}
}

// AppendReducer appends slices together. The result never aliases current.
func AppendReducer[T any]() Reducer[[]T] {
	return func(current, update []T) []T {
		result := make([]T, 0, len(current)+len(update))
		result = append(result, current...)
		result = append(result, update...)
		return result
	}
}

// MaxReducer keeps the maximum value.
func MaxReducer[T ~int | ~int64 | ~float64]() Reducer[T] {
	return func(current, update T) T {
		if update > current {
			return update
		}
		return current
	}
}

// Optional applies r only when update is non-nil; a nil update keeps current.
func Optional[T any](r Reducer[T]) Reducer[*T] {
	return func(current, update *T) *T {
		if update == nil {
			return current
		}
		if current == nil {
			v := *update
			return &v
		}
		v := r(*current, *update)
		return &v
	}
}
