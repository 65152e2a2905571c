// Package stream provides a small pull-based iterator used to chain task
// transforms.
//
// A Stream is finite and single pass: once Next has reported the end or an
// error, every later call reports the same thing, and there is no way to
// rewind. Combinators such as Map and Filter wrap their input lazily; no
// element is produced until the outermost stream is pulled.
package stream

// Stream is a lazy, single-pass sequence of values.
type Stream[T any] struct {
	pull func() (T, bool, error)
	done bool
	err  error
}

// New wraps a pull function. pull returns the next value and true, or false
// when exhausted. It is never called again after returning false or an error.
func New[T any](pull func() (T, bool, error)) *Stream[T] {
	return &Stream[T]{pull: pull}
}

// FromSlice streams the items of a slice in order.
func FromSlice[T any](items []T) *Stream[T] {
	i := 0
	return New(func() (T, bool, error) {
		var zero T
		if i >= len(items) {
			return zero, false, nil
		}
		v := items[i]
		i++
		return v, true, nil
	})
}

// Empty returns an exhausted stream.
func Empty[T any]() *Stream[T] {
	return FromSlice[T](nil)
}

// Fail returns a stream whose first pull reports err.
func Fail[T any](err error) *Stream[T] {
	return New(func() (T, bool, error) {
		var zero T
		return zero, false, err
	})
}

// Next pulls the next value.
func (s *Stream[T]) Next() (T, bool, error) {
	var zero T
	if s.err != nil {
		return zero, false, s.err
	}
	if s.done {
		return zero, false, nil
	}
	v, ok, err := s.pull()
	if err != nil {
		s.err = err
		return zero, false, err
	}
	if !ok {
		s.done = true
		return zero, false, nil
	}
	return v, true, nil
}

// Collect drains the stream into a slice.
func (s *Stream[T]) Collect() ([]T, error) {
	var out []T
	for {
		v, ok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}

// Map applies fn to every value of in.
func Map[T, U any](in *Stream[T], fn func(T) (U, error)) *Stream[U] {
	return New(func() (U, bool, error) {
		var zero U
		v, ok, err := in.Next()
		if err != nil || !ok {
			return zero, false, err
		}
		out, err := fn(v)
		if err != nil {
			return zero, false, err
		}
		return out, true, nil
	})
}

// Filter keeps the values of in for which keep returns true.
func Filter[T any](in *Stream[T], keep func(T) bool) *Stream[T] {
	return New(func() (T, bool, error) {
		for {
			v, ok, err := in.Next()
			if err != nil || !ok {
				return v, false, err
			}
			if keep(v) {
				return v, true, nil
			}
		}
	})
}

// FlatMap replaces every value of in with the values fn returns for it.
func FlatMap[T, U any](in *Stream[T], fn func(T) ([]U, error)) *Stream[U] {
	var buf []U
	return New(func() (U, bool, error) {
		var zero U
		for len(buf) == 0 {
			v, ok, err := in.Next()
			if err != nil || !ok {
				return zero, false, err
			}
			if buf, err = fn(v); err != nil {
				return zero, false, err
			}
		}
		out := buf[0]
		buf = buf[1:]
		return out, true, nil
	})
}
