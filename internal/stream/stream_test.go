package stream

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSlice(t *testing.T) {
	s := FromSlice([]int{1, 2, 3})
	out, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, out)

	// Single pass: a drained stream stays drained.
	again, err := s.Collect()
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestLaziness(t *testing.T) {
	pulled := 0
	src := New(func() (int, bool, error) {
		pulled++
		return pulled, pulled <= 3, nil
	})
	doubled := Map(src, func(v int) (int, error) { return v * 2, nil })
	assert.Equal(t, 0, pulled, "nothing is pulled before Next")

	v, ok, err := doubled.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, pulled)

	rest, err := doubled.Collect()
	require.NoError(t, err)
	assert.Equal(t, []int{4, 6}, rest)
	assert.Equal(t, 4, pulled, "the end is pulled once and then remembered")

	_, ok, err = doubled.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 4, pulled)
}

func TestCombinators(t *testing.T) {
	evens := Filter(FromSlice([]int{1, 2, 3, 4, 5, 6}), func(v int) bool { return v%2 == 0 })
	labels := Map(evens, func(v int) (string, error) { return "t-" + strconv.Itoa(v), nil })
	expanded := FlatMap(labels, func(s string) ([]string, error) { return []string{s + "-a", s + "-b"}, nil })

	out, err := expanded.Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"t-2-a", "t-2-b", "t-4-a", "t-4-b", "t-6-a", "t-6-b"}, out)
}

func TestFlatMapSkipsEmpty(t *testing.T) {
	s := FlatMap(FromSlice([]int{0, 2, 0, 1}), func(n int) ([]int, error) {
		out := make([]int, n)
		for i := range out {
			out[i] = n
		}
		return out, nil
	})
	out, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, out)
}

func TestErrors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("error from mapper is sticky", func(t *testing.T) {
		s := Map(FromSlice([]int{1, 2}), func(v int) (int, error) {
			if v == 2 {
				return 0, boom
			}
			return v, nil
		})
		_, err := s.Collect()
		require.ErrorIs(t, err, boom)
		_, _, err = s.Next()
		assert.ErrorIs(t, err, boom)
	})

	t.Run("fail stream", func(t *testing.T) {
		_, err := Filter(Fail[int](boom), func(int) bool { return true }).Collect()
		assert.ErrorIs(t, err, boom)
	})

	t.Run("empty", func(t *testing.T) {
		out, err := Empty[string]().Collect()
		require.NoError(t, err)
		assert.Nil(t, out)
	})
}
