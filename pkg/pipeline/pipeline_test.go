package pipeline_test

import (
	"testing"

	"github.com/influxdata/schemaseq/pkg/pipeline"
	"github.com/stretchr/testify/require"
)

type props struct {
	current, latest int
}

func TestRun_NoInterceptors(t *testing.T) {
	t.Parallel()

	in := props{current: 1, latest: 2}
	var got []props
	result := pipeline.Run(in, nil, func(p props) bool {
		got = append(got, p)
		return false
	})

	require.False(t, result)
	require.Equal(t, []props{in}, got)
}

func TestRun_PassThrough(t *testing.T) {
	t.Parallel()

	in := props{current: 1, latest: 2}
	passThrough := func(p props, next func(props) bool) bool {
		return next(p)
	}

	var got []props
	result := pipeline.Run(in, []pipeline.Interceptor[props, bool]{passThrough, passThrough}, func(p props) bool {
		got = append(got, p)
		return true
	})

	require.True(t, result)
	require.Equal(t, []props{in}, got)
}

func TestRun_OverrideAfterNext(t *testing.T) {
	t.Parallel()

	calls := 0
	override := func(p props, next func(props) bool) bool {
		next(p)
		return true
	}

	result := pipeline.Run(props{}, []pipeline.Interceptor[props, bool]{override}, func(props) bool {
		calls++
		return false
	})

	require.True(t, result)
	require.Equal(t, 1, calls)
}

func TestRun_ShortCircuit(t *testing.T) {
	t.Parallel()

	var order []string
	stop := func(p props, next func(props) bool) bool {
		order = append(order, "stop")
		return false
	}
	after := func(p props, next func(props) bool) bool {
		order = append(order, "after")
		return next(p)
	}

	result := pipeline.Run(props{}, []pipeline.Interceptor[props, bool]{stop, after}, func(props) bool {
		order = append(order, "terminal")
		return true
	})

	require.False(t, result)
	require.Equal(t, []string{"stop"}, order)
}

func TestRun_Order(t *testing.T) {
	t.Parallel()

	var order []string
	record := func(name string) pipeline.Interceptor[props, []string] {
		return func(p props, next func(props) []string) []string {
			order = append(order, name+":before")
			res := next(p)
			order = append(order, name+":after")
			return append(res, name)
		}
	}

	result := pipeline.Run(props{}, []pipeline.Interceptor[props, []string]{record("a"), record("b")}, func(props) []string {
		order = append(order, "terminal")
		return []string{"terminal"}
	})

	require.Equal(t, []string{"a:before", "b:before", "terminal", "b:after", "a:after"}, order)
	require.Equal(t, []string{"terminal", "b", "a"}, result)
}

func TestRun_ModifiedPayload(t *testing.T) {
	t.Parallel()

	bump := func(p props, next func(props) int) int {
		p.current++
		return next(p)
	}
	var seen []int
	observe := func(p props, next func(props) int) int {
		seen = append(seen, p.current)
		return next(p)
	}

	in := props{current: 1}
	result := pipeline.Run(in, []pipeline.Interceptor[props, int]{observe, bump, observe, bump}, func(p props) int {
		return p.current
	})

	require.Equal(t, 3, result)
	require.Equal(t, []int{1, 2}, seen)
	// the caller's payload is untouched
	require.Equal(t, 1, in.current)
}

func TestRun_PanicPropagates(t *testing.T) {
	t.Parallel()

	boom := func(p props, next func(props) bool) bool {
		panic("boom")
	}

	require.PanicsWithValue(t, "boom", func() {
		pipeline.Run(props{}, []pipeline.Interceptor[props, bool]{boom}, func(props) bool { return true })
	})
}

func TestPipeline_Builder(t *testing.T) {
	t.Parallel()

	negate := func(p props, next func(props) bool) bool {
		return !next(p)
	}

	got := pipeline.New[props, bool]().
		Send(props{current: 1, latest: 2}).
		Through(negate).
		Then(func(p props) bool { return p.current < p.latest })

	require.False(t, got)

	got = pipeline.New[props, bool]().
		Send(props{current: 3, latest: 2}).
		Then(func(p props) bool { return p.current < p.latest })

	require.False(t, got)
}
