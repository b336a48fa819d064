package resilience

import "golang.org/x/sync/singleflight"

// Group collapses concurrent calls sharing a key into one execution.
type Group[T any] struct {
	g singleflight.Group
}

func (g *Group[T]) Do(key string, fn func() (T, error)) (T, bool, error) {
	v, err, shared := g.g.Do(key, func() (any, error) {
		return fn()
	})
	out, _ := v.(T)
	return out, shared, err
}

func (g *Group[T]) Forget(key string) {
	g.g.Forget(key)
}
