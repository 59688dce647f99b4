package seed

// Source is anything that yields uniform floats in [0, 1).
// Consumers accept a Source so tests can substitute fixed sequences.
type Source interface {
	Next() float64
}

// Range returns a uniform value in [min, max).
func Range(src Source, min, max float64) float64 {
	return min + src.Next()*(max-min)
}

// Intn returns a uniform int in [0, n). Returns 0 when n <= 0.
func Intn(src Source, n int) int {
	if n <= 0 {
		return 0
	}
	i := int(src.Next() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}

// Chance reports whether a draw falls below p.
func Chance(src Source, p float64) bool {
	return src.Next() < p
}

// Sequence replays a fixed list of draws, wrapping at the end.
type Sequence struct {
	Values []float64
	pos    int
}

// Next returns the next value in the sequence.
func (q *Sequence) Next() float64 {
	if len(q.Values) == 0 {
		return 0
	}
	v := q.Values[q.pos%len(q.Values)]
	q.pos++
	return v
}
