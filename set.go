package docstream

// Set is an unordered collection of unique values. It encodes as an Array
// whose elements are sorted, and any map[T]struct{} is treated the same.
type Set[T comparable] map[T]struct{}

// NewSet returns a Set holding items.
func NewSet[T comparable](items ...T) Set[T] {
	s := make(Set[T], len(items))
	s.Add(items...)
	return s
}

func (s Set[T]) Add(items ...T) {
	for _, item := range items {
		s[item] = struct{}{}
	}
}

func (s Set[T]) Has(item T) bool {
	_, ok := s[item]
	return ok
}

func (s Set[T]) Len() int {
	return len(s)
}
