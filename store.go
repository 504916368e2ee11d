package livecmp

// Store is the per-request, per-component ephemeral scratch space. Features
// and components record transient side effects here (redirects, dispatched
// events, the error bag) before dehydration folds them into the effects
// payload.
//
// A Store is constructed fresh for every request and is owned exclusively by
// that request's lifecycle run; entries never survive across requests, and
// nothing outside the request retains the component, so destroyed components
// are collectable as soon as the request ends.
type Store struct {
	entries map[string]map[string]any
}

func newStore() *Store {
	return &Store{entries: make(map[string]map[string]any)}
}

// Set stores a value under key for the given component.
func (s *Store) Set(c Component, key string, v any) {
	s.scope(c)[key] = v
}

// Get returns the value under key. Absent keys return an empty []any, not
// nil - collection-valued keys rely on an always-iterable default.
func (s *Store) Get(c Component, key string) any {
	if v, ok := s.scope(c)[key]; ok {
		return v
	}
	return []any{}
}

// GetOr returns the value under key, or def when absent.
func (s *Store) GetOr(c Component, key string, def any) any {
	if v, ok := s.scope(c)[key]; ok {
		return v
	}
	return def
}

// Has reports whether key is set for the component.
func (s *Store) Has(c Component, key string) bool {
	_, ok := s.scope(c)[key]
	return ok
}

// Delete removes key for the component.
func (s *Store) Delete(c Component, key string) {
	delete(s.scope(c), key)
}

// Push appends v to the collection at key. Without an indexKey the
// collection is an ordered []any; with an indexKey it is a map keyed by
// indexKey, overwriting on repeat.
func (s *Store) Push(c Component, key string, v any, indexKey ...string) {
	scope := s.scope(c)
	if len(indexKey) > 0 && indexKey[0] != "" {
		m, _ := scope[key].(map[string]any)
		if m == nil {
			m = make(map[string]any)
		}
		m[indexKey[0]] = v
		scope[key] = m
		return
	}

	arr, _ := scope[key].([]any)
	scope[key] = append(arr, v)
}

func (s *Store) scope(c Component) map[string]any {
	id := c.liveBase().ID()
	m, ok := s.entries[id]
	if !ok {
		m = make(map[string]any)
		s.entries[id] = m
	}
	return m
}
