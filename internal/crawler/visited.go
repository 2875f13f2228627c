package crawler

// VisitedSet records URLs the engine has committed to fetching.
// It is owned by the traversal loop and is not safe for concurrent use.
type VisitedSet struct {
	seen map[string]struct{}
}

// NewVisitedSet returns an empty set.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{seen: make(map[string]struct{})}
}

// MarkIfNew stores the URL if it has not been seen before and returns true.
func (v *VisitedSet) MarkIfNew(url string) bool {
	if url == "" {
		return false
	}
	if _, ok := v.seen[url]; ok {
		return false
	}
	v.seen[url] = struct{}{}
	return true
}

// Contains reports whether url was marked.
func (v *VisitedSet) Contains(url string) bool {
	_, ok := v.seen[url]
	return ok
}

// Len returns the number of marked URLs.
func (v *VisitedSet) Len() int {
	return len(v.seen)
}
