package crawler

// Frontier holds URLs awaiting a visit decision.
type Frontier interface {
	Push(item FrontierItem)
	Pop() (FrontierItem, bool)
	Len() int
}

// NewFrontier returns a FIFO queue for BFS and a LIFO stack for DFS.
func NewFrontier(method SearchMethod) Frontier {
	if method == SearchDFS {
		return &stackFrontier{}
	}
	return &queueFrontier{}
}

type queueFrontier struct {
	items []FrontierItem
	head  int
}

func (q *queueFrontier) Push(item FrontierItem) {
	q.items = append(q.items, item)
}

func (q *queueFrontier) Pop() (FrontierItem, bool) {
	if q.head >= len(q.items) {
		return FrontierItem{}, false
	}
	item := q.items[q.head]
	q.items[q.head] = FrontierItem{}
	q.head++
	// reclaim the consumed prefix once it dominates the backing array
	if q.head > 64 && q.head*2 >= len(q.items) {
		q.items = append([]FrontierItem(nil), q.items[q.head:]...)
		q.head = 0
	}
	return item, true
}

func (q *queueFrontier) Len() int {
	return len(q.items) - q.head
}

type stackFrontier struct {
	items []FrontierItem
}

func (s *stackFrontier) Push(item FrontierItem) {
	s.items = append(s.items, item)
}

func (s *stackFrontier) Pop() (FrontierItem, bool) {
	n := len(s.items)
	if n == 0 {
		return FrontierItem{}, false
	}
	item := s.items[n-1]
	s.items = s.items[:n-1]
	return item, true
}

func (s *stackFrontier) Len() int {
	return len(s.items)
}
