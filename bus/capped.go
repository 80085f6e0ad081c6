package bus

// Capped 有容量上限的去重集合，保持首次出现的顺序，满了之后静默拒绝新元素
type Capped[T comparable] struct {
	items    []T
	capacity int
	rejected int
}

func NewCapped[T comparable](capacity int) *Capped[T] {
	return &Capped[T]{items: make([]T, 0, capacity), capacity: capacity}
}

// Add 添加元素，已存在返回 true，满了返回 false 并累加拒绝计数
func (c *Capped[T]) Add(v T) bool {
	if c.Contains(v) {
		return true
	}
	if len(c.items) >= c.capacity {
		c.rejected++
		return false
	}
	c.items = append(c.items, v)
	return true
}

func (c *Capped[T]) Contains(v T) bool {
	for _, item := range c.items {
		if item == v {
			return true
		}
	}
	return false
}

// Items 返回副本
func (c *Capped[T]) Items() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Capped[T]) Len() int { return len(c.items) }
func (c *Capped[T]) Cap() int { return c.capacity }
func (c *Capped[T]) Full() bool { return len(c.items) >= c.capacity }
func (c *Capped[T]) Rejected() int { return c.rejected }

func (c *Capped[T]) Reset() {
	c.items = c.items[:0]
	c.rejected = 0
}
