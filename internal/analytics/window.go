package analytics

// RollingWindow 固定容量滚动窗口
//
// 按插入顺序保存最近 capacity 个样本，溢出时淘汰最旧。
type RollingWindow[T any] struct {
	capacity int
	items    []T
}

// NewRollingWindow 创建滚动窗口
func NewRollingWindow[T any](capacity int) *RollingWindow[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &RollingWindow[T]{
		capacity: capacity,
		items:    make([]T, 0, capacity),
	}
}

// Push 追加一个样本，窗口已满时淘汰最旧样本
func (w *RollingWindow[T]) Push(item T) {
	if len(w.items) >= w.capacity {
		w.items = w.items[1:]
	}
	w.items = append(w.items, item)
}

// Len 当前样本数
func (w *RollingWindow[T]) Len() int {
	return len(w.items)
}

// Capacity 窗口容量
func (w *RollingWindow[T]) Capacity() int {
	return w.capacity
}

// Items 返回样本副本（插入顺序）
func (w *RollingWindow[T]) Items() []T {
	out := make([]T, len(w.items))
	copy(out, w.items)
	return out
}
