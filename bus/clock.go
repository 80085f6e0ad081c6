package bus

import (
	"sync"
	"time"
)

// Clock 毫秒时钟，uint32 计数允许回绕，所有间隔都用 Elapsed 计算
type Clock interface {
	Millis() uint32
	Sleep(d time.Duration)
}

// SystemClock 基于 time 包的单调时钟
type SystemClock struct {
	start time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Millis() uint32 {
	return uint32(time.Since(c.start) / time.Millisecond)
}

func (c *SystemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// Elapsed 返回 since 到 now 经过的毫秒数，计数器回绕后依然正确
func Elapsed(now, since uint32) uint32 {
	return now - since
}

// Millis 将 Duration 转换为毫秒计数，不足1毫秒的部分向上取整
func Millis(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	return uint32((d + time.Millisecond - 1) / time.Millisecond)
}

// FakeClock 手动推进的时钟，Sleep 只推进计数不阻塞
type FakeClock struct {
	mu  sync.Mutex
	now uint32
}

func NewFakeClock(start uint32) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Millis() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(d time.Duration) {
	c.Advance(d)
}

// Advance 推进时钟
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += Millis(d)
	c.mu.Unlock()
}

// Set 直接设置当前毫秒值
func (c *FakeClock) Set(ms uint32) {
	c.mu.Lock()
	c.now = ms
	c.mu.Unlock()
}
