package protocol

import (
	"sync"
	"time"
)

// Clock выдает временные метки операций в миллисекундах Unix
type Clock interface {
	Now() int64
}

// HybridClock представляет гибридные часы: физическое время, скорректированное
// логическим счетчиком. Метки одного устройства строго возрастают даже при
// переводе системных часов назад или нескольких событиях в одну миллисекунду.
type HybridClock struct {
	wall func() time.Time // источник физического времени
	last int64            // последняя выданная метка
	mu   sync.Mutex       // мьютекс для потокобезопасности
}

// NewHybridClock создает часы поверх системного времени
func NewHybridClock() *HybridClock {
	return NewHybridClockWithSource(time.Now)
}

// NewHybridClockWithSource создает часы с заданным источником времени.
// Используется для тестирования.
func NewHybridClockWithSource(wall func() time.Time) *HybridClock {
	return &HybridClock{wall: wall}
}

// Now возвращает max(физическое время, последняя метка + 1)
func (c *HybridClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.wall().UnixMilli()
	if ts <= c.last {
		ts = c.last + 1
	}
	c.last = ts
	return ts
}

// Observe учитывает метку, полученную от другого устройства:
// следующие локальные метки будут больше нее.
func (c *HybridClock) Observe(remote int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if remote > c.last {
		c.last = remote
	}
}

// Last возвращает последнюю выданную или наблюдавшуюся метку
func (c *HybridClock) Last() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// SetLast восстанавливает состояние часов (например, после перезапуска)
func (c *HybridClock) SetLast(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = ts
}
