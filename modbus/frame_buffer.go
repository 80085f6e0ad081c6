package modbus

// DefaultFrameBufferSize 帧缓冲区容量
const DefaultFrameBufferSize = 32

// FrameBuffer 有界字节缓冲区，写满后丢弃多余字节直到清空
type FrameBuffer struct {
	buf     []byte
	dropped int
}

func NewFrameBuffer(capacity int) *FrameBuffer {
	if capacity <= 0 {
		capacity = DefaultFrameBufferSize
	}
	return &FrameBuffer{buf: make([]byte, 0, capacity)}
}

// Append 追加数据，返回实际接收的字节数，超出部分计入 Dropped
func (b *FrameBuffer) Append(p []byte) int {
	room := cap(b.buf) - len(b.buf)
	n := len(p)
	if n > room {
		b.dropped += n - room
		n = room
	}
	b.buf = append(b.buf, p[:n]...)
	return n
}

func (b *FrameBuffer) Len() int { return len(b.buf) }
func (b *FrameBuffer) Cap() int { return cap(b.buf) }
func (b *FrameBuffer) Full() bool { return len(b.buf) == cap(b.buf) }
func (b *FrameBuffer) Bytes() []byte { return b.buf }

// Dropped 自上次 Reset 以来因缓冲区满而丢弃的字节数
func (b *FrameBuffer) Dropped() int { return b.dropped }

// Reset 清空缓冲区
func (b *FrameBuffer) Reset() {
	b.buf = b.buf[:0]
	b.dropped = 0
}
