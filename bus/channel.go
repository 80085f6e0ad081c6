package bus

// Channel RS-485 串口通道
//
// Read 在没有数据时返回 0, nil，阻塞时间不超过端口读超时。
// Drain 等待已写入的数据全部发送到线路上，Discard 丢弃接收缓冲区中未读的数据。
type Channel interface {
	Open(baud int) error
	Close() error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Drain() error
	Discard() error
}
