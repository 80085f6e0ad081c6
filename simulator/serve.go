package simulator

import (
	"context"
	"errors"
	"io"

	"github.com/goburrow/serial"
	"github.com/sirupsen/logrus"

	"github.com/r19g75/modbus-bus-diag/modbus"
)

// Serve 在串口上运行模拟从站，直到 ctx 结束。
// 端口必须设置读超时，超时后丢弃未凑成完整帧的字节
func Serve(ctx context.Context, port io.ReadWriter, baud int, r *Responder) error {
	buf := make([]byte, 0, 256)
	var scratch [64]byte
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		n, err := port.Read(scratch[:])
		if err != nil {
			if errors.Is(err, serial.ErrTimeout) || errors.Is(err, io.EOF) {
				buf = buf[:0]
				continue
			}
			return err
		}
		if len(buf)+n > cap(buf) {
			buf = buf[:0]
		}
		buf = append(buf, scratch[:n]...)
		for len(buf) >= modbus.QueryLength {
			if !modbus.ValidFrame(buf[:modbus.QueryLength]) {
				buf = buf[:copy(buf, buf[1:])]
				continue
			}
			query := append([]byte(nil), buf[:modbus.QueryLength]...)
			buf = buf[:copy(buf, buf[modbus.QueryLength:])]
			resp := r.Respond(baud, query)
			if resp == nil {
				continue
			}
			if _, err := port.Write(resp); err != nil {
				return err
			}
			logrus.WithField("bytes", len(resp)).Debug("已发送响应")
		}
	}
}
