// Package simulator 模拟总线上的 Modbus RTU 从站，用于台架测试和演示
package simulator

import (
	"sync"

	"github.com/gogf/gf/encoding/gbinary"
	"github.com/sirupsen/logrus"
	"github.com/tbrandon/mbserver"
)

// Device 模拟的从站
type Device struct {
	Address   uint8
	BaudRate  int
	Registers []uint16 // 保持寄存器，从地址0开始
}

// Responder 按地址和波特率应答读保持寄存器请求
type Responder struct {
	mu       sync.Mutex
	devices  map[uint8]Device
	requests int
	log      logrus.FieldLogger
}

func NewResponder(log logrus.FieldLogger, devices ...Device) *Responder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Responder{devices: make(map[uint8]Device), log: log.WithField("component", "simulator")}
	for _, d := range devices {
		r.devices[d.Address] = d
	}
	return r
}

// Requests 收到的 CRC 有效的请求数
func (r *Responder) Requests() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests
}

// Respond 波特率不匹配、CRC错误或地址不存在时不应答
func (r *Responder) Respond(baud int, query []byte) []byte {
	frame, err := mbserver.NewRTUFrame(query)
	if err != nil {
		return nil
	}
	r.mu.Lock()
	r.requests++
	dev, ok := r.devices[frame.Address]
	r.mu.Unlock()
	if !ok || dev.BaudRate != baud {
		return nil
	}

	resp := &mbserver.RTUFrame{Address: frame.Address, Function: frame.Function}
	data := frame.GetData()
	switch {
	case frame.Function != 0x03:
		resp.Function |= 0x80
		resp.SetData([]byte{0x01})
	case len(data) < 4:
		resp.Function |= 0x80
		resp.SetData([]byte{0x03})
	default:
		start := int(gbinary.BeDecodeToUint16(data[0:2]))
		count := int(gbinary.BeDecodeToUint16(data[2:4]))
		if count == 0 || count > 125 || start+count > len(dev.Registers) {
			resp.Function |= 0x80
			resp.SetData([]byte{0x02})
			break
		}
		payload := []byte{byte(2 * count)}
		for _, v := range dev.Registers[start : start+count] {
			payload = append(payload, gbinary.BeEncodeUint16(v)...)
		}
		resp.SetData(payload)
	}
	r.log.WithFields(logrus.Fields{"address": frame.Address, "function": frame.Function}).Debug("应答请求")
	return resp.Bytes()
}
