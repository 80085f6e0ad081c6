package simulator

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goburrow/serial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbrandon/mbserver"

	"github.com/r19g75/modbus-bus-diag/modbus"
)

func readQuery(addr uint8, start, count uint16) []byte {
	frame := mbserver.RTUFrame{Address: addr, Function: 0x03}
	mbserver.SetDataWithRegisterAndNumber(&frame, start, count)
	return frame.Bytes()
}

func TestResponderAnswersAtMatchingBaud(t *testing.T) {
	r := NewResponder(nil, Device{Address: 42, BaudRate: 19200, Registers: []uint16{0x0102, 0x0304, 0xFFFF}})
	q := readQuery(42, 1, 2)

	cmd := modbus.NewReadHoldingRegisters(42, 1, 2)
	ours, err := cmd.Serialize()
	require.NoError(t, err)
	assert.Equal(t, ours, q)

	assert.Nil(t, r.Respond(9600, q))

	resp := r.Respond(19200, q)
	require.NotNil(t, resp)
	assert.True(t, modbus.ValidFrame(resp))
	assert.Equal(t, []byte{42, 0x03, 0x04, 0x03, 0x04, 0xFF, 0xFF}, resp[:7])
	assert.Equal(t, 2, r.Requests())
}

func TestResponderIgnoresUnknownAddressAndBadCRC(t *testing.T) {
	r := NewResponder(nil, Device{Address: 42, BaudRate: 9600, Registers: make([]uint16, 10)})
	assert.Nil(t, r.Respond(9600, readQuery(41, 0, 1)))

	q := readQuery(42, 0, 1)
	q[len(q)-1] ^= 0xFF
	assert.Nil(t, r.Respond(9600, q))
	assert.Equal(t, 1, r.Requests())
}

func TestResponderExceptions(t *testing.T) {
	r := NewResponder(nil, Device{Address: 1, BaudRate: 9600, Registers: make([]uint16, 10)})

	resp := r.Respond(9600, readQuery(1, 8, 5))
	isExc, code, fn := modbus.ParseExceptionResponse(resp)
	assert.True(t, isExc)
	assert.Equal(t, byte(0x02), code)
	assert.Equal(t, byte(0x03), fn)

	write := modbus.AppendCRC([]byte{1, 0x06, 0, 1, 0, 5})
	resp = r.Respond(9600, write)
	isExc, code, fn = modbus.ParseExceptionResponse(resp)
	assert.True(t, isExc)
	assert.Equal(t, byte(0x01), code)
	assert.Equal(t, byte(0x06), fn)
	assert.True(t, modbus.ValidFrame(resp))
}

// pipePort 按顺序返回预设的读结果，之后一直超时
type pipePort struct {
	mu     sync.Mutex
	reads  [][]byte
	writes bytes.Buffer
}

func (p *pipePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.reads) == 0 {
		time.Sleep(time.Millisecond)
		return 0, serial.ErrTimeout
	}
	n := copy(b, p.reads[0])
	p.reads = p.reads[1:]
	return n, nil
}

func (p *pipePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes.Write(b)
}

func (p *pipePort) written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.writes.Bytes()...)
}

func TestServeAnswersSplitQuery(t *testing.T) {
	r := NewResponder(nil, Device{Address: 5, BaudRate: 9600, Registers: []uint16{7}})
	q := readQuery(5, 0, 1)
	port := &pipePort{reads: [][]byte{{0x00}, q[:3], q[3:]}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, port, 9600, r) }()

	require.Eventually(t, func() bool { return len(port.written()) > 0 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, modbus.AppendCRC([]byte{5, 0x03, 0x02, 0x00, 0x07}), port.written())
}
