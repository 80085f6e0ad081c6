package scanner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r19g75/modbus-bus-diag/bus"
	"github.com/r19g75/modbus-bus-diag/modbus"
	serialline "github.com/r19g75/modbus-bus-diag/serial_line"
	"github.com/r19g75/modbus-bus-diag/simulator"
)

type sample struct {
	device DeviceRecord
	start  uint16
	values []uint16
}

type recordingSink struct{ samples []sample }

func (r *recordingSink) Registers(device DeviceRecord, start uint16, values []uint16) {
	r.samples = append(r.samples, sample{device: device, start: start, values: values})
}

func registers(n int) []uint16 {
	regs := make([]uint16, n)
	for i := range regs {
		regs[i] = uint16(0x1000 + i)
	}
	return regs
}

func runToCompletion(t *testing.T, s *Scanner) {
	t.Helper()
	for i := 0; s.Active(); i++ {
		require.Less(t, i, 10000, "scan did not terminate")
		s.Update()
	}
}

func TestScannerFindsDeviceAtSecondBaud(t *testing.T) {
	responder := simulator.NewResponder(nil, simulator.Device{Address: 42, BaudRate: 19200, Registers: registers(16)})
	line := serialline.NewMemoryLine(responder)
	sink := &recordingSink{}
	s := New(line, line.Pin(), bus.NewFakeClock(0), Config{}, sink, nil)

	require.NoError(t, s.Start())
	runToCompletion(t, s)

	assert.True(t, s.Completed())
	assert.Equal(t, []DeviceRecord{{Address: 42, BaudRate: 19200}}, s.Devices())
	assert.Equal(t, 1, s.Count())
	assert.Equal(t, 247*5, s.Probes())
	assert.False(t, line.IsOpen())
	assert.Equal(t, 0, line.Violations())

	require.Len(t, sink.samples, 1)
	assert.Equal(t, DeviceRecord{Address: 42, BaudRate: 19200}, sink.samples[0].device)
	assert.Equal(t, uint16(0), sink.samples[0].start)
	assert.Equal(t, registers(10), sink.samples[0].values)
}

func TestScannerSweepOrder(t *testing.T) {
	line := serialline.NewMemoryLine(nil)
	s := New(line, line.Pin(), bus.NewFakeClock(0), Config{BaudRates: []int{9600, 38400}}, nil, nil)
	require.NoError(t, s.Start())
	runToCompletion(t, s)

	writes := line.Writes()
	require.Len(t, writes, 2*247)
	for i, w := range writes {
		require.Len(t, w, 8)
		assert.Equal(t, byte(i%247+1), w[0])
		assert.Equal(t, []byte{0x03, 0x00, 0x00, 0x00, 0x01}, w[1:6])
		assert.True(t, modbus.ValidFrame(w))
	}
	assert.Equal(t, []int{9600, 38400}, line.Opens())
	assert.Empty(t, s.Devices())
}

func TestScannerAddressTiming(t *testing.T) {
	line := serialline.NewMemoryLine(nil)
	clock := bus.NewFakeClock(0)
	s := New(line, line.Pin(), clock, Config{}, nil, nil)
	require.NoError(t, s.Start())

	s.Update()
	// 1ms 发送等待 + 20ms 接收等待 + 100ms 超时
	assert.Equal(t, uint32(121), clock.Millis())
	assert.Equal(t, Cursor{Address: 2, BaudIndex: 0, BaudRate: 9600}, s.Cursor())
}

func TestScannerEchoWithoutCRCCountsAsPresent(t *testing.T) {
	echo := serialline.ResponderFunc(func(baud int, query []byte) []byte {
		if query[0] != 7 {
			return nil
		}
		return []byte{query[0], query[1], 0x02, 0xAA, 0xBB}
	})
	line := serialline.NewMemoryLine(echo)
	sink := &recordingSink{}
	s := New(line, line.Pin(), bus.NewFakeClock(0), Config{FirstAddress: 5, LastAddress: 9, BaudRates: []int{9600}}, sink, nil)
	require.NoError(t, s.Start())
	runToCompletion(t, s)

	assert.Equal(t, []DeviceRecord{{Address: 7, BaudRate: 9600}}, s.Devices())
	// 响应不足10个寄存器，不产生采样
	assert.Empty(t, sink.samples)
}

func TestScannerRejectsShortOrForeignResponses(t *testing.T) {
	junk := serialline.ResponderFunc(func(baud int, query []byte) []byte {
		switch query[0] {
		case 1:
			return []byte{0x01, 0x03, 0x02, 0x00}
		case 2:
			return []byte{0x09, 0x03, 0x02, 0x00, 0x01, 0x00, 0x00}
		}
		return nil
	})
	line := serialline.NewMemoryLine(junk)
	s := New(line, line.Pin(), bus.NewFakeClock(0), Config{LastAddress: 3, BaudRates: []int{9600}}, nil, nil)
	require.NoError(t, s.Start())
	runToCompletion(t, s)
	assert.Empty(t, s.Devices())
}

func TestScannerDeviceListCap(t *testing.T) {
	devices := []simulator.Device{}
	for addr := uint8(1); addr <= 4; addr++ {
		devices = append(devices, simulator.Device{Address: addr, BaudRate: 9600, Registers: registers(10)})
	}
	line := serialline.NewMemoryLine(simulator.NewResponder(nil, devices...))
	sink := &recordingSink{}
	s := New(line, line.Pin(), bus.NewFakeClock(0), Config{LastAddress: 5, MaxDevices: 2, BaudRates: []int{9600}}, sink, nil)
	require.NoError(t, s.Start())
	runToCompletion(t, s)

	assert.Equal(t, []DeviceRecord{{Address: 1, BaudRate: 9600}, {Address: 2, BaudRate: 9600}}, s.Devices())
	assert.Len(t, sink.samples, 2)
	// 5 次探测 + 2 次读寄存器
	assert.Len(t, line.Writes(), 7)
}

func TestScannerStopKeepsDevices(t *testing.T) {
	line := serialline.NewMemoryLine(simulator.NewResponder(nil, simulator.Device{Address: 1, BaudRate: 9600, Registers: registers(10)}))
	s := New(line, line.Pin(), bus.NewFakeClock(0), Config{}, nil, nil)
	require.NoError(t, s.Start())
	s.Update()
	s.Update()
	s.Stop()

	assert.False(t, s.Active())
	assert.False(t, s.Completed())
	assert.False(t, line.IsOpen())
	assert.Equal(t, 1, s.Count())

	s.Update()
	assert.Equal(t, 2, s.Probes())

	require.NoError(t, s.Start())
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, 1, s.Cursor().Address)
}

func TestScannerConfigDefaults(t *testing.T) {
	cfg := Config{FirstAddress: 0, LastAddress: 300, SampleRegisters: 20, BufferSize: 32}.withDefaults()
	assert.Equal(t, 1, cfg.FirstAddress)
	assert.Equal(t, 247, cfg.LastAddress)
	assert.Equal(t, 45, cfg.BufferSize)
	assert.Equal(t, 100*time.Millisecond, cfg.ProbeTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.ReadTimeout)
	assert.Equal(t, 20*time.Millisecond, cfg.RxSettle)
}

func TestScannerHoldsReceiveAfterEveryOpen(t *testing.T) {
	line := serialline.NewMemoryLine(nil)
	pin := line.Pin()
	line.AssertPinOnOpen(true)
	s := New(line, pin, bus.NewFakeClock(0), Config{LastAddress: 2, BaudRates: []int{9600, 19200}}, nil, nil)

	require.NoError(t, s.Begin())
	assert.True(t, line.IsOpen())
	assert.Equal(t, 9600, line.Baud())
	assert.False(t, pin.Transmitting())
	assert.False(t, s.Active())

	require.NoError(t, s.Start())
	assert.False(t, pin.Transmitting())

	s.Update()
	s.Update()
	// 已切换到 19200
	assert.Equal(t, 19200, line.Baud())
	assert.False(t, pin.Transmitting())

	runToCompletion(t, s)
	assert.Equal(t, 0, line.Violations())
}

func TestScannerRegisterReadTurnaround(t *testing.T) {
	clock := bus.NewFakeClock(0)
	sim := simulator.NewResponder(nil, simulator.Device{Address: 1, BaudRate: 9600, Registers: registers(10)})
	var stamps []uint32
	stamped := serialline.ResponderFunc(func(baud int, query []byte) []byte {
		stamps = append(stamps, clock.Millis())
		return sim.Respond(baud, query)
	})
	line := serialline.NewMemoryLine(stamped)
	sink := &recordingSink{}
	s := New(line, line.Pin(), clock, Config{BaudRates: []int{9600}}, sink, nil)
	require.NoError(t, s.Start())

	s.Update()
	s.Update()
	// 探测: 1ms 发送等待；读寄存器在 20ms 接收等待之后发出，释放后等待 100ms
	assert.Equal(t, []uint32{1, 22, 123}, stamps)
	require.Len(t, sink.samples, 1)
}

func TestScannerExceptionResponseSkipsSample(t *testing.T) {
	line := serialline.NewMemoryLine(simulator.NewResponder(nil, simulator.Device{Address: 3, BaudRate: 9600, Registers: registers(2)}))
	sink := &recordingSink{}
	s := New(line, line.Pin(), bus.NewFakeClock(0), Config{LastAddress: 4, BaudRates: []int{9600}}, sink, nil)
	require.NoError(t, s.Start())
	runToCompletion(t, s)

	assert.Equal(t, []DeviceRecord{{Address: 3, BaudRate: 9600}}, s.Devices())
	assert.Empty(t, sink.samples)
}

func TestScannerReopensLostLine(t *testing.T) {
	line := serialline.NewMemoryLine(nil)
	s := New(line, line.Pin(), bus.NewFakeClock(0), Config{BaudRates: []int{9600}}, nil, nil)
	require.NoError(t, s.Start())

	require.NoError(t, line.Close())
	s.Update()
	assert.True(t, line.IsOpen())
	assert.Equal(t, []int{9600, 9600}, line.Opens())
	assert.True(t, s.Active())
}
