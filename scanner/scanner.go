// Package scanner 主动探测 RS-485 总线上的 Modbus 从站
package scanner

import (
	"encoding/hex"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/r19g75/modbus-bus-diag/bus"
	"github.com/r19g75/modbus-bus-diag/modbus"
)

type State int

const (
	Idle State = iota
	Probing
)

func (s State) String() string {
	if s == Probing {
		return "probing"
	}
	return "idle"
}

// DeviceRecord 发现的从站及其响应的波特率
type DeviceRecord struct {
	Address  uint8 `json:"address"`
	BaudRate int   `json:"baud_rate"`
}

// Cursor 扫描进度
type Cursor struct {
	Address   int `json:"address"`
	BaudIndex int `json:"baud_index"`
	BaudRate  int `json:"baud_rate"`
}

// RegisterSink 接收寄存器采样
type RegisterSink interface {
	Registers(device DeviceRecord, start uint16, values []uint16)
}

// Scanner 逐个地址、逐个波特率地发送读保持寄存器请求
type Scanner struct {
	cfg    Config
	ch     bus.Channel
	clock  bus.Clock
	cycler *bus.Cycler
	tr     *bus.Transceiver
	sink   RegisterSink
	log    logrus.FieldLogger

	state     State
	completed bool
	addr      int
	probes    int
	devices   *bus.Capped[DeviceRecord]
	buf       *modbus.FrameBuffer
	scratch   []byte
	lineDown  bool
}

func New(ch bus.Channel, pin bus.DirectionPin, clock bus.Clock, cfg Config, sink RegisterSink, log logrus.FieldLogger) *Scanner {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("engine", "scanner")
	tr := bus.NewTransceiver(pin, clock, cfg.TxSettle, cfg.RxSettle)
	s := &Scanner{
		cfg:   cfg,
		ch:    ch,
		clock: clock,
		cycler: bus.NewCycler(ch, clock, bus.CyclerConfig{
			Rates:       cfg.BaudRates,
			Settle:      cfg.BaudSettle,
			Transceiver: tr,
		}, log),
		tr:      tr,
		sink:    sink,
		log:     log,
		devices: bus.NewCapped[DeviceRecord](cfg.MaxDevices),
		buf:     modbus.NewFrameBuffer(cfg.BufferSize),
		scratch: make([]byte, cfg.BufferSize),
	}
	s.reset()
	return s
}

// Begin 一次性初始化：清空设备列表，以第一个候选波特率打开通道并把收发器置为接收
func (s *Scanner) Begin() error {
	s.reset()
	return s.cycler.Restart()
}

func (s *Scanner) reset() {
	s.state = Idle
	s.completed = false
	s.addr = s.cfg.FirstAddress
	s.probes = 0
	s.devices.Reset()
	s.buf.Reset()
	s.lineDown = false
}

// SetSink 设置寄存器采样的接收者
func (s *Scanner) SetSink(sink RegisterSink) {
	s.sink = sink
}

// Start 从第一个地址和第一个波特率开始扫描
func (s *Scanner) Start() error {
	s.reset()
	if err := s.cycler.Restart(); err != nil {
		return err
	}
	s.state = Probing
	s.log.WithFields(logrus.Fields{
		"baud":  s.cycler.Current(),
		"first": s.cfg.FirstAddress,
		"last":  s.cfg.LastAddress,
	}).Info("开始扫描设备")
	return nil
}

// Stop 停止扫描，设备列表保留到下一次 Start
func (s *Scanner) Stop() {
	if s.state == Idle {
		return
	}
	s.state = Idle
	if err := s.cycler.Close(); err != nil {
		s.log.WithError(err).Warn("close channel failed")
	}
	s.log.WithField("devices", s.devices.Len()).Info("停止扫描设备")
}

func (s *Scanner) Active() bool { return s.state == Probing }

func (s *Scanner) State() State { return s.state }

// Completed 所有波特率都已扫描完毕
func (s *Scanner) Completed() bool { return s.completed }

func (s *Scanner) Devices() []DeviceRecord { return s.devices.Items() }

func (s *Scanner) Count() int { return s.devices.Len() }

// Probes 本次扫描已发送的探测次数
func (s *Scanner) Probes() int { return s.probes }

func (s *Scanner) CurrentBaud() int { return s.cycler.Current() }

func (s *Scanner) Cursor() Cursor {
	return Cursor{
		Address:   s.addr,
		BaudIndex: s.cycler.Table().Index(),
		BaudRate:  s.cycler.Current(),
	}
}

// Update 探测当前地址，然后前进到下一个地址
func (s *Scanner) Update() {
	if s.state != Probing {
		return
	}
	addr := uint8(s.addr)
	baud := s.cycler.Current()
	if s.probe(addr) {
		rec := DeviceRecord{Address: addr, BaudRate: baud}
		if s.devices.Add(rec) {
			s.log.WithFields(logrus.Fields{"address": addr, "baud": baud}).Info("发现设备")
			s.readRegisters(rec)
		} else {
			s.log.WithFields(logrus.Fields{"address": addr, "baud": baud}).Warn("设备列表已满，忽略")
		}
	}
	s.advance()
}

// probe 发送读1个保持寄存器的请求，响应回显地址和功能码即认为设备存在，不校验CRC
func (s *Scanner) probe(addr uint8) bool {
	s.probes++
	cmd := modbus.NewReadHoldingRegisters(addr, 0, 1)
	resp, ok := s.transact(&cmd, s.cfg.RxSettle, s.cfg.ProbeTimeout, func(b []byte) bool {
		return len(b) >= s.cfg.MinResponse && cmd.EchoMatches(b)
	})
	if !ok {
		return false
	}
	present := len(resp) >= s.cfg.MinResponse && cmd.EchoMatches(resp)
	if !present && len(resp) > 0 {
		s.log.WithFields(logrus.Fields{
			"address": addr,
			"resp":    hex.EncodeToString(resp),
		}).Debug("响应不匹配")
	}
	return present
}

// readRegisters 读取寄存器样本，释放方向后等待 ReadTurnaround 再接收。
// CRC 不匹配时仍然解码，异常响应不产生样本
func (s *Scanner) readRegisters(rec DeviceRecord) {
	cmd := modbus.NewReadHoldingRegisters(rec.Address, s.cfg.SampleStart, s.cfg.SampleRegisters)
	resp, ok := s.transact(&cmd, s.cfg.ReadTurnaround, s.cfg.ReadTimeout, modbus.ResponseComplete)
	if !ok {
		return
	}
	if _, err := cmd.ParseAndValidateResponse(resp); err != nil {
		var excErr *modbus.ExceptionError
		if errors.As(err, &excErr) {
			s.log.WithFields(logrus.Fields{"address": rec.Address, "baud": rec.BaudRate}).WithError(err).Warn("读寄存器返回异常响应")
			return
		}
		s.log.WithField("address", rec.Address).WithError(err).Debug("寄存器响应未通过校验")
	}
	values, ok := cmd.DecodeRegisters(resp)
	if !ok {
		s.log.WithFields(logrus.Fields{
			"address": rec.Address,
			"resp":    hex.EncodeToString(resp),
		}).Debug("读寄存器无有效响应")
		return
	}
	if s.sink != nil {
		s.sink.Registers(rec, s.cfg.SampleStart, values)
	}
}

// transact 发送请求，释放方向后等待 settle，然后在 timeout 内收集响应，done 返回 true 时提前结束
func (s *Scanner) transact(cmd *modbus.RTUCommand, settle, timeout time.Duration, done func([]byte) bool) ([]byte, bool) {
	frame, err := cmd.Serialize()
	if err != nil {
		s.log.WithError(err).Error("serialize request failed")
		return nil, false
	}
	s.buf.Reset()
	if err := s.ch.Discard(); err != nil {
		s.log.WithError(err).Debug("discard failed")
	}
	if err := s.tr.SendSettle(s.ch, frame, settle); err != nil {
		s.lineFailed(err)
		return nil, false
	}

	start := s.clock.Millis()
	limit := bus.Millis(timeout)
	for bus.Elapsed(s.clock.Millis(), start) < limit && !s.buf.Full() {
		n, err := s.ch.Read(s.scratch[:s.buf.Cap()-s.buf.Len()])
		if err != nil && !bus.IsTimeout(err) {
			s.lineFailed(err)
			break
		}
		s.lineDown = false
		if n > 0 {
			s.buf.Append(s.scratch[:n])
			if done(s.buf.Bytes()) {
				break
			}
			continue
		}
		s.clock.Sleep(s.cfg.PollInterval)
	}
	return s.buf.Bytes(), true
}

// lineFailed 每次故障只告警并重新打开一次，恢复之前的后续错误只记调试日志
func (s *Scanner) lineFailed(err error) {
	lineErr := bus.ClassifyError(err)
	if s.lineDown {
		s.log.WithError(err).Debug("串口仍不可用")
		return
	}
	s.lineDown = true
	s.log.WithField("error_type", bus.ErrorTypeName(lineErr.Type)).WithError(err).Warn("串口读写失败")
	if lineErr.ShouldReopen() {
		if err := s.cycler.Reopen(); err != nil {
			s.log.WithError(err).Warn("重新打开通道失败")
		}
	}
}

// advance 地址超过上限后回到起始地址并切换到下一个波特率，波特率用完则扫描结束
func (s *Scanner) advance() {
	s.addr++
	if s.addr <= s.cfg.LastAddress {
		return
	}
	s.addr = s.cfg.FirstAddress
	ok, err := s.cycler.Step()
	if err != nil {
		s.log.WithError(err).Warn("切换波特率失败")
	}
	if ok {
		s.log.WithFields(logrus.Fields{"baud": s.cycler.Current(), "devices": s.devices.Len()}).Info("切换到下一个波特率")
		return
	}
	s.state = Idle
	s.completed = true
	if err := s.cycler.Close(); err != nil {
		s.log.WithError(err).Warn("close channel failed")
	}
	s.log.WithFields(logrus.Fields{"devices": s.devices.Len(), "probes": s.probes}).Info("扫描完成")
}
