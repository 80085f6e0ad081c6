// Package analyzer 被动监听 RS-485 总线，从主站的查询帧中推断轮询行为
package analyzer

import (
	"encoding/hex"

	"github.com/sirupsen/logrus"

	"github.com/r19g75/modbus-bus-diag/bus"
	"github.com/r19g75/modbus-bus-diag/modbus"
)

type State int

const (
	Idle State = iota
	Listening
)

func (s State) String() string {
	if s == Listening {
		return "listening"
	}
	return "idle"
}

// Analyzer 被动分析器，只接收不发送，收发器始终保持在接收方向
type Analyzer struct {
	cfg    Config
	ch     bus.Channel
	clock  bus.Clock
	tr     *bus.Transceiver
	cycler *bus.Cycler
	log    logrus.FieldLogger

	state   State
	buf     *modbus.FrameBuffer
	scratch []byte

	addrs     *bus.Capped[uint8]
	functions *bus.Capped[uint8]
	startReg  uint16
	regCount  uint16
	baud      int
	timing    Timing
	errs      ErrorStats

	lastFrame    uint32
	haveFrame    bool
	lastActivity uint32
	lineDown     bool
}

func New(ch bus.Channel, pin bus.DirectionPin, clock bus.Clock, cfg Config, log logrus.FieldLogger) *Analyzer {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("engine", "analyzer")
	tr := bus.NewTransceiver(pin, clock, 0, 0)
	a := &Analyzer{
		cfg:   cfg,
		ch:    ch,
		clock: clock,
		tr:    tr,
		log:   log,
		cycler: bus.NewCycler(ch, clock, bus.CyclerConfig{
			Rates:       cfg.BaudRates,
			Settle:      cfg.BaudSettle,
			Transceiver: tr,
		}, log),
		buf:       modbus.NewFrameBuffer(cfg.BufferSize),
		scratch:   make([]byte, cfg.BufferSize),
		addrs:     bus.NewCapped[uint8](cfg.MaxAddresses),
		functions: bus.NewCapped[uint8](cfg.MaxFunctions),
	}
	a.reset()
	return a
}

// Begin 一次性初始化：清空统计，以第一个候选波特率打开通道并把收发器置为接收
func (a *Analyzer) Begin() error {
	a.state = Idle
	a.reset()
	return a.cycler.Restart()
}

func (a *Analyzer) reset() {
	a.buf.Reset()
	a.addrs.Reset()
	a.functions.Reset()
	a.startReg = 0
	a.regCount = 0
	a.baud = 0
	a.timing = newTiming()
	a.errs = ErrorStats{}
	a.lastFrame = 0
	a.haveFrame = false
	a.lineDown = false
	a.lastActivity = a.clock.Millis()
}

// Start 清空画像，从第一个候选波特率开始监听
func (a *Analyzer) Start() error {
	a.reset()
	if err := a.cycler.Restart(); err != nil {
		a.state = Idle
		return err
	}
	a.lastActivity = a.clock.Millis()
	a.state = Listening
	a.log.WithField("baud", a.cycler.Current()).Info("开始分析总线")
	return nil
}

// Stop 停止监听并关闭通道，统计数据保留到下一次 Start
func (a *Analyzer) Stop() {
	if a.state == Idle {
		return
	}
	a.state = Idle
	if err := a.cycler.Close(); err != nil {
		a.log.WithError(err).Warn("close channel failed")
	}
	a.log.WithField("frames", a.errs.TotalFrames).Info("停止分析总线")
}

func (a *Analyzer) Active() bool { return a.state == Listening }
func (a *Analyzer) State() State { return a.state }
func (a *Analyzer) CurrentBaud() int { return a.cycler.Current() }

// Profile 返回主站画像的快照
func (a *Analyzer) Profile() MasterProfile {
	return MasterProfile{
		Addresses:         a.addrs.Items(),
		Functions:         a.functions.Items(),
		AddressesRejected: a.addrs.Rejected(),
		FunctionsRejected: a.functions.Rejected(),
		StartRegister:     a.startReg,
		RegisterCount:     a.regCount,
		BaudRate:          a.baud,
		Timing:            a.timing,
		Errors:            a.errs,
	}
}

// Update 一个有界的工作单元：读取可用字节、尝试提取一帧、检查静默超时。
// 返回本次是否读到了数据
func (a *Analyzer) Update() bool {
	if a.state != Listening {
		return false
	}
	now := a.clock.Millis()
	n := a.fill(now)
	if n > 0 {
		a.lastActivity = now
		a.errs.ReadBursts++
		if a.buf.Len() >= a.cfg.MinFrame {
			a.extract(now)
		}
	}

	if bus.Elapsed(a.clock.Millis(), a.lastActivity) > bus.Millis(a.cfg.SilenceTimeout) {
		if err := a.cycler.Cycle(); err != nil {
			a.log.WithError(err).Warn("切换波特率失败")
		}
		a.buf.Reset()
		a.lastActivity = a.clock.Millis()
	}
	return n > 0
}

// fill 把通道中的字节读入帧缓冲区，返回本次读到的字节数
func (a *Analyzer) fill(now uint32) int {
	total := 0
	for {
		p := a.scratch[:cap(a.scratch)]
		if room := a.buf.Cap() - a.buf.Len(); room > 0 {
			p = p[:room]
		}
		n, err := a.ch.Read(p)
		if err != nil && !bus.IsTimeout(err) {
			a.lineFailed(err)
			return total
		}
		a.lineDown = false
		if n <= 0 {
			return total
		}
		if total == 0 {
			a.checkCollision(now)
		}
		total += n
		if a.buf.Full() {
			before := a.buf.Dropped()
			a.buf.Append(p[:n])
			dropped := a.buf.Dropped() - before
			a.errs.Overflows += uint32(dropped)
			a.log.WithField("dropped", dropped).Debug("帧缓冲区已满，丢弃数据")
			return total
		}
		a.buf.Append(p[:n])
	}
}

// lineFailed 每次故障只告警并重新打开一次，之后由静默切换继续重试
func (a *Analyzer) lineFailed(err error) {
	if a.lineDown {
		return
	}
	a.lineDown = true
	lineErr := bus.ClassifyError(err)
	a.log.WithField("error_type", bus.ErrorTypeName(lineErr.Type)).WithError(err).Warn("读取串口失败")
	if lineErr.ShouldReopen() {
		if err := a.cycler.Reopen(); err != nil {
			a.log.WithError(err).Warn("重新打开通道失败")
		}
	}
}

// checkCollision 距离上一个有效帧的间隔严格小于阈值时记为冲突
func (a *Analyzer) checkCollision(now uint32) {
	if !a.haveFrame {
		return
	}
	gap := bus.Elapsed(now, a.lastFrame)
	if gap < bus.Millis(a.cfg.CollisionThreshold) {
		a.errs.Collisions++
		a.log.WithField("gap_ms", gap).Warn("检测到总线冲突")
	}
}

func (a *Analyzer) extract(now uint32) {
	frame := a.buf.Bytes()
	if !modbus.ValidFrame(frame) {
		a.errs.CRCErrors++
		a.errs.InvalidFrames++
		a.log.WithField("frame", hex.EncodeToString(frame)).Debug("CRC校验失败")
		if a.buf.Full() {
			// 缓冲区已满，后续字节无法再让它变成有效帧
			a.clear()
		}
		return
	}

	q, _ := modbus.DecodeQuery(frame)
	a.errs.TotalFrames++
	a.baud = a.cycler.Current()
	a.addrs.Add(q.Address)
	a.functions.Add(q.Function)
	a.startReg = q.Start
	a.regCount = q.Count
	a.timing.record(now)
	a.lastFrame = now
	a.haveFrame = true
	a.log.WithFields(logrus.Fields{
		"baud":     a.baud,
		"address":  q.Address,
		"function": q.Function,
		"start":    q.Start,
		"count":    q.Count,
	}).Debug("捕获主站查询")
	a.clear()
}

// clear 清空缓冲区并丢弃通道中尚未读取的字节
func (a *Analyzer) clear() {
	a.buf.Reset()
	if err := a.ch.Discard(); err != nil {
		a.log.WithError(err).Debug("discard failed")
	}
}
