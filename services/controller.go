package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/r19g75/modbus-bus-diag/analyzer"
	"github.com/r19g75/modbus-bus-diag/scanner"
)

var (
	ErrBusy       = errors.New("a session is already running")
	ErrNotRunning = errors.New("no session is running")
)

// Mode 当前工作模式，同一时间只有一个引擎处于活动状态
type Mode int

const (
	ModeIdle Mode = iota
	ModeScanning
	ModeAnalyzing
)

func (m Mode) String() string {
	switch m {
	case ModeScanning:
		return "scanning"
	case ModeAnalyzing:
		return "analyzing"
	default:
		return "idle"
	}
}

type requestKind int

const (
	requestAnalyze requestKind = iota
	requestScan
	requestStop
)

// Status 控制器状态快照，可以在任意 goroutine 中读取
type Status struct {
	Mode      string                  `json:"mode"`
	Session   string                  `json:"session,omitempty"`
	StartedAt *time.Time              `json:"started_at,omitempty"`
	Baud      int                     `json:"baud"`
	Profile   *analyzer.MasterProfile `json:"profile,omitempty"`
	Devices   []scanner.DeviceRecord  `json:"devices,omitempty"`
	Cursor    *scanner.Cursor         `json:"cursor,omitempty"`
	Completed bool                    `json:"completed"`
	LastError string                  `json:"last_error,omitempty"`
}

// Controller 会话控制器，取代原来的按键面板。
// 请求在两次 Tick 之间生效，引擎只在调用 Tick 的 goroutine 中被访问
type Controller struct {
	analyzer *analyzer.Analyzer
	scanner  *scanner.Scanner
	reporter Reporter
	verifier Verifier
	equation *Equation
	log      logrus.FieldLogger
	idle     time.Duration
	poll     time.Duration
	oneShot  bool

	mu        sync.Mutex
	pending   []requestKind
	mode      Mode
	kind      Mode // 最近一次会话的模式
	session   string
	startedAt time.Time
	lastErr   string
	status    Status
}

// Option 控制器可选项
type Option func(*Controller)

func WithVerifier(v Verifier) Option { return func(c *Controller) { c.verifier = v } }

func WithEquation(e *Equation) Option { return func(c *Controller) { c.equation = e } }

func WithIdleInterval(d time.Duration) Option { return func(c *Controller) { c.idle = d } }

// WithPollInterval 会话活动但本次没有读到数据时的等待
func WithPollInterval(d time.Duration) Option { return func(c *Controller) { c.poll = d } }

func WithLogger(log logrus.FieldLogger) Option { return func(c *Controller) { c.log = log } }

// WithExitWhenIdle Run 在第一个会话结束后返回
func WithExitWhenIdle() Option { return func(c *Controller) { c.oneShot = true } }

func NewController(a *analyzer.Analyzer, s *scanner.Scanner, reporter Reporter, opts ...Option) *Controller {
	c := &Controller{
		analyzer: a,
		scanner:  s,
		reporter: reporter,
		log:      logrus.StandardLogger(),
		idle:     10 * time.Millisecond,
		poll:     time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.reporter == nil {
		c.reporter = MultiReporter{}
	}
	s.SetSink(c)
	c.refresh()
	return c
}

// StartAnalysis 请求开始被动分析
func (c *Controller) StartAnalysis() error { return c.submit(requestAnalyze) }

// StartScan 请求开始主动扫描
func (c *Controller) StartScan() error { return c.submit(requestScan) }

// Stop 请求停止当前会话
func (c *Controller) Stop() error { return c.submit(requestStop) }

func (c *Controller) submit(k requestKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	// 排队的请求全部生效之后的模式
	effective := c.mode
	for _, p := range c.pending {
		effective = p.target()
	}
	if k == requestStop {
		if effective == ModeIdle {
			return ErrNotRunning
		}
	} else if effective != ModeIdle {
		return ErrBusy
	}
	c.pending = append(c.pending, k)
	return nil
}

func (k requestKind) target() Mode {
	switch k {
	case requestAnalyze:
		return ModeAnalyzing
	case requestScan:
		return ModeScanning
	default:
		return ModeIdle
	}
}

func (c *Controller) hasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) > 0
}

// Mode 当前模式
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Status 返回最近一次 Tick 之后的快照
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Run 循环调用 Tick 直到 ctx 结束，结束时停止活动的会话并输出报告
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		default:
		}
		active, worked := c.step()
		if !active {
			if c.oneShot && !c.hasPending() {
				st := c.Status()
				if st.LastError != "" {
					return errors.New(st.LastError)
				}
				if st.Session != "" {
					return nil
				}
			}
			time.Sleep(c.idle)
			continue
		}
		if !worked {
			time.Sleep(c.poll)
		}
	}
}

// Tick 处理排队的请求，然后让活动引擎执行一个工作单元。返回是否有活动会话
func (c *Controller) Tick() bool {
	active, _ := c.step()
	return active
}

// step 与 Tick 相同，另外返回活动引擎本次是否处理了数据
func (c *Controller) step() (active, worked bool) {
	c.mu.Lock()
	reqs := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, r := range reqs {
		c.apply(r)
	}

	switch c.Mode() {
	case ModeAnalyzing:
		worked = c.analyzer.Update()
	case ModeScanning:
		// 每次探测都会在通道上等待响应
		c.scanner.Update()
		worked = true
		if !c.scanner.Active() {
			c.finishScan()
		}
	}
	c.refresh()
	return c.Mode() != ModeIdle, worked
}

func (c *Controller) apply(k requestKind) {
	mode := c.Mode()
	switch k {
	case requestAnalyze, requestScan:
		if mode != ModeIdle {
			c.log.WithField("mode", mode).Warn("会话已在运行，忽略开始请求")
			return
		}
		var err error
		next := k.target()
		if next == ModeScanning {
			err = c.scanner.Start()
		} else {
			err = c.analyzer.Start()
		}
		if err != nil {
			c.log.WithError(err).Error("启动会话失败")
			c.setMode(ModeIdle, "", err)
			return
		}
		session := uuid.NewString()
		c.setMode(next, session, nil)
		c.log.WithFields(logrus.Fields{"mode": next, "session": session}).Info("会话开始")
	case requestStop:
		switch mode {
		case ModeAnalyzing:
			c.analyzer.Stop()
			c.reporter.AnalysisSummary(AnalysisReport{
				Session:   c.currentSession(),
				StoppedAt: time.Now(),
				Profile:   c.analyzer.Profile(),
			})
			c.setMode(ModeIdle, c.currentSession(), nil)
		case ModeScanning:
			c.scanner.Stop()
			c.reportScan()
			c.setMode(ModeIdle, c.currentSession(), nil)
		}
	}
}

func (c *Controller) finishScan() {
	c.reportScan()
	if c.verifier != nil && c.scanner.Count() > 0 {
		c.reporter.Verification(VerifyReport{
			Session: c.currentSession(),
			Results: c.verifier.Verify(c.scanner.Devices()),
		})
	}
	c.setMode(ModeIdle, c.currentSession(), nil)
}

func (c *Controller) reportScan() {
	c.reporter.ScanResult(ScanReport{
		Session:   c.currentSession(),
		StoppedAt: time.Now(),
		Completed: c.scanner.Completed(),
		Probes:    c.scanner.Probes(),
		Devices:   c.scanner.Devices(),
	})
}

// Registers 接收扫描器的寄存器采样，按公式换算后转发给 Reporter
func (c *Controller) Registers(device scanner.DeviceRecord, start uint16, values []uint16) {
	r := RegisterReport{
		Session: c.currentSession(),
		Device:  device,
		Start:   start,
		Values:  values,
	}
	if c.equation != nil {
		scaled, err := c.equation.ApplyAll(values)
		if err != nil {
			c.log.WithError(err).Warn("寄存器换算失败")
		} else {
			r.Scaled = scaled
		}
	}
	c.reporter.Registers(r)
}

func (c *Controller) shutdown() {
	if c.Mode() == ModeIdle {
		return
	}
	c.apply(requestStop)
	c.refresh()
}

func (c *Controller) currentSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Controller) setMode(m Mode, session string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m != ModeIdle && c.mode == ModeIdle {
		c.startedAt = time.Now()
		c.kind = m
	}
	c.mode = m
	c.session = session
	c.lastErr = ""
	if err != nil {
		c.lastErr = err.Error()
	}
}

// refresh 在 Tick 的 goroutine 中生成状态快照
func (c *Controller) refresh() {
	c.mu.Lock()
	mode, kind, session, startedAt, lastErr := c.mode, c.kind, c.session, c.startedAt, c.lastErr
	c.mu.Unlock()

	st := Status{
		Mode:      mode.String(),
		Session:   session,
		LastError: lastErr,
	}
	if session != "" {
		t := startedAt
		st.StartedAt = &t
	}
	if session == "" {
		kind = ModeIdle
	}
	switch kind {
	case ModeAnalyzing:
		p := c.analyzer.Profile()
		st.Profile = &p
		st.Baud = c.analyzer.CurrentBaud()
	case ModeScanning:
		cur := c.scanner.Cursor()
		st.Cursor = &cur
		st.Devices = c.scanner.Devices()
		st.Completed = c.scanner.Completed()
		st.Baud = cur.BaudRate
	}

	c.mu.Lock()
	c.status = st
	c.mu.Unlock()
}
