package services

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/r19g75/modbus-bus-diag/analyzer"
	globaldata "github.com/r19g75/modbus-bus-diag/global_data"
	"github.com/r19g75/modbus-bus-diag/scanner"
)

// AnalysisReport 分析会话结束时的主站画像
type AnalysisReport struct {
	Session   string                 `json:"session"`
	StoppedAt time.Time              `json:"stopped_at"`
	Profile   analyzer.MasterProfile `json:"profile"`
}

// ScanReport 扫描会话结束时的设备列表
type ScanReport struct {
	Session   string                 `json:"session"`
	StoppedAt time.Time              `json:"stopped_at"`
	Completed bool                   `json:"completed"`
	Probes    int                    `json:"probes"`
	Devices   []scanner.DeviceRecord `json:"devices"`
}

// RegisterReport 一个设备的寄存器采样
type RegisterReport struct {
	Session string               `json:"session"`
	Device  scanner.DeviceRecord `json:"device"`
	Start   uint16               `json:"start"`
	Values  []uint16             `json:"values"`
	Scaled  []float64            `json:"scaled,omitempty"`
}

// VerifyResult 对扫描结果的 CRC 校验复核
type VerifyResult struct {
	Device   scanner.DeviceRecord `json:"device"`
	Verified bool                 `json:"verified"`
	Error    string               `json:"error,omitempty"`
}

type VerifyReport struct {
	Session string         `json:"session"`
	Results []VerifyResult `json:"results"`
}

// Reporter 会话结果的接收者
type Reporter interface {
	AnalysisSummary(r AnalysisReport)
	ScanResult(r ScanReport)
	Registers(r RegisterReport)
	Verification(r VerifyReport)
}

// MultiReporter 把结果分发给多个 Reporter
type MultiReporter []Reporter

func (m MultiReporter) AnalysisSummary(r AnalysisReport) {
	for _, rep := range m {
		rep.AnalysisSummary(r)
	}
}

func (m MultiReporter) ScanResult(r ScanReport) {
	for _, rep := range m {
		rep.ScanResult(r)
	}
}

func (m MultiReporter) Registers(r RegisterReport) {
	for _, rep := range m {
		rep.Registers(r)
	}
}

func (m MultiReporter) Verification(r VerifyReport) {
	for _, rep := range m {
		rep.Verification(r)
	}
}

// LogReporter 通过 logrus 输出报告
type LogReporter struct {
	mu  sync.Mutex
	log logrus.FieldLogger
}

func NewLogReporter(log logrus.FieldLogger) *LogReporter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogReporter{log: log}
}

func (l *LogReporter) AnalysisSummary(r AnalysisReport) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range FormatProfile(r.Profile) {
		l.log.WithField("session", r.Session).Info(line)
	}
}

func (l *LogReporter) ScanResult(r ScanReport) {
	l.mu.Lock()
	defer l.mu.Unlock()
	log := l.log.WithField("session", r.Session)
	log.Infof("=== 扫描结果 === 设备数: %d 探测次数: %d 完成: %v", len(r.Devices), r.Probes, r.Completed)
	if len(r.Devices) == 0 {
		log.Info("未发现设备")
		return
	}
	for _, d := range r.Devices {
		log.Infof("地址: %d (0x%02X) 波特率: %d", d.Address, d.Address, d.BaudRate)
	}
}

func (l *LogReporter) Registers(r RegisterReport) {
	l.mu.Lock()
	defer l.mu.Unlock()
	log := l.log.WithFields(logrus.Fields{"session": r.Session, "address": r.Device.Address, "baud": r.Device.BaudRate})
	for i, v := range r.Values {
		if i < len(r.Scaled) {
			log.Infof("寄存器 %d: %d (0x%04X) -> %g", int(r.Start)+i, v, v, r.Scaled[i])
			continue
		}
		log.Infof("寄存器 %d: %d (0x%04X)", int(r.Start)+i, v, v)
	}
}

func (l *LogReporter) Verification(r VerifyReport) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, res := range r.Results {
		entry := l.log.WithFields(logrus.Fields{"session": r.Session, "address": res.Device.Address, "baud": res.Device.BaudRate})
		if res.Verified {
			entry.Info("CRC复核通过")
		} else {
			entry.Warnf("CRC复核失败: %s", res.Error)
		}
	}
}

// FormatProfile 把主站画像渲染为文本行
func FormatProfile(p analyzer.MasterProfile) []string {
	lines := []string{"=== Modbus 主站分析 ==="}
	if !p.Detected() {
		lines = append(lines, "未捕获到有效帧")
	} else {
		lines = append(lines, fmt.Sprintf("波特率: %d", p.BaudRate))
		addrs := make([]string, len(p.Addresses))
		for i, a := range p.Addresses {
			addrs[i] = fmt.Sprintf("%d (0x%02X)", a, a)
		}
		lines = append(lines, "从站地址: "+strings.Join(addrs, ", "))
		for _, fn := range p.Functions {
			lines = append(lines, fmt.Sprintf("功能码: 0x%02X %s", fn, globaldata.GetFunctionName(fn)))
		}
		lines = append(lines,
			fmt.Sprintf("起始寄存器: %d", p.StartRegister),
			fmt.Sprintf("寄存器数量: %d", p.RegisterCount),
		)
		if p.Timing.HasIntervals() {
			lines = append(lines, fmt.Sprintf("查询间隔(ms): 最小 %d 最大 %d 平均 %d",
				p.Timing.MinInterval, p.Timing.MaxInterval, p.Timing.AverageInterval()))
		}
		if p.AddressesRejected > 0 || p.FunctionsRejected > 0 {
			lines = append(lines, fmt.Sprintf("超出记录上限: 地址 %d 功能码 %d", p.AddressesRejected, p.FunctionsRejected))
		}
	}
	e := p.Errors
	lines = append(lines, fmt.Sprintf("统计: 有效帧 %d CRC错误 %d 无效帧 %d 冲突 %d 溢出字节 %d",
		e.TotalFrames, e.CRCErrors, e.InvalidFrames, e.Collisions, e.Overflows))
	return lines
}
