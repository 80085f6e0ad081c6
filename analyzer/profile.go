package analyzer

import "math"

// Timing 查询间隔统计，单位毫秒
type Timing struct {
	LastQuery     uint32 `json:"last_query"`
	MinInterval   uint32 `json:"min_interval"`
	MaxInterval   uint32 `json:"max_interval"`
	TotalInterval uint64 `json:"total_interval"`
	QueryCount    uint32 `json:"query_count"`
}

func newTiming() Timing {
	return Timing{MinInterval: math.MaxUint32}
}

// record 记录一次有效查询，第一次查询只记录时间戳
func (t *Timing) record(now uint32) {
	if t.QueryCount > 0 {
		interval := now - t.LastQuery
		if interval < t.MinInterval {
			t.MinInterval = interval
		}
		if interval > t.MaxInterval {
			t.MaxInterval = interval
		}
		t.TotalInterval += uint64(interval)
	}
	t.LastQuery = now
	t.QueryCount++
}

// HasIntervals 至少有两次查询才有间隔数据
func (t Timing) HasIntervals() bool {
	return t.QueryCount > 1
}

// AverageInterval 间隔总和除以查询次数
func (t Timing) AverageInterval() uint32 {
	if t.QueryCount == 0 {
		return 0
	}
	return uint32(t.TotalInterval / uint64(t.QueryCount))
}

// ErrorStats 总线错误统计
type ErrorStats struct {
	TotalFrames   uint32 `json:"total_frames"`   // 校验通过的帧
	ReadBursts    uint32 `json:"read_bursts"`    // 收到数据的更新周期
	CRCErrors     uint32 `json:"crc_errors"`     // CRC 不匹配
	InvalidFrames uint32 `json:"invalid_frames"` // 无效帧
	Collisions    uint32 `json:"collisions"`     // 疑似冲突
	Overflows     uint32 `json:"overflows"`      // 缓冲区满丢弃的字节
}

// MasterProfile 从总线流量推断出的主站画像
type MasterProfile struct {
	Addresses         []uint8    `json:"addresses"`
	Functions         []uint8    `json:"functions"`
	AddressesRejected int        `json:"addresses_rejected"`
	FunctionsRejected int        `json:"functions_rejected"`
	StartRegister     uint16     `json:"start_register"`
	RegisterCount     uint16     `json:"register_count"`
	BaudRate          int        `json:"baud_rate"`
	Timing            Timing     `json:"timing"`
	Errors            ErrorStats `json:"errors"`
}

// Detected 是否至少捕获过一个有效帧
func (p MasterProfile) Detected() bool {
	return p.Errors.TotalFrames > 0
}
