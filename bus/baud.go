package bus

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultBaudRates 候选波特率，按顺序尝试
var DefaultBaudRates = []int{9600, 19200, 38400, 57600, 115200}

// DefaultBaudSettle 关闭与重新打开串口之间的等待时间
const DefaultBaudSettle = 10 * time.Millisecond

// BaudTable 有序的候选波特率表和当前游标
type BaudTable struct {
	rates []int
	index int
}

func NewBaudTable(rates []int) *BaudTable {
	if len(rates) == 0 {
		rates = DefaultBaudRates
	}
	r := make([]int, len(rates))
	copy(r, rates)
	return &BaudTable{rates: r}
}

func (t *BaudTable) Current() int { return t.rates[t.index] }
func (t *BaudTable) Index() int { return t.index }
func (t *BaudTable) Len() int { return len(t.rates) }

func (t *BaudTable) Rates() []int {
	r := make([]int, len(t.rates))
	copy(r, t.rates)
	return r
}

func (t *BaudTable) Reset() { t.index = 0 }

// Next 循环前进，到达末尾后回到第一个
func (t *BaudTable) Next() int {
	t.index = (t.index + 1) % len(t.rates)
	return t.rates[t.index]
}

// Advance 单向前进，已经是最后一个时返回 false 且游标不变
func (t *BaudTable) Advance() bool {
	if t.index+1 >= len(t.rates) {
		return false
	}
	t.index++
	return true
}

// Cycler 负责在切换波特率时重新打开通道
type Cycler struct {
	table  *BaudTable
	ch     Channel
	clock  Clock
	settle time.Duration
	log    logrus.FieldLogger
	tr     *Transceiver
	opened bool
}

// CyclerConfig 波特率切换参数
type CyclerConfig struct {
	Rates  []int
	Settle time.Duration
	// Transceiver 不为空时，每次打开通道后都把方向置回接收
	Transceiver *Transceiver
}

func NewCycler(ch Channel, clock Clock, cfg CyclerConfig, log logrus.FieldLogger) *Cycler {
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultBaudSettle
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Cycler{
		table:  NewBaudTable(cfg.Rates),
		ch:     ch,
		clock:  clock,
		settle: cfg.Settle,
		log:    log,
		tr:     cfg.Transceiver,
	}
}

func (c *Cycler) Table() *BaudTable { return c.table }
func (c *Cycler) Current() int { return c.table.Current() }

// Restart 游标回到第一个波特率并打开通道
func (c *Cycler) Restart() error {
	c.table.Reset()
	return c.reopen()
}

// Cycle 循环切换到下一个波特率（分析模式使用）
func (c *Cycler) Cycle() error {
	c.table.Next()
	return c.reopen()
}

// Step 单向切换到下一个波特率（扫描模式使用），没有下一个时返回 false 且不重新打开
func (c *Cycler) Step() (bool, error) {
	if !c.table.Advance() {
		return false, nil
	}
	return true, c.reopen()
}

// Reopen 以当前波特率重新打开通道
func (c *Cycler) Reopen() error {
	return c.reopen()
}

// Close 关闭通道
func (c *Cycler) Close() error {
	if !c.opened {
		return nil
	}
	c.opened = false
	_ = c.ch.Discard()
	return c.ch.Close()
}

// reopen 丢弃缓冲数据、关闭、等待、再以当前波特率打开
func (c *Cycler) reopen() error {
	if c.opened {
		if err := c.ch.Discard(); err != nil {
			c.log.WithError(err).Debug("discard before reopen failed")
		}
		if err := c.ch.Close(); err != nil {
			c.log.WithError(err).Warn("close channel failed")
		}
		c.opened = false
		c.clock.Sleep(c.settle)
	}
	baud := c.table.Current()
	if err := c.ch.Open(baud); err != nil {
		return fmt.Errorf("open channel at %d baud: %w", baud, err)
	}
	c.opened = true
	if c.tr != nil {
		// 部分驱动打开端口时会拉高 RTS
		if err := c.tr.Receive(); err != nil {
			return err
		}
	}
	c.log.WithField("baud", baud).Info("波特率切换")
	return nil
}
