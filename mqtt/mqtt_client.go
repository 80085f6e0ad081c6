package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/fxamacker/cbor/v2"
	"github.com/go-basic/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"

	"github.com/r19g75/modbus-bus-diag/services"
)

// 报告主题后缀
const (
	TopicAnalysis     = "analysis"
	TopicScan         = "scan"
	TopicRegisters    = "registers"
	TopicVerification = "verification"
)

// Config MQTT 上报参数
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Retained    bool
	Format      string // json 或 cbor
	Pool        int    // 发布协程池大小
}

type tokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) MQTT.Token
}

// Publisher 把会话报告发布到 MQTT，发布在协程池中进行，不阻塞总线循环
type Publisher struct {
	cfg    Config
	client tokenPublisher
	conn   MQTT.Client
	pool   *ants.Pool
	encode func(v interface{}) ([]byte, error)
	wg     sync.WaitGroup
	log    logrus.FieldLogger
}

// NewPublisher 连接 broker 并创建 Publisher
func NewPublisher(cfg Config, log logrus.FieldLogger) (*Publisher, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	clientid := uuid.New()
	opts := MQTT.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientid)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true) //自动重连
	opts.SetOrderMatters(false)
	opts.OnConnectionLost = func(c MQTT.Client, err error) {
		log.WithError(err).Warn("MQTT连接断开")
	}
	opts.SetOnConnectHandler(func(c MQTT.Client) {
		log.WithField("broker", cfg.Broker).Info("MQTT客户端连接成功")
	})
	client := MQTT.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	p, err := newPublisher(client, cfg, log)
	if err != nil {
		client.Disconnect(250)
		return nil, err
	}
	p.conn = client
	return p, nil
}

func newPublisher(client tokenPublisher, cfg Config, log logrus.FieldLogger) (*Publisher, error) {
	if cfg.Pool <= 0 {
		cfg.Pool = 4
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "modbus/diag"
	}
	if cfg.QoS > 2 {
		cfg.QoS = 1
	}
	p := &Publisher{cfg: cfg, client: client, log: log}
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		p.encode = json.Marshal
	case "cbor":
		p.encode = cbor.Marshal
	default:
		return nil, fmt.Errorf("unsupported payload format %q", cfg.Format)
	}
	pool, err := ants.NewPool(cfg.Pool) //设置并发池
	if err != nil {
		return nil, err
	}
	p.pool = pool
	return p, nil
}

// Topic 完整主题
func (p *Publisher) Topic(kind string) string {
	return strings.TrimSuffix(p.cfg.TopicPrefix, "/") + "/" + kind
}

// Publish 编码并异步发布
func (p *Publisher) Publish(kind string, v interface{}) error {
	payload, err := p.encode(v)
	if err != nil {
		return err
	}
	topic := p.Topic(kind)
	p.wg.Add(1)
	err = p.pool.Submit(func() {
		defer p.wg.Done()
		token := p.client.Publish(topic, p.cfg.QoS, p.cfg.Retained, payload)
		if !token.WaitTimeout(5 * time.Second) {
			p.log.WithField("topic", topic).Warn("发布消息超时")
			return
		}
		if token.Error() != nil {
			p.log.WithField("topic", topic).WithError(token.Error()).Warn("发布消息失败")
			return
		}
		p.log.WithFields(logrus.Fields{"topic": topic, "bytes": len(payload)}).Debug("发布消息成功")
	})
	if err != nil {
		p.wg.Done()
		return err
	}
	return nil
}

// Flush 等待所有已提交的发布完成
func (p *Publisher) Flush() {
	p.wg.Wait()
}

// Close 等待发布完成后释放协程池并断开连接
func (p *Publisher) Close() {
	p.Flush()
	p.pool.Release()
	if p.conn != nil {
		p.conn.Disconnect(250)
	}
}

func (p *Publisher) report(kind string, v interface{}) {
	if err := p.Publish(kind, v); err != nil {
		p.log.WithField("kind", kind).WithError(err).Warn("提交发布任务失败")
	}
}

func (p *Publisher) AnalysisSummary(r services.AnalysisReport) { p.report(TopicAnalysis, r) }

func (p *Publisher) ScanResult(r services.ScanReport) { p.report(TopicScan, r) }

func (p *Publisher) Registers(r services.RegisterReport) { p.report(TopicRegisters, r) }

func (p *Publisher) Verification(r services.VerifyReport) { p.report(TopicVerification, r) }
