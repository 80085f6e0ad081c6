package initialize

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/r19g75/modbus-bus-diag/bus"
)

// EnvPrefix 环境变量前缀，例如 MODBUS_DIAG_SERIAL_PORT
const EnvPrefix = "MODBUS_DIAG"

// SetDefaults 所有配置项的默认值
func SetDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("serial.driver", "goburrow")
	viper.SetDefault("serial.port", "/dev/ttyUSB0")
	viper.SetDefault("serial.data_bits", 8)
	viper.SetDefault("serial.parity", "N")
	viper.SetDefault("serial.stop_bits", 1)
	viper.SetDefault("serial.read_timeout", 5*time.Millisecond)
	viper.SetDefault("serial.direction", "none")
	viper.SetDefault("serial.rts_high_on_transmit", true)

	viper.SetDefault("bus.baud_rates", bus.DefaultBaudRates)
	viper.SetDefault("bus.baud_settle", bus.DefaultBaudSettle)

	viper.SetDefault("analyzer.min_frame", 8)
	viper.SetDefault("analyzer.buffer_size", 32)
	viper.SetDefault("analyzer.max_addresses", 10)
	viper.SetDefault("analyzer.max_functions", 5)
	viper.SetDefault("analyzer.collision_threshold", 5*time.Millisecond)
	viper.SetDefault("analyzer.silence_timeout", time.Second)

	viper.SetDefault("scanner.first_address", 1)
	viper.SetDefault("scanner.last_address", 247)
	viper.SetDefault("scanner.max_devices", 10)
	viper.SetDefault("scanner.buffer_size", 32)
	viper.SetDefault("scanner.min_response", 5)
	viper.SetDefault("scanner.tx_settle", time.Millisecond)
	viper.SetDefault("scanner.rx_settle", 20*time.Millisecond)
	viper.SetDefault("scanner.probe_timeout", 100*time.Millisecond)
	viper.SetDefault("scanner.read_turnaround", 100*time.Millisecond)
	viper.SetDefault("scanner.read_timeout", 200*time.Millisecond)
	viper.SetDefault("scanner.sample_start", 0)
	viper.SetDefault("scanner.sample_registers", 10)
	viper.SetDefault("scanner.poll_interval", time.Millisecond)
	viper.SetDefault("scanner.verify", false)
	viper.SetDefault("scanner.verify_timeout", 500*time.Millisecond)
	viper.SetDefault("scanner.register_equation", "")

	viper.SetDefault("controller.idle_interval", 10*time.Millisecond)
	viper.SetDefault("controller.poll_interval", time.Millisecond)
	viper.SetDefault("http_server.address", "")
	viper.SetDefault("mode", "")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://127.0.0.1:1883")
	viper.SetDefault("mqtt.topic_prefix", "modbus/diag")
	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("mqtt.format", "json")
	viper.SetDefault("mqtt.pool", 4)
}

// InitConfigByViper 读取 yaml 配置文件、环境变量和命令行参数，配置文件不存在时使用默认值
func InitConfigByViper(path string, flags *pflag.FlagSet) error {
	SetDefaults()
	viper.SetConfigType("yaml")
	viper.SetConfigFile(path)
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if flags != nil {
		if err := viper.BindPFlags(flags); err != nil {
			return err
		}
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			logrus.WithField("path", path).Warn("配置文件不存在，使用默认配置")
			return nil
		}
		return err
	}
	logrus.WithField("path", viper.ConfigFileUsed()).Info("系统配置加载完成")
	return nil
}

// InitLogger 按配置设置日志级别和格式
func InitLogger() error {
	level, err := logrus.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	switch viper.GetString("log.format") {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
