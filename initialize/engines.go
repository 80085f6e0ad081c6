package initialize

import (
	"github.com/spf13/viper"

	"github.com/r19g75/modbus-bus-diag/analyzer"
	"github.com/r19g75/modbus-bus-diag/mqtt"
	"github.com/r19g75/modbus-bus-diag/scanner"
	serialline "github.com/r19g75/modbus-bus-diag/serial_line"
	"github.com/r19g75/modbus-bus-diag/simulator"
)

func SerialConfig() serialline.Config {
	return serialline.Config{
		Driver:            viper.GetString("serial.driver"),
		Port:              viper.GetString("serial.port"),
		DataBits:          viper.GetInt("serial.data_bits"),
		Parity:            viper.GetString("serial.parity"),
		StopBits:          viper.GetInt("serial.stop_bits"),
		ReadTimeout:       viper.GetDuration("serial.read_timeout"),
		Direction:         viper.GetString("serial.direction"),
		RTSHighOnTransmit: viper.GetBool("serial.rts_high_on_transmit"),
	}
}

func AnalyzerConfig() analyzer.Config {
	return analyzer.Config{
		BaudRates:          viper.GetIntSlice("bus.baud_rates"),
		BaudSettle:         viper.GetDuration("bus.baud_settle"),
		MinFrame:           viper.GetInt("analyzer.min_frame"),
		BufferSize:         viper.GetInt("analyzer.buffer_size"),
		MaxAddresses:       viper.GetInt("analyzer.max_addresses"),
		MaxFunctions:       viper.GetInt("analyzer.max_functions"),
		CollisionThreshold: viper.GetDuration("analyzer.collision_threshold"),
		SilenceTimeout:     viper.GetDuration("analyzer.silence_timeout"),
	}
}

func ScannerConfig() scanner.Config {
	return scanner.Config{
		BaudRates:       viper.GetIntSlice("bus.baud_rates"),
		BaudSettle:      viper.GetDuration("bus.baud_settle"),
		FirstAddress:    viper.GetInt("scanner.first_address"),
		LastAddress:     viper.GetInt("scanner.last_address"),
		MaxDevices:      viper.GetInt("scanner.max_devices"),
		BufferSize:      viper.GetInt("scanner.buffer_size"),
		MinResponse:     viper.GetInt("scanner.min_response"),
		TxSettle:        viper.GetDuration("scanner.tx_settle"),
		RxSettle:        viper.GetDuration("scanner.rx_settle"),
		ProbeTimeout:    viper.GetDuration("scanner.probe_timeout"),
		ReadTurnaround:  viper.GetDuration("scanner.read_turnaround"),
		ReadTimeout:     viper.GetDuration("scanner.read_timeout"),
		SampleStart:     uint16(viper.GetUint("scanner.sample_start")),
		SampleRegisters: uint16(viper.GetUint("scanner.sample_registers")),
		PollInterval:    viper.GetDuration("scanner.poll_interval"),
	}
}

func MQTTConfig() mqtt.Config {
	return mqtt.Config{
		Broker:      viper.GetString("mqtt.broker"),
		Username:    viper.GetString("mqtt.username"),
		Password:    viper.GetString("mqtt.password"),
		TopicPrefix: viper.GetString("mqtt.topic_prefix"),
		QoS:         byte(viper.GetUint("mqtt.qos")),
		Retained:    viper.GetBool("mqtt.retained"),
		Format:      viper.GetString("mqtt.format"),
		Pool:        viper.GetInt("mqtt.pool"),
	}
}

type simulatedDevice struct {
	Address   uint8    `mapstructure:"address"`
	BaudRate  int      `mapstructure:"baud_rate"`
	Registers []uint16 `mapstructure:"registers"`
}

// SimulatedDevices memory 驱动下模拟的从站
func SimulatedDevices() ([]simulator.Device, error) {
	var raw []simulatedDevice
	if err := viper.UnmarshalKey("simulator.devices", &raw); err != nil {
		return nil, err
	}
	devices := make([]simulator.Device, 0, len(raw))
	for _, d := range raw {
		devices = append(devices, simulator.Device{Address: d.Address, BaudRate: d.BaudRate, Registers: d.Registers})
	}
	return devices, nil
}
