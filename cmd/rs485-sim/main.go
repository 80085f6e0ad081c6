package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goburrow/serial"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/r19g75/modbus-bus-diag/initialize"
	"github.com/r19g75/modbus-bus-diag/simulator"
)

// rs485-sim 在真实串口上模拟 Modbus RTU 从站，用于对照测试扫描器
func main() {
	flags := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	configPath := flags.String("config", "./config.yaml", "配置文件路径")
	flags.String("serial.port", "", "串口设备")
	flags.Int("simulator.baud_rate", 19200, "模拟从站使用的波特率")
	_ = flags.Parse(os.Args[1:])

	if err := initialize.InitConfigByViper(*configPath, flags); err != nil {
		logrus.Fatal("加载配置失败: ", err)
	}
	if err := initialize.InitLogger(); err != nil {
		logrus.Fatal("日志配置错误: ", err)
	}

	devices, err := initialize.SimulatedDevices()
	if err != nil {
		logrus.Fatal("模拟从站配置错误: ", err)
	}
	baud := viper.GetInt("simulator.baud_rate")
	if len(devices) == 0 {
		devices = []simulator.Device{{Address: 1, BaudRate: baud, Registers: []uint16{0x1234, 0x5678}}}
	}

	cfg := initialize.SerialConfig()
	port, err := serial.Open(&serial.Config{
		Address:  cfg.Port,
		BaudRate: baud,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  50 * time.Millisecond,
	})
	if err != nil {
		logrus.Fatal("打开串口失败: ", err)
	}
	defer port.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := simulator.NewResponder(logrus.WithField("component", "simulator"), devices...)
	logrus.WithFields(logrus.Fields{"port": cfg.Port, "baud": baud, "devices": len(devices)}).Info("模拟从站启动")
	if err := simulator.Serve(ctx, port, baud, r); err != nil {
		logrus.Error(err)
	}
	logrus.WithField("requests", r.Requests()).Info("模拟从站退出")
}
