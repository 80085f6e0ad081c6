package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/r19g75/modbus-bus-diag/analyzer"
	"github.com/r19g75/modbus-bus-diag/bus"
	httpserver "github.com/r19g75/modbus-bus-diag/http_server"
	"github.com/r19g75/modbus-bus-diag/initialize"
	"github.com/r19g75/modbus-bus-diag/mqtt"
	"github.com/r19g75/modbus-bus-diag/scanner"
	serialline "github.com/r19g75/modbus-bus-diag/serial_line"
	"github.com/r19g75/modbus-bus-diag/services"
	"github.com/r19g75/modbus-bus-diag/simulator"
)

func main() {
	flags := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	configPath := flags.String("config", "./config.yaml", "配置文件路径")
	flags.String("mode", "", "启动后立即进入的模式: analyze 或 scan")
	flags.String("serial.driver", "", "串口驱动: goburrow, bugst, tarm, memory")
	flags.String("serial.port", "", "串口设备")
	flags.String("http_server.address", "", "http控制接口监听地址，为空则不启动")
	_ = flags.Parse(os.Args[1:])

	if err := initialize.InitConfigByViper(*configPath, flags); err != nil {
		logrus.Fatal("加载配置失败: ", err)
	}
	if err := initialize.InitLogger(); err != nil {
		logrus.Fatal("日志配置错误: ", err)
	}
	if err := run(); err != nil {
		logrus.Fatal(err)
	}
}

func run() error {
	clock := bus.NewSystemClock()
	serialCfg := initialize.SerialConfig()

	var responder serialline.Responder
	if serialCfg.Driver == serialline.DriverMemory {
		devices, err := initialize.SimulatedDevices()
		if err != nil {
			return err
		}
		responder = simulator.NewResponder(logrus.WithField("component", "simulator"), devices...)
	}
	line, err := serialline.New(serialCfg, clock, responder)
	if err != nil {
		return err
	}

	a := analyzer.New(line.Channel, line.Pin, clock, initialize.AnalyzerConfig(), logrus.WithField("component", "analyzer"))
	s := scanner.New(line.Channel, line.Pin, clock, initialize.ScannerConfig(), nil, logrus.WithField("component", "scanner"))
	if err := a.Begin(); err != nil {
		return err
	}
	if err := s.Begin(); err != nil {
		return err
	}

	reporters := services.MultiReporter{services.NewLogReporter(logrus.WithField("component", "report"))}
	if viper.GetBool("mqtt.enabled") {
		pub, err := mqtt.NewPublisher(initialize.MQTTConfig(), logrus.WithField("component", "mqtt"))
		if err != nil {
			return err
		}
		defer pub.Close()
		reporters = append(reporters, pub)
	}

	opts := []services.Option{
		services.WithIdleInterval(viper.GetDuration("controller.idle_interval")),
		services.WithPollInterval(viper.GetDuration("controller.poll_interval")),
		services.WithLogger(logrus.WithField("component", "controller")),
	}
	eq, err := services.NewEquation(viper.GetString("scanner.register_equation"))
	if err != nil {
		return err
	}
	if eq != nil {
		opts = append(opts, services.WithEquation(eq))
	}
	if viper.GetBool("scanner.verify") && serialCfg.Driver != serialline.DriverMemory {
		opts = append(opts, services.WithVerifier(&services.ModbusVerifier{
			Port:     serialCfg.Port,
			DataBits: serialCfg.DataBits,
			Parity:   serialCfg.Parity,
			StopBits: serialCfg.StopBits,
			Timeout:  viper.GetDuration("scanner.verify_timeout"),
			Log:      logrus.WithField("component", "verify"),
		}))
	}
	addr := viper.GetString("http_server.address")
	mode := viper.GetString("mode")
	if addr == "" && mode != "" {
		opts = append(opts, services.WithExitWhenIdle())
	}
	ctrl := services.NewController(a, s, reporters, opts...)

	switch mode {
	case "analyze":
		err = ctrl.StartAnalysis()
	case "scan":
		err = ctrl.StartScan()
	case "":
		if addr == "" {
			logrus.Warn("未指定模式且未启用http控制接口，程序将空转直到退出")
		}
	default:
		logrus.WithField("mode", mode).Warn("未知模式，忽略")
	}
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr != "" {
		go func() {
			if err := httpserver.Serve(ctx, addr, ctrl); err != nil {
				logrus.Error("http服务异常退出: ", err)
				stop()
			}
		}()
	}
	logrus.WithFields(logrus.Fields{"driver": serialCfg.Driver, "port": serialCfg.Port, "mode": mode}).Info("总线诊断服务启动")
	return ctrl.Run(ctx)
}
