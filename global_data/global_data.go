package globaldata

// modbus功能码名称
var FunctionNameMap = map[byte]string{
	0x01: "Read Coils",
	0x02: "Read Discrete Inputs",
	0x03: "Read Holding Registers",
	0x04: "Read Input Registers",
	0x05: "Write Single Coil",
	0x06: "Write Single Register",
	0x0F: "Write Multiple Coils",
	0x10: "Write Multiple Registers",
}

// GetFunctionName 返回功能码名称
func GetFunctionName(code byte) string {
	if name, ok := FunctionNameMap[code]; ok {
		return name
	}
	return "Unknown Function"
}

// modbus错误码映射
var ModbusErrorMap = map[byte]string{
	0x01: "Illegal function(非法功能)",
	0x02: "Illegal data address(非法数据地址)",
	0x03: "Illegal data value(非法数据值)",
	0x04: "Slave device failure(从站设备故障)",
	0x05: "Acknowledge(应答)",
	0x06: "Slave device busy(从站设备忙)",
	0x08: "Memory parity error(存储器奇偶校验错误)",
	0x0A: "Gateway path unavailable(网关路径不可用)",
	0x0B: "Gateway target device failed to respond(网关目标设备未响应)",
}

// modbus错误码方法，返回一个错误说明
func GetModbusErrorDesc(code byte) string {
	if desc, ok := ModbusErrorMap[code]; ok {
		return desc
	}
	return "Unknown error:未知错误"
}
