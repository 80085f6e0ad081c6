package globaldata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetFunctionName(t *testing.T) {
	assert.Equal(t, "Read Holding Registers", GetFunctionName(0x03))
	assert.Equal(t, "Write Multiple Registers", GetFunctionName(0x10))
	assert.Equal(t, "Unknown Function", GetFunctionName(0x2B))
}

func TestGetModbusErrorDesc(t *testing.T) {
	assert.Contains(t, GetModbusErrorDesc(0x02), "Illegal data address")
	assert.Equal(t, "Unknown error:未知错误", GetModbusErrorDesc(0x7F))
}
