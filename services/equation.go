package services

import (
	"fmt"

	"github.com/Knetic/govaluate"
)

// Equation 寄存器值换算公式，变量为 x，例如 "x/10"
type Equation struct {
	raw  string
	expr *govaluate.EvaluableExpression
}

// NewEquation 空字符串返回 nil
func NewEquation(equation string) (*Equation, error) {
	if equation == "" {
		return nil, nil
	}
	expr, err := govaluate.NewEvaluableExpression(equation)
	if err != nil {
		return nil, fmt.Errorf("parse equation %q: %w", equation, err)
	}
	return &Equation{raw: equation, expr: expr}, nil
}

func (e *Equation) String() string { return e.raw }

// Apply 计算单个寄存器值
func (e *Equation) Apply(v uint16) (float64, error) {
	result, err := e.expr.Evaluate(map[string]interface{}{"x": float64(v)})
	if err != nil {
		return 0, err
	}
	f, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("equation %q returned %T", e.raw, result)
	}
	return f, nil
}

// ApplyAll 计算所有寄存器值，任何一个失败则返回错误
func (e *Equation) ApplyAll(values []uint16) ([]float64, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		f, err := e.Apply(v)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}
