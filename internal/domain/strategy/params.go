package strategy

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
)

// ParamType 參數類型
type ParamType string

const (
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamString ParamType = "string"
)

// ParamSpec 參數定義：名稱、類型、允許範圍、預設值
// Min == Max 表示數值沒有範圍限制；Options 非空時字串必須是其中之一
type ParamSpec struct {
	Name    string
	Type    ParamType
	Min     float64
	Max     float64
	Default any
	Options []string
}

func (s ParamSpec) bounded() bool { return s.Min != s.Max }

// Params 解析後的參數，整個 run 期間不可變
type Params struct {
	values map[string]any
}

// ResolveParams 套用預設值並驗證覆寫值
//
// 未知參數名、類型無法轉換、超出 [Min, Max] 都返回 *ConfigurationError。
func ResolveParams(specs []ParamSpec, overrides map[string]any) (Params, error) {
	known := make(map[string]ParamSpec, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			return Params{}, &ConfigurationError{Reason: "parameter without name"}
		}
		if _, dup := known[spec.Name]; dup {
			return Params{}, &ConfigurationError{Param: spec.Name, Reason: "declared twice"}
		}
		known[spec.Name] = spec
	}

	for name := range overrides {
		if _, ok := known[name]; !ok {
			return Params{}, &ConfigurationError{Param: name, Reason: "unknown parameter"}
		}
	}

	values := make(map[string]any, len(specs))
	for _, spec := range specs {
		raw, overridden := overrides[spec.Name]
		if !overridden {
			raw = spec.Default
		}

		v, err := convertParam(spec, raw)
		if err != nil {
			return Params{}, err
		}
		values[spec.Name] = v
	}

	return Params{values: values}, nil
}

func convertParam(spec ParamSpec, raw any) (any, error) {
	switch spec.Type {
	case ParamInt:
		f, err := toFloat(raw)
		if err != nil {
			return nil, &ConfigurationError{Param: spec.Name, Reason: err.Error()}
		}
		if f != math.Trunc(f) {
			return nil, &ConfigurationError{Param: spec.Name, Reason: fmt.Sprintf("expected integer, got %v", raw)}
		}
		if err := checkRange(spec, f); err != nil {
			return nil, err
		}
		return int(f), nil

	case ParamFloat:
		f, err := toFloat(raw)
		if err != nil {
			return nil, &ConfigurationError{Param: spec.Name, Reason: err.Error()}
		}
		if err := checkRange(spec, f); err != nil {
			return nil, err
		}
		return f, nil

	case ParamString:
		s, ok := raw.(string)
		if !ok {
			return nil, &ConfigurationError{Param: spec.Name, Reason: fmt.Sprintf("expected string, got %T", raw)}
		}
		if len(spec.Options) > 0 && !slices.Contains(spec.Options, s) {
			return nil, &ConfigurationError{Param: spec.Name, Reason: fmt.Sprintf("%q not in %v", s, spec.Options)}
		}
		return s, nil

	default:
		return nil, &ConfigurationError{Param: spec.Name, Reason: fmt.Sprintf("unknown type %q", spec.Type)}
	}
}

func checkRange(spec ParamSpec, v float64) error {
	if spec.bounded() && (v < spec.Min || v > spec.Max) {
		return &ConfigurationError{
			Param:  spec.Name,
			Reason: fmt.Sprintf("value %v out of range [%v, %v]", v, spec.Min, spec.Max),
		}
	}
	return nil
}

func toFloat(raw any) (float64, error) {
	var f float64
	switch v := raw.(type) {
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case float32:
		f = float64(v)
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as number", v)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("expected number, got %T", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %v", f)
	}
	return f, nil
}

// Int 讀取整數參數
func (p Params) Int(name string) int {
	v, _ := p.values[name].(int)
	return v
}

// Float 讀取浮點參數（整數參數也可讀取）
func (p Params) Float(name string) float64 {
	switch v := p.values[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// String 讀取字串參數
func (p Params) String(name string) string {
	v, _ := p.values[name].(string)
	return v
}

// Has 參數是否存在
func (p Params) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

// Map 返回參數副本（用於日誌和狀態輸出）
func (p Params) Map() map[string]any {
	out := make(map[string]any, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Names 參數名（已排序）
func (p Params) Names() []string {
	names := make([]string, 0, len(p.values))
	for k := range p.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
