package indicator

import (
	"fmt"

	"github.com/markcheno/go-talib"
)

// MAType 移動平均類型（與 talib.MaType 一一對應）
type MAType int

const (
	MATypeSMA MAType = iota
	MATypeEMA
	MATypeWMA
	MATypeDEMA
	MATypeTEMA
	MATypeTRIMA
	MATypeKAMA
	MATypeMAMA
	MATypeT3
)

var maTypeNames = map[MAType]string{
	MATypeSMA:   "SMA",
	MATypeEMA:   "EMA",
	MATypeWMA:   "WMA",
	MATypeDEMA:  "DEMA",
	MATypeTEMA:  "TEMA",
	MATypeTRIMA: "TRIMA",
	MATypeKAMA:  "KAMA",
	MATypeMAMA:  "MAMA",
	MATypeT3:    "T3",
}

func (t MAType) String() string {
	if name, ok := maTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MAType(%d)", int(t))
}

// Lookback 該類型第一個有效值需要的K線數量
func (t MAType) Lookback(period int) (int, error) {
	switch t {
	case MATypeSMA, MATypeEMA, MATypeWMA, MATypeTRIMA:
		return period, nil
	case MATypeDEMA:
		return 2*(period-1) + 1, nil
	case MATypeTEMA:
		return 3*(period-1) + 1, nil
	case MATypeKAMA:
		return period + 1, nil
	case MATypeMAMA:
		return 33, nil
	case MATypeT3:
		return 6*(period-1) + 1, nil
	default:
		return 0, fmt.Errorf("unsupported moving average type %d", int(t))
	}
}

// MASeries 依類型計算移動平均序列
func MASeries(src []float64, period int, maType MAType) ([]float64, error) {
	if err := requirePeriod(maType.String(), period); err != nil {
		return nil, err
	}
	need, err := maType.Lookback(period)
	if err != nil {
		return nil, err
	}
	if err := require(maType.String(), len(src), need); err != nil {
		return nil, err
	}
	return talib.Ma(src, period, talib.MaType(maType)), nil
}
