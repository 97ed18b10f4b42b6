package indicator

// IchimokuParams 一目均衡表參數
type IchimokuParams struct {
	Conversion   int
	Base         int
	Lagging      int
	Displacement int
}

// DefaultIchimoku 傳統參數 9/26/52/26
var DefaultIchimoku = IchimokuParams{Conversion: 9, Base: 26, Lagging: 52, Displacement: 26}

// Cloud 當前K線所在位置的雲層
type Cloud struct {
	Conversion float64
	Base       float64
	SpanA      float64
	SpanB      float64
}

// Above 價格是否在雲層之上
func (c Cloud) Above(price float64) bool {
	return price > c.SpanA && price > c.SpanB
}

// midpoint (最高價 + 最低價) / 2，範圍為 [end-period, end)
func midpoint(high, low []float64, end, period int) float64 {
	hi, lo := high[end-period], low[end-period]
	for i := end - period + 1; i < end; i++ {
		if high[i] > hi {
			hi = high[i]
		}
		if low[i] < lo {
			lo = low[i]
		}
	}
	return (hi + lo) / 2
}

// Ichimoku 計算一目均衡表
// 先行帶 A/B 是 displacement 根之前算出並向前平移的值
func Ichimoku(high, low []float64, p IchimokuParams) (Cloud, error) {
	for _, period := range []int{p.Conversion, p.Base, p.Lagging, p.Displacement} {
		if err := requirePeriod("ICHIMOKU", period); err != nil {
			return Cloud{}, err
		}
	}
	longest := max(p.Conversion, p.Base, p.Lagging)
	if err := require("ICHIMOKU", len(high), longest+p.Displacement); err != nil {
		return Cloud{}, err
	}

	n := len(high)
	shifted := n - p.Displacement

	conversionThen := midpoint(high, low, shifted, p.Conversion)
	baseThen := midpoint(high, low, shifted, p.Base)

	return Cloud{
		Conversion: midpoint(high, low, n, p.Conversion),
		Base:       midpoint(high, low, n, p.Base),
		SpanA:      (conversionThen + baseThen) / 2,
		SpanB:      midpoint(high, low, shifted, p.Lagging),
	}, nil
}
