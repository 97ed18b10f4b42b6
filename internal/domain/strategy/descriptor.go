package strategy

// Filter 開倉前的過濾條件
type Filter func(ctx *Context) (bool, error)

// Predicate 布林判斷（開倉、平倉、取消）
type Predicate func(ctx *Context) (bool, error)

// EntryPlan 開倉計劃：價格、止損、止盈
type EntryPlan struct {
	Type   OrderType
	Price  float64 // 0 表示當根收盤價
	Stop   float64 // 0 表示沒有保護性止損
	Target float64 // 0 表示沒有止盈
}

// Planner 產生開倉計劃
type Planner func(ctx *Context) (EntryPlan, error)

// PyramidRule 加倉規則
//
// 持倉價格自最近一個單位的開倉價往有利方向移動至少 Threshold × 波動度時加一個單位，
// 成交後整體止損移到 成交價 ∓ StopMultiplier × 波動度。
type PyramidRule struct {
	MaxLevels      Number
	Threshold      Number
	StopMultiplier Number
	Volatility     VolatilityFunc
}

// Descriptor 策略描述：一組純函數
//
// 引擎依固定順序呼叫：Filters → ShouldLong/ShouldShort → GoLong/GoShort + Sizing
// → ShouldExit → Pyramid → CancelPolicy。
type Descriptor struct {
	Name        string
	Description string
	Params      []ParamSpec

	// Validate 參數之間的交叉驗證（例如 fast < slow）
	Validate func(Params) error

	Filters     []Filter
	ShouldLong  Predicate
	ShouldShort Predicate
	GoLong      Planner
	GoShort     Planner
	Sizing      SizingRule

	ShouldExit Predicate
	// ExitOnReversal 持倉中反方向開倉條件成立時也平倉
	ExitOnReversal bool

	Pyramid *PyramidRule

	// CancelPolicy 每根K線詢問是否取消未成交的開倉請求，nil 表示永不取消
	CancelPolicy Predicate

	// SuppressAfterWin 上一筆獲利時跳過下一個開倉信號
	SuppressAfterWin func(Params) bool
}

// Always 永遠成立的條件（CancelPolicy 常用）
func Always(*Context) (bool, error) { return true, nil }

// Never 永不成立的條件
func Never(*Context) (bool, error) { return false, nil }

// MarketAtClose 以當根收盤價市價開倉，沒有止損止盈
func MarketAtClose(ctx *Context) (EntryPlan, error) {
	return EntryPlan{Type: Market, Price: ctx.Price()}, nil
}
