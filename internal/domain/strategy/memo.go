package strategy

// memoEntry 快取的計算結果（含錯誤，保證同一根K線結果一致）
type memoEntry struct {
	value any
	err   error
}

// Memo 以K線序號為 key 的單根快取
//
// current 只對 bar 有效；Advance 到 bar+1 時 current 變成 previous，
// 前進超過一根（或倒退）時 previous 直接丟棄，避免讀到過期的值。
type Memo struct {
	bar      int
	valid    bool
	current  map[string]memoEntry
	previous map[string]memoEntry
}

// NewMemo 創建空快取
func NewMemo() *Memo {
	return &Memo{current: make(map[string]memoEntry)}
}

// Bar 當前快取對應的K線序號
func (m *Memo) Bar() int { return m.bar }

// Advance 切換到新的K線
func (m *Memo) Advance(bar int) {
	if m.valid && bar == m.bar {
		return
	}

	if m.valid && bar == m.bar+1 {
		m.previous = m.current
	} else {
		m.previous = nil
	}

	m.current = make(map[string]memoEntry)
	m.bar = bar
	m.valid = true
}

// Get 讀取當前K線的快取
func (m *Memo) Get(key string) (value any, ok bool, err error) {
	e, ok := m.current[key]
	return e.value, ok, e.err
}

// Set 寫入當前K線的快取
func (m *Memo) Set(key string, value any, err error) {
	m.current[key] = memoEntry{value: value, err: err}
}

// Previous 讀取上一根K線成功算出的值
func (m *Memo) Previous(key string) (any, bool) {
	e, ok := m.previous[key]
	if !ok || e.err != nil {
		return nil, false
	}
	return e.value, true
}
