package indicator

// Direction 穿越方向
type Direction int

const (
	Above Direction = iota
	Below
)

// Crossed 判斷序列在最新一根是否穿越 level
//
//	Above: 前一根 <= level 且最新一根 > level
//	Below: 前一根 >= level 且最新一根 < level
func Crossed(series []float64, level float64, direction Direction) (bool, error) {
	cur, err := Ago(series, 0)
	if err != nil {
		return false, err
	}
	prev, err := Ago(series, 1)
	if err != nil {
		return false, err
	}

	if direction == Above {
		return prev <= level && cur > level, nil
	}
	return prev >= level && cur < level, nil
}

// CrossedSeries 判斷 fast 在最新一根是否穿越 slow
func CrossedSeries(fast, slow []float64, direction Direction) (bool, error) {
	fCur, err := Ago(fast, 0)
	if err != nil {
		return false, err
	}
	fPrev, err := Ago(fast, 1)
	if err != nil {
		return false, err
	}
	sCur, err := Ago(slow, 0)
	if err != nil {
		return false, err
	}
	sPrev, err := Ago(slow, 1)
	if err != nil {
		return false, err
	}

	if direction == Above {
		return fPrev <= sPrev && fCur > sCur, nil
	}
	return fPrev >= sPrev && fCur < sCur, nil
}
