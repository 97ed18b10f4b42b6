package indicator

import "github.com/markcheno/go-talib"

// KDJResult KDJ 序列
type KDJResult struct {
	K []float64
	D []float64
	J []float64
}

// KDJ 隨機指標 KDJ，J = 3K - 2D
func KDJ(high, low, close []float64, fastK, slowK, slowD int) (KDJResult, error) {
	for _, p := range []int{fastK, slowK, slowD} {
		if err := requirePeriod("KDJ", p); err != nil {
			return KDJResult{}, err
		}
	}
	if err := require("KDJ", len(close), fastK+slowK+slowD-2); err != nil {
		return KDJResult{}, err
	}

	k, d := talib.Stoch(high, low, close, fastK, slowK, talib.SMA, slowD, talib.SMA)
	j := make([]float64, len(k))
	for i := range k {
		j[i] = 3*k[i] - 2*d[i]
	}
	return KDJResult{K: k, D: d, J: j}, nil
}
