package ticket

import (
	"time"

	"github.com/shopspring/decimal"
)

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func hoursOf(d time.Duration) float64 {
	return decimal.NewFromInt(int64(d)).Div(decimal.NewFromInt(int64(time.Hour))).Round(2).InexactFloat64()
}

// Hours is depart_offload minus arrive_load, in hours to two decimals.
// It returns 0 when either timestamp is missing or malformed and clamps
// non-positive spans to 0, so callers must check presence before reading a
// 0 as a real zero.
func Hours(t Ticket) float64 {
	start, ok1 := t.ArriveLoad.Time()
	end, ok2 := t.DepartOffload.Time()
	if !ok1 || !ok2 {
		return 0
	}
	h := hoursOf(end.Sub(start))
	if h <= 0 {
		return 0
	}
	return h
}

// WaitTime is time spent on site at pickup plus at delivery. Same failure
// and clamping rules as Hours.
func WaitTime(t Ticket) float64 {
	al, ok1 := t.ArriveLoad.Time()
	dl, ok2 := t.DepartLoad.Time()
	ao, ok3 := t.ArriveOffload.Time()
	do, ok4 := t.DepartOffload.Time()
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return 0
	}
	w := hoursOf(dl.Sub(al) + do.Sub(ao))
	if w <= 0 {
		return 0
	}
	return w
}
