package pinnacle

import (
	"testing"
	"time"
)

func TestMarketOpen(t *testing.T) {
	now := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)

	open := func() *Period {
		p := openPeriod()
		p.Cutoff = "2026-03-07T15:00:00"
		return p
	}

	tests := []struct {
		name   string
		mutate func(*Period)
		want   bool
	}{
		{"fully open", func(p *Period) {}, true},
		{"period not open", func(p *Period) { p.PeriodStatus = 2 }, false},
		{"no odds at all", func(p *Period) {
			p.MoneyLine = nil
			p.Spreads = nil
			p.Totals = nil
		}, false},
		{"cutoff passed", func(p *Period) { p.Cutoff = "2026-03-07T11:00:00" }, false},
		{"unparseable cutoff", func(p *Period) { p.Cutoff = "soon" }, false},
		{"no meta", func(p *Period) { p.Meta = nil }, false},
		{"all meta flags closed", func(p *Period) {
			p.Meta.OpenMoneyLine = false
			p.Meta.OpenSpreads = false
			p.Meta.OpenTotals = false
		}, false},
		{"only totals flag open", func(p *Period) {
			p.Meta.OpenMoneyLine = false
			p.Meta.OpenSpreads = false
			p.Meta.OpenTotals = true
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := open()
			tt.mutate(p)
			if got := marketOpen(p, now); got != tt.want {
				t.Errorf("marketOpen() = %v, want %v", got, tt.want)
			}
		})
	}
}
