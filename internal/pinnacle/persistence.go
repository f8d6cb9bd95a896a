package pinnacle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/matchpulse/odds-engine/internal/pkg/models"
	"github.com/matchpulse/odds-engine/internal/pkg/storage"
)

// BookieName keys this venue's rows in football_odds. The bookie_id column
// holds the venue event id, which lets the poll loop pre-resolve fixtures in
// one query.
const BookieName = "pinnacle"

const priceDecimals = 3

// OddsStore is the slice of the store the reconciler writes through.
type OddsStore interface {
	GetOddsRowsByBookieIDs(ctx context.Context, bookie string, bookieIDs []int64) ([]storage.OddsRow, error)
	UpsertOddsRow(ctx context.Context, row *storage.OddsRow) error
}

// Reconciler folds period snapshots into the odds history columns. A write
// happens only when at least one history grew, so an unchanged poll response
// costs zero statements.
type Reconciler struct {
	store OddsStore
	log   *slog.Logger
}

func NewReconciler(store OddsStore, log *slog.Logger) *Reconciler {
	return &Reconciler{store: store, log: log}
}

// periodColumns is one period flattened into candidate history entries,
// at most one per column.
type periodColumns struct {
	X12    []models.Entry
	AH     []models.Entry
	OU     []models.Entry
	Lines  []models.Entry
	IDs    []models.Entry
	Stakes []models.Entry
}

// Apply merges one period snapshot into the fixture's row and reports whether
// anything was written.
func (r *Reconciler) Apply(ctx context.Context, fixtureID, eventID int64, period *Period, existing *storage.OddsRow) (bool, error) {
	now := time.Now().Unix()
	cand := buildPeriodColumns(period, now)

	var row storage.OddsRow
	if existing != nil {
		row = *existing
	}
	row.FixtureID = fixtureID
	row.BookieID = eventID
	row.Bookie = BookieName
	row.Decimals = priceDecimals

	var changed []string
	var err error
	if row.OddsX12, err = mergeColumn(row.OddsX12, cand.X12, "x12", &changed); err != nil {
		return false, err
	}
	if row.OddsAH, err = mergeColumn(row.OddsAH, cand.AH, "ah", &changed); err != nil {
		return false, err
	}
	if row.OddsOU, err = mergeColumn(row.OddsOU, cand.OU, "ou", &changed); err != nil {
		return false, err
	}
	if row.Lines, err = mergeColumn(row.Lines, cand.Lines, "lines", &changed); err != nil {
		return false, err
	}
	if row.MaxStakes, err = mergeColumn(row.MaxStakes, cand.Stakes, "stakes", &changed); err != nil {
		return false, err
	}
	if len(changed) == 0 {
		return false, nil
	}

	if len(cand.IDs) > 0 {
		if row.IDs, err = json.Marshal(cand.IDs); err != nil {
			return false, fmt.Errorf("failed to encode ids: %w", err)
		}
	}

	latest := make(map[string]any)
	if len(row.LatestT) > 0 {
		_ = json.Unmarshal(row.LatestT, &latest)
	}
	for _, part := range changed {
		latest[part+"_ts"] = now
	}
	if len(cand.IDs) > 0 {
		latest["ids_ts"] = now
	}
	if row.LatestT, err = json.Marshal(latest); err != nil {
		return false, fmt.Errorf("failed to encode latest_t: %w", err)
	}

	if err := r.store.UpsertOddsRow(ctx, &row); err != nil {
		return false, err
	}
	r.log.Info("odds updated", "fixtureId", fixtureID, "eventId", eventID, "changed", changed)
	return true, nil
}

// mergeColumn appends the candidate entry when it differs from the column's
// last entry ignoring the timestamp. Histories only ever grow.
func mergeColumn(raw []byte, cand []models.Entry, part string, changed *[]string) ([]byte, error) {
	if len(cand) == 0 {
		return raw, nil
	}
	history := models.DecodeHistory(raw)
	if len(history) > 0 && models.SameIgnoringTime(history[len(history)-1], cand[0]) {
		return raw, nil
	}
	history = append(history, cand[0])
	out, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s history: %w", part, err)
	}
	*changed = append(*changed, part)
	return out, nil
}

// buildPeriodColumns flattens a period into candidate entries. Spread and
// total maps are walked in ascending numeric key order so vector positions
// are stable across polls.
func buildPeriodColumns(p *Period, now int64) periodColumns {
	var out periodColumns

	linesEntry := models.Entry{"t": now}
	idsEntry := models.Entry{"t": now, "line_id": p.LineID}
	lineIDs := make(map[string]any)

	if ml := p.MoneyLine; ml != nil {
		out.X12 = []models.Entry{{
			"t": now,
			"x12": []int{
				models.ScalePinnaclePrice(ml.Home),
				models.ScalePinnaclePrice(ml.Draw),
				models.ScalePinnaclePrice(ml.Away),
			},
		}}
	}

	if len(p.Spreads) > 0 {
		keys := make([]string, 0, len(p.Spreads))
		for k := range p.Spreads {
			keys = append(keys, k)
		}
		sortNumeric(keys)
		home := make([]int, 0, len(keys))
		away := make([]int, 0, len(keys))
		values := make([]float64, 0, len(keys))
		altIDs := make([]int64, 0, len(keys))
		for _, k := range keys {
			s := p.Spreads[k]
			home = append(home, models.ScalePinnaclePrice(s.Home))
			away = append(away, models.ScalePinnaclePrice(s.Away))
			values = append(values, s.Hdp)
			altIDs = append(altIDs, s.AltLineID)
		}
		out.AH = []models.Entry{{"t": now, "ah_h": home, "ah_a": away}}
		linesEntry["ah"] = values
		lineIDs["ah"] = altIDs
	}

	if len(p.Totals) > 0 {
		keys := make([]string, 0, len(p.Totals))
		for k := range p.Totals {
			keys = append(keys, k)
		}
		sortNumeric(keys)
		over := make([]int, 0, len(keys))
		under := make([]int, 0, len(keys))
		values := make([]float64, 0, len(keys))
		altIDs := make([]int64, 0, len(keys))
		for _, k := range keys {
			t := p.Totals[k]
			over = append(over, models.ScalePinnaclePrice(t.Over))
			under = append(under, models.ScalePinnaclePrice(t.Under))
			values = append(values, t.Points)
			altIDs = append(altIDs, t.AltLineID)
		}
		out.OU = []models.Entry{{"t": now, "ou_o": over, "ou_u": under}}
		linesEntry["ou"] = values
		lineIDs["ou"] = altIDs
	}

	if _, ok := linesEntry["ah"]; ok {
		out.Lines = []models.Entry{linesEntry}
	} else if _, ok := linesEntry["ou"]; ok {
		out.Lines = []models.Entry{linesEntry}
	}
	if len(lineIDs) > 0 {
		idsEntry["line_ids"] = lineIDs
		out.IDs = []models.Entry{idsEntry}
	}

	if meta := p.Meta; meta != nil {
		stakes := models.Entry{"t": now}
		if meta.MaxMoneyLine != nil {
			stakes["max_stake_x12"] = []float64{*meta.MaxMoneyLine}
		} else {
			stakes["max_stake_x12"] = []float64{}
		}
		if meta.MaxSpread != nil {
			stakes["max_stake_ah"] = map[string]any{"h": []float64{*meta.MaxSpread}, "a": []float64{*meta.MaxSpread}}
		} else {
			stakes["max_stake_ah"] = map[string]any{}
		}
		if meta.MaxTotal != nil {
			stakes["max_stake_ou"] = map[string]any{"o": []float64{*meta.MaxTotal}, "u": []float64{*meta.MaxTotal}}
		} else {
			stakes["max_stake_ou"] = map[string]any{}
		}
		out.Stakes = []models.Entry{stakes}
	}

	return out
}

// sortNumeric orders line keys by parsed float value, which puts "-0.25"
// before "0.5" where a string sort would not.
func sortNumeric(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		fi, _ := strconv.ParseFloat(keys[i], 64)
		fj, _ := strconv.ParseFloat(keys[j], 64)
		return fi < fj
	})
}

// zeroPeriod copies a period with every price and stake cap zeroed, keeping
// line values intact. Written when a previously stored market closes.
func zeroPeriod(p *Period) *Period {
	out := &Period{
		LineID:       p.LineID,
		Cutoff:       p.Cutoff,
		PeriodStatus: p.PeriodStatus,
	}
	if p.MoneyLine != nil {
		out.MoneyLine = &MoneyLine{}
	}
	if len(p.Spreads) > 0 {
		out.Spreads = make(map[string]Spread, len(p.Spreads))
		for k, s := range p.Spreads {
			out.Spreads[k] = Spread{Hdp: s.Hdp, AltLineID: s.AltLineID}
		}
	}
	if len(p.Totals) > 0 {
		out.Totals = make(map[string]Total, len(p.Totals))
		for k, t := range p.Totals {
			out.Totals[k] = Total{Points: t.Points, AltLineID: t.AltLineID}
		}
	}
	if p.Meta != nil {
		zero := 0.0
		meta := &Meta{}
		if p.Meta.MaxMoneyLine != nil {
			meta.MaxMoneyLine = &zero
		}
		if p.Meta.MaxSpread != nil {
			meta.MaxSpread = &zero
		}
		if p.Meta.MaxTotal != nil {
			meta.MaxTotal = &zero
		}
		out.Meta = meta
	}
	return out
}
