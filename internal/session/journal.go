package session

import "github.com/alanyoungcy/latencyarb/internal/domain"

// Summary aggregates the journal.
type Summary struct {
	Count                  int     `json:"count"`
	AvgLatencyMs           float64 `json:"avg_latency_ms"`
	MinLatencyMs           float64 `json:"min_latency_ms"`
	MaxLatencyMs           float64 `json:"max_latency_ms"`
	TotalSlippageCostCents int64   `json:"total_slippage_cost_cents"`
	TotalVolume            int64   `json:"total_volume"`
}

// Summarize folds records into a Summary. An empty history yields zeros.
func Summarize(records []domain.TradeRecord) Summary {
	var s Summary
	if len(records) == 0 {
		return s
	}
	var totalLatency float64
	s.MinLatencyMs = records[0].LatencyMs
	s.MaxLatencyMs = records[0].LatencyMs
	for _, r := range records {
		totalLatency += r.LatencyMs
		s.MinLatencyMs = min(s.MinLatencyMs, r.LatencyMs)
		s.MaxLatencyMs = max(s.MaxLatencyMs, r.LatencyMs)
		s.TotalSlippageCostCents += r.SlippageCostCents
		s.TotalVolume += r.Count
	}
	s.Count = len(records)
	s.AvgLatencyMs = totalLatency / float64(len(records))
	return s
}

// Journal is the append-only trade history. It does no locking of its own;
// Session serializes access.
type Journal struct {
	records []domain.TradeRecord
}

// Append adds r to the end of the history.
func (j *Journal) Append(r domain.TradeRecord) {
	j.records = append(j.records, r)
}

// Len returns the number of records.
func (j *Journal) Len() int { return len(j.records) }

// Summary folds the whole history.
func (j *Journal) Summary() Summary { return Summarize(j.records) }

// Recent returns up to n of the newest records, newest first.
func (j *Journal) Recent(n int) []domain.TradeRecord {
	if n <= 0 || len(j.records) == 0 {
		return []domain.TradeRecord{}
	}
	n = min(n, len(j.records))
	out := make([]domain.TradeRecord, 0, n)
	for i := len(j.records) - 1; i >= len(j.records)-n; i-- {
		out = append(out, j.records[i])
	}
	return out
}

// Records returns a copy of the full history.
func (j *Journal) Records() []domain.TradeRecord {
	return append([]domain.TradeRecord(nil), j.records...)
}

func (j *Journal) clear() { j.records = nil }
