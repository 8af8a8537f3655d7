package diag

import "time"

// Record - сериализуемый итог операции для внешних потребителей (Redis, брокер)
type Record struct {
	Session     string    `json:"session"`
	RequestID   string    `json:"request_id"`
	Operation   string    `json:"operation"`
	Table       string    `json:"table"`
	Key         string    `json:"key,omitempty"`
	Kind        string    `json:"kind,omitempty"`
	Status      string    `json:"status"` // "success" | "partial" | "failure"
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	DurationMs  int64     `json:"duration_ms"`
	Rows        int       `json:"rows"`
	Visible     int       `json:"visible"`
	Sources     int       `json:"sources"`
	Failed      int       `json:"failed"`
	Summary     string    `json:"summary,omitempty"`
	Path        string    `json:"path,omitempty"`
	Diagnostics []string  `json:"diagnostics,omitempty"`
	Error       *string   `json:"error,omitempty"`
}

// NewRecord строит запись из итога операции
func NewRecord(session string, o Outcome) Record {
	rec := Record{
		Session:    session,
		RequestID:  o.RequestID,
		Operation:  string(o.Operation),
		Table:      o.Table,
		Key:        o.Key,
		Kind:       o.Kind,
		Status:     string(o.Status()),
		StartedAt:  o.StartedAt,
		FinishedAt: o.FinishedAt,
		DurationMs: o.FinishedAt.Sub(o.StartedAt).Milliseconds(),
		Rows:       o.Rows,
		Visible:    o.Visible,
		Sources:    o.Sources,
		Failed:     o.Failed,
		Summary:    o.Summary(),
		Path:       o.Path,
	}
	for _, d := range o.Diagnostics {
		rec.Diagnostics = append(rec.Diagnostics, d.String())
	}
	if o.Err != nil {
		errStr := o.Err.Error()
		rec.Error = &errStr
	}
	return rec
}
