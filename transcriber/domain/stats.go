package domain

// StatsSnapshot são os contadores acumulados + média móvel de velocidade
// (amostras recentes limitadas, ~100).
type StatsSnapshot struct {
	TotalJobs      int64   `json:"total_jobs"`
	CompletedToday int64   `json:"completed_today"`
	FailedToday    int64   `json:"failed_today"`
	AverageSpeed   float64 `json:"average_speed,omitempty"`
}

// QueueStats é o estado completo da fila exposto ao chamador.
type QueueStats struct {
	Pending        int64   `json:"pending"`
	Processing     int64   `json:"processing"`
	TotalJobs      int64   `json:"total_jobs"`
	CompletedToday int64   `json:"completed_today"`
	FailedToday    int64   `json:"failed_today"`
	AverageSpeed   float64 `json:"average_speed,omitempty"`
}
