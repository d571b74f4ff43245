package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"riddle-league/internal/app"
)

// Services bundles what the HTTP surface calls into.
type Services struct {
	Riddles      *app.RiddleService
	Competitions *app.CompetitionService
	Scorer       app.Scorer
	Sweeper      *app.Sweeper
	Gatherer     prometheus.Gatherer
}

// NewRouter wires the REST endpoints, the leaderboard websocket and /metrics.
func NewRouter(s Services, logger *zap.Logger) *mux.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{riddles: s.Riddles, competitions: s.Competitions, scorer: s.Scorer, sweeper: s.Sweeper, logger: logger}
	ws := NewWSHandler(s.Competitions, logger)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	r.HandleFunc("/riddles/{id}", h.GetRiddle).Methods(http.MethodGet)
	r.HandleFunc("/riddles/{id}/answers", h.SubmitAnswer).Methods(http.MethodPost)
	r.HandleFunc("/riddles/{id}/score", h.ScoreRiddle).Methods(http.MethodPost)
	r.HandleFunc("/competitions/{id}/participants", h.JoinCompetition).Methods(http.MethodPost)
	r.HandleFunc("/competitions/{id}/leaderboard", h.GetLeaderboard).Methods(http.MethodGet)
	if s.Sweeper != nil {
		r.HandleFunc("/admin/sweep", h.Sweep).Methods(http.MethodPost)
	}
	r.HandleFunc("/ws", ws.ServeWS)
	return r
}
