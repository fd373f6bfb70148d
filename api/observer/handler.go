// Package observer serves read-only views of a running simulation over HTTP.
package observer

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/kilianp07/taxidispatch/core/journal"
	"github.com/kilianp07/taxidispatch/core/model"
	"github.com/kilianp07/taxidispatch/core/simulation"
	"github.com/kilianp07/taxidispatch/infra/logger"
)

const (
	DefaultQueueLimit   = 20
	MaxQueueLimit       = 100
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// Source provides snapshots of the simulation. *simulation.Simulation
// satisfies it.
type Source interface {
	Snapshot(pendingLimit, historyN int) simulation.Snapshot
}

// Options configure the router. A nil Journal disables /api/journal.
type Options struct {
	Journal journal.Store
	Token   string
	Logger  logger.Logger
}

type server struct {
	src  Source
	opts Options
}

// NewRouter returns the observer routes wrapped with panic recovery and CORS.
func NewRouter(src Source, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = logger.NopLogger{}
	}
	s := &server{src: src, opts: opts}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/taxis", s.taxis).Methods(http.MethodGet)
	api.HandleFunc("/taxis/{id:[0-9]+}", s.taxi).Methods(http.MethodGet)
	api.HandleFunc("/queue", s.queue).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.stats).Methods(http.MethodGet)
	api.HandleFunc("/history", s.history).Methods(http.MethodGet)
	if opts.Journal != nil {
		api.Handle("/journal", s.authorize(http.HandlerFunc(s.journal))).Methods(http.MethodGet)
	}

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	recovery := handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{opts.Logger}))
	return recovery(cors(router))
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *server) taxis(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.src.Snapshot(0, 0).Taxis)
}

func (s *server) taxi(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid taxi id", http.StatusBadRequest)
		return
	}
	for _, v := range s.src.Snapshot(0, 0).Taxis {
		if v.ID == id {
			writeJSON(w, v)
			return
		}
	}
	http.Error(w, fmt.Sprintf("taxi %d not found", id), http.StatusNotFound)
}

func (s *server) queue(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", DefaultQueueLimit, MaxQueueLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	snap := s.src.Snapshot(limit, 0)
	writeJSON(w, struct {
		Total   int             `json:"total"`
		Pending []model.Request `json:"pending"`
	}{snap.PendingTotal, snap.Pending})
}

func (s *server) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.src.Snapshot(0, 0).Stats)
}

func (s *server) history(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r, "n", DefaultHistoryLimit, MaxHistoryLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, s.src.Snapshot(0, n).Events)
}

func (s *server) journal(w http.ResponseWriter, r *http.Request) {
	q, err := ParseJournalQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	events, err := s.opts.Journal.Query(r.Context(), q)
	if err != nil {
		s.opts.Logger.Errorf("journal query: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.HistoryEvent{}
	}
	writeJSON(w, events)
}

func (s *server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Token != "" && !validBearer(r.Header.Get("Authorization"), s.opts.Token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func validBearer(header, token string) bool {
	got, ok := strings.CutPrefix(header, "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

// ParseJournalQuery reads start/end (RFC3339), kind, taxi_id, request_id and
// limit from the query string.
func ParseJournalQuery(r *http.Request) (journal.Query, error) {
	v := r.URL.Query()
	var q journal.Query
	var err error
	if s := v.Get("start"); s != "" {
		if q.Start, err = time.Parse(time.RFC3339, s); err != nil {
			return q, fmt.Errorf("start: %w", err)
		}
	}
	if s := v.Get("end"); s != "" {
		if q.End, err = time.Parse(time.RFC3339, s); err != nil {
			return q, fmt.Errorf("end: %w", err)
		}
	}
	if s := v.Get("kind"); s != "" {
		if q.Kind, err = model.ParseEventKind(s); err != nil {
			return q, err
		}
	}
	if s := v.Get("taxi_id"); s != "" {
		if q.TaxiID, err = strconv.Atoi(s); err != nil {
			return q, fmt.Errorf("taxi_id: %w", err)
		}
	}
	if s := v.Get("request_id"); s != "" {
		if q.RequestID, err = strconv.ParseInt(s, 10, 64); err != nil {
			return q, fmt.Errorf("request_id: %w", err)
		}
	}
	if q.Limit, err = intParam(r, "limit", 0, MaxHistoryLimit); err != nil {
		return q, err
	}
	return q, nil
}

// intParam parses a positive integer parameter. Missing or non positive
// values select def; values above max are clipped.
func intParam(r *http.Request, name string, def, max int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: not a number: %q", name, s)
	}
	if n <= 0 {
		return def, nil
	}
	if n > max {
		return max, nil
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type recoveryLogger struct{ log logger.Logger }

func (l recoveryLogger) Println(v ...interface{}) { l.log.Errorf("observer panic: %s", fmt.Sprint(v...)) }
