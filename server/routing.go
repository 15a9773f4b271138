package server

import "net/http"

// setupRoutes configures all HTTP handlers
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/runs/case", s.corsMiddleware(s.HandleTriggerCase))    // Trigger single test case (POST)
	s.mux.HandleFunc("/api/runs/suite", s.corsMiddleware(s.HandleTriggerSuite))  // Trigger suite fan-out (POST)
	s.mux.HandleFunc("/api/executions/", s.corsMiddleware(s.HandleExecution))    // Status/results reads and worker callbacks
	s.mux.HandleFunc("/api/suites/", s.corsMiddleware(s.HandleSuiteResults))     // Suite aggregate (GET /api/suites/{id}/results)
	s.mux.HandleFunc("/api/history", s.corsMiddleware(s.HandleHistory))          // Paginated execution history (GET)
	s.mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))
}

// corsMiddleware adds CORS headers using the configured allowed origins
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
