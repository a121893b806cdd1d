// Package api serves the registry over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adhikar/registry/claims"
	"github.com/adhikar/registry/registry"
)

var log = logging.Logger("api")

// MemberHeader carries the council member identity established by the
// authentication layer in front of this server.
const MemberHeader = "X-Council-Member"

type Options struct {
	VerifyRatePerSecond float64
	VerifyBurst         int
	// VerifyMaxClients bounds the per-client buckets kept by the limiter.
	VerifyMaxClients int
	// Gatherer backs /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
}

type Server struct {
	router  *mux.Router
	svc     *registry.Service
	limiter *Limiter
	http    *http.Server
}

func New(svc *registry.Service, opts Options) *Server {
	if opts.VerifyRatePerSecond <= 0 {
		opts.VerifyRatePerSecond = 2
	}
	s := &Server{
		router:  mux.NewRouter(),
		svc:     svc,
		limiter: NewLimiter(opts.VerifyRatePerSecond, opts.VerifyBurst, opts.VerifyMaxClients),
	}
	s.registerRoutes(opts.Gatherer)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.health).Methods(http.MethodGet)

	api.HandleFunc("/claims", s.submitClaim).Methods(http.MethodPost)
	api.HandleFunc("/claims/pending", s.pendingClaims).Methods(http.MethodGet)
	api.HandleFunc("/claims", s.claimsBySubmitter).Methods(http.MethodGet)
	api.HandleFunc("/claims/{id}", s.getClaim).Methods(http.MethodGet)
	api.HandleFunc("/claims/{id}/votes", s.castVote).Methods(http.MethodPost)
	api.HandleFunc("/claims/{id}/finalize", s.retryFinalization).Methods(http.MethodPost)

	verify := api.PathPrefix("/verify").Subrouter()
	verify.Use(s.limiter.Middleware)
	verify.HandleFunc("/transaction/{txHash}", s.verify).Methods(http.MethodGet)

	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}

// Start listens on addr in the background. Errors other than a clean
// shutdown are logged.
func (s *Server) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("api listening", "addr", ln.Addr().String())
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Errorw("api server failed", "err", err)
		}
	}()
	return ln.Addr(), nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"requiredVotes": s.svc.RequiredVotes(),
	})
}

func (s *Server) submitClaim(w http.ResponseWriter, r *http.Request) {
	var req registry.ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed claim: " + err.Error()})
		return
	}
	c, err := s.svc.SubmitClaim(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) pendingClaims(w http.ResponseWriter, r *http.Request) {
	cs, err := s.svc.PendingClaims(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(cs))
}

func (s *Server) claimsBySubmitter(w http.ResponseWriter, r *http.Request) {
	cs, err := s.svc.ClaimsBySubmitter(r.Context(), r.URL.Query().Get("submittedBy"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(cs))
}

func (s *Server) getClaim(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.GetClaim(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) castVote(w http.ResponseWriter, r *http.Request) {
	member := r.Header.Get(MemberHeader)
	if member == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + MemberHeader + " header"})
		return
	}
	res, err := s.svc.CastVote(r.Context(), mux.Vars(r)["id"], member)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) retryFinalization(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.RetryFinalization(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Verify(r.Context(), mux.Vars(r)["txHash"])
	if err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(report.Text()))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func nonNil(cs []*claims.Claim) []*claims.Claim {
	if cs == nil {
		return []*claims.Claim{}
	}
	return cs
}
