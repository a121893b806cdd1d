package cmd

import (
	"net"
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

// startProfiler serves the runtime profiles on addr for the life of the
// process.
func startProfiler(addr string) (net.Addr, error) {
	r := mux.NewRouter()
	r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	r.HandleFunc("/debug/pprof/profile", pprof.Profile)
	r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	// named profiles such as heap and goroutine
	r.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "error listening on %s", addr)
	}
	go func() {
		if err := http.Serve(lis, r); err != nil {
			log.Errorw("profiler stopped", "err", err)
		}
	}()
	log.Infow("serving profiles", "addr", lis.Addr().String())
	return lis.Addr(), nil
}
