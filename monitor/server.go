// Package monitor serves the live state of a bridge over HTTP.
package monitor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/rs/xid"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/diibridge/bridge"
)

// Option is a functional option for configuring the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithProfileDuration sets how long /api/profile samples the CPU.
func WithProfileDuration(d time.Duration) Option {
	return func(s *Server) {
		s.profileDuration = d
	}
}

// Server keeps the latest bridge snapshot and serves it as JSON. It
// implements bridge.Publisher.
type Server struct {
	mu       sync.Mutex
	snapshot bridge.Snapshot
	updates  uint64

	components map[string]any

	runID           string
	started         time.Time
	profileDuration time.Duration
	log             logr.Logger

	listener net.Listener
	server   *http.Server
}

var _ bridge.Publisher = (*Server)(nil)

// NewServer creates a server with an empty snapshot.
func NewServer(opts ...Option) *Server {
	s := &Server{
		components:      make(map[string]any),
		runID:           xid.New().String(),
		started:         time.Now(),
		profileDuration: time.Second,
		log:             logr.Discard(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// RunID returns the identifier of this run.
func (s *Server) RunID() string {
	return s.runID
}

// Publish replaces the current snapshot.
func (s *Server) Publish(snap bridge.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = snap
	s.updates++
}

// Snapshot returns the last published snapshot.
func (s *Server) Snapshot() bridge.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot
}

// RegisterComponent makes v inspectable under /api/component/{name}. The
// fields are read without synchronization, so values may be torn while the
// bridge is running.
func (s *Server) RegisterComponent(name string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.components[name] = v
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/run", s.run).Methods(http.MethodGet)
	r.HandleFunc("/api/now", s.now).Methods(http.MethodGet)
	r.HandleFunc("/api/state", s.state).Methods(http.MethodGet)
	r.HandleFunc("/api/counters", s.counters).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.stats).Methods(http.MethodGet)
	r.HandleFunc("/api/list_components", s.listComponents).Methods(http.MethodGet)
	r.HandleFunc("/api/component/{name}", s.component).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", s.resource).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", s.collectProfile).Methods(http.MethodGet)

	return r
}

// Start listens on port and serves in the background. Port 0 picks a free
// port.
func (s *Server) Start(port int) error {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return fmt.Errorf("monitor listen: %w", err)
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.log.Info("monitoring bridge", "url", s.URL(), "run", s.runID)

	go func() {
		err := s.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(err, "monitor stopped")
		}
	}()

	return nil
}

// Port returns the port the server listens on, or 0 before Start.
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}

	return s.listener.Addr().(*net.TCPAddr).Port
}

// URL returns the base address of the server.
func (s *Server) URL() string {
	return fmt.Sprintf("http://localhost:%d", s.Port())
}

// Close stops the server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	return s.server.Close()
}

type runRsp struct {
	RunID   string  `json:"run_id"`
	Uptime  float64 `json:"uptime"`
	Updates uint64  `json:"updates"`
}

func (s *Server) run(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	rsp := runRsp{
		RunID:   s.runID,
		Uptime:  time.Since(s.started).Seconds(),
		Updates: s.updates,
	}
	s.mu.Unlock()

	s.writeJSON(w, rsp)
}

type nowRsp struct {
	Now float64 `json:"now"`
}

func (s *Server) now(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, nowRsp{Now: float64(s.Snapshot().Now)})
}

type stateRsp struct {
	State string `json:"state"`
}

func (s *Server) state(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, stateRsp{State: s.Snapshot().State})
}

type countersRsp struct {
	Received int `json:"received"`
	In       int `json:"in"`
	Out      int `json:"out"`
}

func (s *Server) counters(w http.ResponseWriter, _ *http.Request) {
	c := s.Snapshot().Counters
	s.writeJSON(w, countersRsp{Received: c.Received, In: c.In, Out: c.Out})
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.Snapshot().Stats)
}

func (s *Server) listComponents(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	names := make([]string, 0, len(s.components))
	for name := range s.components {
		names = append(names, name)
	}
	s.mu.Unlock()

	s.writeJSON(w, names)
}

func (s *Server) component(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	s.mu.Lock()
	v, ok := s.components[name]
	s.mu.Unlock()

	if !ok {
		http.Error(w, "component not found", http.StatusNotFound)
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(v)
	serializer.SetMaxDepth(1)

	if err := serializer.Serialize(w); err != nil {
		s.log.Error(err, "failed to serialize component", "name", name)
	}
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (s *Server) resource(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		s.fail(w, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		s.fail(w, err)
		return
	}

	memory, err := proc.MemoryInfo()
	if err != nil {
		s.fail(w, err)
		return
	}

	s.writeJSON(w, resourceRsp{CPUPercent: cpuPercent, MemorySize: memory.RSS})
}

func (s *Server) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		s.fail(w, err)
		return
	}

	time.Sleep(s.profileDuration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		s.fail(w, err)
		return
	}

	s.writeJSON(w, prof)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if _, err := w.Write(data); err != nil {
		s.log.Error(err, "failed to write response")
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.log.Error(err, "monitor request failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
