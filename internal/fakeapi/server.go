// Package fakeapi is an in-memory backup backend speaking the canonical
// wire schema. It backs the end-to-end tests and the serve-fake command.
package fakeapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"hbk-go/internal/hbk"
)

// DefaultSizeMB is the local size given to backups created through the API.
const DefaultSizeMB = 250

type fault struct {
	status  int
	message string
}

// Server holds the fake backend state. All methods are safe for concurrent use.
type Server struct {
	mu       sync.Mutex
	records  []hbk.BackupRecord
	settings map[string]any
	next     time.Duration
	faults   map[string]fault

	idgen  hbk.IDGenerator
	clock  hbk.Clock
	logger hbk.Logger
	engine *gin.Engine
}

// New creates an empty backend. A nil logger discards request logs.
func New(idgen hbk.IDGenerator, clock hbk.Clock, logger hbk.Logger) *Server {
	if logger == nil {
		logger = hbk.NewNopLogger()
	}
	s := &Server{
		settings: map[string]any{},
		next:     24 * time.Hour,
		faults:   map[string]fault{},
		idgen:    idgen,
		clock:    clock,
		logger:   logger,
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	// Match ids containing escaped slashes.
	r.UseRawPath = true
	r.UnescapePathValues = true
	r.Use(gin.Recovery())
	r.Use(s.requestLog())
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(s.injectFaults())

	r.GET("/backups", s.handleList)
	r.GET("/backups/timer", s.handleTimer)
	r.POST("/backups/new/full", s.handleCreate)
	r.POST("/backups/reset", s.handleReset)
	r.DELETE("/backups/:id", s.handleDelete)
	r.POST("/backups/:id/pin", s.handlePin(true))
	r.POST("/backups/:id/unpin", s.handlePin(false))
	r.POST("/backups/:id/restore", s.handleRestore)
	r.GET("/backups/:id/download", s.handleDownload)
	r.GET("/config", s.handleGetConfig)
	r.POST("/config", s.handleSetConfig)
	return r
}

// Seed replaces the stored backups.
func (s *Server) Seed(records ...hbk.BackupRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append([]hbk.BackupRecord(nil), records...)
}

// Records returns a copy of the stored backups.
func (s *Server) Records() []hbk.BackupRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]hbk.BackupRecord(nil), s.records...)
}

// SetSettings replaces the stored configuration object.
func (s *Server) SetSettings(settings map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

// SetNextBackup sets the value reported by the timer endpoint.
func (s *Server) SetNextBackup(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = d
}

// Fail makes every request matching method and route pattern (for example
// "/backups/:id/pin") answer status with message until Recover is called.
func (s *Server) Fail(method, route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method+" "+route] = fault{status: status, message: message}
}

// Recover clears all injected faults.
func (s *Server) Recover() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = map[string]fault{}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("fake backend request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) injectFaults() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		f, ok := s.faults[c.Request.Method+" "+c.FullPath()]
		s.mu.Unlock()
		if ok {
			c.String(f.status, f.message)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) handleList(c *gin.Context) {
	s.mu.Lock()
	out := make([]hbk.WireRecord, len(s.records))
	for i, r := range s.records {
		out[i] = hbk.ToWire(r)
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleTimer(c *gin.Context) {
	s.mu.Lock()
	ms := s.next.Milliseconds()
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"milliseconds": ms})
}

func (s *Server) handleCreate(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	now := s.clock.Now().UTC()
	name := req.Name
	if name == "" {
		name = "Full backup " + now.Format("2006-01-02 15:04")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Name == name {
			c.String(http.StatusBadRequest, "a backup named %q already exists", name)
			return
		}
	}
	s.records = append(s.records, hbk.BackupRecord{
		ID:     s.idgen.New(),
		Name:   name,
		Status: hbk.StatusLocalOnly,
		Date:   now,
		Local:  hbk.Copy{Present: true, SizeMB: DefaultSizeMB},
	})
	c.Status(http.StatusAccepted)
}

func (s *Server) handleReset(c *gin.Context) {
	s.mu.Lock()
	s.records = nil
	s.mu.Unlock()
	c.Status(http.StatusOK)
}

func (s *Server) handleDelete(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		c.String(http.StatusNotFound, "backup %s not found", id)
		return
	}
	s.records = append(s.records[:i:i], s.records[i+1:]...)
	c.Status(http.StatusOK)
}

func (s *Server) handlePin(pinned bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		s.mu.Lock()
		defer s.mu.Unlock()
		i := s.indexOf(id)
		if i < 0 {
			c.String(http.StatusNotFound, "backup %s not found", id)
			return
		}
		s.records[i].Pinned = pinned
		c.Status(http.StatusOK)
	}
}

func (s *Server) handleRestore(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	i := s.indexOf(id)
	s.mu.Unlock()
	if i < 0 {
		c.String(http.StatusNotFound, "backup %s not found", id)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) handleDownload(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	i := s.indexOf(id)
	s.mu.Unlock()
	if i < 0 {
		c.String(http.StatusNotFound, "backup %s not found", id)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+id+".tar")
	c.Data(http.StatusOK, "application/x-tar", Archive(id))
}

func (s *Server) handleGetConfig(c *gin.Context) {
	s.mu.Lock()
	settings := make(map[string]any, len(s.settings))
	for k, v := range s.settings {
		settings[k] = v
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, settings)
}

func (s *Server) handleSetConfig(c *gin.Context) {
	var settings map[string]any
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.String(http.StatusBadRequest, "invalid settings: %v", err)
		return
	}
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	c.Status(http.StatusOK)
}

// indexOf must be called with s.mu held.
func (s *Server) indexOf(id string) int {
	for i, r := range s.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Archive returns the archive content served for a backup id.
func Archive(id string) []byte {
	return []byte("hbk-archive:" + id)
}
