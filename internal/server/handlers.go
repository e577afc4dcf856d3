package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/KaramelBytes/avalia-cli/internal/ai"
	"github.com/KaramelBytes/avalia-cli/internal/app"
	"github.com/KaramelBytes/avalia-cli/internal/history"
)

type tablesResponse struct {
	Available  []string    `json:"available"`
	Declared   []string    `json:"declared"`
	LoadErrors []loadError `json:"load_errors,omitempty"`
}

type loadError struct {
	Table string `json:"table"`
	Error string `json:"error"`
}

type chatRequest struct {
	Question  string `json:"question" binding:"required"`
	Context   string `json:"context"`
	SessionID string `json:"session_id"`
}

func (s *Server) health(c *gin.Context) {
	success(c, http.StatusOK, gin.H{"tables": len(s.app.Analyzer().AvailableTables())}, "ok")
}

func (s *Server) listTables(c *gin.Context) {
	an := s.app.Analyzer()
	resp := tablesResponse{
		Available: an.AvailableTables(),
		Declared:  an.Registry().Names(),
	}
	for _, le := range an.LoadErrors() {
		resp.LoadErrors = append(resp.LoadErrors, loadError{Table: le.Table, Error: le.Err.Error()})
	}
	success(c, http.StatusOK, resp, "")
}

func (s *Server) preview(c *gin.Context) {
	n, err := intQuery(c, "n", 5)
	if err != nil {
		fail(c, http.StatusBadRequest, err, "invalid n")
		return
	}
	t, err := s.app.Analyzer().Preview(c.Param("table"), n)
	if err != nil {
		fail(c, statusFor(err), err, "preview failed")
		return
	}
	success(c, http.StatusOK, t.Frame(), "")
}

func (s *Server) stats(c *gin.Context) {
	st, err := s.app.Analyzer().Stats(c.Param("table"))
	if err != nil {
		fail(c, statusFor(err), err, "stats failed")
		return
	}
	success(c, http.StatusOK, st, "")
}

func (s *Server) schemaSummary(c *gin.Context) {
	reg := s.app.Registry()
	success(c, http.StatusOK, gin.H{"tables": reg.Names(), "summary": reg.Summary()}, "")
}

func (s *Server) schemaTable(c *gin.Context) {
	name := c.Param("table")
	reg := s.app.Registry()
	if _, ok := reg.Lookup(name); !ok {
		fail(c, http.StatusNotFound, nil, reg.TableInfo(name))
		return
	}
	success(c, http.StatusOK, gin.H{"table": name, "info": reg.TableInfo(name)}, "")
}

func (s *Server) runTool(c *gin.Context) {
	args := map[string]any{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&args); err != nil {
			fail(c, http.StatusBadRequest, err, "invalid request body: expected a JSON object")
			return
		}
	}
	name := c.Param("name")
	out := s.app.Adapter().RunRaw(c.Request.Context(), name, args)
	success(c, http.StatusOK, gin.H{"tool": name, "result": out}, "")
}

func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err, "invalid request body: question is required")
		return
	}
	ag, sess, created, err := s.session(req.SessionID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, app.ErrNoAPIKey) {
			status = http.StatusServiceUnavailable
		}
		fail(c, status, err, "agent unavailable")
		return
	}
	ans, err := ag.Ask(c.Request.Context(), sess, req.Question, req.Context)
	if err != nil {
		if created {
			s.forget(sess.ID)
		}
		fail(c, ai.HTTPStatus(err), err, "agent failed")
		return
	}
	success(c, http.StatusOK, ans, "")
}

func (s *Server) history(c *gin.Context) {
	st := s.app.History()
	if st == nil {
		fail(c, http.StatusNotFound, nil, "history is disabled (set history_db)")
		return
	}
	limit, err := intQuery(c, "limit", history.DefaultLimit)
	if err != nil {
		fail(c, http.StatusBadRequest, err, "invalid limit")
		return
	}
	entries, err := st.Recent(c.Request.Context(), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, err, "history query failed")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	success(c, http.StatusOK, entries, "")
}

func (s *Server) reload(c *gin.Context) {
	if err := s.app.Reload(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, err, "reload failed")
		return
	}
	success(c, http.StatusOK, gin.H{"tables": s.app.Analyzer().AvailableTables()}, "reloaded")
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
