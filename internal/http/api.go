// Package http exposes the timer, entries and statistics over a JSON API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sadopc/punchclock/internal/clock"
	"github.com/sadopc/punchclock/internal/stats"
	"github.com/sadopc/punchclock/internal/store"
	"github.com/sadopc/punchclock/internal/timer"
)

// Config wires the handler to its collaborators.
type Config struct {
	Sessions    *timer.Sessions
	Gateway     store.Gateway
	JWTSecret   string
	DefaultDays int
	Clock       clock.Clock
	Logger      logrus.FieldLogger
}

// Handler wires HTTP routes to the timer sessions and the store.
type Handler struct {
	sessions    *timer.Sessions
	gw          store.Gateway
	stats       stats.Service
	secret      string
	defaultDays int
	clock       clock.Clock
	log         logrus.FieldLogger
}

func NewHandler(cfg Config) *Handler {
	h := &Handler{
		sessions:    cfg.Sessions,
		gw:          cfg.Gateway,
		secret:      cfg.JWTSecret,
		defaultDays: cfg.DefaultDays,
		clock:       cfg.Clock,
		log:         cfg.Logger,
	}
	if h.clock == nil {
		h.clock = clock.Real{}
	}
	if h.log == nil {
		h.log = logrus.StandardLogger()
	}
	if h.defaultDays <= 0 {
		h.defaultDays = 7
	}
	h.stats = stats.Service{Gateway: h.gw, Clock: h.clock}
	return h
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": "ok"})
	})

	authed := api.Group("", requireUser(h.secret))
	{
		authed.GET("/timer", h.getTimer)
		authed.POST("/timer/start", h.startTimer)
		authed.POST("/timer/stop", h.stopTimer)
		authed.POST("/timer/resume", h.resumeTimer)

		authed.GET("/entries", h.listEntries)
		authed.GET("/entries/:id", h.getEntry)
		authed.PATCH("/entries/:id", h.patchEntry)
		authed.DELETE("/entries/:id", h.deleteEntry)

		authed.GET("/stats", h.getStats)
	}
}

// ============================================================
// Timer
// ============================================================

type startRequest struct {
	Description string  `json:"description"`
	ProjectID   *string `json:"project_id"`
}

func (h *Handler) controller(c *gin.Context) (*timer.Controller, bool) {
	ctl, err := h.sessions.Get(c.Request.Context(), currentUser(c))
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	return ctl, true
}

func (h *Handler) getTimer(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, snapshotToResponse(ctl.Snapshot()))
}

func (h *Handler) startTimer(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctl, ok := h.controller(c)
	if !ok {
		return
	}
	if req.ProjectID != nil && !h.ownsProject(c.Request.Context(), currentUser(c), *req.ProjectID) {
		badRequest(c, "unknown project")
		return
	}
	snap, err := ctl.Start(c.Request.Context(), req.Description, req.ProjectID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, snapshotToResponse(snap))
}

func (h *Handler) stopTimer(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}
	e, err := ctl.Stop(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entryToResponse(*e))
}

func (h *Handler) resumeTimer(c *gin.Context) {
	ctl, ok := h.controller(c)
	if !ok {
		return
	}
	snap, err := ctl.Resume(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshotToResponse(snap))
}

// ============================================================
// Entries
// ============================================================

type patchRequest struct {
	Description  *string `json:"description"`
	ProjectID    *string `json:"project_id"`
	ClearProject bool    `json:"clear_project"`
	TaskID       *string `json:"task_id"`
}

func (h *Handler) listEntries(c *gin.Context) {
	from, to, err := h.window(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	entries, err := h.gw.EntriesInWindow(c.Request.Context(), currentUser(c), from, to)
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := make([]EntryResponse, len(entries))
	for i := range entries {
		resp[i] = entryToResponse(entries[i])
	}
	c.JSON(http.StatusOK, resp)
}

// ownedEntry loads the entry and hides entries of other users behind 404.
func (h *Handler) ownedEntry(c *gin.Context) (*store.TimeEntry, bool) {
	id := c.Param("id")
	e, err := h.gw.GetEntry(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	if e.UserID != currentUser(c) {
		h.writeError(c, fmt.Errorf("get entry %s: %w", id, store.ErrNotFound))
		return nil, false
	}
	return e, true
}

func (h *Handler) getEntry(c *gin.Context) {
	e, ok := h.ownedEntry(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, entryToResponse(*e))
}

func (h *Handler) patchEntry(c *gin.Context) {
	var req patchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	e, ok := h.ownedEntry(c)
	if !ok {
		return
	}
	if req.ProjectID != nil && !h.ownsProject(c.Request.Context(), e.UserID, *req.ProjectID) {
		badRequest(c, "unknown project")
		return
	}
	updated, err := h.gw.UpdateEntry(c.Request.Context(), e.ID, store.EntryPatch{
		Description:  req.Description,
		ProjectID:    req.ProjectID,
		ClearProject: req.ClearProject,
		TaskID:       req.TaskID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	if updated.Running() {
		h.resync(c.Request.Context(), updated, "patch")
	}
	c.JSON(http.StatusOK, entryToResponse(*updated))
}

func (h *Handler) deleteEntry(c *gin.Context) {
	e, ok := h.ownedEntry(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.gw.DeleteEntry(ctx, e.ID); err != nil {
		h.writeError(c, err)
		return
	}
	if e.Running() {
		h.resync(ctx, e, "delete")
	}
	c.Status(http.StatusNoContent)
}

// resync reloads the owner's controller when e is its running entry, so the
// timer reflects edits and deletions made through the entries routes.
func (h *Handler) resync(ctx context.Context, e *store.TimeEntry, op string) {
	ctl, err := h.sessions.Get(ctx, e.UserID)
	if err != nil || ctl.Snapshot().EntryID != e.ID {
		return
	}
	if _, err := ctl.Resume(ctx); err != nil {
		h.log.WithError(err).WithField("entry", e.ID).Warnf("resume after %s", op)
	}
}

// ownsProject reports whether projectID is usable by userID. Gateways that
// do not manage projects accept any reference.
func (h *Handler) ownsProject(ctx context.Context, userID, projectID string) bool {
	pg, ok := h.gw.(projectGetter)
	if !ok {
		return true
	}
	p, err := pg.GetProject(ctx, projectID)
	return err == nil && p.OwnerID == userID
}

type projectGetter interface {
	GetProject(ctx context.Context, id string) (*store.Project, error)
}

// ============================================================
// Stats
// ============================================================

func (h *Handler) getStats(c *gin.Context) {
	from, to, err := h.window(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	s, err := h.stats.ForWindow(c.Request.Context(), currentUser(c), from, to)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaryToResponse(s, from, to))
}

// window reads ?days=N or ?from=&to= (RFC3339 or YYYY-MM-DD). A bare date
// in "to" covers that whole day. Without parameters the last defaultDays
// days are used.
func (h *Handler) window(c *gin.Context) (time.Time, time.Time, error) {
	fromStr, toStr := c.Query("from"), c.Query("to")
	if fromStr == "" && toStr == "" {
		days := h.defaultDays
		if v := c.Query("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return time.Time{}, time.Time{}, fmt.Errorf("%w: days must be a positive integer", store.ErrInvalid)
			}
			days = n
		}
		from, to := clock.WindowForDays(h.clock.Now(), days)
		return from, to, nil
	}
	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from and to must be given together", store.ErrInvalid)
	}
	from, err := parseBound(fromStr, false)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseBound(toStr, true)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: window ends before it starts", store.ErrInvalid)
	}
	return from, to, nil
}

func parseBound(s string, end bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	day, err := clock.ParseDay(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad time %q", store.ErrInvalid, s)
	}
	if end {
		_, last := clock.DayBounds(day)
		return last, nil
	}
	return day, nil
}
