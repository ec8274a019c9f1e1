package daemon

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"streamwatch/internal/logger"
	"streamwatch/internal/model"
	"streamwatch/internal/repository"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// HistoryReader serves persisted history. Without one, /history and /stats
// fall back to the in-memory records and counters of this run.
type HistoryReader interface {
	GetRecent(limit int) ([]model.History, error)
	GetFailed() ([]model.History, error)
	GetStats() (repository.Stats, error)
}

type Server struct {
	echo     *echo.Echo
	manager  *Manager
	histRepo HistoryReader
	port     int
	stopCh   chan struct{}
}

func NewServer(manager *Manager, histRepo HistoryReader, port int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:     e,
		manager:  manager,
		histRepo: histRepo,
		port:     port,
		stopCh:   make(chan struct{}, 1),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/status", s.handleStatus)
	s.echo.GET("/pending", s.handlePending)
	s.echo.GET("/history", s.handleHistory)
	s.echo.GET("/stats", s.handleStats)

	s.echo.POST("/pause", s.handlePause)
	s.echo.POST("/resume", s.handleResume)
	s.echo.POST("/copy-now", s.handleCopyNow)
	s.echo.POST("/stop", s.handleStop)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() {
	go func() {
		addr := "127.0.0.1:" + strconv.Itoa(s.port)
		logger.Log.Info("daemon server started",
			zap.String("addr", addr))

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("daemon server error", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	s.manager.Stop(ctx)
	return s.echo.Shutdown(ctx)
}

func (s *Server) StopCh() <-chan struct{} {
	return s.stopCh
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.manager.Snapshot())
}

func (s *Server) handlePending(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"pending": s.manager.Pending(),
	})
}

func (s *Server) handleHistory(c echo.Context) error {
	n := 20
	if nStr := c.QueryParam("n"); nStr != "" {
		parsed, err := strconv.Atoi(nStr)
		if err != nil || parsed < 1 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "n must be a positive integer"})
		}
		n = parsed
	}

	failedOnly := false
	if f := c.QueryParam("failed"); f != "" {
		parsed, err := strconv.ParseBool(f)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed must be a boolean"})
		}
		failedOnly = parsed
	}

	if s.histRepo == nil {
		return c.JSON(http.StatusOK, s.recentFromMemory(n, failedOnly))
	}

	var (
		histories []model.History
		err       error
	)
	if failedOnly {
		histories, err = s.histRepo.GetFailed()
		if len(histories) > n {
			histories = histories[:n]
		}
	} else {
		histories, err = s.histRepo.GetRecent(n)
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, histories)
}

func (s *Server) recentFromMemory(n int, failedOnly bool) []model.History {
	limit := n
	if failedOnly {
		limit = 0
	}

	histories := make([]model.History, 0, n)
	for _, r := range s.manager.Recent(limit) {
		if failedOnly && r.Outcome != model.OutcomeFailed {
			continue
		}
		histories = append(histories, model.NewHistory(r))
		if len(histories) == n {
			break
		}
	}
	return histories
}

// handleStats reports all-time totals from the store, or this run's counters
// when nothing is persisted.
func (s *Server) handleStats(c echo.Context) error {
	if s.histRepo == nil {
		counts := s.manager.Snapshot().Counts
		return c.JSON(http.StatusOK, repository.Stats{
			Total:    int64(counts.Copied + counts.Skipped + counts.Failed),
			Copied:   int64(counts.Copied),
			Skipped:  int64(counts.Skipped),
			Failed:   int64(counts.Failed),
			Verified: int64(counts.Verified),
			Bytes:    counts.Bytes,
		})
	}

	stats, err := s.histRepo.GetStats()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handlePause(c echo.Context) error {
	s.manager.Pause()
	return c.JSON(http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResume(c echo.Context) error {
	s.manager.Resume()
	return c.JSON(http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) handleCopyNow(c echo.Context) error {
	if err := s.manager.TriggerCopyNow(); err != nil {
		if errors.Is(err, ErrPaused) {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (s *Server) handleStop(c echo.Context) error {
	select {
	case s.stopCh <- struct{}{}:
	default:
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}
