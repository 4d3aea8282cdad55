package api

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"storyreel/internal/story/player"
	"storyreel/internal/story/session"
)

const shutdownTimeout = 5 * time.Second

// Server exposes a session over REST and streams its events over /ws.
type Server struct {
	sess   *session.Session
	hub    *Hub
	router *gin.Engine
}

func NewServer(sess *session.Session) *Server {
	s := &Server{
		sess: sess,
		hub:  NewHub(sess),
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	api := r.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.POST("/outline", s.generateOutline)
		api.POST("/chapters/:number/play", s.playChapter)

		p := api.Group("/player")
		p.POST("/next", s.next)
		p.POST("/prev", s.prev)
		p.POST("/swipe", s.swipe)
		p.POST("/touch", s.touch)
		p.DELETE("", s.backToOutline)
		p.GET("/scenes/:index/image", s.sceneImage)
	}
	r.GET("/ws", s.hub.ServeWS)

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logrus.WithField("addr", addr).Info("Control server listening")

	select {
	case err := <-errc:
		s.hub.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// Hijacked WebSocket connections are not tracked by Shutdown.
	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close disconnects WebSocket clients. Run does this on its own.
func (s *Server) Close() { s.hub.Close() }

func (s *Server) getStatus(c *gin.Context) {
	respond(c, s.sess.Status())
}

func (s *Server) generateOutline(c *gin.Context) {
	if err := s.sess.GenerateOutline(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	respond(c, s.sess.Status())
}

func (s *Server) playChapter(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		abort(c, http.StatusBadRequest, ErrorBadRequest, "chapter number must be an integer")
		return
	}
	if err := s.sess.SelectChapter(c.Request.Context(), number); err != nil {
		fail(c, err)
		return
	}
	respond(c, s.sess.Status())
}

type moveResult struct {
	Move   string `json:"move"`
	Cursor int    `json:"cursor"`
	Total  int    `json:"total"`
}

func (s *Server) move(c *gin.Context, fn func(*player.Playback) player.Move) {
	pb, err := s.sess.Playback()
	if err != nil {
		fail(c, err)
		return
	}
	move := fn(pb)
	cur := pb.Current()
	respond(c, moveResult{Move: move.String(), Cursor: cur.Cursor, Total: cur.Total})
}

func (s *Server) next(c *gin.Context) {
	s.move(c, (*player.Playback).Next)
}

func (s *Server) prev(c *gin.Context) {
	s.move(c, (*player.Playback).Prev)
}

type swipeRequest struct {
	StartX *float64 `json:"startX" binding:"required"`
	EndX   *float64 `json:"endX" binding:"required"`
}

func (s *Server) swipe(c *gin.Context) {
	var req swipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, ErrorBadRequest, err.Error())
		return
	}
	s.move(c, func(pb *player.Playback) player.Move {
		return pb.Swipe(*req.StartX, *req.EndX)
	})
}

type touchRequest struct {
	Phase string   `json:"phase" binding:"required,oneof=start move end"`
	X     *float64 `json:"x" binding:"required"`
}

func (s *Server) touch(c *gin.Context) {
	var req touchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, ErrorBadRequest, err.Error())
		return
	}

	var touchErr error
	s.move(c, func(pb *player.Playback) player.Move {
		m, err := pb.Touch(req.Phase, *req.X)
		touchErr = err
		return m
	})
	if touchErr != nil {
		logrus.WithError(touchErr).Debug("Touch rejected")
	}
}

func (s *Server) backToOutline(c *gin.Context) {
	s.sess.BackToOutline()
	respond(c, s.sess.Status())
}

// sceneImage serves the decoded image of one scene of the playing chapter.
func (s *Server) sceneImage(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		abort(c, http.StatusBadRequest, ErrorBadRequest, "scene index must be an integer")
		return
	}
	pb, err := s.sess.Playback()
	if err != nil {
		fail(c, err)
		return
	}
	sc, ok := pb.Scene(index)
	if !ok {
		abort(c, http.StatusNotFound, ErrorNotFound, "no such scene")
		return
	}
	if sc.Image == "" {
		abort(c, http.StatusNotFound, ErrorAssetNotReady, string(sc.Status()))
		return
	}

	data, err := base64.StdEncoding.DecodeString(sc.Image)
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logrus.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("Handled request")
	}
}
