package query

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"candlecore/internal/kline"
	"candlecore/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func (s *Server) handleLogin(c *gin.Context) {
	name := c.Query("user")
	password := c.Query("password")
	if name == "" || password == "" {
		c.JSON(http.StatusBadRequest, badRequest("user and password are required"))
		return
	}

	id, cfg, err := s.registry.Login(name, password)
	if err == session.ErrInvalidCredentials {
		c.JSON(http.StatusUnauthorized, unauthorized("invalid credentials"))
		return
	}
	if err != nil {
		s.log.Error("login failed", "user", name, "error", err)
		c.JSON(http.StatusBadRequest, badRequest(err.Error()))
		return
	}

	c.JSON(http.StatusOK, ok(gin.H{"sessionId": id, "config": cfg}))
}

func (s *Server) handleLogout(c *gin.Context) {
	id, err := s.sessionIDFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, badRequest(err.Error()))
		return
	}
	if err := s.registry.Logout(id); err != nil {
		c.JSON(http.StatusBadRequest, badRequest(err.Error()))
		return
	}
	c.JSON(http.StatusOK, ok(nil))
}

// configRequest is the JSON shape the /config endpoint's `config` query
// parameter decodes into.
type configRequest struct {
	Filters          []filterDTO `json:"filters"`
	SubscribedVenues []string    `json:"subscribedVenues"`
}

// filterDTO mirrors the wire form a client actually sends: a filter
// "type" with a [min,max] range and a millisecond candle interval, no
// venue/symbol binding (that lives on configRequest.SubscribedVenues and
// the filter's own include/exclude lists).
type filterDTO struct {
	Type          string   `json:"type"`
	Min           float64  `json:"min"`
	Max           float64  `json:"max"`
	Interval      int64    `json:"interval"`
	SymbolInclude []string `json:"symbolInclude,omitempty"`
	SymbolExclude []string `json:"symbolExclude,omitempty"`
}

func (s *Server) handleConfig(c *gin.Context) {
	id, err := s.sessionIDFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, badRequest(err.Error()))
		return
	}

	raw := c.Query("config")
	cfg, err := parseUserConfig(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, badRequest(err.Error()))
		return
	}

	if err := s.registry.UpdateConfig(id, cfg); err != nil {
		c.JSON(http.StatusBadRequest, badRequest(err.Error()))
		return
	}
	c.JSON(http.StatusOK, ok(nil))
}

func parseUserConfig(raw string) (kline.UserConfig, error) {
	if raw == "" {
		return kline.UserConfig{}, nil
	}
	var req configRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return kline.UserConfig{}, fmt.Errorf("invalid filters JSON: %w", err)
	}

	cfg := kline.UserConfig{
		Filters:          make([]kline.Filter, 0, len(req.Filters)),
		SubscribedVenues: req.SubscribedVenues,
	}
	for _, f := range req.Filters {
		interval, err := kline.IntervalFromMillis(f.Interval)
		if err != nil {
			return kline.UserConfig{}, err
		}
		filter := kline.Filter{
			Kind:          kline.FilterKind(f.Type),
			Min:           decimal.NewFromFloat(f.Min),
			Max:           decimal.NewFromFloat(f.Max),
			Interval:      interval,
			SymbolInclude: f.SymbolInclude,
			SymbolExclude: f.SymbolExclude,
		}
		if err := filter.Validate(); err != nil {
			return kline.UserConfig{}, err
		}
		cfg.Filters = append(cfg.Filters, filter)
	}
	return cfg, nil
}

func (s *Server) handleDetect(c *gin.Context) {
	id, err := s.sessionIDFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, badRequest(err.Error()))
		return
	}

	events, isFull, err := s.registry.PollDetect(id)
	if err != nil {
		c.JSON(http.StatusBadRequest, badRequest(err.Error()))
		return
	}
	c.JSON(http.StatusOK, ok(gin.H{"events": events, "isFull": isFull}))
}

func (s *Server) handleStockExchanges(c *gin.Context) {
	id, err := s.sessionIDFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, badRequest(err.Error()))
		return
	}
	venues, err := s.registry.ListVenues(id)
	if err != nil {
		c.JSON(http.StatusBadRequest, badRequest(err.Error()))
		return
	}
	c.JSON(http.StatusOK, ok(gin.H{"venues": venues}))
}

// klineIdDTO is the wire shape of one /klinesidlist entry: the venue is
// already implied by the venueId filter, so only symbol/interval remain.
type klineIdDTO struct {
	Symbol   string `json:"symbol"`
	Interval int64  `json:"interval"`
}

func (s *Server) handleKLinesIdList(c *gin.Context) {
	id, err := s.sessionIDFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, badRequest(err.Error()))
		return
	}
	venueId := c.Query("venueId")
	if venueId == "" {
		c.JSON(http.StatusBadRequest, badRequest("venueId is required"))
		return
	}

	instruments, err := s.registry.ListKLineIds(id, venueId)
	if err != nil {
		c.JSON(http.StatusBadRequest, badRequest(err.Error()))
		return
	}

	ids := make([]klineIdDTO, 0, len(instruments))
	for _, instr := range instruments {
		ids = append(ids, klineIdDTO{Symbol: instr.Symbol, Interval: instr.Interval.Milliseconds()})
	}
	c.JSON(http.StatusOK, ok(gin.H{"ids": ids}))
}

func (s *Server) handleServerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, ok(gin.H{
		"name":        s.appName,
		"version":     s.version,
		"now":         time.Now().UnixMilli(),
		"uptimeSec":   int64(time.Since(s.startedAt).Seconds()),
		"usersOnline": s.registry.OnlineUserNames(),
	}))
}

func (s *Server) sessionIDFromQuery(c *gin.Context) (int32, error) {
	raw := c.Query("sessionId")
	if raw == "" {
		return 0, fmt.Errorf("sessionId is required")
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid sessionId: %w", err)
	}
	return int32(n), nil
}
