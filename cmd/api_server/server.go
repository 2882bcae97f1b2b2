package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"stocksync/pkg/cache"
	"stocksync/pkg/report"
)

// RunReader 读取最近的运行统计
type RunReader interface {
	XRevRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd
}

// APIServer 快照的只读 HTTP 接口
type APIServer struct {
	store        *cache.Store
	validityDays int
	runs         RunReader
	stream       string
	log          *logrus.Entry
	server       *http.Server
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewAPIServer runs 为 nil 时 /runs 返回 503
func NewAPIServer(store *cache.Store, validityDays int, runs RunReader, stream string, log *logrus.Entry) *APIServer {
	return &APIServer{store: store, validityDays: validityDays, runs: runs, stream: stream, log: log}
}

// Router 注册路由
func (s *APIServer) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())

	router.GET("/health", s.healthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", s.getStatus)
		v1.GET("/stocks/:code", s.getStock)
		v1.GET("/stocks", s.getStocks)
		v1.GET("/industries", s.getIndustries)
		v1.GET("/runs", s.getRuns)
	}
	return router
}

// Start 后台监听
func (s *APIServer) Start(addr string) {
	s.server = &http.Server{Addr: addr, Handler: s.Router()}
	s.log.WithField("addr", addr).Info("Starting API server...")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()
}

// Stop 优雅关闭
func (s *APIServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.WithError(err).Error("Failed to gracefully shutdown server")
	}
}

func (s *APIServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("request")
	}
}

func (s *APIServer) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now(),
		"stocks":    s.store.Len(),
	})
}

func (s *APIServer) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Status(s.validityDays))
}

func (s *APIServer) getStock(c *gin.Context) {
	rec, ok := s.store.GetStockInfo(c.Param("code"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "stock not found in cache"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// getStocks 支持 min_cap / max_cap（元）与 name 关键字
func (s *APIServer) getStocks(c *gin.Context) {
	if keyword := c.Query("name"); keyword != "" {
		stocks := s.store.SearchByName(keyword)
		c.JSON(http.StatusOK, gin.H{"count": len(stocks), "stocks": stocks})
		return
	}

	minCap, err := optionalFloat(c.Query("min_cap"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_parameter", Message: "min_cap must be a number"})
		return
	}
	maxCap, err := optionalFloat(c.Query("max_cap"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_parameter", Message: "max_cap must be a number"})
		return
	}

	stocks := s.store.GetStocksByMarketCap(minCap, maxCap)
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "0")); err == nil && limit > 0 && limit < len(stocks) {
		stocks = stocks[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"count": len(stocks), "stocks": stocks})
}

func (s *APIServer) getIndustries(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.IndustryStats())
}

func (s *APIServer) getRuns(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "unavailable", Message: "run statistics stream is not configured"})
		return
	}
	count, err := strconv.ParseInt(c.DefaultQuery("count", "10"), 10, 64)
	if err != nil || count <= 0 {
		count = 10
	}

	messages, err := s.runs.XRevRangeN(c.Request.Context(), s.stream, "+", "-", count).Result()
	if err != nil {
		s.log.WithError(err).Error("读取运行统计失败")
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "redis_error", Message: err.Error()})
		return
	}

	runs := make([]*report.Envelope, 0, len(messages))
	for _, msg := range messages {
		data, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		env, err := report.FromJSON(data)
		if err != nil {
			s.log.WithError(err).WithField("id", msg.ID).Warn("跳过无法解析的运行统计")
			continue
		}
		runs = append(runs, env)
	}
	c.JSON(http.StatusOK, gin.H{"count": len(runs), "runs": runs})
}

func optionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
