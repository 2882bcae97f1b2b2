package provider

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	stockerr "stocksync/pkg/error"
	"stocksync/pkg/logger"
)

// Session 对数据源登录/登出握手的作用域封装。
// 每次成功的 Open 都恰好对应一次 Close。
type Session struct {
	provider Provider
	log      *logrus.Entry

	mu     sync.Mutex
	open   bool
	opens  int
	closes int
}

// NewSession 创建尚未打开的会话
func NewSession(p Provider) *Session {
	return &Session{
		provider: p,
		log:      logger.WithComponent("ProviderSession").WithField("provider", p.Name()),
	}
}

// Provider 返回会话所属的数据源
func (s *Session) Provider() Provider {
	return s.provider
}

// Open 登录。失败一律返回 AUTH_FAILED
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return nil
	}
	if err := s.provider.Login(ctx); err != nil {
		if stockerr.IsFatal(err) {
			return err
		}
		return stockerr.NewAuthError(s.provider.Name(), "login failed", err)
	}
	s.open = true
	s.opens++
	s.log.Debug("会话已登录")
	return nil
}

// Close 登出。重复调用无副作用；登出失败只记录日志，不向外传播
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return
	}
	s.open = false
	s.closes++
	if err := s.provider.Logout(ctx); err != nil {
		s.log.WithError(err).Warn("登出失败，已忽略")
		return
	}
	s.log.Debug("会话已登出")
}

// Renew 先登出再登录，用于长批次中途避免会话超时。失败是致命的
func (s *Session) Renew(ctx context.Context) error {
	s.Close(ctx)
	if err := s.Open(ctx); err != nil {
		s.log.WithError(err).Error("重新登录失败")
		return err
	}
	s.log.Info("重新登录成功")
	return nil
}

// IsOpen 会话当前是否已登录
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Counts 返回成功登录与登出的次数
func (s *Session) Counts() (opens, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens, s.closes
}

// WithSession 打开会话执行 fn，任何退出路径都会关闭会话
func WithSession(ctx context.Context, p Provider, fn func(*Session) error) error {
	s := NewSession(p)
	if err := s.Open(ctx); err != nil {
		return err
	}
	defer s.Close(ctx)
	return fn(s)
}
