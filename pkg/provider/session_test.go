package provider_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stockerr "stocksync/pkg/error"
	"stocksync/pkg/provider"
	"stocksync/pkg/testkit/providers"
)

func TestSession_OpenClose(t *testing.T) {
	mock := providers.NewMockProvider()
	s := provider.NewSession(mock)
	ctx := context.Background()

	require.NoError(t, s.Open(ctx))
	assert.True(t, s.IsOpen())
	assert.True(t, mock.LoggedIn())

	s.Close(ctx)
	s.Close(ctx)
	assert.False(t, s.IsOpen())
	assert.Equal(t, 1, mock.Count(providers.OpLogout, ""), "重复关闭只应登出一次")

	opens, closes := s.Counts()
	assert.Equal(t, 1, opens)
	assert.Equal(t, 1, closes)
}

func TestSession_OpenFailureIsAuthError(t *testing.T) {
	mock := providers.NewMockProvider().FailLogins(errors.New("network down"))
	s := provider.NewSession(mock)

	err := s.Open(context.Background())
	require.Error(t, err)
	assert.True(t, stockerr.IsFatal(err), "登录失败应为AUTH_FAILED")
	assert.False(t, s.IsOpen())

	s.Close(context.Background())
	assert.Equal(t, 0, mock.Count(providers.OpLogout, ""), "未打开的会话不应登出")
}

func TestSession_LogoutErrorSwallowed(t *testing.T) {
	mock := providers.NewMockProvider().FailLogout(errors.New("logout boom"))
	s := provider.NewSession(mock)
	require.NoError(t, s.Open(context.Background()))

	assert.NotPanics(t, func() { s.Close(context.Background()) })
	assert.False(t, s.IsOpen())
}

func TestSession_Renew(t *testing.T) {
	t.Run("成功", func(t *testing.T) {
		mock := providers.NewMockProvider()
		s := provider.NewSession(mock)
		require.NoError(t, s.Open(context.Background()))

		require.NoError(t, s.Renew(context.Background()))
		assert.True(t, s.IsOpen())
		assert.Equal(t, 2, mock.Count(providers.OpLogin, ""))
		assert.Equal(t, 1, mock.Count(providers.OpLogout, ""))
	})

	t.Run("重新登录失败", func(t *testing.T) {
		mock := providers.NewMockProvider().FailLogins(nil, errors.New("expired"))
		s := provider.NewSession(mock)
		require.NoError(t, s.Open(context.Background()))

		err := s.Renew(context.Background())
		assert.True(t, stockerr.IsFatal(err))
		assert.False(t, s.IsOpen())
	})
}

func TestWithSession(t *testing.T) {
	t.Run("函数返回错误时仍关闭会话", func(t *testing.T) {
		mock := providers.NewMockProvider()
		boom := errors.New("boom")

		err := provider.WithSession(context.Background(), mock, func(s *provider.Session) error {
			assert.True(t, s.IsOpen())
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.False(t, mock.LoggedIn())
		assert.Equal(t, 1, mock.Count(providers.OpLogout, ""))
	})

	t.Run("panic时仍关闭会话", func(t *testing.T) {
		mock := providers.NewMockProvider()
		assert.Panics(t, func() {
			_ = provider.WithSession(context.Background(), mock, func(*provider.Session) error {
				panic("unexpected")
			})
		})
		assert.Equal(t, 1, mock.Count(providers.OpLogout, ""))
	})

	t.Run("登录失败不执行函数", func(t *testing.T) {
		mock := providers.NewMockProvider().FailLogins(errors.New("denied"))
		called := false
		err := provider.WithSession(context.Background(), mock, func(*provider.Session) error {
			called = true
			return nil
		})
		assert.True(t, stockerr.IsFatal(err))
		assert.False(t, called)
	})
}

func TestRegistry(t *testing.T) {
	r := provider.NewRegistry()
	require.NoError(t, r.Register("mock", func() provider.Provider { return providers.NewMockProvider() }))
	assert.Error(t, r.Register("mock", func() provider.Provider { return providers.NewMockProvider() }))
	assert.Error(t, r.Register("", nil))

	p, err := r.Create("mock")
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name())

	_, err = r.Create("missing")
	assert.Error(t, err)
	assert.Equal(t, []string{"mock"}, r.Names())
}

func TestParseCell(t *testing.T) {
	assert.Nil(t, provider.ParseCell(""))
	assert.Nil(t, provider.ParseCell("-"))
	assert.Nil(t, provider.ParseCell("abc"))
	require.NotNil(t, provider.ParseCell(" 1.5 "))
	assert.Equal(t, 1.5, *provider.ParseCell("1.5"))
}
