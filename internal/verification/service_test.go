// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package verification

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/backend/internal/cache"
	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/sms"
	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type outbox struct {
	to, body []string
	err      error
}

func (o *outbox) Send(_ context.Context, to, body string) error {
	if o.err != nil {
		return o.err
	}
	o.to = append(o.to, to)
	o.body = append(o.body, body)
	return nil
}

const phone = "+573001234567"

func newTestService(t *testing.T) (*Service, *cache.MemoryCache, *outbox) {
	t.Helper()
	s := config.Defaults("")
	s.Auth.VerificationCodeExpiration = 5 * time.Minute
	s.AppStoreDemo = config.AppStoreDemoConfig{PhoneNumber: "+15555550100", OTP: "424242"}

	c := cache.NewMemoryCache(0)
	t.Cleanup(func() { _ = c.Close() })
	box := &outbox{}
	svc, err := New(s, c, box)
	require.NoError(t, err)
	svc.generate = func() (string, error) { return "123456", nil }
	return svc, c, box
}

func TestNew_RequiresExpiration(t *testing.T) {
	_, err := New(config.Defaults(""), nil, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestRequestVerify(t *testing.T) {
	ctx := context.Background()
	svc, _, box := newTestService(t)

	require.NoError(t, svc.Request(ctx, phone))
	require.Len(t, box.to, 1)
	assert.Equal(t, phone, box.to[0])
	assert.Contains(t, box.body[0], "123456")
	assert.Contains(t, box.body[0], "5 minutes")

	assert.ErrorIs(t, svc.Verify(ctx, phone, "000000"), ErrCodeMismatch)
	require.NoError(t, svc.Verify(ctx, phone, "123456"))

	// Consumed on success.
	assert.ErrorIs(t, svc.Verify(ctx, phone, "123456"), ErrCodeExpired)
}

func TestVerify_Expired(t *testing.T) {
	ctx := context.Background()
	svc, c, _ := newTestService(t)
	now := time.Now()
	c.SetClock(func() time.Time { return now })

	require.NoError(t, svc.Request(ctx, phone))
	c.SetClock(func() time.Time { return now.Add(svc.TTL() + time.Second) })
	assert.ErrorIs(t, svc.Verify(ctx, phone, "123456"), ErrCodeExpired)
}

func TestVerify_TooManyAttempts(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	require.NoError(t, svc.Request(ctx, phone))

	for i := 0; i < MaxAttempts; i++ {
		assert.ErrorIs(t, svc.Verify(ctx, phone, "999999"), ErrCodeMismatch)
	}
	assert.ErrorIs(t, svc.Verify(ctx, phone, "123456"), ErrTooManyAttempts)

	// A new request resets the counter.
	require.NoError(t, svc.Request(ctx, phone))
	assert.NoError(t, svc.Verify(ctx, phone, "123456"))
}

func TestVerify_ConcurrentGuessesAreBounded(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client, err := cache.NewRedisClient("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	s := config.Defaults("")
	s.Auth.VerificationCodeExpiration = 5 * time.Minute
	svc, err := New(s, cache.NewRedisCache(client, "test", zerolog.Nop()), &outbox{})
	require.NoError(t, err)
	svc.generate = func() (string, error) { return "123456", nil }
	require.NoError(t, svc.Request(ctx, phone))

	var mismatches, locked atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := svc.Verify(ctx, phone, "000000"); {
			case errors.Is(err, ErrCodeMismatch):
				mismatches.Add(1)
			case errors.Is(err, ErrTooManyAttempts):
				locked.Add(1)
			default:
				t.Errorf("unexpected result: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(MaxAttempts), mismatches.Load())
	assert.Equal(t, int64(100-MaxAttempts), locked.Load())
	assert.ErrorIs(t, svc.Verify(ctx, phone, "123456"), ErrTooManyAttempts)
}

type failingDelete struct {
	cache.Cache
	fail atomic.Bool
}

func (f *failingDelete) Delete(ctx context.Context, key string) error {
	if f.fail.Load() {
		return errors.New("delete refused")
	}
	return f.Cache.Delete(ctx, key)
}

func TestVerify_ConsumeFailureIsReported(t *testing.T) {
	ctx := context.Background()
	s := config.Defaults("")
	s.Auth.VerificationCodeExpiration = 5 * time.Minute
	mem := cache.NewMemoryCache(0)
	t.Cleanup(func() { _ = mem.Close() })
	c := &failingDelete{Cache: mem}

	svc, err := New(s, c, &outbox{})
	require.NoError(t, err)
	svc.generate = func() (string, error) { return "123456", nil }
	require.NoError(t, svc.Request(ctx, phone))

	c.fail.Store(true)
	err = svc.Verify(ctx, phone, "123456")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "consume code")
}

func TestExpiryText(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want string
	}{
		{30 * time.Second, "30 seconds"},
		{time.Second, "1 second"},
		{time.Minute, "1 minute"},
		{5 * time.Minute, "5 minutes"},
		{90 * time.Second, "2 minutes"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expiryText(tt.ttl), tt.ttl.String())
	}
}

func TestRequest_SubMinuteExpiryText(t *testing.T) {
	ctx := context.Background()
	s := config.Defaults("")
	s.Auth.VerificationCodeExpiration = 45 * time.Second
	c := cache.NewMemoryCache(0)
	t.Cleanup(func() { _ = c.Close() })
	box := &outbox{}
	svc, err := New(s, c, box)
	require.NoError(t, err)

	require.NoError(t, svc.Request(ctx, phone))
	require.Len(t, box.body, 1)
	assert.Contains(t, box.body[0], "45 seconds")
	assert.NotContains(t, box.body[0], "0 minutes")
}

func TestRequest_DemoNumber(t *testing.T) {
	ctx := context.Background()
	svc, _, box := newTestService(t)

	require.NoError(t, svc.Request(ctx, "+15555550100"))
	assert.Empty(t, box.to)
	assert.NoError(t, svc.Verify(ctx, "+15555550100", "424242"))
	assert.ErrorIs(t, svc.Verify(ctx, "+15555550100", "123456"), ErrCodeMismatch)
}

func TestRequest_SendFailureDropsCode(t *testing.T) {
	ctx := context.Background()
	svc, _, box := newTestService(t)
	box.err = errors.New("twilio down")

	assert.ErrorIs(t, svc.Request(ctx, phone), box.err)
	assert.ErrorIs(t, svc.Verify(ctx, phone, "123456"), ErrCodeExpired)
}

func TestRequest_InvalidNumber(t *testing.T) {
	svc, _, _ := newTestService(t)
	assert.ErrorIs(t, svc.Request(context.Background(), "12345"), sms.ErrInvalidNumber)
}

func TestRandomCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := randomCode()
		require.NoError(t, err)
		assert.Regexp(t, `^\d{6}$`, code)
	}
}
