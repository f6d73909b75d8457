package geo

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formationdesk/checkin/schema"
)

const (
	iosSafariUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1"
	iosChromeUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/123.0.6312.52 Mobile/15E148 Safari/604.1"
	androidUA   = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Mobile Safari/537.36"
)

func fixed(lat, lng, accuracy float64) Positioner {
	return PositionerFunc(func(context.Context, PositionRequest) (Position, error) {
		return NewPosition(lat, lng, accuracy), nil
	})
}

func failing(code PositionErrorCode, msg string) Positioner {
	return PositionerFunc(func(context.Context, PositionRequest) (Position, error) {
		return Position{}, &PositionError{Code: code, Message: msg}
	})
}

type unavailablePositioner struct {
	calls int32
}

func (u *unavailablePositioner) Available() bool {
	return false
}

func (u *unavailablePositioner) CurrentPosition(context.Context, PositionRequest) (Position, error) {
	atomic.AddInt32(&u.calls, 1)
	return NewPosition(1, 1, 1), nil
}

func requireFailure(t *testing.T, err error) *Failure {
	t.Helper()
	var f *Failure
	require.True(t, errors.As(err, &f), "expected *Failure, got %v", err)
	return f
}

func TestAcquireLocationAccuracyThreshold(t *testing.T) {
	cases := []struct {
		required float64
		accuracy float64
		ok       bool
	}{
		{50, 0, true},
		{50, 35, true},
		{50, 50, true},
		{50, 50.0001, false},
		{50, 120, false},
		{10, 9.99, true},
		{10, 11, false},
		{0, 0, true},
		{0, 0.5, false},
		{1000, 999, true},
	}

	for _, c := range cases {
		reading, err := AcquireLocation(context.Background(), fixed(9.0579, 7.4951, c.accuracy), WithRequiredAccuracy(c.required))
		if c.ok {
			assert.NoError(t, err, "accuracy %v required %v", c.accuracy, c.required)
			assert.Equal(t, c.accuracy, reading.Accuracy)
			continue
		}

		f := requireFailure(t, err)
		assert.Equal(t, KindAccuracyTooLow, f.Kind)
		require.NotNil(t, f.Accuracy)
		assert.Equal(t, c.accuracy, *f.Accuracy)
		assert.Equal(t, c.required, f.RequiredAccuracy)
		assert.Equal(t, schema.GeoReading{}, reading)
	}
}

func TestAcquireLocationSuccessScenario(t *testing.T) {
	reading, err := AcquireLocation(context.Background(), fixed(9.0579, 7.4951, 35), WithRequiredAccuracy(50))
	require.NoError(t, err)
	assert.Equal(t, schema.GeoReading{Latitude: 9.0579, Longitude: 7.4951, Accuracy: 35}, reading)
}

func TestAcquireLocationAccuracyTooLowScenario(t *testing.T) {
	_, err := AcquireLocation(context.Background(), fixed(9.0579, 7.4951, 120), WithRequiredAccuracy(50))

	f := requireFailure(t, err)
	assert.Equal(t, KindAccuracyTooLow, f.Kind)
	assert.Contains(t, f.Message, "120")
	assert.Contains(t, f.Message, "50")
	assert.True(t, errors.Is(err, ErrAccuracyTooLow))
	assert.True(t, f.Kind.Retryable())
}

func TestAcquireLocationMissingFields(t *testing.T) {
	lat, lng, acc, nan := 1.0, 2.0, 3.0, math.NaN()
	cases := []Position{
		{Longitude: &lng, Accuracy: &acc},
		{Latitude: &lat, Accuracy: &acc},
		{Latitude: &lat, Longitude: &lng},
		{Latitude: &lat, Longitude: &lng, Accuracy: &nan},
	}

	for i, pos := range cases {
		p := pos
		_, err := AcquireLocation(context.Background(), PositionerFunc(func(context.Context, PositionRequest) (Position, error) {
			return p, nil
		}))
		f := requireFailure(t, err)
		assert.Equal(t, KindAccuracyTooLow, f.Kind, "case %d", i)
		assert.Equal(t, DefaultRequiredAccuracy, f.RequiredAccuracy, "case %d", i)
	}

	// accuracy missing is reported as unknown, not as zero
	_, err := AcquireLocation(context.Background(), PositionerFunc(func(context.Context, PositionRequest) (Position, error) {
		return Position{Latitude: &lat, Longitude: &lng}, nil
	}))
	f := requireFailure(t, err)
	assert.Nil(t, f.Accuracy)
	assert.Contains(t, f.Message, "unknown")
}

func TestAcquireLocationUnsupported(t *testing.T) {
	_, err := AcquireLocation(context.Background(), nil)
	assert.Equal(t, KindUnsupported, requireFailure(t, err).Kind)

	u := &unavailablePositioner{}
	for _, opts := range [][]Option{
		nil,
		{WithTimeout(0)},
		{WithHighAccuracy(false), WithRequiredAccuracy(10000)},
		{WithUserAgent(iosSafariUA)},
	} {
		_, err := AcquireLocation(context.Background(), u, opts...)
		f := requireFailure(t, err)
		assert.Equal(t, KindUnsupported, f.Kind)
		assert.False(t, f.Kind.Retryable())
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&u.calls), "no position request should be made")

	var nilFunc PositionerFunc
	_, err = AcquireLocation(context.Background(), nilFunc)
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestAcquireLocationZeroTimeoutDoesNotHang(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	blocking := PositionerFunc(func(ctx context.Context, _ PositionRequest) (Position, error) {
		<-release
		return NewPosition(1, 1, 1), nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := AcquireLocation(context.Background(), blocking, WithTimeout(0))
		done <- err
	}()

	select {
	case err := <-done:
		f := requireFailure(t, err)
		assert.Equal(t, KindTimeout, f.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("AcquireLocation with zero timeout did not return")
	}
}

func TestAcquireLocationTimeout(t *testing.T) {
	slow := PositionerFunc(func(ctx context.Context, _ PositionRequest) (Position, error) {
		<-ctx.Done()
		return Position{}, ctx.Err()
	})

	start := time.Now()
	_, err := AcquireLocation(context.Background(), slow, WithTimeout(20*time.Millisecond))
	assert.Equal(t, KindTimeout, requireFailure(t, err).Kind)
	assert.Less(t, int64(time.Since(start)), int64(time.Second))
}

func TestAcquireLocationPassesRequestSettings(t *testing.T) {
	var got PositionRequest
	p := PositionerFunc(func(_ context.Context, req PositionRequest) (Position, error) {
		got = req
		return NewPosition(1, 1, 1), nil
	})

	_, err := AcquireLocation(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, PositionRequest{HighAccuracy: true, MaximumAge: DefaultMaximumAge, Timeout: DefaultTimeout}, got)

	_, err = AcquireLocation(context.Background(), p, WithHighAccuracy(false), WithMaximumAge(0), WithTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, PositionRequest{HighAccuracy: false, MaximumAge: 0, Timeout: time.Second}, got)
}

func TestAcquireLocationErrorMapping(t *testing.T) {
	cases := []struct {
		code PositionErrorCode
		kind Kind
	}{
		{PermissionDenied, KindDenied},
		{PositionUnavailable, KindUnavailable},
		{PositionTimeout, KindTimeout},
		{PositionErrorCode(0), KindUnknown},
		{PositionErrorCode(42), KindUnknown},
	}

	for _, c := range cases {
		_, err := AcquireLocation(context.Background(), failing(c.code, "platform said no"))
		f := requireFailure(t, err)
		assert.Equal(t, c.kind, f.Kind, "code %d", c.code)
		assert.Equal(t, "platform said no", f.Message)

		var pe *PositionError
		assert.True(t, errors.As(err, &pe))
	}

	_, err := AcquireLocation(context.Background(), failing(PositionUnavailable, ""))
	assert.Equal(t, ErrUnavailable.Message, requireFailure(t, err).Message)

	_, err = AcquireLocation(context.Background(), PositionerFunc(func(context.Context, PositionRequest) (Position, error) {
		return Position{}, errors.New("driver crashed")
	}))
	f := requireFailure(t, err)
	assert.Equal(t, KindUnknown, f.Kind)
	assert.Equal(t, "driver crashed", f.Message)
}

func TestAcquireLocationDeniedPlatformHint(t *testing.T) {
	_, err := AcquireLocation(context.Background(), failing(PermissionDenied, "User denied Geolocation"), WithUserAgent(iosSafariUA))
	f := requireFailure(t, err)
	assert.Equal(t, KindDenied, f.Kind)
	assert.True(t, f.PlatformHint)
	assert.Equal(t, PlatformIOSSafari, f.Platform)
	assert.False(t, f.Kind.Retryable())

	for _, ua := range []string{iosChromeUA, androidUA, ""} {
		_, err := AcquireLocation(context.Background(), failing(PermissionDenied, ""), WithUserAgent(ua))
		f := requireFailure(t, err)
		assert.Equal(t, KindDenied, f.Kind)
		assert.False(t, f.PlatformHint, ua)
	}

	// the hint only applies to DENIED
	_, err = AcquireLocation(context.Background(), failing(PositionUnavailable, ""), WithUserAgent(iosSafariUA))
	assert.False(t, requireFailure(t, err).PlatformHint)
}

func TestAcquireLocationCustomPlatformPolicy(t *testing.T) {
	policy := PlatformPolicy{{Name: "android-webview", Match: func(ua string) bool { return ua == "wv" }}}

	_, err := AcquireLocation(context.Background(), failing(PermissionDenied, ""), WithUserAgent("wv"), WithPlatformPolicy(policy))
	f := requireFailure(t, err)
	assert.True(t, f.PlatformHint)
	assert.Equal(t, "android-webview", f.Platform)

	_, err = AcquireLocation(context.Background(), failing(PermissionDenied, ""), WithUserAgent(iosSafariUA), WithPlatformPolicy(policy))
	assert.False(t, requireFailure(t, err).PlatformHint)
}

func TestAcquireLocationAbandoned(t *testing.T) {
	resolved := make(chan struct{})
	release := make(chan struct{})
	p := PositionerFunc(func(context.Context, PositionRequest) (Position, error) {
		<-release
		defer close(resolved)
		return NewPosition(1, 1, 1), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := AcquireLocation(ctx, p)
	f := requireFailure(t, err)
	assert.Equal(t, KindUnknown, f.Kind)
	assert.True(t, errors.Is(err, context.Canceled))

	// the provider resolving after the caller left must not block or panic
	close(release)
	select {
	case <-resolved:
	case <-time.After(2 * time.Second):
		t.Fatal("late resolution blocked")
	}
}

func TestFailureIsByKind(t *testing.T) {
	_, err := AcquireLocation(context.Background(), failing(PositionTimeout, ""))
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.False(t, errors.Is(err, ErrDenied))
	assert.Equal(t, "TIMEOUT: timed out waiting for a location fix", err.Error())

	// sentinels are never handed out directly
	assert.NotSame(t, ErrTimeout, requireFailure(t, err))
}

func TestStaticPositioner(t *testing.T) {
	reading, err := AcquireLocation(context.Background(), StaticPositioner{Latitude: 6.5244, Longitude: 3.3792, Accuracy: 10})
	require.NoError(t, err)
	assert.Equal(t, schema.GeoReading{Latitude: 6.5244, Longitude: 3.3792, Accuracy: 10}, reading)
}
