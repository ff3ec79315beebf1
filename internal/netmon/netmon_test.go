package netmon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tildaslashalef/driftq/internal/config"
	"github.com/tildaslashalef/driftq/internal/loggy"
)

// fakeProber scripts Ping results
type fakeProber struct {
	mu   sync.Mutex
	fail bool
	hits int
}

func (f *fakeProber) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits++
	if f.fail {
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeProber) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func testConfig() config.ConnectivityConfig {
	return config.ConnectivityConfig{
		ProbeInterval: 50 * time.Millisecond,
		ProbeTimeout:  10 * time.Millisecond,
		ProbeRetries:  0,
		AssumeOnline:  false,
	}
}

func TestSetOnlineNotifiesOnTransitionsOnly(t *testing.T) {
	m := NewMonitor(&fakeProber{}, testConfig(), loggy.NewNoopLogger())

	var transitions []bool
	m.OnChange(func(online bool) {
		transitions = append(transitions, online)
	})

	assert.False(t, m.IsOnline())

	m.SetOnline(true)
	m.SetOnline(true) // steady state, no notification
	m.SetOnline(false)
	m.SetOnline(false)
	m.SetOnline(true)

	assert.Equal(t, []bool{true, false, true}, transitions)
	assert.True(t, m.IsOnline())
}

func TestOnChangeUnsubscribe(t *testing.T) {
	m := NewMonitor(&fakeProber{}, testConfig(), loggy.NewNoopLogger())

	var count int
	unsubscribe := m.OnChange(func(bool) { count++ })

	m.SetOnline(true)
	assert.Equal(t, 1, count)

	unsubscribe()
	unsubscribe() // twice is harmless

	m.SetOnline(false)
	assert.Equal(t, 1, count)
}

func TestStartProbesAndDetectsRecovery(t *testing.T) {
	prober := &fakeProber{fail: true}
	m := NewMonitor(prober, testConfig(), loggy.NewNoopLogger())

	online := make(chan bool, 8)
	m.OnChange(func(v bool) { online <- v })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go m.Start(ctx)

	// First probe fails, state stays offline and nothing fires
	time.Sleep(80 * time.Millisecond)
	assert.False(t, m.IsOnline())

	// Backend comes back, the next tick flips the state exactly once
	prober.setFail(false)

	select {
	case v := <-online:
		assert.True(t, v)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor never reported the recovery")
	}

	require.True(t, m.IsOnline())
	assert.Empty(t, online)
}
