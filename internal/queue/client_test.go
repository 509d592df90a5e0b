package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/intercall/internal/app"
	"github.com/roach88/intercall/internal/meta"
	"github.com/roach88/intercall/internal/testutil"
)

func TestKey(t *testing.T) {
	k := Key{Subdomain: "s", Module: "a-base", QueueName: "echo", Key: "k1"}
	assert.Equal(t, "s:a-base:echo", k.Lane())
	assert.Equal(t, "s:a-base:echo:k1", k.Full())
	assert.Equal(t, ":a-base:echo:", Key{Module: "a-base", QueueName: "echo"}.Full())
}

func TestPublish_LaneRunsInOrderRegardlessOfOutcome(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	markers := testutil.NewMarkers()
	release := make(chan struct{})
	d := dispatchFunc(func(ctx context.Context, task Task, cfg meta.QueueConfig) (any, error) {
		markers.Mark(task.Key + ":start")
		defer markers.Mark(task.Key + ":end")
		if task.Key == "A" {
			<-release
			return nil, errors.New("A failed")
		}
		return "B done", nil
	})
	c := NewClient(newTestRegistry(t), d, WithLogger(discardLogger()))

	base := Key{Subdomain: "s", Module: "a-base", QueueName: "echo"}
	ka, kb := base, base
	ka.Key, kb.Key = "A", "B"
	resA, resB := collect(c, ka), collect(c, kb)

	require.NoError(t, c.Publish(Task{Subdomain: "s", Module: "a-base", QueueName: "echo", Key: "A"}))
	require.NoError(t, c.Publish(Task{Subdomain: "s", Module: "a-base", QueueName: "echo", Key: "B"}))

	// B waits behind the blocked A.
	time.Sleep(20 * time.Millisecond)
	_, started := markers.Seq("B:start")
	assert.False(t, started)
	assert.Equal(t, 1, c.Pending(ka))

	close(release)
	a, b := receive(t, resA), receive(t, resB)
	drain(t, c)

	require.NotNil(t, a.Err)
	assert.Nil(t, a.Data)
	assert.Equal(t, "A failed", a.Err.Message)
	assert.Nil(t, b.Err)
	assert.Equal(t, "B done", b.Data)

	aEnd, _ := markers.Seq("A:end")
	bStart, _ := markers.Seq("B:start")
	assert.Less(t, aEnd, bStart)
}

func TestPublish_DifferentQueuesRunConcurrently(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	echoStarted := make(chan struct{})
	d := dispatchFunc(func(ctx context.Context, task Task, cfg meta.QueueConfig) (any, error) {
		switch task.QueueName {
		case "slow":
			select {
			case <-echoStarted:
				return "overlapped", nil
			case <-time.After(2 * time.Second):
				return nil, errors.New("echo never ran while slow was running")
			}
		default:
			close(echoStarted)
			return "echo", nil
		}
	})
	c := NewClient(newTestRegistry(t), d, WithLogger(discardLogger()))
	slow := collect(c, Key{Module: "a-base", QueueName: "slow", Key: "1"})

	require.NoError(t, c.Publish(Task{Module: "a-base", QueueName: "slow", Key: "1"}))
	require.NoError(t, c.Publish(Task{Module: "a-base", QueueName: "echo", Key: "1"}))

	r := receive(t, slow)
	require.Nil(t, r.Err)
	assert.Equal(t, "overlapped", r.Data)
	drain(t, c)
}

func TestPublish_SameQueueDifferentSubdomainsAreSeparateLanes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	release := make(chan struct{})
	d := dispatchFunc(func(ctx context.Context, task Task, cfg meta.QueueConfig) (any, error) {
		if task.Subdomain == "blocked" {
			<-release
		}
		return task.Subdomain, nil
	})
	c := NewClient(newTestRegistry(t), d, WithLogger(discardLogger()))
	free := collect(c, Key{Subdomain: "free", Module: "a-base", QueueName: "echo", Key: "k"})

	require.NoError(t, c.Publish(Task{Subdomain: "blocked", Module: "a-base", QueueName: "echo", Key: "k"}))
	require.NoError(t, c.Publish(Task{Subdomain: "free", Module: "a-base", QueueName: "echo", Key: "k"}))

	assert.Equal(t, "free", receive(t, free).Data)
	assert.Eventually(t, func() bool { return c.Lanes() == 1 }, 2*time.Second, 5*time.Millisecond,
		"blocked lane should still be held after the free lane drained")
	close(release)
	drain(t, c)
}

func TestPublish_EmptyKeyNeverEmits(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var calls atomic.Int32
	var emitted atomic.Int32
	d := dispatchFunc(func(ctx context.Context, task Task, cfg meta.QueueConfig) (any, error) {
		calls.Add(1)
		return "ok", nil
	})
	c := NewClient(newTestRegistry(t), d, WithLogger(discardLogger()))
	c.Subscribe(Key{Module: "a-base", QueueName: "echo"}, func(Result) { emitted.Add(1) })

	require.NoError(t, c.Publish(Task{Module: "a-base", QueueName: "echo", Data: 1}))
	require.NoError(t, c.Publish(Task{Module: "a-base", QueueName: "echo", Data: 2}))
	drain(t, c)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(0), emitted.Load())
}

func TestPublish_PanickingListenerKeepsLaneRunning(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := dispatchFunc(func(ctx context.Context, task Task, cfg meta.QueueConfig) (any, error) {
		return task.Key, nil
	})
	c := NewClient(newTestRegistry(t), d, WithLogger(discardLogger()))
	c.Subscribe(Key{Module: "a-base", QueueName: "echo", Key: "a"}, func(Result) { panic("listener bug") })
	b := collect(c, Key{Module: "a-base", QueueName: "echo", Key: "b"})

	require.NoError(t, c.Publish(Task{Module: "a-base", QueueName: "echo", Key: "a"}))
	require.NoError(t, c.Publish(Task{Module: "a-base", QueueName: "echo", Key: "b"}))

	r := receive(t, b)
	require.Nil(t, r.Err)
	assert.Equal(t, "b", r.Data)
	drain(t, c)
}

func TestPublish_MissingQueueConfig(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := dispatchFunc(func(ctx context.Context, task Task, cfg meta.QueueConfig) (any, error) {
		t.Error("dispatcher must not run for an unknown queue")
		return nil, nil
	})
	c := NewClient(newTestRegistry(t), d, WithLogger(discardLogger()))
	key := Key{Module: "a-base", QueueName: "nope", Key: "k"}
	res := collect(c, key)

	require.NoError(t, c.Publish(Task{Module: "a-base", QueueName: "nope", Key: "k"}))
	r := receive(t, res)
	drain(t, c)

	require.NotNil(t, r.Err)
	assert.Equal(t, app.KindResolution, r.Err.Kind)
	assert.Equal(t, 404, r.Err.Code)
}

func TestPublish_ErrorsAreNormalized(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := dispatchFunc(func(ctx context.Context, task Task, cfg meta.QueueConfig) (any, error) {
		switch task.Key {
		case "plain":
			return nil, errors.New("network down")
		case "domain":
			return nil, &app.ActionError{Kind: app.KindDomain, Code: 5, Message: "x"}
		default:
			panic("handler bug")
		}
	})
	c := NewClient(newTestRegistry(t), d, WithLogger(discardLogger()))
	base := Key{Module: "a-base", QueueName: "echo"}
	results := make(map[string]<-chan Result)
	for _, k := range []string{"plain", "domain", "panic"} {
		key := base
		key.Key = k
		results[k] = collect(c, key)
		require.NoError(t, c.Publish(Task{Module: "a-base", QueueName: "echo", Key: k}))
	}

	plain := receive(t, results["plain"])
	assert.Equal(t, &app.ActionError{Kind: app.KindTransport, Code: 500, Message: "network down"}, plain.Err)

	domain := receive(t, results["domain"])
	assert.Equal(t, 5, domain.Err.Code)
	assert.Equal(t, "x", domain.Err.Message)

	panicked := receive(t, results["panic"])
	require.NotNil(t, panicked.Err)
	assert.Contains(t, panicked.Err.Message, "handler bug")

	drain(t, c)
}

func TestPublish_StampsIncreasingSeq(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	seqs := make(chan int64, 4)
	d := dispatchFunc(func(ctx context.Context, task Task, cfg meta.QueueConfig) (any, error) {
		seqs <- task.Seq
		return nil, nil
	})
	clock := NewClock()
	c := NewClient(newTestRegistry(t), d, WithLogger(discardLogger()), WithClock(clock))

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Publish(Task{Module: "a-base", QueueName: "echo"}))
	}
	drain(t, c)
	close(seqs)

	var got []int64
	for s := range seqs {
		got = append(got, s)
	}
	assert.Equal(t, []int64{1, 2, 3}, got)
	assert.Equal(t, int64(3), clock.Current())
}

func TestUnsubscribe(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var emitted atomic.Int32
	d := dispatchFunc(func(ctx context.Context, task Task, cfg meta.QueueConfig) (any, error) {
		return "ok", nil
	})
	c := NewClient(newTestRegistry(t), d, WithLogger(discardLogger()))
	key := Key{Module: "a-base", QueueName: "echo", Key: "k"}
	c.Subscribe(key, func(Result) { emitted.Add(1) })
	c.Subscribe(key, func(Result) { emitted.Add(1) })

	require.NoError(t, c.Publish(Task{Module: "a-base", QueueName: "echo", Key: "k"}))
	drain(t, c)
	assert.Equal(t, int32(2), emitted.Load())

	c.Unsubscribe(key)
	require.NoError(t, c.Publish(Task{Module: "a-base", QueueName: "echo", Key: "k"}))
	drain(t, c)
	assert.Equal(t, int32(2), emitted.Load())
}

func TestClose_RefusesPublish(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := dispatchFunc(func(ctx context.Context, task Task, cfg meta.QueueConfig) (any, error) {
		return nil, nil
	})
	c := NewClient(newTestRegistry(t), d, WithLogger(discardLogger()))
	c.Close()
	assert.ErrorIs(t, c.Publish(Task{Module: "a-base", QueueName: "echo"}), ErrClosed)
	assert.Equal(t, 0, c.Lanes())
}

func TestDrain_IdleLanesAreDropped(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	d := dispatchFunc(func(ctx context.Context, task Task, cfg meta.QueueConfig) (any, error) {
		return nil, nil
	})
	c := NewClient(newTestRegistry(t), d, WithLogger(discardLogger()))
	for _, q := range []string{"echo", "slow", "fail"} {
		require.NoError(t, c.Publish(Task{Module: "a-base", QueueName: q}))
	}
	drain(t, c)
	assert.Equal(t, 0, c.Lanes())

	// A drained lane is recreated on the next publish.
	res := collect(c, Key{Module: "a-base", QueueName: "echo", Key: "again"})
	require.NoError(t, c.Publish(Task{Module: "a-base", QueueName: "echo", Key: "again"}))
	assert.Nil(t, receive(t, res).Err)
	drain(t, c)
}

func TestDrain_ContextDone(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	release := make(chan struct{})
	d := dispatchFunc(func(ctx context.Context, task Task, cfg meta.QueueConfig) (any, error) {
		<-release
		return nil, nil
	})
	c := NewClient(newTestRegistry(t), d, WithLogger(discardLogger()))
	require.NoError(t, c.Publish(Task{Module: "a-base", QueueName: "echo"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Drain(ctx), context.DeadlineExceeded)

	close(release)
	drain(t, c)
}
