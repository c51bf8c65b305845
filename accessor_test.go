package rescache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	c "github.com/unkn0wn-root/rescache/codec"
	"github.com/unkn0wn-root/rescache/store"
	"github.com/unkn0wn-root/rescache/store/memory"
)

type user struct {
	ID   int64  `msgpack:"id"`
	Name string `msgpack:"name"`
}

func newAccessor[V any](t *testing.T, m *Manager, opts AccessorOptions[V]) *Accessor[V] {
	t.Helper()
	a, err := NewAccessor[V](m, opts)
	if err != nil {
		t.Fatalf("NewAccessor: %v", err)
	}
	return a
}

func TestNewAccessorValidation(t *testing.T) {
	if _, err := NewAccessor[string](nil, AccessorOptions[string]{}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("nil manager: got %v", err)
	}
	m := newTestManager(t, newFakeDialer(), nil)
	if _, err := NewAccessor[withChan](m, AccessorOptions[withChan]{}); !errors.Is(err, ErrSerializationNotSupported) {
		t.Fatalf("chan field: got %v", err)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	d := newFakeDialer()
	m := newTestManager(t, d, nil)
	users := newAccessor(t, m, AccessorOptions[user]{Namespace: "user"})
	ctx := context.Background()

	ok, err := users.Set(ctx, "1", user{ID: 1, Name: "Ada"}, time.Minute)
	if err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	if _, found := d.raw("user:1"); !found {
		t.Fatalf("value not stored under namespaced key")
	}

	got, err := users.Get(ctx, "1", store.FlagNone)
	if err != nil || got != (user{ID: 1, Name: "Ada"}) {
		t.Fatalf("Get: %+v err=%v", got, err)
	}
	_, found, err := users.TryGet(ctx, "2", store.FlagNone)
	if err != nil || found {
		t.Fatalf("TryGet miss: found=%v err=%v", found, err)
	}
}

func TestBlankKeysRejectedBeforeStore(t *testing.T) {
	d := newFakeDialer()
	m := newTestManager(t, d, nil)
	a := newAccessor(t, m, AccessorOptions[string]{Codec: c.String{}})
	ctx := context.Background()

	for _, k := range []string{"", " ", "\t"} {
		if _, err := a.Get(ctx, k, store.FlagNone); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("Get(%q): %v", k, err)
		}
		if _, err := a.Set(ctx, k, "v", 0); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("Set(%q): %v", k, err)
		}
		if _, err := a.GetOrCreate(ctx, k, func(context.Context) (string, error) { return "v", nil }, store.FlagNone, 0); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("GetOrCreate(%q): %v", k, err)
		}
		if _, err := a.GetAsync(ctx, k, store.FlagNone); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("GetAsync(%q): %v", k, err)
		}
		if _, err := a.Delete(ctx, k); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("Delete(%q): %v", k, err)
		}
	}
	if d.gets.Load() != 0 {
		t.Fatalf("store touched %d times", d.gets.Load())
	}
}

func TestSetSkipsAbsentValues(t *testing.T) {
	d := newFakeDialer()
	m := newTestManager(t, d, nil)
	a := newAccessor(t, m, AccessorOptions[*user]{})

	ok, err := a.Set(context.Background(), "k", nil, 0)
	if err != nil || ok {
		t.Fatalf("nil value: ok=%v err=%v", ok, err)
	}
	if _, found := d.raw("k"); found {
		t.Fatalf("nil value was written")
	}
}

func TestSetTTLDefaults(t *testing.T) {
	d := newFakeDialer()
	m := newTestManager(t, d, nil)
	a := newAccessor(t, m, AccessorOptions[string]{Codec: c.String{}, DefaultTTL: time.Hour})
	ctx := context.Background()

	a.Set(ctx, "default", "v", 0)
	a.Set(ctx, "explicit", "v", time.Second)
	a.Set(ctx, "forever", "v", NoExpiry)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ttls["default"] != time.Hour || d.ttls["explicit"] != time.Second || d.ttls["forever"] >= 0 {
		t.Fatalf("ttls = %v", d.ttls)
	}
}

func TestSetRejectedReportedToHooks(t *testing.T) {
	d := newFakeDialer()
	h := &recHooks{}
	m := newTestManager(t, d, h)
	a := newAccessor(t, m, AccessorOptions[string]{Codec: c.String{}})
	d.reject.Store(true)

	ok, err := a.Set(context.Background(), "k", "v", 0)
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.rejected) != 1 || h.rejected[0] != "k" {
		t.Fatalf("rejected = %v", h.rejected)
	}
}

func TestDegradesWhileStoreUnreachable(t *testing.T) {
	d := newFakeDialer()
	m := newTestManager(t, d, nil)
	a := newAccessor(t, m, AccessorOptions[int]{})
	ctx := context.Background()
	if _, err := a.Set(ctx, "n", 5, 0); err != nil {
		t.Fatal(err)
	}

	d.failing.Store(true)
	d.conn(0).fail()

	v, err := a.Get(ctx, "n", store.FlagNone)
	if err != nil || v != 0 {
		t.Fatalf("Get while down: v=%d err=%v", v, err)
	}
	ok, err := a.Set(ctx, "n", 6, 0)
	if err != nil || ok {
		t.Fatalf("Set while down: ok=%v err=%v", ok, err)
	}

	d.failing.Store(false)
	v, err = a.Get(ctx, "n", store.FlagNone)
	if err != nil || v != 5 {
		t.Fatalf("Get after recovery: v=%d err=%v", v, err)
	}
}

func TestDegradesWhileStoreDownAtStartup(t *testing.T) {
	d := newFakeDialer()
	d.down.Store(true)
	m, err := New(context.Background(), Options{ConnectionString: "fake:0", Dialer: d, RetryInterval: time.Hour})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a := newAccessor(t, m, AccessorOptions[string]{Codec: c.String{}})
	ctx := context.Background()

	v, err := a.Get(ctx, "k", store.FlagNone)
	if err != nil || v != "" {
		t.Fatalf("Get while down: v=%q err=%v", v, err)
	}
	ok, err := a.Set(ctx, "k", "v", 0)
	if err != nil || ok {
		t.Fatalf("Set while down: ok=%v err=%v", ok, err)
	}
	if d.gets.Load() != 0 || d.opens.Load() != 1 {
		t.Fatalf("gets=%d opens=%d", d.gets.Load(), d.opens.Load())
	}

	d.conn(0).restore()
	if ok, err := a.Set(ctx, "k", "v", 0); err != nil || !ok {
		t.Fatalf("Set after recovery: ok=%v err=%v", ok, err)
	}
	if v, err := a.Get(ctx, "k", store.FlagNone); err != nil || v != "v" {
		t.Fatalf("Get after recovery: v=%q err=%v", v, err)
	}
}

func TestConnectionClosedMidOperationIsAMiss(t *testing.T) {
	d := newFakeDialer()
	m := newTestManager(t, d, nil)
	a := newAccessor(t, m, AccessorOptions[string]{Codec: c.String{}})
	ctx := context.Background()
	if ok, err := a.Set(ctx, "k", "v", 0); err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}

	// another caller swaps the connection after ours was handed out
	d.before = func() { _ = d.conn(int(d.opens.Load()) - 1).Close() }
	if v, found, err := a.TryGet(ctx, "k", store.FlagNone); err != nil || found || v != "" {
		t.Fatalf("TryGet: v=%q found=%v err=%v", v, found, err)
	}
	if ok, err := a.Set(ctx, "k", "w", 0); err != nil || ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	if ok, err := a.Delete(ctx, "k"); err != nil || ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}
	d.before = nil

	if v, err := a.Get(ctx, "k", store.FlagNone); err != nil || v != "v" {
		t.Fatalf("Get: v=%q err=%v", v, err)
	}
}

func TestFlagsReachTheStore(t *testing.T) {
	d := newFakeDialer()
	m := newTestManager(t, d, nil)
	a := newAccessor(t, m, AccessorOptions[string]{Codec: c.String{}})

	a.Get(context.Background(), "k", store.FlagPreferReplica)
	a.Get(context.Background(), "k", store.FlagDemandMaster)

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.flags) != 2 || d.flags[0] != store.FlagPreferReplica || d.flags[1] != store.FlagDemandMaster {
		t.Fatalf("flags = %v", d.flags)
	}
}

func TestGetOrCreate(t *testing.T) {
	d := newFakeDialer()
	h := &recHooks{}
	m := newTestManager(t, d, h)
	a := newAccessor(t, m, AccessorOptions[user]{Namespace: "user"})
	ctx := context.Background()

	var calls atomic.Int32
	factory := func(context.Context) (user, error) {
		calls.Add(1)
		return user{ID: 7, Name: "Grace"}, nil
	}

	v, err := a.GetOrCreate(ctx, "7", factory, store.FlagNone, time.Minute)
	if err != nil || v.Name != "Grace" {
		t.Fatalf("first: %+v err=%v", v, err)
	}
	v, err = a.GetOrCreate(ctx, "7", factory, store.FlagNone, time.Minute)
	if err != nil || v.Name != "Grace" {
		t.Fatalf("second: %+v err=%v", v, err)
	}
	if calls.Load() != 1 {
		t.Fatalf("factory calls = %d, want 1", calls.Load())
	}
	if got, _ := a.Get(ctx, "7", store.FlagNone); got.ID != 7 {
		t.Fatalf("value not persisted: %+v", got)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.factories) != 1 || h.factories[0] != "user:7" {
		t.Fatalf("factory hooks = %v", h.factories)
	}
}

func TestGetOrCreateStoredZeroIsAHit(t *testing.T) {
	m := newTestManager(t, newFakeDialer(), nil)
	a := newAccessor(t, m, AccessorOptions[int]{})
	ctx := context.Background()
	a.Set(ctx, "zero", 0, 0)

	v, err := a.GetOrCreate(ctx, "zero", func(context.Context) (int, error) {
		t.Fatalf("factory must not run on a hit")
		return 1, nil
	}, store.FlagNone, 0)
	if err != nil || v != 0 {
		t.Fatalf("v=%d err=%v", v, err)
	}
}

func TestGetOrCreateNilFactoryAndErrors(t *testing.T) {
	d := newFakeDialer()
	m := newTestManager(t, d, nil)
	a := newAccessor(t, m, AccessorOptions[string]{Codec: c.String{}})
	ctx := context.Background()

	v, err := a.GetOrCreate(ctx, "k", nil, store.FlagNone, 0)
	if err != nil || v != "" {
		t.Fatalf("nil factory: v=%q err=%v", v, err)
	}

	boom := errors.New("boom")
	_, err = a.GetOrCreate(ctx, "k", func(context.Context) (string, error) { return "", boom }, store.FlagNone, 0)
	if !errors.Is(err, boom) {
		t.Fatalf("factory error: got %v", err)
	}
	if _, found := d.raw("k"); found {
		t.Fatalf("failed factory stored a value")
	}
}

func TestGetOrCreateSingleFlight(t *testing.T) {
	m := newTestManager(t, newFakeDialer(), nil)
	a := newAccessor(t, m, AccessorOptions[string]{Codec: c.String{}})
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	factory := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "computed", nil
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := a.GetOrCreate(ctx, "hot", factory, store.FlagNone, 0)
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
			}
			results[i] = v
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("factory calls = %d, want 1", calls.Load())
	}
	for i, r := range results {
		if r != "computed" {
			t.Fatalf("caller %d got %q", i, r)
		}
	}
}

func TestGetOrCreateCallerCancelLeavesSharedCallRunning(t *testing.T) {
	m := newTestManager(t, newFakeDialer(), nil)
	a := newAccessor(t, m, AccessorOptions[string]{Codec: c.String{}})

	var calls atomic.Int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	seen := make(chan error, 1)
	factory := func(ctx context.Context) (string, error) {
		calls.Add(1)
		started <- struct{}{}
		<-release
		seen <- ctx.Err()
		return "computed", nil
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := a.GetOrCreate(ctxA, "hot", factory, store.FlagNone, 0)
		errA <- err
	}()
	<-started

	resB := make(chan string, 1)
	go func() {
		v, err := a.GetOrCreate(context.Background(), "hot", factory, store.FlagNone, 0)
		if err != nil {
			t.Errorf("second caller: %v", err)
		}
		resB <- v
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("first caller: want context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("first caller kept waiting after cancel")
	}

	close(release)
	select {
	case v := <-resB:
		if v != "computed" {
			t.Fatalf("second caller got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("second caller never returned")
	}
	if err := <-seen; err != nil {
		t.Fatalf("factory saw cancelled ctx: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("factory calls = %d, want 1", calls.Load())
	}
	if v, err := a.Get(context.Background(), "hot", store.FlagNone); err != nil || v != "computed" {
		t.Fatalf("computed value not stored: v=%q err=%v", v, err)
	}
}

func TestGetOrCreateWithoutSingleFlight(t *testing.T) {
	m := newTestManager(t, newFakeDialer(), nil)
	a := newAccessor(t, m, AccessorOptions[string]{Codec: c.String{}, DisableSingleFlight: true})

	v, err := a.GetOrCreate(context.Background(), "k", func(context.Context) (string, error) { return "v", nil }, store.FlagNone, 0)
	if err != nil || v != "v" {
		t.Fatalf("v=%q err=%v", v, err)
	}
	if got, _ := a.Get(context.Background(), "k", store.FlagNone); got != "v" {
		t.Fatalf("not persisted: %q", got)
	}
}

func TestCorruptEntryIsHealed(t *testing.T) {
	d := newFakeDialer()
	h := &recHooks{}
	m := newTestManager(t, d, h)
	a := newAccessor(t, m, AccessorOptions[user]{Namespace: "user"})
	d.put("user:1", []byte("garbage"))

	v, found, err := a.TryGet(context.Background(), "1", store.FlagNone)
	if err != nil || found || v != (user{}) {
		t.Fatalf("v=%+v found=%v err=%v", v, found, err)
	}
	if _, ok := d.raw("user:1"); ok {
		t.Fatalf("corrupt entry was not deleted")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.heals) != 1 || h.heals[0] != "user:1|corrupt" {
		t.Fatalf("heals = %v", h.heals)
	}
}

func TestForeignCodecEntryIsKept(t *testing.T) {
	d := newFakeDialer()
	h := &recHooks{}
	m := newTestManager(t, d, h)
	asJSON := newAccessor(t, m, AccessorOptions[string]{Codec: c.JSON[string]{}})
	asRaw := newAccessor(t, m, AccessorOptions[string]{Codec: c.String{}})
	ctx := context.Background()

	asJSON.Set(ctx, "k", "v", 0)
	_, found, err := asRaw.TryGet(ctx, "k", store.FlagNone)
	if err != nil || found {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if _, ok := d.raw("k"); !ok {
		t.Fatalf("entry written by another codec was deleted")
	}
	if got, _ := asJSON.Get(ctx, "k", store.FlagNone); got != "v" {
		t.Fatalf("owner read %q", got)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.heals) != 1 || !strings.HasSuffix(h.heals[0], "|codec_mismatch") {
		t.Fatalf("heals = %v", h.heals)
	}
}

func TestGetAsync(t *testing.T) {
	m := newTestManager(t, newFakeDialer(), nil)
	a := newAccessor(t, m, AccessorOptions[string]{Codec: c.String{}})
	ctx := context.Background()
	a.Set(ctx, "k", "v", 0)

	f, err := a.GetAsync(ctx, "k", store.FlagNone)
	if err != nil {
		t.Fatal(err)
	}
	v, err := f.Await(ctx)
	if err != nil || v != "v" {
		t.Fatalf("v=%q err=%v", v, err)
	}
	select {
	case <-f.Done():
	default:
		t.Fatalf("Done not closed after Await")
	}
}

func TestDelete(t *testing.T) {
	m := newTestManager(t, newFakeDialer(), nil)
	a := newAccessor(t, m, AccessorOptions[string]{Codec: c.String{}})
	ctx := context.Background()
	a.Set(ctx, "k", "v", 0)

	if ok, err := a.Delete(ctx, "k"); err != nil || !ok {
		t.Fatalf("first delete: ok=%v err=%v", ok, err)
	}
	if ok, err := a.Delete(ctx, "k"); err != nil || ok {
		t.Fatalf("second delete: ok=%v err=%v", ok, err)
	}
}

func TestAccessorOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	m, err := New(context.Background(), Options{ConnectionString: mr.Addr() + ",connectRetry=0"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	if m.State() != StateConnected {
		t.Fatalf("state = %v", m.State())
	}

	a := newAccessor(t, m, AccessorOptions[user]{Namespace: "user", DefaultTTL: time.Minute})
	ctx := context.Background()
	if ok, err := a.Set(ctx, "1", user{ID: 1, Name: "Ada"}, 0); err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	if ttl := mr.TTL("user:1"); ttl != time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}
	got, err := a.Get(ctx, "1", store.FlagPreferReplica)
	if err != nil || got.Name != "Ada" {
		t.Fatalf("Get: %+v err=%v", got, err)
	}

	mr.FastForward(2 * time.Minute)
	if _, found, _ := a.TryGet(ctx, "1", store.FlagNone); found {
		t.Fatalf("entry survived its TTL")
	}
}

func TestAccessorWhileRedisDownAtStartup(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	m, err := New(context.Background(), Options{
		ConnectionString: addr + ",abortConnect=false,connectRetry=0,connectTimeout=200,configChannel=",
		RetryInterval:    time.Minute,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	a := newAccessor(t, m, AccessorOptions[string]{Codec: c.String{}})
	ctx := context.Background()
	v, err := a.Get(ctx, "k", store.FlagNone)
	if err != nil || v != "" {
		t.Fatalf("Get while down: v=%q err=%v", v, err)
	}
	if ok, err := a.Set(ctx, "k", "v", 0); err != nil || ok {
		t.Fatalf("Set while down: ok=%v err=%v", ok, err)
	}
	if s := m.Stats(); s.State != StateFailed || s.Reconnects != 0 {
		t.Fatalf("stats = %+v", s)
	}

	if err := mr.Restart(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for m.State() != StateConnected {
		if time.Now().After(deadline) {
			t.Fatalf("connection never recovered: %+v", m.Stats())
		}
		time.Sleep(20 * time.Millisecond)
	}
	if ok, err := a.Set(ctx, "k", "v", 0); err != nil || !ok {
		t.Fatalf("Set after recovery: ok=%v err=%v", ok, err)
	}
	if v, err := a.Get(ctx, "k", store.FlagNone); err != nil || v != "v" {
		t.Fatalf("Get after recovery: v=%q err=%v", v, err)
	}
	if s := m.Stats(); s.Reconnects != 0 {
		t.Fatalf("recovered connection was replaced: %+v", s)
	}
}

func TestAccessorOverMemoryStore(t *testing.T) {
	d, err := memory.New(memory.Config{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(d.Close)
	m, err := New(context.Background(), Options{ConnectionString: memory.Scheme + "test", Dialer: d})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a := newAccessor(t, m, AccessorOptions[[]string]{})
	ctx := context.Background()

	v, err := a.GetOrCreate(ctx, "tags", func(context.Context) ([]string, error) {
		return []string{"a", "b"}, nil
	}, store.FlagNone, 0)
	if err != nil || len(v) != 2 {
		t.Fatalf("v=%v err=%v", v, err)
	}
	got, err := a.Get(ctx, "tags", store.FlagNone)
	if err != nil || len(got) != 2 || got[1] != "b" {
		t.Fatalf("Get: %v err=%v", got, err)
	}
}
