package workspace

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeStore counts namespace operations and can be made to fail.
type fakeStore struct {
	mu      sync.Mutex
	created map[string]int
	deleted map[string]int
	failErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		created: make(map[string]int),
		deleted: make(map[string]int),
	}
}

func (f *fakeStore) CreateNamespace(ctx context.Context, namespace string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.created[namespace]++
	return nil
}

func (f *fakeStore) DeleteNamespace(ctx context.Context, namespace string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.deleted[namespace]++
	return nil
}

func (f *fakeStore) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failErr = err
}

func (f *fakeStore) createCount(namespace string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[namespace]
}

func (f *fakeStore) deleteCount(namespace string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleted[namespace]
}

func TestRegistry_GetOrCreate(t *testing.T) {
	ctx := context.Background()
	vector, graph := newFakeStore(), newFakeStore()
	reg := NewRegistry(vector, graph, nil)

	ws, err := reg.GetOrCreate(ctx, "/home/user/myrepo")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	if ws.RootPath != "/home/user/myrepo" {
		t.Errorf("RootPath = %q", ws.RootPath)
	}
	if got := vector.createCount(ws.VectorNamespace); got != 1 {
		t.Errorf("vector namespace created %d times, want 1", got)
	}
	if got := graph.createCount(ws.GraphNamespace); got != 1 {
		t.Errorf("graph namespace created %d times, want 1", got)
	}

	// Second call returns the same workspace without re-provisioning
	again, err := reg.GetOrCreate(ctx, "/home/user/myrepo")
	if err != nil {
		t.Fatalf("GetOrCreate() second call error = %v", err)
	}
	if again.ID != ws.ID {
		t.Errorf("second call ID = %q, want %q", again.ID, ws.ID)
	}
	if got := vector.createCount(ws.VectorNamespace); got != 1 {
		t.Errorf("vector namespace created %d times after second call, want 1", got)
	}
}

func TestRegistry_GetOrCreate_NormalizesRoot(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(newFakeStore(), newFakeStore(), nil)

	a, err := reg.GetOrCreate(ctx, "/home/user/myrepo/")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	b, err := reg.GetOrCreate(ctx, "/home/user/other/../myrepo")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	if a.ID != b.ID {
		t.Errorf("equivalent roots got different workspaces: %q vs %q", a.ID, b.ID)
	}
	if got := len(reg.List()); got != 1 {
		t.Errorf("List() has %d workspaces, want 1", got)
	}
}

func TestRegistry_GetOrCreate_EmptyRoot(t *testing.T) {
	reg := NewRegistry(newFakeStore(), newFakeStore(), nil)

	if _, err := reg.GetOrCreate(context.Background(), ""); !errors.Is(err, ErrEmptyRootPath) {
		t.Errorf("error = %v, want ErrEmptyRootPath", err)
	}
}

func TestRegistry_GetOrCreate_Concurrent(t *testing.T) {
	ctx := context.Background()
	vector, graph := newFakeStore(), newFakeStore()
	reg := NewRegistry(vector, graph, nil)

	const callers = 10
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ws, err := reg.GetOrCreate(ctx, "/home/user/shared")
			if err != nil {
				t.Errorf("GetOrCreate() error = %v", err)
				return
			}
			ids[i] = ws.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got ID %q, caller 0 got %q", i, ids[i], ids[0])
		}
	}

	ws, err := reg.Get(ids[0])
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := vector.createCount(ws.VectorNamespace); got != 1 {
		t.Errorf("vector namespace provisioned %d times, want 1", got)
	}
	if got := graph.createCount(ws.GraphNamespace); got != 1 {
		t.Errorf("graph namespace provisioned %d times, want 1", got)
	}
}

func TestRegistry_GetOrCreate_ProvisionFailure(t *testing.T) {
	ctx := context.Background()
	vector, graph := newFakeStore(), newFakeStore()
	reg := NewRegistry(vector, graph, nil)

	boom := errors.New("backend down")
	graph.fail(boom)

	_, err := reg.GetOrCreate(ctx, "/home/user/myrepo")
	if !errors.Is(err, ErrProvisionFailed) {
		t.Fatalf("error = %v, want ErrProvisionFailed", err)
	}

	// The failed workspace is not registered
	if got := len(reg.List()); got != 0 {
		t.Errorf("List() has %d workspaces after failed provision, want 0", got)
	}

	// Retry succeeds once the store recovers; creates are idempotent
	graph.fail(nil)
	ws, err := reg.GetOrCreate(ctx, "/home/user/myrepo")
	if err != nil {
		t.Fatalf("GetOrCreate() retry error = %v", err)
	}
	if got := graph.createCount(ws.GraphNamespace); got != 1 {
		t.Errorf("graph namespace created %d times, want 1", got)
	}
}

func TestRegistry_Get_Unknown(t *testing.T) {
	reg := NewRegistry(newFakeStore(), newFakeStore(), nil)

	if _, err := reg.Get("ws_ghost_00000000"); !errors.Is(err, ErrWorkspaceNotFound) {
		t.Errorf("error = %v, want ErrWorkspaceNotFound", err)
	}
}

func TestRegistry_Get_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(newFakeStore(), newFakeStore(), nil)

	ws, err := reg.GetOrCreate(ctx, "/home/user/myrepo")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	ws.RootPath = "/mutated"

	fresh, err := reg.Get(ws.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if fresh.RootPath != "/home/user/myrepo" {
		t.Errorf("registry state mutated through returned pointer: %q", fresh.RootPath)
	}
}

func TestRegistry_Touch(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(newFakeStore(), newFakeStore(), nil)

	ws, err := reg.GetOrCreate(ctx, "/home/user/myrepo")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	before := ws.LastActivityAt

	time.Sleep(5 * time.Millisecond)
	reg.Touch(ws.ID)

	after, err := reg.Get(ws.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !after.LastActivityAt.After(before) {
		t.Errorf("LastActivityAt did not advance: %v -> %v", before, after.LastActivityAt)
	}

	// Touching an evicted or unknown workspace is a silent no-op
	reg.Touch("ws_ghost_00000000")
}

func TestRegistry_List(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(newFakeStore(), newFakeStore(), nil)

	if _, err := reg.GetOrCreate(ctx, "/home/user/alpha"); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if _, err := reg.GetOrCreate(ctx, "/home/user/beta"); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	list := reg.List()
	if len(list) != 2 {
		t.Fatalf("List() has %d workspaces, want 2", len(list))
	}
	if list[0].ID > list[1].ID {
		t.Errorf("List() not ordered by ID: %q > %q", list[0].ID, list[1].ID)
	}
}

func TestRegistry_Evict(t *testing.T) {
	ctx := context.Background()
	vector, graph := newFakeStore(), newFakeStore()
	reg := NewRegistry(vector, graph, nil)

	ws, err := reg.GetOrCreate(ctx, "/home/user/myrepo")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	if err := reg.Evict(ctx, ws.ID); err != nil {
		t.Fatalf("Evict() error = %v", err)
	}

	if got := vector.deleteCount(ws.VectorNamespace); got != 1 {
		t.Errorf("vector namespace deleted %d times, want 1", got)
	}
	if got := graph.deleteCount(ws.GraphNamespace); got != 1 {
		t.Errorf("graph namespace deleted %d times, want 1", got)
	}

	if _, err := reg.Get(ws.ID); !errors.Is(err, ErrWorkspaceNotFound) {
		t.Errorf("Get() after evict error = %v, want ErrWorkspaceNotFound", err)
	}

	if err := reg.Evict(ctx, ws.ID); !errors.Is(err, ErrWorkspaceNotFound) {
		t.Errorf("second Evict() error = %v, want ErrWorkspaceNotFound", err)
	}

	// The root can be registered again from scratch
	again, err := reg.GetOrCreate(ctx, "/home/user/myrepo")
	if err != nil {
		t.Fatalf("GetOrCreate() after evict error = %v", err)
	}
	if got := vector.createCount(again.VectorNamespace); got != 2 {
		t.Errorf("vector namespace created %d times across re-registration, want 2", got)
	}
}

func TestRegistry_Evict_StoreFailureKeepsWorkspace(t *testing.T) {
	ctx := context.Background()
	vector, graph := newFakeStore(), newFakeStore()
	reg := NewRegistry(vector, graph, nil)

	ws, err := reg.GetOrCreate(ctx, "/home/user/myrepo")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	boom := errors.New("backend down")
	graph.fail(boom)

	if err := reg.Evict(ctx, ws.ID); !errors.Is(err, boom) {
		t.Fatalf("Evict() error = %v, want wrapped backend error", err)
	}

	// Still registered, so the eviction can be retried
	if _, err := reg.Get(ws.ID); err != nil {
		t.Errorf("Get() after failed evict error = %v", err)
	}

	graph.fail(nil)
	if err := reg.Evict(ctx, ws.ID); err != nil {
		t.Fatalf("Evict() retry error = %v", err)
	}
	if _, err := reg.Get(ws.ID); !errors.Is(err, ErrWorkspaceNotFound) {
		t.Errorf("Get() after retried evict error = %v, want ErrWorkspaceNotFound", err)
	}
}
