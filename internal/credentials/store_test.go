package credentials

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/schoolfees/payment-service/internal/domain"
)

type memoryBackend struct {
	mu        sync.Mutex
	values    map[string]string
	loadCalls int
	saveErr   error
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{values: map[string]string{}}
}

func (b *memoryBackend) LoadSettings(ctx context.Context, keys []string) (map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loadCalls++
	out := map[string]string{}
	for _, key := range keys {
		if v, ok := b.values[key]; ok {
			out[key] = v
		}
	}
	return out, nil
}

func (b *memoryBackend) SaveSettings(ctx context.Context, values map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saveErr != nil {
		return b.saveErr
	}
	for k, v := range values {
		b.values[k] = v
	}
	return nil
}

func (b *memoryBackend) DeleteSettings(ctx context.Context, keys []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, key := range keys {
		delete(b.values, key)
	}
	return nil
}

var testCred = domain.Credential{
	AccessToken:  "access-1",
	RefreshToken: "refresh-1",
	RealmID:      "realm-1",
	CompanyID:    "company-1",
}

func TestStore_LoadAbsentIsNotAnError(t *testing.T) {
	store := NewStore(newMemoryBackend(), nil)

	cred, ok, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ok {
		t.Fatalf("expected absent credential, got %+v", cred)
	}
}

func TestStore_SaveTwiceThenLoadRoundTrips(t *testing.T) {
	backend := newMemoryBackend()
	store := NewStore(backend, nil)
	ctx := context.Background()

	if err := store.Save(ctx, testCred); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if err := store.Save(ctx, testCred); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	cred, ok, err := store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("expected stored credential, ok=%v err=%v", ok, err)
	}
	if cred != testCred {
		t.Fatalf("expected %+v, got %+v", testCred, cred)
	}

	fresh := NewStore(backend, nil)
	reloaded, ok, err := fresh.Load(ctx)
	if err != nil || !ok || reloaded != testCred {
		t.Fatalf("expected persisted credential on fresh store, got %+v ok=%v err=%v", reloaded, ok, err)
	}
}

func TestStore_ClearMakesCredentialAbsent(t *testing.T) {
	backend := newMemoryBackend()
	store := NewStore(backend, nil)
	ctx := context.Background()

	if err := store.Save(ctx, testCred); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	if _, ok, _ := store.Load(ctx); ok {
		t.Fatal("expected credential absent after clear")
	}
	if len(backend.values) != 0 {
		t.Fatalf("expected all keys removed, got %v", backend.values)
	}
}

func TestStore_LoadsBackendOnce(t *testing.T) {
	backend := newMemoryBackend()
	backend.values = map[string]string{
		KeyAccessToken: "a",
		KeyRealmID:     "r",
	}
	store := NewStore(backend, nil)

	for i := 0; i < 5; i++ {
		if _, ok, err := store.Load(context.Background()); err != nil || !ok {
			t.Fatalf("load %d: ok=%v err=%v", i, ok, err)
		}
	}
	if backend.loadCalls != 1 {
		t.Fatalf("expected a single backend read, got %d", backend.loadCalls)
	}

	store.Invalidate()
	if _, _, err := store.Load(context.Background()); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if backend.loadCalls != 2 {
		t.Fatalf("expected reload after invalidate, got %d reads", backend.loadCalls)
	}
}

func TestStore_MissingRealmIsAbsent(t *testing.T) {
	backend := newMemoryBackend()
	backend.values = map[string]string{KeyAccessToken: "a"}
	store := NewStore(backend, nil)

	if _, ok, err := store.Load(context.Background()); err != nil || ok {
		t.Fatalf("expected absent credential without realm, ok=%v err=%v", ok, err)
	}
}

func TestStore_FailedSaveKeepsPreviousCredential(t *testing.T) {
	backend := newMemoryBackend()
	store := NewStore(backend, nil)
	ctx := context.Background()

	if err := store.Save(ctx, testCred); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	backend.saveErr = errors.New("connection reset")

	next := testCred
	next.AccessToken = "access-2"
	if err := store.Save(ctx, next); err == nil {
		t.Fatal("expected save error")
	}

	cred, _, _ := store.Load(ctx)
	if cred != testCred {
		t.Fatalf("expected previous credential retained, got %+v", cred)
	}
}

func TestStore_ConcurrentReadersNeverSeeTornValues(t *testing.T) {
	store := NewStore(newMemoryBackend(), nil)
	ctx := context.Background()

	credA := domain.Credential{AccessToken: "a", RefreshToken: "a", RealmID: "a", CompanyID: "a"}
	credB := domain.Credential{AccessToken: "b", RefreshToken: "b", RealmID: "b", CompanyID: "b"}
	if err := store.Save(ctx, credA); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	torn := make(chan domain.Credential, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			next := credA
			if i%2 == 0 {
				next = credB
			}
			_ = store.Save(ctx, next)
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				cred, _, _ := store.Load(ctx)
				if cred.AccessToken != cred.RefreshToken || cred.AccessToken != cred.RealmID || cred.AccessToken != cred.CompanyID {
					select {
					case torn <- cred:
					default:
					}
					return
				}
			}
		}()
	}

	wg.Wait()
	select {
	case cred := <-torn:
		t.Fatalf("observed torn credential %+v", cred)
	default:
	}
}

func TestStore_SealsTokensAtRest(t *testing.T) {
	backend := newMemoryBackend()
	sealer, err := NewAEADSealer("correct horse battery staple")
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	store := NewStore(backend, sealer)
	ctx := context.Background()

	if err := store.Save(ctx, testCred); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !strings.HasPrefix(backend.values[KeyAccessToken], sealedPrefix) {
		t.Fatalf("expected sealed access token, got %q", backend.values[KeyAccessToken])
	}
	if backend.values[KeyRealmID] != testCred.RealmID {
		t.Fatalf("expected realm stored in clear, got %q", backend.values[KeyRealmID])
	}

	fresh := NewStore(backend, sealer)
	cred, ok, err := fresh.Load(ctx)
	if err != nil || !ok || cred != testCred {
		t.Fatalf("expected unsealed round trip, got %+v ok=%v err=%v", cred, ok, err)
	}

	wrongKey, _ := NewAEADSealer("another key")
	if _, _, err := NewStore(backend, wrongKey).Load(ctx); !errors.Is(err, ErrUnsealable) {
		t.Fatalf("expected ErrUnsealable with wrong key, got %v", err)
	}
}
