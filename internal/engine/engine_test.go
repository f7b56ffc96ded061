package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/celerix-dev/celerix-contacts/pkg/schema"
)

func TestMemStore_GetSetDelete(t *testing.T) {
	ms := NewMemStore(nil, nil)

	personaID := "user-1"
	appID := "contacts"
	key := "c-1"
	val := "test-value"

	if err := ms.Set(personaID, appID, key, val); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := ms.Get(personaID, appID, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != val {
		t.Errorf("Expected %v, got %v", val, got)
	}

	_, err = ms.Get(personaID, appID, "non-existent")
	if err != ErrKeyNotFound {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}
	_, err = ms.Get("nobody", appID, key)
	if err != ErrPersonaNotFound {
		t.Errorf("Expected ErrPersonaNotFound, got %v", err)
	}

	if err := ms.Delete(personaID, appID, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	_, err = ms.Get(personaID, appID, key)
	if err != ErrKeyNotFound {
		t.Errorf("Expected ErrKeyNotFound after delete, got %v", err)
	}
}

func TestMemStore_GetPersonasApps(t *testing.T) {
	ms := NewMemStore(nil, nil)

	ms.Set("p2", "a2", "k2", "v2")
	ms.Set("p1", "a1", "k1", "v1")

	personas, _ := ms.GetPersonas()
	if len(personas) != 2 || personas[0] != "p1" || personas[1] != "p2" {
		t.Errorf("Expected sorted [p1 p2], got %v", personas)
	}

	apps, _ := ms.GetApps("p1")
	if len(apps) != 1 || apps[0] != "a1" {
		t.Errorf("Expected [a1], got %v", apps)
	}
}

func TestMemStore_GetAppStoreReturnsCopy(t *testing.T) {
	ms := NewMemStore(nil, nil)
	ms.Set("p1", "a1", "k1", "v1")

	data, err := ms.GetAppStore("p1", "a1")
	if err != nil {
		t.Fatalf("GetAppStore failed: %v", err)
	}
	data["k1"] = "mutated"

	val, _ := ms.Get("p1", "a1", "k1")
	if val != "v1" {
		t.Errorf("internal map was mutated through the copy: %v", val)
	}

	if _, err := ms.GetAppStore("p1", "missing"); err != ErrAppNotFound {
		t.Errorf("Expected ErrAppNotFound, got %v", err)
	}
}

func TestPersistence(t *testing.T) {
	tmpDir := t.TempDir()

	p, err := NewPersistence(tmpDir, nil)
	if err != nil {
		t.Fatalf("NewPersistence failed: %v", err)
	}

	data := map[string]map[string]any{
		"contacts": {
			"c1": "val1",
		},
	}
	if err := p.SavePersona("user1", data); err != nil {
		t.Fatalf("SavePersona failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "user1.json")); os.IsNotExist(err) {
		t.Fatal("Persona file was not created")
	}

	allData, err := p.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(allData) != 1 {
		t.Errorf("Expected 1 persona, got %d", len(allData))
	}
	if allData["user1"]["contacts"]["c1"] != "val1" {
		t.Errorf("Loaded data mismatch: %v", allData["user1"])
	}
}

func TestPersistence_SkipsCorruptFiles(t *testing.T) {
	tmpDir := t.TempDir()
	p, _ := NewPersistence(tmpDir, nil)

	os.WriteFile(filepath.Join(tmpDir, "broken.json"), []byte("{not json"), 0o600)
	p.SavePersona("ok", map[string]map[string]any{"a": {"k": "v"}})

	allData, err := p.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if _, ok := allData["broken"]; ok {
		t.Error("corrupt persona should be skipped")
	}
	if _, ok := allData["ok"]; !ok {
		t.Error("valid persona should be loaded")
	}
}

func TestMemStore_Persistence(t *testing.T) {
	tmpDir := t.TempDir()

	p, _ := NewPersistence(tmpDir, nil)
	ms := NewMemStore(nil, p)

	if err := ms.Set("p1", "a1", "k1", "v1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	ms.Wait()

	allData, _ := p.LoadAll()
	ms2 := NewMemStore(allData, p)

	val, err := ms2.Get("p1", "a1", "k1")
	if err != nil {
		t.Fatalf("Get on new store failed: %v", err)
	}
	if val != "v1" {
		t.Errorf("Expected v1, got %v", val)
	}
}

func TestMemStore_LastWriteWinsOnDisk(t *testing.T) {
	tmpDir := t.TempDir()
	p, _ := NewPersistence(tmpDir, nil)
	ms := NewMemStore(nil, p)

	for i := 0; i < 50; i++ {
		ms.Set("p1", "a1", "counter", i)
	}
	ms.Wait()

	allData, _ := p.LoadAll()
	if got := allData["p1"]["a1"]["counter"]; got != float64(49) {
		t.Errorf("Expected last value 49 on disk, got %v", got)
	}
}

func TestSQLitePersistence_RoundTrip(t *testing.T) {
	p, err := OpenSQLite(filepath.Join(t.TempDir(), "contacts.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer p.Close()

	ms := NewMemStore(nil, p)
	ms.Set("u1", "contacts", "c1", map[string]any{"name": "Ana"})
	ms.Set("u1", "contacts", "c2", map[string]any{"name": "Beto"})
	ms.Delete("u1", "contacts", "c2")
	ms.Wait()

	allData, err := p.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	app := allData["u1"]["contacts"]
	if len(app) != 1 {
		t.Fatalf("Expected 1 row, got %v", app)
	}
	if app["c1"].(map[string]any)["name"] != "Ana" {
		t.Errorf("Unexpected row: %v", app["c1"])
	}
}

func TestMigrate_FileToSQLite(t *testing.T) {
	src := NewMemStore(nil, nil)
	src.Set("u1", "contacts", "c1", "Ana")
	src.Set("u2", "contacts", "c2", "Beto")
	src.Set(SystemPersona, "users", "ana@x.com", "record")

	p, err := OpenSQLite(filepath.Join(t.TempDir(), "dst.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer p.Close()
	dst := NewMemStore(nil, p)

	n, err := Migrate(src, dst, nil)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 keys copied, got %d", n)
	}
	dst.Wait()

	loaded, _ := p.LoadAll()
	if loaded["u2"]["contacts"]["c2"] != "Beto" {
		t.Errorf("Migrated data mismatch: %v", loaded)
	}
}

func TestMigrate_Filter(t *testing.T) {
	src := NewMemStore(nil, nil)
	src.Set("u1", "contacts", "c1", "Ana")
	src.Set(SystemPersona, "users", "ana@x.com", "record")
	src.Set(SystemPersona, "sessions", "tok", "session")
	dst := NewMemStore(nil, nil)

	n, err := Migrate(src, dst, func(personaID, appID string) bool {
		return personaID != SystemPersona || appID != "sessions"
	})
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 keys copied, got %d", n)
	}
	if _, err := dst.Get(SystemPersona, "sessions", "tok"); err == nil {
		t.Error("Filtered app should not be copied")
	}
	if v, _ := dst.Get(SystemPersona, "users", "ana@x.com"); v != "record" {
		t.Errorf("Expected the users app to be copied, got %v", v)
	}
}

func TestDecode_FromJSONShape(t *testing.T) {
	raw := map[string]any{
		"id":         "c1",
		"user_id":    "u1",
		"name":       "Ana",
		"email":      "a@x.com",
		"created_at": "2024-01-02T03:04:05Z",
	}
	c, err := Decode[schema.Contact](raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if c.Name != "Ana" || !c.CreatedAt.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("Unexpected contact: %+v", c)
	}

	same, err := Decode[schema.Contact](c)
	if err != nil || same != c {
		t.Errorf("Decode of typed value should be identity, got %+v, %v", same, err)
	}
}

func TestMemStore_Concurrent(t *testing.T) {
	ms := NewMemStore(nil, nil)
	const (
		numGoroutines = 10
		numOps        = 100
	)
	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines*numOps)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOps; j++ {
				key := fmt.Sprintf("key-%d-%d", id, j)
				ms.Set("p1", "a1", key, j)
				val, err := ms.Get("p1", "a1", key)
				if err != nil || val != j {
					errs <- fmt.Errorf("expected %d, got %v, err %v", j, val, err)
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestMemStore_DumpApp(t *testing.T) {
	ms := NewMemStore(nil, nil)
	ms.Set("p1", "a1", "k1", "v1")
	ms.Set("p2", "a1", "k1", "v2")
	ms.Set("p1", "a2", "k2", "v3")

	dump, err := ms.DumpApp("a1")
	if err != nil {
		t.Fatalf("DumpApp failed: %v", err)
	}
	if len(dump) != 2 {
		t.Errorf("Expected 2 personas in dump, got %d", len(dump))
	}
	if dump["p1"]["k1"] != "v1" || dump["p2"]["k1"] != "v2" {
		t.Errorf("Dump mismatch: %v", dump)
	}
}

func TestAppScope(t *testing.T) {
	ms := NewMemStore(nil, nil)
	scope := ms.App("p1", "a1")

	all, err := scope.All()
	if err != nil || len(all) != 0 {
		t.Fatalf("Expected empty scope, got %v, %v", all, err)
	}

	scope.Set("k1", "v1")
	val, _ := scope.Get("k1")
	if val != "v1" {
		t.Errorf("Expected v1, got %v", val)
	}
	scope.Delete("k1")
	if _, err := scope.Get("k1"); err != ErrKeyNotFound {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}
}
