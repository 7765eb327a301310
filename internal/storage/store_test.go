package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"

	"botpanel/internal/secrets"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return newTestStoreRetention(t, 500)
}

func newTestStoreRetention(t *testing.T, retention int) *Store {
	t.Helper()
	s, err := Open(context.Background(), Options{
		Driver:       "sqlite",
		DSN:          ":memory:",
		AutoMigrate:  true,
		LogRetention: retention,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddApiKeyDuplicateLeavesRowUnchanged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddApiKey(ctx, "groq", "sk-original", "groq"); err != nil {
		t.Fatalf("add key: %v", err)
	}
	err := s.AddApiKey(ctx, "groq", "sk-other", "groq")
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	keys, err := s.ListApiKeys(ctx)
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected 1 key, got %d", len(keys))
	}
	if keys[0].KeyValue != "sk-original" {
		t.Fatalf("duplicate insert changed the row: %q", keys[0].KeyValue)
	}
}

func TestAddApiKeyValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddApiKey(ctx, "", "sk-x", "groq"); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty name: expected ErrValidation, got %v", err)
	}
	if err := s.AddApiKey(ctx, "groq", "   ", "groq"); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank value: expected ErrValidation, got %v", err)
	}

	// Empty provider falls back to custom.
	if err := s.AddApiKey(ctx, "mystery", "sk-x", ""); err != nil {
		t.Fatalf("add key: %v", err)
	}
	keys, err := s.ListApiKeys(ctx)
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	if keys[0].Provider != "custom" {
		t.Fatalf("provider = %q, want custom", keys[0].Provider)
	}
}

func TestDeactivatedKeyHiddenFromBotView(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddApiKey(ctx, "groq", "sk-live", "groq"); err != nil {
		t.Fatalf("add key: %v", err)
	}
	values, err := s.ActiveKeyValues(ctx)
	if err != nil {
		t.Fatalf("active values: %v", err)
	}
	if values["groq"] != "sk-live" {
		t.Fatalf("active values = %v", values)
	}

	keys, err := s.ListApiKeys(ctx)
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	inactive := false
	if err := s.UpdateApiKey(ctx, keys[0].ID, ApiKeyPatch{IsActive: &inactive}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	values, err = s.ActiveKeyValues(ctx)
	if err != nil {
		t.Fatalf("active values: %v", err)
	}
	if _, ok := values["groq"]; ok {
		t.Fatal("deactivated key still visible to the bot")
	}
	if _, err := s.GetActiveKeyValue(ctx, "groq"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteApiKeyIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddApiKey(ctx, "groq", "sk-live", "groq"); err != nil {
		t.Fatalf("add key: %v", err)
	}
	keys, _ := s.ListApiKeys(ctx)
	if err := s.DeleteApiKey(ctx, keys[0].ID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := s.DeleteApiKey(ctx, keys[0].ID); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestMaskSecret(t *testing.T) {
	if got := MaskSecret("sk-test123456789"); got != "sk-test1...6789" {
		t.Fatalf("long mask = %q", got)
	}
	if got := MaskSecret("short"); got != "****" {
		t.Fatalf("short mask = %q", got)
	}
	if got := MaskSecret("twelve-chars"); got != "****" {
		t.Fatalf("boundary mask = %q", got)
	}
}

func TestRecordTestResultAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddApiKey(ctx, "groq", "sk-live", "groq"); err != nil {
		t.Fatalf("add key: %v", err)
	}

	elapsed := int64(120)
	if err := s.RecordTestResult(ctx, "groq", "success", &elapsed, nil); err != nil {
		t.Fatalf("record test: %v", err)
	}

	keys, _ := s.ListApiKeys(ctx)
	if keys[0].TestStatus == nil || *keys[0].TestStatus != "success" {
		t.Fatalf("test status not set: %+v", keys[0].TestStatus)
	}
	if keys[0].LastTested == nil {
		t.Fatal("last_tested not set")
	}

	logs, err := s.GetTestLogs(ctx, 10)
	if err != nil {
		t.Fatalf("test logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 test log, got %d", len(logs))
	}
	if logs[0].APIName != "groq" || logs[0].Status != "success" {
		t.Fatalf("unexpected log row: %+v", logs[0])
	}
	if logs[0].ResponseTimeMs == nil || *logs[0].ResponseTimeMs != 120 {
		t.Fatalf("response time not recorded: %+v", logs[0].ResponseTimeMs)
	}
}

func TestRecordTestResultConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddApiKey(ctx, "groq", "sk-live", "groq"); err != nil {
		t.Fatalf("add key: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- s.RecordTestResult(ctx, "groq", "success", nil, nil)
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("concurrent record: %v", err)
		}
	}

	logs, err := s.GetTestLogs(ctx, n+1)
	if err != nil {
		t.Fatalf("test logs: %v", err)
	}
	if len(logs) != n {
		t.Fatalf("expected %d test logs, got %d", n, len(logs))
	}
}

func TestAddModelValidationAndDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.AddModel(ctx, Model{Name: "x", Provider: "p", ModelName: "m"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("missing id: expected ErrValidation, got %v", err)
	}

	if err := s.AddModel(ctx, Model{ID: "mini", Name: "Mini", Provider: "p", ModelName: "m"}); err != nil {
		t.Fatalf("add model: %v", err)
	}
	m, err := s.GetModel(ctx, "mini")
	if err != nil {
		t.Fatalf("get model: %v", err)
	}
	if m.Emoji != "🤖" || m.Category != "custom" || m.Priority != 100 {
		t.Fatalf("defaults not applied: %+v", m)
	}

	err = s.AddModel(ctx, Model{ID: "mini", Name: "Other", Provider: "p", ModelName: "m"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestGetModelNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetModel(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetDefaultModelInvariant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.AddModel(ctx, Model{ID: id, Name: id, Provider: "p", ModelName: "m"}); err != nil {
			t.Fatalf("add model %s: %v", id, err)
		}
	}
	if err := s.SetDefaultModel(ctx, "a"); err != nil {
		t.Fatalf("set default a: %v", err)
	}
	if err := s.SetDefaultModel(ctx, "b"); err != nil {
		t.Fatalf("set default b: %v", err)
	}

	models, err := s.GetAllModels(ctx)
	if err != nil {
		t.Fatalf("all models: %v", err)
	}
	defaults := 0
	for _, m := range models {
		if m.IsDefault {
			defaults++
			if m.ID != "b" {
				t.Fatalf("wrong default: %s", m.ID)
			}
		}
	}
	if defaults != 1 {
		t.Fatalf("expected exactly 1 default, got %d", defaults)
	}

	v, err := s.GetSetting(ctx, SettingDefaultModel, "")
	if err != nil {
		t.Fatalf("get setting: %v", err)
	}
	if v != "b" {
		t.Fatalf("default_model setting = %q, want b", v)
	}
}

func TestSetDefaultModelUnknownIDClearsDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddModel(ctx, Model{ID: "a", Name: "a", Provider: "p", ModelName: "m", IsDefault: true}); err != nil {
		t.Fatalf("add model: %v", err)
	}
	if err := s.SetDefaultModel(ctx, "ghost"); err != nil {
		t.Fatalf("set default: %v", err)
	}

	models, _ := s.GetAllModels(ctx)
	for _, m := range models {
		if m.IsDefault {
			t.Fatalf("model %s still flagged default", m.ID)
		}
	}
	v, _ := s.GetSetting(ctx, SettingDefaultModel, "")
	if v != "ghost" {
		t.Fatalf("default_model setting = %q, want ghost", v)
	}
}

func TestResetModelsRestoresPresets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddModel(ctx, Model{ID: "custom1", Name: "Custom", Provider: "p", ModelName: "m"}); err != nil {
		t.Fatalf("add model: %v", err)
	}
	if err := s.ResetModels(ctx); err != nil {
		t.Fatalf("reset models: %v", err)
	}

	if _, err := s.GetModel(ctx, "custom1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("custom model survived reset: %v", err)
	}
	m, err := s.GetModel(ctx, defaultModelID)
	if err != nil {
		t.Fatalf("preset default missing after reset: %v", err)
	}
	if !m.IsDefault {
		t.Fatal("preset default not flagged")
	}
	v, _ := s.GetSetting(ctx, SettingDefaultModel, "")
	if v != defaultModelID {
		t.Fatalf("default_model setting = %q, want %q", v, defaultModelID)
	}
}

func TestGetEnabledModelsDescriptors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddModel(ctx, Model{ID: "on", Emoji: "⚡", Name: "On", Provider: "groq", ModelName: "m1", IsEnabled: true}); err != nil {
		t.Fatalf("add model: %v", err)
	}
	if err := s.AddModel(ctx, Model{ID: "off", Name: "Off", Provider: "groq", ModelName: "m2", IsEnabled: false}); err != nil {
		t.Fatalf("add model: %v", err)
	}

	enabled, err := s.GetEnabledModels(ctx)
	if err != nil {
		t.Fatalf("enabled models: %v", err)
	}
	if len(enabled) != 1 {
		t.Fatalf("expected 1 enabled model, got %d", len(enabled))
	}
	d, ok := enabled["on"]
	if !ok {
		t.Fatalf("enabled map missing id: %v", enabled)
	}
	if d.Emoji != "⚡" || d.Provider != "groq" || d.ModelName != "m1" {
		t.Fatalf("unexpected descriptor: %+v", d)
	}
}

func TestSettingsHashExcludedBothDirections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetSetting(ctx, SettingAdminPasswordHash, "bcrypt-hash"); err != nil {
		t.Fatalf("set hash: %v", err)
	}
	if err := s.SetSettings(ctx, map[string]string{
		"system_prompt":       "hello",
		"admin_password_hash": "attacker-hash",
	}); err != nil {
		t.Fatalf("bulk set: %v", err)
	}

	all, err := s.GetAllSettings(ctx)
	if err != nil {
		t.Fatalf("all settings: %v", err)
	}
	if _, ok := all[SettingAdminPasswordHash]; ok {
		t.Fatal("password hash leaked through bulk read")
	}
	if all["system_prompt"] != "hello" {
		t.Fatalf("bulk write dropped a legitimate key: %v", all)
	}

	hash, err := s.GetSetting(ctx, SettingAdminPasswordHash, "")
	if err != nil {
		t.Fatalf("get hash: %v", err)
	}
	if hash != "bcrypt-hash" {
		t.Fatalf("bulk write reached the hash: %q", hash)
	}
}

func TestLoadSettingsTypedDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	settings, err := s.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if settings.DefaultModel != "groq" || settings.MaxMemoryMessages != 25 || settings.RateLimitImg != 15 {
		t.Fatalf("unexpected defaults: %+v", settings)
	}

	if err := s.SetSettings(ctx, map[string]string{
		SettingMaxMemoryMessages: "50",
		SettingDefaultModel:      "cerebras",
	}); err != nil {
		t.Fatalf("set settings: %v", err)
	}
	settings, err = s.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if settings.MaxMemoryMessages != 50 || settings.DefaultModel != "cerebras" {
		t.Fatalf("typed settings not refreshed: %+v", settings)
	}

	// Unparsable ints fall back to defaults rather than failing the read.
	if err := s.SetSetting(ctx, SettingMaxMemoryMessages, "lots"); err != nil {
		t.Fatalf("set setting: %v", err)
	}
	settings, _ = s.LoadSettings(ctx)
	if settings.MaxMemoryMessages != 25 {
		t.Fatalf("bad int did not fall back: %d", settings.MaxMemoryMessages)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	token, err := s.CreateSession(ctx, time.Hour)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if len(token) < 40 {
		t.Fatalf("token too short for 256-bit entropy: %d chars", len(token))
	}

	ok, err := s.ValidateSession(ctx, token)
	if err != nil || !ok {
		t.Fatalf("fresh session invalid: ok=%v err=%v", ok, err)
	}

	ok, err = s.ValidateSession(ctx, "")
	if err != nil || ok {
		t.Fatalf("empty token validated: ok=%v err=%v", ok, err)
	}
	ok, err = s.ValidateSession(ctx, "unknown-token")
	if err != nil || ok {
		t.Fatalf("unknown token validated: ok=%v err=%v", ok, err)
	}

	if err := s.DeleteSession(ctx, token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if err := s.DeleteSession(ctx, token); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
	ok, _ = s.ValidateSession(ctx, token)
	if ok {
		t.Fatal("deleted session still valid")
	}
}

func TestExpiredSessionRejectedAndPurged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stale := "stale-token"
	if err := s.InsertSessionForTest(ctx, stale, time.Now().UTC().Add(-time.Minute)); err != nil {
		t.Fatalf("insert stale session: %v", err)
	}

	ok, err := s.ValidateSession(ctx, stale)
	if err != nil || ok {
		t.Fatalf("expired session validated: ok=%v err=%v", ok, err)
	}

	// Creating a new session purges expired rows lazily.
	if _, err := s.CreateSession(ctx, time.Hour); err != nil {
		t.Fatalf("create session: %v", err)
	}
	exists, err := s.rowExists(ctx, "sessions", sq.Eq{"token": stale})
	if err != nil {
		t.Fatalf("exists check: %v", err)
	}
	if exists {
		t.Fatal("expired session row not purged")
	}
}

func TestUserModelOverrides(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetUserModel(ctx, "", "m"); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty user: expected ErrValidation, got %v", err)
	}
	if err := s.SetUserModel(ctx, "42", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty model: expected ErrValidation, got %v", err)
	}

	if err := s.SetUserModel(ctx, "42", "groq"); err != nil {
		t.Fatalf("set override: %v", err)
	}
	if err := s.SetUserModel(ctx, "42", "cerebras"); err != nil {
		t.Fatalf("upsert override: %v", err)
	}

	got, err := s.GetUserModel(ctx, "42")
	if err != nil {
		t.Fatalf("get override: %v", err)
	}
	if got != "cerebras" {
		t.Fatalf("override = %q, want cerebras", got)
	}

	all, err := s.GetAllUserModels(ctx)
	if err != nil {
		t.Fatalf("all overrides: %v", err)
	}
	if len(all) != 1 || all["42"] != "cerebras" {
		t.Fatalf("unexpected overrides: %v", all)
	}

	if err := s.DeleteUserModel(ctx, "42"); err != nil {
		t.Fatalf("delete override: %v", err)
	}
	if err := s.DeleteUserModel(ctx, "42"); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
	if _, err := s.GetUserModel(ctx, "42"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestActivityLogRingBuffer(t *testing.T) {
	s := newTestStoreRetention(t, 5)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if err := s.AddActivityLog(ctx, fmt.Sprintf("action_%d", i), "", "127.0.0.1"); err != nil {
			t.Fatalf("add log %d: %v", i, err)
		}
	}

	logs, err := s.GetActivityLogs(ctx, 100)
	if err != nil {
		t.Fatalf("get logs: %v", err)
	}
	if len(logs) != 5 {
		t.Fatalf("retention not applied: %d rows", len(logs))
	}
	if logs[0].Action != "action_7" {
		t.Fatalf("most recent first violated: %q", logs[0].Action)
	}
	if logs[len(logs)-1].Action != "action_3" {
		t.Fatalf("oldest surviving row = %q, want action_3", logs[len(logs)-1].Action)
	}
}

func TestSeedIsIdempotentAndPreservesEdits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	opts := SeedOptions{
		AdminPasswordHash: "hash-1",
		APIKeys:           map[string]string{"groq": "sk-seeded"},
	}
	if err := s.Seed(ctx, opts); err != nil {
		t.Fatalf("first seed: %v", err)
	}

	models, err := s.GetAllModels(ctx)
	if err != nil {
		t.Fatalf("all models: %v", err)
	}
	if len(models) != len(defaultCatalog) {
		t.Fatalf("expected %d seeded models, got %d", len(defaultCatalog), len(models))
	}
	value, err := s.GetActiveKeyValue(ctx, "groq")
	if err != nil || value != "sk-seeded" {
		t.Fatalf("seeded key missing: %q %v", value, err)
	}

	// Operator edits must survive a second seed on restart.
	if err := s.SetSetting(ctx, SettingAdminPasswordHash, "hash-2"); err != nil {
		t.Fatalf("change hash: %v", err)
	}
	if err := s.DeleteModel(ctx, "cohere"); err != nil {
		t.Fatalf("delete model: %v", err)
	}
	opts.AdminPasswordHash = "hash-3"
	if err := s.Seed(ctx, opts); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	hash, _ := s.GetSetting(ctx, SettingAdminPasswordHash, "")
	if hash != "hash-2" {
		t.Fatalf("re-seed overwrote the password hash: %q", hash)
	}
	if _, err := s.GetModel(ctx, "cohere"); !errors.Is(err, ErrNotFound) {
		t.Fatal("re-seed resurrected a deleted model")
	}
}

func TestEncryptedAtRestRoundTrip(t *testing.T) {
	box, err := secrets.New(make([]byte, 32))
	if err != nil {
		t.Fatalf("new box: %v", err)
	}

	s, err := Open(context.Background(), Options{
		Driver:      "sqlite",
		DSN:         ":memory:",
		AutoMigrate: true,
		Box:         box,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	if err := s.AddApiKey(ctx, "groq", "sk-plain", "groq"); err != nil {
		t.Fatalf("add key: %v", err)
	}

	// The stored column must not contain the plaintext.
	var stored string
	row := s.db.QueryRowContext(ctx, "SELECT key_value FROM api_keys WHERE name = ?", "groq")
	if err := row.Scan(&stored); err != nil {
		t.Fatalf("read raw column: %v", err)
	}
	if stored == "sk-plain" {
		t.Fatal("key stored in plaintext despite box")
	}

	value, err := s.GetActiveKeyValue(ctx, "groq")
	if err != nil {
		t.Fatalf("get value: %v", err)
	}
	if value != "sk-plain" {
		t.Fatalf("decrypted value = %q", value)
	}
}
