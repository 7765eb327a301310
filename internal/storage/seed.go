package storage

import (
	"context"
	"fmt"
)

const defaultModelID = "groq"

// defaultCatalog is the built-in model preset list. It is inserted only
// when the catalog is empty and by the explicit reset operation.
var defaultCatalog = []Model{
	{ID: "groq", Emoji: "⚡", Name: "Groq", Description: "Llama 3.3 70B Versatile", Category: "main", Provider: "groq", ModelName: "llama-3.3-70b-versatile", IsEnabled: true, IsDefault: true, Priority: 10},
	{ID: "groq_8b", Emoji: "⚡", Name: "Groq-8B", Description: "Llama 3.1 8B Instant", Category: "main", Provider: "groq", ModelName: "llama-3.1-8b-instant", IsEnabled: true, Priority: 11},
	{ID: "groq_kimi", Emoji: "🌙", Name: "Groq-Kimi", Description: "Kimi K2 Instruct", Category: "main", Provider: "groq", ModelName: "moonshotai/kimi-k2-instruct", IsEnabled: true, Priority: 14},
	{ID: "cerebras", Emoji: "🧠", Name: "Cerebras", Description: "Llama 3.3 70B", Category: "main", Provider: "cerebras", ModelName: "llama-3.3-70b", IsEnabled: true, Priority: 20},
	{ID: "sambanova", Emoji: "🦣", Name: "SambaNova", Description: "Llama 3.3 70B Instruct", Category: "main", Provider: "sambanova", ModelName: "Meta-Llama-3.3-70B-Instruct", IsEnabled: true, Priority: 30},
	{ID: "cloudflare", Emoji: "☁️", Name: "Cloudflare", Description: "Llama 3.3 70B", Category: "main", Provider: "cloudflare", ModelName: "@cf/meta/llama-3.3-70b-instruct-fp8-fast", IsEnabled: true, Priority: 40},
	{ID: "cohere", Emoji: "🔷", Name: "Cohere", Description: "Command R+", Category: "main", Provider: "cohere", ModelName: "command-r-plus-08-2024", IsEnabled: true, Priority: 50},
	{ID: "mistral", Emoji: "Ⓜ️", Name: "Mistral", Description: "Mistral Small", Category: "main", Provider: "mistral", ModelName: "mistral-small-latest", IsEnabled: true, Priority: 60},
	{ID: "together", Emoji: "🤝", Name: "Together", Description: "Llama 3.3 Turbo", Category: "main", Provider: "together", ModelName: "meta-llama/Llama-3.3-70B-Instruct-Turbo", IsEnabled: true, Priority: 70},
	{ID: "huggingface", Emoji: "🤗", Name: "HuggingFace", Description: "Mixtral 8x7B", Category: "main", Provider: "huggingface", ModelName: "mistralai/Mixtral-8x7B-Instruct-v0.1", IsEnabled: true, Priority: 90},
	{ID: "gemini_flash", Emoji: "💎", Name: "Gemini Flash", Description: "2.0 Flash Lite", Category: "gemini", Provider: "gemini", ModelName: "gemini-2.0-flash-lite", IsEnabled: true, Priority: 200},
	{ID: "gemini_pro", Emoji: "💎", Name: "Gemini Pro", Description: "1.5 Pro", Category: "gemini", Provider: "gemini", ModelName: "gemini-1.5-pro", IsEnabled: true, Priority: 202},
	{ID: "or_llama", Emoji: "🦙", Name: "OR-Llama", Description: "Llama 3.3 70B Free", Category: "openrouter", Provider: "openrouter", ModelName: "meta-llama/llama-3.3-70b-instruct:free", IsEnabled: true, Priority: 300},
	{ID: "or_gemini", Emoji: "💎", Name: "OR-Gemini", Description: "Gemini 2.0 Free", Category: "openrouter", Provider: "openrouter", ModelName: "google/gemini-2.0-flash-exp:free", IsEnabled: true, Priority: 301},
	{ID: "or_r1", Emoji: "🧠", Name: "OR-DeepSeek R1", Description: "R1 0528", Category: "openrouter", Provider: "openrouter", ModelName: "deepseek/deepseek-r1-0528:free", IsEnabled: true, Priority: 310},
	{ID: "pf_openai", Emoji: "🆓", Name: "PollFree-OpenAI", Description: "GPT-5 Mini", Category: "pollinations", Provider: "pollinations_free", ModelName: "openai", IsEnabled: true, Priority: 400},
	{ID: "pf_mistral", Emoji: "Ⓜ️", Name: "PollFree-Mistral", Description: "Mistral 3.2", Category: "pollinations", Provider: "pollinations_free", ModelName: "mistral", IsEnabled: true, Priority: 403},
}

func defaultSettings() map[string]string {
	return map[string]string{
		SettingDefaultModel:         defaultModelID,
		SettingSystemPrompt:         "You are a helpful AI assistant.",
		SettingMaxMemoryMessages:    "25",
		SettingMemoryTimeoutMinutes: "30",
		SettingRateLimitAI:          "5",
		SettingRateLimitImg:         "15",
		SettingRateLimitDump:        "10",
	}
}

type SeedOptions struct {
	// AdminPasswordHash is written to the protected setting only when
	// absent, never overwriting an operator-changed password.
	AdminPasswordHash string

	// APIKeys maps provider name -> secret, sourced from the
	// environment. Inserted only when the api_keys table is empty.
	APIKeys map[string]string
}

// Seed populates the store on first run. It never overwrites
// operator-modified data: the catalog is seeded only when empty, settings
// and the password hash only when the key is absent.
func (s *Store) Seed(ctx context.Context, opts SeedOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer tx.Rollback()

	var modelCount int
	sqlStr, args, err := s.sql.Select("COUNT(*)").From("ai_models").ToSql()
	if err != nil {
		return fmt.Errorf("build model count query: %w", err)
	}
	if err := tx.QueryRowContext(ctx, sqlStr, args...).Scan(&modelCount); err != nil {
		return fmt.Errorf("count models: %w", err)
	}
	if modelCount == 0 {
		if err := s.seedCatalogTx(ctx, tx); err != nil {
			return err
		}
	}

	for key, value := range defaultSettings() {
		if err := s.insertSettingIfAbsentTx(ctx, tx, key, value); err != nil {
			return err
		}
	}
	if opts.AdminPasswordHash != "" {
		if err := s.insertSettingIfAbsentTx(ctx, tx, SettingAdminPasswordHash, opts.AdminPasswordHash); err != nil {
			return err
		}
	}

	if len(opts.APIKeys) > 0 {
		var keyCount int
		sqlStr, args, err := s.sql.Select("COUNT(*)").From("api_keys").ToSql()
		if err != nil {
			return fmt.Errorf("build key count query: %w", err)
		}
		if err := tx.QueryRowContext(ctx, sqlStr, args...).Scan(&keyCount); err != nil {
			return fmt.Errorf("count api keys: %w", err)
		}
		if keyCount == 0 {
			for name, value := range opts.APIKeys {
				stored, err := s.box.Seal(value)
				if err != nil {
					return fmt.Errorf("seal seeded key %q: %w", name, err)
				}
				q := s.sql.Insert("api_keys").
					Columns("name", "key_value", "provider").
					Values(name, stored, name).
					Suffix("ON CONFLICT(name) DO NOTHING")
				sqlStr, args, err := q.ToSql()
				if err != nil {
					return fmt.Errorf("build seed key insert: %w", err)
				}
				if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
					return fmt.Errorf("seed api key %q: %w", name, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}

// seedCatalogTx runs under the caller's lock.
func (s *Store) seedCatalogTx(ctx context.Context, tx execer) error {
	for _, m := range defaultCatalog {
		q := s.sql.Insert("ai_models").
			Columns("id", "emoji", "name", "description", "category", "provider", "model_name", "is_enabled", "is_default", "priority").
			Values(m.ID, m.Emoji, m.Name, m.Description, m.Category, m.Provider, m.ModelName, m.IsEnabled, m.IsDefault, m.Priority).
			Suffix("ON CONFLICT(id) DO NOTHING")
		sqlStr, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build catalog seed query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("seed model %q: %w", m.ID, err)
		}
	}
	return nil
}

// insertSettingIfAbsentTx runs under the caller's lock.
func (s *Store) insertSettingIfAbsentTx(ctx context.Context, tx execer, key, value string) error {
	q := s.sql.Insert("settings").
		Columns("key", "value").
		Values(key, value).
		Suffix("ON CONFLICT(key) DO NOTHING")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build seed setting query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("seed setting %q: %w", key, err)
	}
	return nil
}
