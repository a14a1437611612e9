package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// DeleteAllData wipes every table. Used by the admin reset endpoint only;
// there is no undo.
func (s *Store) DeleteAllData(ctx context.Context) error {
	tables := []string{
		"performance_exchanges",
		"messages",
		"conversations",
		"prompt_component_overrides",
		"prompt_profiles",
		"prompt_context_settings",
	}
	for _, table := range tables {
		sqlStr, args, err := s.sql.Delete(table).ToSql()
		if err != nil {
			return fmt.Errorf("build delete %s query: %w", table, err)
		}
		if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}

// Export returns a full snapshot of the tenant's data for the admin export
// endpoint.
func (s *Store) Export(ctx context.Context, tenantID string) (ExportSnapshot, error) {
	snapshot := ExportSnapshot{
		TenantID:   tenantID,
		ExportedAt: time.Now().UTC(),
	}

	convQ := s.sql.Select("id", "title", "created_at", "updated_at").
		From("conversations").OrderBy("created_at ASC")
	sqlStr, args, err := convQ.ToSql()
	if err != nil {
		return ExportSnapshot{}, fmt.Errorf("build export conversations query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return ExportSnapshot{}, fmt.Errorf("export conversations: %w", err)
	}
	snapshot.Conversations = make([]ExportConversation, 0)
	for rows.Next() {
		var c ExportConversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			rows.Close()
			return ExportSnapshot{}, fmt.Errorf("scan export conversation: %w", err)
		}
		snapshot.Conversations = append(snapshot.Conversations, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ExportSnapshot{}, fmt.Errorf("iterate export conversations: %w", err)
	}

	msgQ := s.sql.Select("id", "conversation_id", "role", "content", "created_at").
		From("messages").OrderBy("created_at ASC", "id ASC")
	sqlStr, args, err = msgQ.ToSql()
	if err != nil {
		return ExportSnapshot{}, fmt.Errorf("build export messages query: %w", err)
	}
	rows, err = s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return ExportSnapshot{}, fmt.Errorf("export messages: %w", err)
	}
	snapshot.Messages = make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			rows.Close()
			return ExportSnapshot{}, fmt.Errorf("scan export message: %w", err)
		}
		snapshot.Messages = append(snapshot.Messages, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ExportSnapshot{}, fmt.Errorf("iterate export messages: %w", err)
	}

	exQ := s.sql.Select(
		"id", "conversation_id", "created_at", "user_preview", "assistant_preview",
		"total_latency_ms", "llm_latency_ms", "prompt_tokens", "completion_tokens", "total_tokens",
		"system_chars", "user_chars", "assistant_chars",
		"system_tokens_est", "user_tokens_est", "assistant_tokens_est",
	).From("performance_exchanges").OrderBy("created_at ASC")
	sqlStr, args, err = exQ.ToSql()
	if err != nil {
		return ExportSnapshot{}, fmt.Errorf("build export exchanges query: %w", err)
	}
	rows, err = s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return ExportSnapshot{}, fmt.Errorf("export exchanges: %w", err)
	}
	snapshot.Exchanges = make([]PerformanceExchange, 0)
	for rows.Next() {
		e, err := scanExchange(rows)
		if err != nil {
			rows.Close()
			return ExportSnapshot{}, err
		}
		snapshot.Exchanges = append(snapshot.Exchanges, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ExportSnapshot{}, fmt.Errorf("iterate export exchanges: %w", err)
	}

	profQ := s.sql.Select("id", "tenant_id", "name", "is_default", "is_active", "created_at", "updated_at").
		From("prompt_profiles").
		Where(sq.Eq{"tenant_id": tenantID}).
		OrderBy("created_at ASC")
	sqlStr, args, err = profQ.ToSql()
	if err != nil {
		return ExportSnapshot{}, fmt.Errorf("build export profiles query: %w", err)
	}
	rows, err = s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return ExportSnapshot{}, fmt.Errorf("export profiles: %w", err)
	}
	snapshot.PromptProfiles = make([]ExportProfile, 0)
	for rows.Next() {
		var p ExportProfile
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.IsDefault, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			rows.Close()
			return ExportSnapshot{}, fmt.Errorf("scan export profile: %w", err)
		}
		snapshot.PromptProfiles = append(snapshot.PromptProfiles, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ExportSnapshot{}, fmt.Errorf("iterate export profiles: %w", err)
	}

	ovQ := s.sql.Select("o.id", "o.profile_id", "o.component_id", "o.content", "o.enabled", "o.updated_at").
		From("prompt_component_overrides o").
		Join("prompt_profiles p ON p.id = o.profile_id").
		Where(sq.Eq{"p.tenant_id": tenantID}).
		OrderBy("o.updated_at ASC")
	sqlStr, args, err = ovQ.ToSql()
	if err != nil {
		return ExportSnapshot{}, fmt.Errorf("build export overrides query: %w", err)
	}
	rows, err = s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return ExportSnapshot{}, fmt.Errorf("export overrides: %w", err)
	}
	snapshot.PromptOverrides = make([]ExportOverride, 0)
	for rows.Next() {
		var o ExportOverride
		var content sql.NullString
		var enabled sql.NullBool
		if err := rows.Scan(&o.ID, &o.ProfileID, &o.ComponentID, &content, &enabled, &o.UpdatedAt); err != nil {
			rows.Close()
			return ExportSnapshot{}, fmt.Errorf("scan export override: %w", err)
		}
		if content.Valid {
			o.Content = &content.String
		}
		if enabled.Valid {
			o.Enabled = &enabled.Bool
		}
		snapshot.PromptOverrides = append(snapshot.PromptOverrides, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ExportSnapshot{}, fmt.Errorf("iterate export overrides: %w", err)
	}

	settings, err := s.getContextSettings(ctx, tenantID)
	if err == nil {
		snapshot.ContextSettings = &settings
	} else if !errors.Is(err, ErrNotFound) {
		return ExportSnapshot{}, err
	}

	return snapshot, nil
}
