package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"aigentd/internal/prompts"
)

// EnsureDefaultPromptProfile returns the tenant's default profile, creating
// it active on first access. A default profile that somehow lost its active
// flag is re-activated, so every tenant always has exactly one active profile.
func (s *Store) EnsureDefaultPromptProfile(ctx context.Context, tenantID string) (prompts.Profile, error) {
	q := s.sql.Select("id", "tenant_id", "name", "is_default", "is_active", "updated_at").
		From("prompt_profiles").
		Where(sq.Eq{"tenant_id": tenantID, "is_default": true}).
		Limit(1)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return prompts.Profile{}, fmt.Errorf("build default profile query: %w", err)
	}

	var p prompts.Profile
	err = s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&p.ID, &p.TenantID, &p.Name, &p.IsDefault, &p.IsActive, &p.UpdatedAt)
	switch {
	case err == nil:
		if !p.IsActive {
			if err := s.setActive(ctx, tenantID, p.ID); err != nil {
				return prompts.Profile{}, err
			}
			p.IsActive = true
		}
		return p, nil
	case errors.Is(err, sql.ErrNoRows):
		now := time.Now().UTC()
		p = prompts.Profile{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			Name:      "Default",
			IsDefault: true,
			IsActive:  true,
			UpdatedAt: now,
		}
		ins := s.sql.Insert("prompt_profiles").
			Columns("id", "tenant_id", "name", "is_default", "is_active", "created_at", "updated_at").
			Values(p.ID, p.TenantID, p.Name, true, true, now, now)
		sqlStr, args, err := ins.ToSql()
		if err != nil {
			return prompts.Profile{}, fmt.Errorf("build create default profile query: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
			return prompts.Profile{}, fmt.Errorf("create default profile: %w", err)
		}
		return p, nil
	default:
		return prompts.Profile{}, fmt.Errorf("get default profile: %w", err)
	}
}

func (s *Store) ActivePromptProfile(ctx context.Context, tenantID string) (prompts.Profile, error) {
	if _, err := s.EnsureDefaultPromptProfile(ctx, tenantID); err != nil {
		return prompts.Profile{}, err
	}
	q := s.sql.Select("id", "tenant_id", "name", "is_default", "is_active", "updated_at").
		From("prompt_profiles").
		Where(sq.Eq{"tenant_id": tenantID, "is_active": true}).
		Limit(1)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return prompts.Profile{}, fmt.Errorf("build active profile query: %w", err)
	}
	var p prompts.Profile
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&p.ID, &p.TenantID, &p.Name, &p.IsDefault, &p.IsActive, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Someone deactivated everything out of band; fall back to default.
			return s.EnsureDefaultPromptProfile(ctx, tenantID)
		}
		return prompts.Profile{}, fmt.Errorf("get active profile: %w", err)
	}
	return p, nil
}

func (s *Store) ListPromptProfiles(ctx context.Context, tenantID string) ([]prompts.Profile, error) {
	if _, err := s.EnsureDefaultPromptProfile(ctx, tenantID); err != nil {
		return nil, err
	}
	q := s.sql.Select("id", "tenant_id", "name", "is_default", "is_active", "updated_at").
		From("prompt_profiles").
		Where(sq.Eq{"tenant_id": tenantID}).
		OrderBy("is_active DESC", "is_default DESC", "name ASC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list profiles query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	out := make([]prompts.Profile, 0)
	for rows.Next() {
		var p prompts.Profile
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.IsDefault, &p.IsActive, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan profile row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile rows: %w", err)
	}
	return out, nil
}

func (s *Store) CreatePromptProfile(ctx context.Context, tenantID, name string) (prompts.Profile, error) {
	now := time.Now().UTC()
	p := prompts.Profile{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      strings.TrimSpace(name),
		UpdatedAt: now,
	}
	q := s.sql.Insert("prompt_profiles").
		Columns("id", "tenant_id", "name", "is_default", "is_active", "created_at", "updated_at").
		Values(p.ID, p.TenantID, p.Name, false, false, now, now)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return prompts.Profile{}, fmt.Errorf("build create profile query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return prompts.Profile{}, fmt.Errorf("create profile: %w", err)
	}
	return p, nil
}

// ActivatePromptProfile makes the given profile the tenant's only active one.
// Returns ErrNotFound when the id does not belong to the tenant, leaving the
// previous active profile untouched.
func (s *Store) ActivatePromptProfile(ctx context.Context, tenantID, profileID string) error {
	q := s.sql.Select("id").From("prompt_profiles").Where(sq.Eq{"id": profileID, "tenant_id": tenantID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build profile lookup query: %w", err)
	}
	var id string
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lookup profile: %w", err)
	}
	return s.setActive(ctx, tenantID, profileID)
}

func (s *Store) setActive(ctx context.Context, tenantID, profileID string) error {
	deact := s.sql.Update("prompt_profiles").Set("is_active", false).Where(sq.Eq{"tenant_id": tenantID})
	sqlStr, args, err := deact.ToSql()
	if err != nil {
		return fmt.Errorf("build deactivate query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("deactivate profiles: %w", err)
	}

	act := s.sql.Update("prompt_profiles").
		Set("is_active", true).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": profileID})
	sqlStr, args, err = act.ToSql()
	if err != nil {
		return fmt.Errorf("build activate query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("activate profile: %w", err)
	}
	return nil
}

func (s *Store) PromptOverrides(ctx context.Context, profileID string) (map[string]prompts.Override, error) {
	q := s.sql.Select("component_id", "content", "enabled").
		From("prompt_component_overrides").
		Where(sq.Eq{"profile_id": profileID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build overrides query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()

	out := make(map[string]prompts.Override)
	for rows.Next() {
		var componentID string
		var content sql.NullString
		var enabled sql.NullBool
		if err := rows.Scan(&componentID, &content, &enabled); err != nil {
			return nil, fmt.Errorf("scan override row: %w", err)
		}
		var o prompts.Override
		if content.Valid {
			o.Content = &content.String
		}
		if enabled.Valid {
			o.Enabled = &enabled.Bool
		}
		out[componentID] = o
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate override rows: %w", err)
	}
	return out, nil
}

// UpsertPromptOverride patches one component override. Nil fields keep any
// previously stored value (COALESCE), so a content-only patch does not clear
// an earlier enabled flag.
func (s *Store) UpsertPromptOverride(ctx context.Context, profileID, componentID string, content *string, enabled *bool) error {
	now := time.Now().UTC()

	q := s.sql.Select("id").From("prompt_component_overrides").
		Where(sq.Eq{"profile_id": profileID, "component_id": componentID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build override lookup query: %w", err)
	}
	var id string
	err = s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		ins := s.sql.Insert("prompt_component_overrides").
			Columns("id", "profile_id", "component_id", "content", "enabled", "updated_at").
			Values(uuid.NewString(), profileID, componentID, content, enabled, now)
		sqlStr, args, err := ins.ToSql()
		if err != nil {
			return fmt.Errorf("build override insert query: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("insert override: %w", err)
		}
	case err != nil:
		return fmt.Errorf("lookup override: %w", err)
	default:
		upd := s.sql.Update("prompt_component_overrides").
			Set("content", sq.Expr("COALESCE(?, content)", content)).
			Set("enabled", sq.Expr("COALESCE(?, enabled)", enabled)).
			Set("updated_at", now).
			Where(sq.Eq{"profile_id": profileID, "component_id": componentID})
		sqlStr, args, err := upd.ToSql()
		if err != nil {
			return fmt.Errorf("build override update query: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("update override: %w", err)
		}
	}

	touch := s.sql.Update("prompt_profiles").Set("updated_at", now).Where(sq.Eq{"id": profileID})
	sqlStr, args, err = touch.ToSql()
	if err != nil {
		return fmt.Errorf("build touch profile query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("touch profile: %w", err)
	}
	return nil
}

// ResetPromptProfile drops all overrides for the profile without changing
// its active flag.
func (s *Store) ResetPromptProfile(ctx context.Context, profileID string) error {
	q := s.sql.Delete("prompt_component_overrides").Where(sq.Eq{"profile_id": profileID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build reset overrides query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("reset overrides: %w", err)
	}

	touch := s.sql.Update("prompt_profiles").Set("updated_at", time.Now().UTC()).Where(sq.Eq{"id": profileID})
	sqlStr, args, err = touch.ToSql()
	if err != nil {
		return fmt.Errorf("build touch profile query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("touch profile: %w", err)
	}
	return nil
}
