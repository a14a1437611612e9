package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// DefaultCompactInstructions is seeded into fresh context settings and
// restored whenever the stored value has been blanked out.
const DefaultCompactInstructions = "If the conversation is approaching context limits, prioritize preserving the user's latest objective, " +
	"decisions, constraints, and unresolved questions. Summarize older turns into concise bullet points and " +
	"drop low-value details, while keeping critical facts and commitments intact."

// EnsureContextSettings returns the tenant's context settings, creating them
// with the given defaults on first access.
func (s *Store) EnsureContextSettings(ctx context.Context, tenantID string, maxContextTokens, maxResponseTokens int, compactTriggerPct float64) (ContextSettings, error) {
	current, err := s.getContextSettings(ctx, tenantID)
	switch {
	case err == nil:
		if strings.TrimSpace(current.CompactInstructions) == "" {
			return s.writeContextSettings(ctx, tenantID, current.MaxContextTokens, current.MaxResponseTokens, current.CompactTriggerPct, DefaultCompactInstructions)
		}
		return current, nil
	case errors.Is(err, ErrNotFound):
		now := time.Now().UTC()
		ins := s.sql.Insert("prompt_context_settings").
			Columns("tenant_id", "max_context_tokens", "max_response_tokens", "compact_trigger_pct", "compact_instructions", "updated_at").
			Values(tenantID, maxContextTokens, maxResponseTokens, compactTriggerPct, DefaultCompactInstructions, now)
		sqlStr, args, err := ins.ToSql()
		if err != nil {
			return ContextSettings{}, fmt.Errorf("build create settings query: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
			return ContextSettings{}, fmt.Errorf("create context settings: %w", err)
		}
		return ContextSettings{
			TenantID:            tenantID,
			MaxContextTokens:    maxContextTokens,
			MaxResponseTokens:   maxResponseTokens,
			CompactTriggerPct:   compactTriggerPct,
			CompactInstructions: DefaultCompactInstructions,
			UpdatedAt:           now,
		}, nil
	default:
		return ContextSettings{}, err
	}
}

// UpdateContextSettings patches the tenant's settings; nil fields keep the
// current value. Settings are created with library defaults when missing.
func (s *Store) UpdateContextSettings(ctx context.Context, tenantID string, maxContextTokens, maxResponseTokens *int, compactTriggerPct *float64, compactInstructions *string) (ContextSettings, error) {
	current, err := s.EnsureContextSettings(ctx, tenantID, 4096, 512, 0.9)
	if err != nil {
		return ContextSettings{}, err
	}
	if maxContextTokens != nil {
		current.MaxContextTokens = *maxContextTokens
	}
	if maxResponseTokens != nil {
		current.MaxResponseTokens = *maxResponseTokens
	}
	if compactTriggerPct != nil {
		current.CompactTriggerPct = *compactTriggerPct
	}
	if compactInstructions != nil {
		current.CompactInstructions = *compactInstructions
	}
	updated, err := s.writeContextSettings(ctx, tenantID, current.MaxContextTokens, current.MaxResponseTokens, current.CompactTriggerPct, current.CompactInstructions)
	if err != nil {
		return ContextSettings{}, err
	}
	if strings.TrimSpace(updated.CompactInstructions) == "" {
		return s.writeContextSettings(ctx, tenantID, updated.MaxContextTokens, updated.MaxResponseTokens, updated.CompactTriggerPct, DefaultCompactInstructions)
	}
	return updated, nil
}

func (s *Store) getContextSettings(ctx context.Context, tenantID string) (ContextSettings, error) {
	q := s.sql.Select("tenant_id", "max_context_tokens", "max_response_tokens", "compact_trigger_pct", "compact_instructions", "updated_at").
		From("prompt_context_settings").
		Where(sq.Eq{"tenant_id": tenantID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return ContextSettings{}, fmt.Errorf("build settings query: %w", err)
	}
	var cs ContextSettings
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&cs.TenantID, &cs.MaxContextTokens, &cs.MaxResponseTokens, &cs.CompactTriggerPct, &cs.CompactInstructions, &cs.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ContextSettings{}, ErrNotFound
		}
		return ContextSettings{}, fmt.Errorf("get context settings: %w", err)
	}
	return cs, nil
}

func (s *Store) writeContextSettings(ctx context.Context, tenantID string, maxContextTokens, maxResponseTokens int, compactTriggerPct float64, compactInstructions string) (ContextSettings, error) {
	now := time.Now().UTC()
	q := s.sql.Update("prompt_context_settings").
		Set("max_context_tokens", maxContextTokens).
		Set("max_response_tokens", maxResponseTokens).
		Set("compact_trigger_pct", compactTriggerPct).
		Set("compact_instructions", compactInstructions).
		Set("updated_at", now).
		Where(sq.Eq{"tenant_id": tenantID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return ContextSettings{}, fmt.Errorf("build update settings query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return ContextSettings{}, fmt.Errorf("update context settings: %w", err)
	}
	return ContextSettings{
		TenantID:            tenantID,
		MaxContextTokens:    maxContextTokens,
		MaxResponseTokens:   maxResponseTokens,
		CompactTriggerPct:   compactTriggerPct,
		CompactInstructions: compactInstructions,
		UpdatedAt:           now,
	}, nil
}
