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
)

var ErrNotFound = errors.New("not found")

func (s *Store) CreateConversation(ctx context.Context, title string) (string, time.Time, error) {
	if strings.TrimSpace(title) == "" {
		title = "New Conversation"
	}
	id := uuid.NewString()
	now := time.Now().UTC()

	q := s.sql.Insert("conversations").
		Columns("id", "title", "created_at", "updated_at").
		Values(id, title, now, now)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("build create conversation query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return "", time.Time{}, fmt.Errorf("create conversation: %w", err)
	}
	return id, now, nil
}

func (s *Store) ConversationExists(ctx context.Context, conversationID string) (bool, error) {
	q := s.sql.Select("id").From("conversations").Where(sq.Eq{"id": conversationID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build conversation exists query: %w", err)
	}
	var id string
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("conversation exists: %w", err)
	}
	return true, nil
}

// MaybeSetTitleFromMessage sets the title from the first user message. It is
// a no-op once the conversation holds more than one message.
func (s *Store) MaybeSetTitleFromMessage(ctx context.Context, conversationID, userMessage string) error {
	countQ := s.sql.Select("COUNT(*)").From("messages").Where(sq.Eq{"conversation_id": conversationID})
	sqlStr, args, err := countQ.ToSql()
	if err != nil {
		return fmt.Errorf("build message count query: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return fmt.Errorf("count messages: %w", err)
	}
	if count > 1 {
		return nil
	}

	title := strings.ReplaceAll(strings.TrimSpace(userMessage), "\n", " ")
	if len(title) > 48 {
		title = title[:48]
	}
	if title == "" {
		title = "New Conversation"
	}

	upd := s.sql.Update("conversations").Set("title", title).Where(sq.Eq{"id": conversationID})
	sqlStr, args, err = upd.ToSql()
	if err != nil {
		return fmt.Errorf("build set title query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("set title from message: %w", err)
	}
	return nil
}

func (s *Store) UpdateConversationTitle(ctx context.Context, conversationID, title string) error {
	cleaned := strings.TrimSpace(title)
	if cleaned == "" {
		return nil
	}
	if len(cleaned) > 96 {
		cleaned = cleaned[:96]
	}
	q := s.sql.Update("conversations").
		Set("title", cleaned).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": conversationID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update title query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("update conversation title: %w", err)
	}
	return nil
}

func (s *Store) AddMessage(ctx context.Context, conversationID, role, content string) (Message, error) {
	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}

	q := s.sql.Insert("messages").
		Columns("id", "conversation_id", "role", "content", "created_at").
		Values(msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.CreatedAt)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Message{}, fmt.Errorf("build add message query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return Message{}, fmt.Errorf("add message: %w", err)
	}

	upd := s.sql.Update("conversations").Set("updated_at", msg.CreatedAt).Where(sq.Eq{"id": conversationID})
	sqlStr, args, err = upd.ToSql()
	if err != nil {
		return Message{}, fmt.Errorf("build touch conversation query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return Message{}, fmt.Errorf("touch conversation: %w", err)
	}
	return msg, nil
}

func (s *Store) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	q := s.sql.Select("id", "conversation_id", "role", "content", "created_at").
		From("messages").
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("created_at ASC", "id ASC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build messages query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return out, nil
}

// ConversationDetail returns the title, last update time and full ordered
// message list, or ErrNotFound.
func (s *Store) ConversationDetail(ctx context.Context, conversationID string) (string, time.Time, []Message, error) {
	q := s.sql.Select("title", "updated_at").From("conversations").Where(sq.Eq{"id": conversationID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return "", time.Time{}, nil, fmt.Errorf("build conversation detail query: %w", err)
	}
	var title string
	var updatedAt time.Time
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&title, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, nil, ErrNotFound
		}
		return "", time.Time{}, nil, fmt.Errorf("get conversation: %w", err)
	}
	messages, err := s.Messages(ctx, conversationID)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	return title, updatedAt, messages, nil
}

func (s *Store) ListConversations(ctx context.Context) ([]Conversation, error) {
	q := s.sql.Select(
		"c.id", "c.title", "c.updated_at",
		"COALESCE(last_msg.content, '') AS last_message",
		"COALESCE(msg_count.count, 0) AS message_count",
	).From("conversations c").
		LeftJoin(`(
			SELECT m1.conversation_id, m1.content
			FROM messages m1
			INNER JOIN (
				SELECT conversation_id, MAX(created_at) AS max_created_at
				FROM messages
				GROUP BY conversation_id
			) m2 ON m1.conversation_id = m2.conversation_id AND m1.created_at = m2.max_created_at
		) AS last_msg ON c.id = last_msg.conversation_id`).
		LeftJoin(`(
			SELECT conversation_id, COUNT(*) AS count
			FROM messages
			GROUP BY conversation_id
		) AS msg_count ON c.id = msg_count.conversation_id`).
		OrderBy("c.updated_at DESC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list conversations query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := make([]Conversation, 0)
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.UpdatedAt, &c.LastMessage, &c.MessageCount); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation rows: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	exists, err := s.ConversationExists(ctx, conversationID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	for _, table := range []string{"performance_exchanges", "messages"} {
		q := s.sql.Delete(table).Where(sq.Eq{"conversation_id": conversationID})
		sqlStr, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build delete %s query: %w", table, err)
		}
		if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	q := s.sql.Delete("conversations").Where(sq.Eq{"id": conversationID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete conversation query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

func (s *Store) AddPerformanceExchange(ctx context.Context, e PerformanceExchange) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	q := s.sql.Insert("performance_exchanges").
		Columns(
			"id", "conversation_id", "created_at", "user_preview", "assistant_preview",
			"total_latency_ms", "llm_latency_ms", "prompt_tokens", "completion_tokens", "total_tokens",
			"system_chars", "user_chars", "assistant_chars",
			"system_tokens_est", "user_tokens_est", "assistant_tokens_est",
		).
		Values(
			e.ID, e.ConversationID, e.CreatedAt, e.UserPreview, e.AssistantPreview,
			e.TotalLatencyMS, e.LLMLatencyMS, e.PromptTokens, e.CompletionTokens, e.TotalTokens,
			e.SystemChars, e.UserChars, e.AssistantChars,
			e.SystemTokensEst, e.UserTokensEst, e.AssistantTokensEst,
		)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build add exchange query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("add performance exchange: %w", err)
	}
	return nil
}

func (s *Store) RecentPerformanceExchanges(ctx context.Context, limit int) ([]PerformanceExchange, error) {
	if limit < 1 {
		limit = 1
	}
	q := s.sql.Select(
		"id", "conversation_id", "created_at", "user_preview", "assistant_preview",
		"total_latency_ms", "llm_latency_ms", "prompt_tokens", "completion_tokens", "total_tokens",
		"system_chars", "user_chars", "assistant_chars",
		"system_tokens_est", "user_tokens_est", "assistant_tokens_est",
	).From("performance_exchanges").
		OrderBy("created_at DESC").
		Limit(uint64(limit))
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent exchanges query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list recent exchanges: %w", err)
	}
	defer rows.Close()

	out := make([]PerformanceExchange, 0)
	for rows.Next() {
		e, err := scanExchange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchange rows: %w", err)
	}
	return out, nil
}

func scanExchange(rows *sql.Rows) (PerformanceExchange, error) {
	var e PerformanceExchange
	var promptTok, completionTok, totalTok, sysEst, userEst, asstEst sql.NullInt64
	if err := rows.Scan(
		&e.ID, &e.ConversationID, &e.CreatedAt, &e.UserPreview, &e.AssistantPreview,
		&e.TotalLatencyMS, &e.LLMLatencyMS, &promptTok, &completionTok, &totalTok,
		&e.SystemChars, &e.UserChars, &e.AssistantChars,
		&sysEst, &userEst, &asstEst,
	); err != nil {
		return PerformanceExchange{}, fmt.Errorf("scan exchange row: %w", err)
	}
	e.PromptTokens = nullableInt(promptTok)
	e.CompletionTokens = nullableInt(completionTok)
	e.TotalTokens = nullableInt(totalTok)
	e.SystemTokensEst = nullableInt(sysEst)
	e.UserTokensEst = nullableInt(userEst)
	e.AssistantTokensEst = nullableInt(asstEst)
	return e, nil
}

func (s *Store) SummarizePerformance(ctx context.Context) (PerformanceSummary, error) {
	q := s.sql.Select(
		"COALESCE(MIN(total_latency_ms), 0)",
		"COALESCE(MAX(total_latency_ms), 0)",
		"COALESCE(AVG(total_latency_ms), 0)",
		"COUNT(*)",
	).From("performance_exchanges")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return PerformanceSummary{}, fmt.Errorf("build latency summary query: %w", err)
	}
	var out PerformanceSummary
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&out.LatencyMinMS, &out.LatencyMaxMS, &out.LatencyAvgMS, &out.ExchangeCount,
	); err != nil {
		return PerformanceSummary{}, fmt.Errorf("latency summary: %w", err)
	}

	now := time.Now().UTC()
	windows := []struct {
		since *time.Time
		dst   *TokenWindow
	}{
		{since: timePtr(now.Add(-24 * time.Hour)), dst: &out.TokensDay},
		{since: timePtr(now.Add(-7 * 24 * time.Hour)), dst: &out.TokensWeek},
		{since: timePtr(now.Add(-30 * 24 * time.Hour)), dst: &out.TokensMonth},
		{since: nil, dst: &out.TokensAllTime},
	}
	for _, w := range windows {
		window, err := s.aggregateTokens(ctx, w.since)
		if err != nil {
			return PerformanceSummary{}, err
		}
		*w.dst = window
	}
	return out, nil
}

func (s *Store) aggregateTokens(ctx context.Context, since *time.Time) (TokenWindow, error) {
	q := s.sql.Select(
		"COALESCE(SUM(total_tokens), 0)",
		"COALESCE(SUM(prompt_tokens), 0)",
		"COALESCE(SUM(completion_tokens), 0)",
		"COUNT(*)",
	).From("performance_exchanges")
	if since != nil {
		q = q.Where(sq.GtOrEq{"created_at": *since})
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return TokenWindow{}, fmt.Errorf("build token window query: %w", err)
	}
	var w TokenWindow
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&w.TotalTokens, &w.PromptTokens, &w.CompletionTokens, &w.ExchangeCount,
	); err != nil {
		return TokenWindow{}, fmt.Errorf("token window: %w", err)
	}
	return w, nil
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func timePtr(t time.Time) *time.Time {
	return &t
}
