package storage

import (
	"context"
	"fmt"
	"strings"

	"thinkchat/model"
)

const previewLength = 100

// Search finds messages across every conversation whose content contains
// query, case-insensitively. Newest matches come first.
func (s *Store) Search(ctx context.Context, query string) ([]model.SearchMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.SearchMatch{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.conversation_id, c.title, m.role, m.content, m.created_at
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE m.content LIKE ? ESCAPE '\'
		ORDER BY m.created_at DESC, m.rowid DESC
	`, "%"+escapeLike(query)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	queryLower := strings.ToLower(query)
	matches := []model.SearchMatch{}
	for rows.Next() {
		var m model.SearchMatch
		var role, content string
		if err := rows.Scan(&m.MessageID, &m.ConversationID, &m.ConversationTitle, &role, &content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}

		// LIKE only folds ASCII; re-check for the rest.
		if !strings.Contains(strings.ToLower(content), queryLower) {
			continue
		}

		m.Role = model.Role(role)
		m.Preview = Preview(content, previewLength)
		matches = append(matches, m)
	}

	return matches, rows.Err()
}

// Preview flattens content to one line and truncates it to n runes.
func Preview(content string, n int) string {
	flat := strings.Join(strings.Fields(content), " ")
	runes := []rune(flat)
	if len(runes) > n {
		return string(runes[:n]) + "..."
	}
	return flat
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
