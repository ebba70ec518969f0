package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/videolytics/query-service/internal/errors"
)

func TestValidateQueryAllowsResolverOutput(t *testing.T) {
	sc := NewSafetyChecker()

	queries := []string{
		"SELECT COUNT(*) FROM videos;",
		"SELECT SUM(likes_count) FROM videos;",
		"SELECT SUM(delta_views_count) FROM video_snapshots WHERE DATE(created_at) = '2025-11-28';",
		"SELECT SUM(video_snapshots.delta_views_count) FROM video_snapshots JOIN videos ON video_snapshots.video_id = videos.id WHERE videos.creator_id = 'aaaabbbbccccddddeeeeffff00001111';",
		"SELECT COUNT(DISTINCT DATE(created_at)) FROM video_snapshots;",
	}

	for _, q := range queries {
		assert.NoError(t, sc.ValidateQuery(q), "query should pass: %s", q)
	}
}

func TestValidateQueryRejectsUnsafeStatements(t *testing.T) {
	sc := NewSafetyChecker()

	tests := []struct {
		name  string
		query string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"drop table", "DROP TABLE videos;"},
		{"delete", "DELETE FROM videos;"},
		{"update", "UPDATE videos SET views_count = 0;"},
		{"insert", "INSERT INTO videos VALUES (1);"},
		{"alter", "ALTER TABLE videos ADD COLUMN x INT;"},
		{"truncate", "TRUNCATE videos;"},
		{"create", "CREATE TABLE evil (id INT);"},
		{"grant", "GRANT ALL ON videos TO PUBLIC;"},
		{"select hiding a drop", "SELECT 1 FROM videos; DROP TABLE videos;"},
		{"line comment", "SELECT COUNT(*) FROM videos -- comment"},
		{"block comment", "SELECT /* hidden */ COUNT(*) FROM videos;"},
		{"unknown table", "SELECT COUNT(*) FROM users;"},
		{"unknown join target", "SELECT COUNT(*) FROM videos JOIN accounts ON accounts.id = videos.creator_id;"},
		{"no table", "SELECT 1;"},
		{"not a select", "EXPLAIN SELECT COUNT(*) FROM videos;"},
		{"too long", "SELECT COUNT(*) FROM videos WHERE creator_id = '" + strings.Repeat("a", 3000) + "';"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sc.ValidateQuery(tt.query)
			assert.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSafetyValidation),
				"expected safety validation error, got: %v", err)
		})
	}
}

func TestValidateQueryKeywordsMatchWholeWords(t *testing.T) {
	sc := NewSafetyChecker()

	// Column and literal text containing forbidden keywords as substrings
	// must not trip the checker
	assert.NoError(t, sc.ValidateQuery("SELECT created_at FROM videos;"))
	assert.NoError(t, sc.ValidateQuery("SELECT COUNT(*) FROM videos WHERE creator_id = 'updated_creator';"))
}
