// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package thread

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/teradata-labs/loom-agentd/internal/message"
)

// sqliteHistoryLog is the append-only history log: a small file-backed
// store with an indexed query surface. Every Append
// is also written to a companion JSONL file so the log can be replayed even
// if the sqlite index is lost or corrupted; the sqlite rows are the
// queryable projection of it.
type sqliteHistoryLog struct {
	mu        sync.Mutex
	db        *sql.DB
	jsonlPath string
	jsonl     *os.File
}

func openSQLiteHistoryLog(jsonlPath, sqlitePath string) (*sqliteHistoryLog, error) {
	db, err := sql.Open("sqlite", sqlitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	timestamp_ms INTEGER NOT NULL,
	token_count INTEGER,
	metadata_json TEXT NOT NULL,
	attachments_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_seq ON messages(seq);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}

	jsonl, err := os.OpenFile(jsonlPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open jsonl log: %w", err)
	}

	return &sqliteHistoryLog{db: db, jsonlPath: jsonlPath, jsonl: jsonl}, nil
}

// Append assigns a monotonically increasing id when the caller didn't
// already set one: the id becomes the zero-padded sqlite AUTOINCREMENT
// sequence value for that row, so ordering by id and ordering by append
// order always agree and no id is ever reused. A caller-supplied ID is
// preserved as-is (used by tests).
func (l *sqliteHistoryLog) Append(msg message.Message) (message.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	autoAssignID := msg.ID == ""
	if autoAssignID {
		// Placeholder to satisfy the id column's NOT NULL UNIQUE constraint
		// until the real seq-derived id is known, right after insert.
		msg.ID = uuid.NewString()
	}

	metaJSON, err := json.Marshal(msg.Metadata)
	if err != nil {
		return message.Message{}, fmt.Errorf("marshal metadata: %w", err)
	}
	attJSON, err := json.Marshal(msg.Attachments)
	if err != nil {
		return message.Message{}, fmt.Errorf("marshal attachments: %w", err)
	}

	var tokenCount sql.NullInt64
	if msg.TokenCount != nil {
		tokenCount = sql.NullInt64{Int64: int64(*msg.TokenCount), Valid: true}
	}

	res, err := l.db.Exec(
		`INSERT INTO messages (id, role, content, timestamp_ms, token_count, metadata_json, attachments_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, string(msg.Role), msg.Content, msg.TimestampMS, tokenCount, string(metaJSON), string(attJSON),
	)
	if err != nil {
		return message.Message{}, fmt.Errorf("insert message: %w", err)
	}

	if autoAssignID {
		seq, err := res.LastInsertId()
		if err != nil {
			return message.Message{}, fmt.Errorf("read inserted seq: %w", err)
		}
		msg.ID = fmt.Sprintf("%020d", seq)
		if _, err := l.db.Exec(`UPDATE messages SET id = ? WHERE seq = ?`, msg.ID, seq); err != nil {
			return message.Message{}, fmt.Errorf("assign monotonic id: %w", err)
		}
	}

	line, err := json.Marshal(msg)
	if err != nil {
		return message.Message{}, fmt.Errorf("marshal jsonl line: %w", err)
	}
	if _, err := l.jsonl.Write(append(line, '\n')); err != nil {
		return message.Message{}, fmt.Errorf("append jsonl: %w", err)
	}

	return msg, nil
}

func (l *sqliteHistoryLog) GetRecent(n int) ([]message.Message, error) {
	if n <= 0 {
		return l.GetAll()
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(
		`SELECT id, role, content, timestamp_ms, token_count, metadata_json, attachments_json
		 FROM messages ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	return msgs, nil
}

func (l *sqliteHistoryLog) GetAll() ([]message.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(
		`SELECT id, role, content, timestamp_ms, token_count, metadata_json, attachments_json
		 FROM messages ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query all: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (l *sqliteHistoryLog) GetStats() (Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var stats Stats
	var totalTokens sql.NullInt64
	err := l.db.QueryRow(`SELECT COUNT(*), SUM(token_count) FROM messages`).Scan(&stats.Count, &totalTokens)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	stats.TotalTokens = int(totalTokens.Int64)
	return stats, nil
}

func (l *sqliteHistoryLog) Search(query string) ([]message.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(
		`SELECT id, role, content, timestamp_ms, token_count, metadata_json, attachments_json
		 FROM messages WHERE content LIKE ? ORDER BY seq ASC`, "%"+query+"%")
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// TruncateFrom removes the row for messageID and every row appended after
// it (by seq order), then rewrites the companion JSONL file to match so the
// durability copy never diverges from the indexed view.
func (l *sqliteHistoryLog) TruncateFrom(messageID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var targetSeq sql.NullInt64
	err := l.db.QueryRow(`SELECT seq FROM messages WHERE id = ?`, messageID).Scan(&targetSeq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find truncate target: %w", err)
	}

	res, err := l.db.Exec(`DELETE FROM messages WHERE seq >= ?`, targetSeq.Int64)
	if err != nil {
		return 0, fmt.Errorf("truncate messages: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count truncated rows: %w", err)
	}

	if err := l.rewriteJSONLLocked(); err != nil {
		return int(affected), fmt.Errorf("rewrite jsonl after truncate: %w", err)
	}
	return int(affected), nil
}

// rewriteJSONLLocked regenerates the JSONL durability copy from the current
// sqlite contents. Called with l.mu already held.
func (l *sqliteHistoryLog) rewriteJSONLLocked() error {
	rows, err := l.db.Query(
		`SELECT id, role, content, timestamp_ms, token_count, metadata_json, attachments_json
		 FROM messages ORDER BY seq ASC`)
	if err != nil {
		return fmt.Errorf("query for jsonl rewrite: %w", err)
	}
	msgs, err := scanMessages(rows)
	rows.Close()
	if err != nil {
		return err
	}

	if err := l.jsonl.Close(); err != nil {
		return fmt.Errorf("close jsonl before rewrite: %w", err)
	}
	f, err := os.Create(l.jsonlPath)
	if err != nil {
		return fmt.Errorf("recreate jsonl: %w", err)
	}
	for _, msg := range msgs {
		line, err := json.Marshal(msg)
		if err != nil {
			f.Close()
			return fmt.Errorf("marshal jsonl line: %w", err)
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			f.Close()
			return fmt.Errorf("write jsonl line: %w", err)
		}
	}
	f.Close()

	reopened, err := os.OpenFile(l.jsonlPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("reopen jsonl for append: %w", err)
	}
	l.jsonl = reopened
	return nil
}

func (l *sqliteHistoryLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	jerr := l.jsonl.Close()
	derr := l.db.Close()
	if derr != nil {
		return derr
	}
	return jerr
}

func scanMessages(rows *sql.Rows) ([]message.Message, error) {
	var out []message.Message
	for rows.Next() {
		var (
			msg        message.Message
			role       string
			tokenCount sql.NullInt64
			metaJSON   string
			attJSON    string
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &msg.TimestampMS, &tokenCount, &metaJSON, &attJSON); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Role = message.Role(role)
		if tokenCount.Valid {
			v := int(tokenCount.Int64)
			msg.TokenCount = &v
		}
		if err := json.Unmarshal([]byte(metaJSON), &msg.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		if err := json.Unmarshal([]byte(attJSON), &msg.Attachments); err != nil {
			return nil, fmt.Errorf("unmarshal attachments: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func reverseMessages(msgs []message.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
