package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xiaopang/compareai/internal/model"
	_ "github.com/mattn/go-sqlite3"
)

// Store 数据存储
type Store struct {
	db *sql.DB
}

// New 创建存储实例
func New(dbPath string) (*Store, error) {
	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

// migrate 数据库迁移
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS comparison_logs (
		id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		client_id TEXT,
		endpoint TEXT,
		model TEXT,
		success INTEGER,
		latency_ms INTEGER,
		accuracy REAL,
		overall_score REAL,
		speed_tier TEXT,
		length INTEGER,
		input_tokens INTEGER,
		output_tokens INTEGER,
		total_tokens INTEGER,
		estimated_cost REAL,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON comparison_logs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_logs_model ON comparison_logs(model);
	CREATE INDEX IF NOT EXISTS idx_logs_client ON comparison_logs(client_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveLog 保存结算记录
func (s *Store) SaveLog(entry *model.ComparisonLog) error {
	_, err := s.db.Exec(`
		INSERT INTO comparison_logs (id, timestamp, client_id, endpoint, model,
			success, latency_ms, accuracy, overall_score, speed_tier, length,
			input_tokens, output_tokens, total_tokens, estimated_cost, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Timestamp, entry.ClientID, entry.Endpoint, entry.Model,
		entry.Success, entry.LatencyMs, entry.Accuracy, entry.Overall, entry.SpeedTier, entry.Length,
		entry.InputTokens, entry.OutputTokens, entry.TotalTokens, entry.EstimatedCost, entry.Error)
	return err
}

// QueryLogs 查询结算记录
func (s *Store) QueryLogs(query *model.LogQuery) ([]*model.ComparisonLog, error) {
	q := "SELECT id, timestamp, client_id, endpoint, model, success, latency_ms, accuracy, overall_score, speed_tier, length, input_tokens, output_tokens, total_tokens, estimated_cost, error FROM comparison_logs WHERE 1=1"
	args := []any{}

	if query.Model != "" {
		q += " AND model = ?"
		args = append(args, query.Model)
	}
	if query.Endpoint != "" {
		q += " AND endpoint = ?"
		args = append(args, query.Endpoint)
	}
	if query.ClientID != "" {
		q += " AND client_id = ?"
		args = append(args, query.ClientID)
	}
	if query.Success != nil {
		q += " AND success = ?"
		args = append(args, *query.Success)
	}
	if !query.StartTime.IsZero() {
		q += " AND timestamp >= ?"
		args = append(args, query.StartTime)
	}
	if !query.EndTime.IsZero() {
		q += " AND timestamp <= ?"
		args = append(args, query.EndTime)
	}

	q += " ORDER BY timestamp DESC"

	if query.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", query.Limit)
	} else {
		q += " LIMIT 100"
	}
	if query.Offset > 0 {
		q += fmt.Sprintf(" OFFSET %d", query.Offset)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*model.ComparisonLog
	for rows.Next() {
		var entry model.ComparisonLog
		if err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.ClientID, &entry.Endpoint, &entry.Model,
			&entry.Success, &entry.LatencyMs, &entry.Accuracy, &entry.Overall, &entry.SpeedTier, &entry.Length,
			&entry.InputTokens, &entry.OutputTokens, &entry.TotalTokens, &entry.EstimatedCost, &entry.Error); err != nil {
			return nil, err
		}
		logs = append(logs, &entry)
	}
	return logs, nil
}

// GetDailyStats 获取每日统计
func (s *Store) GetDailyStats(days int) ([]*model.DailyStats, error) {
	rows, err := s.db.Query(`
		SELECT
			date(timestamp) as date,
			COUNT(*) as total_requests,
			ROUND(SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END) * 100.0 / COUNT(*), 2) as success_rate,
			COALESCE(SUM(total_tokens), 0) as total_tokens,
			COALESCE(SUM(estimated_cost), 0) as total_cost,
			ROUND(COALESCE(AVG(CASE WHEN success = 1 THEN latency_ms END), 0), 2) as avg_latency
		FROM comparison_logs
		WHERE timestamp >= date('now', ?)
		GROUP BY date(timestamp)
		ORDER BY date DESC
	`, fmt.Sprintf("-%d days", days))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []*model.DailyStats
	for rows.Next() {
		var d model.DailyStats
		if err := rows.Scan(&d.Date, &d.TotalRequests, &d.SuccessRate, &d.TotalTokens, &d.TotalCost, &d.AvgLatency); err != nil {
			return nil, err
		}
		stats = append(stats, &d)
	}
	return stats, nil
}

// GetModelStats 获取按模型统计
func (s *Store) GetModelStats(days int) ([]*model.ModelStats, error) {
	rows, err := s.db.Query(`
		SELECT
			model,
			COUNT(*) as request_count,
			ROUND(SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END) * 100.0 / COUNT(*), 2) as success_rate,
			ROUND(COALESCE(AVG(CASE WHEN success = 1 THEN latency_ms END), 0), 2) as avg_latency,
			ROUND(COALESCE(AVG(CASE WHEN success = 1 THEN overall_score END), 0), 2) as avg_overall,
			COALESCE(SUM(total_tokens), 0) as total_tokens,
			COALESCE(SUM(estimated_cost), 0) as total_cost
		FROM comparison_logs
		WHERE timestamp >= date('now', ?)
		GROUP BY model
		ORDER BY request_count DESC
	`, fmt.Sprintf("-%d days", days))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []*model.ModelStats
	for rows.Next() {
		var m model.ModelStats
		if err := rows.Scan(&m.Model, &m.RequestCount, &m.SuccessRate, &m.AvgLatency, &m.AvgOverall, &m.TotalTokens, &m.TotalCost); err != nil {
			return nil, err
		}
		stats = append(stats, &m)
	}
	return stats, nil
}

// CleanOldLogs 清理过期记录
func (s *Store) CleanOldLogs(retentionDays int) (int64, error) {
	result, err := s.db.Exec(`
		DELETE FROM comparison_logs
		WHERE timestamp < date('now', ?)
	`, fmt.Sprintf("-%d days", retentionDays))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
