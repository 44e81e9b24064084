package store

// Scale action queries
const (
	queryInsertScaleAction = `
		INSERT INTO scale_actions (direction, reason, worker_id, worker_count, utilization, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryPruneScaleActions = `
		DELETE FROM scale_actions
		WHERE id NOT IN (SELECT id FROM scale_actions ORDER BY id DESC LIMIT ?)`
)
