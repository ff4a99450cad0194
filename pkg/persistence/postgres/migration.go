package postgres

// migrations returns the ordered schema migration statements.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS flows (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status      TEXT NOT NULL,
				user_id     TEXT NOT NULL,
				nodes       JSONB NOT NULL DEFAULT '[]',
				connections JSONB NOT NULL DEFAULT '[]',
				schedule    TEXT,
				last_run_at TIMESTAMP WITH TIME ZONE,
				next_run_at TIMESTAMP WITH TIME ZONE,
				created_at  TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at  TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				deleted_at  TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_flows_user ON flows (user_id) WHERE deleted_at IS NULL;
			CREATE INDEX IF NOT EXISTS idx_flows_schedulable ON flows (status) WHERE schedule IS NOT NULL AND deleted_at IS NULL;

			CREATE TABLE IF NOT EXISTS runs (
				id          TEXT PRIMARY KEY,
				flow_id     TEXT NOT NULL,
				user_id     TEXT NOT NULL,
				status      TEXT NOT NULL,
				input       JSONB,
				output      JSONB,
				error       TEXT NOT NULL DEFAULT '',
				started_at  TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE,
				created_at  TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_runs_flow ON runs (flow_id, created_at DESC);

			CREATE TABLE IF NOT EXISTS node_outputs (
				id         TEXT PRIMARY KEY,
				run_id     TEXT NOT NULL,
				node_id    TEXT NOT NULL,
				output     JSONB,
				error      TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_node_outputs_run ON node_outputs (run_id, created_at ASC);

			CREATE TABLE IF NOT EXISTS credentials (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL,
				type       TEXT NOT NULL,
				name       TEXT NOT NULL DEFAULT '',
				payload    BYTEA NOT NULL,
				active     BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_credentials_user ON credentials (user_id);

			CREATE TABLE IF NOT EXISTS agent_memories (
				id         TEXT PRIMARY KEY,
				flow_id    TEXT NOT NULL,
				node_id    TEXT NOT NULL,
				content    TEXT NOT NULL DEFAULT '',
				messages   JSONB,
				metadata   JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_agent_memories_key ON agent_memories (flow_id, node_id, created_at DESC);
		`,
	}
}
