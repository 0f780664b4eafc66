package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE rules (
				tenant_id VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'paused')),
				priority INT NOT NULL DEFAULT 0,
				trigger_type VARCHAR(64) NOT NULL,
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (tenant_id, id)
			);

			CREATE INDEX idx_rules_tenant_status ON rules(tenant_id, status);
			CREATE INDEX idx_rules_trigger_type ON rules(trigger_type);

			CREATE TABLE rule_versions (
				tenant_id VARCHAR(255) NOT NULL,
				rule_id VARCHAR(255) NOT NULL,
				version INT NOT NULL,
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (tenant_id, rule_id, version)
			);

			CREATE TABLE rule_executions (
				id VARCHAR(255) PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL,
				rule_id VARCHAR(255) NOT NULL,
				event_id VARCHAR(255) NOT NULL,
				sequence INT NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('success', 'failed', 'skipped')),
				entity_type VARCHAR(64) NOT NULL,
				entity_id VARCHAR(255) NOT NULL,
				executed_at TIMESTAMP WITH TIME ZONE NOT NULL,
				data JSONB NOT NULL
			);

			CREATE INDEX idx_rule_executions_tenant_time ON rule_executions(tenant_id, executed_at DESC);
			CREATE INDEX idx_rule_executions_entity ON rule_executions(tenant_id, entity_type, entity_id);
			CREATE INDEX idx_rule_executions_rule ON rule_executions(tenant_id, rule_id);
		`,
		2: `
			CREATE TABLE automation_templates (
				id VARCHAR(255) PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL DEFAULT '',
				name VARCHAR(255) NOT NULL,
				category VARCHAR(255) NOT NULL DEFAULT '',
				install_count INT NOT NULL DEFAULT 0,
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_automation_templates_tenant ON automation_templates(tenant_id);
			CREATE INDEX idx_automation_templates_category ON automation_templates(category);
		`,
		3: `
			CREATE TABLE workflow_definitions (
				tenant_id VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (tenant_id, id)
			);

			CREATE TABLE workflow_enrollments (
				tenant_id VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL,
				entity_type VARCHAR(64) NOT NULL,
				entity_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'completed', 'stopped')),
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (tenant_id, id)
			);

			CREATE INDEX idx_workflow_enrollments_status ON workflow_enrollments(status);
			CREATE INDEX idx_workflow_enrollments_entity ON workflow_enrollments(tenant_id, entity_type, entity_id);
		`,
		4: `
			CREATE TABLE crm_entities (
				tenant_id VARCHAR(255) NOT NULL,
				entity_type VARCHAR(64) NOT NULL,
				id VARCHAR(255) NOT NULL,
				data JSONB NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (tenant_id, entity_type, id)
			);

			CREATE TABLE crm_tasks (
				tenant_id VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				entity_type VARCHAR(64) NOT NULL,
				entity_id VARCHAR(255) NOT NULL,
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (tenant_id, id)
			);

			CREATE INDEX idx_crm_tasks_entity ON crm_tasks(tenant_id, entity_type, entity_id);

			CREATE TABLE notifications (
				tenant_id VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (tenant_id, id)
			);
		`,
	}
}
