package toolkit

import (
	"encoding/json"

	"github.com/sqlpilot/sqlpilot/internal/port/llm"
)

// Catalog returns the declarative tool definitions advertised to the model.
// This is data, not behavior; it must stay in lockstep with the handler
// table in New.
func (t *Toolkit) Catalog() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        "get_table_schema",
			Description: "Get schema information for a table including columns and indexes.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"table_name": {"type": "string", "description": "Name of the table"}
				},
				"required": ["table_name"]
			}`),
		},
		{
			Name:        "get_table_statistics",
			Description: "Get statistics for a table such as row count and data size.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"table_name": {"type": "string", "description": "Name of the table"}
				},
				"required": ["table_name"]
			}`),
		},
		{
			Name:        "explain_sql",
			Description: "Get the execution plan for a SQL query to analyze performance.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"sql": {"type": "string", "description": "The SQL query to explain"}
				},
				"required": ["sql"]
			}`),
		},
		{
			Name:        "execute_and_compare",
			Description: "Execute original and optimized SQL to verify they return the same results.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"original_sql": {"type": "string", "description": "Original SQL query"},
					"optimized_sql": {"type": "string", "description": "Candidate optimized SQL query"}
				},
				"required": ["original_sql", "optimized_sql"]
			}`),
		},
		{
			Name:        "measure_performance",
			Description: "Measure the execution time of a SQL query.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"sql": {"type": "string", "description": "The SQL query to measure"},
					"runs": {"type": "integer", "description": "Number of timed runs", "default": 3}
				},
				"required": ["sql"]
			}`),
		},
		{
			Name:        "execute_custom_test",
			Description: "Run a named test case, such as a boundary condition, by executing both SQL variants.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"test_name": {"type": "string", "description": "Name of the test case"},
					"original_sql": {"type": "string", "description": "Original SQL with test-specific values"},
					"optimized_sql": {"type": "string", "description": "Optimized SQL with test-specific values"},
					"description": {"type": "string", "description": "What the test verifies"}
				},
				"required": ["test_name", "original_sql", "optimized_sql", "description"]
			}`),
		},
	}
}
