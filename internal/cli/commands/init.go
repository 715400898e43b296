package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Scaffold a new Loom project",
		Long: `Create a working example project: a loom.yaml, two seeds, staged
views over them, and an aggregated mart with tests. Run it with
"loom run" followed by "loom test".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			if _, err := os.Stat(filepath.Join(dir, "loom.yaml")); err == nil {
				return fmt.Errorf("%s already contains a loom.yaml", dir)
			}

			for rel, content := range scaffoldFiles {
				path := filepath.Join(dir, rel)
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  created %s\n", path)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\nProject ready. Try:\n  cd %s && loom run && loom test\n", dir)
			return nil
		},
	}
	return cmd
}

var scaffoldFiles = map[string]string{
	"loom.yaml": `# Loom project configuration.
models_dir: models
seeds_dir: seeds

target:
  type: duckdb
  path: loom.db
  schema: main

environments:
  prod:
    target:
      type: duckdb
      path: loom_prod.db
      schema: main
`,

	"seeds/raw_customers.csv": `id,name
1,Ada Lovelace
2,Grace Hopper
3,Annie Easley
`,

	"seeds/raw_orders.csv": `id,customer_id,order_date,status
1,1,2024-01-01,completed
2,1,2024-01-15,completed
3,2,2024-02-03,returned
4,3,2024-02-10,completed
`,

	"models/staging/schema.yaml": `defaults:
  materialized: view

models:
  - name: stg_customers
    description: One row per customer.
    columns:
      - name: customer_id
        tests: [unique, not_null]
  - name: stg_orders
    description: One row per order.
    columns:
      - name: order_id
        tests: [unique, not_null]
      - name: status
        tests:
          - accepted_values:
              values: [completed, returned]
`,

	"models/staging/stg_customers.sql": `SELECT
    id AS customer_id,
    name
FROM {{ ref('raw_customers') }}
`,

	"models/staging/stg_orders.sql": `SELECT
    id AS order_id,
    customer_id,
    order_date,
    status
FROM {{ ref('raw_orders') }}
`,

	"models/marts/schema.yaml": `models:
  - name: customer_orders
    description: Lifetime order summary per customer.
    columns:
      - name: customer_id
        tests:
          - unique
          - not_null
          - relationships:
              to: ref('stg_customers')
              field: customer_id
      - name: order_count
        tests:
          - expression: "order_count >= 0"
`,

	"models/marts/customer_orders.sql": `/*---
materialized: table
---*/
SELECT
    c.customer_id,
    c.name,
    COUNT(o.order_id) AS order_count,
    MIN(o.order_date) AS first_order,
    MAX(o.order_date) AS latest_order
FROM {{ ref('stg_customers') }} c
LEFT JOIN {{ ref('stg_orders') }} o
    ON o.customer_id = c.customer_id
GROUP BY c.customer_id, c.name
`,
}
