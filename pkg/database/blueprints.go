package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/calliq/qaengine/pkg/apperrors"
	"github.com/calliq/qaengine/pkg/models"
)

// CreateBlueprint inserts a new draft Blueprint.
func (c *Client) CreateBlueprint(ctx context.Context, bp *models.Blueprint) error {
	stages, err:= json.Marshal(bp.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO blueprints (id, company_id, name, description, status, version_number, stages, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		bp.ID, bp.CompanyID, bp.Name, bp.Description, bp.Status, bp.VersionNumber, stages, bp.CreatedBy, bp.CreatedAt, bp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert blueprint: %w", err)
	}
	return nil
}

// UpdateBlueprint overwrites a draft Blueprint's editable fields. Callers
// are responsible for rejecting edits to a published/archived Blueprint
// (authoring state machine); this is a pure persistence write.
func (c *Client) UpdateBlueprint(ctx context.Context, bp *models.Blueprint) error {
	stages, err:= json.Marshal(bp.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}
	bp.UpdatedAt = time.Now()
	res, err:= c.db.ExecContext(ctx, `
		UPDATE blueprints SET name = $2, description = $3, status = $4, version_number = $5,
		compiled_flow_version_id = $6, stages = $7, updated_at = $8
		WHERE id = $1`,
		bp.ID, bp.Name, bp.Description, bp.Status, bp.VersionNumber, bp.CompiledFlowVersionID, stages, bp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update blueprint: %w", err)
	}
	return requireRowsAffected(res)
}

// GetBlueprint loads a Blueprint by id.
func (c *Client) GetBlueprint(ctx context.Context, id string) (*models.Blueprint, error) {
	row:= c.db.QueryRowContext(ctx, `
		SELECT id, company_id, name, description, status, version_number, compiled_flow_version_id, stages, created_by, created_at, updated_at
		FROM blueprints WHERE id = $1`, id)
		return scanBlueprint(row)
	}

	// ListBlueprints returns every non-archived Blueprint for a company,
	// newest first, unless includeArchived is set.
	func (c *Client) ListBlueprints(ctx context.Context, companyID string, includeArchived bool) ([]*models.Blueprint, error) {
		query:= `SELECT id, company_id, name, description, status, version_number, compiled_flow_version_id, stages, created_by, created_at, updated_at
		FROM blueprints WHERE company_id = $1`
		if !includeArchived {
			query += ` AND status <> 'archived'`
		}
		query += ` ORDER BY created_at DESC`

		rows, err:= c.db.QueryContext(ctx, query, companyID)
		if err != nil {
			return nil, fmt.Errorf("list blueprints: %w", err)
		}
		defer rows.Close()

		var out []*models.Blueprint
		for rows.Next() {
			bp, err:= scanBlueprintRows(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, bp)
		}
		return out, rows.Err()
	}

	type rowScanner interface {
		Scan(dest...any) error
	}

	func scanBlueprint(row *sql.Row) (*models.Blueprint, error) {
		return scanBlueprintScanner(row)
	}

	func scanBlueprintRows(rows *sql.Rows) (*models.Blueprint, error) {
		return scanBlueprintScanner(rows)
	}

	func scanBlueprintScanner(row rowScanner) (*models.Blueprint, error) {
		var bp models.Blueprint
		var stages []byte
		var compiledFlowVersionID sql.NullString
		err:= row.Scan(&bp.ID, &bp.CompanyID, &bp.Name, &bp.Description, &bp.Status, &bp.VersionNumber,
			&compiledFlowVersionID, &stages, &bp.CreatedBy, &bp.CreatedAt, &bp.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("scan blueprint: %w", err)
		}
		if compiledFlowVersionID.Valid {
			bp.CompiledFlowVersionID = &compiledFlowVersionID.String
		}
		if err:= json.Unmarshal(stages, &bp.Stages); err != nil {
			return nil, fmt.Errorf("unmarshal stages: %w", err)
		}
		return &bp, nil
	}

	// GetBlueprintVersion loads an immutable published snapshot by id.
	func (c *Client) GetBlueprintVersion(ctx context.Context, blueprintVersionID string) (*models.BlueprintVersion, error) {
		row:= c.db.QueryRowContext(ctx, `
			SELECT id, blueprint_id, version_number, snapshot, compiled_flow_version_id, published_by, publish_note, created_at
			FROM blueprint_versions WHERE id = $1`, blueprintVersionID)

			var v models.BlueprintVersion
			var snapshot []byte
			var compiledFlowVersionID sql.NullString
			err:= row.Scan(&v.ID, &v.BlueprintID, &v.VersionNumber, &snapshot, &compiledFlowVersionID, &v.PublishedBy, &v.PublishNote, &v.CreatedAt)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, apperrors.ErrNotFound
			}
			if err != nil {
				return nil, fmt.Errorf("scan blueprint version: %w", err)
			}
			if compiledFlowVersionID.Valid {
				v.CompiledFlowVersionID = &compiledFlowVersionID.String
			}
			if err:= json.Unmarshal(snapshot, &v.Snapshot); err != nil {
				return nil, fmt.Errorf("unmarshal snapshot: %w", err)
			}
			return &v, nil
		}

		// PublishBlueprint snapshots bp into a new BlueprintVersion and flips the
		// Blueprint to published, atomically ("publishing freezes an
		// immutable snapshot").
		func (c *Client) PublishBlueprint(ctx context.Context, bp *models.Blueprint, version *models.BlueprintVersion) error {
			tx, err:= c.db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("begin publish transaction: %w", err)
			}
			defer func() { _ = tx.Rollback() }()

			snapshot, err:= json.Marshal(version.Snapshot)
			if err != nil {
				return fmt.Errorf("marshal snapshot: %w", err)
			}
			if _, err:= tx.ExecContext(ctx, `
				INSERT INTO blueprint_versions (id, blueprint_id, version_number, snapshot, published_by, publish_note, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				version.ID, version.BlueprintID, version.VersionNumber, snapshot, version.PublishedBy, version.PublishNote, version.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert blueprint version: %w", err)
			}

			stages, err:= json.Marshal(bp.Stages)
			if err != nil {
				return fmt.Errorf("marshal stages: %w", err)
			}
			if _, err:= tx.ExecContext(ctx, `
				UPDATE blueprints SET status = $2, version_number = $3, stages = $4, updated_at = $5 WHERE id = $1`,
				bp.ID, bp.Status, bp.VersionNumber, stages, bp.UpdatedAt,
			); err != nil {
				return fmt.Errorf("update blueprint on publish: %w", err)
			}

			return tx.Commit()
		}

		// CompiledFlowVersionForBlueprintVersion implements pkg/blueprint.Store:
		// idempotent recompilation looks up any flow already compiled for this
		// blueprint version before doing the work again.
		func (c *Client) CompiledFlowVersionForBlueprintVersion(ctx context.Context, blueprintVersionID string) (string, bool, error) {
			var id string
			err:= c.db.QueryRowContext(ctx, `
				SELECT id FROM compiled_flow_versions WHERE blueprint_version_id = $1`, blueprintVersionID).Scan(&id)
				if errors.Is(err, sql.ErrNoRows) {
					return "", false, nil
				}
				if err != nil {
					return "", false, fmt.Errorf("lookup compiled flow version: %w", err)
				}
				return id, true, nil
			}

			// PersistCompiledFlowVersion implements pkg/blueprint.Store: writes the
			// compiled artifact and updates both the Blueprint and, when applicable,
			// its BlueprintVersion to reference it, all in one transaction.
			func (c *Client) PersistCompiledFlowVersion(ctx context.Context, bp *models.Blueprint, blueprintVersionID string, flow *models.CompiledFlowVersion) error {
				tx, err:= c.db.BeginTx(ctx, nil)
				if err != nil {
					return fmt.Errorf("begin compile transaction: %w", err)
				}
				defer func() { _ = tx.Rollback() }()

				stages, err:= json.Marshal(flow.Stages)
				if err != nil {
					return fmt.Errorf("marshal compiled stages: %w", err)
				}
				rules, err:= json.Marshal(flow.ComplianceRules)
				if err != nil {
					return fmt.Errorf("marshal compliance rules: %w", err)
				}
				rubric, err:= json.Marshal(flow.RubricTemplate)
				if err != nil {
					return fmt.Errorf("marshal rubric template: %w", err)
				}

				if _, err:= tx.ExecContext(ctx, `
					INSERT INTO compiled_flow_versions (id, blueprint_id, blueprint_version_id, compiled_at, stages, compliance_rules, rubric_template)
					VALUES ($1, $2, $3, $4, $5, $6, $7)`,
					flow.ID, flow.BlueprintID, blueprintVersionID, flow.CompiledAt, stages, rules, rubric,
				); err != nil {
					return fmt.Errorf("insert compiled flow version: %w", err)
				}

				if _, err:= tx.ExecContext(ctx, `
					UPDATE blueprints SET compiled_flow_version_id = $2 WHERE id = $1`,
					bp.ID, flow.ID,
				); err != nil {
					return fmt.Errorf("update blueprint compiled flow version: %w", err)
				}

				if _, err:= tx.ExecContext(ctx, `
					UPDATE blueprint_versions SET compiled_flow_version_id = $2 WHERE id = $1`,
					blueprintVersionID, flow.ID,
				); err != nil {
					return fmt.Errorf("update blueprint version compiled flow version: %w", err)
				}

				return tx.Commit()
			}

			// GetCompiledFlowVersion implements pkg/pipeline.Store.
			func (c *Client) GetCompiledFlowVersion(ctx context.Context, id string) (*models.CompiledFlowVersion, error) {
				row:= c.db.QueryRowContext(ctx, `
					SELECT id, blueprint_id, compiled_at, stages, compliance_rules, rubric_template
					FROM compiled_flow_versions WHERE id = $1`, id)

					var flow models.CompiledFlowVersion
					var stages, rules, rubric []byte
					err:= row.Scan(&flow.ID, &flow.BlueprintID, &flow.CompiledAt, &stages, &rules, &rubric)
					if errors.Is(err, sql.ErrNoRows) {
						return nil, apperrors.ErrNotFound
					}
					if err != nil {
						return nil, fmt.Errorf("scan compiled flow version: %w", err)
					}
					if err:= json.Unmarshal(stages, &flow.Stages); err != nil {
						return nil, fmt.Errorf("unmarshal compiled stages: %w", err)
					}
					if err:= json.Unmarshal(rules, &flow.ComplianceRules); err != nil {
						return nil, fmt.Errorf("unmarshal compliance rules: %w", err)
					}
					if err:= json.Unmarshal(rubric, &flow.RubricTemplate); err != nil {
						return nil, fmt.Errorf("unmarshal rubric template: %w", err)
					}
					return &flow, nil
				}

				func requireRowsAffected(res sql.Result) error {
					n, err:= res.RowsAffected()
					if err != nil {
						return fmt.Errorf("rows affected: %w", err)
					}
					if n == 0 {
						return apperrors.ErrNotFound
					}
					return nil
				}
