// Package schema implements the Schema Inspector (C4): discovering a
// tenant database's tables, columns, and FULLTEXT indexes so the
// orchestrator (C5) knows which columns it may search.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/altus4/core/internal/models"
)

// textLikeTypes are MySQL column types eligible for LIKE-fallback
// searching when no FULLTEXT index covers them.
var textLikeTypes = map[string]bool{
	"char": true, "varchar": true, "text": true, "tinytext": true,
	"mediumtext": true, "longtext": true,
}

// Inspector discovers table schemas for a tenant connection.
type Inspector struct{}

// New builds an Inspector. It holds no state; every call takes the
// *sql.DB to inspect explicitly so the registry's pooled connections stay
// the single owner of connection lifecycle.
func New() *Inspector {
	return &Inspector{}
}

// Discover enumerates every base table in db's current database,
// classifying searchable columns and FULLTEXT coverage for each.
func (i *Inspector) Discover(ctx context.Context, db *sql.DB, connectionID string) ([]models.TableSchema, error) {
	tables, err := i.listTables(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	out := make([]models.TableSchema, 0, len(tables))
	for _, table := range tables {
		ts, err := i.describeTable(ctx, db, connectionID, table)
		if err != nil {
			return nil, fmt.Errorf("describe table %q: %w", table, err)
		}
		out = append(out, ts)
	}
	return out, nil
}

func (i *Inspector) listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (i *Inspector) describeTable(ctx context.Context, db *sql.DB, connectionID, table string) (models.TableSchema, error) {
	columns, err := i.describeColumns(ctx, db, table)
	if err != nil {
		return models.TableSchema{}, err
	}

	fullTextCols, err := i.fullTextColumns(ctx, db, table)
	if err != nil {
		return models.TableSchema{}, err
	}
	fullTextSet := make(map[string]bool, len(fullTextCols))
	for _, c := range fullTextCols {
		fullTextSet[c] = true
	}

	for idx := range columns {
		if fullTextSet[columns[idx].Name] {
			columns[idx].HasFullText = true
		}
	}

	rowEstimate, err := i.estimateRows(ctx, db, table)
	if err != nil {
		return models.TableSchema{}, err
	}

	return models.TableSchema{
		ConnectionID:    connectionID,
		TableName:       table,
		Columns:         columns,
		FullTextColumns: fullTextCols,
		EstimatedRows:   rowEstimate,
		DiscoveredAt:    time.Now(),
	}, nil
}

func (i *Inspector) describeColumns(ctx context.Context, db *sql.DB, table string) ([]models.ColumnSchema, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("DESCRIBE `%s`", escapeIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ColumnSchema
	for rows.Next() {
		var field, colType, null, key, extra string
		var defaultVal sql.NullString
		if err := rows.Scan(&field, &colType, &null, &key, &defaultVal, &extra); err != nil {
			return nil, err
		}
		baseType := strings.ToLower(strings.SplitN(colType, "(", 2)[0])
		out = append(out, models.ColumnSchema{
			Name:         field,
			DataType:     baseType,
			IsSearchable: textLikeTypes[baseType],
		})
	}
	return out, rows.Err()
}

// fullTextColumns groups SHOW INDEX rows by Key_name, returning the
// column names covered by any FULLTEXT index.
func (i *Inspector) fullTextColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SHOW INDEX FROM `%s`", escapeIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var fullText []string
	for rows.Next() {
		vals := make([]sql.RawBytes, len(cols))
		scanArgs := make([]interface{}, len(cols))
		for idx := range vals {
			scanArgs[idx] = &vals[idx]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, err
		}

		rowMap := make(map[string]string, len(cols))
		for idx, col := range cols {
			rowMap[strings.ToLower(col)] = string(vals[idx])
		}

		if strings.EqualFold(rowMap["index_type"], "FULLTEXT") {
			fullText = append(fullText, rowMap["column_name"])
		}
	}
	return fullText, rows.Err()
}

func (i *Inspector) estimateRows(ctx context.Context, db *sql.DB, table string) (int64, error) {
	var estimate sql.NullInt64
	row := db.QueryRowContext(ctx,
		"SELECT TABLE_ROWS FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?", table)
	if err := row.Scan(&estimate); err != nil {
		return 0, err
	}
	return estimate.Int64, nil
}

// escapeIdent defends against backtick injection in identifiers pulled
// from SHOW TABLES; MySQL table names cannot themselves contain
// backticks once escaped this way.
func escapeIdent(ident string) string {
	return strings.ReplaceAll(ident, "`", "``")
}
