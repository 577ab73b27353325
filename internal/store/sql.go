package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"sales-insights/internal/models"
)

const dateLayout = "2006-01-02"

// columns lists sales_master columns in bind order after tenant_id.
var columns = []string{
	"invoice_no", "line_no", "customer_name", "item_name", "category",
	"quantity", "rate", "amount", "sale_date",
	"state", "city", "district", "town",
	"year", "month", "fiscal_year", "fiscal_quarter",
	"tax_rate", "cgst", "sgst", "igst", "tax_amount", "gross_amount", "tax_status",
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sales_master (
		tenant_id      TEXT             NOT NULL,
		invoice_no     TEXT             NOT NULL,
		line_no        INTEGER          NOT NULL,
		customer_name  TEXT             NOT NULL,
		item_name      TEXT             NOT NULL,
		category       TEXT             NOT NULL DEFAULT '',
		quantity       DOUBLE PRECISION NOT NULL DEFAULT 0,
		rate           DOUBLE PRECISION NOT NULL DEFAULT 0,
		amount         DOUBLE PRECISION NOT NULL DEFAULT 0,
		sale_date      TEXT             NOT NULL,
		state          TEXT             NOT NULL DEFAULT '',
		city           TEXT             NOT NULL DEFAULT '',
		district       TEXT             NOT NULL DEFAULT '',
		town           TEXT             NOT NULL DEFAULT '',
		year           INTEGER          NOT NULL DEFAULT 0,
		month          TEXT             NOT NULL DEFAULT '',
		fiscal_year    TEXT             NOT NULL DEFAULT '',
		fiscal_quarter TEXT             NOT NULL DEFAULT '',
		tax_rate       DOUBLE PRECISION NOT NULL DEFAULT 0,
		cgst           DOUBLE PRECISION NOT NULL DEFAULT 0,
		sgst           DOUBLE PRECISION NOT NULL DEFAULT 0,
		igst           DOUBLE PRECISION NOT NULL DEFAULT 0,
		tax_amount     DOUBLE PRECISION NOT NULL DEFAULT 0,
		gross_amount   DOUBLE PRECISION NOT NULL DEFAULT 0,
		tax_status     TEXT             NOT NULL DEFAULT '',
		PRIMARY KEY (tenant_id, invoice_no, line_no)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_master_tenant_date ON sales_master (tenant_id, sale_date)`,
}

// dialect captures the differences between the SQL backends.
type dialect struct {
	name        string
	placeholder func(n int) string
}

var (
	sqliteDialect = dialect{
		name:        "sqlite",
		placeholder: func(int) string { return "?" },
	}
	postgresDialect = dialect{
		name:        "postgres",
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	}
)

// sqlStore implements Store over database/sql for both backends.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger

	upsertSQL string
	existsSQL string
	loadSQL   string
	clearSQL  string
}

func newSQLStore(db *sql.DB, d dialect, logger *slog.Logger) *sqlStore {
	s := &sqlStore{db: db, dialect: d, logger: logger}

	binds := make([]string, 0, len(columns)+1)
	for i := range len(columns) + 1 {
		binds = append(binds, d.placeholder(i+1))
	}
	updates := make([]string, 0, len(columns)-2)
	for _, c := range columns[2:] {
		updates = append(updates, c+" = excluded."+c)
	}

	s.upsertSQL = fmt.Sprintf(
		`INSERT INTO sales_master (tenant_id, %s) VALUES (%s)
		ON CONFLICT (tenant_id, invoice_no, line_no) DO UPDATE SET %s`,
		strings.Join(columns, ", "),
		strings.Join(binds, ", "),
		strings.Join(updates, ", "),
	)
	s.existsSQL = fmt.Sprintf(
		`SELECT COUNT(*) FROM sales_master WHERE tenant_id = %s AND invoice_no = %s AND line_no = %s`,
		d.placeholder(1), d.placeholder(2), d.placeholder(3),
	)
	s.loadSQL = fmt.Sprintf(
		`SELECT %s FROM sales_master WHERE tenant_id = %s ORDER BY sale_date, invoice_no, line_no`,
		strings.Join(columns, ", "), d.placeholder(1),
	)
	s.clearSQL = "DELETE FROM sales_master WHERE tenant_id = " + d.placeholder(1)
	return s
}

func (s *sqlStore) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: migrate: %w", s.dialect.name, err)
		}
	}
	return nil
}

func (s *sqlStore) Load(ctx context.Context, tenant string) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, s.loadSQL, tenant)
	if err != nil {
		return nil, fmt.Errorf("%s: load %s: %w", s.dialect.name, tenant, err)
	}
	defer rows.Close()

	out := []models.Transaction{}
	for rows.Next() {
		var (
			tx     models.Transaction
			date   string
			status string
		)
		if err := rows.Scan(
			&tx.InvoiceNo, &tx.LineNo, &tx.CustomerName, &tx.ItemName, &tx.Category,
			&tx.Quantity, &tx.Rate, &tx.Amount, &date,
			&tx.State, &tx.City, &tx.District, &tx.Town,
			&tx.Year, &tx.Month, &tx.FiscalYear, &tx.FiscalQuarter,
			&tx.TaxRate, &tx.CGST, &tx.SGST, &tx.IGST, &tx.TaxAmount, &tx.GrossAmount, &status,
		); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", s.dialect.name, err)
		}
		if tx.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("%s: invoice %s line %d: bad sale_date %q: %w", s.dialect.name, tx.InvoiceNo, tx.LineNo, date, err)
		}
		tx.TaxStatus = models.TaxStatus(status)
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: load %s: %w", s.dialect.name, tenant, err)
	}
	sortRecords(out)
	return out, nil
}

// Write upserts records inside one transaction and counts the keys that
// were already stored.
func (s *sqlStore) Write(ctx context.Context, tenant string, records []models.Transaction) (models.WriteResult, error) {
	var res models.WriteResult
	if len(records) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("%s: begin: %w", s.dialect.name, err)
	}
	defer tx.Rollback()

	exists, err := tx.PrepareContext(ctx, s.existsSQL)
	if err != nil {
		return res, fmt.Errorf("%s: prepare lookup: %w", s.dialect.name, err)
	}
	defer exists.Close()

	stmt, err := tx.PrepareContext(ctx, s.upsertSQL)
	if err != nil {
		return res, fmt.Errorf("%s: prepare upsert: %w", s.dialect.name, err)
	}
	defer stmt.Close()

	replaced := 0
	for _, r := range records {
		var n int
		if err := exists.QueryRowContext(ctx, tenant, r.InvoiceNo, r.LineNo).Scan(&n); err != nil {
			return res, fmt.Errorf("%s: lookup invoice %s line %d: %w", s.dialect.name, r.InvoiceNo, r.LineNo, err)
		}
		if n > 0 {
			replaced++
		}

		if _, err := stmt.ExecContext(ctx,
			tenant, r.InvoiceNo, r.LineNo, r.CustomerName, r.ItemName, r.Category,
			r.Quantity, r.Rate, r.Amount, r.Date.Format(dateLayout),
			r.State, r.City, r.District, r.Town,
			r.Year, r.Month, r.FiscalYear, r.FiscalQuarter,
			r.TaxRate, r.CGST, r.SGST, r.IGST, r.TaxAmount, r.GrossAmount, string(r.TaxStatus),
		); err != nil {
			return res, fmt.Errorf("%s: upsert invoice %s line %d: %w", s.dialect.name, r.InvoiceNo, r.LineNo, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("%s: commit: %w", s.dialect.name, err)
	}

	s.logger.Debug("records written", "driver", s.dialect.name, "tenant_id", tenant, "count", len(records), "replaced", replaced)
	return models.WriteResult{Written: len(records), Replaced: replaced}, nil
}

func (s *sqlStore) Clear(ctx context.Context, tenant string) error {
	res, err := s.db.ExecContext(ctx, s.clearSQL, tenant)
	if err != nil {
		return fmt.Errorf("%s: clear %s: %w", s.dialect.name, tenant, err)
	}
	if n, err := res.RowsAffected(); err == nil {
		s.logger.Info("tenant data cleared", "driver", s.dialect.name, "tenant_id", tenant, "deleted", n)
	}
	return nil
}

func (s *sqlStore) Tenants(ctx context.Context) ([]TenantSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tenant_id, COUNT(*) FROM sales_master GROUP BY tenant_id ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("%s: list tenants: %w", s.dialect.name, err)
	}
	defer rows.Close()

	out := []TenantSummary{}
	for rows.Next() {
		var t TenantSummary
		if err := rows.Scan(&t.Tenant, &t.Records); err != nil {
			return nil, fmt.Errorf("%s: scan tenant: %w", s.dialect.name, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
