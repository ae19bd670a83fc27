package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"
	"time"

	"rfm-segments/pkg/models"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Open DSN mariadb:// ou mysql:// → format MySQL driver
func Open(dsn string) (*sql.DB, string, error) {
	mysqlDSN, err := toMySQLDSN(dsn)
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		return nil, "", err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, mysqlDSN, nil
}

func toMySQLDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "mariadb://") || strings.HasPrefix(dsn, "mysql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		user := ""
		pass := ""
		if u.User != nil {
			user = u.User.Username()
			pw, _ := u.User.Password()
			pass = pw
		}
		host := u.Host
		db := strings.TrimPrefix(u.Path, "/")
		if user == "" || host == "" || db == "" {
			return "", fmt.Errorf("dsn incomplet (user/host/db)")
		}
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&interpolateParams=true",
			user, pass, host, db), nil
	}
	return dsn, nil
}

func checkTable(tableName string) error {
	if !tableNameRe.MatchString(tableName) {
		return fmt.Errorf("table invalide: %q", tableName)
	}
	return nil
}

// rawLine est une ligne de facture telle que lue, avant nettoyage.
type rawLine struct {
	CustomerID  sql.NullString
	InvoiceID   sql.NullString
	Quantity    sql.NullInt64
	UnitPrice   decimal.NullDecimal
	InvoiceDate sql.NullTime
}

// clean applique les règles de nettoyage : client, facture et date obligatoires,
// quantité et prix non négatifs. Renvoie false si la ligne doit être écartée.
func clean(r rawLine) (models.Transaction, bool) {
	if !r.CustomerID.Valid || strings.TrimSpace(r.CustomerID.String) == "" {
		return models.Transaction{}, false
	}
	if !r.InvoiceID.Valid || r.InvoiceID.String == "" || !r.InvoiceDate.Valid {
		return models.Transaction{}, false
	}
	if !r.Quantity.Valid || r.Quantity.Int64 < 0 {
		return models.Transaction{}, false
	}
	if !r.UnitPrice.Valid || r.UnitPrice.Decimal.IsNegative() {
		return models.Transaction{}, false
	}
	return models.Transaction{
		CustomerID:  strings.TrimSpace(r.CustomerID.String),
		InvoiceID:   r.InvoiceID.String,
		Quantity:    r.Quantity.Int64,
		UnitPrice:   r.UnitPrice.Decimal,
		InvoiceDate: r.InvoiceDate.Time.UTC(),
	}, true
}

func transactionsQuery(tableName string) string {
	return fmt.Sprintf(`
		SELECT il.CustomerID, il.InvoiceNo, il.Quantity, il.UnitPrice, il.InvoiceDate
		FROM %s il
		WHERE il.InvoiceDate >= ? AND il.InvoiceDate < ?
		ORDER BY il.InvoiceDate, il.InvoiceNo
	`, tableName)
}

// LoadTransactions lit les lignes de facture de [from, to) et renvoie les transactions nettoyées.
func LoadTransactions(ctx context.Context, db *sql.DB, tableName string, from, to time.Time) ([]models.Transaction, error) {
	if err := checkTable(tableName); err != nil {
		return nil, err
	}

	// Toujours en UTC, au format DATETIME MySQL
	const layout = "2006-01-02 15:04:05"
	rows, err := db.QueryContext(ctx, transactionsQuery(tableName), from.UTC().Format(layout), to.UTC().Format(layout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	read := 0
	var out []models.Transaction
	for rows.Next() {
		read++
		var r rawLine
		if err := rows.Scan(&r.CustomerID, &r.InvoiceID, &r.Quantity, &r.UnitPrice, &r.InvoiceDate); err != nil {
			return nil, err
		}
		tx, ok := clean(r)
		if !ok {
			continue
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	log.Printf("[DEBUG] Lignes lues=%d, conservées=%d, écartées=%d", read, len(out), read-len(out))
	return out, nil
}

// SaveSegments écrit la table par client d'une exécution, dans une seule transaction SQL.
func SaveSegments(ctx context.Context, db *sql.DB, tableName string, runID uuid.UUID, analysisDate time.Time, rows []models.CustomerRow) error {
	if err := checkTable(tableName); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertSegmentQuery(tableName))
	if err != nil {
		return err
	}
	defer stmt.Close()

	day := analysisDate.UTC().Format("2006-01-02")
	for _, r := range rows {
		a, s := r.Aggregate, r.Score
		if _, err := stmt.ExecContext(ctx,
			runID.String(), day, a.CustomerID,
			a.RecencyDays, a.Frequency, a.Monetary.String(),
			s.RecencyScore, s.FrequencyScore, s.MonetaryScore, s.Composite,
			r.Cluster,
		); err != nil {
			return fmt.Errorf("insert %s: %w", a.CustomerID, err)
		}
	}
	return tx.Commit()
}

func insertSegmentQuery(tableName string) string {
	return fmt.Sprintf(`
		INSERT INTO %s
			(RunID, AnalysisDate, CustomerID, RecencyDays, Frequency, Monetary,
			 RecencyScore, FrequencyScore, MonetaryScore, RFMScore, Cluster)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tableName)
}
