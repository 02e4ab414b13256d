package storage

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/scrap-tracking/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Save(a *models.Assignment) error {
	var slotDate, slotWindow string
	if a.PickupSlot != nil {
		slotDate, slotWindow = a.PickupSlot.Date, a.PickupSlot.Slot
	}
	// upsert: reconciliation saves through the same path as accept
	_, err := p.db.Exec(`INSERT INTO assignments(id, order_id, scrapper_id, user_id, slot_date, slot_window, preferred_time, status, payment_status, paid_amount, picked_up_at, completed_at, accepted_at, version)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, payment_status=EXCLUDED.payment_status, paid_amount=EXCLUDED.paid_amount,
			picked_up_at=EXCLUDED.picked_up_at, completed_at=EXCLUDED.completed_at, version=EXCLUDED.version, updated_at=now()`,
		a.ID, a.OrderID, a.ScrapperID, a.UserID, slotDate, slotWindow, a.PreferredTime, a.Status, a.PaymentStatus, a.PaidAmount, a.PickedUpAt, a.CompletedAt, a.AcceptedAt, a.Version)
	return err
}

func (p *PostgresStore) Update(a *models.Assignment) error {
	res, err := p.db.Exec(`UPDATE assignments SET status=$1, payment_status=$2, paid_amount=$3, picked_up_at=$4, completed_at=$5, version=$6, updated_at=$7 WHERE id=$8`,
		a.Status, a.PaymentStatus, a.PaidAmount, a.PickedUpAt, a.CompletedAt, a.Version, time.Now(), a.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) Get(id string) (*models.Assignment, error) {
	row := p.db.QueryRow(`SELECT id, order_id, scrapper_id, user_id, slot_date, slot_window, preferred_time, status, payment_status, paid_amount, accepted_at, picked_up_at, completed_at, archived_at, version
		FROM assignments WHERE id=$1`, id)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return a, err
}

func (p *PostgresStore) ListActiveByScrapper(scrapperID string) ([]models.Assignment, error) {
	rows, err := p.db.Query(`SELECT id, order_id, scrapper_id, user_id, slot_date, slot_window, preferred_time, status, payment_status, paid_amount, accepted_at, picked_up_at, completed_at, archived_at, version
		FROM assignments WHERE scrapper_id=$1 AND status <> 'completed'`, scrapperID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Archive(id string) error {
	res, err := p.db.Exec(`UPDATE assignments SET archived_at=now(), updated_at=now() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) CountCompletedByScrapper(scrapperID string) (int, error) {
	var n int
	err := p.db.QueryRow(`SELECT count(*) FROM assignments WHERE scrapper_id=$1 AND status='completed'`, scrapperID).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(r rowScanner) (*models.Assignment, error) {
	var a models.Assignment
	var slotDate, slotWindow sql.NullString
	var pickedUp, completed, archived sql.NullTime
	err := r.Scan(&a.ID, &a.OrderID, &a.ScrapperID, &a.UserID, &slotDate, &slotWindow, &a.PreferredTime,
		&a.Status, &a.PaymentStatus, &a.PaidAmount, &a.AcceptedAt, &pickedUp, &completed, &archived, &a.Version)
	if err != nil {
		return nil, err
	}
	if slotDate.Valid || slotWindow.Valid {
		a.PickupSlot = &models.PickupSlot{Date: slotDate.String, Slot: slotWindow.String}
	}
	if pickedUp.Valid {
		t := pickedUp.Time
		a.PickedUpAt = &t
	}
	if completed.Valid {
		t := completed.Time
		a.CompletedAt = &t
	}
	if archived.Valid {
		t := archived.Time
		a.ArchivedAt = &t
	}
	return &a, nil
}
