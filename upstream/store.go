/*
Package upstream is a SQLite-backed simulator of the welfare API.

PURPOSE:
  Development and integration testing need an upstream that speaks the real
  contract: the response envelope, 1-based pagination fields, bearer auth
  with refresh, and the mutation side effects (a paid bill flips to paid,
  a wallet payment debits the balance). This package provides it: a seeded
  SQLite store plus a chi router serving the same paths the client adapter
  calls.

  Use ":memory:" for tests; a file path keeps dev data across restarts.

SEE ALSO:
  - server.go: the router and handlers
  - client package: the consumer of this contract
*/
package upstream

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the simulator database.
type Store struct {
	db *sql.DB
}

// NewStore opens (and migrates + seeds) the simulator database.
// Use ":memory:" for an in-memory database.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := s.seed(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS facilities (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		interest_rate TEXT NOT NULL DEFAULT '0',
		repayment_months INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'open',
		deadline TEXT,
		description TEXT,
		guarantor_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS facility_requests (
		id TEXT PRIMARY KEY,
		facility_id TEXT NOT NULL REFERENCES facilities(id),
		amount TEXT NOT NULL,
		months INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		tracking_code TEXT,
		submitted_at TEXT
	);

	CREATE TABLE IF NOT EXISTS surveys (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		deadline TEXT,
		question_count INTEGER NOT NULL DEFAULT 0,
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS survey_responses (
		id TEXT PRIMARY KEY,
		survey_id TEXT NOT NULL REFERENCES surveys(id),
		submitted_at TEXT
	);

	CREATE TABLE IF NOT EXISTS tours (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		destination TEXT,
		start_date TEXT,
		end_date TEXT,
		price TEXT NOT NULL DEFAULT '0',
		capacity INTEGER NOT NULL DEFAULT 0,
		remaining INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'open'
	);

	CREATE TABLE IF NOT EXISTS tour_reservations (
		id TEXT PRIMARY KEY,
		tour_id TEXT NOT NULL REFERENCES tours(id),
		travelers INTEGER NOT NULL DEFAULT 1,
		total_price TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'reserved',
		reserved_at TEXT
	);

	CREATE TABLE IF NOT EXISTS accommodations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		city TEXT,
		type TEXT,
		nightly_rate TEXT NOT NULL DEFAULT '0',
		capacity INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'available'
	);

	CREATE TABLE IF NOT EXISTS stay_reservations (
		id TEXT PRIMARY KEY,
		accommodation_id TEXT NOT NULL REFERENCES accommodations(id),
		check_in TEXT,
		check_out TEXT,
		rooms INTEGER NOT NULL DEFAULT 1,
		total_price TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'reserved'
	);

	CREATE TABLE IF NOT EXISTS bills (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'due',
		issued_at TEXT,
		due_date TEXT,
		payment_id TEXT
	);

	CREATE TABLE IF NOT EXISTS wallet (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0',
		currency TEXT NOT NULL DEFAULT 'IRR',
		last_updated TEXT
	);

	CREATE TABLE IF NOT EXISTS wallet_transactions (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT,
		reference TEXT,
		created_at TEXT
	);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		amount TEXT NOT NULL,
		target TEXT,
		target_type TEXT,
		status TEXT NOT NULL DEFAULT 'paid',
		tracking_ref TEXT,
		paid_at TEXT
	);

	CREATE TABLE IF NOT EXISTS discounts (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		title TEXT,
		percent INTEGER NOT NULL DEFAULT 0,
		amount TEXT NOT NULL DEFAULT '0',
		expires_at TEXT,
		redeemed INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		body TEXT,
		type TEXT,
		read INTEGER NOT NULL DEFAULT 0,
		created_at TEXT
	);

	CREATE TABLE IF NOT EXISTS member (
		id TEXT PRIMARY KEY,
		national_id TEXT,
		first_name TEXT,
		last_name TEXT,
		email TEXT,
		phone TEXT,
		member_number TEXT,
		joined_at TEXT
	);

	CREATE TABLE IF NOT EXISTS dependents (
		id TEXT PRIMARY KEY,
		name TEXT,
		relation TEXT,
		birth_date TEXT
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// seed loads fixture data on first run (idempotent: skipped when the
// member record already exists).
func (s *Store) seed() error {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM member`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	fixtures := []string{
		`INSERT INTO member VALUES ('m-1','0012345678','Sara','Mohammadi','sara@example.com','09120000000','WF-1023','2021-03-14')`,
		`INSERT INTO dependents VALUES ('d-1','Ali Mohammadi','child','2014-06-01'),('d-2','Reza Mohammadi','spouse','1988-01-20')`,
		`INSERT INTO wallet VALUES ('w-1','m-1','20000000','IRR','2026-01-01T00:00:00Z')`,
		`INSERT INTO facilities VALUES
			('f-1','Marriage loan','loan','500000000','4',60,'open','2026-12-01','Interest-subsidized marriage loan',2),
			('f-2','Housing deposit loan','loan','900000000','8',48,'open','2026-10-15','Deposit assistance for renters',2),
			('f-3','Education grant','grant','60000000','0',0,'open',NULL,'One-time tuition grant',0),
			('f-4','Emergency credit','credit','150000000','2',24,'closed',NULL,'Short-term emergency credit line',1)`,
		`INSERT INTO facility_requests VALUES
			('fr-1','f-3','60000000',0,'approved','TRK-8841','2025-11-02'),
			('fr-2','f-1','500000000',60,'pending','TRK-9102','2026-01-18')`,
		`INSERT INTO surveys VALUES
			('s-1','Housing needs assessment','open','2026-09-30',12,'Annual housing survey'),
			('s-2','Tour satisfaction','open',NULL,6,'Feedback on spring tours'),
			('s-3','Cafeteria quality','closed',NULL,8,NULL)`,
		`INSERT INTO survey_responses VALUES ('sr-1','s-3','2025-12-20')`,
		`INSERT INTO tours VALUES
			('t-1','Mashhad pilgrimage','Mashhad','2026-10-05','2026-10-09','45000000',40,12,'open'),
			('t-2','Kish island','Kish','2026-11-12','2026-11-16','82000000',30,0,'full')`,
		`INSERT INTO accommodations VALUES
			('a-1','Ramsar guesthouse','Ramsar','guesthouse','9000000',6,'available'),
			('a-2','Mashhad suite','Mashhad','hotel','14000000',4,'available')`,
		`INSERT INTO bills VALUES
			('b-1','electricity','3200000','due','2026-08-01','2026-08-25',NULL),
			('b-2','water','1100000','due','2026-08-03','2026-08-28',NULL),
			('b-3','phone','780000','paid','2026-07-01','2026-07-25','p-1')`,
		`INSERT INTO payments VALUES ('p-1','780000','b-3','bill','paid','PR-1201','2026-07-20T10:00:00Z')`,
		`INSERT INTO wallet_transactions VALUES
			('tx-1','deposit','5000000','monthly allowance',NULL,'2026-07-01T00:00:00Z'),
			('tx-2','payment','-780000','phone bill','p-1','2026-07-20T10:00:00Z')`,
		`INSERT INTO discounts VALUES
			('dc-1','SPRING26','Spring tour discount',15,'0','2026-09-01',0),
			('dc-2','WELCOME','Welcome credit',0,'2000000',NULL,1)`,
		`INSERT INTO notifications VALUES
			('n-1','Facility request approved','Your education grant was approved.','facility',0,'2026-08-20T08:00:00Z'),
			('n-2','New survey','Housing needs assessment is open.','survey',0,'2026-08-22T08:00:00Z'),
			('n-3','Bill due soon','Electricity bill due on 2026-08-25.','bill',1,'2026-08-10T08:00:00Z')`,
	}
	for _, q := range fixtures {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// countAndPage runs the shared COUNT + LIMIT/OFFSET pair for a listing.
func (s *Store) countAndPage(countQuery string, args []any, page, size int) (total, limit, offset int, err error) {
	if err = s.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return 0, 0, 0, err
	}
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	return total, size, (page - 1) * size, nil
}
