// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/jeninmail/hermes-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrEventNotFound возвращается, если событие не найдено.
var (
	ErrEventNotFound = errors.New("event not found")
	// ErrEventExists возвращается при попытке создать событие с уже существующим API-ключом.
	ErrEventExists = errors.New("event with this api key already exists")
	// ErrLetterNotFound возвращается, если письмо не найдено.
	ErrLetterNotFound = errors.New("letter not found")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicateOrderID возвращается при коллизии публичного идентификатора заказа.
	ErrDuplicateOrderID = errors.New("order id already exists")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при сбоях сериализации и дедлоках.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
		}

		return err
	})
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateEvent создаёт новое событие с указанным хэшем API-ключа.
func (r *PostgresRepository) CreateEvent(ctx context.Context, name, apiKeyHash, theseusQueue string) (*model.Event, error) {
	var e model.Event
	err := r.pool.QueryRow(ctx,
		`INSERT INTO events (name, api_key_hash, theseus_queue)
		 VALUES ($1, $2, $3)
		 RETURNING id, name, api_key_hash, theseus_queue, balance_due_cents, letter_count, is_paid, created_at`,
		name, apiKeyHash, theseusQueue,
	).Scan(&e.ID, &e.Name, &e.APIKeyHash, &e.TheseusQueue, &e.BalanceDueCents, &e.LetterCount, &e.IsPaid, &e.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrEventExists
		}
		return nil, fmt.Errorf("create event: %w", err)
	}
	return &e, nil
}

// GetEventByAPIKeyHash возвращает событие по хэшу его API-ключа.
func (r *PostgresRepository) GetEventByAPIKeyHash(ctx context.Context, apiKeyHash string) (*model.Event, error) {
	return r.getEvent(ctx, `WHERE api_key_hash = $1`, apiKeyHash)
}

// GetEventByID возвращает событие по идентификатору.
func (r *PostgresRepository) GetEventByID(ctx context.Context, id int64) (*model.Event, error) {
	return r.getEvent(ctx, `WHERE id = $1`, id)
}

func (r *PostgresRepository) getEvent(ctx context.Context, where string, arg any) (*model.Event, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, api_key_hash, theseus_queue, balance_due_cents, letter_count, is_paid, created_at
		 FROM events `+where,
		arg,
	)

	var e model.Event
	err := row.Scan(&e.ID, &e.Name, &e.APIKeyHash, &e.TheseusQueue, &e.BalanceDueCents, &e.LetterCount, &e.IsPaid, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}

	return &e, nil
}

// CreateLetter сохраняет письмо и атомарно увеличивает счётчик писем и баланс
// события одним UPDATE, чтобы параллельные создания не теряли обновления.
func (r *PostgresRepository) CreateLetter(ctx context.Context, letter *model.Letter) (int64, error) {
	var id int64

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		err = tx.QueryRow(ctx,
			`INSERT INTO letters (
				letter_id, event_id,
				first_name, last_name, address_line_1, address_line_2,
				city, state, postal_code, country, recipient_email,
				mail_type, weight_grams, stamps_raw, stamps_formatted, notes,
				cost_cents, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			RETURNING id`,
			letter.LetterID, letter.EventID,
			letter.Recipient.FirstName, letter.Recipient.LastName,
			letter.Recipient.AddressLine1, nullIfEmpty(letter.Recipient.AddressLine2),
			letter.Recipient.City, letter.Recipient.State,
			letter.Recipient.PostalCode, letter.Recipient.Country,
			nullIfEmpty(letter.RecipientEmail),
			string(letter.MailType), letter.WeightGrams,
			letter.StampsRaw, letter.StampsFmt, nullIfEmpty(letter.Notes),
			letter.CostCents, string(model.LetterStatusQueued),
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert letter: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE events
			 SET letter_count = letter_count + 1,
			     balance_due_cents = balance_due_cents + $2
			 WHERE id = $1`,
			letter.EventID, letter.CostCents,
		)
		if err != nil {
			return fmt.Errorf("update event balance: %w", err)
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return 0, err
	}

	return id, nil
}

// SetLetterNotification сохраняет ссылку на сообщение чата для письма.
func (r *PostgresRepository) SetLetterNotification(ctx context.Context, letterID string, ref model.MessageRef) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE letters SET slack_channel_id = $2, slack_message_ts = $3 WHERE letter_id = $1`,
		letterID, ref.ChannelID, ref.MessageTS,
	)
	if err != nil {
		return fmt.Errorf("set letter notification: %w", err)
	}
	return nil
}

// GetLetterByLetterID возвращает письмо по его внешнему идентификатору Theseus.
func (r *PostgresRepository) GetLetterByLetterID(ctx context.Context, letterID string) (*model.Letter, error) {
	row := r.pool.QueryRow(ctx, letterSelect+` WHERE letter_id = $1`, letterID)
	return scanLetter(row)
}

// GetPendingLetters возвращает все письма в неконечных статусах для опроса
// внешней почтовой системы.
func (r *PostgresRepository) GetPendingLetters(ctx context.Context) ([]model.Letter, error) {
	rows, err := r.pool.Query(ctx,
		letterSelect+` WHERE status NOT IN ($1, $2) ORDER BY created_at`,
		string(model.LetterStatusShipped), string(model.LetterStatusFailed),
	)
	if err != nil {
		return nil, fmt.Errorf("select pending letters: %w", err)
	}
	defer rows.Close()

	var letters []model.Letter
	for rows.Next() {
		letter, err := scanLetter(rows)
		if err != nil {
			return nil, err
		}
		letters = append(letters, *letter)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return letters, nil
}

const letterSelect = `SELECT id, letter_id, event_id,
	first_name, last_name, address_line_1, COALESCE(address_line_2, ''),
	city, state, postal_code, country, COALESCE(recipient_email, ''),
	mail_type, weight_grams, stamps_raw, stamps_formatted, COALESCE(notes, ''),
	cost_cents, status, created_at, mailed_at,
	COALESCE(slack_channel_id, ''), COALESCE(slack_message_ts, '')
	FROM letters`

func scanLetter(row pgx.Row) (*model.Letter, error) {
	var (
		l        model.Letter
		mailType string
		status   string
	)
	err := row.Scan(
		&l.ID, &l.LetterID, &l.EventID,
		&l.Recipient.FirstName, &l.Recipient.LastName,
		&l.Recipient.AddressLine1, &l.Recipient.AddressLine2,
		&l.Recipient.City, &l.Recipient.State,
		&l.Recipient.PostalCode, &l.Recipient.Country,
		&l.RecipientEmail,
		&mailType, &l.WeightGrams, &l.StampsRaw, &l.StampsFmt, &l.Notes,
		&l.CostCents, &status, &l.CreatedAt, &l.MailedAt,
		&l.Notification.ChannelID, &l.Notification.MessageTS,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLetterNotFound
		}
		return nil, fmt.Errorf("scan letter: %w", err)
	}

	l.MailType = model.MailType(mailType)
	l.Status = model.LetterStatus(status)
	return &l, nil
}

// UpdateLetterStatus обновляет статус письма.
func (r *PostgresRepository) UpdateLetterStatus(ctx context.Context, letterID string, status model.LetterStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE letters SET status = $2 WHERE letter_id = $1`,
		letterID, string(status),
	)
	if err != nil {
		return fmt.Errorf("update letter status: %w", err)
	}
	return nil
}

// MarkLetterShipped переводит письмо в конечный статус shipped с отметкой времени отправки.
func (r *PostgresRepository) MarkLetterShipped(ctx context.Context, letterID string, mailedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE letters SET status = $2, mailed_at = $3 WHERE letter_id = $1`,
		letterID, string(model.LetterStatusShipped), mailedAt,
	)
	if err != nil {
		return fmt.Errorf("mark letter shipped: %w", err)
	}
	return nil
}

// CreateOrder сохраняет заказ и атомарно добавляет фиксированный сбор к балансу
// события. Коллизия публичного идентификатора возвращается как
// ErrDuplicateOrderID, чтобы вызывающая сторона сгенерировала новый.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order *model.Order, feeCents int64) (int64, error) {
	var id int64

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		err = tx.QueryRow(ctx,
			`INSERT INTO orders (order_id, event_id, order_text, status)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			order.OrderID, order.EventID, order.Text, string(model.OrderStatusPending),
		).Scan(&id)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return ErrDuplicateOrderID
			}
			return fmt.Errorf("insert order: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE events SET balance_due_cents = balance_due_cents + $2 WHERE id = $1`,
			order.EventID, feeCents,
		)
		if err != nil {
			return fmt.Errorf("update event balance: %w", err)
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return 0, err
	}

	return id, nil
}

// SetOrderNotification сохраняет ссылку на сообщение чата для заказа.
func (r *PostgresRepository) SetOrderNotification(ctx context.Context, orderID string, ref model.MessageRef) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE orders SET slack_channel_id = $2, slack_message_ts = $3 WHERE order_id = $1`,
		orderID, ref.ChannelID, ref.MessageTS,
	)
	if err != nil {
		return fmt.Errorf("set order notification: %w", err)
	}
	return nil
}

const orderSelect = `SELECT id, order_id, event_id, order_text, status,
	COALESCE(tracking_code, ''), COALESCE(fulfillment_note, ''),
	created_at, fulfilled_at,
	COALESCE(slack_channel_id, ''), COALESCE(slack_message_ts, '')
	FROM orders`

// GetOrderByPublicID возвращает заказ по его публичному идентификатору.
func (r *PostgresRepository) GetOrderByPublicID(ctx context.Context, orderID string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx, orderSelect+` WHERE order_id = $1`, orderID)

	var (
		o      model.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.OrderID, &o.EventID, &o.Text, &status,
		&o.Tracking, &o.Note,
		&o.CreatedAt, &o.FulfilledAt,
		&o.Notification.ChannelID, &o.Notification.MessageTS,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	o.Status = model.OrderStatus(status)
	return &o, nil
}

// FulfillOrder переводит заказ в конечный статус fulfilled с трекинг-кодом и заметкой.
func (r *PostgresRepository) FulfillOrder(ctx context.Context, orderID, tracking, note string, fulfilledAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders
		 SET status = $2, tracking_code = $3, fulfillment_note = $4, fulfilled_at = $5
		 WHERE order_id = $1`,
		orderID, string(model.OrderStatusFulfilled), nullIfEmpty(tracking), nullIfEmpty(note), fulfilledAt,
	)
	if err != nil {
		return fmt.Errorf("fulfill order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// UpdateOrderTracking изменяет только трекинг-код заказа, не трогая
// fulfilled_at и заметку.
func (r *PostgresRepository) UpdateOrderTracking(ctx context.Context, orderID, tracking string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET tracking_code = $2 WHERE order_id = $1`,
		orderID, tracking,
	)
	if err != nil {
		return fmt.Errorf("update order tracking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// MarkEventPaid сбрасывает баланс события и помечает его оплаченным.
// Возвращает баланс до сброса. Стоимости отдельных писем не изменяются:
// это исторические факты.
func (r *PostgresRepository) MarkEventPaid(ctx context.Context, eventID int64) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Блокируем строку события, чтобы зафиксировать баланс до сброса
	// при параллельных созданиях писем.
	var previous int64
	err = tx.QueryRow(ctx,
		`SELECT balance_due_cents FROM events WHERE id = $1 FOR UPDATE`,
		eventID,
	).Scan(&previous)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrEventNotFound
		}
		return 0, fmt.Errorf("lock event for update: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE events SET balance_due_cents = 0, is_paid = TRUE WHERE id = $1`,
		eventID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark event paid: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return previous, nil
}

// GetUnpaidEvents возвращает события с ненулевым балансом.
func (r *PostgresRepository) GetUnpaidEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, api_key_hash, theseus_queue, balance_due_cents, letter_count, is_paid, created_at
		 FROM events
		 WHERE balance_due_cents > 0
		 ORDER BY balance_due_cents DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select unpaid events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.Name, &e.APIKeyHash, &e.TheseusQueue, &e.BalanceDueCents, &e.LetterCount, &e.IsPaid, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return events, nil
}

// GetLetterCountries возвращает страны назначения всех писем события
// для классификации по тарифным регионам.
func (r *PostgresRepository) GetLetterCountries(ctx context.Context, eventID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT country FROM letters WHERE event_id = $1`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("select letter countries: %w", err)
	}
	defer rows.Close()

	var countries []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan country: %w", err)
		}
		countries = append(countries, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return countries, nil
}

// GetLastLetterAt возвращает время создания последнего письма события.
func (r *PostgresRepository) GetLastLetterAt(ctx context.Context, eventID int64) (*time.Time, error) {
	var last *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT MAX(created_at) FROM letters WHERE event_id = $1`,
		eventID,
	).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("select last letter at: %w", err)
	}
	return last, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
