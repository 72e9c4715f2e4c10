package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/emilythestrangee/tally/backend/internal/models"
	"github.com/emilythestrangee/tally/backend/internal/tally"
)

// notifyChannel carries one JSON encoded row per inserted response.
const notifyChannel = "tally_responses"

const notifyTriggerSQL = `
CREATE OR REPLACE FUNCTION tally_notify_response() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('` + notifyChannel + `', row_to_json(NEW)::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS responses_notify ON responses;
CREATE TRIGGER responses_notify
	AFTER INSERT ON responses
	FOR EACH ROW EXECUTE FUNCTION tally_notify_response();
`

type PostgresStore struct {
	db  *gorm.DB
	url string
}

// NewPostgresStore connects, migrates the schema and installs the insert
// trigger that feeds Watch.
func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	// Configure GORM logger
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&models.User{}, &models.Response{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := db.WithContext(ctx).Exec(notifyTriggerSQL).Error; err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to install notify trigger: %w", err)
	}
	log.Println("✅ Database migrations completed")

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &PostgresStore{db: db, url: url}, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, name string) (models.User, error) {
	u := models.User{
		ID:        uuid.NewString(),
		Name:      name,
		Timestamp: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) Insert(ctx context.Context, r models.Response) (models.Response, error) {
	r.ID = uuid.NewString()
	r.Timestamp = time.Now().UTC()
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return models.Response{}, fmt.Errorf("insert response: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) InsertMany(ctx context.Context, rs []models.Response) ([]models.Response, error) {
	if len(rs) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	stored := make([]models.Response, len(rs))
	for i, r := range rs {
		r.ID = uuid.NewString()
		r.Timestamp = now
		stored[i] = r
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&stored).Error
	})
	if err != nil {
		return nil, fmt.Errorf("insert responses: %w", err)
	}
	return stored, nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]models.Response, error) {
	var out []models.Response
	err := s.db.WithContext(ctx).
		Order("created_at desc").
		Order("id desc").
		Limit(limitOrDefault(limit)).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	if out == nil {
		out = []models.Response{}
	}
	return out, nil
}

func (s *PostgresStore) Tallies(ctx context.Context) (models.Snapshot, error) {
	var rows []models.TallyRow
	err := s.db.WithContext(ctx).
		Model(&models.Response{}).
		Select("question_id, selected_option, count(*) AS count").
		Group("question_id, selected_option").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate tallies: %w", err)
	}
	return tally.FromRows(rows), nil
}

func (s *PostgresStore) Clear(context.Context) error {
	return ErrUnsupportedInDurableMode
}

func (s *PostgresStore) Mode() Mode    { return ModePostgres }
func (s *PostgresStore) Durable() bool { return true }

// Health checks the health of the database connection by pinging the database.
func (s *PostgresStore) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stats := make(map[string]string)

	sqlDB, err := s.db.DB()
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db error: %v", err)
		return stats
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := sqlDB.Stats()
	stats["open_connections"] = fmt.Sprintf("%d", dbStats.OpenConnections)
	stats["in_use"] = fmt.Sprintf("%d", dbStats.InUse)
	stats["idle"] = fmt.Sprintf("%d", dbStats.Idle)

	return stats
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	log.Println("Disconnected from database")
	return sqlDB.Close()
}

// notifyRow mirrors row_to_json(NEW) for the responses table.
type notifyRow struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	UserName       string    `json:"user_name"`
	QuestionID     string    `json:"question_id"`
	SelectedOption string    `json:"selected_option"`
	Timestamp      time.Time `json:"created_at"`
}

func decodeNotification(payload string) (models.Response, error) {
	var row notifyRow
	if err := json.Unmarshal([]byte(payload), &row); err != nil {
		return models.Response{}, fmt.Errorf("decode notification: %w", err)
	}
	return models.Response{
		ID:             row.ID,
		UserID:         row.UserID,
		UserName:       row.UserName,
		QuestionID:     row.QuestionID,
		SelectedOption: row.SelectedOption,
		Timestamp:      row.Timestamp,
	}, nil
}

func (s *PostgresStore) CanWatch() bool { return true }

// Watch listens on the notify channel with a dedicated connection and
// reconnects after failures until ctx is done.
func (s *PostgresStore) Watch(ctx context.Context, fn func(models.Response)) error {
	for {
		err := s.listen(ctx, fn)
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("Postgres change feed interrupted: %v", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func (s *PostgresStore) listen(ctx context.Context, fn func(models.Response)) error {
	conn, err := pgx.Connect(ctx, s.url)
	if err != nil {
		return fmt.Errorf("connect listener: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	log.Println("📡 Postgres change feed listening")

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("wait for notification: %w", err)
		}

		r, err := decodeNotification(n.Payload)
		if err != nil {
			log.Printf("Error processing change feed: %v", err)
			continue
		}
		fn(r)
	}
}
