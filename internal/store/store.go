package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"voucher-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetProjectByID retrieves a project by ID
func (s *Store) GetProjectByID(ctx context.Context, id string) (*models.Project, error) {
	var project models.Project
	err := s.db.GetContext(ctx, &project, "SELECT * FROM projects WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrProjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// GetProjectBySlug retrieves a project by its public slug
func (s *Store) GetProjectBySlug(ctx context.Context, slug string) (*models.Project, error) {
	var project models.Project
	err := s.db.GetContext(ctx, &project, "SELECT * FROM projects WHERE slug = $1", slug)
	if err == sql.ErrNoRows {
		return nil, models.ErrProjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// GetActiveAssignment retrieves the active assignment of a salesperson to a project
func (s *Store) GetActiveAssignment(ctx context.Context, projectID, salespersonID string) (*models.ProjectAssignment, error) {
	var assignment models.ProjectAssignment
	err := s.db.GetContext(ctx, &assignment,
		"SELECT * FROM project_assignments WHERE project_id = $1 AND salesperson_id = $2 AND status = $3",
		projectID, salespersonID, models.AssignmentStatusActive)
	if err == sql.ErrNoRows {
		return nil, models.ErrAssignmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

// UpsertCustomer creates or updates a customer keyed by email.
// The email is normalized to lower case before it becomes the conflict key.
func (s *Store) UpsertCustomer(ctx context.Context, customer *models.Customer) error {
	customer.Email = strings.ToLower(strings.TrimSpace(customer.Email))
	if customer.ID == "" {
		customer.ID = uuid.New().String()
	}

	query := `
		INSERT INTO customers (id, email, name, phone, address, city, country, additional_info, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			address = EXCLUDED.address,
			city = EXCLUDED.city,
			country = EXCLUDED.country,
			additional_info = EXCLUDED.additional_info,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, customer, query,
		customer.ID, customer.Email, customer.Name, customer.Phone,
		customer.Address, customer.City, customer.Country,
		customer.AdditionalInfo, customer.Source)
}

// InsertAuditLog appends an audit trail entry
func (s *Store) InsertAuditLog(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO audit_logs (id, user_id, action, metadata) VALUES ($1, $2, $3, $4)",
		entry.ID, entry.UserID, entry.Action, entry.Metadata)
	return err
}
