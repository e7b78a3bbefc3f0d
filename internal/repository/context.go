package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/brightdoor/brokerchat/internal/model/entity"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ContextRepository answers side-panel lookups against the brokerage tables.
type ContextRepository struct {
	pool *pgxpool.Pool
}

// NewContextRepository wraps an existing connection pool.
func NewContextRepository(pool *pgxpool.Pool) *ContextRepository {
	return &ContextRepository{pool: pool}
}

// PropertyContext is the side-panel record for a listing.
type PropertyContext struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Community    string          `json:"community"`
	PropertyType string          `json:"propertyType"`
	Bedrooms     int             `json:"bedrooms"`
	Bathrooms    int             `json:"bathrooms"`
	SizeSqft     decimal.Decimal `json:"sizeSqft"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	Status       string          `json:"status"`
	ListedAt     time.Time       `json:"listedAt"`
}

// ClientContext is the side-panel record for a lead or client.
type ClientContext struct {
	ID       string           `json:"id"`
	FullName string           `json:"fullName"`
	Email    string           `json:"email"`
	Phone    string           `json:"phone"`
	Segment  string           `json:"segment"`
	Budget   *decimal.Decimal `json:"budget,omitempty"`
	Notes    string           `json:"notes"`
}

// DocumentContext is the side-panel record for a stored document.
type DocumentContext struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	DocType string `json:"docType"`
	Status  string `json:"status"`
	URL     string `json:"url"`
}

// CompanyContext is the side-panel record for a company.
type CompanyContext struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Industry string `json:"industry"`
	Website  string `json:"website"`
}

// AreaContext is the side-panel record for a location/community.
type AreaContext struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	City           string          `json:"city"`
	AvgPrice       decimal.Decimal `json:"avgPrice"`
	ActiveListings int             `json:"activeListings"`
}

// FetchContext resolves the type-specific record for one entity and returns
// it as a JSON payload ready for the panel.
func (r *ContextRepository) FetchContext(ctx context.Context, typ entity.Type, id string) (json.RawMessage, error) {
	var (
		record any
		err    error
	)

	switch typ {
	case entity.TypeProperty:
		record, err = r.fetchProperty(ctx, id)
	case entity.TypeClient:
		record, err = r.fetchClient(ctx, id)
	case entity.TypeDocument:
		record, err = r.fetchDocument(ctx, id)
	case entity.TypeCompany:
		record, err = r.fetchCompany(ctx, id)
	case entity.TypeLocation:
		record, err = r.fetchArea(ctx, id)
	default:
		return nil, fmt.Errorf("unsupported entity type %q", typ)
	}
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode %s context: %w", typ, err)
	}
	return payload, nil
}

func (r *ContextRepository) fetchProperty(ctx context.Context, id string) (PropertyContext, error) {
	var p PropertyContext
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, community, property_type, bedrooms, bathrooms, size_sqft, price, currency, status, created_at
		 FROM properties WHERE id = $1`, id).
		Scan(&p.ID, &p.Title, &p.Community, &p.PropertyType, &p.Bedrooms, &p.Bathrooms,
			&p.SizeSqft, &p.Price, &p.Currency, &p.Status, &p.ListedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PropertyContext{}, fmt.Errorf("property %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return PropertyContext{}, fmt.Errorf("select property %s: %w", id, err)
	}
	return p, nil
}

func (r *ContextRepository) fetchClient(ctx context.Context, id string) (ClientContext, error) {
	var c ClientContext
	err := r.pool.QueryRow(ctx,
		`SELECT id, full_name, email, phone, segment, budget, notes FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.FullName, &c.Email, &c.Phone, &c.Segment, &c.Budget, &c.Notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return ClientContext{}, fmt.Errorf("client %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ClientContext{}, fmt.Errorf("select client %s: %w", id, err)
	}
	return c, nil
}

func (r *ContextRepository) fetchDocument(ctx context.Context, id string) (DocumentContext, error) {
	var d DocumentContext
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, doc_type, status, url FROM documents WHERE id = $1`, id).
		Scan(&d.ID, &d.Title, &d.DocType, &d.Status, &d.URL)
	if errors.Is(err, pgx.ErrNoRows) {
		return DocumentContext{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return DocumentContext{}, fmt.Errorf("select document %s: %w", id, err)
	}
	return d, nil
}

func (r *ContextRepository) fetchCompany(ctx context.Context, id string) (CompanyContext, error) {
	var c CompanyContext
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, industry, website FROM companies WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Industry, &c.Website)
	if errors.Is(err, pgx.ErrNoRows) {
		return CompanyContext{}, fmt.Errorf("company %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return CompanyContext{}, fmt.Errorf("select company %s: %w", id, err)
	}
	return c, nil
}

func (r *ContextRepository) fetchArea(ctx context.Context, id string) (AreaContext, error) {
	var a AreaContext
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, city, avg_price, active_listings FROM areas WHERE id = $1`, id).
		Scan(&a.ID, &a.Name, &a.City, &a.AvgPrice, &a.ActiveListings)
	if errors.Is(err, pgx.ErrNoRows) {
		return AreaContext{}, fmt.Errorf("area %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return AreaContext{}, fmt.Errorf("select area %s: %w", id, err)
	}
	return a, nil
}
