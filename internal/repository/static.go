package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brightdoor/brokerchat/internal/model/entity"
)

// StaticContext answers context lookups from seeded in-memory records. It
// backs local development and tests when no database is configured.
type StaticContext struct {
	properties map[string]PropertyContext
	clients    map[string]ClientContext
	documents  map[string]DocumentContext
	companies  map[string]CompanyContext
	areas      map[string]AreaContext
}

// NewStaticContext returns a lookup preloaded with demo brokerage records.
func NewStaticContext() *StaticContext {
	budget := decimal.NewFromInt(2500000)
	return &StaticContext{
		properties: map[string]PropertyContext{
			"p1": {
				ID: "p1", Title: "Marina View 2BR", Community: "Dubai Marina",
				PropertyType: "apartment", Bedrooms: 2, Bathrooms: 2,
				SizeSqft: decimal.NewFromInt(1240), Price: decimal.NewFromInt(1920000),
				Currency: "AED", Status: "available", ListedAt: time.Date(2026, 5, 12, 0, 0, 0, 0, time.UTC),
			},
			"p2": {
				ID: "p2", Title: "Downtown Loft", Community: "Downtown Dubai",
				PropertyType: "apartment", Bedrooms: 1, Bathrooms: 1,
				SizeSqft: decimal.NewFromInt(860), Price: decimal.NewFromInt(1450000),
				Currency: "AED", Status: "available", ListedAt: time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC),
			},
		},
		clients: map[string]ClientContext{
			"c1": {ID: "c1", FullName: "Amira Haddad", Email: "amira@example.com", Segment: "buyer", Budget: &budget},
		},
		documents: map[string]DocumentContext{
			"d1": {ID: "d1", Title: "Form A - Marina View 2BR", DocType: "contract", Status: "signed"},
		},
		companies: map[string]CompanyContext{
			"co1": {ID: "co1", Name: "Brightdoor Realty", Industry: "real estate"},
		},
		areas: map[string]AreaContext{
			"dubai-marina": {ID: "dubai-marina", Name: "Dubai Marina", City: "Dubai",
				AvgPrice: decimal.NewFromInt(1850000), ActiveListings: 412},
			"downtown": {ID: "downtown", Name: "Downtown Dubai", City: "Dubai",
				AvgPrice: decimal.NewFromInt(2650000), ActiveListings: 238},
		},
	}
}

// FetchContext resolves one entity from the seeded records.
func (s *StaticContext) FetchContext(_ context.Context, typ entity.Type, id string) (json.RawMessage, error) {
	var (
		record any
		ok     bool
	)

	switch typ {
	case entity.TypeProperty:
		record, ok = s.properties[id]
	case entity.TypeClient:
		record, ok = s.clients[id]
	case entity.TypeDocument:
		record, ok = s.documents[id]
	case entity.TypeCompany:
		record, ok = s.companies[id]
	case entity.TypeLocation:
		record, ok = s.areas[id]
	default:
		return nil, fmt.Errorf("unsupported entity type %q", typ)
	}
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", typ, id, ErrNotFound)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode %s context: %w", typ, err)
	}
	return payload, nil
}
