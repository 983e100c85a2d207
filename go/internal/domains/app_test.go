package domains

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domainhooks/hooks/go/internal/apperrors"
	"github.com/domainhooks/hooks/go/internal/models"
	"github.com/domainhooks/hooks/go/internal/schemas"
	"github.com/domainhooks/hooks/go/internal/storage/memory"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	store := memory.NewStore(clockwork.NewFakeClock())
	schemaApp := schemas.NewApp(store)
	_, err := schemaApp.UpsertSchema(context.Background(), schemas.UpsertSchemaRequest{
		Name: "price",
		DomainSchema: json.RawMessage(`{
			"type": "object",
			"additionalProperties": false,
			"properties": {"price": {"type": "number"}, "name": {"type": "string"}}
		}`),
	})
	require.NoError(t, err)
	return NewApp(store, schemaApp)
}

func TestCreateDomain(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)

	domain, err := app.CreateDomain(ctx, "price", CreateDomainRequest{
		DomainID: "1234567890",
		Data:     map[string]any{"name": "Eggs", "price": 34.99},
		Tags:     [][]string{{"tenant-x"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "price", domain.SchemaName)
	assert.Equal(t, [][]string{{"tenant-x"}}, domain.Tags)

	got, err := app.GetDomain(ctx, "price", "1234567890")
	require.NoError(t, err)
	assert.Equal(t, domain, got)
}

func TestCreateDomainErrors(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)
	_, err := app.CreateDomain(ctx, "price", CreateDomainRequest{DomainID: "1", Data: map[string]any{"price": 1.0}})
	require.NoError(t, err)

	tests := []struct {
		name   string
		schema string
		req    CreateDomainRequest
		code   apperrors.Code
	}{
		{"unknown schema", "stock", CreateDomainRequest{DomainID: "2"}, apperrors.CodeNotFound},
		{"missing id", "price", CreateDomainRequest{}, apperrors.CodeValidation},
		{"data violates schema", "price", CreateDomainRequest{DomainID: "2", Data: map[string]any{"price": "x"}}, apperrors.CodeValidation},
		{"empty tag", "price", CreateDomainRequest{DomainID: "2", Tags: [][]string{{""}}}, apperrors.CodeValidation},
		{"duplicate key", "price", CreateDomainRequest{DomainID: "1", Data: map[string]any{"price": 2.0}}, apperrors.CodeIntegrity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := app.CreateDomain(ctx, tt.schema, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
		})
	}
}

func TestGetDomainNotFoundDetails(t *testing.T) {
	_, err := newTestApp(t).GetDomain(context.Background(), "price", "nope")

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeNotFound, appErr.Code)
	assert.Equal(t, map[string]string{"schema_name": "price", "domain_id": "nope"}, appErr.Details)
}

func TestFindAndDeleteDomains(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t)
	for _, id := range []string{"a", "b", "c"} {
		_, err := app.CreateDomain(ctx, "price", CreateDomainRequest{DomainID: id})
		require.NoError(t, err)
	}

	all, err := app.FindDomains(ctx, models.DomainFilter{SchemaName: "price"}, models.Page{Page: 1, PerPage: 2})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := app.FindDomains(ctx, models.DomainFilter{SchemaName: "price", DomainID: "c"}, models.Page{})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "c", one[0].DomainID)

	_, err = app.FindDomains(ctx, models.DomainFilter{SchemaName: "stock"}, models.Page{})
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	deleted, err := app.DeleteDomain(ctx, "price", "b")
	require.NoError(t, err)
	assert.Equal(t, "b", deleted.DomainID)

	_, err = app.DeleteDomain(ctx, "price", "b")
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}
