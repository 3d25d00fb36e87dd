package mongodb

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

type pricedDoc struct {
	Price decimal.Decimal `bson:"price"`
}

func TestDecimalCodec_StoresDecimal128(t *testing.T) {
	reg := NewRegistry()

	raw, err := bson.MarshalWithRegistry(reg, pricedDoc{Price: decimal.RequireFromString("14999000.50")})
	require.NoError(t, err)

	assert.Equal(t, bsontype.Decimal128, bson.Raw(raw).Lookup("price").Type)

	var out pricedDoc
	require.NoError(t, bson.UnmarshalWithRegistry(reg, raw, &out))
	assert.True(t, out.Price.Equal(decimal.RequireFromString("14999000.5")), "got %s", out.Price)
}

func TestDecimalCodec_ReadsLegacyEncodings(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name string
		doc  bson.M
		want string
	}{
		{"string", bson.M{"price": "1250.75"}, "1250.75"},
		{"double", bson.M{"price": 99.5}, "99.5"},
		{"int64", bson.M{"price": int64(300000)}, "300000"},
		{"null", bson.M{"price": nil}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := bson.Marshal(tt.doc)
			require.NoError(t, err)

			var out pricedDoc
			require.NoError(t, bson.UnmarshalWithRegistry(reg, raw, &out))
			assert.True(t, out.Price.Equal(decimal.RequireFromString(tt.want)), "got %s", out.Price)
		})
	}
}

func TestPagination_Normalize(t *testing.T) {
	p := (&Pagination{Page: 0, PageSize: 1000}).Normalize()
	assert.Equal(t, int64(1), p.Page)
	assert.Equal(t, int64(MaxPageSize), p.PageSize)
	assert.Equal(t, int64(0), p.Skip())

	p = (&Pagination{Page: 3, PageSize: 25}).Normalize()
	assert.Equal(t, int64(50), p.Skip())
	assert.Equal(t, int64(25), p.Limit())
}
