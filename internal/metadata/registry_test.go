package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableName(t *testing.T) {
	cases := map[string]string{
		"EntryModel":  "entry",
		"Category":    "category",
		"WALLETMODEL": "wallet",
		"Model":       "model",
	}
	for in, want := range cases {
		assert.Equal(t, want, TableName(in), in)
	}
}

func TestRegistry_DeclareFieldCreatesAndIndexesByTable(t *testing.T) {
	reg := NewRegistry()

	m := reg.DeclareField("WalletModel", String("name", Required()))
	require.Equal(t, "wallet", m.Table)

	got, ok := reg.LookupByTable("wallet")
	require.True(t, ok)
	assert.Same(t, m, got)

	_, ok = reg.LookupByTable("nope")
	assert.False(t, ok)
}

func TestRegistry_DeclareFieldIsIdempotentLastWins(t *testing.T) {
	reg := NewRegistry()
	reg.DeclareField("Category", String("name"))
	m := reg.DeclareField("Category", String("name", Indexed()))

	assert.Equal(t, []string{"name"}, m.FieldNames())
	f, ok := m.Field("name")
	require.True(t, ok)
	assert.True(t, f.Index)
}

func TestModel_InheritsParentFields(t *testing.T) {
	reg := NewRegistry()
	base := reg.Define("BaseModel", nil, Date("createdAt", Indexed()))
	entry := reg.Define("EntryModel", base, Number("amount"))

	// declared on the base after the descendant exists
	reg.DeclareField("BaseModel", Date("updatedAt"))

	assert.Equal(t, []string{"createdAt", "updatedAt", "amount"}, entry.FieldNames())
	assert.True(t, entry.HasField("updatedAt"))
	assert.False(t, base.HasField("amount"))
}

func TestModel_ColumnsExpandEmbeddedModels(t *testing.T) {
	reg := NewRegistry()
	geo := reg.Define("Geo", nil, Number("lat"), Number("lng"))
	address := reg.Define("Address", nil, String("city", Indexed()), String("zip"), Embed("geo", geo))
	user := reg.Define("UserModel", nil, String("name"), Embed("address", address))

	cols := user.Columns()
	require.Len(t, cols, 5)
	assert.Equal(t, Column{Name: "name", Path: "$.name", Kind: KindString}, cols[0])
	assert.Equal(t, Column{Name: "address_city", Path: "$.address.city", Kind: KindString, Index: true}, cols[1])
	assert.Equal(t, Column{Name: "address_geo_lat", Path: "$.address.geo.lat", Kind: KindNumber}, cols[3])

	assert.Equal(t, []string{"address_city", "address_zip", "address_geo_lat", "address_geo_lng"}, user.LeafNames("address"))
	assert.Equal(t, []string{"name"}, user.LeafNames("name"))
}
