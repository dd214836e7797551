package datasource

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegister_Aliases(t *testing.T) {
	Register(DatasourceAdapterRegistration{
		Info:    DatasourceAdapterInfo{Type: "fake-alias", DisplayName: "Alias"},
		Aliases: []string{"fake-alias-2"},
		Factory: (&fakeFactory{}).open,
	})

	assert.Equal(t, "fake-alias", CanonicalType("fake-alias-2"))
	assert.Equal(t, "unknown", CanonicalType("unknown"))
	assert.True(t, IsRegistered("fake-alias-2"))
	assert.False(t, IsRegistered("oracle"))
	assert.Nil(t, GetFactory("oracle"))
}

func TestRegisteredAdapters_Sorted(t *testing.T) {
	registerFake(t, "fake-zz")
	registerFake(t, "fake-aa")

	infos := RegisteredAdapters()
	for i := 1; i < len(infos); i++ {
		assert.LessOrEqual(t, infos[i-1].Type, infos[i].Type)
	}
}
