package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "activity-types.json")
	reg := &ActivityRegistry{
		LastUpdated: "2015-04-09T05:34:40Z",
		Instance:    "123-abc-456.mktorest.com",
		Activities: []Activity{
			{ID: 46, Name: "Interesting Moment"},
			{ID: 12, Name: "New Lead", Supported: true},
			{ID: 1, Name: "Visit Webpage", PrimaryAttribute: "Webpage ID", Supported: true},
		},
	}

	require.NoError(t, SaveRegistry(path, reg))

	loaded, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, loaded.Version)
	assert.Equal(t, "123-abc-456.mktorest.com", loaded.Instance)
	require.Len(t, loaded.Activities, 3)
	assert.Equal(t, []int{1, 12, 46}, []int{loaded.Activities[0].ID, loaded.Activities[1].ID, loaded.Activities[2].ID})

	a, ok := loaded.Find(1)
	require.True(t, ok)
	assert.Equal(t, "Webpage ID", a.PrimaryAttribute)
	_, ok = loaded.Find(99)
	assert.False(t, ok)

	assert.Len(t, loaded.Supported(), 2)
}

func TestLoadRegistry_Errors(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, os.IsNotExist(err))

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err = LoadRegistry(path)
	assert.Error(t, err)
}
