package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDefinitionOK(t *testing.T) {
	r := New("web-1", "python -m http.server 8080", 8080, t.TempDir())
	require.NoError(t, ValidateDefinition(r))
}

func TestValidateDefinitionNoPortNoWorkdir(t *testing.T) {
	r := New("worker", "./worker --queue jobs", 0, "")
	require.NoError(t, ValidateDefinition(r))
}

func TestValidateDefinitionBadName(t *testing.T) {
	for _, name := range []string{"", "has space", "-leading", "semi;colon"} {
		r := New(name, "true", 0, "")
		assert.Error(t, ValidateDefinition(r), "name %q", name)
	}
}

func TestValidateDefinitionEmptyCommand(t *testing.T) {
	r := New("web", "", 0, "")
	assert.Error(t, ValidateDefinition(r))
}

func TestValidateDefinitionPortRange(t *testing.T) {
	assert.Error(t, ValidateDefinition(New("web", "true", -1, "")))
	assert.Error(t, ValidateDefinition(New("web", "true", 70000, "")))
	assert.NoError(t, ValidateDefinition(New("web", "true", 65535, "")))
}

func TestValidateDefinitionMissingWorkdir(t *testing.T) {
	r := New("web", "true", 0, "/definitely/not/a/real/dir")
	err := ValidateDefinition(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workdir")
}

func TestHasIdentity(t *testing.T) {
	r := &ProcessRecord{Name: "web", PID: 123}
	assert.False(t, r.HasIdentity(), "pid without start time is stale")
	r.StartTime = "Wed Aug 27 10:15:42 2025"
	assert.True(t, r.HasIdentity())
	r.ClearIdentity()
	assert.False(t, r.HasIdentity())
	assert.Zero(t, r.PID)
}
