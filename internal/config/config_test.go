package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ".rodata", c.Rename.StringSection)
	assert.Equal(t, ".data", c.Rename.DataSection)
	assert.Equal(t, 1024, c.Rename.BufferSize)
	assert.Equal(t, DefaultJobs, c.Prelink.Jobs)
	assert.Equal(t, Default(), c)
}

func TestLoadConfigOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("rename.string-section", ".rodata.str")
	viper.Set("rename.data-section", ".data.rel.ro")
	viper.Set("rename.buffer-size", 4096)
	viper.Set("prelink.jobs", 2)

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ".rodata.str", c.Rename.StringSection)
	assert.Equal(t, ".data.rel.ro", c.Rename.DataSection)
	assert.Equal(t, 4096, c.Rename.BufferSize)
	assert.Equal(t, 2, c.Prelink.Jobs)
}

func TestLoadConfigRejectsBadSections(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("rename.string-section", ".data")
	_, err := LoadConfig()
	assert.Error(t, err)

	viper.Set("rename.string-section", "rodata")
	_, err = LoadConfig()
	assert.Error(t, err)
}
