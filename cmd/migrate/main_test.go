package main

import (
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"

	"github.com/ManuelReschke/paygate/internal/pkg/docstore"
)

const migrationsSource = "file://../../migrations"

func readMigration(t *testing.T, read func() (io.ReadCloser, string, error)) string {
	t.Helper()
	r, _, err := read()
	require.NoError(t, err)
	defer r.Close()
	raw, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(raw)
}

func TestMigrationsArePaired(t *testing.T) {
	src, err := (&file.File{}).Open(migrationsSource)
	require.NoError(t, err)
	defer src.Close()

	version, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	for {
		up := readMigration(t, func() (io.ReadCloser, string, error) { return src.ReadUp(version) })
		down := readMigration(t, func() (io.ReadCloser, string, error) { return src.ReadDown(version) })
		assert.NotEmpty(t, up, "version %d up", version)
		assert.NotEmpty(t, down, "version %d down", version)

		next, err := src.Next(version)
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		require.NoError(t, err)
		version = next
	}
}

func TestDocumentsMigrationMatchesModel(t *testing.T) {
	src, err := (&file.File{}).Open(migrationsSource)
	require.NoError(t, err)
	defer src.Close()
	up := readMigration(t, func() (io.ReadCloser, string, error) { return src.ReadUp(1) })

	s, err := schema.Parse(&docstore.Document{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)
	assert.Contains(t, up, "`"+s.Table+"`")
	for _, column := range s.DBNames {
		assert.Contains(t, up, "`"+column+"`", column)
	}
	assert.Contains(t, up, "UNIQUE KEY `idx_document_key` (`collection`, `partition_key`, `sort_key`)")
}

func TestRunMigrationRejectsBadArguments(t *testing.T) {
	assert.ErrorContains(t, runMigration(nil, "goto", nil), "version number")
	assert.ErrorContains(t, runMigration(nil, "sideways", nil), "unknown command")
}
