package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SisyphusSQ/mxavro/internal/config"
	"github.com/SisyphusSQ/mxavro/internal/models"
)

func testConfig(t *testing.T) *config.Config {
	c := config.New()
	c.OutputDir = t.TempDir()
	return c
}

func testResult(binlog string, sqls []string) *models.ResultSQL {
	return &models.ResultSQL{
		SQLs: sqls,
		SQLInfo: models.ExtraInfo{
			Schema: "shop", Table: "orders", Binlog: binlog, StartPos: 4, EndPos: 120,
		},
	}
}

func TestHandleWritesToSingleFile(t *testing.T) {
	c := testConfig(t)
	l := NewSQLLoader(c, ForwardType)
	defer l.Close()

	require.NoError(t, l.Handle(testResult("mysql-bin.000001", []string{"INSERT INTO orders VALUES (1)"})))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(filepath.Join(c.OutputDir, "forward.000001.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "INSERT INTO orders VALUES (1)")
}

func TestHandleRotatesOnBinlogChange(t *testing.T) {
	c := testConfig(t)
	l := NewSQLLoader(c, ForwardType)

	require.NoError(t, l.Handle(testResult("mysql-bin.000001", []string{"stmt-1"})))
	require.NoError(t, l.Handle(testResult("mysql-bin.000002", []string{"stmt-2"})))
	require.NoError(t, l.Close())

	d1, err := os.ReadFile(filepath.Join(c.OutputDir, "forward.000001.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(d1), "stmt-1")

	d2, err := os.ReadFile(filepath.Join(c.OutputDir, "forward.000002.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(d2), "stmt-2")
}

func TestHandlePerTableSeparatesFiles(t *testing.T) {
	c := testConfig(t)
	c.FilePerTable = true
	l := NewSQLLoader(c, RollbackType)
	defer l.Close()

	require.NoError(t, l.Handle(testResult("mysql-bin.000001", []string{"DELETE FROM orders"})))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(filepath.Join(c.OutputDir, "shop.orders.rollback.000001.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "DELETE FROM orders")
}

func TestHandleWritesExtraInfoWhenConfigured(t *testing.T) {
	c := testConfig(t)
	c.PrintExtraInfo = true
	l := NewSQLLoader(c, ForwardType)
	defer l.Close()

	require.NoError(t, l.Handle(testResult("mysql-bin.000001", []string{"stmt"})))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(filepath.Join(c.OutputDir, "forward.000001.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "database=shop table=orders")
}

func TestHandleJSONLoaderWritesJsonLines(t *testing.T) {
	c := testConfig(t)
	l := NewSQLLoader(c, JSONType)
	defer l.Close()

	res := testResult("mysql-bin.000001", nil)
	res.Jsons = []string{`{"a":1}`}
	require.NoError(t, l.Handle(res))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(filepath.Join(c.OutputDir, "json.000001.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `{"a":1}`)
}

func TestHandleSkipsEmptyResult(t *testing.T) {
	c := testConfig(t)
	l := NewSQLLoader(c, ForwardType)
	defer l.Close()

	require.NoError(t, l.Handle(testResult("mysql-bin.000001", nil)))
	_, err := os.Stat(filepath.Join(c.OutputDir, "forward.000001.sql"))
	assert.True(t, os.IsNotExist(err))
}
