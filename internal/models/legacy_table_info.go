package models

import (
	"database/sql"
	"fmt"

	"github.com/SisyphusSQ/mxavro/internal/log"
	"github.com/SisyphusSQ/mxavro/internal/utils"
	"github.com/SisyphusSQ/mxavro/internal/vars"
)

// TblColsInfo caches live MySQL/MariaDB schema shape (columns, primary key,
// unique keys) for internal/legacy2sql, which needs real column types and
// key layout to render redo/rollback SQL - information the binlog itself
// does not carry for anything beyond the Avro-relevant row image.
type TblColsInfo struct {
	client *sql.DB

	// db.table -> TblInfo
	tableInfos map[string]*TblInfo
}

// NewTblColsInfo opens a schema-introspection connection using dsn, the
// standard go-sql-driver/mysql data source name.
func NewTblColsInfo(dsn string) (*TblColsInfo, error) {
	client, err := utils.CreateMysqlConn(dsn)
	if err != nil {
		return nil, err
	}
	return &TblColsInfo{
		client:     client,
		tableInfos: make(map[string]*TblInfo),
	}, nil
}

func (t *TblColsInfo) GetTableInfo(schema, table string) *TblInfo {
	absTable := utils.GetAbsTableName(schema, table)

	tbInfo, ok := t.tableInfos[absTable]
	if !ok {
		t.GetTableCols(schema, table)
		t.GetTableKeys(schema, table)
		tbInfo, ok = t.tableInfos[absTable]
		if !ok {
			log.Logger.Fatal("table struct not found for %s, maybe it was dropped. Skip it", absTable)
		}
	}

	return tbInfo
}

// GetTableCols populates the column shape of schema.table via SHOW COLUMNS.
func (t *TblColsInfo) GetTableCols(schema, table string) {
	if utils.IsAnyEmpty(schema, table) {
		log.Logger.Fatal(vars.SchemaTableEmpty.Error())
	}

	absTable := utils.GetAbsTableName(schema, table)

	query := fmt.Sprintf(vars.ShowColumns, schema, table)
	rows, err := t.client.Query(query)
	if err != nil {
		log.Logger.Fatal("table[%s] show columns query failed, err: %v", absTable, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		log.Logger.Fatal("table[%s] show columns query failed, err: %v", absTable, err)
	}

	i := 0
	fieldInfos := make([]*FieldInfo, 0, len(cols))
	for rows.Next() {
		scanArgs := make([]any, len(cols))
		for i := range scanArgs {
			scanArgs[i] = &sql.RawBytes{}
		}

		if err = rows.Scan(scanArgs...); err != nil {
			log.Logger.Fatal("table[%s] show columns query failed, err: %v", absTable, err)
		}

		typeStr := utils.ColumnValue(scanArgs, cols, "Type")
		f := &FieldInfo{
			Index:      i,
			FieldName:  utils.ColumnValue(scanArgs, cols, "Field"),
			FieldType:  utils.GetFieldType(typeStr),
			IsUnsigned: utils.IsUnsigned(typeStr),
		}

		fieldInfos = append(fieldInfos, f)
		i++
	}

	t.tableInfos[absTable] = &TblInfo{
		Database: schema,
		Table:    table,
		Columns:  fieldInfos,
	}
}

// GetTableKeys populates the primary and unique key shape of schema.table
// via SHOW KEYS. GetTableCols must run first.
func (t *TblColsInfo) GetTableKeys(schema, table string) {
	var (
		primary = make(KeyInfo, 0)
		unique  = make(map[string]KeyInfo)
	)

	absTable := utils.GetAbsTableName(schema, table)
	query := fmt.Sprintf(vars.ShowKeys, schema, table)
	rows, err := t.client.Query(query)
	if err != nil {
		log.Logger.Fatal("table[%s] show keys query failed, err: %v", absTable, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		log.Logger.Fatal("table[%s] show keys query failed, err: %v", absTable, err)
	}

	for rows.Next() {
		scanArgs := make([]any, len(cols))
		for i := range scanArgs {
			scanArgs[i] = &sql.RawBytes{}
		}

		if err = rows.Scan(scanArgs...); err != nil {
			log.Logger.Fatal("table[%s] show keys query failed, err: %v", absTable, err)
		}

		isNonUnique, err := utils.ColumnValueInt64(scanArgs, cols, "Non_unique")
		if err != nil {
			log.Logger.Fatal("table[%s] show keys query failed, err: %v", absTable, err)
		} else if isNonUnique != 0 {
			continue
		}

		keyName := utils.ColumnValue(scanArgs, cols, "Key_name")
		colName := utils.ColumnValue(scanArgs, cols, "Column_name")
		if utils.IsPrimary(keyName) {
			primary = append(primary, colName)
		} else {
			if _, ok := unique[keyName]; !ok {
				unique[keyName] = make(KeyInfo, 0)
			}
			unique[keyName] = append(unique[keyName], colName)
		}
	}

	tableInfo, ok := t.tableInfos[absTable]
	if !ok {
		log.Logger.Fatal("table[%s] why? not found", absTable)
	}

	tableInfo.PrimaryKey = primary
	for _, u := range unique {
		tableInfo.UniqueKeys = append(tableInfo.UniqueKeys, u)
	}
}

func (t *TblColsInfo) Stop() {
	if t.client != nil {
		_ = t.client.Close()
	}
}
