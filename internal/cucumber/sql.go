// Runs a SQL statement against the DB
//
//	When I run SQL "UPDATE networks SET name='Amsterdam' WHERE id = '${network_id}';" expect 1 row to be affected.
//
// Runs a SQL statement against the DB and check the results
//
//	And I run SQL "SELECT count(*) AS count FROM invites WHERE network_id='${network_id}'" gives results:
//	  | count |
//	  | 0     |
package cucumber

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/cucumber/godog"
	"github.com/olekukonko/tablewriter"
)

func init() {
	StepModules = append(StepModules, func(ctx *godog.ScenarioContext, s *TestScenario) {
		ctx.Step(`^I run SQL "([^"]*)" expect (\d+) row to be affected\.$`, s.iRunSQLExpectRowToBeAffected)
		ctx.Step(`^I run SQL "([^"]*)" gives results:$`, s.iRunSQLGivesResults)
	})
}

func (s *TestScenario) iRunSQLExpectRowToBeAffected(sql string, expected int64) error {
	sql, err := s.Expand(sql)
	if err != nil {
		return err
	}
	if s.Suite.DB == nil {
		return fmt.Errorf("the test suite has no database")
	}

	exec := s.Suite.DB.WithContext(s.Suite.Context).Exec(sql)
	if exec.Error != nil {
		return exec.Error
	}
	if exec.RowsAffected != expected {
		return fmt.Errorf("expected %d rows to be affected but %d were affected", expected, exec.RowsAffected)
	}
	return nil
}

func (s *TestScenario) iRunSQLGivesResults(sql string, expected *godog.Table) error {
	sql, err := s.Expand(sql)
	if err != nil {
		return err
	}
	if s.Suite.DB == nil {
		return fmt.Errorf("the test suite has no database")
	}

	rows, err := s.Suite.DB.WithContext(s.Suite.Context).Raw(sql).Rows()
	if err != nil {
		return err
	}
	defer func() {
		_ = rows.Close()
	}()

	var actualTable [][]string
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	actualTable = append(actualTable, cols)

	for rows.Next() {

		columns := make([]interface{}, len(cols))
		columnsPtr := make([]interface{}, len(cols))
		for i := range columns {
			columnsPtr[i] = &columns[i]
		}

		err = rows.Scan(columnsPtr...)
		if err != nil {
			return err
		}

		var rowString []string
		for _, c := range columns {
			// sqlite returns text columns as []byte
			if b, ok := c.([]byte); ok {
				c = string(b)
			}
			rowString = append(rowString, fmt.Sprintf("%v", c))
		}
		actualTable = append(actualTable, rowString)
	}

	expectedTable := GodogTableToStringTable(expected)

	if !reflect.DeepEqual(expectedTable, actualTable) {
		expected := StringTableToCucumberTable(expectedTable)
		actual := StringTableToCucumberTable(actualTable)

		return fmt.Errorf("actual does not match expected, diff:\n%s", unifiedDiff(expected, actual))
	}
	return nil
}

func GodogTableToStringTable(table *godog.Table) [][]string {
	data := make([][]string, len(table.Rows))
	for r, row := range table.Rows {
		data[r] = make([]string, len(row.Cells))
		for c, cell := range row.Cells {
			data[r][c] = cell.Value
		}
	}
	return data
}

func StringTableToCucumberTable(data [][]string) string {
	buf := &strings.Builder{}
	table := tablewriter.NewWriter(buf)
	table.SetBorders(tablewriter.Border{
		Left:   true,
		Right:  true,
		Top:    false,
		Bottom: false,
	})
	table.AppendBulk(data)
	table.Render()
	return buf.String()
}
