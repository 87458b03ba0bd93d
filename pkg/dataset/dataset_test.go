package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadBasic(t *testing.T) {
	path := writeCSV(t, "tickets.csv", "ticket_id,priority,hours\n1,high,4.5\n2,low,\n3,medium,2\n")

	ds, err := Load(path, LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, "tickets.csv", ds.Name())
	assert.Equal(t, path, ds.Path())
	assert.Equal(t, ',', ds.Delimiter())
	assert.Equal(t, []string{"ticket_id", "priority", "hours"}, ds.Columns())
	assert.Equal(t, 3, ds.NumRows())
	assert.Equal(t, 3, ds.TotalRows())
	assert.Equal(t, 3, ds.NumColumns())

	hours, ok := ds.Column("hours")
	require.True(t, ok)
	assert.Equal(t, []string{"4.5", "", "2"}, hours)

	_, ok = ds.Column("missing")
	assert.False(t, ok)
	assert.Equal(t, -1, ds.Index("missing"))
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.csv"), LoadOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadEmpty(t *testing.T) {
	for name, body := range map[string]string{
		"zero bytes": "",
		"whitespace": " \n\n",
		"bom only":   "\xef\xbb\xbf",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeCSV(t, "empty.csv", body), LoadOptions{})
			assert.ErrorIs(t, err, ErrEmpty)
		})
	}
}

func TestLoadHeaderOnly(t *testing.T) {
	ds, err := Load(writeCSV(t, "header.csv", "a,b,c\n"), LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, ds.NumRows())
	assert.Equal(t, 3, ds.NumColumns())
	assert.Empty(t, ds.ColumnAt(0))
}

func TestLoadMalformed(t *testing.T) {
	tests := map[string]string{
		"too many fields": "a,b\n1,2\n3,4,5\n",
		"bare quote":      "a,b\n1,x\"y\n",
		"open quote":      "a,b\n1,\"unterminated\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeCSV(t, "bad.csv", body), LoadOptions{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestLoadPadsShortRows(t *testing.T) {
	ds, err := Load(writeCSV(t, "short.csv", "a,b,c\n1,2\n4,5,6\n"), LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "2", ""}, {"4", "5", "6"}}, ds.Head(10))
}

func TestLoadSniffsDelimiter(t *testing.T) {
	tests := []struct {
		name string
		body string
		want rune
	}{
		{"semicolon", "a;b;c\n1;2;3\n", ';'},
		{"tab", "a\tb\tc\n1\t2\t3\n", '\t'},
		{"pipe", "a|b\n1|2\n", '|'},
		{"comma inside quotes ignored", "\"x;y\",b,c\n1,2,3\n", ','},
		{"single column", "only\n1\n", ','},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := Load(writeCSV(t, "d.csv", tt.body), LoadOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ds.Delimiter())
		})
	}
}

func TestLoadExplicitDelimiter(t *testing.T) {
	ds, err := Load(writeCSV(t, "d.csv", "a;b,c\n1;2,3\n"), LoadOptions{Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b,c"}, ds.Columns())
}

func TestLoadNormalisesHeader(t *testing.T) {
	ds, err := Load(writeCSV(t, "h.csv", " name ,,name,name,name.1\n1,2,3,4,5\n"), LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "Unnamed: 1", "name.1", "name.2", "name.1.1"}, ds.Columns())
}

func TestLoadStripsBOMAndDecodesLatin1(t *testing.T) {
	ds, err := Load(writeCSV(t, "bom.csv", "\xef\xbb\xbfcity,n\nParis,1\n"), LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "city", ds.Columns()[0])

	ds, err = Load(writeCSV(t, "latin1.csv", "city,n\nZ\xfcrich,1\n"), LoadOptions{})
	require.NoError(t, err)
	city, _ := ds.Column("city")
	assert.Equal(t, []string{"Zürich"}, city)

	ds, err = Load(writeCSV(t, "cp1252.csv", "note,price\n\x93caf\xe9\x94,\x8012\n"), LoadOptions{})
	require.NoError(t, err)
	note, _ := ds.Column("note")
	price, _ := ds.Column("price")
	assert.Equal(t, []string{"“café”"}, note)
	assert.Equal(t, []string{"€12"}, price)
}

func TestDecodeKeepsValidUTF8(t *testing.T) {
	text, err := decode([]byte("\xef\xbb\xbfcity\nZürich\n"))
	require.NoError(t, err)
	assert.Equal(t, "city\nZürich\n", text)
}

func TestLoadMaxRows(t *testing.T) {
	ds, err := Load(writeCSV(t, "m.csv", "a\n1\n2\n3\n4\n"), LoadOptions{MaxRows: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, ds.NumRows())
	assert.Equal(t, 4, ds.TotalRows())
}

func TestAccessorsReturnCopies(t *testing.T) {
	ds, err := Load(writeCSV(t, "c.csv", "a,b\n1,2\n"), LoadOptions{})
	require.NoError(t, err)

	cols := ds.Columns()
	cols[0] = "mutated"
	col, _ := ds.Column("a")
	col[0] = "mutated"
	head := ds.Head(1)
	head[0][1] = "mutated"

	assert.Equal(t, []string{"a", "b"}, ds.Columns())
	assert.Equal(t, [][]string{{"1", "2"}}, ds.Head(1))
	assert.Empty(t, ds.Head(-1))
}

func TestFromRecords(t *testing.T) {
	ds, err := FromRecords("mem.csv", []string{"x", "x"}, [][]string{{"1"}, {"2", "3"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "x.1"}, ds.Columns())
	assert.Equal(t, [][]string{{"1", ""}, {"2", "3"}}, ds.Head(5))

	_, err = FromRecords("mem.csv", nil, nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = FromRecords("mem.csv", []string{"a"}, [][]string{{"1", "2"}})
	assert.ErrorIs(t, err, ErrMalformed)
}
