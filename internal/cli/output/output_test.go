package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"TABLE", FormatTable, false},
		{" json ", FormatJSON, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

type mechRow struct {
	Name  string `json:"name" yaml:"name"`
	Flags string `json:"flags" yaml:"flags"`
}

type mechList []mechRow

func (m mechList) Headers() []string { return []string{"name", "flags"} }
func (m mechList) Rows() [][]string {
	rows := make([][]string, len(m))
	for i, r := range m {
		rows[i] = []string{r.Name, r.Flags}
	}
	return rows
}

func TestPrinter_Formats(t *testing.T) {
	data := mechList{{Name: "PLAIN", Flags: "plaintext"}, {Name: "EXTERNAL"}}

	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatTable, false).Print(data))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.Contains(t, lines[1], "PLAIN")

	buf.Reset()
	require.NoError(t, NewPrinter(&buf, FormatJSON, false).Print(data))
	assert.Contains(t, buf.String(), `"name": "PLAIN"`)

	buf.Reset()
	require.NoError(t, NewPrinter(&buf, FormatYAML, false).Print(data))
	assert.Contains(t, buf.String(), "- name: PLAIN")

	buf.Reset()
	require.NoError(t, NewPrinter(&buf, FormatTable, false).Print(map[string]int{"count": 2}))
	assert.Contains(t, buf.String(), `"count": 2`, "non-tables fall back to JSON")
}

func TestPrinter_Status(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, FormatTable, false).Success("ok")
	assert.Equal(t, "ok\n", buf.String())

	buf.Reset()
	NewPrinter(&buf, FormatTable, true).Error("bad")
	assert.Equal(t, "\033[31mbad\033[0m\n", buf.String())
}

func TestKeyValues(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, KeyValues(&buf, [][2]string{{"Mechanism", "PLAIN"}, {"Authorization ID", "jdoe"}}))
	assert.Contains(t, buf.String(), "Mechanism")
	assert.Contains(t, buf.String(), "jdoe")
}

func TestTable(t *testing.T) {
	tbl := NewTable("a", "b")
	tbl.AddRow("1", "2")
	assert.Equal(t, []string{"a", "b"}, tbl.Headers())
	assert.Equal(t, [][]string{{"1", "2"}}, tbl.Rows())
}
