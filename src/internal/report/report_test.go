package report

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	r := New()
	e := NewEntry("0xAbC")
	e.SetContract(&ContractRecord{
		Name: "Vault",
		Functions: []*FunctionRecord{{
			Function:            "withdraw",
			Modifiers:           []string{"onlyOwner"},
			SenderConditions:    []string{"require(bool,string)(msg.sender == owner,not owner)"},
			ReadInsideModifiers: []string{"owner"},
			Written:             []string{"balance"},
		}},
	})
	r.Add(e)
	return r
}

func TestEncodeFieldOrder(t *testing.T) {
	data, err := sampleReport().Encode()
	require.NoError(t, err)

	expected := `{
    "0xAbC": {
        "Vault": {
            "Contract_Name": "Vault",
            "Functions": [
                {
                    "Function": "withdraw",
                    "Modifiers": [
                        "onlyOwner"
                    ],
                    "msg.sender_conditions": [
                        "require(bool,string)(msg.sender == owner,not owner)"
                    ],
                    "state_variables_read_inside_modifiers": [
                        "owner"
                    ],
                    "state_variables_written": [
                        "balance"
                    ]
                }
            ]
        }
    }
}
`
	assert.Equal(t, expected, string(data))
}

func TestEncodeEmptyListsAndValues(t *testing.T) {
	r := New()
	e := NewEntry("0x1")
	f := &FunctionRecord{Function: "f"}
	f.SetValue("owner", "0x00000000000000000000000000000000000000AA")
	f.SetValue("cap", big.NewInt(7))
	f.SetValue("Function", "shadow")
	f.AddNonStored("MAX")
	f.AddNonStored("MAX")
	e.SetContract(&ContractRecord{Name: "C", Functions: []*FunctionRecord{f}})
	e.ProxyAddress = "0x1"
	e.ImplementationAddress = "0x2"
	e.StorageValues = map[string]any{"owner": "0xAA", "cap": big.NewInt(7)}
	r.Add(e)

	data, err := r.Encode()
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `"Modifiers": []`)
	assert.Contains(t, out, `"immutables_and_constants": [
                        "MAX"
                    ],
                    "cap": 7,
                    "owner": "0x00000000000000000000000000000000000000AA"`)
	assert.Contains(t, out, `"Function": "f"`)
	assert.NotContains(t, out, "shadow")
	assert.Less(t, strings.Index(out, "Implementation_Contract_Address"), strings.Index(out, "Proxy_Address"))
	assert.Less(t, strings.Index(out, `"C": {`), strings.Index(out, "storage_values"))
}

func TestReportKeepsInsertionOrder(t *testing.T) {
	r := New()
	r.Add(NewEntry("0xB"))
	r.Add(NewEntry("0xA"))
	r.Add(NewEntry("0xB"))
	assert.Equal(t, []string{"0xB", "0xA"}, r.Addresses())

	data, err := r.Encode()
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"0xB\": {},\n    \"0xA\": {}\n}\n", string(data))
}

func TestEmptyReport(t *testing.T) {
	data, err := New().Encode()
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))
}

func TestStaticJSONDropsValues(t *testing.T) {
	r := sampleReport()
	e := r.Entry("0xAbC")
	e.StorageValues = map[string]any{"owner": "0x1"}
	e.Records()[0].SetValue("owner", "0x1")

	static, err := e.StaticJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(static), "storage_values")
	assert.NotContains(t, string(static), `"owner":"0x1"`)
	// original record untouched
	assert.Equal(t, "0x1", e.Records()[0].Values["owner"])
}

func TestReporterSavesToMemory(t *testing.T) {
	ctx := context.Background()
	storage := NewURLStorage("mem://localhost/reports")
	reporter := NewReporter(NewMarkdownGenerator(), storage)

	location, err := reporter.SaveJSON(ctx, sampleReport(), "permissions.json")
	require.NoError(t, err)
	assert.Equal(t, "mem://localhost/reports/permissions.json", location)

	data, err := storage.Load(ctx, "permissions.json")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{\n    \"0xAbC\""))

	_, err = reporter.SaveMarkdown(ctx, sampleReport(), Summary{Target: "demo", Chain: "ethereum", Block: "latest", ScanTime: time.Unix(0, 0)}, "permissions.md")
	require.NoError(t, err)
	md, err := storage.Load(ctx, "permissions.md")
	require.NoError(t, err)
	assert.Contains(t, string(md), "| `withdraw` | `onlyOwner` |")
	assert.Contains(t, string(md), "- **Guarded Functions**: 1")
}

func TestSanitizeFilenameComponent(t *testing.T) {
	assert.Equal(t, "unknown", SanitizeFilenameComponent("  "))
	assert.Equal(t, "my_project", SanitizeFilenameComponent("my project"))
	assert.Equal(t, "unknown", SanitizeFilenameComponent("///"))
}
