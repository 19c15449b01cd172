package export

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Shugur-Network/torstatus/internal/models"
	"github.com/Shugur-Network/torstatus/internal/query"
	"github.com/Shugur-Network/torstatus/internal/report"
)

func relays() []models.Relay {
	return []models.Relay{
		{Fingerprint: "CC", Nickname: "zeta", Address: "10.0.0.3", ORPort: 9001, IsExit: true, Contact: "ops, \"zeta\""},
		{Fingerprint: "AA", Nickname: "alpha", Address: "10.0.0.1", ORPort: 443},
		{Fingerprint: "BB", Nickname: "beta", Address: "10.0.0.2", ORPort: 9001, IsExit: true},
	}
}

func parse(t *testing.T, body []byte) [][]string {
	t.Helper()
	r := csv.NewReader(strings.NewReader(string(body)))
	r.FieldsPerRecord = -1
	recs, err := r.ReadAll()
	require.NoError(t, err)
	return recs
}

func TestReport(t *testing.T) {
	t.Parallel()

	current := []string{report.ColRouterName, report.ColHostname, report.ColIcons, report.ColORPort, report.ColContact, report.ColNamed}
	d, err := Report(relays(), query.Options{}, current)
	require.NoError(t, err)

	assert.Equal(t, "current_results.csv", d.Filename)
	assert.Equal(t, "text/csv", d.ContentType)
	assert.Equal(t, "attachment; filename=current_results.csv", d.ContentDisposition())
	assert.Equal(t, 3, d.Rows)

	assert.Equal(t, [][]string{
		{"Router Name", "ORPort", "Contact"},
		{"alpha", "443", "No contact information given"},
		{"beta", "9001", "No contact information given"},
		{"zeta", "9001", "ops, \"zeta\""},
	}, parse(t, d.Body))
}

func TestReportFromSpec_MissingValuesUseSentinels(t *testing.T) {
	t.Parallel()

	current := []string{report.ColRouterName, report.ColContact, report.ColPlatform, report.ColDirPort}
	d, err := ReportFromSpec([]models.Relay{{Fingerprint: "DD", Nickname: "n", Address: "10.0.0.4"}}, current)
	require.NoError(t, err)
	assert.Equal(t, "Router Name,Contact,Platform,DirPort\nn,No contact information given,NotAvailable,None\n", string(d.Body))

	zero := 0
	d, err = ReportFromSpec([]models.Relay{{Fingerprint: "DD", Nickname: "n", DirPort: &zero}}, []string{report.ColDirPort})
	require.NoError(t, err)
	assert.Equal(t, "DirPort\nNone\n", string(d.Body))
}

func TestReport_AppliesQueryOptions(t *testing.T) {
	t.Parallel()

	d, err := Report(relays(), query.Options{"isexit": "yes", "sortListings": "nickname", "sortOrder": "descending"}, []string{report.ColRouterName})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Router Name"}, {"zeta"}, {"beta"}}, parse(t, d.Body))

	_, err = Report(relays(), query.Options{"searchValue": "many", "criteria": "orport", "boolLogic": "equals"}, []string{report.ColRouterName})
	require.Error(t, err)
}

func TestAddressList(t *testing.T) {
	t.Parallel()

	d, err := AddressList(relays(), false)
	require.NoError(t, err)
	assert.Equal(t, "all_ips.csv", d.Filename)
	assert.Equal(t, "10.0.0.3\n10.0.0.1\n10.0.0.2\n", string(d.Body))
	assert.Equal(t, 3, d.Rows)

	d, err = AddressList(relays(), true)
	require.NoError(t, err)
	assert.Equal(t, "all_exit_ips.csv", d.Filename)
	assert.Equal(t, KindExitIPs, d.Kind)
	assert.Equal(t, "10.0.0.3\n10.0.0.2\n", string(d.Body))

	d, err = AddressList(nil, true)
	require.NoError(t, err)
	assert.Empty(t, d.Body)
}

func TestReport_HeaderAndRowsAlignUnderPermutation(t *testing.T) {
	all := report.ColumnNames()
	rapid.Check(t, func(t *rapid.T) {
		current := rapid.Permutation(all).Draw(t, "perm")
		current = current[:rapid.IntRange(1, len(current)).Draw(t, "n")]

		d, err := ReportFromSpec(relays(), current)
		if err != nil {
			t.Fatal(err)
		}
		r := csv.NewReader(strings.NewReader(string(d.Body)))
		r.FieldsPerRecord = -1
		recs, err := r.ReadAll()
		if err != nil {
			t.Fatal(err)
		}

		want := report.CSVColumns(current)
		if len(want) == 0 {
			return
		}
		if strings.Join(recs[0], "|") != strings.Join(want, "|") {
			t.Fatalf("header %v, want %v", recs[0], want)
		}
		for _, rec := range recs[1:] {
			if len(rec) != len(want) {
				t.Fatalf("row %v has %d fields, header has %d", rec, len(rec), len(want))
			}
		}
		for i, rel := range relays() {
			if got := recs[i+1]; strings.Join(got, "|") != strings.Join(report.CSVValues(&rel, want), "|") {
				t.Fatalf("row %d = %v", i, got)
			}
		}
	})
}
