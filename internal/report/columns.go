// Package report projects relay records onto the user's selected display
// columns. It produces a structured table (headers, rows of cells made of
// text, link and image fragments) for the page templates and raw value rows
// for CSV export.
package report

import "slices"

// Display names of the recognised columns.
const (
	ColCountryCode = "Country Code"
	ColRouterName  = "Router Name"
	ColBandwidth   = "Bandwidth"
	ColUptime      = "Uptime"
	ColIP          = "IP"
	ColHostname    = "Hostname"
	ColIcons       = "Icons"
	ColORPort      = "ORPort"
	ColDirPort     = "DirPort"
	ColBadExit     = "BadExit"
	ColNamed       = "Named"
	ColExit        = "Exit"
	ColAuthority   = "Authority"
	ColFast        = "Fast"
	ColGuard       = "Guard"
	ColHibernating = "Hibernating"
	ColStable      = "Stable"
	ColRunning     = "Running"
	ColValid       = "Valid"
	ColV2Dir       = "V2Dir"
	ColPlatform    = "Platform"
	ColFingerprint = "Fingerprint"
	ColPublished   = "LastDescriptorPublished"
	ColContact     = "Contact"
	ColBadDir      = "BadDir"
)

// Column pairs a display name with the relay field behind it.
type Column struct {
	Name  string
	Field string
}

// Columns is the fixed column vocabulary in its canonical order.
var Columns = []Column{
	{ColCountryCode, "country"},
	{ColRouterName, "nickname"},
	{ColBandwidth, "bandwidthobserved"},
	{ColUptime, "uptime"},
	{ColIP, "address"},
	{ColHostname, "hostname"},
	{ColIcons, "icons"},
	{ColORPort, "orport"},
	{ColDirPort, "dirport"},
	{ColBadExit, "isbadexit"},
	{ColNamed, "isnamed"},
	{ColExit, "isexit"},
	{ColAuthority, "isauthority"},
	{ColFast, "isfast"},
	{ColGuard, "isguard"},
	{ColHibernating, "ishibernating"},
	{ColStable, "isstable"},
	{ColRunning, "isrunning"},
	{ColValid, "isvalid"},
	{ColV2Dir, "isv2dir"},
	{ColPlatform, "platform"},
	{ColFingerprint, "fingerprint"},
	{ColPublished, "published"},
	{ColContact, "contact"},
	{ColBadDir, "isbaddirectory"},
}

var fieldByName = func() map[string]string {
	m := make(map[string]string, len(Columns))
	for _, c := range Columns {
		m[c.Name] = c.Field
	}
	return m
}()

// NotColumns never get a header or cell of their own.
var NotColumns = []string{ColRunning, ColHostname, ColNamed, ColValid}

// IconColumns render inside the Icons cell, in this order.
var IconColumns = []string{
	ColHibernating, ColFast, ColExit, ColV2Dir, ColGuard, ColStable,
	ColAuthority, ColPlatform,
}

// CSVExcluded columns have no tabular projection and are stripped from
// CSV reports.
var CSVExcluded = []string{
	ColHostname, ColIcons, ColValid, ColRunning, ColHibernating, ColNamed,
}

// FieldFor returns the relay field of a display column.
func FieldFor(name string) (string, bool) {
	f, ok := fieldByName[name]
	return f, ok
}

// IsColumn reports whether name is a recognised display column.
func IsColumn(name string) bool {
	_, ok := fieldByName[name]
	return ok
}

// ColumnNames lists every recognised display name in canonical order.
func ColumnNames() []string {
	names := make([]string, 0, len(Columns))
	for _, c := range Columns {
		names = append(names, c.Name)
	}
	return names
}

func isNotColumn(name string) bool  { return slices.Contains(NotColumns, name) }
func isIconColumn(name string) bool { return slices.Contains(IconColumns, name) }

// hasIconColumn reports whether any icon column is selected.
func hasIconColumn(current []string) bool {
	for _, c := range current {
		if isIconColumn(c) {
			return true
		}
	}
	return false
}

// DisplayColumns returns the columns that produce a header and a cell, in
// display order. Unknown names are dropped.
func DisplayColumns(current []string) []string {
	icons := hasIconColumn(current)
	out := make([]string, 0, len(current))
	for _, c := range current {
		switch {
		case !IsColumn(c), isNotColumn(c), isIconColumn(c):
		case c == ColIcons && !icons:
		default:
			out = append(out, c)
		}
	}
	return out
}

// CSVColumns returns current without the CSV-excluded and unknown columns,
// preserving order.
func CSVColumns(current []string) []string {
	out := make([]string, 0, len(current))
	for _, c := range current {
		if IsColumn(c) && !slices.Contains(CSVExcluded, c) {
			out = append(out, c)
		}
	}
	return out
}
