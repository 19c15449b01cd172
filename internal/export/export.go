// Package export serialises report results as CSV downloads: the column
// report of the current query and plain address lists.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/Shugur-Network/torstatus/internal/constants"
	"github.com/Shugur-Network/torstatus/internal/models"
	"github.com/Shugur-Network/torstatus/internal/query"
	"github.com/Shugur-Network/torstatus/internal/report"
)

// Kind names an export.
type Kind string

const (
	KindReport  Kind = "report"
	KindAllIPs  Kind = "ips"
	KindExitIPs Kind = "exit-ips"
)

// Download is a finished export.
type Download struct {
	Kind        Kind
	Filename    string
	ContentType string
	Body        []byte
	Rows        int
}

// ContentDisposition returns the header value that makes browsers save the
// download under its fixed name.
func (d *Download) ContentDisposition() string {
	return fmt.Sprintf(constants.ContentDisposition, d.Filename)
}

// WriteReport writes a header line of display names followed by one line
// per relay, using the CSV projection of current. Relays are written in the
// order given.
func WriteReport(w io.Writer, relays []models.Relay, current []string) (int, error) {
	cols := report.CSVColumns(current)
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return 0, fmt.Errorf("writing header: %w", err)
	}
	for i := range relays {
		if err := writeRecord(w, cw, report.CSVValues(&relays[i], cols)); err != nil {
			return i, fmt.Errorf("writing relay %s: %w", relays[i].Fingerprint, err)
		}
	}
	cw.Flush()
	return len(relays), cw.Error()
}

// writeRecord quotes a lone empty field so that the line is not read back
// as a blank line.
func writeRecord(w io.Writer, cw *csv.Writer, rec []string) error {
	if len(rec) != 1 || rec[0] != "" {
		return cw.Write(rec)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\"\"\n")
	return err
}

// Report filters and orders relays by the query options and renders the
// result as current_results.csv.
func Report(relays []models.Relay, opts query.Options, current []string) (*Download, error) {
	spec, err := query.Compile(opts)
	if err != nil {
		return nil, err
	}
	return ReportFromSpec(spec.Apply(relays), current)
}

// ReportFromSpec renders relays that were already filtered and ordered,
// typically by the store.
func ReportFromSpec(relays []models.Relay, current []string) (*Download, error) {
	var buf bytes.Buffer
	n, err := WriteReport(&buf, relays, current)
	if err != nil {
		return nil, err
	}
	return &Download{
		Kind:        KindReport,
		Filename:    constants.ReportCSVFilename,
		ContentType: constants.CSVContentType,
		Body:        buf.Bytes(),
		Rows:        n,
	}, nil
}

// WriteAddressList writes one address per line with no header. With
// exitOnly set, relays without the exit flag are skipped.
func WriteAddressList(w io.Writer, relays []models.Relay, exitOnly bool) (int, error) {
	cw := csv.NewWriter(w)
	n := 0
	for i := range relays {
		if exitOnly && !relays[i].IsExit {
			continue
		}
		if err := cw.Write([]string{relays[i].Address}); err != nil {
			return n, fmt.Errorf("writing address: %w", err)
		}
		n++
	}
	cw.Flush()
	return n, cw.Error()
}

// AddressListFilename returns the fixed download name of an address list.
func AddressListFilename(exitOnly bool) string {
	if exitOnly {
		return constants.ExitIPsCSVFilename
	}
	return constants.AllIPsCSVFilename
}

// AddressList renders all_ips.csv or all_exit_ips.csv.
func AddressList(relays []models.Relay, exitOnly bool) (*Download, error) {
	var buf bytes.Buffer
	n, err := WriteAddressList(&buf, relays, exitOnly)
	if err != nil {
		return nil, err
	}
	kind := KindAllIPs
	if exitOnly {
		kind = KindExitIPs
	}
	return &Download{
		Kind:        kind,
		Filename:    AddressListFilename(exitOnly),
		ContentType: constants.CSVContentType,
		Body:        buf.Bytes(),
		Rows:        n,
	}, nil
}
