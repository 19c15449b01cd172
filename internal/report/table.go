package report

import (
	"strconv"

	"github.com/Shugur-Network/torstatus/internal/models"
	"github.com/Shugur-Network/torstatus/internal/query"
)

// SortLink returns the link a header points at. It toggles the request's
// current order, not the column's.
func SortLink(order query.Direction, field string) string {
	if order == query.Ascending {
		return "/" + field + "_descending"
	}
	return "/" + field + "_ascending"
}

// Headers builds the header row for the current columns. sortField and
// order describe the sort the request asked for; an empty order means the
// request carried none.
func Headers(current []string, sortField string, order query.Direction) []Header {
	display := DisplayColumns(current)
	headers := make([]Header, 0, len(display))
	for _, col := range display {
		field, _ := FieldFor(col)
		if col == ColIcons {
			headers = append(headers, Header{
				Column: col,
				ID:     field,
				Text:   col,
				Class:  headerClassNoSort,
			})
			continue
		}

		h := Header{
			Column:   col,
			ID:       field,
			Text:     col,
			Class:    headerClass,
			SortLink: SortLink(order, field),
		}
		if col == ColCountryCode {
			h.Text = countryDisplayName
		}
		if sortField == field {
			switch order {
			case query.Ascending:
				h.Arrow = arrowAscending
			case query.Descending:
				h.Arrow = arrowDescending
			}
		}
		headers = append(headers, h)
	}
	return headers
}

// Table is a rendered report ready for templating.
type Table struct {
	Headers []Header
	Rows    []Row
}

// RenderTabular filters and orders relays by the query options and projects
// the survivors onto the current columns. Relays are expected to come from
// a single snapshot.
func RenderTabular(relays []models.Relay, opts query.Options, current []string) (*Table, error) {
	spec, err := query.Compile(opts)
	if err != nil {
		return nil, err
	}
	return Project(spec.Apply(relays), spec, current), nil
}

// Project renders already filtered and ordered relays.
func Project(relays []models.Relay, spec *query.Spec, current []string) *Table {
	var sortField string
	var order query.Direction
	if spec != nil && spec.Sort != nil {
		sortField, order = spec.Sort.Field, spec.Sort.Direction
	}

	p := NewProjector(current)
	t := &Table{
		Headers: Headers(current, sortField, order),
		Rows:    make([]Row, 0, len(relays)),
	}
	for i := range relays {
		t.Rows = append(t.Rows, p.Row(&relays[i]))
	}
	return t
}

// CSVValues returns the raw values of r for the given columns, which should
// come from CSVColumns.
func CSVValues(r *models.Relay, columns []string) []string {
	out := make([]string, 0, len(columns))
	for _, col := range columns {
		out = append(out, rawValue(r, col))
	}
	return out
}

func rawValue(r *models.Relay, col string) string {
	switch col {
	case ColCountryCode:
		return r.Country
	case ColRouterName:
		return r.Nickname
	case ColBandwidth:
		return strconv.FormatInt(r.BandwidthObserved, 10)
	case ColUptime:
		return strconv.FormatInt(r.Uptime, 10)
	case ColIP:
		return r.Address
	case ColFingerprint:
		return r.Fingerprint
	case ColPublished:
		return r.Published.UTC().Format(query.PublishedLayout)
	case ColContact:
		return ContactText(r)
	case ColPlatform:
		return PlatformText(r)
	case ColORPort:
		return strconv.Itoa(r.ORPort)
	case ColDirPort:
		return DirPortText(r)
	}
	if field, ok := FieldFor(col); ok {
		if v, ok := r.Value(field); ok {
			if b, ok := v.(bool); ok {
				return strconv.FormatBool(b)
			}
		}
	}
	return ""
}
