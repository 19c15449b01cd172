package report

// Image is an inline icon.
type Image struct {
	Src    string
	Alt    string
	Title  string
	Width  int
	Height int
}

// Fragment is one piece of cell content: plain text, or an image, either
// optionally wrapped in a link and in bold.
type Fragment struct {
	Text   string
	Image  *Image
	Href   string
	Class  string
	Target string
	Bold   bool
}

// Cell is the rendering of one column of one relay.
type Cell struct {
	Column  string
	ID      string
	Content []Fragment
}

// Text returns the concatenated text of the cell, ignoring images.
func (c Cell) Text() string {
	var s string
	for _, f := range c.Content {
		s += f.Text
	}
	return s
}

// Images returns the images of the cell in order.
func (c Cell) Images() []Image {
	var out []Image
	for _, f := range c.Content {
		if f.Image != nil {
			out = append(out, *f.Image)
		}
	}
	return out
}

// Row is one relay's table row.
type Row struct {
	Class       string
	Fingerprint string
	Cells       []Cell
}

// Cell returns the cell of the named column, if rendered.
func (r Row) Cell(column string) (Cell, bool) {
	for _, c := range r.Cells {
		if c.Column == column {
			return c, true
		}
	}
	return Cell{}, false
}

// Header is one table header cell.
type Header struct {
	Column   string
	ID       string
	Text     string
	Class    string
	SortLink string
	Arrow    string
}

// Row classes, in precedence order.
const (
	RowClassBadExit     = "relayBadExit"
	RowClassHibernating = "relayHibernating"
	RowClassDefault     = "relay"
)

const (
	headerClass         = "relayHeader hoverable"
	headerClassNoSort   = "relayHeader"
	cellIDName          = "col_relayName"
	cellIDIcons         = "col_relayIcons"
	cellIDPrefix        = "col_relay"
	countryDisplayName  = "\u00a0\u00a0"
	arrowAscending      = "↑"
	arrowDescending     = "↓"
	linkClass           = "link"
	detailsTarget       = "_BLANK"
	flagImagePath       = "static/img/flags/%s.gif"
	statusImagePath     = "static/img/status/%s.png"
	osImagePath         = "static/img/os-icons/%s.png"
	badFlagImagePath    = "static/img/bg_%s.png"
	mapURL              = "http://www.openstreetmap.org/?mlon=%s&mlat=%s&zoom=6"
	detailsURL          = "/details/%s"
	whoisURL            = "details/%s/whois"
	badFlagImageSize    = 12
	bandwidthUnitSuffix = " KB/s"
	uptimeUnitSuffix    = " d"
)
