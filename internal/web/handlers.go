package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Shugur-Network/torstatus/internal/columns"
	apperrors "github.com/Shugur-Network/torstatus/internal/errors"
	"github.com/Shugur-Network/torstatus/internal/export"
	"github.com/Shugur-Network/torstatus/internal/logger"
	"github.com/Shugur-Network/torstatus/internal/metrics"
	"github.com/Shugur-Network/torstatus/internal/models"
	"github.com/Shugur-Network/torstatus/internal/query"
	"github.com/Shugur-Network/torstatus/internal/relayutil"
	"github.com/Shugur-Network/torstatus/internal/report"
	"github.com/Shugur-Network/torstatus/internal/session"
	"github.com/Shugur-Network/torstatus/internal/storage"
)

// sortParamPattern captures "<field>_<direction>" sort links such as
// /nickname_descending. Static routes take precedence over it.
const sortParamPattern = "{sort}"

var templateFuncs = template.FuncMap{
	// selected reports whether option key currently has value
	"selected": func(opts query.Options, key, value string) bool {
		return opts[key] == value
	},
	"option": func(opts query.Options, key string) string {
		return opts[key]
	},
	"utc": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(query.PublishedLayout)
	},
}

// Page carries the fields every template shows.
type Page struct {
	Title       string
	Description string
	ValidAfter  time.Time
	RequestID   string
}

type reportPage struct {
	Page
	Options      query.Options
	Table        *report.Table
	Count        int
	FlagFields   []string
	SearchFields []string
}

type columnsPage struct {
	Page
	State    columns.State
	Message  string
	Commands []columns.Command
}

type detailField struct {
	Label string
	Value string
}

type detailsPage struct {
	Page
	Relay  *models.Relay
	Fields []detailField
}

type whoisPage struct {
	Page
	Address string
	Relays  []models.Relay
}

func (s *Server) basePage(r *http.Request) Page {
	p := Page{
		Title:       s.general.Name,
		Description: s.general.Description,
		RequestID:   apperrors.RequestID(r.Context()),
	}
	validAfter, err := s.deps.Store.LatestValidAfter(r.Context())
	if err == nil {
		p.ValidAfter = validAfter
	} else if !errors.Is(err, storage.ErrNoSnapshot) {
		logger.FromContext(r.Context()).Warn("Reading snapshot time failed", zap.Error(err))
	}
	return p
}

func (s *Server) render(w http.ResponseWriter, name string, data any) error {
	var buf strings.Builder
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return apperrors.InternalError("rendering "+name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := w.Write([]byte(buf.String()))
	return err
}

// compile turns options into a spec, reporting bad search input as a
// filter error.
func compile(opts query.Options) (*query.Spec, error) {
	spec, err := query.Compile(opts)
	var ve *query.ValidationError
	if errors.As(err, &ve) {
		return nil, apperrors.FilterError(ve.Field, ve.Error())
	}
	return spec, err
}

// resolveQuery applies the session's cached options to the request and
// stores the new cache value.
func (s *Server) resolveQuery(r *http.Request, sess *session.Session, request query.Options) query.Options {
	effective, cache := query.Resolve(request, sess.Query)
	if _, err := s.deps.Sessions.Update(sess.ID, func(ss *session.Session) error {
		ss.Query = cache
		return nil
	}); err != nil {
		logger.FromContext(r.Context()).Warn("Caching query options failed",
			zap.String("session", sess.ID), zap.Error(err))
	}
	return effective
}

func (s *Server) currentRelays(r *http.Request, spec *query.Spec) ([]models.Relay, error) {
	relays, err := s.deps.Store.CurrentRelays(r.Context(), spec)
	if err != nil {
		return nil, apperrors.HandleDatabaseError("current relays", err)
	}
	return relays, nil
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return apperrors.ValidationError("INVALID_FORM", "The request could not be parsed.")
	}
	sess := s.deps.Sessions.Load(w, r)
	return s.renderReport(w, r, sess, query.FromValues(r.Form))
}

func (s *Server) renderReport(w http.ResponseWriter, r *http.Request, sess *session.Session, request query.Options) error {
	opts := s.resolveQuery(r, sess, request)
	spec, err := compile(opts)
	if err != nil {
		return err
	}
	relays, err := s.currentRelays(r, spec)
	if err != nil {
		return err
	}

	table := report.Project(relays, spec, sess.Columns.Current)
	metrics.AddRowsRendered(len(table.Rows))

	return s.render(w, "report.html", reportPage{
		Page:         s.basePage(r),
		Options:      opts,
		Table:        table,
		Count:        len(table.Rows),
		FlagFields:   query.FlagFields,
		SearchFields: query.SearchFields,
	})
}

// parseSortParam splits "<field>_<direction>" on its last underscore.
func parseSortParam(p string) (string, query.Direction, bool) {
	i := strings.LastIndex(p, "_")
	if i <= 0 {
		return "", "", false
	}
	field, dir := p[:i], query.Direction(p[i+1:])
	if !query.IsSortable(field) || (dir != query.Ascending && dir != query.Descending) {
		return "", "", false
	}
	return field, dir, true
}

func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) error {
	field, dir, ok := parseSortParam(chi.URLParam(r, "sort"))
	if !ok {
		return apperrors.NotFoundError("Page")
	}
	sess := s.deps.Sessions.Load(w, r)
	request := sess.Query.Clone()
	if request == nil {
		request = query.Options{}
	}
	request[query.OptSortListings] = field
	request[query.OptSortOrder] = string(dir)
	return s.renderReport(w, r, sess, request)
}

func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) error {
	sess := s.deps.Sessions.Load(w, r)
	return s.renderColumns(w, r, sess.Columns, "")
}

func (s *Server) renderColumns(w http.ResponseWriter, r *http.Request, state columns.State, msg string) error {
	return s.render(w, "columns.html", columnsPage{
		Page:     s.basePage(r),
		State:    state,
		Message:  msg,
		Commands: []columns.Command{columns.Add, columns.Remove, columns.MoveUp, columns.MoveDown},
	})
}

func (s *Server) handleColumnEdit(w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return apperrors.ValidationError("INVALID_FORM", "The request could not be parsed.")
	}
	cmd := columns.Command(r.PostForm.Get("command"))
	column := r.PostForm.Get("column")
	sess := s.deps.Sessions.Load(w, r)

	updated, err := s.deps.Sessions.Update(sess.ID, func(ss *session.Session) error {
		next, _, err := s.editor.Apply(ss.Columns, cmd, column)
		if err != nil {
			return err
		}
		ss.Columns = next
		return nil
	})

	label := string(cmd)
	if err != nil {
		outcome := "rejected"
		if errors.Is(err, columns.ErrUnknownCommand) {
			label = "unknown"
		}
		metrics.ColumnEdits.WithLabelValues(label, outcome).Inc()
		switch {
		case errors.Is(err, columns.ErrNotInCurrent):
			return apperrors.ColumnError("NOT_CURRENT", fmt.Sprintf("%q is not a current column.", column))
		case errors.Is(err, columns.ErrNotAvailable):
			return apperrors.ColumnError("NOT_AVAILABLE", fmt.Sprintf("%q is not an available column.", column))
		case errors.Is(err, columns.ErrUnknownCommand):
			return apperrors.ValidationError("UNKNOWN_COMMAND", fmt.Sprintf("Unknown column command %q.", cmd))
		case errors.Is(err, session.ErrNotFound):
			return apperrors.NotFoundError("Session")
		}
		return apperrors.InternalError("column edit", err)
	}
	metrics.ColumnEdits.WithLabelValues(label, "applied").Inc()

	return s.renderColumns(w, r, updated.Columns, fmt.Sprintf("%s: %s", cmd, column))
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) error {
	fp := strings.ToUpper(chi.URLParam(r, "fingerprint"))
	relay, err := s.deps.Store.RelayByFingerprint(r.Context(), fp)
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.NotFoundError("Relay")
	}
	if err != nil {
		return apperrors.HandleDatabaseError("relay details", err)
	}
	return s.render(w, "details.html", detailsPage{
		Page:   s.basePage(r),
		Relay:  relay,
		Fields: detailFields(relay),
	})
}

func detailFields(r *models.Relay) []detailField {
	fields := []detailField{
		{"Router Name", r.Nickname},
		{"Fingerprint", r.Fingerprint},
		{"IP", r.Address},
		{"Hostname", r.Hostname},
		{"ORPort", strconv.Itoa(r.ORPort)},
		{"DirPort", report.DirPortText(r)},
		{"Country Code", strings.ToUpper(r.Country)},
		{"Latitude", strconv.FormatFloat(r.Latitude, 'f', 4, 64)},
		{"Longitude", strconv.FormatFloat(r.Longitude, 'f', 4, 64)},
		{"Platform", report.PlatformText(r)},
		{"Contact", report.ContactText(r)},
		{"Bandwidth", strconv.FormatInt(relayutil.BytesToKB(r.BandwidthObserved), 10) + " KB/s"},
		{"Uptime", strconv.FormatInt(relayutil.SecondsToDays(r.Uptime), 10) + " d"},
		{"Last Descriptor Published", r.Published.UTC().Format(query.PublishedLayout)},
	}
	for _, f := range query.FlagFields {
		v, _ := r.Value(f)
		set, _ := v.(bool)
		text := "No"
		if set {
			text = "Yes"
		}
		fields = append(fields, detailField{Label: flagLabel(f), Value: text})
	}
	return fields
}

var flagLabels = map[string]string{
	"isauthority":    "Authority",
	"isbaddirectory": "Bad Directory",
	"isbadexit":      "Bad Exit",
	"isexit":         "Exit",
	"isfast":         "Fast",
	"isguard":        "Guard",
	"ishibernating":  "Hibernating",
	"isnamed":        "Named",
	"isstable":       "Stable",
	"isrunning":      "Running",
	"isvalid":        "Valid",
	"isv2dir":        "V2Dir",
}

func flagLabel(field string) string {
	if l, ok := flagLabels[field]; ok {
		return l
	}
	return field
}

// handleWhois lists the current relays sharing one address.
func (s *Server) handleWhois(w http.ResponseWriter, r *http.Request) error {
	addr := chi.URLParam(r, "address")
	if !relayutil.IsValidIPAddress(addr) {
		return apperrors.NotFoundError("Address")
	}
	spec, err := compile(query.Options{
		query.OptSearchValue: addr,
		query.OptCriteria:    "address",
		query.OptBoolLogic:   query.LogicEquals,
	})
	if err != nil {
		return err
	}
	relays, err := s.currentRelays(r, spec)
	if err != nil {
		return err
	}
	if len(relays) == 0 {
		return apperrors.NotFoundError("Address")
	}
	return s.render(w, "whois.html", whoisPage{
		Page:    s.basePage(r),
		Address: addr,
		Relays:  relays,
	})
}

func writeDownload(w http.ResponseWriter, dl *export.Download) error {
	metrics.Exports.WithLabelValues(string(dl.Kind)).Inc()
	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", dl.ContentDisposition())
	w.Header().Set("Content-Length", strconv.Itoa(len(dl.Body)))
	_, err := w.Write(dl.Body)
	return err
}

func (s *Server) handleReportCSV(w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return apperrors.ValidationError("INVALID_FORM", "The request could not be parsed.")
	}
	sess := s.deps.Sessions.Load(w, r)
	spec, err := compile(s.resolveQuery(r, sess, query.FromValues(r.Form)))
	if err != nil {
		return err
	}
	relays, err := s.currentRelays(r, spec)
	if err != nil {
		return err
	}
	dl, err := export.ReportFromSpec(relays, sess.Columns.Current)
	if err != nil {
		return apperrors.InternalError("report export", err)
	}
	return writeDownload(w, dl)
}

func (s *Server) handleAddressCSV(exitOnly bool) apperrors.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		relays, err := s.currentRelays(r, nil)
		if err != nil {
			return err
		}
		dl, err := export.AddressList(relays, exitOnly)
		if err != nil {
			return apperrors.InternalError("address export", err)
		}
		return writeDownload(w, dl)
	}
}

type exitCheckResponse struct {
	IP               string    `json:"ip"`
	Port             string    `json:"port,omitempty"`
	IsExit           bool      `json:"is_exit"`
	ExitFingerprints []string  `json:"exit_fingerprints,omitempty"`
	Subnet           string    `json:"subnet,omitempty"`
	ExitsInSubnet    []string  `json:"exits_in_subnet,omitempty"`
	IndexBuiltAt     time.Time `json:"index_built_at"`
}

// validPortSpec accepts a single port, an inclusive lo-hi range or the
// wildcard.
func validPortSpec(spec string) bool {
	if spec == relayutil.Wildcard {
		return true
	}
	if lo, hi, ok := strings.Cut(spec, "-"); ok {
		return relayutil.IsValidPort(lo) && relayutil.IsValidPort(hi)
	}
	return relayutil.IsValidPort(spec)
}

// handleExitCheck answers whether an address, optionally on a port or port
// range, is a current exit, and which exits share a subnet with it.
func (s *Server) handleExitCheck(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	ip := q.Get("ip")
	if !relayutil.IsValidIPAddress(ip) {
		return apperrors.ValidationError("INVALID_IP", "ip must be a dotted IPv4 address.")
	}
	port := q.Get("port")
	if port != "" && !validPortSpec(port) {
		return apperrors.ValidationError("INVALID_PORT", "port must be between 0 and 65535, or a lo-hi range.")
	}

	exits, err := s.deps.Exits.Lookup(r.Context(), ip)
	if err != nil {
		return apperrors.HandleDatabaseError("exit lookup", err)
	}
	resp := exitCheckResponse{
		IP:           ip,
		Port:         port,
		IndexBuiltAt: s.deps.Exits.BuiltAt().UTC(),
	}
	for i := range exits {
		if port != "" && !relayutil.PortInRange(strconv.Itoa(exits[i].ORPort), port) {
			continue
		}
		resp.ExitFingerprints = append(resp.ExitFingerprints, exits[i].Fingerprint)
	}
	resp.IsExit = len(resp.ExitFingerprints) > 0

	if subnet := q.Get("subnet"); subnet != "" {
		if _, err := strconv.Atoi(subnet); err == nil {
			subnet = ip + "/" + subnet
		}
		if !relayutil.IPInSubnet(ip, subnet) {
			return apperrors.ValidationError("INVALID_SUBNET", "subnet must contain ip, as a.b.c.d/n or a prefix length.")
		}
		resp.Subnet = subnet
		resp.ExitsInSubnet, err = s.deps.Exits.InSubnet(r.Context(), subnet)
		if err != nil {
			return apperrors.HandleDatabaseError("exit subnet listing", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	return json.NewEncoder(w).Encode(resp)
}
