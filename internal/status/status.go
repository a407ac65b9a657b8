package status

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/common/expfmt"
	"github.com/samber/lo"

	"github.com/lobbyisup/lobbyisup/internal/metrics"
)

const defaultTimeout = 10 * time.Second

// Report is the condensed state of one instance.
type Report struct {
	Endpoint  string
	FetchedAt time.Time

	Connected       bool
	ConnectAttempts float64
	Disconnects     map[string]float64

	Lobbies       float64
	LastUpdate    time.Time
	Notifications float64
	Expired       float64

	Frames      map[string]float64
	ParseErrors float64

	TrackedKeys float64
	Watchers    float64
	Rejections  map[string]float64
	Evictions   float64
}

// authRoundTripper injects an API key header into every outgoing request.
type authRoundTripper struct {
	base   http.RoundTripper
	header string
	key    string
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set(t.header, t.key)
	return t.base.RoundTrip(req)
}

// NewClient returns an http.Client that sends key in header when both are set.
func NewClient(header, key string) *http.Client {
	var transport http.RoundTripper = http.DefaultTransport
	if header != "" && key != "" {
		transport = &authRoundTripper{base: transport, header: header, key: key}
	}
	return &http.Client{Transport: transport, Timeout: defaultTimeout}
}

// Fetch scrapes url and builds a Report from the series in namespace. An
// empty namespace selects metrics.DefaultNamespace.
func Fetch(ctx context.Context, client *http.Client, url, namespace string) (*Report, error) {
	mfs, err := fetchMetrics(ctx, client, url)
	if err != nil {
		return nil, fmt.Errorf("status: %s: %w", url, err)
	}
	r := Summarize(mfs, namespace)
	r.Endpoint = url
	return r, nil
}

// Summarize condenses parsed metric families into a Report.
func Summarize(mfs map[string]*dto.MetricFamily, namespace string) *Report {
	if namespace == "" {
		namespace = metrics.DefaultNamespace
	}
	get := func(name string) *dto.MetricFamily { return mfs[namespace+"_"+name] }

	r := &Report{
		FetchedAt:       time.Now().UTC(),
		Connected:       sumFamily(get("upstream_connected")) > 0,
		ConnectAttempts: sumFamily(get("upstream_connect_attempts_total")),
		Disconnects:     byLabel(get("upstream_disconnects_total"), "reason"),
		Lobbies:         sumFamily(get("cache_lobbies")),
		Notifications:   sumFamily(get("cache_notifications_total")),
		Expired:         sumFamily(get("cache_expired_total")),
		Frames:          byLabel(get("feed_frames_total"), "kind"),
		ParseErrors:     sumFamily(get("feed_parse_errors_total")),
		TrackedKeys:     sumFamily(get("watch_tracked_keys")),
		Watchers:        sumFamily(get("watch_watchers")),
		Rejections:      byLabel(get("watch_rejections_total"), "reason"),
		Evictions:       sumFamily(get("watch_evictions_total")),
	}
	if ts := sumFamily(get("cache_last_update_timestamp_seconds")); ts > 0 {
		r.LastUpdate = time.Unix(int64(ts), 0).UTC()
	}
	return r
}

// Write renders r as a borderless two-column table.
func (r *Report) Write(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("  ")

	row := func(k string, v any) { table.Append([]string{k, fmt.Sprint(v)}) }

	row("endpoint", r.Endpoint)
	row("upstream", lo.Ternary(r.Connected, "connected", "disconnected"))
	row("connect attempts", r.ConnectAttempts)
	writeLabeled(row, "disconnects", r.Disconnects)
	row("lobbies", r.Lobbies)
	if r.LastUpdate.IsZero() {
		row("last update", "never")
	} else {
		row("last update", r.LastUpdate.Format(time.RFC3339))
	}
	row("notifications", r.Notifications)
	row("expired", r.Expired)
	writeLabeled(row, "frames", r.Frames)
	row("parse errors", r.ParseErrors)
	row("tracked lobbies", r.TrackedKeys)
	row("watchers", r.Watchers)
	writeLabeled(row, "rejections", r.Rejections)
	row("evictions", r.Evictions)
	table.Render()
	return nil
}

func writeLabeled(row func(string, any), prefix string, values map[string]float64) {
	keys := lo.Keys(values)
	slices.Sort(keys)
	for _, k := range keys {
		row(prefix+" "+k, values[k])
	}
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
// Returns 0 if mf is nil (metric not present in the scrape).
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		total += value(m)
	}
	return total
}

// byLabel sums mf's samples grouped by the value of label.
func byLabel(mf *dto.MetricFamily, label string) map[string]float64 {
	out := map[string]float64{}
	if mf == nil {
		return out
	}
	for _, m := range mf.GetMetric() {
		lp, ok := lo.Find(m.GetLabel(), func(lp *dto.LabelPair) bool { return lp.GetName() == label })
		if !ok {
			continue
		}
		out[lp.GetValue()] += value(m)
	}
	return out
}

func value(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	}
	return 0
}
