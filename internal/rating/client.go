// Package rating talks to the tournament rating directory (api.rating.chgk.net).
package rating

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"chgk-poll-bot/internal/metrics"
	"chgk-poll-bot/internal/models"
)

const (
	DefaultBaseURL = "https://api.rating.chgk.net"
	DefaultTimeout = 15 * time.Second

	// Pages are requested from 1 while below maxPages, stopping early on an empty page.
	maxPages            = 30
	tournamentsPerPage  = 50
	syncRequestsPerPage = 30

	// StatusAccepted is the status of a sync request the venue actually hosts.
	StatusAccepted = "A"

	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04"
)

// The directory interprets dates in Moscow time.
var moscow = mustLoad("Europe/Moscow")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

// Client is the part of the directory the bot uses.
type Client interface {
	ListTournaments(ctx context.Context, w Window) ([]models.Tournament, error)
	GetTournament(ctx context.Context, id int64) (*Detail, error)
	ListSyncRequestIDs(ctx context.Context, venueID string, after time.Time) ([]string, error)
	ResolveSyncRequest(ctx context.Context, id string) (int64, time.Time, error)
	ListNewSyncRequests(ctx context.Context, venueID string, issuedAfter time.Time) ([]models.SyncRequest, error)
}

// HTTPClient implements Client over the public REST API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     logrus.FieldLogger
	metrics    *metrics.Metrics
}

// NewHTTPClient builds a client; rps <= 0 disables throttling.
func NewHTTPClient(baseURL string, rps float64, logger logrus.FieldLogger, m *metrics.Metrics) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger.WithField("component", "rating"),
		metrics:    m,
	}
}

// makeRequest performs a GET and decodes the JSON answer into result.
func (c *HTTPClient) makeRequest(ctx context.Context, method, endpoint string, query url.Values, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	log := c.logger.WithField("url", u)
	log.Debug("rating api request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.UpstreamError("rating", method)
		log.WithError(err).Warn("rating api unreachable")
		return fmt.Errorf("%w: %s: %v", ErrUpstream, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.UpstreamError("rating", method)
		return fmt.Errorf("%w: read %s: %v", ErrUpstream, endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.UpstreamError("rating", method)
		log.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"response":    truncateBody(body),
		}).Warn("rating api request failed")
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: truncateBody(body)}
	}

	if err := json.Unmarshal(body, result); err != nil {
		c.metrics.UpstreamError("rating", method)
		log.WithError(err).Warn("rating api answered with malformed json")
		return fmt.Errorf("%w: decode %s: %v", ErrUpstream, endpoint, err)
	}
	return nil
}

func truncateBody(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

// fetchPages walks the paginated collection at endpoint. Items gathered before
// a failing page are returned along with the error.
func fetchPages[T any](ctx context.Context, c *HTTPClient, method, endpoint string, query url.Values, perPage int) ([]T, error) {
	var out []T
	for page := 1; page < maxPages; page++ {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("page", strconv.Itoa(page))
		q.Set("itemsPerPage", strconv.Itoa(perPage))

		var items []T
		if err := c.makeRequest(ctx, method, endpoint, q, &items); err != nil {
			return out, err
		}
		if len(items) == 0 {
			break
		}
		out = append(out, items...)
	}
	return out, nil
}

// ListTournaments returns synchronous and asynchronous tournaments that started
// during the month before w.Date and are still running at w.Date (or during the
// 08:00-22:00 span of that day when w.WithTime is false). Entries without an id
// are skipped.
func (c *HTTPClient) ListTournaments(ctx context.Context, w Window) ([]models.Tournament, error) {
	q := url.Values{}
	q.Set("dateStart[after]", w.Date.AddDate(0, -1, 0).Format(dateLayout))
	if w.WithTime {
		at := w.Date.In(moscow).Format(dateTimeLayout)
		q.Set("dateStart[before]", at)
		q.Set("dateEnd[after]", at)
	} else {
		day := w.Date.Format(dateLayout)
		q.Set("dateStart[before]", day+" 08:00")
		q.Set("dateEnd[after]", day+" 22:00")
	}
	q.Set("type", models.TypeSync+","+models.TypeAsync)

	raw, err := fetchPages[apiTournament](ctx, c, "tournaments", "/tournaments", q, tournamentsPerPage)
	out := make([]models.Tournament, 0, len(raw))
	for _, t := range raw {
		if t.ID == nil {
			c.logger.WithField("name", t.Name).Warn("tournament without id skipped")
			continue
		}
		out = append(out, t.toModel())
	}
	if err != nil {
		return out, fmt.Errorf("list tournaments: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) GetTournament(ctx context.Context, id int64) (*Detail, error) {
	var t apiTournament
	if err := c.makeRequest(ctx, "tournament", fmt.Sprintf("/tournaments/%d", id), nil, &t); err != nil {
		return nil, fmt.Errorf("get tournament %d: %w", id, err)
	}
	return &Detail{Name: t.Name, Editors: t.Editors}, nil
}

// ListSyncRequestIDs returns ids of accepted sync requests at the venue whose
// sitting starts after the given day.
func (c *HTTPClient) ListSyncRequestIDs(ctx context.Context, venueID string, after time.Time) ([]string, error) {
	if venueID == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("dateStart[after]", after.Format(dateLayout))

	raw, err := fetchPages[apiSyncRequest](ctx, c, "venue_requests", venueEndpoint(venueID), q, syncRequestsPerPage)
	var ids []string
	for _, r := range raw {
		if r.Status == StatusAccepted && r.ID != "" {
			ids = append(ids, r.ID.String())
		}
	}
	if err != nil {
		return ids, fmt.Errorf("list sync requests for venue %s: %w", venueID, err)
	}
	return ids, nil
}

// ResolveSyncRequest returns the tournament a sync request refers to and when
// the request was issued.
func (c *HTTPClient) ResolveSyncRequest(ctx context.Context, id string) (int64, time.Time, error) {
	var r apiSyncRequest
	if err := c.makeRequest(ctx, "sync_request", "/tournament_synch_requests/"+url.PathEscape(id), nil, &r); err != nil {
		return 0, time.Time{}, fmt.Errorf("resolve sync request %s: %w", id, err)
	}
	if r.TournamentID == nil {
		return 0, time.Time{}, fmt.Errorf("sync request %s: tournamentId: %w", id, ErrMissingField)
	}
	issued := parseTime(r.IssuedAt)
	if issued.IsZero() {
		return 0, time.Time{}, fmt.Errorf("sync request %s: issuedAt: %w", id, ErrMissingField)
	}
	return *r.TournamentID, issued, nil
}

// ListNewSyncRequests returns requests at the venue issued after the given moment.
func (c *HTTPClient) ListNewSyncRequests(ctx context.Context, venueID string, issuedAfter time.Time) ([]models.SyncRequest, error) {
	if venueID == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("issuedAt[after]", issuedAfter.In(moscow).Format(dateTimeLayout))

	raw, err := fetchPages[apiSyncRequest](ctx, c, "venue_requests", venueEndpoint(venueID), q, syncRequestsPerPage)
	out := make([]models.SyncRequest, 0, len(raw))
	for _, r := range raw {
		sr := models.SyncRequest{
			ID:       r.ID.String(),
			Status:   r.Status,
			StartsAt: parseTime(r.DateStart),
		}
		if r.TournamentID != nil {
			sr.TournamentID = *r.TournamentID
		}
		if r.Representative != nil {
			sr.Representative = *r.Representative
		}
		switch {
		case r.Narrator != nil:
			sr.Narrator = *r.Narrator
		case len(r.Narrators) > 0:
			sr.Narrator = r.Narrators[0]
		default:
			c.logger.WithField("sync_request", sr.ID).Warn("sync request without narrators")
		}
		out = append(out, sr)
	}
	if err != nil {
		return out, fmt.Errorf("list new sync requests for venue %s: %w", venueID, err)
	}
	return out, nil
}

func venueEndpoint(venueID string) string {
	return "/venues/" + url.PathEscape(venueID) + "/requests"
}
