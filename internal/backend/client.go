package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	appLog "concertcal/internal/log"
	"concertcal/internal/model"
)

// SourceID marks concerts that came from the backend.
const SourceID = "backend"

// HeaderSource supplies the authentication headers for each request.
type HeaderSource interface {
	Header() (http.Header, error)
}

// Client talks to the concert API.
type Client struct {
	baseURL *url.URL
	client  *http.Client
	auth    HeaderSource
}

// NewClient creates a client for baseURL. timeout bounds each request; zero
// means 15 seconds.
func NewClient(baseURL string, timeout time.Duration, auth HeaderSource) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend: base URL %q must be http or https", baseURL)
	}
	if auth == nil {
		return nil, errors.New("backend: auth header source is nil")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: u,
		client:  &http.Client{Timeout: timeout},
		auth:    auth,
	}, nil
}

// calendarResponse is the body of GET /calendar. Keys of MonthConcert are
// days of month as decimal strings.
type calendarResponse struct {
	MonthConcert map[string][]concertDTO `json:"monthConcert"`
}

type concertDTO struct {
	ConcertIdx int    `json:"concert_idx"`
	ArtistIdx  int    `json:"artist_idx"`
	ArtistName string `json:"artist_name"`
	PostingURL string `json:"posting_url"`
}

// FetchConcerts loads the concerts of (year, month); month is 1-based.
func (c *Client) FetchConcerts(ctx context.Context, year, month int) (model.ConcertsByDay, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("backend: month %d out of range 1..12", month)
	}

	q := url.Values{}
	q.Set("year", strconv.Itoa(year))
	q.Set("month", strconv.Itoa(month))

	var body calendarResponse
	if err := c.do(ctx, http.MethodGet, "/calendar", q, nil, &body); err != nil {
		return nil, err
	}

	out := make(model.ConcertsByDay, len(body.MonthConcert))
	for key, concerts := range body.MonthConcert {
		day, err := strconv.Atoi(key)
		if err != nil || day < 1 || day > 31 {
			return nil, fmt.Errorf("backend: invalid day %q in calendar response", key)
		}
		for _, dto := range concerts {
			out.Add(day, model.Concert{
				ConcertIdx: dto.ConcertIdx,
				ArtistIdx:  dto.ArtistIdx,
				ArtistName: dto.ArtistName,
				PostingURL: dto.PostingURL,
				SourceID:   SourceID,
			})
		}
	}

	appLog.Info("backend calendar fetched", "year", year, "month", month, "days", len(out), "concerts", out.Count())
	return out, nil
}

// FollowArtist follows or unfollows an artist.
func (c *Client) FollowArtist(ctx context.Context, artistIdx int, follow bool) error {
	payload := struct {
		ArtistIdx int  `json:"artistIdx"`
		Follow    bool `json:"follow"`
	}{artistIdx, follow}
	if err := c.do(ctx, http.MethodPost, "/artist/follow", nil, payload, nil); err != nil {
		return err
	}
	appLog.Info("artist follow updated", "artist_idx", artistIdx, "follow", follow)
	return nil
}

// FollowConcert saves or unsaves a concert.
func (c *Client) FollowConcert(ctx context.Context, concertIdx int, follow bool) error {
	payload := struct {
		ConcertIdx int  `json:"concertIdx"`
		Follow     bool `json:"follow"`
	}{concertIdx, follow}
	if err := c.do(ctx, http.MethodPost, "/concert/save", nil, payload, nil); err != nil {
		return err
	}
	appLog.Info("concert save updated", "concert_idx", concertIdx, "follow", follow)
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	header, err := c.auth.Header()
	if err != nil {
		return err
	}

	u := *c.baseURL
	u.Path = u.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend: encode %s: %w", path, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("backend: %s: %w", path, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNetwork, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode, Status: resp.Status, Path: path}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: decode %s: %w", path, err)
	}
	return nil
}
