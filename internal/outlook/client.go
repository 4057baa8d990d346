// internal/outlook/client.go
package outlook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/imeetingbooker/meetingbooker/internal/availability"
)

const (
	defaultBaseURL  = "https://graph.microsoft.com/v1.0"
	defaultTimezone = "Europe/London"
	requestTimeout  = 15 * time.Second
	userAgent       = "meetingbooker/1.0"
)

// Graph renders naive local datetimes, with or without fractional seconds.
const (
	graphTimeLayout     = "2006-01-02T15:04:05.0000000"
	graphTimeLayoutBare = "2006-01-02T15:04:05"
)

// Account identifies one calendar owner against the Graph API.
type Account struct {
	OwnerID int64
	Email   string
}

type tokenProvider interface {
	EnsureFreshToken(ctx context.Context, ownerID int64) (*oauth2.Token, error)
}

// Client talks to the Microsoft Graph calendar endpoints on behalf of an
// owner account. Every call refreshes the owner credential first.
type Client struct {
	baseURL  string
	timezone string
	tokens   tokenProvider
	httpDo   *http.Client
}

// NewClient builds a Graph client. baseURL and timezone fall back to the
// production endpoint and the calendar's home timezone when empty.
func NewClient(tokens tokenProvider, baseURL, timezone string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timezone == "" {
		timezone = defaultTimezone
	}
	return &Client{
		baseURL:  baseURL,
		timezone: timezone,
		tokens:   tokens,
		httpDo:   &http.Client{Timeout: requestTimeout},
	}
}

// Event is the payload for creating or updating a remote calendar event.
type Event struct {
	Subject       string
	Body          string
	Start         time.Time
	End           time.Time
	AttendeeEmail string
	AttendeeName  string
}

type msDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type msEventPayload struct {
	Subject string `json:"subject"`
	Body    struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	Start     msDateTime   `json:"start"`
	End       msDateTime   `json:"end"`
	Attendees []msAttendee `json:"attendees,omitempty"`
}

type msAttendee struct {
	EmailAddress struct {
		Address string `json:"address"`
		Name    string `json:"name"`
	} `json:"emailAddress"`
	Type string `json:"type"`
}

type msEvent struct {
	ID       string     `json:"id"`
	IsAllDay bool       `json:"isAllDay"`
	Start    msDateTime `json:"start"`
	End      msDateTime `json:"end"`
}

// FetchBusyIntervals lists the account's events between start and end via
// the calendar view, parsed into busy intervals for the engine.
func (c *Client) FetchBusyIntervals(ctx context.Context, acct Account, start, end time.Time) ([]availability.BusyInterval, error) {
	params := url.Values{}
	params.Set("startdatetime", start.Format(graphTimeLayoutBare))
	params.Set("enddatetime", end.Format(graphTimeLayoutBare))
	params.Set("$orderby", "start/dateTime")

	endpoint := fmt.Sprintf("%s/me/calendarview?%s", c.baseURL, params.Encode())
	resp, err := c.call(ctx, acct, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var payload struct {
		Value []msEvent `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode calendar view: %w", err)
	}

	intervals := make([]availability.BusyInterval, 0, len(payload.Value))
	for _, ev := range payload.Value {
		iv, err := parseInterval(ev)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("event_id", ev.ID).Msg("Skipping unparseable calendar event")
			continue
		}
		intervals = append(intervals, iv)
	}
	return intervals, nil
}

// CreateEvent books the event on the account's calendar and returns the
// remote event id. Graph answers 201 on success.
func (c *Client) CreateEvent(ctx context.Context, acct Account, event Event) (string, error) {
	body, err := json.Marshal(c.payloadFor(event, true))
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}

	endpoint := fmt.Sprintf("%s/me/events", c.baseURL)
	resp, err := c.call(ctx, acct, http.MethodPost, endpoint, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", responseError(resp)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode created event: %w", err)
	}
	return created.ID, nil
}

// UpdateEvent patches the remote event's subject, body and times.
func (c *Client) UpdateEvent(ctx context.Context, acct Account, remoteID string, event Event) error {
	body, err := json.Marshal(c.payloadFor(event, false))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	endpoint := fmt.Sprintf("%s/me/events/%s", c.baseURL, url.PathEscape(remoteID))
	resp, err := c.call(ctx, acct, http.MethodPatch, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// DeleteEvent removes the remote event. Graph answers 204 when the event
// was deleted.
func (c *Client) DeleteEvent(ctx context.Context, acct Account, remoteID string) (bool, error) {
	endpoint := fmt.Sprintf("%s/me/events/%s", c.baseURL, url.PathEscape(remoteID))
	resp, err := c.call(ctx, acct, http.MethodDelete, endpoint, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return true, nil
	}
	return false, responseError(resp)
}

func (c *Client) payloadFor(event Event, withAttendee bool) msEventPayload {
	payload := msEventPayload{Subject: event.Subject}
	payload.Body.ContentType = "HTML"
	payload.Body.Content = event.Body
	payload.Start = msDateTime{DateTime: event.Start.Format(graphTimeLayoutBare), TimeZone: c.timezone}
	payload.End = msDateTime{DateTime: event.End.Format(graphTimeLayoutBare), TimeZone: c.timezone}
	if withAttendee && event.AttendeeEmail != "" {
		var attendee msAttendee
		attendee.EmailAddress.Address = event.AttendeeEmail
		attendee.EmailAddress.Name = event.AttendeeName
		attendee.Type = "optional"
		payload.Attendees = []msAttendee{attendee}
	}
	return payload
}

// call refreshes the owner credential, builds the request with the Graph
// instrumentation headers, and maps transport failures to
// ErrRemoteUnavailable.
func (c *Client) call(ctx context.Context, acct Account, method, endpoint string, body []byte) (*http.Response, error) {
	token, err := c.tokens.EnsureFreshToken(ctx, acct.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build graph request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-AnchorMailbox", acct.Email)
	req.Header.Set("Prefer", fmt.Sprintf("outlook.timezone=%q", c.timezone))
	req.Header.Set("client-request-id", uuid.New().String())
	req.Header.Set("return-client-request-id", "true")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpDo.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	return resp, nil
}

func responseError(resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrRemoteUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	default:
		return RemoteRejectedError{StatusCode: resp.StatusCode, Reason: string(detail)}
	}
}

func parseInterval(ev msEvent) (availability.BusyInterval, error) {
	if ev.IsAllDay {
		if len(ev.Start.DateTime) < 10 {
			return availability.BusyInterval{}, fmt.Errorf("all-day event %s has no date", ev.ID)
		}
		day, err := time.ParseInLocation("2006-01-02", ev.Start.DateTime[:10], time.Local)
		if err != nil {
			return availability.BusyInterval{}, fmt.Errorf("parse all-day start: %w", err)
		}
		return availability.BusyInterval{Start: day, End: day.AddDate(0, 0, 1), AllDay: true}, nil
	}

	start, err := parseGraphTime(ev.Start.DateTime)
	if err != nil {
		return availability.BusyInterval{}, fmt.Errorf("parse start: %w", err)
	}
	end, err := parseGraphTime(ev.End.DateTime)
	if err != nil {
		return availability.BusyInterval{}, fmt.Errorf("parse end: %w", err)
	}
	return availability.BusyInterval{Start: start, End: end}, nil
}

func parseGraphTime(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(graphTimeLayout, s, time.Local); err == nil {
		return t, nil
	}
	return time.ParseInLocation(graphTimeLayoutBare, s, time.Local)
}
