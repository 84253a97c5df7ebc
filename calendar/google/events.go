package google

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/guilherme-santos/compasssync/internal"
)

const (
	primaryCalendarID = "primary"
	pageSize          = 250
)

// Email returns the address of the user's primary calendar.
func (c *Client) Email(ctx context.Context, user *internal.User) (string, error) {
	svc, err := c.calendarSvc(ctx, user)
	if err != nil {
		return "", err
	}
	var entry *calendar.CalendarListEntry
	err = c.retry(ctx, "get primary calendar", func() (err error) {
		entry, err = svc.CalendarList.Get(primaryCalendarID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", err
	}
	return entry.Id, nil
}

// CalendarIDs lists the calendars the user can write to. The primary calendar
// is always reported as "primary".
func (c *Client) CalendarIDs(ctx context.Context, user *internal.User) ([]string, error) {
	svc, err := c.calendarSvc(ctx, user)
	if err != nil {
		return nil, err
	}

	var (
		ids       []string
		pageToken string
	)
	for {
		var list *calendar.CalendarList
		err := c.retry(ctx, "calendar list", func() (err error) {
			list, err = svc.CalendarList.List().
				Context(ctx).
				MinAccessRole("writer").
				PageToken(pageToken).
				Do()
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, entry := range list.Items {
			if entry.Deleted {
				continue
			}
			if entry.Primary {
				ids = append(ids, primaryCalendarID)
				continue
			}
			ids = append(ids, entry.Id)
		}
		if pageToken = list.NextPageToken; pageToken == "" {
			return ids, nil
		}
	}
}

// ListEvents fetches one page of events. Recurring events come as their base
// plus their modified or cancelled instances.
func (c *Client) ListEvents(ctx context.Context, user *internal.User, calID string, opts internal.ListOptions) (*internal.Page, error) {
	logger := c.logger.With(internal.UserAttr(user.ID), internal.CalendarAttr(calID))

	svc, err := c.calendarSvc(ctx, user)
	if err != nil {
		return nil, err
	}
	call := svc.Events.List(calID).
		Context(ctx).
		ShowDeleted(true).
		SingleEvents(false).
		MaxResults(pageSize)
	switch {
	case opts.SyncToken != "":
		call = call.SyncToken(opts.SyncToken)
	case !opts.TimeMin.IsZero():
		call = call.TimeMin(opts.TimeMin.Format(time.RFC3339))
	}
	if opts.PageToken != "" {
		call = call.PageToken(opts.PageToken)
	}

	var events *calendar.Events
	err = c.retry(ctx, "list events", func() (err error) {
		events, err = call.Do()
		return err
	})
	if err != nil {
		logger.Debug("Unable to list events", slog.Any("error", err))
		return nil, err
	}

	page := &internal.Page{
		Items:         make([]*internal.ProviderEvent, 0, len(events.Items)),
		NextPageToken: events.NextPageToken,
		NextSyncToken: events.NextSyncToken,
	}
	for _, item := range events.Items {
		page.Items = append(page.Items, newProviderEvent(item, events.TimeZone))
	}
	logger.Debug("Events listed", slog.Int("items", len(page.Items)), slog.Bool("more", page.NextPageToken != ""))
	return page, nil
}

func (c *Client) GetEvent(ctx context.Context, user *internal.User, calID, id string) (*internal.ProviderEvent, error) {
	svc, err := c.calendarSvc(ctx, user)
	if err != nil {
		return nil, err
	}
	var gevent *calendar.Event
	err = c.retry(ctx, "get event", func() (err error) {
		gevent, err = svc.Events.Get(calID, id).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return newProviderEvent(gevent, ""), nil
}

func (c *Client) CreateEvent(ctx context.Context, user *internal.User, calID string, e *internal.ProviderEvent) (*internal.ProviderEvent, error) {
	svc, err := c.calendarSvc(ctx, user)
	if err != nil {
		return nil, err
	}
	var gevent *calendar.Event
	err = c.retry(ctx, "create event", func() (err error) {
		gevent, err = svc.Events.Insert(calID, newGoogleEvent(e)).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Event created", internal.UserAttr(user.ID), internal.CalendarAttr(calID), slog.String("event", gevent.Id))
	return newProviderEvent(gevent, ""), nil
}

func (c *Client) UpdateEvent(ctx context.Context, user *internal.User, calID string, e *internal.ProviderEvent) (*internal.ProviderEvent, error) {
	if e.ID == "" {
		return nil, internal.E(internal.ErrValidation, "update event", "event has no provider id", nil)
	}
	svc, err := c.calendarSvc(ctx, user)
	if err != nil {
		return nil, err
	}
	var gevent *calendar.Event
	err = c.retry(ctx, "update event", func() (err error) {
		gevent, err = svc.Events.Update(calID, e.ID, newGoogleEvent(e)).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return newProviderEvent(gevent, ""), nil
}

// DeleteEvent deletes an event. Deleting an event that is already deleted
// succeeds.
func (c *Client) DeleteEvent(ctx context.Context, user *internal.User, calID, id string) error {
	svc, err := c.calendarSvc(ctx, user)
	if err != nil {
		return err
	}
	return c.retry(ctx, "delete event", func() error {
		err := svc.Events.Delete(calID, id).Context(ctx).Do()
		if alreadyDeleted(err) {
			return nil
		}
		return err
	})
}

// Watch opens a push channel on the events of a calendar.
func (c *Client) Watch(ctx context.Context, user *internal.User, calID string, req internal.WatchRequest) (*internal.WatchChannel, error) {
	svc, err := c.calendarSvc(ctx, user)
	if err != nil {
		return nil, err
	}
	channel := &calendar.Channel{
		Id:         req.ChannelID,
		Type:       "web_hook",
		Address:    req.Address,
		Token:      req.Token,
		Expiration: req.Expiration.UnixMilli(),
	}
	var res *calendar.Channel
	err = c.retry(ctx, "watch events", func() (err error) {
		res, err = svc.Events.Watch(calID, channel).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	ch := &internal.WatchChannel{
		ChannelID:  res.Id,
		ResourceID: res.ResourceId,
		Expiration: req.Expiration,
	}
	// the provider may shorten the requested lifetime
	if res.Expiration > 0 {
		ch.Expiration = time.UnixMilli(res.Expiration).UTC()
	}
	return ch, nil
}

// StopChannel stops a push channel. A channel the provider does not know
// fails with internal.ErrChannelGone.
func (c *Client) StopChannel(ctx context.Context, user *internal.User, channelID, resourceID string) error {
	svc, err := c.calendarSvc(ctx, user)
	if err != nil {
		return err
	}
	err = c.retry(ctx, "stop channel", func() error {
		return svc.Channels.Stop(&calendar.Channel{Id: channelID, ResourceId: resourceID}).Context(ctx).Do()
	})
	var gErr *googleapi.Error
	if errors.Is(err, internal.ErrNotFound) && errors.As(err, &gErr) {
		return internal.E(internal.ErrChannelGone, "stop channel", gErr.Message, gErr)
	}
	return err
}
