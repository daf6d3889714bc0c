package api

import (
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/companion/internal/notify"
	"github.com/kalambet/companion/internal/reminder"
	"github.com/kalambet/companion/internal/topics"
	"github.com/kalambet/companion/internal/weather"
)

// DashboardResponse is the combined home-screen payload: everything the
// UI needs in one round trip.
type DashboardResponse struct {
	Reminders      []reminder.Reminder   `json:"reminders"`
	Notifications  []notify.Notification `json:"notifications"`
	UnreadCount    int                   `json:"unreadCount"`
	TrendingTopics []topics.Topic        `json:"trendingTopics"`
	Weather        *WeatherResponse      `json:"weather,omitempty"`
}

func handleDashboard(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var resp DashboardResponse

		g, ctx := errgroup.WithContext(r.Context())

		g.Go(func() error {
			reminders, err := deps.Reminders.List()
			if err != nil {
				return err
			}
			resp.Reminders = reminders
			return nil
		})

		g.Go(func() error {
			notifications, err := deps.Notifications.List()
			if err != nil {
				return err
			}
			resp.Notifications = notifications
			for _, n := range notifications {
				if !n.Read {
					resp.UnreadCount++
				}
			}
			return nil
		})

		g.Go(func() error {
			trending, err := deps.Topics.Trending()
			if err != nil {
				return err
			}
			resp.TrendingTopics = trending
			return nil
		})

		g.Go(func() error {
			p, err := deps.Prefs.Get()
			if err != nil {
				return err
			}
			if p.Location == "" {
				return nil
			}
			report := deps.Weather.Current(ctx, p.Location)
			resp.Weather = &WeatherResponse{
				City:       p.Location,
				Report:     report,
				Suggestion: weather.Suggestion(report),
			}
			return nil
		})

		if err := g.Wait(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to build dashboard: %v", err)
			return
		}

		if resp.Reminders == nil {
			resp.Reminders = []reminder.Reminder{}
		}
		if resp.Notifications == nil {
			resp.Notifications = []notify.Notification{}
		}
		if resp.TrendingTopics == nil {
			resp.TrendingTopics = []topics.Topic{}
		}
		respondJSON(w, resp)
	}
}
