/*
Package portal assembles the whole client-state engine.

PURPOSE:
  One Portal is constructed at startup and passed by reference to every
  consumer; nothing in this repository reaches state through a package
  global. The Portal owns the HTTP adapter, the shared query cache and all
  eleven resource families, and cascades Reset across them on logout.

SEE ALSO:
  - state/cache.go: the shared retention/invalidation machinery
  - cmd/server: construction from configuration
*/
package portal

import (
	"context"
	"log/slog"

	"github.com/warp/portal-sync/accommodations"
	"github.com/warp/portal-sync/auth"
	"github.com/warp/portal-sync/bills"
	"github.com/warp/portal-sync/client"
	"github.com/warp/portal-sync/discounts"
	"github.com/warp/portal-sync/facilities"
	"github.com/warp/portal-sync/members"
	"github.com/warp/portal-sync/notifications"
	"github.com/warp/portal-sync/payments"
	"github.com/warp/portal-sync/state"
	"github.com/warp/portal-sync/surveys"
	"github.com/warp/portal-sync/tours"
	"github.com/warp/portal-sync/wallets"
)

// Portal is the application-state container.
type Portal struct {
	Client *client.Client
	Cache  *state.Cache

	Auth           *auth.Auth
	Facilities     *facilities.Facilities
	Surveys        *surveys.Surveys
	Tours          *tours.Tours
	Accommodations *accommodations.Accommodations
	Bills          *bills.Bills
	Wallets        *wallets.Wallets
	Payments       *payments.Payments
	Discounts      *discounts.Discounts
	Notifications  *notifications.Notifications
	Members        *members.Members

	log *slog.Logger
}

// New constructs the engine against the given upstream base URL. The
// authenticated adapter routes its 401 refreshes through the session store,
// which itself talks to the upstream over a bare (tokenless) adapter.
func New(upstreamURL string, log *slog.Logger) (*Portal, error) {
	if log == nil {
		log = slog.Default()
	}

	bare, err := client.New(upstreamURL, client.WithLogger(log))
	if err != nil {
		return nil, err
	}
	session := auth.New(bare, log)

	api, err := client.New(upstreamURL, client.WithLogger(log), client.WithTokens(session))
	if err != nil {
		return nil, err
	}

	cache := state.NewCache(log)

	p := &Portal{
		Client: api,
		Cache:  cache,
		Auth:   session,
		log:    log.With("component", "portal"),
	}
	p.Facilities = facilities.New(api, cache, log)
	p.Surveys = surveys.New(api, cache, log)
	p.Tours = tours.New(api, cache, log)
	p.Accommodations = accommodations.New(api, cache, log)
	p.Wallets = wallets.New(api, cache, log)
	p.Bills = bills.New(api, cache, p.Wallets, log)
	p.Payments = payments.New(api, cache, p.Wallets, log)
	p.Discounts = discounts.New(api, cache, log)
	p.Notifications = notifications.New(api, cache, log)
	p.Members = members.New(api, cache, log)

	return p, nil
}

// Logout tells the upstream goodbye (best-effort) and resets every slice.
func (p *Portal) Logout(ctx context.Context) {
	if p.Auth.LoggedIn() {
		if _, err := p.Client.Post(ctx, "/api/auth/logout", nil); err != nil {
			p.log.Warn("logout call failed", "error", err)
		}
	}
	p.Reset()
}

// Reset returns every slice to its initial state and drops the cache's
// retained responses. Used on logout and page-session teardown; nothing
// survives into the next session.
func (p *Portal) Reset() {
	p.Cache.Reset()
	p.Auth.Reset()
	p.Facilities.Reset()
	p.Surveys.Reset()
	p.Tours.Reset()
	p.Accommodations.Reset()
	p.Bills.Reset()
	p.Wallets.Reset()
	p.Payments.Reset()
	p.Discounts.Reset()
	p.Notifications.Reset()
	p.Members.Reset()
}
