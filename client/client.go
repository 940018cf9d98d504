// Package client implements the consumer side of the push protocol: a
// connection manager with reconnect backoff, a local event bus, the
// preference and quiet-hours filter for secondary effects, and the
// optimistic read-state reconciler over the REST API.
package client

import (
	"net/http"
	"strings"
	"time"
)

// Client wires the pieces together with explicit dependency injection: one
// bus, one cache, one connection manager, constructed here and threaded
// through, never reached via globals.
type Client struct {
	Bus        *Bus
	Cache      *Cache
	API        *HTTPAPI
	Conn       *ConnManager
	Reconciler *Reconciler
	Prefs      *Preferences

	updater *CacheUpdater
	gate    *EffectGate
	janitor *Janitor
}

// Options tunes construction; zero values take defaults.
type Options struct {
	HTTPClient      *http.Client
	Conn            ConnConfig
	Notifier        Notifier
	Sound           SoundPlayer
	CleanupInterval time.Duration
	Prefs           *Preferences
}

// New builds a client against serverURL (http[s]://host[:port]). The
// websocket endpoint is derived from it.
func New(serverURL, token string, opts Options) *Client {
	prefs := opts.Prefs
	if prefs == nil {
		prefs = DefaultPreferences()
	}

	bus := NewBus()
	cache := NewCache(bus)
	api := NewHTTPAPI(serverURL, token, opts.HTTPClient)

	connCfg := opts.Conn
	if connCfg.URL == "" {
		connCfg.URL = wsURL(serverURL)
	}
	conn := NewConnManager(connCfg, bus, api, cache)

	c := &Client{
		Bus:        bus,
		Cache:      cache,
		API:        api,
		Conn:       conn,
		Reconciler: NewReconciler(cache, api),
		Prefs:      prefs,
		updater:    NewCacheUpdater(cache),
		gate:       NewEffectGate(prefs, opts.Notifier, opts.Sound),
		janitor:    NewJanitor(api, opts.CleanupInterval),
	}
	c.updater.Attach(bus)
	c.gate.Attach(bus)
	return c
}

// Start connects the push channel and begins the background cleanup.
func (c *Client) Start(token string) error {
	if err := c.Conn.Connect(token); err != nil {
		return err
	}
	c.janitor.Start()
	return nil
}

// Close tears everything down: push connection, timers, subscriptions.
func (c *Client) Close() {
	c.janitor.Stop()
	c.Conn.Disconnect()
	c.gate.Detach()
	c.updater.Detach()
}

func wsURL(serverURL string) string {
	u := strings.TrimRight(serverURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}
