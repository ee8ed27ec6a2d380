package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.dedis.ch/statetree/envelope"
	"go.dedis.ch/statetree/id"
	"go.dedis.ch/statetree/log"
	"go.dedis.ch/statetree/state"
	"golang.org/x/xerrors"
)

// Endpoints holds the URL paths used by the direct transport, matching
// the URL.change_state / URL.notification / URL.get_state configuration
// keys.
type Endpoints struct {
	ChangeState  string
	Notification string
	GetState     string
}

// DefaultEndpoints is used when the configuration defines no paths.
var DefaultEndpoints = Endpoints{
	ChangeState:  "/statemachine/input",
	Notification: "/notifications",
	GetState:     "/statemachine/state",
}

// Resolver maps a NodeId to the network address it listens on.
type Resolver func(id.NodeId) id.NetAddress

// Direct is the synchronous, HTTP-style request/response transport.
type Direct struct {
	self       id.NodeId
	listenAddr string
	resolver   Resolver
	endpoint   Endpoints
	retry      RetryPolicy
	getDelay   time.Duration
	client     *http.Client

	mu        sync.Mutex
	server    *http.Server
	upgrader  websocket.Upgrader
	streamers map[*websocket.Conn]bool
	done      chan struct{}
	closed    bool
}

// NewDirect builds a Direct transport for self. listenAddr is the
// host:port the local HTTP server binds to.
func NewDirect(self id.NodeId, listenAddr string, resolver Resolver, endpoint Endpoints, retry RetryPolicy, getDelay time.Duration) *Direct {
	return &Direct{
		self:       self,
		listenAddr: listenAddr,
		resolver:   resolver,
		endpoint:   endpoint,
		retry:      retry,
		getDelay:   getDelay,
		client:     &http.Client{Timeout: 5 * time.Second},
		streamers:  make(map[*websocket.Conn]bool),
		done:       make(chan struct{}),
	}
}

func (d *Direct) baseURL(dst id.NodeId) string {
	addr := d.resolver(dst)
	return fmt.Sprintf("http://%s", addr.String())
}

// SendStart dispatches Orange(Running, p) to dst in the background,
// retrying on transient failure.
func (d *Direct) SendStart(dst id.NodeId, p float64) {
	go func() {
		u := d.baseURL(dst) + d.endpoint.ChangeState + "?start=" + strconv.FormatFloat(p, 'f', -1, 64)
		if err := d.postWithRetry(u); err != nil {
			log.Warnf("direct: SendStart to %s dropped: %v", dst, err)
		}
	}()
}

// SendStop sends Orange(Stopped) to dst and blocks for delivery.
func (d *Direct) SendStop(dst id.NodeId) error {
	u := d.baseURL(dst) + d.endpoint.ChangeState + "?stop=_"
	return d.postWithRetry(u)
}

// Notify sends a Red notification toward dst in the background.
func (d *Direct) Notify(dst id.NodeId, sender id.NodeId, s state.Kind, ts float64) {
	go func() {
		q := url.Values{}
		q.Set("state", "State."+s.String())
		q.Set("sender", sender.RoutingKey())
		q.Set("time_stamp", strconv.FormatFloat(ts, 'f', -1, 64))
		u := d.baseURL(dst) + d.endpoint.Notification + "?" + q.Encode()
		if err := d.postWithRetry(u); err != nil {
			log.Warnf("direct: Notify %s->%s dropped: %v", d.self, dst, err)
		}
	}()
}

func (d *Direct) postWithRetry(u string) error {
	var lastErr error
	for attempt := 0; attempt < d.retry.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-d.done:
				return xerrors.Errorf("transport closed, abandoning retry: %w", lastErr)
			case <-time.After(d.retry.Backoff):
			}
		}
		resp, err := d.client.Post(u, "application/octet-stream", nil)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return nil
		}
		lastErr = xerrors.Errorf("non-success response %d from %s", resp.StatusCode, u)
	}
	return xerrors.Errorf("giving up after %d attempts: %w", d.retry.Attempts, lastErr)
}

// GetState performs a blocking GET against dst, delayed on the server
// side by the configured get_time.
func (d *Direct) GetState(dst id.NodeId) (state.Kind, bool) {
	u := d.baseURL(dst) + d.endpoint.GetState
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second+d.getDelay)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, false
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false
	}
	var body struct{ State string }
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, false
	}
	s, err := state.Parse(body.State)
	if err != nil {
		return 0, false
	}
	return s, true
}

// Serve starts the HTTP listener bound to d's configured listen
// address and wires its handlers to recv.
func (d *Direct) Serve(recv Receiver) error {
	mux := http.NewServeMux()

	mux.HandleFunc(d.endpoint.ChangeState, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		if startVal := q.Get("start"); startVal != "" {
			p, err := strconv.ParseFloat(startVal, 64)
			e := envelope.NewOrangeStart(p)
			if err != nil || envelope.Validate(e, envelope.PortRange{Min: 0, Max: 1 << 30}) != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if !recv.OnStart(p) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusOK)
			return
		}
		if _, ok := q["stop"]; ok {
			if !recv.OnStop() {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	})

	mux.HandleFunc(d.endpoint.Notification, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		sender, err := parseSender(q.Get("sender"))
		if err != nil {
			log.Warnf("direct: dropping notification with bad sender %q: %v", q.Get("sender"), err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s, err := state.Parse(q.Get("state"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		ts, err := strconv.ParseFloat(q.Get("time_stamp"), 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		recv.OnNotification(sender, s, ts)
		d.broadcastStream(s)
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc(d.endpoint.GetState, func(w http.ResponseWriter, r *http.Request) {
		if d.getDelay > 0 {
			time.Sleep(d.getDelay)
		}
		s := recv.OnGetState()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"State": "State." + s.String()})
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/statemachine/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := d.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		d.mu.Lock()
		d.streamers[conn] = true
		d.mu.Unlock()
	})

	d.mu.Lock()
	d.server = &http.Server{Addr: d.listenAddr, Handler: mux}
	d.mu.Unlock()

	ln, err := newListener(d.listenAddr)
	if err != nil {
		return xerrors.Errorf("direct: listen on %s: %w", d.listenAddr, err)
	}
	go func() {
		if err := d.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Errorf("direct: server on %s stopped: %v", d.listenAddr, err)
		}
	}()
	return nil
}

// parseSender accepts the three sender spellings seen on the wire: the
// dotted routing key ("2.1.1.0.0"), an "ip:port" pair whose port is the
// sender's id, or the bare 5-digit id itself.
func parseSender(v string) (id.NodeId, error) {
	if i := strings.LastIndexByte(v, ':'); i >= 0 {
		return id.New(v[i+1:])
	}
	if strings.ContainsRune(v, '.') {
		return id.FromRoutingKey(v)
	}
	return id.New(v)
}

// broadcastStream pushes a state update to every connected status-stream
// websocket client. A failed write just drops that one streamer.
func (d *Direct) broadcastStream(s state.Kind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for conn := range d.streamers {
		if err := conn.WriteJSON(map[string]string{"State": "State." + s.String()}); err != nil {
			conn.Close()
			delete(d.streamers, conn)
		}
	}
}

// Close shuts down the HTTP server, cancels any in-flight retry loops
// and drops every open status-stream socket.
func (d *Direct) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.done)
	}
	for conn := range d.streamers {
		conn.Close()
		delete(d.streamers, conn)
	}
	if d.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.server.Shutdown(ctx)
}
