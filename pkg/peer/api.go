package peer

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/skycoin/raknet/internal/httputil"
	"github.com/skycoin/raknet/internal/metrics"
)

// Info summarizes a running peer.
type Info struct {
	Version       string   `json:"version"`
	GUID          uint64   `json:"guid"`
	LocalAddr     string   `json:"local_address"`
	Protocol      byte     `json:"protocol"`
	MaxMTU        uint16   `json:"max_mtu"`
	AllowIncoming bool     `json:"allow_incoming"`
	Information   string   `json:"information"`
	Uptime        float64  `json:"uptime"`
	Sessions      int      `json:"sessions"`
	Services      []string `json:"services"`
}

// BanRequest is the body of POST /api/bans.
type BanRequest struct {
	IP       string   `json:"ip"`
	Duration Duration `json:"duration,omitempty"`
}

// API serves the status HTTP API of a Peer.
type API struct {
	peer   *Peer
	router chi.Router
}

// NewAPI creates the status API of p.
func NewAPI(p *Peer) *API {
	api := &API{peer: p}

	r := chi.NewRouter()
	r.Use(middleware.Timeout(time.Second * 30))
	r.Use(middleware.Recoverer)
	r.Route("/api", func(r chi.Router) {
		r.Get("/info", api.getInfo())
		r.Get("/sessions", api.getSessions())
		r.Get("/sessions/{addr}", api.getSession())
		r.Delete("/sessions/{addr}", api.deleteSession())
		r.Get("/bans", api.getBans())
		r.Post("/bans", api.postBan())
		r.Delete("/bans/{ip}", api.deleteBan())
	})
	r.Handle("/metrics", p.Metrics().Handler())

	api.router = r
	return api
}

// ServeHTTP implements http.Handler.
func (api *API) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	metrics.Handler(api.peer.Metrics(), api.router).ServeHTTP(w, req)
}

func (api *API) getInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := api.peer.Sessions()
		if err != nil {
			httputil.WriteJSON(w, r, http.StatusInternalServerError, err)
			return
		}
		s := api.peer.Settings()
		httputil.WriteJSON(w, r, http.StatusOK, Info{
			Version:       Version,
			GUID:          s.GUID,
			LocalAddr:     api.peer.LocalAddr().String(),
			Protocol:      s.Protocol,
			MaxMTU:        s.MaxMTU,
			AllowIncoming: s.AllowIncoming(),
			Information:   s.Information(),
			Uptime:        s.Uptime().Seconds(),
			Sessions:      len(sessions),
			Services:      api.peer.Bus().Services(),
		})
	}
}

func (api *API) getSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := api.peer.Sessions()
		if err != nil {
			httputil.WriteJSON(w, r, http.StatusInternalServerError, err)
			return
		}
		httputil.WriteJSON(w, r, http.StatusOK, sessions)
	}
}

func (api *API) getSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, err := addrFromParam(r)
		if err != nil {
			httputil.WriteJSON(w, r, http.StatusBadRequest, err)
			return
		}
		s, err := api.peer.Session(addr.String())
		if err != nil {
			httputil.WriteJSON(w, r, statusFor(err), err)
			return
		}
		httputil.WriteJSON(w, r, http.StatusOK, s)
	}
}

func (api *API) deleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, err := addrFromParam(r)
		if err != nil {
			httputil.WriteJSON(w, r, http.StatusBadRequest, err)
			return
		}
		if err := api.peer.Disconnect(addr); err != nil {
			httputil.WriteJSON(w, r, statusFor(err), err)
			return
		}
		httputil.WriteJSON(w, r, http.StatusOK, true)
	}
}

func (api *API) getBans() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := api.peer.BanList().Entries()
		if err != nil {
			httputil.WriteJSON(w, r, http.StatusInternalServerError, err)
			return
		}
		httputil.WriteJSON(w, r, http.StatusOK, entries)
	}
}

func (api *API) postBan() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BanRequest
		if err := httputil.ReadJSON(r, &req); err != nil {
			httputil.WriteJSON(w, r, http.StatusBadRequest, err)
			return
		}
		ip := net.ParseIP(req.IP)
		if ip == nil {
			httputil.WriteJSON(w, r, http.StatusBadRequest, errors.New("invalid ip"))
			return
		}
		var until time.Time
		if req.Duration > 0 {
			until = time.Now().Add(req.Duration.Duration())
		}
		if err := api.peer.BanList().Ban(ip, until); err != nil {
			httputil.WriteJSON(w, r, http.StatusInternalServerError, err)
			return
		}
		httputil.WriteJSON(w, r, http.StatusOK, true)
	}
}

func (api *API) deleteBan() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := net.ParseIP(chi.URLParam(r, "ip"))
		if ip == nil {
			httputil.WriteJSON(w, r, http.StatusBadRequest, errors.New("invalid ip"))
			return
		}
		if err := api.peer.BanList().Unban(ip); err != nil {
			httputil.WriteJSON(w, r, http.StatusInternalServerError, err)
			return
		}
		httputil.WriteJSON(w, r, http.StatusOK, true)
	}
}

func addrFromParam(r *http.Request) (*net.UDPAddr, error) {
	raw, err := url.PathUnescape(chi.URLParam(r, "addr"))
	if err != nil {
		return nil, err
	}
	return net.ResolveUDPAddr("udp", raw)
}

func statusFor(err error) int {
	if errors.Is(err, ErrSessionNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
