package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"turbodriver/internal/identity"
	"turbodriver/internal/tracking"
)

// Handler holds everything an HTTP/WebSocket request needs to reach
// the tracking core, generalizing the teacher's ride-centric Handler
// into the bus-tracking read API plus the two socket upgrade
// endpoints.
type Handler struct {
	store       *tracking.Store
	geo         tracking.GeoIndex
	registry    *tracking.Registry
	broadcaster *tracking.Broadcaster
	throttle    *tracking.Throttle
	assignments tracking.AssignmentSource
	routes      tracking.RouteSource
	verifier    identity.Verifier
	cfg         tracking.Config

	startTime time.Time

	reqCount     int64
	reqErrors    int64
	reqLatencyNS int64
	nearBuckets  bucketCounter
}

// NewHandler builds a Handler over the tracking core's components.
func NewHandler(store *tracking.Store, geo tracking.GeoIndex, registry *tracking.Registry, broadcaster *tracking.Broadcaster,
	throttle *tracking.Throttle, assignments tracking.AssignmentSource, routes tracking.RouteSource, verifier identity.Verifier, cfg tracking.Config) *Handler {
	return &Handler{
		store:       store,
		geo:         geo,
		registry:    registry,
		broadcaster: broadcaster,
		throttle:    throttle,
		assignments: assignments,
		routes:      routes,
		verifier:    verifier,
		cfg:         cfg,
		startTime:   time.Now(),
		nearBuckets: newBucketCounter(map[float64]int64{0.01: 0, 0.05: 0, 0.1: 0, 0.5: 0, 1: 0}),
	}
}

// GetRoute implements GET /routes/{routeId}: polyline/stops/color/name
// for clients that want route geometry (and the ETA worker's own stop
// lookups go through the same RouteSource).
func (h *Handler) GetRoute(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeId")
	route, ok := h.routes.GetRoute(r.Context(), routeID)
	if !ok {
		respondError(w, http.StatusNotFound, "route not found")
		return
	}
	respondJSON(w, http.StatusOK, route)
}

// Health reports process liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Ready reports whether the tracking core is serving from a store.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

// Metrics renders a hand-rolled Prometheus text exposition, matching
// the teacher's stdlib-only /metrics endpoint (no client library).
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	uptime := time.Since(h.startTime).Seconds()
	fmt.Fprintf(w, "tracking_uptime_seconds %.3f\n", uptime)
	fmt.Fprintf(w, "tracking_requests_total %d\n", atomic.LoadInt64(&h.reqCount))
	fmt.Fprintf(w, "tracking_request_errors_total %d\n", atomic.LoadInt64(&h.reqErrors))
	fmt.Fprintf(w, "tracking_request_latency_seconds_total %.6f\n", float64(atomic.LoadInt64(&h.reqLatencyNS))/1e9)
	fmt.Fprintf(w, "tracking_sockets_connected %d\n", h.registry.Count())
	fmt.Fprintf(w, "tracking_buses_known %d\n", len(h.store.AllBuses()))
	for le, count := range h.nearBuckets.snapshot() {
		fmt.Fprintf(w, "tracking_near_query_latency_seconds_bucket{le=\"%.2f\"} %d\n", le, count)
	}
}

// metricsMiddleware captures basic request metrics, grounded on the
// teacher's Handler.metricsMiddleware.
func (h *Handler) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: 200}
		next.ServeHTTP(rec, r)
		atomic.AddInt64(&h.reqCount, 1)
		if rec.status >= 400 {
			atomic.AddInt64(&h.reqErrors, 1)
		}
		atomic.AddInt64(&h.reqLatencyNS, time.Since(start).Nanoseconds())
	})
}

// NearBuses implements GET /buses/near?lng=&lat=&r= (§4.11, §6.4).
func (h *Handler) NearBuses(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { h.nearBuckets.observe(time.Since(start)) }()

	lng, lat, err := parseLngLat(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	radius := h.cfg.NearRadiusMax
	if v := r.URL.Query().Get("r"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "invalid radius")
			return
		}
		radius = parsed
	}
	if radius > h.cfg.NearRadiusMax {
		radius = h.cfg.NearRadiusMax
	}

	results, err := tracking.Near(r.Context(), h.store, h.geo, lng, lat, radius, time.Now())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "near query failed")
		return
	}
	respondJSON(w, http.StatusOK, results)
}

// GetBus implements GET /buses/{busId}.
func (h *Handler) GetBus(w http.ResponseWriter, r *http.Request) {
	busID := chi.URLParam(r, "busId")
	bus, ok := h.store.Get(r.Context(), busID)
	if !ok {
		respondError(w, http.StatusNotFound, "bus not found")
		return
	}
	respondJSON(w, http.StatusOK, bus)
}

// ListBuses implements GET /buses?online=&routeId=&limit=.
func (h *Handler) ListBuses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 200
	if v := q.Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 200 {
		limit = 200
	}

	var buses []tracking.Bus
	if routeID := q.Get("routeId"); routeID != "" {
		buses = h.store.ListOnlineOnRoute(r.Context(), routeID)
	} else {
		buses = h.store.AllBuses()
	}

	if v := q.Get("online"); v != "" {
		want := v == "true"
		filtered := buses[:0:0]
		for _, b := range buses {
			if b.Online == want {
				filtered = append(filtered, b)
			}
		}
		buses = filtered
	}

	if len(buses) > limit {
		buses = buses[:limit]
	}
	respondJSON(w, http.StatusOK, buses)
}

func parseLngLat(r *http.Request) (float64, float64, error) {
	lngStr, latStr := r.URL.Query().Get("lng"), r.URL.Query().Get("lat")
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return 0, 0, errBadQuery("lng")
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, errBadQuery("lat")
	}
	if !tracking.ValidCoord(tracking.Coordinate{Lng: lng, Lat: lat}) {
		return 0, 0, errBadQuery("lng/lat out of range")
	}
	return lng, lat, nil
}

type queryError string

func (e queryError) Error() string { return string(e) }

func errBadQuery(field string) error {
	return queryError("invalid " + field)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// DriverSocket upgrades an authenticated driver connection and runs
// its read/write pumps until disconnect.
func (h *Handler) DriverSocket(w http.ResponseWriter, r *http.Request) {
	token := parseToken(r)
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	driver, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		respondError(w, http.StatusForbidden, "invalid token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sock := tracking.NewSocket(newConnID(), conn, h.cfg.SocketOutboundQueue)
	h.registry.Add(sock)
	driverSock := tracking.NewDriverSocket(sock, driver, h.store, h.throttle, h.assignments, h.registry)

	go sock.WritePump()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sock.ReadPump(ctx, driverSock.HandleEvent)
	driverSock.Disconnect()
}

// PassengerSocket upgrades an anonymous passenger connection and runs
// its read/write pumps until disconnect.
func (h *Handler) PassengerSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sock := tracking.NewSocket(newConnID(), conn, h.cfg.SocketOutboundQueue)
	h.registry.Add(sock)
	passengerSock := tracking.NewPassengerSocket(sock, h.store, h.registry)

	go sock.WritePump()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sock.ReadPump(ctx, passengerSock.HandleEvent)
	passengerSock.Disconnect()
}
