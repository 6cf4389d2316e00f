package tracking

import "time"

// BusStatusPayload is the wire shape of the bus:status event, sent on
// subscribe and on every online transition.
type BusStatusPayload struct {
	BusID        string    `json:"busId"`
	RouteID      string    `json:"routeId"`
	DriverName   string    `json:"driverName,omitempty"`
	Online       bool      `json:"online"`
	LastOnlineAt time.Time `json:"lastOnlineAt"`
	LastUpdateAt time.Time `json:"lastUpdateAt"`
	Timestamp    time.Time `json:"timestamp"`
}

func busStatusPayload(b Bus) BusStatusPayload {
	return BusStatusPayload{
		BusID:        b.BusID,
		RouteID:      b.RouteID,
		DriverName:   b.DriverName,
		Online:       b.Online,
		LastOnlineAt: b.LastOnlineAt,
		LastUpdateAt: b.LastUpdateAt,
		Timestamp:    time.Now(),
	}
}

// BusUpdatePayload is the wire shape of the bus:update event, sent on
// every accepted position sample.
type BusUpdatePayload struct {
	BusID        string     `json:"busId"`
	RouteID      string     `json:"routeId"`
	Location     Coordinate `json:"location"`
	Speed        float64    `json:"speed"`
	Heading      float64    `json:"heading"`
	LastUpdateAt time.Time  `json:"lastUpdateAt"`
	Timestamp    time.Time  `json:"timestamp"`
}

func busUpdatePayload(b Bus) BusUpdatePayload {
	return BusUpdatePayload{
		BusID:        b.BusID,
		RouteID:      b.RouteID,
		Location:     b.Location,
		Speed:        b.Speed,
		Heading:      b.Heading,
		LastUpdateAt: b.LastUpdateAt,
		Timestamp:    time.Now(),
	}
}

// RouteBusesPayload is the wire shape of route:buses, sent once on
// route subscribe.
type RouteBusesPayload struct {
	RouteID   string    `json:"routeId"`
	Buses     []Bus     `json:"buses"`
	Timestamp time.Time `json:"timestamp"`
}

// NextStop describes the ETA worker's current target stop for a bus.
type NextStop struct {
	StopID   string  `json:"stopId"`
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
	ETA      int     `json:"eta"`
}

// ETAUpdatePayload is the wire shape of eta:update, emitted by C11.
type ETAUpdatePayload struct {
	BusID             string    `json:"busId"`
	RouteID           string    `json:"routeId"`
	NextStop          NextStop  `json:"nextStop"`
	RouteProgress     float64   `json:"routeProgress"`
	EstimatedArrival  time.Time `json:"estimatedArrival"`
	Timestamp         time.Time `json:"timestamp"`
}
