package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

// smoke drives a minimal end-to-end pass against a running server:
// a driver toggles a bus online and streams one sample, a passenger
// subscribed to the bus observes both, and /buses/near confirms the
// geo index picked it up. It expects cmd/seed to have already run
// against the same DATABASE_URL.
func main() {
	api := envOrDefault("API_BASE", "http://localhost:8080")
	wsBase := envOrDefault("WS_BASE", "ws://localhost:8080")
	driverToken := envOrDefault("DRIVER_TOKEN", "sim_driver_1_token")
	busID := envOrDefault("BUS_ID", "BUS001")
	lng := 40.0
	lat := -73.0

	passengerEvents := make(chan map[string]any, 10)
	go subscribeBus(wsBase, busID, passengerEvents)
	time.Sleep(300 * time.Millisecond) // let the passenger socket join before the driver publishes

	fmt.Println("Connecting driver socket...")
	driverConn := dialDriver(wsBase, driverToken)
	defer driverConn.Close()
	go drain(driverConn)

	fmt.Println("Toggling bus online...")
	if err := sendEvent(driverConn, "driver:toggle", map[string]any{"busId": busID, "online": true}); err != nil {
		log.Fatalf("toggle failed: %v", err)
	}
	waitForEvent(passengerEvents, "bus:status", 5*time.Second)

	fmt.Println("Sending one driver:move sample...")
	if err := sendEvent(driverConn, "driver:move", map[string]any{
		"busId": busID, "lng": lng, "lat": lat, "speed": 18.0, "heading": 45.0, "ts": time.Now().UnixMilli(),
	}); err != nil {
		log.Fatalf("move failed: %v", err)
	}
	waitForEvent(passengerEvents, "bus:update", 5*time.Second)

	fmt.Println("Checking /buses/near...")
	time.Sleep(200 * time.Millisecond) // safety margin; the geo index is written before the move is acknowledged
	if !busAppearsNear(api, lng, lat, busID) {
		log.Fatalf("bus %s did not appear in /buses/near", busID)
	}

	fmt.Println("Smoke test complete.")
}

func dialDriver(wsBase, token string) *websocket.Conn {
	u := url.URL{Scheme: "ws", Host: trimScheme(wsBase), Path: "/ws/driver", RawQuery: "token=" + token}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("driver dial failed: %v", err)
	}
	return conn
}

func subscribeBus(wsBase, busID string, sink chan<- map[string]any) {
	u := url.URL{Scheme: "ws", Host: trimScheme(wsBase), Path: "/ws/passenger"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("passenger dial failed: %v", err)
	}
	defer conn.Close()

	if err := sendEvent(conn, "subscribe:bus", map[string]any{"busId": busID}); err != nil {
		log.Fatalf("subscribe failed: %v", err)
	}
	for {
		var env struct {
			Event string         `json:"event"`
			Data  map[string]any `json:"data"`
		}
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		env.Data["event"] = env.Event
		sink <- env.Data
	}
}

func waitForEvent(events <-chan map[string]any, want string, timeout time.Duration) {
	deadline := time.After(timeout)
	for {
		select {
		case e := <-events:
			fmt.Printf("passenger received: %v\n", e)
			if e["event"] == want {
				return
			}
		case <-deadline:
			log.Fatalf("expected %q within %s, got none", want, timeout)
		}
	}
}

func busAppearsNear(api string, lng, lat float64, busID string) bool {
	resp, err := http.Get(fmt.Sprintf("%s/buses/near?lng=%f&lat=%f&r=1000", api, lng, lat))
	if err != nil {
		log.Fatalf("near query failed: %v", err)
	}
	defer resp.Body.Close()
	var results []struct {
		Bus struct {
			BusID string `json:"busId"`
		} `json:"bus"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		log.Fatalf("decode near response failed: %v", err)
	}
	for _, r := range results {
		if r.Bus.BusID == busID {
			return true
		}
	}
	return false
}

func sendEvent(conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(map[string]any{"event": event, "data": json.RawMessage(raw)})
}

func drain(conn *websocket.Conn) {
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
	}
}

func trimScheme(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	return u.Host
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func init() {
	log.SetOutput(os.Stdout)
}
