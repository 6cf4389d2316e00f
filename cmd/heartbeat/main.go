package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

// heartbeat simulates a driver's phone: it opens the authenticated
// driver WebSocket, toggles a bus online, then streams driver:move
// events along a small straight-line path at a fixed interval.
func main() {
	apiAddr := flag.String("api", "localhost:8080", "API host:port")
	busID := flag.String("bus", "BUS001", "bus ID to drive")
	token := flag.String("token", "", "driver bearer token, from cmd/seed output")
	lat := flag.Float64("lat", 40.758, "starting latitude")
	lon := flag.Float64("lon", -73.9855, "starting longitude")
	speed := flag.Float64("speed", 22, "reported speed (km/h)")
	heading := flag.Float64("heading", 90, "reported heading (degrees)")
	interval := flag.Duration("interval", 3*time.Second, "move interval")
	count := flag.Int("count", 20, "number of driver:move events to send")
	stepLat := flag.Float64("delta-lat", 0.0001, "latitude increment per move")
	stepLon := flag.Float64("delta-lon", 0.0001, "longitude increment per move")
	flag.Parse()

	if *token == "" {
		log.Fatal("-token is required; run cmd/seed first")
	}

	u := url.URL{Scheme: "ws", Host: *apiAddr, Path: "/ws/driver", RawQuery: "token=" + *token}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	go drainInbound(conn)

	if err := sendEvent(conn, "driver:toggle", map[string]any{"busId": *busID, "online": true}); err != nil {
		log.Fatalf("toggle online failed: %v", err)
	}
	log.Printf("bus %s toggled online", *busID)

	for i := 0; i < *count; i++ {
		payload := map[string]any{
			"busId":   *busID,
			"lat":     *lat + float64(i)*(*stepLat),
			"lng":     *lon + float64(i)*(*stepLon),
			"speed":   *speed,
			"heading": *heading,
			"ts":      time.Now().UnixMilli(),
		}
		if err := sendEvent(conn, "driver:move", payload); err != nil {
			log.Printf("move %d failed: %v", i+1, err)
		} else {
			log.Printf("move %d sent", i+1)
		}
		time.Sleep(*interval)
	}

	if err := sendEvent(conn, "driver:toggle", map[string]any{"busId": *busID, "online": false}); err != nil {
		log.Printf("toggle offline failed: %v", err)
	}
}

func sendEvent(conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	envelope := map[string]any{"event": event, "data": json.RawMessage(raw)}
	return conn.WriteJSON(envelope)
}

func drainInbound(conn *websocket.Conn) {
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		fmt.Printf("<- %v\n", msg)
	}
}

func init() {
	log.SetOutput(os.Stdout)
}
