// Package main runs a demo map surface: it connects to /ws, answers
// geolocation requests with a fixed position, accepts every confirm and
// logs what the server draws.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func envFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return def
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)
	lat := envFloat("DEMO_LAT", 23.6573)
	lng := envFloat("DEMO_LNG", 121.4208)

	// List what the server has cached
	resp, err := http.Get(base + "/v1/places/grouped")
	if err != nil {
		log.Fatal(err)
	}
	var grouped struct {
		Total int `json:"total"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&grouped)
	_ = resp.Body.Close()
	log.Printf("places: %d", grouped.Total)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	var writeMu sync.Mutex
	write := func(typ, id string, v any) {
		b, _ := json.Marshal(v)
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := c.WriteJSON(wsMessage{Type: typ, ID: id, Payload: b}); err != nil {
			log.Printf("write: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			switch m.Type {
			case "ping":
				write("pong", "", nil)
			case "geo.permission":
				write("geo.permission.state", m.ID, map[string]string{"state": "prompt"})
			case "geo.request":
				write("geo.position", m.ID, map[string]float64{"lat": lat, "lng": lng})
			case "geo.watch":
				var w struct {
					WatchID int `json:"watch_id"`
				}
				_ = json.Unmarshal(m.Payload, &w)
				go func(id int) {
					for i := 1; i <= 3; i++ {
						time.Sleep(time.Second)
						write("geo.position", "", map[string]any{"watch_id": id, "lat": lat + float64(i)*0.0005, "lng": lng})
					}
				}(w.WatchID)
			case "modal":
				var st struct {
					Kind string `json:"kind"`
				}
				_ = json.Unmarshal(m.Payload, &st)
				if st.Kind == "confirm" {
					write("ui.confirm", "", map[string]bool{"accept": true})
				}
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Let the permission flow and a few watch updates run
	select {
	case <-time.After(8 * time.Second):
	case <-done:
	}
}
