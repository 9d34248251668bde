// Package websocket pushes simulator state to browsers.
//
// A central Hub keeps the connected clients grouped by session ID. After
// every mutation the API layer calls BroadcastState, and each client of
// that session receives one JSON message per frame:
//
//	{"session_id": "ab12", "event": "state_update", "state": {...}}
//
// Clients connect with /ws?session=<id>. Anything they send is read and
// discarded; the connection is kept alive with pings.
//
// Usage:
//
//	hub := websocket.NewHub()
//	go hub.Run(ctx)
//
//	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, r.URL.Query().Get("session"))
//	})
//
// Broadcasts are queued and never block the caller. A client whose send
// buffer is full is dropped. Run may only be called once.
package websocket
