package httpserver

import "time"

// ShutdownTimeout controls how long to wait for in-flight requests and
// background persona jobs during a graceful shutdown.
var ShutdownTimeout = 30 * time.Second
