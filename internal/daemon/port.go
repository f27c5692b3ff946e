package daemon

import (
	"net"
	"strconv"
	"time"
)

// DefaultConnectTimeout bounds a single port probe.
const DefaultConnectTimeout = time.Second

// IsPortFree reports whether nothing accepts TCP connections on
// 127.0.0.1:port.
//
// A successful connection means the port is in use; the connection is closed
// immediately. Any dial failure (refused, timeout, unreachable) counts as
// free. The probe never retries; callers poll.
func IsPortFree(port int, connectTimeout time.Duration) bool {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), connectTimeout)
	if err != nil {
		return true
	}
	conn.Close()
	return false
}
