package daemon

import (
	"net"
	"time"

	"github.com/ianremillard/pueue/internal/proto"
)

// probeLiveDaemon dials socketPath with a short timeout and sends a
// `status` request; a clean response means another daemon already owns
// this socket (spec.md §5's advisory liveness check, grounded on the
// same "dial before bind" pattern other daemons in the pack use to avoid
// stomping a running instance's stale-looking socket node).
func probeLiveDaemon(socketPath string) bool {
	conn, err := net.DialTimeout("unix", socketPath, 200*time.Millisecond)
	if err != nil {
		return false
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(200 * time.Millisecond))
	codec := proto.JSONCodec{}
	if err := codec.Encode(conn, proto.Request{Mode: proto.ModeStatus}); err != nil {
		return false
	}
	var resp proto.Response
	return codec.Decode(conn, &resp) == nil
}
