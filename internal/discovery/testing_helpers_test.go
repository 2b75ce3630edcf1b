package discovery

import (
	"io"
	"log/slog"
	"net"

	"github.com/hashicorp/memberlist"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fakeNode(name string, meta []byte) *memberlist.Node {
	return &memberlist.Node{
		Name: name,
		Addr: net.ParseIP("127.0.0.1"),
		Port: 7946,
		Meta: meta,
	}
}
