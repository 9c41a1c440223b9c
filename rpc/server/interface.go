package server

import (
	"github.com/ValentinKolb/arangovst/rpc/common"
)

// IRequestHandler is the interface for all handlers served by the VST server.
// Handle is called concurrently for requests of all connections. Errors are
// reported as responses with a non-2xx status code.
type IRequestHandler interface {
	Handle(req common.Request) common.Response
}

// HandlerFunc adapts a function to the IRequestHandler interface
type HandlerFunc func(req common.Request) common.Response

func (f HandlerFunc) Handle(req common.Request) common.Response {
	return f(req)
}
