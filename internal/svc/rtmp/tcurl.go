package rtmp

import (
	"errors"
	"strings"
)

// ErrReqTcUrl is returned when a connect command's tcUrl is missing or does
// not parse as schema://vhost[:port]/app with non-empty schema, vhost, and app.
var ErrReqTcUrl = errors.New("rtmp: connect command missing a valid tcUrl")

// discoveryApp parses a tcUrl of the form schema://vhost[:port]/app and
// returns the app (everything after the first "/" following the host). All of
// schema, vhost, and app must be non-empty. The port is neither validated nor
// returned, and no default port is filled in.
func discoveryApp(tcURL string) (app string, err error) {
	schema, rest, ok := strings.Cut(tcURL, "://")
	if !ok || schema == "" {
		return "", ErrReqTcUrl
	}

	vhostPort, app, ok := strings.Cut(rest, "/")
	vhost, _, _ := strings.Cut(vhostPort, ":")
	if !ok || vhost == "" || app == "" {
		return "", ErrReqTcUrl
	}

	return app, nil
}
