// StreamKey identifies one live stream by the app discovered from a
// connect command's tcUrl and the stream name given to publish/play.
// It is comparable and used as the registry's map key.

package bus

import (
	"fmt"
)

// StreamKey uniquely identifies a stream by application and stream name.
// It is comparable and can be used as a map key.
type StreamKey struct {
	App  string // Application name, discovered from tcUrl (e.g., "live")
	Name string // Stream name, from the publish/play command (e.g., "mystream")
}

// String returns a stable, deterministic string representation of the stream key.
// Format: "app/name"
func (k StreamKey) String() string {
	return fmt.Sprintf("%s/%s", k.App, k.Name)
}

// NewStreamKey creates a new StreamKey from app and name.
func NewStreamKey(app, name string) StreamKey {
	return StreamKey{
		App:  app,
		Name: name,
	}
}

// Valid reports whether both the app and stream name are non-empty. A
// session must not attach to the bus under a key that fails this check.
func (k StreamKey) Valid() bool {
	return k.App != "" && k.Name != ""
}
