package registry

// Usage is a set of programs a backend may be opened from.
type Usage uint8

const (
	// UsageCLI is the nearfs command: the backend receives uploads.
	UsageCLI Usage = 1 << iota
	// UsageDaemon is nearfs-blockd: the backend sits behind the gRPC service.
	UsageDaemon
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }
