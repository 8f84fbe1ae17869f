package session

const (
	AppName = "cns-console"

	// AppVersion is also the go-treestore application version of saved data
	// files.
	AppVersion = 1

	// ProtocolVersion is the dashboard payload and command envelope revision.
	ProtocolVersion = 1
)
