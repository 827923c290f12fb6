package wire

// Well-known lifecycle method names the session state machine and
// dispatcher must recognize regardless of what catalog is bound to them.
const (
	MethodInitialize    = "initialize"
	MethodInitialized   = "initialized"
	MethodShutdown      = "shutdown"
	MethodExit          = "exit"
	MethodCancelRequest = "$/cancelRequest"
	MethodProgress      = "$/progress"
)
