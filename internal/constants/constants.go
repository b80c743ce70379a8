package constants

// APIName is prepended to service-level log messages so log lines from this
// API can be told apart from other services shipping to the same sink.
func APIName() string {
	return "[vehicle-state-api]"
}
